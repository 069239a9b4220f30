// Package providerkeys stores third-party voice and telephony credentials supplied by accounts.
package providerkeys

import (
	"encoding/json"
	"strings"

	"gorm.io/datatypes"
)

// Canonical provider identifiers.
const (
	ProviderOpenAI     = "openai"
	ProviderElevenLabs = "elevenlabs"
	ProviderDeepgram   = "deepgram"
	ProviderVapi       = "vapi"
	ProviderTwilio     = "twilio"
)

var providerAliases = map[string]string{
	"openai":      ProviderOpenAI,
	"open-ai":     ProviderOpenAI,
	"elevenlabs":  ProviderElevenLabs,
	"eleven-labs": ProviderElevenLabs,
	"11labs":      ProviderElevenLabs,
	"deepgram":    ProviderDeepgram,
	"vapi":        ProviderVapi,
	"vapi-ai":     ProviderVapi,
	"twilio":      ProviderTwilio,
}

// NormalizeProvider maps value to a canonical provider identifier.
// It returns "" for unsupported providers.
func NormalizeProvider(value string) string {
	trimmed := strings.ToLower(strings.TrimSpace(value))
	trimmed = strings.ReplaceAll(trimmed, "_", "-")
	if alias, ok := providerAliases[trimmed]; ok {
		return alias
	}
	return ""
}

// MaskSecret hides all but the last four characters of secret.
func MaskSecret(secret string) string {
	trimmed := strings.TrimSpace(secret)
	if trimmed == "" {
		return ""
	}
	if len(trimmed) <= 8 {
		return strings.Repeat("*", len(trimmed))
	}
	return trimmed[:3] + strings.Repeat("*", 8) + trimmed[len(trimmed)-4:]
}

func encodeMetadata(metadata map[string]string) datatypes.JSON {
	clean := make(map[string]string, len(metadata))
	for k, v := range metadata {
		key := strings.TrimSpace(k)
		if key == "" {
			continue
		}
		clean[key] = strings.TrimSpace(v)
	}
	if len(clean) == 0 {
		return nil
	}
	raw, errMarshal := json.Marshal(clean)
	if errMarshal != nil {
		return nil
	}
	return datatypes.JSON(raw)
}

func decodeMetadata(value datatypes.JSON) map[string]string {
	if len(value) == 0 {
		return nil
	}
	out := make(map[string]string)
	if err := json.Unmarshal(value, &out); err != nil {
		return nil
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
