// Package identity derives the keys a usage event is attributed to.
package identity

import (
	"net/http"
	"strconv"
	"strings"
)

// Type is the kind of signal an identity key is derived from.
type Type string

// Identity key types, in resolution order.
const (
	TypeUserID      Type = "user_id"
	TypeIP          Type = "ip"
	TypeFingerprint Type = "fingerprint"
)

// UnknownIP is recorded when no client address can be determined.
const UnknownIP = "unknown"

// maxValueLength caps client-supplied key values to the varchar(255) identity columns.
const maxValueLength = 255

// Request headers consulted by RequestFromHTTP.
const (
	HeaderForwardedFor = "X-Forwarded-For"
	HeaderRealIP       = "X-Real-IP"
	HeaderFingerprint  = "X-Device-Fingerprint"
)

// Key is one signal a caller is tracked by.
type Key struct {
	Type  Type   `json:"type"`
	Value string `json:"value"`
}

// String renders the key as type:value.
func (k Key) String() string {
	return string(k.Type) + ":" + k.Value
}

// Request carries the identity-relevant parts of an inbound usage event.
type Request struct {
	AccountID    uint64 // Authenticated account, 0 when anonymous.
	ForwardedFor string // Raw X-Forwarded-For header.
	RealIP       string // Raw X-Real-IP header.
	Fingerprint  string // Opaque client-computed device fingerprint.
}

// RequestFromHTTP builds a Request from r's headers. fingerprint overrides the header when non-empty.
func RequestFromHTTP(r *http.Request, accountID uint64, fingerprint string) Request {
	req := Request{AccountID: accountID, Fingerprint: fingerprint}
	if r == nil {
		return req
	}
	req.ForwardedFor = r.Header.Get(HeaderForwardedFor)
	req.RealIP = r.Header.Get(HeaderRealIP)
	if strings.TrimSpace(req.Fingerprint) == "" {
		req.Fingerprint = r.Header.Get(HeaderFingerprint)
	}
	return req
}

// Resolve returns every key present on req: the account id when authenticated,
// the client IP (always), and the fingerprint when supplied.
func Resolve(req Request) []Key {
	keys := make([]Key, 0, 3)
	if req.AccountID != 0 {
		keys = append(keys, Key{Type: TypeUserID, Value: strconv.FormatUint(req.AccountID, 10)})
	}
	keys = append(keys, Key{Type: TypeIP, Value: ClientIP(req.ForwardedFor, req.RealIP)})
	if fp := normalizeFingerprint(req.Fingerprint); fp != "" {
		keys = append(keys, Key{Type: TypeFingerprint, Value: fp})
	}
	return keys
}

// ClientIP returns the first forwarded-for entry, else the real-ip header, else UnknownIP.
func ClientIP(forwardedFor, realIP string) string {
	if first, _, _ := strings.Cut(forwardedFor, ","); strings.TrimSpace(first) != "" {
		return truncate(strings.TrimSpace(first))
	}
	if ip := strings.TrimSpace(realIP); ip != "" {
		return truncate(ip)
	}
	return UnknownIP
}

// Find returns the key of type t, if present.
func Find(keys []Key, t Type) (Key, bool) {
	for _, k := range keys {
		if k.Type == t {
			return k, true
		}
	}
	return Key{}, false
}

func normalizeFingerprint(fp string) string {
	return truncate(strings.TrimSpace(fp))
}

func truncate(v string) string {
	if len(v) > maxValueLength {
		return v[:maxValueLength]
	}
	return v
}
