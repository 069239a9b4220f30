// Package checkout handles card-processor checkout completion webhooks.
package checkout

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strconv"
	"strings"
	"time"
)

// SignatureHeader carries the webhook signature.
const SignatureHeader = "Stripe-Signature"

// DefaultTolerance bounds how old a signed timestamp may be.
const DefaultTolerance = 5 * time.Minute

var (
	// ErrMissingSecret reports a verifier without a signing secret.
	ErrMissingSecret = errors.New("checkout: webhook secret not configured")
	// ErrInvalidSignature reports a missing, malformed or mismatched signature.
	ErrInvalidSignature = errors.New("checkout: invalid signature")
	// ErrTimestampOutOfRange reports a signature outside the tolerance window.
	ErrTimestampOutOfRange = errors.New("checkout: signature timestamp out of range")
)

// Verifier checks webhook signatures.
type Verifier struct {
	secret    []byte
	tolerance time.Duration
}

// NewVerifier constructs a Verifier. A non-positive tolerance uses DefaultTolerance.
func NewVerifier(secret string, tolerance time.Duration) *Verifier {
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}
	return &Verifier{secret: []byte(strings.TrimSpace(secret)), tolerance: tolerance}
}

// Verify checks header, of the form "t=<unix>,v1=<hex>[,v1=<hex>...]", against payload.
// The expected signature is HMAC-SHA256 of "<t>.<payload>" keyed by the webhook secret.
func (v *Verifier) Verify(payload []byte, header string, now time.Time) error {
	if v == nil || len(v.secret) == 0 {
		return ErrMissingSecret
	}
	stamp, signatures, ok := parseSignatureHeader(header)
	if !ok {
		return ErrInvalidSignature
	}
	unix, errParse := strconv.ParseInt(stamp, 10, 64)
	if errParse != nil {
		return ErrInvalidSignature
	}

	expected := v.sign(stamp, payload)
	matched := false
	for _, sig := range signatures {
		if hmac.Equal([]byte(sig), []byte(expected)) {
			matched = true
			break
		}
	}
	if !matched {
		return ErrInvalidSignature
	}

	age := now.Sub(time.Unix(unix, 0))
	if age > v.tolerance || age < -v.tolerance {
		return ErrTimestampOutOfRange
	}
	return nil
}

// Sign returns a header value for payload signed at now.
func (v *Verifier) Sign(payload []byte, now time.Time) string {
	stamp := strconv.FormatInt(now.Unix(), 10)
	return "t=" + stamp + ",v1=" + v.sign(stamp, payload)
}

func (v *Verifier) sign(stamp string, payload []byte) string {
	mac := hmac.New(sha256.New, v.secret)
	_, _ = mac.Write([]byte(stamp))
	_, _ = mac.Write([]byte("."))
	_, _ = mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

func parseSignatureHeader(header string) (string, []string, bool) {
	var stamp string
	var signatures []string
	for _, part := range strings.Split(header, ",") {
		key, value, found := strings.Cut(strings.TrimSpace(part), "=")
		if !found {
			continue
		}
		switch strings.TrimSpace(key) {
		case "t":
			stamp = strings.TrimSpace(value)
		case "v1":
			signatures = append(signatures, strings.TrimSpace(value))
		}
	}
	if stamp == "" || len(signatures) == 0 {
		return "", nil, false
	}
	return stamp, signatures, true
}
