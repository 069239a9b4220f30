package security

import (
	"strings"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

// totpIssuer is shown in authenticator apps.
const totpIssuer = "Voxdesk"

// GenerateTOTPKey creates a new TOTP secret for an admin account.
func GenerateTOTPKey(accountName string) (*otp.Key, error) {
	return totp.Generate(totp.GenerateOpts{
		Issuer:      totpIssuer,
		AccountName: accountName,
	})
}

// ValidateTOTP checks a six digit code against secret at the given time, allowing one period of skew.
func ValidateTOTP(code, secret string, now time.Time) bool {
	code = strings.TrimSpace(code)
	secret = strings.TrimSpace(secret)
	if code == "" || secret == "" {
		return false
	}
	valid, errValidate := totp.ValidateCustom(code, secret, now.UTC(), totp.ValidateOpts{
		Period:    30,
		Skew:      1,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	return errValidate == nil && valid
}
