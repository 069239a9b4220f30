package security

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Token audiences keep admin and end-user tokens from being accepted in place of each other.
const (
	AudienceAdmin   = "voxdesk-admin"
	AudienceSession = "voxdesk-session"
)

// ErrMissingSecret is returned when a signing or verification secret is not configured.
var ErrMissingSecret = errors.New("security: missing token secret")

// AdminClaims are carried by admin session tokens.
type AdminClaims struct {
	AdminID uint64 `json:"admin_id"`
	Email   string `json:"email"`
	jwt.RegisteredClaims
}

// IssueAdminToken signs a short-lived admin token and returns it with its expiry.
func IssueAdminToken(secret string, adminID uint64, email string, expiry time.Duration, now time.Time) (string, time.Time, error) {
	if strings.TrimSpace(secret) == "" {
		return "", time.Time{}, ErrMissingSecret
	}
	if adminID == 0 {
		return "", time.Time{}, fmt.Errorf("security: missing admin id")
	}
	expiresAt := now.Add(expiry)
	claims := AdminClaims{
		AdminID: adminID,
		Email:   email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatUint(adminID, 10),
			Audience:  jwt.ClaimStrings{AudienceAdmin},
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	signed, errSign := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if errSign != nil {
		return "", time.Time{}, fmt.Errorf("security: sign admin token: %w", errSign)
	}
	return signed, expiresAt, nil
}

// ParseAdminToken verifies the signature, audience and expiry of an admin token.
func ParseAdminToken(secret, token string) (*AdminClaims, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, ErrMissingSecret
	}
	claims := &AdminClaims{}
	parsed, errParse := jwt.ParseWithClaims(token, claims, hmacKey(secret),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithAudience(AudienceAdmin),
		jwt.WithExpirationRequired(),
	)
	if errParse != nil {
		return nil, errParse
	}
	if !parsed.Valid || claims.AdminID == 0 {
		return nil, fmt.Errorf("security: invalid admin token")
	}
	return claims, nil
}

// SessionClaims are carried by end-user session tokens issued by the auth provider.
// The subject is the provider's user id.
type SessionClaims struct {
	Email string `json:"email"`
	Name  string `json:"name"`
	jwt.RegisteredClaims
}

// IssueSessionToken signs an end-user session token. Used by tests and local tooling.
func IssueSessionToken(secret, issuer, subject, email, name string, expiry time.Duration, now time.Time) (string, error) {
	if strings.TrimSpace(secret) == "" {
		return "", ErrMissingSecret
	}
	claims := SessionClaims{
		Email: email,
		Name:  name,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   subject,
			Audience:  jwt.ClaimStrings{AudienceSession},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(expiry)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// ParseSessionToken verifies an end-user session token. An empty issuer skips the issuer check.
func ParseSessionToken(secret, issuer, token string) (*SessionClaims, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, ErrMissingSecret
	}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithAudience(AudienceSession),
		jwt.WithExpirationRequired(),
	}
	if strings.TrimSpace(issuer) != "" {
		opts = append(opts, jwt.WithIssuer(issuer))
	}
	claims := &SessionClaims{}
	parsed, errParse := jwt.ParseWithClaims(token, claims, hmacKey(secret), opts...)
	if errParse != nil {
		return nil, errParse
	}
	if !parsed.Valid || strings.TrimSpace(claims.Subject) == "" {
		return nil, fmt.Errorf("security: invalid session token")
	}
	return claims, nil
}

func hmacKey(secret string) jwt.Keyfunc {
	return func(*jwt.Token) (any, error) {
		return []byte(secret), nil
	}
}
