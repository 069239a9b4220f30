package security

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashPassword_RoundTrip(t *testing.T) {
	hash, err := HashPassword("s3cret-pass")
	require.NoError(t, err)

	assert.True(t, CheckPassword(hash, "s3cret-pass"))
	assert.False(t, CheckPassword(hash, "wrong"))
	assert.False(t, CheckPassword("", "s3cret-pass"))

	_, err = HashPassword("")
	assert.Error(t, err)
}

func TestAdminToken_RoundTrip(t *testing.T) {
	now := time.Now()
	token, expiresAt, err := IssueAdminToken("admin-secret", 7, "ops@example.com", 30*time.Minute, now)
	require.NoError(t, err)
	assert.WithinDuration(t, now.Add(30*time.Minute), expiresAt, time.Second)

	claims, err := ParseAdminToken("admin-secret", token)
	require.NoError(t, err)
	assert.Equal(t, uint64(7), claims.AdminID)
	assert.Equal(t, "ops@example.com", claims.Email)
}

func TestAdminToken_Rejections(t *testing.T) {
	now := time.Now()
	token, _, err := IssueAdminToken("admin-secret", 7, "ops@example.com", time.Minute, now)
	require.NoError(t, err)

	_, err = ParseAdminToken("other-secret", token)
	assert.Error(t, err, "wrong secret must fail")

	expired, _, err := IssueAdminToken("admin-secret", 7, "ops@example.com", time.Minute, now.Add(-time.Hour))
	require.NoError(t, err)
	_, err = ParseAdminToken("admin-secret", expired)
	assert.ErrorIs(t, err, jwt.ErrTokenExpired)

	session, err := IssueSessionToken("admin-secret", "", "user-1", "", "", time.Hour, now)
	require.NoError(t, err)
	_, err = ParseAdminToken("admin-secret", session)
	assert.Error(t, err, "session token must not pass as admin token")

	_, err = ParseAdminToken("", token)
	assert.ErrorIs(t, err, ErrMissingSecret)

	unsigned := jwt.NewWithClaims(jwt.SigningMethodNone, AdminClaims{AdminID: 7})
	raw, err := unsigned.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = ParseAdminToken("admin-secret", raw)
	assert.Error(t, err, "unsigned token must fail")
}

func TestSessionToken_IssuerCheck(t *testing.T) {
	now := time.Now()
	token, err := IssueSessionToken("session-secret", "https://auth.example.com", "user-42", "a@example.com", "Ada", time.Hour, now)
	require.NoError(t, err)

	claims, err := ParseSessionToken("session-secret", "https://auth.example.com", token)
	require.NoError(t, err)
	assert.Equal(t, "user-42", claims.Subject)
	assert.Equal(t, "Ada", claims.Name)

	_, err = ParseSessionToken("session-secret", "https://other.example.com", token)
	assert.Error(t, err)

	_, err = ParseSessionToken("session-secret", "", token)
	assert.NoError(t, err)
}

func TestValidateTOTP(t *testing.T) {
	key, err := GenerateTOTPKey("ops@example.com")
	require.NoError(t, err)

	now := time.Now()
	code, err := totp.GenerateCode(key.Secret(), now)
	require.NoError(t, err)

	assert.True(t, ValidateTOTP(code, key.Secret(), now))
	assert.False(t, ValidateTOTP("000000", "", now))
	assert.False(t, ValidateTOTP(code, key.Secret(), now.Add(10*time.Minute)))
}

func TestGenerateRandomString(t *testing.T) {
	a, err := GenerateRandomString(32)
	require.NoError(t, err)
	b, err := GenerateRandomString(32)
	require.NoError(t, err)
	assert.NotEqual(t, a, b)

	_, err = GenerateRandomString(0)
	assert.Error(t, err)
}
