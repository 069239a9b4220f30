package admin

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/voxdesk/voxdesk/internal/account"
	"github.com/voxdesk/voxdesk/internal/config"
	"github.com/voxdesk/voxdesk/internal/db"
	"github.com/voxdesk/voxdesk/internal/identity"
	"github.com/voxdesk/voxdesk/internal/ledger"
	"github.com/voxdesk/voxdesk/internal/models"
	"github.com/voxdesk/voxdesk/internal/plan"
	"github.com/voxdesk/voxdesk/internal/ratelimit"
	"github.com/voxdesk/voxdesk/internal/reconcile"
	"github.com/voxdesk/voxdesk/internal/security"
	"github.com/voxdesk/voxdesk/internal/usage"
	"gorm.io/gorm"
)

const (
	testJWTSecret     = "admin-jwt-secret"
	testAdminEmail    = "ops@example.com"
	testAdminPassword = "correct horse battery"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fixture struct {
	conn       *gorm.DB
	router     *gin.Engine
	accounts   *account.Service
	ledger     *ledger.Ledger
	recorder   *usage.Recorder
	admin      models.Admin
	totpSecret string
}

func newFixture(t *testing.T, limiter *ratelimit.Manager) *fixture {
	t.Helper()
	conn, err := db.Open("file:" + filepath.Join(t.TempDir(), "admin.db"))
	require.NoError(t, err)
	require.NoError(t, db.Migrate(conn))

	hash, err := security.HashPassword(testAdminPassword)
	require.NoError(t, err)
	key, err := security.GenerateTOTPKey(testAdminEmail)
	require.NoError(t, err)
	admin := models.Admin{Email: testAdminEmail, Password: hash, TOTPSecret: key.Secret(), Active: true}
	require.NoError(t, conn.Create(&admin).Error)

	accounts := account.NewService(conn)
	l := ledger.New(conn, nil)
	recorder := usage.NewRecorder(usage.NewGormStore(conn), time.UTC, nil, nil)
	f := &fixture{
		conn:       conn,
		router:     gin.New(),
		accounts:   accounts,
		ledger:     l,
		recorder:   recorder,
		admin:      admin,
		totpSecret: key.Secret(),
	}
	RegisterAdminRoutes(f.router, Deps{
		DB:        conn,
		JWT:       config.JWTConfig{Secret: testJWTSecret, Expiry: 30 * time.Minute},
		Accounts:  accounts,
		Catalog:   plan.NewCatalog(5, 180),
		Ledger:    l,
		Reconcile: reconcile.NewService(conn, l, accounts, nil),
		Recorder:  recorder,
		Limiter:   limiter,
	})
	return f
}

func (f *fixture) token(t *testing.T) string {
	t.Helper()
	token, _, err := security.IssueAdminToken(testJWTSecret, f.admin.ID, f.admin.Email, time.Minute, time.Now())
	require.NoError(t, err)
	return token
}

func (f *fixture) do(t *testing.T, method, path string, body any, token string) *httptest.ResponseRecorder {
	t.Helper()
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		require.NoError(t, err)
	}
	req := httptest.NewRequest(method, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func (f *fixture) createAccount(t *testing.T, subject, email string) *models.Account {
	t.Helper()
	acc, err := f.accounts.Touch(context.Background(), account.Identity{AuthProviderID: subject, Email: email, Name: "Owner " + subject})
	require.NoError(t, err)
	return acc
}

func (f *fixture) createTransaction(t *testing.T, accountID uint64, method models.TransactionMethod, status models.TransactionStatus, ref string) *models.Transaction {
	t.Helper()
	tx, err := f.ledger.CreateTransaction(context.Background(), ledger.CreateParams{
		AccountID:         accountID,
		Amount:            49,
		Method:            method,
		Status:            status,
		ExternalReference: ref,
	})
	require.NoError(t, err)
	return tx
}

func idPath(format string, id uint64) string {
	return "/v0/admin/" + format + "/" + strconv.FormatUint(id, 10)
}

func TestLogin(t *testing.T) {
	f := newFixture(t, nil)
	code, err := totp.GenerateCode(f.totpSecret, time.Now())
	require.NoError(t, err)

	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodPost, "/v0/admin/login", gin.H{"email": testAdminEmail}, "").Code)
	assert.Equal(t, http.StatusUnauthorized, f.do(t, http.MethodPost, "/v0/admin/login", gin.H{"email": testAdminEmail, "password": "wrong", "code": code}, "").Code)
	assert.Equal(t, http.StatusUnauthorized, f.do(t, http.MethodPost, "/v0/admin/login", gin.H{"email": testAdminEmail, "password": testAdminPassword, "code": "000000x"}, "").Code)
	assert.Equal(t, http.StatusUnauthorized, f.do(t, http.MethodPost, "/v0/admin/login", gin.H{"email": "nobody@example.com", "password": testAdminPassword, "code": code}, "").Code)

	w := f.do(t, http.MethodPost, "/v0/admin/login", gin.H{"email": "OPS@example.com ", "password": testAdminPassword, "code": code}, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	claims, err := security.ParseAdminToken(testJWTSecret, resp.Token)
	require.NoError(t, err)
	assert.Equal(t, f.admin.ID, claims.AdminID)

	assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/v0/admin/transactions/pending", nil, resp.Token).Code)

	var reloaded models.Admin
	require.NoError(t, f.conn.First(&reloaded, f.admin.ID).Error)
	assert.NotNil(t, reloaded.LastLoginAt)
}

func TestLogin_Throttled(t *testing.T) {
	now := time.Unix(1767225600, 0)
	limiter := ratelimit.NewManager(ratelimit.StaticSettings(ratelimit.SettingsConfig{AdminLoginLimit: 1}), func() time.Time { return now }, nil)
	f := newFixture(t, limiter)

	body := gin.H{"email": testAdminEmail, "password": "wrong", "code": "123456"}
	assert.Equal(t, http.StatusUnauthorized, f.do(t, http.MethodPost, "/v0/admin/login", body, "").Code)
	assert.Equal(t, http.StatusTooManyRequests, f.do(t, http.MethodPost, "/v0/admin/login", body, "").Code)
}

func TestAuthMiddleware(t *testing.T) {
	f := newFixture(t, nil)

	assert.Equal(t, http.StatusUnauthorized, f.do(t, http.MethodGet, "/v0/admin/accounts", nil, "").Code)
	assert.Equal(t, http.StatusUnauthorized, f.do(t, http.MethodGet, "/v0/admin/accounts", nil, "garbage").Code)

	session, err := security.IssueSessionToken(testJWTSecret, "", "auth|user", "", "", time.Hour, time.Now())
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, f.do(t, http.MethodGet, "/v0/admin/accounts", nil, session).Code, "end-user tokens are not admin tokens")

	token := f.token(t)
	require.NoError(t, f.conn.Model(&models.Admin{}).Where("id = ?", f.admin.ID).Update("active", false).Error)
	assert.Equal(t, http.StatusForbidden, f.do(t, http.MethodGet, "/v0/admin/accounts", nil, token).Code)
}

func TestReview_ApproveUpgradesOnce(t *testing.T) {
	f := newFixture(t, nil)
	token := f.token(t)
	acc := f.createAccount(t, "auth|payer", "payer@example.com")
	tx := f.createTransaction(t, acc.ID, models.TransactionMethodManual, models.TransactionStatusPending, "TXN123")

	w := f.do(t, http.MethodGet, "/v0/admin/transactions/pending", nil, token)
	require.Equal(t, http.StatusOK, w.Code)
	var pending struct {
		Transactions []map[string]any `json:"transactions"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &pending))
	require.Len(t, pending.Transactions, 1)
	assert.Equal(t, "payer@example.com", pending.Transactions[0]["account_email"])
	assert.Equal(t, "TXN123", pending.Transactions[0]["external_reference"])

	reviewPath := idPath("transactions", tx.ID) + "/review"
	w = f.do(t, http.MethodPost, reviewPath, gin.H{"decision": "approve"}, token)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	stored, err := f.ledger.Get(context.Background(), tx.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TransactionStatusCompleted, stored.Status)
	require.NotNil(t, stored.ReviewedBy)
	assert.Equal(t, f.admin.ID, *stored.ReviewedBy)

	upgraded, err := f.accounts.Get(context.Background(), acc.ID)
	require.NoError(t, err)
	assert.Equal(t, "pro", upgraded.Plan)

	assert.Equal(t, http.StatusConflict, f.do(t, http.MethodPost, reviewPath, gin.H{"decision": "approve"}, token).Code)

	w = f.do(t, http.MethodGet, "/v0/admin/transactions/pending", nil, token)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &pending))
	assert.Empty(t, pending.Transactions)
}

func TestReview_RejectAndErrors(t *testing.T) {
	f := newFixture(t, nil)
	token := f.token(t)
	acc := f.createAccount(t, "auth|rejected", "rejected@example.com")
	manual := f.createTransaction(t, acc.ID, models.TransactionMethodManual, models.TransactionStatusPending, "BANK-9")
	card := f.createTransaction(t, acc.ID, models.TransactionMethodCardCheckout, models.TransactionStatusCompleted, "cs_test_1")

	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodPost, idPath("transactions", manual.ID)+"/review", gin.H{"decision": "maybe"}, token).Code)
	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodPost, "/v0/admin/transactions/abc/review", gin.H{"decision": "approve"}, token).Code)
	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodPost, idPath("transactions", 9999)+"/review", gin.H{"decision": "approve"}, token).Code)
	assert.Equal(t, http.StatusConflict, f.do(t, http.MethodPost, idPath("transactions", card.ID)+"/review", gin.H{"decision": "approve"}, token).Code)

	w := f.do(t, http.MethodPost, idPath("transactions", manual.ID)+"/review", gin.H{"decision": "reject"}, token)
	require.Equal(t, http.StatusOK, w.Code)
	stored, err := f.ledger.Get(context.Background(), manual.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TransactionStatusFailed, stored.Status)

	unchanged, err := f.accounts.Get(context.Background(), acc.ID)
	require.NoError(t, err)
	assert.Equal(t, "free", unchanged.Plan)

	w = f.do(t, http.MethodGet, "/v0/admin/transactions?method=card_checkout", nil, token)
	require.Equal(t, http.StatusOK, w.Code)
	var list struct {
		Transactions []map[string]any `json:"transactions"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Len(t, list.Transactions, 1)
	assert.Equal(t, "cs_test_1", list.Transactions[0]["external_reference"])

	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodGet, "/v0/admin/transactions?status=refunded", nil, token).Code)
}

func TestAccounts_Management(t *testing.T) {
	f := newFixture(t, nil)
	token := f.token(t)
	acc := f.createAccount(t, "auth|acme", "owner@acme.test")
	f.createAccount(t, "auth|other", "someone@else.test")

	w := f.do(t, http.MethodGet, "/v0/admin/accounts?search=ACME", nil, token)
	require.Equal(t, http.StatusOK, w.Code)
	var list struct {
		Accounts []map[string]any `json:"accounts"`
		Total    int64            `json:"total"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	assert.Equal(t, int64(1), list.Total)
	require.Len(t, list.Accounts, 1)
	assert.Equal(t, "owner@acme.test", list.Accounts[0]["email"])

	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, idPath("accounts", 9999), nil, token).Code)
	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodPut, idPath("accounts", acc.ID)+"/plan", gin.H{"plan": "platinum"}, token).Code)

	w = f.do(t, http.MethodPut, idPath("accounts", acc.ID)+"/plan", gin.H{"plan": "enterprise"}, token)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	overrides, err := f.ledger.List(context.Background(), ledger.ListFilter{AccountID: acc.ID, Method: models.TransactionMethodAdminOverride})
	require.NoError(t, err)
	require.Len(t, overrides, 1)
	assert.Equal(t, models.TransactionStatusCompleted, overrides[0].Status)
	assert.Equal(t, "enterprise", overrides[0].Plan)

	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodPut, idPath("accounts", 9999)+"/plan", gin.H{"plan": "pro"}, token).Code)
	none, err := f.ledger.List(context.Background(), ledger.ListFilter{AccountID: 9999})
	require.NoError(t, err)
	assert.Empty(t, none, "failed override leaves no transaction")

	w = f.do(t, http.MethodPut, idPath("accounts", acc.ID)+"/overrides", gin.H{"daily_call_override": 50, "max_call_seconds_override": nil}, token)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodPut, idPath("accounts", acc.ID)+"/overrides", gin.H{"daily_call_override": -2}, token).Code)

	w = f.do(t, http.MethodGet, idPath("accounts", acc.ID), nil, token)
	require.Equal(t, http.StatusOK, w.Code)
	var detail struct {
		Plan         string            `json:"plan"`
		Capabilities plan.Capabilities `json:"capabilities"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &detail))
	assert.Equal(t, "enterprise", detail.Plan)
	assert.Equal(t, 50, detail.Capabilities.MaxCallsPerDay)
	assert.True(t, detail.Capabilities.AllowAdvancedAnalytics)

	require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, idPath("accounts", acc.ID)+"/disable", nil, token).Code)
	disabled, err := f.accounts.Get(context.Background(), acc.ID)
	require.NoError(t, err)
	assert.True(t, disabled.Disabled)
	require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, idPath("accounts", acc.ID)+"/enable", nil, token).Code)
	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodPost, idPath("accounts", 9999)+"/disable", nil, token).Code)
}

func TestUsage_ListAndFingerprint(t *testing.T) {
	f := newFixture(t, nil)
	token := f.token(t)
	ctx := context.Background()
	f.recorder.RecordAll(ctx, []identity.Key{
		{Type: identity.TypeIP, Value: "203.0.113.1"},
		{Type: identity.TypeFingerprint, Value: "fp-admin"},
	}, 30)
	f.recorder.RecordAll(ctx, []identity.Key{{Type: identity.TypeIP, Value: "203.0.113.1"}}, 30)

	w := f.do(t, http.MethodGet, "/v0/admin/usage?identity_type=ip", nil, token)
	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Period   string          `json:"period"`
		Counters []usage.Counter `json:"counters"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, f.recorder.CurrentPeriod(), resp.Period)
	require.Len(t, resp.Counters, 1)
	assert.Equal(t, int64(2), resp.Counters[0].Calls)
	assert.Equal(t, int64(60), resp.Counters[0].Seconds)

	w = f.do(t, http.MethodGet, "/v0/admin/usage?period=2020-01-01", nil, token)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Empty(t, resp.Counters)

	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodGet, "/v0/admin/usage?period=yesterday", nil, token).Code)
	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodGet, "/v0/admin/usage?identity_type=cookie", nil, token).Code)

	w = f.do(t, http.MethodGet, "/v0/admin/usage/fingerprints/fp-admin", nil, token)
	require.Equal(t, http.StatusOK, w.Code)
	var sighting usage.Sighting
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &sighting))
	assert.Equal(t, int64(1), sighting.TimesSeen)
}

func TestHealthz(t *testing.T) {
	f := newFixture(t, nil)
	w := f.do(t, http.MethodGet, "/healthz", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}
