package ledger

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/voxdesk/voxdesk/internal/db"
	"github.com/voxdesk/voxdesk/internal/models"
	"gorm.io/gorm"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	conn, err := db.Open("file:" + filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	require.NoError(t, db.Migrate(conn))
	return conn
}

func createAccount(t *testing.T, conn *gorm.DB, subject, email string) models.Account {
	t.Helper()
	account := models.Account{AuthProviderID: subject, Email: email, Name: "Test " + subject, Plan: "free"}
	require.NoError(t, conn.Create(&account).Error)
	return account
}

func manualParams(accountID uint64, ref string) CreateParams {
	return CreateParams{
		AccountID:         accountID,
		Amount:            49,
		Method:            models.TransactionMethodManual,
		Status:            models.TransactionStatusPending,
		ExternalReference: ref,
	}
}

func TestCreateTransaction_Defaults(t *testing.T) {
	conn := openTestDB(t)
	account := createAccount(t, conn, "auth|a", "a@example.com")
	l := New(conn, nil)

	row, err := l.CreateTransaction(context.Background(), manualParams(account.ID, "  TXN123 "))
	require.NoError(t, err)
	assert.NotZero(t, row.ID)
	assert.Equal(t, "TXN123", row.ExternalReference)
	assert.Equal(t, "usd", row.Currency)
	assert.Equal(t, "pro", row.Plan)
	assert.Nil(t, row.ResolvedAt)

	completed, err := l.CreateTransaction(context.Background(), CreateParams{
		AccountID:         account.ID,
		Amount:            99,
		Currency:          "EUR",
		Method:            models.TransactionMethodCardCheckout,
		Status:            models.TransactionStatusCompleted,
		ExternalReference: "cs_1",
		Plan:              "Enterprise",
	})
	require.NoError(t, err)
	assert.Equal(t, "eur", completed.Currency)
	assert.Equal(t, "enterprise", completed.Plan)
	assert.NotNil(t, completed.ResolvedAt)
}

func TestCreateTransaction_Validation(t *testing.T) {
	conn := openTestDB(t)
	account := createAccount(t, conn, "auth|v", "v@example.com")
	l := New(conn, nil)
	ctx := context.Background()

	cases := map[string]CreateParams{
		"missing account":   {Method: models.TransactionMethodManual, Status: models.TransactionStatusPending, ExternalReference: "x"},
		"unknown method":    {AccountID: account.ID, Method: "cash", Status: models.TransactionStatusPending, ExternalReference: "x"},
		"unknown status":    {AccountID: account.ID, Method: models.TransactionMethodManual, Status: "refunded", ExternalReference: "x"},
		"negative amount":   {AccountID: account.ID, Amount: -1, Method: models.TransactionMethodManual, Status: models.TransactionStatusPending, ExternalReference: "x"},
		"missing reference": {AccountID: account.ID, Method: models.TransactionMethodManual, Status: models.TransactionStatusPending, ExternalReference: "   "},
		"unknown plan":      {AccountID: account.ID, Method: models.TransactionMethodManual, Status: models.TransactionStatusPending, ExternalReference: "x", Plan: "gold"},
		"manual free":       {AccountID: account.ID, Method: models.TransactionMethodManual, Status: models.TransactionStatusPending, ExternalReference: "x", Plan: "free"},
		"manual enterprise": {AccountID: account.ID, Method: models.TransactionMethodManual, Status: models.TransactionStatusPending, ExternalReference: "x", Plan: "enterprise"},
		"card free":         {AccountID: account.ID, Method: models.TransactionMethodCardCheckout, Status: models.TransactionStatusCompleted, ExternalReference: "cs_x", Plan: "free"},
	}
	for name, params := range cases {
		_, err := l.CreateTransaction(ctx, params)
		assert.ErrorIs(t, err, ErrInvalid, name)
	}

	_, err := l.CreateTransaction(ctx, manualParams(account.ID+100, "x"))
	assert.ErrorIs(t, err, ErrNotFound)

	var count int64
	require.NoError(t, conn.Model(&models.Transaction{}).Count(&count).Error)
	assert.Zero(t, count, "rejected input must not write")
}

func TestGetPendingManualTransactions(t *testing.T) {
	conn := openTestDB(t)
	alice := createAccount(t, conn, "auth|alice", "alice@example.com")
	bob := createAccount(t, conn, "auth|bob", "bob@example.com")
	l := New(conn, nil)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	step := 0
	l.nowFn = func() time.Time {
		step++
		return base.Add(time.Duration(step) * time.Minute)
	}

	first, err := l.CreateTransaction(ctx, manualParams(alice.ID, "A-1"))
	require.NoError(t, err)
	_, err = l.CreateTransaction(ctx, CreateParams{
		AccountID:         alice.ID,
		Method:            models.TransactionMethodCardCheckout,
		Status:            models.TransactionStatusCompleted,
		ExternalReference: "cs_x",
	})
	require.NoError(t, err)
	second, err := l.CreateTransaction(ctx, manualParams(bob.ID, "B-1"))
	require.NoError(t, err)
	resolved, err := l.CreateTransaction(ctx, manualParams(bob.ID, "B-2"))
	require.NoError(t, err)
	_, err = l.UpdateTransactionStatus(ctx, resolved.ID, models.TransactionStatusFailed)
	require.NoError(t, err)

	pending, err := l.GetPendingManualTransactions(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, second.ID, pending[0].ID)
	assert.Equal(t, first.ID, pending[1].ID)

	withAccounts, err := l.ListPendingManualWithAccounts(ctx)
	require.NoError(t, err)
	require.Len(t, withAccounts, 2)
	assert.Equal(t, "bob@example.com", withAccounts[0].AccountEmail)
	assert.Equal(t, "Test auth|alice", withAccounts[1].AccountName)

	mine, err := l.ListByAccount(ctx, bob.ID)
	require.NoError(t, err)
	assert.Len(t, mine, 2)

	failed, err := l.List(ctx, ListFilter{Status: models.TransactionStatusFailed})
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, resolved.ID, failed[0].ID)
}

func TestUpdateTransactionStatus_Transitions(t *testing.T) {
	conn := openTestDB(t)
	account := createAccount(t, conn, "auth|u", "u@example.com")
	l := New(conn, nil)
	ctx := context.Background()

	row, err := l.CreateTransaction(ctx, manualParams(account.ID, "TXN9"))
	require.NoError(t, err)

	_, err = l.UpdateTransactionStatus(ctx, row.ID, models.TransactionStatusPending)
	assert.ErrorIs(t, err, ErrInvalidStatus)
	_, err = l.UpdateTransactionStatus(ctx, row.ID, "refunded")
	assert.ErrorIs(t, err, ErrInvalidStatus)

	updated, err := l.Resolve(ctx, row.ID, models.TransactionStatusCompleted, 42)
	require.NoError(t, err)
	assert.Equal(t, models.TransactionStatusCompleted, updated.Status)
	require.NotNil(t, updated.ResolvedAt)
	require.NotNil(t, updated.ReviewedBy)
	assert.Equal(t, uint64(42), *updated.ReviewedBy)

	_, err = l.UpdateTransactionStatus(ctx, row.ID, models.TransactionStatusFailed)
	assert.ErrorIs(t, err, ErrTerminalStatus)

	_, err = l.UpdateTransactionStatus(ctx, row.ID+999, models.TransactionStatusFailed)
	assert.ErrorIs(t, err, ErrNotFound)

	stored, err := l.Get(ctx, row.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TransactionStatusCompleted, stored.Status)
}

func TestUpdateTransactionStatus_ConcurrentResolveHasOneWinner(t *testing.T) {
	conn := openTestDB(t)
	account := createAccount(t, conn, "auth|race", "race@example.com")
	l := New(conn, nil)
	ctx := context.Background()

	row, err := l.CreateTransaction(ctx, manualParams(account.ID, "RACE"))
	require.NoError(t, err)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		terminal  int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			status := models.TransactionStatusCompleted
			if i%2 == 1 {
				status = models.TransactionStatusFailed
			}
			_, errUpdate := l.UpdateTransactionStatus(ctx, row.ID, status)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case errUpdate == nil:
				successes++
			case errors.Is(errUpdate, ErrTerminalStatus):
				terminal++
			}
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 1, successes)
	assert.Equal(t, 7, terminal)
}

func TestGetReviewable(t *testing.T) {
	conn := openTestDB(t)
	account := createAccount(t, conn, "auth|r", "r@example.com")
	l := New(conn, nil)
	ctx := context.Background()

	manual, err := l.CreateTransaction(ctx, manualParams(account.ID, "M-1"))
	require.NoError(t, err)
	card, err := l.CreateTransaction(ctx, CreateParams{
		AccountID:         account.ID,
		Method:            models.TransactionMethodCardCheckout,
		Status:            models.TransactionStatusPending,
		ExternalReference: "cs_pending",
	})
	require.NoError(t, err)

	got, err := l.GetReviewable(ctx, manual.ID)
	require.NoError(t, err)
	assert.Equal(t, manual.ID, got.ID)

	_, err = l.GetReviewable(ctx, card.ID)
	assert.ErrorIs(t, err, ErrNotReviewable)

	_, err = l.UpdateTransactionStatus(ctx, manual.ID, models.TransactionStatusFailed)
	require.NoError(t, err)
	_, err = l.GetReviewable(ctx, manual.ID)
	assert.ErrorIs(t, err, ErrNotReviewable)

	_, err = l.GetReviewable(ctx, 9999)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFindByExternalReference(t *testing.T) {
	conn := openTestDB(t)
	account := createAccount(t, conn, "auth|f", "f@example.com")
	l := New(conn, nil)
	ctx := context.Background()

	_, err := l.FindByExternalReference(ctx, models.TransactionMethodCardCheckout, "cs_42")
	assert.ErrorIs(t, err, ErrNotFound)

	created, err := l.CreateTransaction(ctx, CreateParams{
		AccountID:         account.ID,
		Amount:            29,
		Method:            models.TransactionMethodCardCheckout,
		Status:            models.TransactionStatusCompleted,
		ExternalReference: "cs_42",
	})
	require.NoError(t, err)

	found, err := l.FindByExternalReference(ctx, models.TransactionMethodCardCheckout, "cs_42")
	require.NoError(t, err)
	assert.Equal(t, created.ID, found.ID)

	_, err = l.FindByExternalReference(ctx, models.TransactionMethodManual, "cs_42")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestWithTx_RollsBackWithEnclosingTransaction(t *testing.T) {
	conn := openTestDB(t)
	account := createAccount(t, conn, "auth|tx", "tx@example.com")
	l := New(conn, nil)
	ctx := context.Background()

	errTx := conn.Transaction(func(tx *gorm.DB) error {
		if _, err := l.WithTx(tx).CreateTransaction(ctx, manualParams(account.ID, "ROLLBACK")); err != nil {
			return err
		}
		return assert.AnError
	})
	require.ErrorIs(t, errTx, assert.AnError)

	rows, err := l.ListByAccount(ctx, account.ID)
	require.NoError(t, err)
	assert.Empty(t, rows)
}
