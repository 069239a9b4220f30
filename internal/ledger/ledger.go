// Package ledger persists payment transactions and their status transitions.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/voxdesk/voxdesk/internal/metrics"
	"github.com/voxdesk/voxdesk/internal/models"
	"github.com/voxdesk/voxdesk/internal/plan"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var (
	// ErrNotFound reports a missing transaction or account.
	ErrNotFound = errors.New("ledger: not found")
	// ErrNotReviewable reports a transaction that is not a pending manual submission.
	ErrNotReviewable = errors.New("ledger: transaction is not reviewable")
	// ErrTerminalStatus reports a transition out of completed or failed.
	ErrTerminalStatus = errors.New("ledger: transaction already resolved")
	// ErrInvalidStatus reports an unknown target status or a transition to pending.
	ErrInvalidStatus = errors.New("ledger: invalid status")
	// ErrInvalid reports malformed creation parameters.
	ErrInvalid = errors.New("ledger: invalid transaction")
)

const (
	defaultCurrency     = "usd"
	maxReferenceLength  = 255
	defaultListPageSize = 100
)

// CreateParams describes a new transaction.
type CreateParams struct {
	AccountID         uint64
	Amount            float64
	Currency          string
	Method            models.TransactionMethod
	Status            models.TransactionStatus
	ExternalReference string
	Plan              string         // Tier granted on completion; empty means pro.
	Payload           datatypes.JSON // Raw processor event, optional.
	ReviewedBy        *uint64
}

// PendingWithAccount is a pending manual transaction joined with its account.
type PendingWithAccount struct {
	models.Transaction
	AccountEmail string `json:"account_email"`
	AccountName  string `json:"account_name"`
}

// ListFilter narrows admin transaction listings. Zero values match everything.
type ListFilter struct {
	AccountID uint64
	Method    models.TransactionMethod
	Status    models.TransactionStatus
	Limit     int
	Offset    int
}

// Ledger reads and writes the transactions table.
type Ledger struct {
	db      *gorm.DB
	nowFn   func() time.Time
	metrics *metrics.Metrics
}

// New constructs a Ledger.
func New(db *gorm.DB, m *metrics.Metrics) *Ledger {
	return &Ledger{db: db, nowFn: time.Now, metrics: m}
}

// WithTx returns a Ledger bound to tx, for pairing ledger writes with other writes in one transaction.
func (l *Ledger) WithTx(tx *gorm.DB) *Ledger {
	return &Ledger{db: tx, nowFn: l.nowFn, metrics: l.metrics}
}

// CreateTransaction validates p and inserts the row.
func (l *Ledger) CreateTransaction(ctx context.Context, p CreateParams) (*models.Transaction, error) {
	if p.AccountID == 0 {
		return nil, fmt.Errorf("%w: account_id is required", ErrInvalid)
	}
	if !p.Method.Valid() {
		return nil, fmt.Errorf("%w: unknown method %q", ErrInvalid, p.Method)
	}
	if !p.Status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalid, p.Status)
	}
	if p.Amount < 0 {
		return nil, fmt.Errorf("%w: amount must not be negative", ErrInvalid)
	}
	reference := strings.TrimSpace(p.ExternalReference)
	if len(reference) > maxReferenceLength {
		return nil, fmt.Errorf("%w: external_reference too long", ErrInvalid)
	}
	if p.Method != models.TransactionMethodAdminOverride && reference == "" {
		return nil, fmt.Errorf("%w: external_reference is required", ErrInvalid)
	}
	tier := plan.TierPro
	if strings.TrimSpace(p.Plan) != "" {
		parsed, ok := plan.ParseTier(p.Plan)
		if !ok {
			return nil, fmt.Errorf("%w: unknown plan %q", ErrInvalid, p.Plan)
		}
		tier = parsed
	}
	switch {
	case p.Method == models.TransactionMethodManual && tier != plan.TierPro:
		return nil, fmt.Errorf("%w: manual payments only grant %s", ErrInvalid, plan.TierPro)
	case p.Method == models.TransactionMethodCardCheckout && tier == plan.TierFree:
		return nil, fmt.Errorf("%w: card checkout cannot grant %s", ErrInvalid, plan.TierFree)
	}
	currency := strings.ToLower(strings.TrimSpace(p.Currency))
	if currency == "" {
		currency = defaultCurrency
	}

	var account models.Account
	if errFind := l.db.WithContext(ctx).Select("id").Take(&account, p.AccountID).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: account %d", ErrNotFound, p.AccountID)
		}
		return nil, fmt.Errorf("ledger: query account: %w", errFind)
	}

	now := l.nowFn().UTC()
	row := models.Transaction{
		AccountID:         p.AccountID,
		Amount:            p.Amount,
		Currency:          currency,
		Method:            p.Method,
		Status:            p.Status,
		ExternalReference: reference,
		Plan:              string(tier),
		Payload:           p.Payload,
		ReviewedBy:        p.ReviewedBy,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if p.Status.Terminal() {
		row.ResolvedAt = &now
	}
	if errCreate := l.db.WithContext(ctx).Omit("Account").Create(&row).Error; errCreate != nil {
		return nil, fmt.Errorf("ledger: create transaction: %w", errCreate)
	}
	l.metrics.TransactionCreated(string(row.Method), string(row.Status))
	return &row, nil
}

// Get returns the transaction with id.
func (l *Ledger) Get(ctx context.Context, id uint64) (*models.Transaction, error) {
	var row models.Transaction
	if errFind := l.db.WithContext(ctx).Take(&row, id).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ledger: query transaction: %w", errFind)
	}
	return &row, nil
}

// GetReviewable returns the transaction with id when it is a pending manual submission.
func (l *Ledger) GetReviewable(ctx context.Context, id uint64) (*models.Transaction, error) {
	row, errGet := l.Get(ctx, id)
	if errGet != nil {
		return nil, errGet
	}
	if row.Method != models.TransactionMethodManual || row.Status != models.TransactionStatusPending {
		return nil, ErrNotReviewable
	}
	return row, nil
}

// GetPendingManualTransactions returns manual transactions awaiting review, newest first.
func (l *Ledger) GetPendingManualTransactions(ctx context.Context) ([]models.Transaction, error) {
	var rows []models.Transaction
	errFind := l.db.WithContext(ctx).
		Where("method = ? AND status = ?", models.TransactionMethodManual, models.TransactionStatusPending).
		Order("created_at DESC, id DESC").
		Find(&rows).Error
	if errFind != nil {
		return nil, fmt.Errorf("ledger: list pending: %w", errFind)
	}
	return rows, nil
}

// ListPendingManualWithAccounts returns pending manual transactions with the submitting account's email and name.
func (l *Ledger) ListPendingManualWithAccounts(ctx context.Context) ([]PendingWithAccount, error) {
	var rows []models.Transaction
	errFind := l.db.WithContext(ctx).
		Preload("Account").
		Where("method = ? AND status = ?", models.TransactionMethodManual, models.TransactionStatusPending).
		Order("created_at DESC, id DESC").
		Find(&rows).Error
	if errFind != nil {
		return nil, fmt.Errorf("ledger: list pending with accounts: %w", errFind)
	}
	out := make([]PendingWithAccount, 0, len(rows))
	for _, row := range rows {
		out = append(out, PendingWithAccount{
			Transaction:  row,
			AccountEmail: row.Account.Email,
			AccountName:  row.Account.Name,
		})
	}
	return out, nil
}

// ListByAccount returns the transactions of accountID, newest first.
func (l *Ledger) ListByAccount(ctx context.Context, accountID uint64) ([]models.Transaction, error) {
	var rows []models.Transaction
	errFind := l.db.WithContext(ctx).
		Where("account_id = ?", accountID).
		Order("created_at DESC, id DESC").
		Find(&rows).Error
	if errFind != nil {
		return nil, fmt.Errorf("ledger: list by account: %w", errFind)
	}
	return rows, nil
}

// List returns transactions matching filter, newest first.
func (l *Ledger) List(ctx context.Context, filter ListFilter) ([]models.Transaction, error) {
	q := l.db.WithContext(ctx).Model(&models.Transaction{})
	if filter.AccountID != 0 {
		q = q.Where("account_id = ?", filter.AccountID)
	}
	if filter.Method != "" {
		q = q.Where("method = ?", filter.Method)
	}
	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}
	limit := filter.Limit
	if limit <= 0 || limit > 1000 {
		limit = defaultListPageSize
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	var rows []models.Transaction
	if errFind := q.Order("created_at DESC, id DESC").Limit(limit).Offset(offset).Find(&rows).Error; errFind != nil {
		return nil, fmt.Errorf("ledger: list transactions: %w", errFind)
	}
	return rows, nil
}

// FindByExternalReference returns the transaction recorded for method and ref, or ErrNotFound.
func (l *Ledger) FindByExternalReference(ctx context.Context, method models.TransactionMethod, ref string) (*models.Transaction, error) {
	var row models.Transaction
	errFind := l.db.WithContext(ctx).
		Where("method = ? AND external_reference = ?", method, strings.TrimSpace(ref)).
		Order("id ASC").
		Take(&row).Error
	if errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ledger: query by reference: %w", errFind)
	}
	return &row, nil
}

// UpdateTransactionStatus moves transaction id out of pending into newStatus.
// The update is conditional on the row still being pending, so of two concurrent callers exactly
// one succeeds and the other observes ErrTerminalStatus.
func (l *Ledger) UpdateTransactionStatus(ctx context.Context, id uint64, newStatus models.TransactionStatus) (*models.Transaction, error) {
	return l.resolve(ctx, id, newStatus, nil)
}

// Resolve is UpdateTransactionStatus that also records the reviewing admin.
func (l *Ledger) Resolve(ctx context.Context, id uint64, newStatus models.TransactionStatus, reviewer uint64) (*models.Transaction, error) {
	return l.resolve(ctx, id, newStatus, &reviewer)
}

func (l *Ledger) resolve(ctx context.Context, id uint64, newStatus models.TransactionStatus, reviewer *uint64) (*models.Transaction, error) {
	if !newStatus.Terminal() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, newStatus)
	}
	now := l.nowFn().UTC()
	updates := map[string]any{
		"status":      newStatus,
		"resolved_at": now,
		"updated_at":  now,
	}
	if reviewer != nil && *reviewer != 0 {
		updates["reviewed_by"] = *reviewer
	}
	res := l.db.WithContext(ctx).
		Model(&models.Transaction{}).
		Where("id = ? AND status = ?", id, models.TransactionStatusPending).
		Updates(updates)
	if res.Error != nil {
		return nil, fmt.Errorf("ledger: update status: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		if _, errGet := l.Get(ctx, id); errGet != nil {
			return nil, errGet
		}
		return nil, ErrTerminalStatus
	}
	return l.Get(ctx, id)
}
