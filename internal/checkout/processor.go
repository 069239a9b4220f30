package checkout

import (
	"context"
	"errors"
	"fmt"

	"github.com/voxdesk/voxdesk/internal/account"
	"github.com/voxdesk/voxdesk/internal/db"
	"github.com/voxdesk/voxdesk/internal/ledger"
	"github.com/voxdesk/voxdesk/internal/models"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Result reports what Process did with an event.
type Result struct {
	Transaction *models.Transaction
	Duplicate   bool // The session was already recorded by an earlier delivery.
}

// Processor records completed checkouts and upgrades the paying account.
type Processor struct {
	db       *gorm.DB
	ledger   *ledger.Ledger
	accounts *account.Service
}

// NewProcessor constructs a Processor.
func NewProcessor(conn *gorm.DB, l *ledger.Ledger, accounts *account.Service) *Processor {
	return &Processor{db: conn, ledger: l, accounts: accounts}
}

// Process inserts a completed card-checkout transaction for evt and sets the account's plan, in one
// database transaction. A session already recorded is reported as a duplicate without side effects.
func (p *Processor) Process(ctx context.Context, evt *Event) (Result, error) {
	if evt == nil {
		return Result{}, ErrInvalidPayload
	}
	var result Result
	errTx := p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		txLedger := p.ledger.WithTx(tx)

		existing, errFind := txLedger.FindByExternalReference(ctx, models.TransactionMethodCardCheckout, evt.SessionID)
		switch {
		case errFind == nil:
			result = Result{Transaction: existing, Duplicate: true}
			return nil
		case !errors.Is(errFind, ledger.ErrNotFound):
			return errFind
		}

		row, errCreate := txLedger.CreateTransaction(ctx, ledger.CreateParams{
			AccountID:         evt.AccountID,
			Amount:            evt.Amount,
			Currency:          evt.Currency,
			Method:            models.TransactionMethodCardCheckout,
			Status:            models.TransactionStatusCompleted,
			ExternalReference: evt.SessionID,
			Plan:              string(evt.Plan),
			Payload:           datatypes.JSON(evt.Raw),
		})
		if errCreate != nil {
			return errCreate
		}
		if _, errPlan := p.accounts.WithTx(tx).SetPlan(ctx, evt.AccountID, string(evt.Plan)); errPlan != nil {
			return errPlan
		}
		result = Result{Transaction: row}
		return nil
	})
	if errTx != nil {
		// A concurrent delivery of the same session won the unique index.
		if db.IsDuplicateKeyErr(errTx) {
			existing, errFind := p.ledger.FindByExternalReference(ctx, models.TransactionMethodCardCheckout, evt.SessionID)
			if errFind == nil {
				return Result{Transaction: existing, Duplicate: true}, nil
			}
		}
		return Result{}, fmt.Errorf("checkout: process session %s: %w", evt.SessionID, errTx)
	}
	return result, nil
}
