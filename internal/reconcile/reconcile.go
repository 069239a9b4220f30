// Package reconcile lets operators approve or reject manual payment submissions.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/voxdesk/voxdesk/internal/account"
	"github.com/voxdesk/voxdesk/internal/ledger"
	"github.com/voxdesk/voxdesk/internal/metrics"
	"github.com/voxdesk/voxdesk/internal/models"
	"github.com/voxdesk/voxdesk/internal/plan"

	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Decision is an operator's verdict on a pending submission.
type Decision string

const (
	// DecisionApprove completes the transaction and moves the account to pro.
	DecisionApprove Decision = "approve"
	// DecisionReject fails the transaction.
	DecisionReject Decision = "reject"
)

// ErrInvalidDecision reports a decision other than approve or reject.
var ErrInvalidDecision = errors.New("reconcile: decision must be approve or reject")

// ParseDecision normalizes s.
func ParseDecision(s string) (Decision, error) {
	switch Decision(strings.ToLower(strings.TrimSpace(s))) {
	case DecisionApprove:
		return DecisionApprove, nil
	case DecisionReject:
		return DecisionReject, nil
	default:
		return "", ErrInvalidDecision
	}
}

// Transactions is the ledger surface reconciliation needs.
type Transactions interface {
	GetReviewable(ctx context.Context, id uint64) (*models.Transaction, error)
	Resolve(ctx context.Context, id uint64, newStatus models.TransactionStatus, reviewer uint64) (*models.Transaction, error)
}

// PlanSetter changes an account's tier.
type PlanSetter interface {
	SetPlan(ctx context.Context, id uint64, tier string) (*models.Account, error)
}

// Service applies review decisions.
type Service struct {
	db           *gorm.DB
	transactions Transactions
	bind         func(tx *gorm.DB) (Transactions, PlanSetter)
	metrics      *metrics.Metrics
}

// NewService constructs a Service. The plan write and the status change share one database transaction.
func NewService(conn *gorm.DB, l *ledger.Ledger, accounts *account.Service, m *metrics.Metrics) *Service {
	return &Service{
		db:           conn,
		transactions: l,
		bind: func(tx *gorm.DB) (Transactions, PlanSetter) {
			return l.WithTx(tx), accounts.WithTx(tx)
		},
		metrics: m,
	}
}

// ReviewTransaction approves or rejects pending manual transaction id on behalf of reviewer.
//
// Approval sets the account to pro and completes the transaction atomically. If another reviewer
// resolved the row first the plan write rolls back and the call fails with ledger.ErrNotReviewable.
func (s *Service) ReviewTransaction(ctx context.Context, id uint64, decision Decision, reviewer uint64) (*models.Transaction, error) {
	if decision != DecisionApprove && decision != DecisionReject {
		return nil, ErrInvalidDecision
	}

	txn, errGet := s.transactions.GetReviewable(ctx, id)
	if errGet != nil {
		s.metrics.TransactionReviewed(string(decision), outcome(errGet))
		return nil, errGet
	}

	target := models.TransactionStatusFailed
	if decision == DecisionApprove {
		target = models.TransactionStatusCompleted
	}

	var (
		updated *models.Transaction
		errPlan error
	)
	errTx := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		transactions, accounts := s.bind(tx)
		if decision == DecisionApprove {
			if _, errPlan = accounts.SetPlan(ctx, txn.AccountID, string(plan.TierPro)); errPlan != nil {
				return errPlan
			}
		}
		var errResolve error
		updated, errResolve = transactions.Resolve(ctx, txn.ID, target, reviewer)
		return errResolve
	})
	if errTx != nil {
		s.metrics.TransactionReviewed(string(decision), outcome(errTx))
		switch {
		case errPlan != nil:
			return nil, fmt.Errorf("reconcile: upgrade account %d: %w", txn.AccountID, errPlan)
		case errors.Is(errTx, ledger.ErrTerminalStatus):
			// Lost a race with another reviewer.
			return nil, ledger.ErrNotReviewable
		default:
			return nil, fmt.Errorf("reconcile: resolve transaction %d: %w", txn.ID, errTx)
		}
	}

	s.metrics.TransactionReviewed(string(decision), "ok")
	log.WithFields(log.Fields{
		"transaction_id": updated.ID,
		"account_id":     updated.AccountID,
		"decision":       decision,
		"reviewer":       reviewer,
	}).Info("reconcile: transaction reviewed")
	return updated, nil
}

func outcome(err error) string {
	switch {
	case errors.Is(err, ledger.ErrNotFound):
		return "not_found"
	case errors.Is(err, ledger.ErrNotReviewable), errors.Is(err, ledger.ErrTerminalStatus):
		return "not_reviewable"
	default:
		return "error"
	}
}
