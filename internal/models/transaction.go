package models

import (
	"time"

	"gorm.io/datatypes"
)

// TransactionMethod identifies how a payment was made.
type TransactionMethod string

// TransactionMethod constants define supported payment methods.
const (
	// TransactionMethodCardCheckout is a card-processor checkout completion.
	TransactionMethodCardCheckout TransactionMethod = "card_checkout"
	// TransactionMethodManual is a bank transfer awaiting admin review.
	TransactionMethodManual TransactionMethod = "manual"
	// TransactionMethodAdminOverride is a plan change granted by an operator.
	TransactionMethodAdminOverride TransactionMethod = "admin_override"
)

// Valid reports whether m is a known method.
func (m TransactionMethod) Valid() bool {
	switch m {
	case TransactionMethodCardCheckout, TransactionMethodManual, TransactionMethodAdminOverride:
		return true
	default:
		return false
	}
}

// TransactionStatus represents the lifecycle state of a transaction.
type TransactionStatus string

// TransactionStatus constants define transaction lifecycle states.
const (
	// TransactionStatusPending marks a transaction awaiting resolution.
	TransactionStatusPending TransactionStatus = "pending"
	// TransactionStatusCompleted marks a paid transaction.
	TransactionStatusCompleted TransactionStatus = "completed"
	// TransactionStatusFailed marks a rejected or failed transaction.
	TransactionStatusFailed TransactionStatus = "failed"
)

// Valid reports whether s is a known status.
func (s TransactionStatus) Valid() bool {
	switch s {
	case TransactionStatusPending, TransactionStatusCompleted, TransactionStatusFailed:
		return true
	default:
		return false
	}
}

// Terminal reports whether no further transition is permitted out of s.
func (s TransactionStatus) Terminal() bool {
	return s == TransactionStatusCompleted || s == TransactionStatusFailed
}

// Transaction records a payment attempt and its resolution.
type Transaction struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	AccountID uint64  `gorm:"not null;index"`       // Paying account ID.
	Account   Account `gorm:"foreignKey:AccountID"` // Paying account record.

	Amount   float64 `gorm:"type:decimal(10,2);not null;default:0"`  // Amount in major currency units.
	Currency string  `gorm:"type:varchar(8);not null;default:'usd'"` // ISO currency code.

	Method TransactionMethod `gorm:"type:varchar(32);not null;index:idx_transactions_method_status"` // Payment method.
	Status TransactionStatus `gorm:"type:varchar(16);not null;index:idx_transactions_method_status"` // Lifecycle status.

	ExternalReference string `gorm:"type:varchar(255);index"`                 // Bank reference or checkout session ID.
	Plan              string `gorm:"type:varchar(32);not null;default:'pro'"` // Tier granted on completion.

	Payload datatypes.JSON `gorm:"type:jsonb"` // Raw processor event, when any.

	ReviewedBy *uint64    `gorm:"index"` // Admin who resolved the transaction.
	ResolvedAt *time.Time `gorm:"index"` // Time the transaction reached a terminal state.

	CreatedAt time.Time `gorm:"not null;autoCreateTime;index"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"`       // Last update timestamp.
}
