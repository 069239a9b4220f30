package models

import "time"

// UsageCounter accumulates call seconds and call count for one identity key in one period.
type UsageCounter struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	IdentityType  string `gorm:"type:varchar(16);not null;uniqueIndex:idx_usage_counters_key_period,priority:1"`       // user_id, ip or fingerprint.
	IdentityValue string `gorm:"type:varchar(255);not null;uniqueIndex:idx_usage_counters_key_period,priority:2"`      // Opaque identity value.
	Period        string `gorm:"type:varchar(10);not null;uniqueIndex:idx_usage_counters_key_period,priority:3;index"` // Accounting day, YYYY-MM-DD.

	Seconds int64 `gorm:"not null;default:0"` // Accumulated call seconds.
	Calls   int64 `gorm:"not null;default:0"` // Accumulated call count.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}

// FingerprintSighting counts lifetime sightings of a device fingerprint.
type FingerprintSighting struct {
	Fingerprint string `gorm:"type:varchar(255);primaryKey"` // Opaque fingerprint value.

	TimesSeen int64 `gorm:"not null;default:0"` // Lifetime sighting count.

	FirstSeenAt time.Time `gorm:"not null"` // First sighting.
	LastSeenAt  time.Time `gorm:"not null"` // Most recent sighting.
}

// CallLog records one reported call for an authenticated account.
type CallLog struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	AccountID uint64 `gorm:"not null;index:idx_call_logs_account_ended,priority:1"` // Calling account ID.

	Seconds     int64  `gorm:"not null;default:0"` // Call duration in seconds.
	IP          string `gorm:"type:varchar(64)"`   // Resolved client IP.
	Fingerprint string `gorm:"type:varchar(255)"`  // Client fingerprint, when supplied.

	EndedAt time.Time `gorm:"not null;index:idx_call_logs_account_ended,priority:2"` // Call end time.
}
