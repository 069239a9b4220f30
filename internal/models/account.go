package models

import "time"

// Account represents a platform user linked to an external auth provider.
type Account struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	AuthProviderID string `gorm:"type:varchar(255);not null;uniqueIndex"` // Subject issued by the auth provider.
	Email          string `gorm:"type:text;index"`                        // Email address.
	Name           string `gorm:"type:text"`                              // Display name.

	Plan string `gorm:"type:varchar(32);not null;default:'free';index"` // Current plan tier.

	DailyCallOverride      *int `gorm:"type:integer"` // Optional per-account calls/day override.
	MaxCallSecondsOverride *int `gorm:"type:integer"` // Optional per-account call duration override.

	Disabled bool `gorm:"not null;default:false"` // Explicit disable flag.

	LastSeenAt *time.Time // Last authenticated request.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}
