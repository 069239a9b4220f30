package models

import (
	"time"

	"gorm.io/datatypes"
)

// ProviderKey stores a third-party credential supplied by an account (BYOK).
type ProviderKey struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	AccountID uint64 `gorm:"not null;uniqueIndex:idx_provider_keys_account_provider,priority:1"`                  // Owning account ID.
	Provider  string `gorm:"type:varchar(64);not null;uniqueIndex:idx_provider_keys_account_provider,priority:2"` // Normalized provider name.

	Label  string `gorm:"type:text"`          // Display label.
	APIKey string `gorm:"type:text;not null"` // Provider API key.

	Metadata datatypes.JSON `gorm:"type:jsonb"` // Provider-specific settings such as voice or region.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}
