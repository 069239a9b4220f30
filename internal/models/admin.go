package models

import "time"

// Admin represents an operator allowed to reconcile payments and manage accounts.
type Admin struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	Email    string `gorm:"type:varchar(255);not null;uniqueIndex"` // Login email.
	Password string `gorm:"type:text;not null"`                     // Bcrypt password hash.

	TOTPSecret string `gorm:"type:text"` // TOTP secret; empty until enrolled.

	Active bool `gorm:"not null;default:true"` // Whether the admin can sign in.

	LastLoginAt *time.Time // Last successful login.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}
