package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/voxdesk/voxdesk/internal/config"
	"github.com/voxdesk/voxdesk/internal/models"
	"github.com/voxdesk/voxdesk/internal/security"
	"gorm.io/gorm"

	log "github.com/sirupsen/logrus"
)

// ErrBootstrapIncomplete reports that no admin exists and no bootstrap credentials were configured.
var ErrBootstrapIncomplete = errors.New("app: no admin exists; set ADMIN_EMAIL and ADMIN_PASSWORD")

const minAdminPasswordLength = 8

// HasAdminInitialized reports whether the system has at least one admin account.
func HasAdminInitialized(conn *gorm.DB) (bool, error) {
	if conn == nil {
		return false, fmt.Errorf("nil db")
	}
	if !conn.Migrator().HasTable(&models.Admin{}) {
		return false, nil
	}
	var count int64
	if errCount := conn.Model(&models.Admin{}).Count(&count).Error; errCount != nil {
		return false, errCount
	}
	return count > 0, nil
}

// BootstrapAdmin creates the first admin from cfg when the admins table is empty.
// It returns the created admin, or nil when one already existed.
func BootstrapAdmin(ctx context.Context, conn *gorm.DB, cfg config.AdminBootstrapConfig) (*models.Admin, error) {
	initialized, errInit := HasAdminInitialized(conn)
	if errInit != nil {
		return nil, errInit
	}
	if initialized {
		return nil, nil
	}
	email := strings.ToLower(strings.TrimSpace(cfg.Email))
	if email == "" || cfg.Password == "" {
		return nil, ErrBootstrapIncomplete
	}
	if len(cfg.Password) < minAdminPasswordLength {
		return nil, fmt.Errorf("app: admin password must be at least %d characters", minAdminPasswordLength)
	}

	admin, secretURL, errCreate := CreateAdmin(ctx, conn, email, cfg.Password)
	if errCreate != nil {
		return nil, errCreate
	}
	log.WithFields(log.Fields{
		"email":      admin.Email,
		"enrollment": secretURL,
	}).Warn("app: bootstrap admin created; add the enrollment URL to an authenticator app")
	return admin, nil
}

// CreateAdmin stores an active admin with a hashed password and a fresh TOTP secret.
// It returns the otpauth:// enrollment URL for the secret.
func CreateAdmin(ctx context.Context, conn *gorm.DB, email, password string) (*models.Admin, string, error) {
	if conn == nil {
		return nil, "", fmt.Errorf("open database: nil connection")
	}
	hashedPassword, errHash := security.HashPassword(password)
	if errHash != nil {
		return nil, "", fmt.Errorf("hash password: %w", errHash)
	}
	key, errKey := security.GenerateTOTPKey(email)
	if errKey != nil {
		return nil, "", fmt.Errorf("generate totp secret: %w", errKey)
	}

	now := time.Now().UTC().Truncate(time.Second)
	admin := models.Admin{
		Email:      email,
		Password:   hashedPassword,
		TOTPSecret: key.Secret(),
		Active:     true,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if errCreate := conn.WithContext(ctx).Create(&admin).Error; errCreate != nil {
		return nil, "", fmt.Errorf("create admin: %w", errCreate)
	}
	return &admin, key.URL(), nil
}
