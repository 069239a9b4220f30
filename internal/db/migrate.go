package db

import (
	"fmt"

	"github.com/voxdesk/voxdesk/internal/models"
	"gorm.io/gorm"
)

// Migrate runs database migrations for the current dialect.
func Migrate(conn *gorm.DB) error {
	if conn == nil {
		return fmt.Errorf("db: nil connection")
	}
	if errAutoMigrate := conn.AutoMigrate(
		&models.Admin{},
		&models.Account{},
		&models.Transaction{},
		&models.UsageCounter{},
		&models.FingerprintSighting{},
		&models.CallLog{},
		&models.ProviderKey{},
	); errAutoMigrate != nil {
		return fmt.Errorf("db: migrate: %w", errAutoMigrate)
	}

	switch DialectName(conn) {
	case DialectSQLite:
		return migrateSQLite(conn)
	case DialectPostgres, "":
		return migratePostgres(conn)
	default:
		return fmt.Errorf("db: unsupported dialect: %s", DialectName(conn))
	}
}

// checkoutReferenceIndex keeps a retried checkout webhook from inserting twice.
const checkoutReferenceIndex = `
	CREATE UNIQUE INDEX IF NOT EXISTS idx_transactions_checkout_reference
	ON transactions (method, external_reference)
	WHERE method = 'card_checkout'
`

// migratePostgres applies PostgreSQL-specific constraints and indexes.
func migratePostgres(conn *gorm.DB) error {
	if errIndex := conn.Exec(checkoutReferenceIndex).Error; errIndex != nil {
		return fmt.Errorf("db: create checkout reference index: %w", errIndex)
	}
	if errCheck := conn.Exec(`
		DO $$
		BEGIN
			IF NOT EXISTS (
				SELECT 1 FROM pg_constraint WHERE conname = 'chk_transactions_status'
			) THEN
				ALTER TABLE transactions
				ADD CONSTRAINT chk_transactions_status
				CHECK (status IN ('pending', 'completed', 'failed'));
			END IF;
		END $$;
	`).Error; errCheck != nil {
		return fmt.Errorf("db: add transaction status check: %w", errCheck)
	}
	if errCheck := conn.Exec(`
		DO $$
		BEGIN
			IF NOT EXISTS (
				SELECT 1 FROM pg_constraint WHERE conname = 'chk_usage_counters_nonnegative'
			) THEN
				ALTER TABLE usage_counters
				ADD CONSTRAINT chk_usage_counters_nonnegative
				CHECK (seconds >= 0 AND calls >= 0);
			END IF;
		END $$;
	`).Error; errCheck != nil {
		return fmt.Errorf("db: add usage counter check: %w", errCheck)
	}
	if errIndex := conn.Exec(`
		CREATE INDEX IF NOT EXISTS idx_transactions_pending_manual
		ON transactions (created_at DESC)
		WHERE method = 'manual' AND status = 'pending'
	`).Error; errIndex != nil {
		return fmt.Errorf("db: create pending manual index: %w", errIndex)
	}
	return nil
}

// migrateSQLite applies SQLite-specific indexes.
func migrateSQLite(conn *gorm.DB) error {
	if errIndex := conn.Exec(checkoutReferenceIndex).Error; errIndex != nil {
		return fmt.Errorf("db: create checkout reference index: %w", errIndex)
	}
	if errIndex := conn.Exec(`
		CREATE INDEX IF NOT EXISTS idx_transactions_pending_manual
		ON transactions (created_at)
		WHERE method = 'manual' AND status = 'pending'
	`).Error; errIndex != nil {
		return fmt.Errorf("db: create pending manual index: %w", errIndex)
	}
	return nil
}
