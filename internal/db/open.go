package db

import (
	"fmt"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	log "github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Open connects to the database described by dsn.
// DSNs starting with "file:" or "sqlite:", or ending in ".db", open SQLite; anything else opens PostgreSQL.
func Open(dsn string) (*gorm.DB, error) {
	trimmed := strings.TrimSpace(dsn)
	if trimmed == "" {
		return nil, fmt.Errorf("db: empty dsn")
	}

	gormCfg := &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Warn),
		TranslateError: true,
		NowFunc:        func() time.Time { return time.Now().UTC() },
	}

	if path, ok := sqlitePath(trimmed); ok {
		conn, errOpen := gorm.Open(sqlite.Open(path), gormCfg)
		if errOpen != nil {
			return nil, fmt.Errorf("db: open sqlite: %w", errOpen)
		}
		sqlDB, errDB := conn.DB()
		if errDB != nil {
			return nil, fmt.Errorf("db: sqlite handle: %w", errDB)
		}
		// SQLite permits a single writer; serialize through one connection.
		sqlDB.SetMaxOpenConns(1)
		if errPragma := conn.Exec("PRAGMA foreign_keys = ON").Error; errPragma != nil {
			log.WithError(errPragma).Warn("db: enable sqlite foreign keys failed")
		}
		return conn, nil
	}

	conn, errOpen := gorm.Open(postgres.Open(trimmed), gormCfg)
	if errOpen != nil {
		return nil, fmt.Errorf("db: open postgres: %w", errOpen)
	}
	sqlDB, errDB := conn.DB()
	if errDB != nil {
		return nil, fmt.Errorf("db: postgres handle: %w", errDB)
	}
	sqlDB.SetMaxOpenConns(20)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)
	return conn, nil
}

// sqlitePath reports whether dsn addresses SQLite and returns the driver path.
func sqlitePath(dsn string) (string, bool) {
	lower := strings.ToLower(dsn)
	switch {
	case strings.HasPrefix(lower, "sqlite://"):
		return dsn[len("sqlite://"):], true
	case strings.HasPrefix(lower, "sqlite:"):
		return dsn[len("sqlite:"):], true
	case strings.HasPrefix(lower, "file:"):
		return dsn, true
	case lower == ":memory:":
		return dsn, true
	case strings.HasSuffix(lower, ".db"), strings.HasSuffix(lower, ".sqlite"):
		return dsn, true
	default:
		return "", false
	}
}

// Ping checks that the underlying connection is reachable.
func Ping(conn *gorm.DB) error {
	if conn == nil {
		return fmt.Errorf("db: nil connection")
	}
	sqlDB, errDB := conn.DB()
	if errDB != nil {
		return errDB
	}
	return sqlDB.Ping()
}
