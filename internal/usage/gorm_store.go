package usage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/voxdesk/voxdesk/internal/identity"
	"github.com/voxdesk/voxdesk/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormStore keeps counters in the usage_counters table.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore constructs a GormStore backed by GORM.
func NewGormStore(db *gorm.DB) *GormStore { return &GormStore{db: db} }

// Increment upserts the counter row, adding to the stored values on conflict.
func (s *GormStore) Increment(ctx context.Context, key identity.Key, period string, seconds int64, now time.Time) error {
	row := models.UsageCounter{
		IdentityType:  string(key.Type),
		IdentityValue: key.Value,
		Period:        period,
		Seconds:       seconds,
		Calls:         1,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	errUpsert := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "identity_type"}, {Name: "identity_value"}, {Name: "period"}},
		DoUpdates: clause.Assignments(map[string]any{
			"seconds":    gorm.Expr("usage_counters.seconds + ?", seconds),
			"calls":      gorm.Expr("usage_counters.calls + ?", 1),
			"updated_at": now,
		}),
	}).Create(&row).Error
	if errUpsert != nil {
		return fmt.Errorf("upsert usage counter: %w", errUpsert)
	}
	return nil
}

// Get returns the counter of key in period.
func (s *GormStore) Get(ctx context.Context, key identity.Key, period string) (Counter, error) {
	out := Counter{Key: key, Period: period}
	var row models.UsageCounter
	errFind := s.db.WithContext(ctx).
		Where("identity_type = ? AND identity_value = ? AND period = ?", string(key.Type), key.Value, period).
		Take(&row).Error
	if errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return out, nil
		}
		return out, fmt.Errorf("query usage counter: %w", errFind)
	}
	out.Seconds = row.Seconds
	out.Calls = row.Calls
	return out, nil
}

// RecordSighting upserts the fingerprint sighting row.
func (s *GormStore) RecordSighting(ctx context.Context, fingerprint string, now time.Time) error {
	row := models.FingerprintSighting{
		Fingerprint: fingerprint,
		TimesSeen:   1,
		FirstSeenAt: now,
		LastSeenAt:  now,
	}
	errUpsert := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "fingerprint"}},
		DoUpdates: clause.Assignments(map[string]any{
			"times_seen":   gorm.Expr("fingerprint_sightings.times_seen + ?", 1),
			"last_seen_at": now,
		}),
	}).Create(&row).Error
	if errUpsert != nil {
		return fmt.Errorf("upsert fingerprint sighting: %w", errUpsert)
	}
	return nil
}

// Sighting returns the sighting record of fingerprint.
func (s *GormStore) Sighting(ctx context.Context, fingerprint string) (Sighting, error) {
	var row models.FingerprintSighting
	errFind := s.db.WithContext(ctx).Where("fingerprint = ?", fingerprint).Take(&row).Error
	if errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return Sighting{Fingerprint: fingerprint}, nil
		}
		return Sighting{}, fmt.Errorf("query fingerprint sighting: %w", errFind)
	}
	return Sighting{
		Fingerprint: row.Fingerprint,
		TimesSeen:   row.TimesSeen,
		FirstSeenAt: row.FirstSeenAt,
		LastSeenAt:  row.LastSeenAt,
	}, nil
}

// List returns counters for filter.Period ordered by call count.
func (s *GormStore) List(ctx context.Context, filter ListFilter) ([]Counter, error) {
	q := s.db.WithContext(ctx).Model(&models.UsageCounter{}).Where("period = ?", filter.Period)
	if filter.IdentityType != "" {
		q = q.Where("identity_type = ?", string(filter.IdentityType))
	}
	var rows []models.UsageCounter
	if errFind := q.Order("calls DESC, id ASC").Limit(normalizeLimit(filter.Limit)).Find(&rows).Error; errFind != nil {
		return nil, fmt.Errorf("list usage counters: %w", errFind)
	}
	out := make([]Counter, 0, len(rows))
	for _, row := range rows {
		out = append(out, Counter{
			Key:     identity.Key{Type: identity.Type(row.IdentityType), Value: row.IdentityValue},
			Period:  row.Period,
			Seconds: row.Seconds,
			Calls:   row.Calls,
		})
	}
	return out, nil
}
