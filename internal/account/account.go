// Package account manages platform accounts and their plan tier.
package account

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/voxdesk/voxdesk/internal/db"
	"github.com/voxdesk/voxdesk/internal/models"
	"github.com/voxdesk/voxdesk/internal/plan"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	// ErrNotFound reports a missing account.
	ErrNotFound = errors.New("account: not found")
	// ErrInvalidPlan reports an unknown tier name.
	ErrInvalidPlan = errors.New("account: invalid plan")
	// ErrInvalidIdentity reports a sign-in without a subject.
	ErrInvalidIdentity = errors.New("account: auth provider id is required")
	// ErrInvalidOverrides reports a quota override below plan.Unlimited.
	ErrInvalidOverrides = errors.New("account: overrides must be -1 (unlimited) or a non-negative ceiling")
)

// Identity is what the auth provider asserts about a signed-in user.
type Identity struct {
	AuthProviderID string
	Email          string
	Name           string
}

// Overrides replaces tier quota numbers for one account. Nil clears the override.
type Overrides struct {
	DailyCalls     *int `json:"daily_call_override"`
	MaxCallSeconds *int `json:"max_call_seconds_override"`
}

// ListFilter narrows account listings.
type ListFilter struct {
	Search   string // Matches email, name or auth provider id.
	Plan     plan.Tier
	Disabled *bool
	Limit    int
	Offset   int
}

// Service reads and writes accounts.
type Service struct {
	db    *gorm.DB
	nowFn func() time.Time
}

// NewService constructs a Service.
func NewService(db *gorm.DB) *Service {
	return &Service{db: db, nowFn: time.Now}
}

// WithTx returns a Service bound to tx.
func (s *Service) WithTx(tx *gorm.DB) *Service {
	return &Service{db: tx, nowFn: s.nowFn}
}

// Touch creates the account on first sign-in or refreshes its profile and last-seen time.
// New accounts start on the free plan.
func (s *Service) Touch(ctx context.Context, ident Identity) (*models.Account, error) {
	subject := strings.TrimSpace(ident.AuthProviderID)
	if subject == "" {
		return nil, ErrInvalidIdentity
	}
	now := s.nowFn().UTC()
	row := models.Account{
		AuthProviderID: subject,
		Email:          strings.TrimSpace(ident.Email),
		Name:           strings.TrimSpace(ident.Name),
		Plan:           string(plan.TierFree),
		LastSeenAt:     &now,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	updates := map[string]any{
		"last_seen_at": now,
		"updated_at":   now,
	}
	if row.Email != "" {
		updates["email"] = row.Email
	}
	if row.Name != "" {
		updates["name"] = row.Name
	}
	errUpsert := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "auth_provider_id"}},
		DoUpdates: clause.Assignments(updates),
	}).Create(&row).Error
	if errUpsert != nil {
		return nil, fmt.Errorf("account: touch: %w", errUpsert)
	}
	return s.GetBySubject(ctx, subject)
}

// Get returns the account with id.
func (s *Service) Get(ctx context.Context, id uint64) (*models.Account, error) {
	var row models.Account
	if errFind := s.db.WithContext(ctx).Take(&row, id).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("account: query: %w", errFind)
	}
	return &row, nil
}

// GetBySubject returns the account linked to the auth provider subject.
func (s *Service) GetBySubject(ctx context.Context, subject string) (*models.Account, error) {
	var row models.Account
	errFind := s.db.WithContext(ctx).Where("auth_provider_id = ?", strings.TrimSpace(subject)).Take(&row).Error
	if errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("account: query by subject: %w", errFind)
	}
	return &row, nil
}

// List returns accounts matching filter, newest first, with the total match count.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]models.Account, int64, error) {
	q := s.db.WithContext(ctx).Model(&models.Account{})
	if search := strings.TrimSpace(filter.Search); search != "" {
		pattern := db.LikePattern(s.db, search)
		q = q.Where(
			db.CaseInsensitiveLikeExpr(s.db, "email")+" OR "+
				db.CaseInsensitiveLikeExpr(s.db, "name")+" OR "+
				db.CaseInsensitiveLikeExpr(s.db, "auth_provider_id"),
			pattern, pattern, pattern,
		)
	}
	if filter.Plan != "" {
		q = q.Where("plan = ?", string(filter.Plan))
	}
	if filter.Disabled != nil {
		q = q.Where("disabled = ?", *filter.Disabled)
	}

	var total int64
	if errCount := q.Session(&gorm.Session{}).Count(&total).Error; errCount != nil {
		return nil, 0, fmt.Errorf("account: count: %w", errCount)
	}

	limit := filter.Limit
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	var rows []models.Account
	if errFind := q.Order("created_at DESC, id DESC").Limit(limit).Offset(offset).Find(&rows).Error; errFind != nil {
		return nil, 0, fmt.Errorf("account: list: %w", errFind)
	}
	return rows, total, nil
}

// SetPlan sets the account's tier. Setting the tier it already has succeeds.
func (s *Service) SetPlan(ctx context.Context, id uint64, tier string) (*models.Account, error) {
	parsed, ok := plan.ParseTier(tier)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidPlan, tier)
	}
	return s.update(ctx, id, map[string]any{"plan": string(parsed)})
}

// SetOverrides replaces both quota overrides. 0 blocks calls outright, plan.Unlimited lifts the
// ceiling, anything lower is rejected.
func (s *Service) SetOverrides(ctx context.Context, id uint64, o Overrides) (*models.Account, error) {
	if (o.DailyCalls != nil && !plan.ValidLimit(o.DailyCalls)) || (o.MaxCallSeconds != nil && !plan.ValidLimit(o.MaxCallSeconds)) {
		return nil, ErrInvalidOverrides
	}
	return s.update(ctx, id, map[string]any{
		"daily_call_override":       o.DailyCalls,
		"max_call_seconds_override": o.MaxCallSeconds,
	})
}

// SetDisabled enables or disables the account.
func (s *Service) SetDisabled(ctx context.Context, id uint64, disabled bool) (*models.Account, error) {
	return s.update(ctx, id, map[string]any{"disabled": disabled})
}

func (s *Service) update(ctx context.Context, id uint64, updates map[string]any) (*models.Account, error) {
	updates["updated_at"] = s.nowFn().UTC()
	res := s.db.WithContext(ctx).Model(&models.Account{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return nil, fmt.Errorf("account: update: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, ErrNotFound
	}
	return s.Get(ctx, id)
}
