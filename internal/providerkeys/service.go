package providerkeys

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/voxdesk/voxdesk/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	// ErrNotFound reports a missing key or one owned by another account.
	ErrNotFound = errors.New("providerkeys: not found")
	// ErrUnsupportedProvider reports an unknown provider name.
	ErrUnsupportedProvider = errors.New("providerkeys: unsupported provider")
	// ErrMissingAPIKey reports an empty secret.
	ErrMissingAPIKey = errors.New("providerkeys: api_key is required")
)

// Input is a key submitted by an account.
type Input struct {
	Provider string            `json:"provider"`
	APIKey   string            `json:"api_key"`
	Label    string            `json:"label"`
	Metadata map[string]string `json:"metadata"`
}

// View is a stored key with its secret masked.
type View struct {
	ID        uint64            `json:"id"`
	Provider  string            `json:"provider"`
	Label     string            `json:"label"`
	APIKey    string            `json:"api_key"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// Service manages provider keys scoped to an account.
type Service struct {
	db *gorm.DB
}

// NewService constructs a Service.
func NewService(db *gorm.DB) *Service {
	return &Service{db: db}
}

// Put stores in for accountID, replacing any key the account already has for the provider.
func (s *Service) Put(ctx context.Context, accountID uint64, in Input) (View, error) {
	provider := NormalizeProvider(in.Provider)
	if provider == "" {
		return View{}, fmt.Errorf("%w: %q", ErrUnsupportedProvider, in.Provider)
	}
	apiKey := strings.TrimSpace(in.APIKey)
	if apiKey == "" {
		return View{}, ErrMissingAPIKey
	}

	now := time.Now().UTC()
	row := models.ProviderKey{
		AccountID: accountID,
		Provider:  provider,
		Label:     strings.TrimSpace(in.Label),
		APIKey:    apiKey,
		Metadata:  encodeMetadata(in.Metadata),
		CreatedAt: now,
		UpdatedAt: now,
	}
	errUpsert := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "account_id"}, {Name: "provider"}},
		DoUpdates: clause.AssignmentColumns([]string{"label", "api_key", "metadata", "updated_at"}),
	}).Create(&row).Error
	if errUpsert != nil {
		return View{}, fmt.Errorf("providerkeys: save: %w", errUpsert)
	}

	var stored models.ProviderKey
	errFind := s.db.WithContext(ctx).
		Where("account_id = ? AND provider = ?", accountID, provider).
		Take(&stored).Error
	if errFind != nil {
		return View{}, fmt.Errorf("providerkeys: reload: %w", errFind)
	}
	return toView(&stored), nil
}

// List returns the account's keys ordered by provider.
func (s *Service) List(ctx context.Context, accountID uint64) ([]View, error) {
	var rows []models.ProviderKey
	if errFind := s.db.WithContext(ctx).Where("account_id = ?", accountID).Order("provider ASC").Find(&rows).Error; errFind != nil {
		return nil, fmt.Errorf("providerkeys: list: %w", errFind)
	}
	out := make([]View, 0, len(rows))
	for i := range rows {
		out = append(out, toView(&rows[i]))
	}
	return out, nil
}

// Delete removes key id when it belongs to accountID.
func (s *Service) Delete(ctx context.Context, accountID, id uint64) error {
	res := s.db.WithContext(ctx).Where("id = ? AND account_id = ?", id, accountID).Delete(&models.ProviderKey{})
	if res.Error != nil {
		return fmt.Errorf("providerkeys: delete: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func toView(row *models.ProviderKey) View {
	return View{
		ID:        row.ID,
		Provider:  row.Provider,
		Label:     row.Label,
		APIKey:    MaskSecret(row.APIKey),
		Metadata:  decodeMetadata(row.Metadata),
		CreatedAt: row.CreatedAt,
		UpdatedAt: row.UpdatedAt,
	}
}
