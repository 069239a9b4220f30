// Package analytics keeps a per-call log for authenticated accounts and summarizes it.
package analytics

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/voxdesk/voxdesk/internal/models"
	"gorm.io/gorm"
)

// DefaultWindowDays is the reporting window when the caller does not pick one.
const DefaultWindowDays = 7

const maxWindowDays = 90

// Call is one finished call.
type Call struct {
	AccountID   uint64
	Seconds     int64
	IP          string
	Fingerprint string
	EndedAt     time.Time
}

// Summary aggregates calls over a window.
type Summary struct {
	From           time.Time `json:"from"`
	To             time.Time `json:"to"`
	Calls          int64     `json:"calls"`
	Seconds        int64     `json:"seconds"`
	AverageSeconds float64   `json:"average_seconds"`
}

// DayBucket aggregates calls of one calendar day.
type DayBucket struct {
	Day     string `json:"day"`
	Calls   int64  `json:"calls"`
	Seconds int64  `json:"seconds"`
}

// Service writes and reads the call log.
type Service struct {
	db    *gorm.DB
	loc   *time.Location
	nowFn func() time.Time
}

// NewService constructs a Service. loc sets day boundaries; nil means UTC.
func NewService(db *gorm.DB, loc *time.Location) *Service {
	if loc == nil {
		loc = time.UTC
	}
	return &Service{db: db, loc: loc, nowFn: time.Now}
}

// LogCall appends c to the call log. Anonymous calls are not logged.
func (s *Service) LogCall(ctx context.Context, c Call) error {
	if c.AccountID == 0 {
		return nil
	}
	if c.Seconds < 0 {
		c.Seconds = 0
	}
	if c.EndedAt.IsZero() {
		c.EndedAt = s.nowFn()
	}
	row := models.CallLog{
		AccountID:   c.AccountID,
		Seconds:     c.Seconds,
		IP:          truncate(c.IP, 64),
		Fingerprint: truncate(c.Fingerprint, 255),
		EndedAt:     c.EndedAt.UTC(),
	}
	if errCreate := s.db.WithContext(ctx).Create(&row).Error; errCreate != nil {
		return fmt.Errorf("analytics: log call: %w", errCreate)
	}
	return nil
}

// Summary totals the account's calls over the last days days, today included.
func (s *Service) Summary(ctx context.Context, accountID uint64, days int) (Summary, error) {
	from, to := s.window(days)
	out := Summary{From: from, To: to}
	var agg struct {
		Calls   int64
		Seconds int64
	}
	errScan := s.db.WithContext(ctx).
		Model(&models.CallLog{}).
		Select("COUNT(*) AS calls, COALESCE(SUM(seconds), 0) AS seconds").
		Where("account_id = ? AND ended_at >= ? AND ended_at < ?", accountID, from.UTC(), to.UTC()).
		Scan(&agg).Error
	if errScan != nil {
		return out, fmt.Errorf("analytics: summary: %w", errScan)
	}
	out.Calls = agg.Calls
	out.Seconds = agg.Seconds
	if agg.Calls > 0 {
		out.AverageSeconds = float64(agg.Seconds) / float64(agg.Calls)
	}
	return out, nil
}

// Daily returns one bucket per day over the last days days, oldest first, including empty days.
func (s *Service) Daily(ctx context.Context, accountID uint64, days int) ([]DayBucket, error) {
	from, to := s.window(days)
	var rows []models.CallLog
	errFind := s.db.WithContext(ctx).
		Select("seconds", "ended_at").
		Where("account_id = ? AND ended_at >= ? AND ended_at < ?", accountID, from.UTC(), to.UTC()).
		Find(&rows).Error
	if errFind != nil {
		return nil, fmt.Errorf("analytics: daily: %w", errFind)
	}

	buckets := make([]DayBucket, 0, days)
	index := make(map[string]int)
	for day := from; day.Before(to); day = day.AddDate(0, 0, 1) {
		label := day.Format("2006-01-02")
		index[label] = len(buckets)
		buckets = append(buckets, DayBucket{Day: label})
	}
	for _, row := range rows {
		i, ok := index[row.EndedAt.In(s.loc).Format("2006-01-02")]
		if !ok {
			continue
		}
		buckets[i].Calls++
		buckets[i].Seconds += row.Seconds
	}
	return buckets, nil
}

// window returns [start of the first day, start of tomorrow) in s.loc.
func (s *Service) window(days int) (time.Time, time.Time) {
	if days <= 0 {
		days = DefaultWindowDays
	}
	if days > maxWindowDays {
		days = maxWindowDays
	}
	now := s.nowFn().In(s.loc)
	startOfToday := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, s.loc)
	return startOfToday.AddDate(0, 0, -(days - 1)), startOfToday.AddDate(0, 0, 1)
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) > n {
		return s[:n]
	}
	return s
}
