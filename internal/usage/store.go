// Package usage records per-identity, per-day call counters.
package usage

import (
	"context"
	"math"
	"time"

	"github.com/voxdesk/voxdesk/internal/identity"
)

// periodLayout formats an accounting period (one calendar day).
const periodLayout = "2006-01-02"

// Counter is the accumulated usage of one key in one period.
type Counter struct {
	Key     identity.Key `json:"key"`
	Period  string       `json:"period"`
	Seconds int64        `json:"seconds"`
	Calls   int64        `json:"calls"`
}

// Sighting is the lifetime sighting count of a fingerprint.
type Sighting struct {
	Fingerprint string    `json:"fingerprint"`
	TimesSeen   int64     `json:"times_seen"`
	FirstSeenAt time.Time `json:"first_seen_at"`
	LastSeenAt  time.Time `json:"last_seen_at"`
}

// ListFilter narrows counter listings.
type ListFilter struct {
	Period       string
	IdentityType identity.Type // Empty matches every type.
	Limit        int
}

// Store persists counters. Increment must be an atomic add in the backing store.
type Store interface {
	// Increment adds seconds and one call to the counter of key in period, creating it when absent.
	Increment(ctx context.Context, key identity.Key, period string, seconds int64, now time.Time) error
	// Get returns the counter of key in period, zero valued when absent.
	Get(ctx context.Context, key identity.Key, period string) (Counter, error)
	// RecordSighting increments the lifetime sighting count of fingerprint.
	RecordSighting(ctx context.Context, fingerprint string, now time.Time) error
	// Sighting returns the lifetime sighting record of fingerprint, zero valued when unseen.
	Sighting(ctx context.Context, fingerprint string) (Sighting, error)
	// List returns counters for a period, busiest first.
	List(ctx context.Context, filter ListFilter) ([]Counter, error)
}

// PeriodOf returns the accounting period containing t in loc.
func PeriodOf(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc).Format(periodLayout)
}

// ValidPeriod reports whether s is a well-formed period.
func ValidPeriod(s string) bool {
	_, errParse := time.Parse(periodLayout, s)
	return errParse == nil
}

// ClampSeconds converts a reported duration to whole seconds; negative or non-finite input becomes 0.
func ClampSeconds(delta float64) int64 {
	if math.IsNaN(delta) || math.IsInf(delta, 0) || delta <= 0 {
		return 0
	}
	if delta >= math.MaxInt32 {
		return math.MaxInt32
	}
	return int64(math.Round(delta))
}

// defaultListLimit bounds counter listings.
const defaultListLimit = 200

func normalizeLimit(limit int) int {
	if limit <= 0 || limit > 1000 {
		return defaultListLimit
	}
	return limit
}
