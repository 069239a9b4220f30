package usage

import (
	"context"
	"fmt"
	"time"

	"github.com/voxdesk/voxdesk/internal/identity"
	"github.com/voxdesk/voxdesk/internal/metrics"

	log "github.com/sirupsen/logrus"
)

// Recorder attributes call time to identity keys for the current period.
type Recorder struct {
	store   Store
	loc     *time.Location
	nowFn   func() time.Time
	metrics *metrics.Metrics
}

// NewRecorder constructs a Recorder. loc sets the period boundary; nil means UTC.
func NewRecorder(store Store, loc *time.Location, nowFn func() time.Time, m *metrics.Metrics) *Recorder {
	if loc == nil {
		loc = time.UTC
	}
	if nowFn == nil {
		nowFn = time.Now
	}
	return &Recorder{store: store, loc: loc, nowFn: nowFn, metrics: m}
}

// CurrentPeriod returns the period new usage is recorded into.
func (r *Recorder) CurrentPeriod() string {
	return PeriodOf(r.nowFn(), r.loc)
}

// RecordUsage adds secondsDelta and one call to key's counter for the current period.
// Negative or malformed deltas are clamped to zero. Fingerprint keys also bump the lifetime sighting count.
func (r *Recorder) RecordUsage(ctx context.Context, key identity.Key, secondsDelta float64) error {
	now := r.nowFn()
	seconds := ClampSeconds(secondsDelta)

	if errIncr := r.store.Increment(ctx, key, PeriodOf(now, r.loc), seconds, now); errIncr != nil {
		r.metrics.UsageRecorded(string(key.Type), false)
		return fmt.Errorf("usage: record %s: %w", key, errIncr)
	}
	r.metrics.UsageRecorded(string(key.Type), true)

	if key.Type == identity.TypeFingerprint {
		if errSighting := r.store.RecordSighting(ctx, key.Value, now); errSighting != nil {
			return fmt.Errorf("usage: record sighting: %w", errSighting)
		}
	}
	return nil
}

// RecordAll records secondsDelta against every key. Failures are logged and dropped:
// metering is advisory and must not fail the caller's call flow.
func (r *Recorder) RecordAll(ctx context.Context, keys []identity.Key, secondsDelta float64) {
	if r == nil {
		return
	}
	for _, key := range keys {
		if errRecord := r.RecordUsage(ctx, key, secondsDelta); errRecord != nil {
			log.WithError(errRecord).WithField("identity", key.String()).Warn("usage: record failed")
		}
	}
}

// Current returns key's counter for the current period. Counters from earlier periods read as zero.
func (r *Recorder) Current(ctx context.Context, key identity.Key) (Counter, error) {
	counter, errGet := r.store.Get(ctx, key, r.CurrentPeriod())
	if errGet != nil {
		return Counter{}, fmt.Errorf("usage: read %s: %w", key, errGet)
	}
	return counter, nil
}

// Sighting returns the lifetime sighting record of fingerprint.
func (r *Recorder) Sighting(ctx context.Context, fingerprint string) (Sighting, error) {
	return r.store.Sighting(ctx, fingerprint)
}

// List returns counters for filter; an empty period means the current one.
func (r *Recorder) List(ctx context.Context, filter ListFilter) ([]Counter, error) {
	if filter.Period == "" {
		filter.Period = r.CurrentPeriod()
	}
	return r.store.List(ctx, filter)
}
