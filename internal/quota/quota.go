// Package quota decides whether a caller may start another call today.
package quota

import (
	"context"
	"fmt"

	"github.com/voxdesk/voxdesk/internal/identity"
	"github.com/voxdesk/voxdesk/internal/metrics"
	"github.com/voxdesk/voxdesk/internal/plan"
	"github.com/voxdesk/voxdesk/internal/usage"
)

// RemainingUnlimited is reported for keys on plans without a daily ceiling.
const RemainingUnlimited = -1

// CounterReader reads the current-period counter of a key.
type CounterReader interface {
	Current(ctx context.Context, key identity.Key) (usage.Counter, error)
}

// KeyRemaining is the number of calls one identity key has left today.
type KeyRemaining struct {
	Key       identity.Key `json:"key"`
	Used      int64        `json:"used"`
	Remaining int64        `json:"remaining"`
}

// Decision is the outcome of a quota check.
type Decision struct {
	Allowed                bool           `json:"allowed"`
	Remaining              []KeyRemaining `json:"remaining"`
	LimitSource            identity.Type  `json:"limit_source,omitempty"`
	MaxCallDurationSeconds int            `json:"max_call_duration_seconds"`
}

// Evaluator applies plan ceilings to usage counters.
type Evaluator struct {
	counters CounterReader
	metrics  *metrics.Metrics
}

// NewEvaluator constructs an Evaluator.
func NewEvaluator(counters CounterReader, m *metrics.Metrics) *Evaluator {
	return &Evaluator{counters: counters, metrics: m}
}

// CheckAllowed reports whether a caller identified by keys may start a call under caps.
// Every key is checked independently and the most restrictive one wins; LimitSource names the
// first denying key in resolution order. Counters from earlier periods count as zero.
func (e *Evaluator) CheckAllowed(ctx context.Context, keys []identity.Key, caps plan.Capabilities) (Decision, error) {
	decision := Decision{
		Allowed:                true,
		Remaining:              make([]KeyRemaining, 0, len(keys)),
		MaxCallDurationSeconds: caps.MaxCallDurationSeconds,
	}

	limit := int64(caps.MaxCallsPerDay)
	if limit <= plan.Unlimited {
		for _, key := range keys {
			decision.Remaining = append(decision.Remaining, KeyRemaining{Key: key, Remaining: RemainingUnlimited})
		}
		e.metrics.QuotaDecision(true, "")
		return decision, nil
	}

	for _, key := range keys {
		counter, errRead := e.counters.Current(ctx, key)
		if errRead != nil {
			return Decision{}, fmt.Errorf("quota: %w", errRead)
		}
		remaining := limit - counter.Calls
		if remaining < 0 {
			remaining = 0
		}
		decision.Remaining = append(decision.Remaining, KeyRemaining{Key: key, Used: counter.Calls, Remaining: remaining})
		if counter.Calls >= limit && decision.Allowed {
			decision.Allowed = false
			decision.LimitSource = key.Type
		}
	}

	e.metrics.QuotaDecision(decision.Allowed, string(decision.LimitSource))
	return decision, nil
}
