// Package metrics exposes Prometheus counters for metering, quota and billing events.
// All methods are safe on a nil *Metrics.
package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "voxdesk"

// Metrics holds the registered collectors.
type Metrics struct {
	usageRecords    *prometheus.CounterVec
	quotaDecisions  *prometheus.CounterVec
	transactions    *prometheus.CounterVec
	reviews         *prometheus.CounterVec
	webhookEvents   *prometheus.CounterVec
	throttled       *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		usageRecords: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "usage_records_total",
			Help:      "Usage increments by identity type and result.",
		}, []string{"identity_type", "result"}),
		quotaDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "quota_decisions_total",
			Help:      "Quota checks by decision and the identity type that denied.",
		}, []string{"decision", "limit_source"}),
		transactions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transactions_created_total",
			Help:      "Ledger transactions created by method and initial status.",
		}, []string{"method", "status"}),
		reviews: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transaction_reviews_total",
			Help:      "Admin reconciliation outcomes.",
		}, []string{"decision", "result"}),
		webhookEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checkout_webhook_events_total",
			Help:      "Checkout webhook deliveries by outcome.",
		}, []string{"outcome"}),
		throttled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "throttled_requests_total",
			Help:      "Requests rejected by the per-IP throttle.",
		}, []string{"route"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route and status.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "status"}),
	}
	if reg == nil {
		return m, nil
	}
	for _, c := range []prometheus.Collector{
		m.usageRecords,
		m.quotaDecisions,
		m.transactions,
		m.reviews,
		m.webhookEvents,
		m.throttled,
		m.requestDuration,
	} {
		if errRegister := reg.Register(c); errRegister != nil {
			return nil, errRegister
		}
	}
	return m, nil
}

// UsageRecorded counts one usage increment attempt.
func (m *Metrics) UsageRecorded(identityType string, ok bool) {
	if m == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "error"
	}
	m.usageRecords.WithLabelValues(identityType, result).Inc()
}

// QuotaDecision counts one quota check. limitSource is empty when allowed.
func (m *Metrics) QuotaDecision(allowed bool, limitSource string) {
	if m == nil {
		return
	}
	decision := "allow"
	if !allowed {
		decision = "deny"
	}
	if limitSource == "" {
		limitSource = "none"
	}
	m.quotaDecisions.WithLabelValues(decision, limitSource).Inc()
}

// TransactionCreated counts one ledger insert.
func (m *Metrics) TransactionCreated(method, status string) {
	if m == nil {
		return
	}
	m.transactions.WithLabelValues(method, status).Inc()
}

// TransactionReviewed counts one admin review attempt.
func (m *Metrics) TransactionReviewed(decision, result string) {
	if m == nil {
		return
	}
	m.reviews.WithLabelValues(decision, result).Inc()
}

// WebhookEvent counts one checkout webhook delivery.
func (m *Metrics) WebhookEvent(outcome string) {
	if m == nil {
		return
	}
	m.webhookEvents.WithLabelValues(outcome).Inc()
}

// Throttled counts one rejected request.
func (m *Metrics) Throttled(route string) {
	if m == nil {
		return
	}
	m.throttled.WithLabelValues(route).Inc()
}

// GinMiddleware records request latency by matched route.
func GinMiddleware(m *Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		if m == nil {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.requestDuration.WithLabelValues(route, strconv.Itoa(c.Writer.Status())).Observe(time.Since(start).Seconds())
	}
}
