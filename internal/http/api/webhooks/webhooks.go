// Package webhooks registers inbound payment-processor callbacks under /v0/webhooks.
package webhooks

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/voxdesk/voxdesk/internal/checkout"
	"github.com/voxdesk/voxdesk/internal/http/middleware"
	"github.com/voxdesk/voxdesk/internal/ledger"
	"github.com/voxdesk/voxdesk/internal/metrics"
	"github.com/voxdesk/voxdesk/internal/plan"
	"github.com/voxdesk/voxdesk/internal/ratelimit"

	log "github.com/sirupsen/logrus"
)

const maxPayloadBytes = 1 << 20

// Outcome labels for the webhook counter.
const (
	OutcomeProcessed        = "processed"
	OutcomeDuplicate        = "duplicate"
	OutcomeIgnored          = "ignored"
	OutcomeRejected         = "rejected"
	OutcomeInvalidSignature = "invalid_signature"
	OutcomeError            = "error"
)

// Deps are the services behind the webhook routes.
type Deps struct {
	Verifier    *checkout.Verifier
	Processor   *checkout.Processor
	DefaultPlan plan.Tier
	Limiter     *ratelimit.Manager
	Metrics     *metrics.Metrics
}

// RegisterWebhookRoutes registers the checkout completion endpoint.
func RegisterWebhookRoutes(r *gin.Engine, deps Deps) {
	if r == nil || deps.Processor == nil {
		return
	}
	h := NewCheckoutHandler(deps.Verifier, deps.Processor, deps.DefaultPlan, deps.Metrics)
	group := r.Group("/v0/webhooks")
	group.POST("/checkout", middleware.Throttle(deps.Limiter, ratelimit.ScopeWebhook, deps.Metrics), h.Handle)
}

// CheckoutHandler receives checkout.session.completed deliveries.
type CheckoutHandler struct {
	verifier    *checkout.Verifier
	processor   *checkout.Processor
	defaultPlan plan.Tier
	metrics     *metrics.Metrics
	nowFn       func() time.Time
}

// NewCheckoutHandler constructs a CheckoutHandler.
func NewCheckoutHandler(v *checkout.Verifier, p *checkout.Processor, defaultPlan plan.Tier, m *metrics.Metrics) *CheckoutHandler {
	return &CheckoutHandler{verifier: v, processor: p, defaultPlan: defaultPlan, metrics: m, nowFn: time.Now}
}

// Handle verifies the signature over the raw body before parsing it, then records the payment.
// Redeliveries of an already recorded session are acknowledged without side effects.
func (h *CheckoutHandler) Handle(c *gin.Context) {
	payload, errRead := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxPayloadBytes))
	if errRead != nil {
		h.metrics.WebhookEvent(OutcomeRejected)
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable body"})
		return
	}

	errVerify := h.verifier.Verify(payload, c.GetHeader(checkout.SignatureHeader), h.nowFn())
	switch {
	case errors.Is(errVerify, checkout.ErrMissingSecret):
		log.Error("webhooks: checkout secret not configured")
		h.metrics.WebhookEvent(OutcomeError)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "webhook not configured"})
		return
	case errVerify != nil:
		log.WithError(errVerify).WithField("ip", middleware.ClientIP(c)).Warn("webhooks: signature rejected")
		h.metrics.WebhookEvent(OutcomeInvalidSignature)
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid signature"})
		return
	}

	evt, errParse := checkout.ParseEventWithDefault(payload, h.defaultPlan)
	switch {
	case errors.Is(errParse, checkout.ErrEventIgnored):
		h.metrics.WebhookEvent(OutcomeIgnored)
		c.JSON(http.StatusOK, gin.H{"received": true})
		return
	case errParse != nil:
		log.WithError(errParse).Warn("webhooks: checkout event rejected")
		h.metrics.WebhookEvent(OutcomeRejected)
		c.JSON(http.StatusBadRequest, gin.H{"error": errParse.Error()})
		return
	}

	result, errProcess := h.processor.Process(c.Request.Context(), evt)
	if errors.Is(errProcess, ledger.ErrNotFound) {
		log.WithField("account_id", evt.AccountID).Warn("webhooks: checkout for unknown account")
		h.metrics.WebhookEvent(OutcomeRejected)
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown account"})
		return
	}
	if errProcess != nil {
		log.WithError(errProcess).WithFields(log.Fields{
			"event_id":   evt.EventID,
			"account_id": evt.AccountID,
		}).Error("webhooks: checkout processing failed")
		h.metrics.WebhookEvent(OutcomeError)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "processing failed"})
		return
	}

	outcome := OutcomeProcessed
	if result.Duplicate {
		outcome = OutcomeDuplicate
	}
	h.metrics.WebhookEvent(outcome)
	log.WithFields(log.Fields{
		"event_id":   evt.EventID,
		"session_id": evt.SessionID,
		"account_id": evt.AccountID,
		"plan":       evt.Plan,
		"outcome":    outcome,
	}).Info("webhooks: checkout completed")
	c.JSON(http.StatusOK, gin.H{"received": true, "duplicate": result.Duplicate})
}
