package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/voxdesk/voxdesk/internal/analytics"
	"github.com/voxdesk/voxdesk/internal/identity"
	"github.com/voxdesk/voxdesk/internal/plan"
	"github.com/voxdesk/voxdesk/internal/quota"
	"github.com/voxdesk/voxdesk/internal/usage"

	log "github.com/sirupsen/logrus"
)

// UsageHandler serves call usage reports and quota checks.
type UsageHandler struct {
	recorder  *usage.Recorder
	evaluator *quota.Evaluator
	catalog   *plan.Catalog
	analytics *analytics.Service
}

// NewUsageHandler constructs a UsageHandler. calls may be nil to skip the call log.
func NewUsageHandler(recorder *usage.Recorder, evaluator *quota.Evaluator, catalog *plan.Catalog, calls *analytics.Service) *UsageHandler {
	return &UsageHandler{recorder: recorder, evaluator: evaluator, catalog: catalog, analytics: calls}
}

// reportUsageRequest is sent by the client after a call ends.
type reportUsageRequest struct {
	Seconds     float64 `json:"seconds"`
	Fingerprint string  `json:"fingerprint"`
}

// Report records the finished call against every identity key of the caller.
// A malformed duration counts as zero seconds; recording failures never fail the request.
func (h *UsageHandler) Report(c *gin.Context) {
	var body reportUsageRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil && !errors.Is(errBind, io.EOF) {
		log.WithError(errBind).Debug("usage: malformed report body")
	}

	ctx := c.Request.Context()
	accountID := currentAccountID(c)
	req := identity.RequestFromHTTP(c.Request, accountID, body.Fingerprint)
	keys := identity.Resolve(req)
	h.recorder.RecordAll(ctx, keys, body.Seconds)

	if h.analytics != nil && accountID != 0 {
		fingerprint, _ := identity.Find(keys, identity.TypeFingerprint)
		call := analytics.Call{
			AccountID:   accountID,
			Seconds:     usage.ClampSeconds(body.Seconds),
			IP:          identity.ClientIP(req.ForwardedFor, req.RealIP),
			Fingerprint: fingerprint.Value,
		}
		if errLog := h.analytics.LogCall(ctx, call); errLog != nil {
			log.WithError(errLog).WithField("account_id", accountID).Warn("usage: call log failed")
		}
	}

	c.JSON(http.StatusAccepted, gin.H{"recorded": true})
}

// quotaCheckRequest optionally carries the device fingerprint in the body.
type quotaCheckRequest struct {
	Fingerprint string `json:"fingerprint"`
}

// QuotaCheck reports whether the caller may start another call.
func (h *UsageHandler) QuotaCheck(c *gin.Context) {
	var body quotaCheckRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil && !errors.Is(errBind, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	account := CurrentAccount(c)
	var accountID uint64
	if account != nil {
		accountID = account.ID
	}
	keys := identity.Resolve(identity.RequestFromHTTP(c.Request, accountID, body.Fingerprint))

	decision, errCheck := h.evaluator.CheckAllowed(c.Request.Context(), keys, h.catalog.Effective(account))
	if errCheck != nil {
		log.WithError(errCheck).Error("quota: check failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "quota check failed"})
		return
	}
	c.JSON(http.StatusOK, decision)
}
