package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/voxdesk/voxdesk/internal/identity"
	"github.com/voxdesk/voxdesk/internal/usage"
)

// UsageHandler exposes usage counters to operators.
type UsageHandler struct {
	recorder *usage.Recorder
}

// NewUsageHandler constructs a UsageHandler.
func NewUsageHandler(recorder *usage.Recorder) *UsageHandler {
	return &UsageHandler{recorder: recorder}
}

// usageListQuery defines filters for the counter list view.
type usageListQuery struct {
	Period       string `form:"period"`
	IdentityType string `form:"identity_type"`
	Limit        int    `form:"limit,default=200"`
}

// List returns the counters of one period (default today), busiest first.
func (h *UsageHandler) List(c *gin.Context) {
	var q usageListQuery
	if errBind := c.ShouldBindQuery(&q); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid query"})
		return
	}
	period := strings.TrimSpace(q.Period)
	if period == "" {
		period = h.recorder.CurrentPeriod()
	} else if !usage.ValidPeriod(period) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "period must be YYYY-MM-DD"})
		return
	}
	identityType := identity.Type(strings.ToLower(strings.TrimSpace(q.IdentityType)))
	switch identityType {
	case "", identity.TypeUserID, identity.TypeIP, identity.TypeFingerprint:
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid identity_type"})
		return
	}

	counters, errList := h.recorder.List(c.Request.Context(), usage.ListFilter{
		Period:       period,
		IdentityType: identityType,
		Limit:        q.Limit,
	})
	if errList != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list usage failed"})
		return
	}
	if counters == nil {
		counters = []usage.Counter{}
	}
	c.JSON(http.StatusOK, gin.H{"period": period, "counters": counters})
}

// Fingerprint returns the lifetime sighting record of one device fingerprint.
func (h *UsageHandler) Fingerprint(c *gin.Context) {
	fingerprint := strings.TrimSpace(c.Param("fingerprint"))
	if fingerprint == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing fingerprint"})
		return
	}
	sighting, errGet := h.recorder.Sighting(c.Request.Context(), fingerprint)
	if errGet != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query fingerprint failed"})
		return
	}
	c.JSON(http.StatusOK, sighting)
}
