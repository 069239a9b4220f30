package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/voxdesk/voxdesk/internal/analytics"
	"github.com/voxdesk/voxdesk/internal/plan"
)

// AnalyticsHandler serves call analytics for the signed-in account.
type AnalyticsHandler struct {
	calls   *analytics.Service
	catalog *plan.Catalog
}

// NewAnalyticsHandler constructs an AnalyticsHandler.
func NewAnalyticsHandler(calls *analytics.Service, catalog *plan.Catalog) *AnalyticsHandler {
	return &AnalyticsHandler{calls: calls, catalog: catalog}
}

// Get returns call totals over ?days (default 7). ?detail=daily adds per-day buckets and
// requires a plan with advanced analytics.
func (h *AnalyticsHandler) Get(c *gin.Context) {
	account := CurrentAccount(c)
	if account == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	days := analytics.DefaultWindowDays
	if raw := strings.TrimSpace(c.Query("days")); raw != "" {
		parsed, errParse := strconv.Atoi(raw)
		if errParse != nil || parsed <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid days"})
			return
		}
		days = parsed
	}

	daily := strings.EqualFold(strings.TrimSpace(c.Query("detail")), "daily")
	if daily && !h.catalog.Effective(account).AllowAdvancedAnalytics {
		c.JSON(http.StatusForbidden, gin.H{"error": "plan does not include advanced analytics"})
		return
	}

	ctx := c.Request.Context()
	summary, errSummary := h.calls.Summary(ctx, account.ID, days)
	if errSummary != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "load analytics failed"})
		return
	}
	out := gin.H{"summary": summary}
	if daily {
		buckets, errDaily := h.calls.Daily(ctx, account.ID, days)
		if errDaily != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "load analytics failed"})
			return
		}
		out["daily"] = buckets
	}
	c.JSON(http.StatusOK, out)
}
