package handlers

import (
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/voxdesk/voxdesk/internal/models"
)

// ContextAdminID is the gin context key holding the authenticated admin's id.
const ContextAdminID = "adminID"

func currentAdminID(c *gin.Context) uint64 {
	return c.GetUint64(ContextAdminID)
}

func parseIDParam(c *gin.Context) (uint64, bool) {
	id, errParse := strconv.ParseUint(strings.TrimSpace(c.Param("id")), 10, 64)
	if errParse != nil || id == 0 {
		return 0, false
	}
	return id, true
}

func formatTransaction(tx *models.Transaction) gin.H {
	return gin.H{
		"id":                 tx.ID,
		"account_id":         tx.AccountID,
		"amount":             tx.Amount,
		"currency":           tx.Currency,
		"method":             tx.Method,
		"status":             tx.Status,
		"external_reference": tx.ExternalReference,
		"plan":               tx.Plan,
		"reviewed_by":        tx.ReviewedBy,
		"resolved_at":        tx.ResolvedAt,
		"created_at":         tx.CreatedAt,
		"updated_at":         tx.UpdatedAt,
	}
}

func formatAccount(acc *models.Account) gin.H {
	return gin.H{
		"id":                        acc.ID,
		"auth_provider_id":          acc.AuthProviderID,
		"email":                     acc.Email,
		"name":                      acc.Name,
		"plan":                      acc.Plan,
		"daily_call_override":       acc.DailyCallOverride,
		"max_call_seconds_override": acc.MaxCallSecondsOverride,
		"disabled":                  acc.Disabled,
		"last_seen_at":              acc.LastSeenAt,
		"created_at":                acc.CreatedAt,
		"updated_at":                acc.UpdatedAt,
	}
}
