package handlers

import (
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/voxdesk/voxdesk/internal/models"
)

const accountContextKey = "account"

// SetAccount stores the signed-in account on the request context.
func SetAccount(c *gin.Context, account *models.Account) {
	c.Set(accountContextKey, account)
}

// CurrentAccount returns the signed-in account, or nil for anonymous callers.
func CurrentAccount(c *gin.Context) *models.Account {
	value, ok := c.Get(accountContextKey)
	if !ok {
		return nil
	}
	account, _ := value.(*models.Account)
	return account
}

func currentAccountID(c *gin.Context) uint64 {
	if account := CurrentAccount(c); account != nil {
		return account.ID
	}
	return 0
}

func parseIDParam(c *gin.Context, name string) (uint64, bool) {
	id, errParse := strconv.ParseUint(strings.TrimSpace(c.Param(name)), 10, 64)
	if errParse != nil || id == 0 {
		return 0, false
	}
	return id, true
}

func transactionView(tx *models.Transaction) gin.H {
	return gin.H{
		"id":                 tx.ID,
		"amount":             tx.Amount,
		"currency":           tx.Currency,
		"method":             tx.Method,
		"status":             tx.Status,
		"external_reference": tx.ExternalReference,
		"plan":               tx.Plan,
		"resolved_at":        tx.ResolvedAt,
		"created_at":         tx.CreatedAt,
		"updated_at":         tx.UpdatedAt,
	}
}
