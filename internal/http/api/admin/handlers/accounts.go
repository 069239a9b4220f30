package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/voxdesk/voxdesk/internal/account"
	"github.com/voxdesk/voxdesk/internal/ledger"
	"github.com/voxdesk/voxdesk/internal/models"
	"github.com/voxdesk/voxdesk/internal/plan"
	"gorm.io/gorm"

	log "github.com/sirupsen/logrus"
)

// AccountHandler manages platform accounts.
type AccountHandler struct {
	db       *gorm.DB
	accounts *account.Service
	ledger   *ledger.Ledger
	catalog  *plan.Catalog
}

// NewAccountHandler constructs an AccountHandler.
func NewAccountHandler(db *gorm.DB, accounts *account.Service, l *ledger.Ledger, catalog *plan.Catalog) *AccountHandler {
	return &AccountHandler{db: db, accounts: accounts, ledger: l, catalog: catalog}
}

// accountListQuery defines filters for the account list view.
type accountListQuery struct {
	Search   string `form:"search"`
	Plan     string `form:"plan"`
	Disabled *bool  `form:"disabled"`
	Limit    int    `form:"limit,default=50"`
	Offset   int    `form:"offset"`
}

// List returns accounts with optional filters.
func (h *AccountHandler) List(c *gin.Context) {
	var q accountListQuery
	if errBind := c.ShouldBindQuery(&q); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid query"})
		return
	}
	filter := account.ListFilter{
		Search:   q.Search,
		Disabled: q.Disabled,
		Limit:    q.Limit,
		Offset:   q.Offset,
	}
	if strings.TrimSpace(q.Plan) != "" {
		tier, ok := plan.ParseTier(q.Plan)
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid plan"})
			return
		}
		filter.Plan = tier
	}

	rows, total, errList := h.accounts.List(c.Request.Context(), filter)
	if errList != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list accounts failed"})
		return
	}
	out := make([]gin.H, 0, len(rows))
	for i := range rows {
		out = append(out, formatAccount(&rows[i]))
	}
	c.JSON(http.StatusOK, gin.H{"accounts": out, "total": total})
}

// Get returns an account with its effective capabilities.
func (h *AccountHandler) Get(c *gin.Context) {
	id, ok := parseIDParam(c)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	acc, errGet := h.accounts.Get(c.Request.Context(), id)
	if errGet != nil {
		h.writeAccountError(c, errGet, "query failed")
		return
	}
	out := formatAccount(acc)
	out["capabilities"] = h.catalog.Effective(acc)
	c.JSON(http.StatusOK, out)
}

// setPlanRequest names the tier to grant.
type setPlanRequest struct {
	Plan string `json:"plan"`
}

// SetPlan changes an account's tier and records the change as an admin override transaction.
func (h *AccountHandler) SetPlan(c *gin.Context) {
	id, ok := parseIDParam(c)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	var body setPlanRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	tier, okTier := plan.ParseTier(body.Plan)
	if !okTier {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid plan"})
		return
	}

	adminID := currentAdminID(c)
	ctx := c.Request.Context()
	var updated *models.Account
	errTx := h.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		acc, errSet := h.accounts.WithTx(tx).SetPlan(ctx, id, string(tier))
		if errSet != nil {
			return errSet
		}
		if _, errCreate := h.ledger.WithTx(tx).CreateTransaction(ctx, ledger.CreateParams{
			AccountID:  id,
			Method:     models.TransactionMethodAdminOverride,
			Status:     models.TransactionStatusCompleted,
			Plan:       string(tier),
			ReviewedBy: &adminID,
		}); errCreate != nil {
			return errCreate
		}
		updated = acc
		return nil
	})
	if errTx != nil {
		h.writeAccountError(c, errTx, "set plan failed")
		return
	}

	log.WithFields(log.Fields{
		"account_id": id,
		"admin_id":   adminID,
		"plan":       tier,
	}).Info("admin: plan overridden")
	c.JSON(http.StatusOK, formatAccount(updated))
}

// SetOverrides replaces the account's quota overrides; null clears one.
func (h *AccountHandler) SetOverrides(c *gin.Context) {
	id, ok := parseIDParam(c)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	var body account.Overrides
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	acc, errSet := h.accounts.SetOverrides(c.Request.Context(), id, body)
	if errSet != nil {
		h.writeAccountError(c, errSet, "set overrides failed")
		return
	}
	c.JSON(http.StatusOK, formatAccount(acc))
}

// Disable blocks the account from signing in.
func (h *AccountHandler) Disable(c *gin.Context) {
	h.setDisabled(c, true)
}

// Enable lifts a disable.
func (h *AccountHandler) Enable(c *gin.Context) {
	h.setDisabled(c, false)
}

func (h *AccountHandler) setDisabled(c *gin.Context, disabled bool) {
	id, ok := parseIDParam(c)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	if _, errSet := h.accounts.SetDisabled(c.Request.Context(), id, disabled); errSet != nil {
		h.writeAccountError(c, errSet, "update failed")
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (h *AccountHandler) writeAccountError(c *gin.Context, err error, fallback string) {
	switch {
	case errors.Is(err, account.ErrNotFound), errors.Is(err, ledger.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.Is(err, account.ErrInvalidPlan), errors.Is(err, account.ErrInvalidOverrides):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		log.WithError(err).Error("admin: " + fallback)
		c.JSON(http.StatusInternalServerError, gin.H{"error": fallback})
	}
}
