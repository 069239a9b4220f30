package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/voxdesk/voxdesk/internal/plan"
)

// PlanFrontHandler serves plan-related front endpoints.
type PlanFrontHandler struct {
	catalog *plan.Catalog
}

// NewPlanFrontHandler constructs a PlanFrontHandler.
func NewPlanFrontHandler(catalog *plan.Catalog) *PlanFrontHandler {
	return &PlanFrontHandler{catalog: catalog}
}

// List returns the capabilities of every tier.
func (h *PlanFrontHandler) List(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"plans": h.catalog.All()})
}

// Current returns the effective capabilities of the signed-in account.
func (h *PlanFrontHandler) Current(c *gin.Context) {
	account := CurrentAccount(c)
	if account == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"account_id":   account.ID,
		"plan":         account.Plan,
		"capabilities": h.catalog.Effective(account),
	})
}
