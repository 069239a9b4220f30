package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/voxdesk/voxdesk/internal/ledger"
	"github.com/voxdesk/voxdesk/internal/models"

	log "github.com/sirupsen/logrus"
)

// TransactionFrontHandler lets accounts submit manual payments and view their history.
type TransactionFrontHandler struct {
	ledger *ledger.Ledger
}

// NewTransactionFrontHandler constructs a TransactionFrontHandler.
func NewTransactionFrontHandler(l *ledger.Ledger) *TransactionFrontHandler {
	return &TransactionFrontHandler{ledger: l}
}

// submitManualRequest describes a bank transfer the account claims to have made.
// Approval always grants pro, so the caller cannot pick a tier.
type submitManualRequest struct {
	ExternalReference string  `json:"external_reference"`
	Amount            float64 `json:"amount"`
	Currency          string  `json:"currency"`
}

// SubmitManual records a pending manual transaction for admin review.
func (h *TransactionFrontHandler) SubmitManual(c *gin.Context) {
	accountID := currentAccountID(c)
	if accountID == 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	var body submitManualRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if strings.TrimSpace(body.ExternalReference) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "external_reference is required"})
		return
	}

	tx, errCreate := h.ledger.CreateTransaction(c.Request.Context(), ledger.CreateParams{
		AccountID:         accountID,
		Amount:            body.Amount,
		Currency:          body.Currency,
		Method:            models.TransactionMethodManual,
		Status:            models.TransactionStatusPending,
		ExternalReference: body.ExternalReference,
	})
	if errCreate != nil {
		switch {
		case errors.Is(errCreate, ledger.ErrInvalid):
			c.JSON(http.StatusBadRequest, gin.H{"error": errCreate.Error()})
		case errors.Is(errCreate, ledger.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "account not found"})
		default:
			log.WithError(errCreate).WithField("account_id", accountID).Error("transactions: submit manual failed")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "submit transaction failed"})
		}
		return
	}

	log.WithFields(log.Fields{
		"account_id":     accountID,
		"transaction_id": tx.ID,
	}).Info("transactions: manual payment submitted")
	c.JSON(http.StatusAccepted, gin.H{"transaction": transactionView(tx)})
}

// List returns the signed-in account's transactions, newest first.
func (h *TransactionFrontHandler) List(c *gin.Context) {
	accountID := currentAccountID(c)
	if accountID == 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	rows, errList := h.ledger.ListByAccount(c.Request.Context(), accountID)
	if errList != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list transactions failed"})
		return
	}
	out := make([]gin.H, 0, len(rows))
	for i := range rows {
		out = append(out, transactionView(&rows[i]))
	}
	c.JSON(http.StatusOK, gin.H{"transactions": out})
}
