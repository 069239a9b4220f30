package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/voxdesk/voxdesk/internal/ledger"
	"github.com/voxdesk/voxdesk/internal/models"
	"github.com/voxdesk/voxdesk/internal/reconcile"

	log "github.com/sirupsen/logrus"
)

// TransactionHandler serves the reconciliation queue and the transaction ledger.
type TransactionHandler struct {
	ledger    *ledger.Ledger
	reconcile *reconcile.Service
}

// NewTransactionHandler constructs a TransactionHandler.
func NewTransactionHandler(l *ledger.Ledger, r *reconcile.Service) *TransactionHandler {
	return &TransactionHandler{ledger: l, reconcile: r}
}

// Pending lists manual submissions awaiting review, newest first.
func (h *TransactionHandler) Pending(c *gin.Context) {
	rows, errList := h.ledger.ListPendingManualWithAccounts(c.Request.Context())
	if errList != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list pending transactions failed"})
		return
	}
	out := make([]gin.H, 0, len(rows))
	for i := range rows {
		item := formatTransaction(&rows[i].Transaction)
		item["account_email"] = rows[i].AccountEmail
		item["account_name"] = rows[i].AccountName
		out = append(out, item)
	}
	c.JSON(http.StatusOK, gin.H{"transactions": out})
}

// reviewRequest carries the operator's decision.
type reviewRequest struct {
	Decision string `json:"decision"`
}

// Review approves or rejects a pending manual transaction.
func (h *TransactionHandler) Review(c *gin.Context) {
	id, ok := parseIDParam(c)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	var body reviewRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	decision, errDecision := reconcile.ParseDecision(body.Decision)
	if errDecision != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "decision must be approve or reject"})
		return
	}

	tx, errReview := h.reconcile.ReviewTransaction(c.Request.Context(), id, decision, currentAdminID(c))
	if errReview != nil {
		switch {
		case errors.Is(errReview, ledger.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "transaction not found"})
		case errors.Is(errReview, ledger.ErrNotReviewable):
			c.JSON(http.StatusConflict, gin.H{"error": "transaction is not a pending manual payment"})
		default:
			log.WithError(errReview).WithField("transaction_id", id).Error("admin: review failed")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "review failed"})
		}
		return
	}
	c.JSON(http.StatusOK, gin.H{"transaction": formatTransaction(tx)})
}

// transactionListQuery defines filters for the ledger view.
type transactionListQuery struct {
	AccountID uint64 `form:"account_id"`
	Method    string `form:"method"`
	Status    string `form:"status"`
	Limit     int    `form:"limit,default=100"`
	Offset    int    `form:"offset"`
}

// List returns transactions filtered by account, method and status.
func (h *TransactionHandler) List(c *gin.Context) {
	var q transactionListQuery
	if errBind := c.ShouldBindQuery(&q); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid query"})
		return
	}
	filter := ledger.ListFilter{
		AccountID: q.AccountID,
		Method:    models.TransactionMethod(strings.ToLower(strings.TrimSpace(q.Method))),
		Status:    models.TransactionStatus(strings.ToLower(strings.TrimSpace(q.Status))),
		Limit:     q.Limit,
		Offset:    q.Offset,
	}
	if filter.Method != "" && !filter.Method.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid method"})
		return
	}
	if filter.Status != "" && !filter.Status.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid status"})
		return
	}

	rows, errList := h.ledger.List(c.Request.Context(), filter)
	if errList != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list transactions failed"})
		return
	}
	out := make([]gin.H, 0, len(rows))
	for i := range rows {
		out = append(out, formatTransaction(&rows[i]))
	}
	c.JSON(http.StatusOK, gin.H{"transactions": out})
}
