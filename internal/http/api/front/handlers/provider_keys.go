package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/voxdesk/voxdesk/internal/providerkeys"
)

// ProviderKeyHandler manages the signed-in account's own voice and telephony provider keys.
type ProviderKeyHandler struct {
	keys *providerkeys.Service
}

// NewProviderKeyHandler constructs a ProviderKeyHandler.
func NewProviderKeyHandler(keys *providerkeys.Service) *ProviderKeyHandler {
	return &ProviderKeyHandler{keys: keys}
}

// List returns the account's keys with secrets masked.
func (h *ProviderKeyHandler) List(c *gin.Context) {
	views, errList := h.keys.List(c.Request.Context(), currentAccountID(c))
	if errList != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list provider keys failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"provider_keys": views})
}

// Put stores a key, replacing the account's existing key for the same provider.
func (h *ProviderKeyHandler) Put(c *gin.Context) {
	var body providerkeys.Input
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	view, errPut := h.keys.Put(c.Request.Context(), currentAccountID(c), body)
	if errPut != nil {
		switch {
		case errors.Is(errPut, providerkeys.ErrUnsupportedProvider):
			c.JSON(http.StatusBadRequest, gin.H{"error": "unsupported provider"})
		case errors.Is(errPut, providerkeys.ErrMissingAPIKey):
			c.JSON(http.StatusBadRequest, gin.H{"error": "api_key is required"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "save provider key failed"})
		}
		return
	}
	c.JSON(http.StatusOK, gin.H{"provider_key": view})
}

// Delete removes one of the account's keys.
func (h *ProviderKeyHandler) Delete(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	if errDelete := h.keys.Delete(c.Request.Context(), currentAccountID(c), id); errDelete != nil {
		if errors.Is(errDelete, providerkeys.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "provider key not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "delete provider key failed"})
		return
	}
	c.Status(http.StatusNoContent)
}
