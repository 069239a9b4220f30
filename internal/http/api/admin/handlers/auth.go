package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/voxdesk/voxdesk/internal/config"
	"github.com/voxdesk/voxdesk/internal/models"
	"github.com/voxdesk/voxdesk/internal/security"
	"gorm.io/gorm"

	log "github.com/sirupsen/logrus"
)

// AuthHandler signs admins in.
type AuthHandler struct {
	db     *gorm.DB
	jwtCfg config.JWTConfig
	nowFn  func() time.Time
}

// NewAuthHandler constructs an AuthHandler.
func NewAuthHandler(db *gorm.DB, jwtCfg config.JWTConfig) *AuthHandler {
	return &AuthHandler{db: db, jwtCfg: jwtCfg, nowFn: time.Now}
}

// loginRequest carries the password and the current authenticator code.
type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Code     string `json:"code"`
}

// Login verifies email, password and TOTP code and returns a short-lived admin token.
func (h *AuthHandler) Login(c *gin.Context) {
	var body loginRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	email := strings.ToLower(strings.TrimSpace(body.Email))
	if email == "" || body.Password == "" || strings.TrimSpace(body.Code) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "email, password and code are required"})
		return
	}

	ctx := c.Request.Context()
	var admin models.Admin
	if errFind := h.db.WithContext(ctx).Where("email = ?", email).Take(&admin).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query admin failed"})
		return
	}

	now := h.nowFn()
	if !security.CheckPassword(admin.Password, body.Password) || !security.ValidateTOTP(body.Code, admin.TOTPSecret, now) {
		log.WithField("admin_id", admin.ID).Warn("admin: failed login")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}
	if !admin.Active {
		c.JSON(http.StatusForbidden, gin.H{"error": "admin disabled"})
		return
	}

	token, expiresAt, errIssue := security.IssueAdminToken(h.jwtCfg.Secret, admin.ID, admin.Email, h.jwtCfg.Expiry, now)
	if errIssue != nil {
		log.WithError(errIssue).Error("admin: issue token failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "issue token failed"})
		return
	}

	loginAt := now.UTC()
	if errUpdate := h.db.WithContext(ctx).Model(&models.Admin{}).
		Where("id = ?", admin.ID).
		Updates(map[string]any{"last_login_at": loginAt, "updated_at": loginAt}).Error; errUpdate != nil {
		log.WithError(errUpdate).WithField("admin_id", admin.ID).Warn("admin: record login time failed")
	}

	log.WithField("admin_id", admin.ID).Info("admin: signed in")
	c.JSON(http.StatusOK, gin.H{
		"token":      token,
		"expires_at": expiresAt,
		"admin": gin.H{
			"id":    admin.ID,
			"email": admin.Email,
		},
	})
}
