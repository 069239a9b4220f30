// Package admin registers the operator API under /v0/admin.
package admin

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/voxdesk/voxdesk/internal/account"
	"github.com/voxdesk/voxdesk/internal/config"
	handlers "github.com/voxdesk/voxdesk/internal/http/api/admin/handlers"
	"github.com/voxdesk/voxdesk/internal/http/middleware"
	"github.com/voxdesk/voxdesk/internal/ledger"
	"github.com/voxdesk/voxdesk/internal/metrics"
	"github.com/voxdesk/voxdesk/internal/models"
	"github.com/voxdesk/voxdesk/internal/plan"
	"github.com/voxdesk/voxdesk/internal/ratelimit"
	"github.com/voxdesk/voxdesk/internal/reconcile"
	"github.com/voxdesk/voxdesk/internal/security"
	"github.com/voxdesk/voxdesk/internal/usage"
	"gorm.io/gorm"
)

// Deps are the services behind the admin routes.
type Deps struct {
	DB        *gorm.DB
	JWT       config.JWTConfig
	Accounts  *account.Service
	Catalog   *plan.Catalog
	Ledger    *ledger.Ledger
	Reconcile *reconcile.Service
	Recorder  *usage.Recorder
	Limiter   *ratelimit.Manager
	Metrics   *metrics.Metrics
}

// RegisterAdminRoutes registers admin routes, middleware, and handlers.
func RegisterAdminRoutes(r *gin.Engine, deps Deps) {
	if r == nil || deps.DB == nil {
		return
	}

	healthHandler := handlers.NewHealthHandler(deps.DB)
	r.GET("/healthz", healthHandler.Healthz)

	adminGroup := r.Group("/v0/admin")

	authHandler := handlers.NewAuthHandler(deps.DB, deps.JWT)
	adminGroup.POST("/login", middleware.Throttle(deps.Limiter, ratelimit.ScopeAdminLogin, deps.Metrics), authHandler.Login)

	authed := adminGroup.Group("")
	authed.Use(adminAuthMiddleware(deps.DB, deps.JWT))

	transactionHandler := handlers.NewTransactionHandler(deps.Ledger, deps.Reconcile)
	authed.GET("/transactions", transactionHandler.List)
	authed.GET("/transactions/pending", transactionHandler.Pending)
	authed.POST("/transactions/:id/review", transactionHandler.Review)

	accountHandler := handlers.NewAccountHandler(deps.DB, deps.Accounts, deps.Ledger, deps.Catalog)
	authed.GET("/accounts", accountHandler.List)
	authed.GET("/accounts/:id", accountHandler.Get)
	authed.PUT("/accounts/:id/plan", accountHandler.SetPlan)
	authed.PUT("/accounts/:id/overrides", accountHandler.SetOverrides)
	authed.POST("/accounts/:id/disable", accountHandler.Disable)
	authed.POST("/accounts/:id/enable", accountHandler.Enable)

	usageHandler := handlers.NewUsageHandler(deps.Recorder)
	authed.GET("/usage", usageHandler.List)
	authed.GET("/usage/fingerprints/:fingerprint", usageHandler.Fingerprint)
}

// adminAuthMiddleware validates admin JWTs and loads admin context.
func adminAuthMiddleware(db *gorm.DB, jwtCfg config.JWTConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing authorization header"})
			return
		}

		token := strings.TrimPrefix(authHeader, "Bearer ")
		if token == authHeader {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization format"})
			return
		}
		token = strings.TrimSpace(token)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "empty token"})
			return
		}

		claims, errJWT := security.ParseAdminToken(jwtCfg.Secret, token)
		if errJWT != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		var admin models.Admin
		if errFind := db.WithContext(c.Request.Context()).First(&admin, claims.AdminID).Error; errFind != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "admin not found"})
			return
		}
		if !admin.Active {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "admin disabled"})
			return
		}

		c.Set(handlers.ContextAdminID, admin.ID)
		c.Set("adminEmail", admin.Email)
		c.Next()
	}
}
