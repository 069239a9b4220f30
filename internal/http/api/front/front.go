// Package front registers the end-user API under /v0/front.
package front

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/voxdesk/voxdesk/internal/account"
	"github.com/voxdesk/voxdesk/internal/analytics"
	"github.com/voxdesk/voxdesk/internal/config"
	handlers "github.com/voxdesk/voxdesk/internal/http/api/front/handlers"
	"github.com/voxdesk/voxdesk/internal/http/middleware"
	"github.com/voxdesk/voxdesk/internal/ledger"
	"github.com/voxdesk/voxdesk/internal/metrics"
	"github.com/voxdesk/voxdesk/internal/plan"
	"github.com/voxdesk/voxdesk/internal/providerkeys"
	"github.com/voxdesk/voxdesk/internal/quota"
	"github.com/voxdesk/voxdesk/internal/ratelimit"
	"github.com/voxdesk/voxdesk/internal/security"
	"github.com/voxdesk/voxdesk/internal/usage"

	log "github.com/sirupsen/logrus"
)

// Deps are the services behind the front routes.
type Deps struct {
	Session      config.SessionConfig
	Accounts     *account.Service
	Catalog      *plan.Catalog
	Recorder     *usage.Recorder
	Evaluator    *quota.Evaluator
	Ledger       *ledger.Ledger
	ProviderKeys *providerkeys.Service
	Analytics    *analytics.Service
	Limiter      *ratelimit.Manager
	Metrics      *metrics.Metrics
}

// RegisterFrontRoutes registers the end-user routes.
func RegisterFrontRoutes(r *gin.Engine, deps Deps) {
	if r == nil || deps.Accounts == nil {
		return
	}

	group := r.Group("/v0/front")

	planHandler := handlers.NewPlanFrontHandler(deps.Catalog)
	group.GET("/plans", planHandler.List)

	public := group.Group("")
	public.Use(middleware.Throttle(deps.Limiter, ratelimit.ScopePublic, deps.Metrics))
	public.Use(sessionMiddleware(deps.Accounts, deps.Session, false))

	usageHandler := handlers.NewUsageHandler(deps.Recorder, deps.Evaluator, deps.Catalog, deps.Analytics)
	public.POST("/usage", usageHandler.Report)
	public.POST("/quota/check", usageHandler.QuotaCheck)

	authed := group.Group("")
	authed.Use(sessionMiddleware(deps.Accounts, deps.Session, true))

	authed.GET("/plan", planHandler.Current)

	transactionHandler := handlers.NewTransactionFrontHandler(deps.Ledger)
	authed.POST("/transactions/manual", transactionHandler.SubmitManual)
	authed.GET("/transactions", transactionHandler.List)

	byok := authed.Group("")
	byok.Use(requireCapability(deps.Catalog, func(caps plan.Capabilities) bool { return caps.AllowBYOK }, "plan does not include bring-your-own-key"))

	providerKeyHandler := handlers.NewProviderKeyHandler(deps.ProviderKeys)
	byok.GET("/provider-keys", providerKeyHandler.List)
	byok.POST("/provider-keys", providerKeyHandler.Put)
	byok.DELETE("/provider-keys/:id", providerKeyHandler.Delete)

	analyticsHandler := handlers.NewAnalyticsHandler(deps.Analytics, deps.Catalog)
	authed.GET("/analytics", analyticsHandler.Get)
}

// sessionMiddleware validates the end-user session token and loads the account, creating it on
// first sign-in. When required is false a missing token continues anonymously; a present but
// invalid token is always rejected.
func sessionMiddleware(accounts *account.Service, sessionCfg config.SessionConfig, required bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			if required {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing authorization header"})
				return
			}
			c.Next()
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

		claims, errJWT := security.ParseSessionToken(sessionCfg.Secret, sessionCfg.Issuer, token)
		if errJWT != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		acc, errTouch := accounts.Touch(c.Request.Context(), account.Identity{
			AuthProviderID: claims.Subject,
			Email:          claims.Email,
			Name:           claims.Name,
		})
		if errTouch != nil {
			log.WithError(errTouch).Error("front: load account failed")
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "load account failed"})
			return
		}
		if acc.Disabled {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "account disabled"})
			return
		}

		handlers.SetAccount(c, acc)
		c.Next()
	}
}

// requireCapability rejects accounts whose effective plan lacks a feature.
func requireCapability(catalog *plan.Catalog, allowed func(plan.Capabilities) bool, reason string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !allowed(catalog.Effective(handlers.CurrentAccount(c))) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": reason})
			return
		}
		c.Next()
	}
}
