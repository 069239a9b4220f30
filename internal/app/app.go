// Package app wires configuration, storage and HTTP routes into a running server.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/voxdesk/voxdesk/internal/account"
	"github.com/voxdesk/voxdesk/internal/analytics"
	"github.com/voxdesk/voxdesk/internal/checkout"
	"github.com/voxdesk/voxdesk/internal/config"
	"github.com/voxdesk/voxdesk/internal/db"
	"github.com/voxdesk/voxdesk/internal/http/api/admin"
	"github.com/voxdesk/voxdesk/internal/http/api/front"
	"github.com/voxdesk/voxdesk/internal/http/api/webhooks"
	"github.com/voxdesk/voxdesk/internal/http/middleware"
	"github.com/voxdesk/voxdesk/internal/ledger"
	"github.com/voxdesk/voxdesk/internal/metrics"
	"github.com/voxdesk/voxdesk/internal/plan"
	"github.com/voxdesk/voxdesk/internal/providerkeys"
	"github.com/voxdesk/voxdesk/internal/quota"
	"github.com/voxdesk/voxdesk/internal/ratelimit"
	"github.com/voxdesk/voxdesk/internal/reconcile"
	"github.com/voxdesk/voxdesk/internal/usage"
	"gorm.io/gorm"

	log "github.com/sirupsen/logrus"
)

const shutdownTimeout = 5 * time.Second

// Services holds the long-lived components behind the HTTP routes.
type Services struct {
	DB           *gorm.DB
	Metrics      *metrics.Metrics
	Registry     *prometheus.Registry
	Catalog      *plan.Catalog
	Accounts     *account.Service
	Recorder     *usage.Recorder
	Evaluator    *quota.Evaluator
	Ledger       *ledger.Ledger
	Reconcile    *reconcile.Service
	ProviderKeys *providerkeys.Service
	Analytics    *analytics.Service
	Verifier     *checkout.Verifier
	Processor    *checkout.Processor
	Limiter      *ratelimit.Manager
}

// Migrate opens the database and runs migrations.
func Migrate(ctx context.Context, cfg config.AppConfig) error {
	conn, err := db.Open(cfg.DatabaseDSN)
	if err != nil {
		return err
	}
	return db.Migrate(conn.WithContext(ctx))
}

// NewServices builds every service from cfg over an open, migrated connection.
// usageClient selects the Redis usage backend when non-nil.
func NewServices(cfg config.AppConfig, conn *gorm.DB, usageClient *redis.Client) (*Services, error) {
	reg := prometheus.NewRegistry()
	m, errMetrics := metrics.New(reg)
	if errMetrics != nil {
		return nil, fmt.Errorf("register metrics: %w", errMetrics)
	}

	var store usage.Store = usage.NewGormStore(conn)
	if usageClient != nil {
		store = usage.NewRedisStore(usageClient, cfg.Redis.Prefix, cfg.Usage.RedisTTL)
	}

	loc := cfg.Quota.Location()
	accounts := account.NewService(conn)
	recorder := usage.NewRecorder(store, loc, nil, m)
	l := ledger.New(conn, m)

	return &Services{
		DB:           conn,
		Metrics:      m,
		Registry:     reg,
		Catalog:      plan.NewCatalog(cfg.Quota.FreeCallsPerDay, cfg.Quota.FreeMaxCallSeconds),
		Accounts:     accounts,
		Recorder:     recorder,
		Evaluator:    quota.NewEvaluator(recorder, m),
		Ledger:       l,
		Reconcile:    reconcile.NewService(conn, l, accounts, m),
		ProviderKeys: providerkeys.NewService(conn),
		Analytics:    analytics.NewService(conn, loc),
		Verifier:     checkout.NewVerifier(cfg.Checkout.WebhookSecret, cfg.Checkout.Tolerance),
		Processor:    checkout.NewProcessor(conn, l, accounts),
		Limiter:      ratelimit.NewManager(ratelimit.StaticSettings(ratelimit.SettingsFromConfig(cfg)), nil, nil),
	}, nil
}

// NewRouter registers middleware and every route group on a fresh engine.
func NewRouter(cfg config.AppConfig, s *Services) *gin.Engine {
	engine := gin.New()
	engine.Use(gin.Recovery(), middleware.RequestLogger(), middleware.CORS(), metrics.GinMiddleware(s.Metrics))

	if s.Registry != nil {
		engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.Registry, promhttp.HandlerOpts{})))
	}

	front.RegisterFrontRoutes(engine, front.Deps{
		Session:      cfg.Session,
		Accounts:     s.Accounts,
		Catalog:      s.Catalog,
		Recorder:     s.Recorder,
		Evaluator:    s.Evaluator,
		Ledger:       s.Ledger,
		ProviderKeys: s.ProviderKeys,
		Analytics:    s.Analytics,
		Limiter:      s.Limiter,
		Metrics:      s.Metrics,
	})

	defaultPlan, ok := plan.ParseTier(cfg.Checkout.DefaultPlan)
	if !ok || defaultPlan == plan.TierFree {
		log.WithField("plan", cfg.Checkout.DefaultPlan).Warn("app: invalid checkout default plan, using pro")
		defaultPlan = plan.TierPro
	}
	webhooks.RegisterWebhookRoutes(engine, webhooks.Deps{
		Verifier:    s.Verifier,
		Processor:   s.Processor,
		DefaultPlan: defaultPlan,
		Limiter:     s.Limiter,
		Metrics:     s.Metrics,
	})

	admin.RegisterAdminRoutes(engine, admin.Deps{
		DB:        s.DB,
		JWT:       cfg.JWT,
		Accounts:  s.Accounts,
		Catalog:   s.Catalog,
		Ledger:    s.Ledger,
		Reconcile: s.Reconcile,
		Recorder:  s.Recorder,
		Limiter:   s.Limiter,
		Metrics:   s.Metrics,
	})

	engine.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	})
	return engine
}

// RunServer opens storage, seeds the first admin and serves HTTP until ctx is cancelled.
func RunServer(ctx context.Context, cfg config.AppConfig) error {
	ConfigureLogging(cfg.Log)
	if cfg.JWT.Secret == "" {
		return errors.New("app: jwt secret is required")
	}
	if cfg.Session.Secret == "" {
		return errors.New("app: session secret is required")
	}
	if cfg.Checkout.WebhookSecret == "" {
		log.Warn("app: checkout webhook secret not set, card payments will be rejected")
	}

	conn, err := db.Open(cfg.DatabaseDSN)
	if err != nil {
		return err
	}
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		return errMigrate
	}
	if _, errBootstrap := BootstrapAdmin(ctx, conn, cfg.Admin); errBootstrap != nil {
		return errBootstrap
	}

	usageClient, errRedis := openUsageRedis(ctx, cfg)
	if errRedis != nil {
		return errRedis
	}
	if usageClient != nil {
		defer func() { _ = usageClient.Close() }()
	}

	services, errServices := NewServices(cfg, conn, usageClient)
	if errServices != nil {
		return errServices
	}
	defer func() { _ = services.Limiter.Close() }()
	services.Registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           NewRouter(cfg, services),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if errShutdown := srv.Shutdown(shutdownCtx); errShutdown != nil {
			log.Errorf("server shutdown error: %v", errShutdown)
		}
	}()

	log.WithFields(log.Fields{
		"addr":          srv.Addr,
		"usage_backend": cfg.Usage.Backend,
		"config":        cfg.ConfigPath,
	}).Info("starting server")
	if errListen := srv.ListenAndServe(); errListen != nil && !errors.Is(errListen, http.ErrServerClosed) {
		return errListen
	}
	return nil
}

// openUsageRedis connects the usage counter backend when it is configured for Redis.
func openUsageRedis(ctx context.Context, cfg config.AppConfig) (*redis.Client, error) {
	if cfg.Usage.Backend != config.UsageBackendRedis {
		return nil, nil
	}
	if !cfg.Redis.RedisEnabled() {
		return nil, errors.New("app: usage backend redis requires redis.addr")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if errPing := client.Ping(pingCtx).Err(); errPing != nil {
		_ = client.Close()
		return nil, fmt.Errorf("app: connect usage redis: %w", errPing)
	}
	return client, nil
}
