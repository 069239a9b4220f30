package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
	"github.com/voxdesk/voxdesk/internal/plan"
	"gopkg.in/yaml.v3"
)

const (
	EnvConfigPath        = "CONFIG_PATH"
	EnvDBConnection      = "DB_CONNECTION"
	EnvPort              = "PORT"
	EnvJWTSecret         = "JWT_SECRET"
	EnvJWTExpiry         = "JWT_EXPIRY"
	EnvSessionSecret     = "SESSION_SECRET"
	EnvStripeSecret      = "STRIPE_WEBHOOK_SECRET"
	EnvStripeTolerance   = "STRIPE_WEBHOOK_TOLERANCE"
	EnvFreeCallsPerDay   = "FREE_CALLS_PER_DAY"
	EnvFreeMaxCallSecs   = "FREE_MAX_CALL_SECONDS"
	EnvQuotaTimezone     = "QUOTA_TIMEZONE"
	EnvUsageBackend      = "USAGE_BACKEND"
	EnvUsageRedisTTL     = "USAGE_REDIS_TTL"
	EnvRedisAddr         = "REDIS_ADDR"
	EnvRedisPassword     = "REDIS_PASSWORD"
	EnvRedisDB           = "REDIS_DB"
	EnvRedisPrefix       = "REDIS_PREFIX"
	EnvRateLimit         = "RATE_LIMIT"
	EnvAdminEmail        = "ADMIN_EMAIL"
	EnvAdminPassword     = "ADMIN_PASSWORD"
	EnvLogLevel          = "LOG_LEVEL"
	EnvLogFormat         = "LOG_FORMAT"
	EnvCheckoutPlan      = "CHECKOUT_DEFAULT_PLAN"
	EnvSessionIssuer     = "SESSION_ISSUER"
	EnvAdminSessionLimit = "ADMIN_LOGIN_RATE_LIMIT"
)

// Usage backends.
const (
	UsageBackendDatabase = "database"
	UsageBackendRedis    = "redis"
)

// Defaults applied when neither the config file nor the environment sets a value.
const (
	defaultPort               = 8318
	defaultJWTExpiry          = 30 * time.Minute
	defaultWebhookTolerance   = 5 * time.Minute
	defaultFreeCallsPerDay    = 5
	defaultFreeMaxCallSeconds = 180
	defaultUsageRedisTTL      = 72 * time.Hour
	defaultRedisPrefix        = "voxdesk"
	defaultRateLimit          = 20
	defaultAdminLoginLimit    = 3
	defaultCheckoutPlan       = "pro"
)

// ErrMissingDatabaseDSN indicates no database DSN is present in the config file or environment.
var ErrMissingDatabaseDSN = errors.New("missing database dsn (set DB_CONNECTION, `database-dsn` or `database.dsn`)")

// JWTConfig holds the admin token secret and expiry.
type JWTConfig struct {
	Secret string        `yaml:"secret"`
	Expiry time.Duration `yaml:"expiry"`
}

// SessionConfig holds the verification settings for end-user session tokens.
type SessionConfig struct {
	Secret string `yaml:"secret"`
	Issuer string `yaml:"issuer"`
}

// CheckoutConfig holds card-processor webhook settings.
type CheckoutConfig struct {
	WebhookSecret string        `yaml:"webhook-secret"`
	Tolerance     time.Duration `yaml:"tolerance"`
	DefaultPlan   string        `yaml:"default-plan"`
}

// QuotaConfig holds free-tier allowances and the accounting timezone.
type QuotaConfig struct {
	FreeCallsPerDay    int    `yaml:"free-calls-per-day"`
	FreeMaxCallSeconds int    `yaml:"free-max-call-seconds"`
	Timezone           string `yaml:"timezone"`
}

// UsageConfig selects the usage counter backend.
type UsageConfig struct {
	Backend  string        `yaml:"backend"`
	RedisTTL time.Duration `yaml:"redis-ttl"`
}

// RedisConfig holds the shared Redis connection settings.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
}

// RateLimitConfig holds per-second throttles for public endpoints.
type RateLimitConfig struct {
	Limit      int `yaml:"limit"`
	AdminLogin int `yaml:"admin-login"`
}

// AdminBootstrapConfig seeds the first admin account when none exists.
type AdminBootstrapConfig struct {
	Email    string `yaml:"email"`
	Password string `yaml:"password"`
}

// LogConfig controls logrus output.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// databaseFile maps the nested `database.dsn` form.
type databaseFile struct {
	DSN string `yaml:"dsn"`
}

// AppConfig holds resolved application configuration values.
type AppConfig struct {
	ConfigPath  string               `yaml:"-"`
	Port        int                  `yaml:"port"`
	DatabaseDSN string               `yaml:"database-dsn"`
	Database    databaseFile         `yaml:"database"`
	JWT         JWTConfig            `yaml:"jwt"`
	Session     SessionConfig        `yaml:"session"`
	Checkout    CheckoutConfig       `yaml:"checkout"`
	Quota       QuotaConfig          `yaml:"quota"`
	Usage       UsageConfig          `yaml:"usage"`
	Redis       RedisConfig          `yaml:"redis"`
	RateLimit   RateLimitConfig      `yaml:"rate-limit"`
	Admin       AdminBootstrapConfig `yaml:"admin"`
	Log         LogConfig            `yaml:"log"`
}

// LoadFromEnv loads a .env file when present, then resolves the config from the file and environment.
func LoadFromEnv() (AppConfig, error) {
	if errDotenv := godotenv.Load(); errDotenv != nil && !errors.Is(errDotenv, os.ErrNotExist) {
		log.WithError(errDotenv).Warn("config: load .env failed")
	}
	return Load(ResolveConfigPath(os.Getenv(EnvConfigPath)))
}

// ResolveConfigPath normalizes the config path and applies defaults.
func ResolveConfigPath(p string) string {
	trimmed := strings.TrimSpace(p)
	if trimmed == "" {
		trimmed = "./config.yaml"
	}
	if abs, err := filepath.Abs(trimmed); err == nil {
		return abs
	}
	return trimmed
}

// Load reads the optional YAML file at configPath and applies environment overrides.
func Load(configPath string) (AppConfig, error) {
	var cfg AppConfig

	data, errRead := os.ReadFile(configPath)
	switch {
	case errRead == nil:
		if errUnmarshal := yaml.Unmarshal(data, &cfg); errUnmarshal != nil {
			return AppConfig{}, fmt.Errorf("parse config file: %w", errUnmarshal)
		}
	case errors.Is(errRead, os.ErrNotExist):
	default:
		return AppConfig{}, fmt.Errorf("read config file: %w", errRead)
	}
	cfg.ConfigPath = configPath

	applyEnv(&cfg)
	applyDefaults(&cfg)

	if cfg.DatabaseDSN == "" {
		return AppConfig{}, ErrMissingDatabaseDSN
	}
	return cfg, nil
}

// applyEnv overlays non-empty environment variables onto cfg.
func applyEnv(cfg *AppConfig) {
	envString(EnvDBConnection, &cfg.DatabaseDSN)
	envInt(EnvPort, &cfg.Port)
	envString(EnvJWTSecret, &cfg.JWT.Secret)
	envDuration(EnvJWTExpiry, &cfg.JWT.Expiry)
	envString(EnvSessionSecret, &cfg.Session.Secret)
	envString(EnvSessionIssuer, &cfg.Session.Issuer)
	envString(EnvStripeSecret, &cfg.Checkout.WebhookSecret)
	envDuration(EnvStripeTolerance, &cfg.Checkout.Tolerance)
	envString(EnvCheckoutPlan, &cfg.Checkout.DefaultPlan)
	envInt(EnvFreeCallsPerDay, &cfg.Quota.FreeCallsPerDay)
	envInt(EnvFreeMaxCallSecs, &cfg.Quota.FreeMaxCallSeconds)
	envString(EnvQuotaTimezone, &cfg.Quota.Timezone)
	envString(EnvUsageBackend, &cfg.Usage.Backend)
	envDuration(EnvUsageRedisTTL, &cfg.Usage.RedisTTL)
	envString(EnvRedisAddr, &cfg.Redis.Addr)
	envString(EnvRedisPassword, &cfg.Redis.Password)
	envInt(EnvRedisDB, &cfg.Redis.DB)
	envString(EnvRedisPrefix, &cfg.Redis.Prefix)
	envInt(EnvRateLimit, &cfg.RateLimit.Limit)
	envInt(EnvAdminSessionLimit, &cfg.RateLimit.AdminLogin)
	envString(EnvAdminEmail, &cfg.Admin.Email)
	envString(EnvAdminPassword, &cfg.Admin.Password)
	envString(EnvLogLevel, &cfg.Log.Level)
	envString(EnvLogFormat, &cfg.Log.Format)
}

// applyDefaults fills zero values and normalizes strings.
func applyDefaults(cfg *AppConfig) {
	cfg.DatabaseDSN = strings.TrimSpace(cfg.DatabaseDSN)
	if cfg.DatabaseDSN == "" {
		cfg.DatabaseDSN = strings.TrimSpace(cfg.Database.DSN)
	}
	if cfg.Port <= 0 || cfg.Port > 65535 {
		cfg.Port = defaultPort
	}
	if cfg.JWT.Expiry <= 0 {
		cfg.JWT.Expiry = defaultJWTExpiry
	}
	if cfg.Checkout.Tolerance <= 0 {
		cfg.Checkout.Tolerance = defaultWebhookTolerance
	}
	cfg.Checkout.DefaultPlan = strings.ToLower(strings.TrimSpace(cfg.Checkout.DefaultPlan))
	if cfg.Checkout.DefaultPlan == "" {
		cfg.Checkout.DefaultPlan = defaultCheckoutPlan
	}
	cfg.Quota.FreeCallsPerDay = quotaLimit(cfg.Quota.FreeCallsPerDay, defaultFreeCallsPerDay)
	cfg.Quota.FreeMaxCallSeconds = quotaLimit(cfg.Quota.FreeMaxCallSeconds, defaultFreeMaxCallSeconds)
	cfg.Usage.Backend = strings.ToLower(strings.TrimSpace(cfg.Usage.Backend))
	if cfg.Usage.Backend != UsageBackendRedis {
		cfg.Usage.Backend = UsageBackendDatabase
	}
	if cfg.Usage.RedisTTL <= 0 {
		cfg.Usage.RedisTTL = defaultUsageRedisTTL
	}
	cfg.Redis.Addr = strings.TrimSpace(cfg.Redis.Addr)
	cfg.Redis.Prefix = strings.TrimSpace(cfg.Redis.Prefix)
	if cfg.Redis.Prefix == "" {
		cfg.Redis.Prefix = defaultRedisPrefix
	}
	if cfg.Redis.DB < 0 {
		cfg.Redis.DB = 0
	}
	if cfg.RateLimit.Limit < 0 {
		cfg.RateLimit.Limit = 0
	} else if cfg.RateLimit.Limit == 0 {
		cfg.RateLimit.Limit = defaultRateLimit
	}
	if cfg.RateLimit.AdminLogin <= 0 {
		cfg.RateLimit.AdminLogin = defaultAdminLoginLimit
	}
	cfg.Admin.Email = strings.ToLower(strings.TrimSpace(cfg.Admin.Email))
	cfg.Log.Level = strings.ToLower(strings.TrimSpace(cfg.Log.Level))
	cfg.Log.Format = strings.ToLower(strings.TrimSpace(cfg.Log.Format))
}

// Location returns the timezone used to derive accounting periods, UTC when unset or invalid.
func (q QuotaConfig) Location() *time.Location {
	name := strings.TrimSpace(q.Timezone)
	if name == "" {
		return time.UTC
	}
	loc, errLoad := time.LoadLocation(name)
	if errLoad != nil {
		log.WithError(errLoad).WithField("timezone", name).Warn("config: unknown quota timezone, using UTC")
		return time.UTC
	}
	return loc
}

// RedisEnabled reports whether a Redis address is configured.
func (r RedisConfig) RedisEnabled() bool {
	return strings.TrimSpace(r.Addr) != ""
}

func envString(key string, dst *string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}

// quotaLimit treats 0 as unset and any negative value as plan.Unlimited.
func quotaLimit(v, fallback int) int {
	switch {
	case v == 0:
		return fallback
	case v < 0:
		return plan.Unlimited
	}
	return v
}

func envInt(key string, dst *int) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return
	}
	parsed, errParse := strconv.Atoi(raw)
	if errParse != nil {
		log.WithField("key", key).Warn("config: ignoring non-integer value")
		return
	}
	*dst = parsed
}

func envDuration(key string, dst *time.Duration) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return
	}
	parsed, errParse := time.ParseDuration(raw)
	if errParse != nil || parsed <= 0 {
		log.WithField("key", key).Warn("config: ignoring invalid duration")
		return
	}
	*dst = parsed
}
