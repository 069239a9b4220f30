package ratelimit

import (
	"strings"

	"github.com/voxdesk/voxdesk/internal/config"
)

// defaultRedisPrefix namespaces limiter keys when the config leaves the prefix empty.
const defaultRedisPrefix = "voxdesk:rl"

// SettingsConfig captures the limiter settings.
type SettingsConfig struct {
	Limit           int // Requests per second per client for public scopes; 0 disables.
	AdminLoginLimit int // Requests per second per client for admin login; 0 disables.
	RedisEnabled    bool
	RedisAddr       string
	RedisPassword   string
	RedisDB         int
	RedisPrefix     string
}

// LimitFor returns the per-second limit applied to scope.
func (c SettingsConfig) LimitFor(scope Scope) int {
	switch scope {
	case ScopeAdminLogin:
		return c.AdminLoginLimit
	case ScopePublic, ScopeWebhook:
		return c.Limit
	default:
		return 0
	}
}

// SettingsFromConfig derives limiter settings from the application config.
func SettingsFromConfig(cfg config.AppConfig) SettingsConfig {
	out := SettingsConfig{
		Limit:           cfg.RateLimit.Limit,
		AdminLoginLimit: cfg.RateLimit.AdminLogin,
		RedisEnabled:    cfg.Redis.RedisEnabled(),
		RedisAddr:       strings.TrimSpace(cfg.Redis.Addr),
		RedisPassword:   strings.TrimSpace(cfg.Redis.Password),
		RedisDB:         cfg.Redis.DB,
		RedisPrefix:     strings.TrimSpace(cfg.Redis.Prefix),
	}
	if out.RedisPrefix == "" {
		out.RedisPrefix = defaultRedisPrefix
	} else {
		out.RedisPrefix += ":rl"
	}
	if out.RedisDB < 0 {
		out.RedisDB = 0
	}
	if out.Limit < 0 {
		out.Limit = 0
	}
	if out.AdminLoginLimit < 0 {
		out.AdminLoginLimit = 0
	}
	return out
}

// StaticSettings returns a SettingsProvider that always yields cfg.
func StaticSettings(cfg SettingsConfig) SettingsProvider {
	return func() SettingsConfig { return cfg }
}
