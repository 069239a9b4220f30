package ratelimit

import (
	"context"
	"time"
)

// Result describes the outcome of a rate limit check.
type Result struct {
	Allowed   bool
	Remaining int
	Reset     time.Time
}

// Limiter provides rate limit checks.
type Limiter interface {
	Allow(ctx context.Context, key string, limit int, now time.Time) (Result, error)
}

// Scope names a group of endpoints that share a per-client budget.
type Scope string

const (
	// ScopePublic covers the unauthenticated usage and quota endpoints.
	ScopePublic Scope = "public"
	// ScopeWebhook covers the checkout webhook.
	ScopeWebhook Scope = "webhook"
	// ScopeAdminLogin covers the admin login endpoint.
	ScopeAdminLogin Scope = "admin_login"
)
