// Package ratelimit throttles tag writes using Redis + Lua. Every mutation
// of the namespace (moves, deployments, rollbacks) counts against a global
// write budget and a per-environment budget, so one runaway pipeline cannot
// starve the others.
package ratelimit

import (
	"context"
	_ "embed"
	"fmt"

	"github.com/redis/go-redis/v9"
)

//go:embed rate_limit.lua
var rateLimitScript string

// Logger is the minimal logging interface the limiter needs.
type Logger interface {
	Debug(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// Result contains the outcome of a rate limit check.
type Result struct {
	Allowed           bool
	CurrentCount      int64
	Limit             int64
	RetryAfterSeconds int64
}

// Limiter checks write budgets atomically via a Lua script.
type Limiter struct {
	redis  *redis.Client
	script *redis.Script
	log    Logger
}

// New creates a limiter backed by redisClient.
func New(redisClient *redis.Client, log Logger) *Limiter {
	return &Limiter{
		redis:  redisClient,
		script: redis.NewScript(rateLimitScript),
		log:    log,
	}
}

// CheckWriteLimit checks the service-wide write budget.
func (l *Limiter) CheckWriteLimit(ctx context.Context, cfg Config) (*Result, error) {
	return l.check(ctx, "rate_limit:writes", cfg.WriteLimit, cfg.WindowSeconds)
}

// CheckEnvironmentLimit checks the per-environment write budget. Unknown or
// empty environments share the global counter only.
func (l *Limiter) CheckEnvironmentLimit(ctx context.Context, env string, cfg Config) (*Result, error) {
	if env == "" {
		return &Result{Allowed: true}, nil
	}
	key := fmt.Sprintf("rate_limit:env:%s", env)
	return l.check(ctx, key, cfg.EnvironmentLimit, cfg.WindowSeconds)
}

func (l *Limiter) check(ctx context.Context, key string, limit int64, windowSec int) (*Result, error) {
	raw, err := l.script.Run(ctx, l.redis, []string{key}, limit, windowSec).Result()
	if err != nil {
		l.log.Error("rate limit check failed", "key", key, "error", err)
		return nil, fmt.Errorf("rate limit check failed: %w", err)
	}

	// Script returns {allowed, current_count, limit, retry_after}.
	fields, ok := raw.([]interface{})
	if !ok || len(fields) != 4 {
		return nil, fmt.Errorf("unexpected rate limit script result: %v", raw)
	}

	result := &Result{
		Allowed:           fields[0].(int64) == 1,
		CurrentCount:      fields[1].(int64),
		Limit:             fields[2].(int64),
		RetryAfterSeconds: fields[3].(int64),
	}

	if !result.Allowed {
		l.log.Warn("rate limit exceeded",
			"key", key,
			"current", result.CurrentCount,
			"limit", result.Limit,
			"retry_after", result.RetryAfterSeconds)
	} else {
		l.log.Debug("rate limit check passed", "key", key, "current", result.CurrentCount)
	}
	return result, nil
}
