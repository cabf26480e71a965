// Package ratelimit enforces fixed-window request budgets in Redis so that
// every API replica shares one counter per client.
package ratelimit

import (
	"context"
	_ "embed"
	"fmt"
	"time"

	"github.com/healthchain/marketplace/common/logger"
	"github.com/redis/go-redis/v9"
)

//go:embed rate_limit.lua
var fixedWindowScript string

const keyPrefix = "marketplace:ratelimit:"

// Result is one budget decision
type Result struct {
	Allowed    bool
	Count      int64
	Limit      int64
	RetryAfter time.Duration // zero when allowed
}

// Remaining is the number of requests left in the window
func (r *Result) Remaining() int64 {
	if n := r.Limit - r.Count; n > 0 {
		return n
	}
	return 0
}

// Checker is what the HTTP middleware needs from a limiter
type Checker interface {
	Allow(ctx context.Context, client string, limit int64, window time.Duration) (*Result, error)
}

// RateLimiter runs the fixed-window Lua script against Redis
type RateLimiter struct {
	rdb    *redis.Client
	script *redis.Script
	log    *logger.Logger
}

// NewRateLimiter creates a limiter on rdb
func NewRateLimiter(rdb *redis.Client, log *logger.Logger) *RateLimiter {
	return &RateLimiter{
		rdb:    rdb,
		script: redis.NewScript(fixedWindowScript),
		log:    log.WithComponent("ratelimit"),
	}
}

// Allow counts one request from client and reports whether it fits the budget
func (r *RateLimiter) Allow(ctx context.Context, client string, limit int64, window time.Duration) (*Result, error) {
	seconds := int64(window / time.Second)
	if seconds < 1 {
		seconds = 1
	}

	key := keyPrefix + client
	raw, err := r.script.Run(ctx, r.rdb, []string{key}, limit, seconds).Result()
	if err != nil {
		return nil, fmt.Errorf("ratelimit: run script: %w", err)
	}

	res, err := parseResult(raw)
	if err != nil {
		return nil, err
	}
	if !res.Allowed {
		r.log.Warn("rate limit exceeded", "client", client, "count", res.Count, "limit", res.Limit)
	}
	return res, nil
}

// parseResult decodes the script reply {allowed, count, limit, retry_after}
func parseResult(raw interface{}) (*Result, error) {
	fields, ok := raw.([]interface{})
	if !ok || len(fields) != 4 {
		return nil, fmt.Errorf("ratelimit: unexpected script reply %T", raw)
	}

	var v [4]int64
	for i, f := range fields {
		n, ok := f.(int64)
		if !ok {
			return nil, fmt.Errorf("ratelimit: reply element %d is %T", i, f)
		}
		v[i] = n
	}

	return &Result{
		Allowed:    v[0] == 1,
		Count:      v[1],
		Limit:      v[2],
		RetryAfter: time.Duration(v[3]) * time.Second,
	}, nil
}
