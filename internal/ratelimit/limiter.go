package ratelimit

import (
	"context"
	"errors"
	"strings"

	"github.com/agencyops/credcore/internal/config"
	redis "github.com/redis/go-redis/v9"
)

// TransactionLimiter throttles interactive credit adjustments per organization.
// A nil limiter means rate limiting is disabled and everything is allowed.
type TransactionLimiter struct {
	enabled bool
	bucket  *TokenBucket
	locker  *Locker
	rate    float64
	burst   int
}

func NewTransactionLimiter(cfg config.Config) (*TransactionLimiter, error) {
	limitCfg := cfg.RateLimit
	if !limitCfg.Enabled {
		return nil, nil
	}

	addr := strings.TrimSpace(limitCfg.RedisAddr)
	if addr == "" {
		return nil, errors.New("rate limit redis addr is required")
	}
	if limitCfg.TransactionRate <= 0 || limitCfg.TransactionBurst <= 0 {
		return nil, errors.New("transaction rate limit must be positive")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: strings.TrimSpace(limitCfg.RedisPassword),
		DB:       limitCfg.RedisDB,
	})

	return &TransactionLimiter{
		enabled: true,
		bucket:  NewTokenBucket(client),
		locker:  NewLocker(client),
		rate:    limitCfg.TransactionRate,
		burst:   limitCfg.TransactionBurst,
	}, nil
}

// Allow checks the per-organization bucket for one transaction request.
func (l *TransactionLimiter) Allow(ctx context.Context, orgID string) (*RateLimitResult, error) {
	if l == nil || !l.enabled {
		return &RateLimitResult{Allowed: true}, nil
	}
	return l.bucket.Allow(ctx, "txn:"+orgID, l.rate, l.burst)
}

// Locker exposes the shared lock client for the refill engine.
func (l *TransactionLimiter) Locker() *Locker {
	if l == nil {
		return nil
	}
	return l.locker
}
