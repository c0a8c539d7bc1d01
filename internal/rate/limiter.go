package rate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Config holds rate limiter tuning parameters.
type Config struct {
	MaxLoginAttempts int
	LoginWindow      time.Duration
	MaxCodeRequests  int
	CodeWindow       time.Duration
}

// DefaultConfig allows five failed logins per fifteen minutes and five code requests
// per ten minutes.
func DefaultConfig() Config {
	return Config{
		MaxLoginAttempts: 5,
		LoginWindow:      15 * time.Minute,
		MaxCodeRequests:  5,
		CodeWindow:       10 * time.Minute,
	}
}

// Limiter enforces fixed-window budgets for failed logins and verification code
// requests using Redis counters.
type Limiter struct {
	redis  redis.UniversalClient
	prefix string
	config Config
}

// New creates a rate [Limiter] backed by the given Redis client.
func New(redisClient redis.UniversalClient, prefix string, cfg Config) *Limiter {
	if prefix == "" {
		prefix = "portal"
	}
	return &Limiter{
		redis:  redisClient,
		prefix: prefix,
		config: cfg,
	}
}

// CheckLogin reports ErrRateLimited once an email has used its failed-login budget.
func (l *Limiter) CheckLogin(ctx context.Context, email string) error {
	count, err := l.redis.Get(ctx, l.loginKey(email)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	if count >= int64(l.config.MaxLoginAttempts) {
		return ErrRateLimited
	}
	return nil
}

// IncrementLogin records a failed login attempt.
func (l *Limiter) IncrementLogin(ctx context.Context, email string) error {
	_, err := l.incrementWithTTL(ctx, l.loginKey(email), l.config.LoginWindow)
	return err
}

// ResetLogin clears the failed-login counter after a successful login.
func (l *Limiter) ResetLogin(ctx context.Context, email string) error {
	if err := l.redis.Del(ctx, l.loginKey(email)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// AllowCodeRequest counts one code request for userID and fails once the window
// budget is spent.
func (l *Limiter) AllowCodeRequest(ctx context.Context, userID string) error {
	count, err := l.incrementWithTTL(ctx, l.codeKey(userID), l.config.CodeWindow)
	if err != nil {
		return err
	}
	if count > int64(l.config.MaxCodeRequests) {
		return ErrRateLimited
	}
	return nil
}

func (l *Limiter) loginKey(email string) string {
	return l.prefix + ":rl:login:" + strings.ToLower(strings.TrimSpace(email))
}

func (l *Limiter) codeKey(userID string) string {
	return l.prefix + ":rl:code:" + userID
}

func (l *Limiter) incrementWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	count, err := l.redis.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	// Fixed-window semantics: set TTL only for the first hit in the window.
	if count == 1 {
		if err := l.redis.Expire(ctx, key, ttl).Err(); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
	}

	return count, nil
}
