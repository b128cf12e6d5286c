// Package ratelimit implements Redis-backed request limits per client IP and
// cooldowns per email address.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Config sets the limiter thresholds
type Config struct {
	IPLimit       int           // requests allowed per IP and purpose within IPWindow
	IPWindow      time.Duration // fixed window, starting at the first request
	EmailCooldown time.Duration // minimum gap between mails to one address
}

// DefaultConfig allows 10 requests per 15 minutes and one mail every 2 minutes
func DefaultConfig() Config {
	return Config{
		IPLimit:       10,
		IPWindow:      15 * time.Minute,
		EmailCooldown: 2 * time.Minute,
	}
}

// Limiter counts requests in Redis so limits hold across instances
type Limiter struct {
	client redis.Cmdable
	cfg    Config
}

func NewLimiter(client redis.Cmdable, cfg Config) *Limiter {
	return &Limiter{client: client, cfg: cfg}
}

func ipKey(ip, purpose string) string {
	return fmt.Sprintf("ratelimit:ip:%s:%s", purpose, ip)
}

func cooldownKey(email string) string {
	return fmt.Sprintf("ratelimit:cooldown:%s", strings.ToLower(strings.TrimSpace(email)))
}

// CheckIPRateLimitWithPurpose reports whether ip has used up its quota for purpose
func (l *Limiter) CheckIPRateLimitWithPurpose(ctx context.Context, ip, purpose string) (bool, error) {
	count, err := l.client.Get(ctx, ipKey(ip, purpose)).Int()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read rate limit counter: %w", err)
	}

	return count >= l.cfg.IPLimit, nil
}

// RecordIPRequestWithPurpose counts one request. The first request opens the window.
func (l *Limiter) RecordIPRequestWithPurpose(ctx context.Context, ip, purpose string) error {
	key := ipKey(ip, purpose)

	count, err := l.client.Incr(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("failed to increment rate limit counter: %w", err)
	}

	if count == 1 {
		if err := l.client.Expire(ctx, key, l.cfg.IPWindow).Err(); err != nil {
			return fmt.Errorf("failed to set rate limit window: %w", err)
		}
	}

	return nil
}

// CheckEmailCooldown reports whether a mail was sent to email within the cooldown
func (l *Limiter) CheckEmailCooldown(ctx context.Context, email string) (bool, error) {
	n, err := l.client.Exists(ctx, cooldownKey(email)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check email cooldown: %w", err)
	}
	return n > 0, nil
}

// SetEmailCooldown starts the cooldown for email
func (l *Limiter) SetEmailCooldown(ctx context.Context, email string) error {
	if err := l.client.Set(ctx, cooldownKey(email), 1, l.cfg.EmailCooldown).Err(); err != nil {
		return fmt.Errorf("failed to set email cooldown: %w", err)
	}
	return nil
}
