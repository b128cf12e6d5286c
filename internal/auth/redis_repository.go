package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisRevocationStore remembers logged-out session tokens in Redis. Entries
// expire together with the token, so the key space never outgrows the set of
// live sessions.
type RedisRevocationStore struct {
	client redis.Cmdable
	now    func() time.Time
}

func NewRedisRevocationStore(client redis.Cmdable) *RedisRevocationStore {
	return &RedisRevocationStore{client: client, now: time.Now}
}

// getRevokedKey generates the Redis key for a revoked session marker
func getRevokedKey(tokenHash string) string {
	return fmt.Sprintf("session:revoked:%s", tokenHash)
}

// Revoke marks token as revoked until expiresAt. Tokens already past their
// expiry need no marker.
func (r *RedisRevocationStore) Revoke(ctx context.Context, token string, expiresAt time.Time) error {
	ttl := expiresAt.Sub(r.now())
	if ttl <= 0 {
		return nil
	}

	if err := r.client.Set(ctx, getRevokedKey(hashToken(token)), "1", ttl).Err(); err != nil {
		return fmt.Errorf("failed to revoke session: %w", err)
	}

	return nil
}

// IsRevoked reports whether token was revoked
func (r *RedisRevocationStore) IsRevoked(ctx context.Context, token string) (bool, error) {
	n, err := r.client.Exists(ctx, getRevokedKey(hashToken(token))).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check revocation: %w", err)
	}
	return n > 0, nil
}

// hashToken keeps raw bearer tokens out of Redis
func hashToken(token string) string {
	h := sha256.Sum256([]byte(token))
	return hex.EncodeToString(h[:])
}
