// Package dedup records which digest periods were already delivered.
package dedup

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Marker remembers delivered keys for a limited time
type Marker interface {
	Seen(ctx context.Context, key string) (bool, error)
	Mark(ctx context.Context, key string, ttl time.Duration) error
}

// RedisMarker implements Marker with Redis keys that expire on their own
type RedisMarker struct {
	client *redis.Client
	prefix string
}

// NewRedisMarker connects to Redis and verifies the connection
func NewRedisMarker(redisURL string) (*RedisMarker, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return NewRedisMarkerFromClient(client), nil
}

// NewRedisMarkerFromClient wraps an existing client
func NewRedisMarkerFromClient(client *redis.Client) *RedisMarker {
	return &RedisMarker{client: client, prefix: "reminders:"}
}

// Seen reports whether key was marked and has not expired
func (m *RedisMarker) Seen(ctx context.Context, key string) (bool, error) {
	n, err := m.client.Exists(ctx, m.prefix+key).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check marker: %w", err)
	}
	return n > 0, nil
}

// Mark records key for ttl. Marking an existing key keeps its original expiry.
func (m *RedisMarker) Mark(ctx context.Context, key string, ttl time.Duration) error {
	if err := m.client.SetNX(ctx, m.prefix+key, time.Now().UTC().Format(time.RFC3339), ttl).Err(); err != nil {
		return fmt.Errorf("failed to set marker: %w", err)
	}
	return nil
}

// Ping checks if Redis is reachable
func (m *RedisMarker) Ping(ctx context.Context) error {
	return m.client.Ping(ctx).Err()
}

// Close closes the Redis connection
func (m *RedisMarker) Close() error {
	return m.client.Close()
}

// DigestKey identifies one user's digest for one local calendar day.
// day must already be in the reference timezone.
func DigestKey(userID fmt.Stringer, day time.Time) string {
	return fmt.Sprintf("digest:%s:%s", userID, day.Format("2006-01-02"))
}

var _ Marker = (*RedisMarker)(nil)
