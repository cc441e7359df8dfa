package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// redisKeyPrefix namespaces session keys so the store can share a Redis
// database with other tenants.
const redisKeyPrefix = "askql:session:"

// RedisStore keeps sessions in Redis so multiple instances can share the
// approval gate. Expiry rides on Redis key TTLs; there is no sweeper.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// NewRedisStore connects to Redis at url (redis:// form) and verifies the
// connection with a ping.
func NewRedisStore(ctx context.Context, url string, ttl time.Duration, logger *slog.Logger) (*RedisStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}

	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("pinging redis: %w", err)
	}

	logger.Info("Session store connected to Redis", "addr", opts.Addr, "ttl", ttl)
	return &RedisStore{client: client, ttl: ttl, logger: logger}, nil
}

// Put inserts or replaces the session with the store TTL.
func (r *RedisStore) Put(ctx context.Context, s *Session) error {
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now()
	}

	payload, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encoding session %s: %w", s.ID, err)
	}
	if err := r.client.Set(ctx, redisKeyPrefix+s.ID, payload, r.ttl).Err(); err != nil {
		return fmt.Errorf("storing session %s: %w", s.ID, err)
	}
	return nil
}

// Take atomically removes and returns the session via GETDEL.
func (r *RedisStore) Take(ctx context.Context, id string) (*Session, error) {
	payload, err := r.client.GetDel(ctx, redisKeyPrefix+id).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("taking session %s: %w", id, err)
	}

	var s Session
	if err := json.Unmarshal(payload, &s); err != nil {
		return nil, fmt.Errorf("decoding session %s: %w", id, err)
	}
	return &s, nil
}

// Close closes the Redis connection.
func (r *RedisStore) Close() error {
	return r.client.Close()
}
