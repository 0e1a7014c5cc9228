package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/redis/go-redis/v9"
)

// DefaultRedisKeyPrefix prefixes the key derived from the catalog URL.
const DefaultRedisKeyPrefix = "llmdeepseek:catalog:"

// RedisConfig holds Redis connection configuration.
type RedisConfig struct {
	// URL is the Redis connection URL (e.g., "redis://localhost:6379/0")
	URL string

	// Key overrides the key derived from the catalog URL
	Key string

	// TTL expires the stored snapshot. Zero or negative keeps it until the
	// next save, so a stale catalog stays available as a fallback.
	TTL time.Duration
}

type redisSnapshot struct {
	FetchedAt time.Time       `json:"fetched_at"`
	Body      json.RawMessage `json:"body"`
}

// RedisStore shares one catalog snapshot between processes through Redis.
type RedisStore struct {
	client *redis.Client
	key    string
	ttl    time.Duration
	now    func() time.Time
}

// KeyFor derives the Redis key for a catalog URL.
func KeyFor(catalogURL string) string {
	return DefaultRedisKeyPrefix + strconv.FormatUint(xxhash.Sum64String(catalogURL), 16)
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(ctx context.Context, cfg RedisConfig, catalogURL string) (*RedisStore, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	store := NewRedisStoreWithClient(client, cfg, catalogURL)
	slog.Info("redis catalog store connected", "key", store.key, "ttl", store.ttl)
	return store, nil
}

// NewRedisStoreWithClient wraps an existing client.
func NewRedisStoreWithClient(client *redis.Client, cfg RedisConfig, catalogURL string) *RedisStore {
	key := cfg.Key
	if key == "" {
		key = KeyFor(catalogURL)
	}
	ttl := cfg.TTL
	if ttl < 0 {
		ttl = 0
	}
	return &RedisStore{client: client, key: key, ttl: ttl, now: time.Now}
}

// Load retrieves the snapshot from Redis.
func (s *RedisStore) Load(ctx context.Context) (*Snapshot, error) {
	data, err := s.client.Get(ctx, s.key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get catalog from redis: %w", err)
	}

	var snap redisSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("failed to parse catalog from redis: %w", err)
	}
	return &Snapshot{Raw: snap.Body, FetchedAt: snap.FetchedAt}, nil
}

// Save stores raw in Redis stamped with the current time.
func (s *RedisStore) Save(ctx context.Context, raw []byte) error {
	data, err := json.Marshal(redisSnapshot{FetchedAt: s.now().UTC(), Body: raw})
	if err != nil {
		return fmt.Errorf("failed to marshal catalog snapshot: %w", err)
	}
	if err := s.client.Set(ctx, s.key, data, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set catalog in redis: %w", err)
	}
	return nil
}

// Location returns the Redis key.
func (s *RedisStore) Location() string {
	return "redis:" + s.key
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}
