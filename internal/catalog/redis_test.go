package catalog

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyFor(t *testing.T) {
	a := KeyFor("https://api.deepseek.com/v1/models")
	b := KeyFor("https://proxy.example.com/v1/models")

	assert.True(t, strings.HasPrefix(a, DefaultRedisKeyPrefix))
	assert.NotEqual(t, a, b)
	assert.Equal(t, a, KeyFor("https://api.deepseek.com/v1/models"))
}

func TestNewRedisStore_InvalidURL(t *testing.T) {
	_, err := NewRedisStore(context.Background(), RedisConfig{URL: "not-a-url"}, "https://x")
	require.Error(t, err)
}

func TestRedisStore_RoundTrip(t *testing.T) {
	url := os.Getenv("REDIS_URL")
	if url == "" {
		t.Skip("REDIS_URL not set")
	}

	ctx := context.Background()
	store, err := NewRedisStore(ctx, RedisConfig{
		URL: url,
		Key: "llmdeepseek:test:" + t.Name(),
		TTL: time.Minute,
	}, "https://api.deepseek.com/v1/models")
	require.NoError(t, err)
	defer store.Close()
	defer store.client.Del(ctx, store.key)

	store.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }
	require.NoError(t, store.Save(ctx, []byte(`{"data":[{"id":"deepseek-chat"}]}`)))

	snap, err := store.Load(ctx)
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.JSONEq(t, `{"data":[{"id":"deepseek-chat"}]}`, string(snap.Raw))
	assert.True(t, snap.FetchedAt.Equal(store.now()))

	entries, err := Parse(snap.Raw)
	require.NoError(t, err)
	assert.Equal(t, "deepseek-chat", entries[0].ID)
}

// memoryRedis answers GET and SET from memory through a client hook, so no
// server is dialed. Expirations passed to SET are recorded and applied by
// advance.
type memoryRedis struct {
	mu      sync.Mutex
	values  map[string]string
	expires map[string]time.Duration
}

func newMemoryRedis(t *testing.T) (*redis.Client, *memoryRedis) {
	t.Helper()
	mem := &memoryRedis{values: map[string]string{}, expires: map[string]time.Duration{}}
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})
	client.AddHook(mem)
	t.Cleanup(func() { _ = client.Close() })
	return client, mem
}

func (m *memoryRedis) DialHook(next redis.DialHook) redis.DialHook { return next }

func (m *memoryRedis) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return next
}

func (m *memoryRedis) ProcessHook(_ redis.ProcessHook) redis.ProcessHook {
	return func(_ context.Context, cmd redis.Cmder) error {
		m.mu.Lock()
		defer m.mu.Unlock()

		args := cmd.Args()
		switch strings.ToLower(cmd.Name()) {
		case "set":
			key := fmt.Sprint(args[1])
			m.values[key] = argString(args[2])
			delete(m.expires, key)
			if len(args) >= 5 {
				n, _ := args[4].(int64)
				unit := time.Second
				if strings.EqualFold(fmt.Sprint(args[3]), "px") {
					unit = time.Millisecond
				}
				m.expires[key] = time.Duration(n) * unit
			}
			cmd.(*redis.StatusCmd).SetVal("OK")
		case "get":
			get := cmd.(*redis.StringCmd)
			v, ok := m.values[fmt.Sprint(args[1])]
			if !ok {
				get.SetErr(redis.Nil)
				return redis.Nil
			}
			get.SetVal(v)
		default:
			return fmt.Errorf("unsupported command %q", cmd.Name())
		}
		return nil
	}
}

func argString(v any) string {
	switch v := v.(type) {
	case []byte:
		return string(v)
	case string:
		return v
	default:
		return fmt.Sprint(v)
	}
}

// advance drops every key whose expiration is within d.
func (m *memoryRedis) advance(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for key, ttl := range m.expires {
		if ttl <= d {
			delete(m.values, key)
			delete(m.expires, key)
		}
	}
}

func (m *memoryRedis) expiry(key string) (time.Duration, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ttl, ok := m.expires[key]
	return ttl, ok
}

func TestRedisStore_Expiry(t *testing.T) {
	const catalogURL = "https://api.deepseek.com/v1/models"

	tests := []struct {
		name       string
		ttl        time.Duration
		wantExpiry bool
	}{
		{name: "zero keeps the snapshot", ttl: 0},
		{name: "negative keeps the snapshot", ttl: -time.Second},
		{name: "positive ttl expires", ttl: 10 * time.Minute, wantExpiry: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, mem := newMemoryRedis(t)
			store := NewRedisStoreWithClient(client, RedisConfig{TTL: tt.ttl}, catalogURL)

			require.NoError(t, store.Save(context.Background(), []byte(cachedBody)))

			ttl, ok := mem.expiry(KeyFor(catalogURL))
			assert.Equal(t, tt.wantExpiry, ok)
			if tt.wantExpiry {
				assert.Equal(t, tt.ttl, ttl)
			}

			snap, err := store.Load(context.Background())
			require.NoError(t, err)
			require.NotNil(t, snap)
			assert.JSONEq(t, cachedBody, string(snap.Raw))
		})
	}
}

func TestCache_RedisStaleFallbackRegardlessOfAge(t *testing.T) {
	var status atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if code := int(status.Load()); code != 0 {
			w.WriteHeader(code)
			return
		}
		_, _ = w.Write([]byte(cachedBody))
	}))
	t.Cleanup(server.Close)

	client, mem := newMemoryRedis(t)
	store := NewRedisStoreWithClient(client, RedisConfig{}, server.URL)

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	store.now = clock

	cache := New(Config{URL: server.URL, FreshnessWindow: time.Hour}, store, server.Client())
	cache.SetClock(clock)

	entries, err := cache.Fetch(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 1)

	status.Store(http.StatusInternalServerError)
	now = now.Add(25 * time.Hour)
	mem.advance(25 * time.Hour)

	entries, err = cache.Fetch(context.Background())
	require.NoError(t, err, "a stale snapshot must still be served")
	require.Len(t, entries, 1)
	assert.Equal(t, "cached-model", entries[0].ID)
}
