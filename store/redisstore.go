package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore implements Store on Redis. Useful when several processes
// or hosts need to share one cache rather than each maintaining its own
// filesystem tree.
//
// Access tracking (store.Meta's LastAccessedAt/AccessCount) is kept as its
// own small key rather than folded into the ":meta" JSON blob: bumping a
// counter on every Get would otherwise mean read-modify-write of the whole
// metadata document under no lock, racing concurrent readers. Redis's
// INCR is atomic, so the hit counter lives at its own key and is merged
// into the Meta the caller sees, rather than persisted back into ":meta"
// at all.
type RedisStore struct {
	client  *redis.Client
	prefix  string
	maxSize int64
}

// RedisStoreConfig configures a RedisStore.
type RedisStoreConfig struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
	MaxSize  int64
}

// NewRedisStore connects to Redis and verifies the connection with a
// Ping before returning.
func NewRedisStore(cfg RedisStoreConfig) (*RedisStore, error) {
	if cfg.MaxSize <= 0 {
		cfg.MaxSize = 10 * 1024 * 1024
	}
	if cfg.Prefix == "" {
		cfg.Prefix = "petra:cache:"
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("store: failed to connect to Redis: %w", err)
	}

	return &RedisStore{client: client, prefix: cfg.Prefix, maxSize: cfg.MaxSize}, nil
}

func (rs *RedisStore) dataKey(key string) string    { return rs.prefix + key + ":data" }
func (rs *RedisStore) metaKey(key string) string    { return rs.prefix + key + ":meta" }
func (rs *RedisStore) hitsKey(key string) string    { return rs.prefix + key + ":hits" }
func (rs *RedisStore) lastHitKey(key string) string { return rs.prefix + key + ":lasthit" }

// Get fetches the data/meta pair, then — only once the entry is confirmed
// live — records the access as a second round trip: INCR the hit counter,
// stamp the access-time key, and re-arm both keys' TTL to whatever is left
// on the entry itself. The access bump is best-effort: a failure there
// does not fail an otherwise successful Get, since it is informational and
// never consulted by IsExpired.
func (rs *RedisStore) Get(ctx context.Context, key string) (io.ReadCloser, *Meta, bool, error) {
	pipe := rs.client.Pipeline()
	dataCmd := pipe.Get(ctx, rs.dataKey(key))
	metaCmd := pipe.Get(ctx, rs.metaKey(key))
	if _, err := pipe.Exec(ctx); err == redis.Nil {
		return nil, nil, false, nil
	} else if err != nil {
		return nil, nil, false, fmt.Errorf("store: failed to get from Redis: %w", err)
	}

	metaBytes, err := metaCmd.Bytes()
	if err != nil {
		return nil, nil, false, fmt.Errorf("store: failed to get metadata: %w", err)
	}
	var meta Meta
	if err := json.Unmarshal(metaBytes, &meta); err != nil {
		return nil, nil, false, fmt.Errorf("store: failed to unmarshal metadata: %w", err)
	}

	if meta.IsExpired() {
		rs.Delete(ctx, key)
		return nil, nil, false, nil
	}

	dataBytes, err := dataCmd.Bytes()
	if err != nil {
		return nil, nil, false, fmt.Errorf("store: failed to get data: %w", err)
	}

	remaining := meta.TTL
	if ttl, err := rs.client.TTL(ctx, rs.dataKey(key)).Result(); err == nil && ttl > 0 {
		remaining = ttl
	}
	if remaining > 0 {
		hitPipe := rs.client.Pipeline()
		countCmd := hitPipe.Incr(ctx, rs.hitsKey(key))
		hitPipe.Expire(ctx, rs.hitsKey(key), remaining)
		hitPipe.Set(ctx, rs.lastHitKey(key), time.Now().Unix(), remaining)
		if _, err := hitPipe.Exec(ctx); err == nil {
			meta.AccessCount = countCmd.Val()
			meta.LastAccessedAt = time.Now()
		}
	}

	return io.NopCloser(bytes.NewReader(dataBytes)), &meta, true, nil
}

func (rs *RedisStore) Put(ctx context.Context, key string, body io.Reader, meta *Meta) error {
	data, err := io.ReadAll(io.LimitReader(body, rs.maxSize+1))
	if err != nil {
		return fmt.Errorf("store: failed to read body: %w", err)
	}
	if int64(len(data)) > rs.maxSize {
		return fmt.Errorf("store: cache entry exceeds maximum size: %d > %d", len(data), rs.maxSize)
	}
	meta.Size = int64(len(data))
	meta.AccessCount = 0
	meta.LastAccessedAt = time.Time{}
	if meta.CachedAt.IsZero() {
		meta.CachedAt = time.Now()
	}

	metaBytes, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("store: failed to marshal metadata: %w", err)
	}

	ttl := meta.TTL
	if ttl <= 0 {
		ttl = time.Hour
	}

	pipe := rs.client.Pipeline()
	pipe.Set(ctx, rs.dataKey(key), data, ttl)
	pipe.Set(ctx, rs.metaKey(key), metaBytes, ttl)
	// A fresh write resets access history: drop any counters left over
	// from a previous entry at this key rather than letting them carry
	// forward under a new body.
	pipe.Del(ctx, rs.hitsKey(key), rs.lastHitKey(key))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("store: failed to write to Redis: %w", err)
	}
	return nil
}

func (rs *RedisStore) Delete(ctx context.Context, key string) error {
	rs.client.Del(ctx, rs.dataKey(key), rs.metaKey(key), rs.hitsKey(key), rs.lastHitKey(key))
	return nil
}

// PurgePrefix removes every entry whose key has the given prefix, driving
// the scan with the cursor-based Scan iterator rather than collecting
// every matching key up front: a prefix that matches a large fraction of
// the keyspace is walked incrementally instead of buffering it all in one
// Go slice before any deletion starts.
func (rs *RedisStore) PurgePrefix(ctx context.Context, prefix string) error {
	pattern := rs.prefix + prefix + "*:data"
	iter := rs.client.Scan(ctx, 0, pattern, 100).Iterator()
	for iter.Next(ctx) {
		dataKey := iter.Val()
		baseKey := dataKey[len(rs.prefix) : len(dataKey)-len(":data")]
		if err := rs.Delete(ctx, baseKey); err != nil {
			return fmt.Errorf("store: failed to delete %q: %w", baseKey, err)
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("store: failed to scan Redis keys: %w", err)
	}
	return nil
}

func (rs *RedisStore) Close() error {
	return rs.client.Close()
}
