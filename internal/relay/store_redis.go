package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisTimeout bounds each Redis round-trip.
const DefaultRedisTimeout = 2 * time.Second

// RedisConfig holds Redis connection configuration.
type RedisConfig struct {
	Addr     string        // Redis server address (host:port)
	Password string        // Redis password (optional)
	DB       int           // Redis database number
	Timeout  time.Duration // per-call bound; DefaultRedisTimeout when zero
	Prefix   string        // key namespace; "hlsrelay:" when empty
}

// trimScript pops the oldest members of the recency index until it holds
// at most ARGV[1] tokens, deleting their entries. Running it as one script
// keeps concurrent Puts from over- or under-trimming.
var trimScript = redis.NewScript(`
local over = redis.call('ZCARD', KEYS[1]) - tonumber(ARGV[1])
if over <= 0 then
	return 0
end
local popped = redis.call('ZPOPMIN', KEYS[1], over)
for i = 1, #popped, 2 do
	redis.call('DEL', ARGV[2] .. popped[i])
end
return over
`)

// RedisStore is a Store shared between relay processes through Redis.
// Entries expire through Redis TTLs; recency is tracked in a sorted set so
// the capacity bound evicts the least-recently-used token first.
type RedisStore struct {
	client   *redis.Client
	ttl      time.Duration
	capacity int
	timeout  time.Duration
	prefix   string
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(cfg RedisConfig, capacity int, ttl time.Duration) (*RedisStore, error) {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultRedisTimeout
	}
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  timeout,
		ReadTimeout:  timeout,
		WriteTimeout: timeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	return NewRedisStoreWithClient(client, cfg.Prefix, capacity, ttl, timeout), nil
}

// NewRedisStoreWithClient wraps an existing client. Non-positive capacity,
// ttl and timeout fall back to their defaults.
func NewRedisStoreWithClient(client *redis.Client, prefix string, capacity int, ttl, timeout time.Duration) *RedisStore {
	if prefix == "" {
		prefix = "hlsrelay:"
	}
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if timeout <= 0 {
		timeout = DefaultRedisTimeout
	}
	return &RedisStore{
		client:   client,
		ttl:      ttl,
		capacity: capacity,
		timeout:  timeout,
		prefix:   prefix,
	}
}

func (s *RedisStore) entryPrefix() string { return s.prefix + "entry:" }
func (s *RedisStore) entryKey(t Token) string { return s.entryPrefix() + string(t) }
func (s *RedisStore) indexKey() string { return s.prefix + "recency" }

func unavailable(op string, err error) error {
	return newError(KindStoreUnavailable, "redis "+op, err)
}

// Put implements Store.Put.
func (s *RedisStore) Put(ctx context.Context, e Entry) (Token, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	now := time.Now()
	e.ExpiresAt = now.Add(s.ttl)
	data, err := json.Marshal(e)
	if err != nil {
		return "", fmt.Errorf("encode entry: %w", err)
	}

	tok := newToken()
	_, err = s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, s.entryKey(tok), data, s.ttl)
		p.ZAdd(ctx, s.indexKey(), redis.Z{Score: float64(now.UnixNano()), Member: string(tok)})
		return nil
	})
	if err != nil {
		return "", unavailable("put", err)
	}

	if err := trimScript.Run(ctx, s.client, []string{s.indexKey()}, s.capacity, s.entryPrefix()).Err(); err != nil {
		return "", unavailable("trim", err)
	}
	return tok, nil
}

// Get implements Store.Get.
func (s *RedisStore) Get(ctx context.Context, t Token) (Entry, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	data, err := s.client.Get(ctx, s.entryKey(t)).Bytes()
	if errors.Is(err, redis.Nil) {
		_ = s.client.ZRem(ctx, s.indexKey(), string(t)).Err()
		return Entry{}, tokenNotFound()
	}
	if err != nil {
		return Entry{}, unavailable("get", err)
	}

	var e Entry
	if err := json.Unmarshal(data, &e); err != nil {
		return Entry{}, newError(KindNotFound, "corrupt token entry", err)
	}
	now := time.Now()
	if e.expired(now) {
		return Entry{}, tokenNotFound()
	}

	// Refresh recency only for members still in the index.
	_ = s.client.ZAddXX(ctx, s.indexKey(), redis.Z{Score: float64(now.UnixNano()), Member: string(t)}).Err()
	return e, nil
}

// Len implements Store.Len. It reports 0 when Redis cannot be reached.
func (s *RedisStore) Len() int {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	n, err := s.client.ZCard(ctx, s.indexKey()).Result()
	if err != nil {
		return 0
	}
	return int(n)
}

// HealthCheck checks if Redis is available.
func (s *RedisStore) HealthCheck(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
