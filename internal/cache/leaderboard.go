package cache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	leaderboardKey    = "promoledger:leaderboard"
	leaderboardGenKey = "promoledger:leaderboard:gen"
)

// setIfCurrent stores the payload only while the generation is unchanged.
var setIfCurrent = redis.NewScript(`
local gen = redis.call("GET", KEYS[2])
if (gen or "0") ~= ARGV[1] then
	return 0
end
redis.call("SET", KEYS[1], ARGV[2], "PX", ARGV[3])
return 1
`)

// ErrMiss is returned by Get when nothing is cached.
var ErrMiss = errors.New("cache miss")

// Leaderboard caches the serialized admin leaderboard. Every ledger write
// calls Invalidate, which also bumps the generation. Callers read the
// generation before building and pass it to Set, which drops the payload if
// a write landed in between, so a hit is never older than the last write.
type Leaderboard interface {
	Get(ctx context.Context) ([]byte, error)
	Generation(ctx context.Context) (int64, error)
	Set(ctx context.Context, gen int64, payload []byte) error
	Invalidate(ctx context.Context) error
}

// Connect initializes a Redis client from URL or host:port input.
func Connect(redisURL string) (*redis.Client, error) {
	if strings.HasPrefix(redisURL, "redis://") || strings.HasPrefix(redisURL, "rediss://") {
		opt, err := redis.ParseURL(redisURL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		return redis.NewClient(opt), nil
	}
	return redis.NewClient(&redis.Options{Addr: redisURL}), nil
}

type RedisLeaderboard struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisLeaderboard(client *redis.Client, ttl time.Duration) *RedisLeaderboard {
	return &RedisLeaderboard{client: client, ttl: ttl}
}

func (c *RedisLeaderboard) Get(ctx context.Context) ([]byte, error) {
	b, err := c.client.Get(ctx, leaderboardKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrMiss
	}
	return b, err
}

func (c *RedisLeaderboard) Generation(ctx context.Context) (int64, error) {
	gen, err := c.client.Get(ctx, leaderboardGenKey).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return gen, err
}

func (c *RedisLeaderboard) Set(ctx context.Context, gen int64, payload []byte) error {
	if c.ttl <= 0 {
		return nil
	}
	keys := []string{leaderboardKey, leaderboardGenKey}
	return setIfCurrent.Run(ctx, c.client, keys, gen, payload, c.ttl.Milliseconds()).Err()
}

func (c *RedisLeaderboard) Invalidate(ctx context.Context) error {
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, leaderboardGenKey)
		pipe.Del(ctx, leaderboardKey)
		return nil
	})
	return err
}

// MemoryLeaderboard is the in-process fallback.
type MemoryLeaderboard struct {
	mu      sync.Mutex
	payload []byte
	gen     int64
	expires time.Time
	ttl     time.Duration
	now     func() time.Time
}

func NewMemoryLeaderboard(ttl time.Duration) *MemoryLeaderboard {
	return &MemoryLeaderboard{ttl: ttl, now: time.Now}
}

func (c *MemoryLeaderboard) Get(_ context.Context) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.payload == nil || !c.now().Before(c.expires) {
		return nil, ErrMiss
	}
	return append([]byte(nil), c.payload...), nil
}

func (c *MemoryLeaderboard) Generation(_ context.Context) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen, nil
}

func (c *MemoryLeaderboard) Set(_ context.Context, gen int64, payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen {
		return nil
	}
	c.payload = append([]byte(nil), payload...)
	c.expires = c.now().Add(c.ttl)
	return nil
}

func (c *MemoryLeaderboard) Invalidate(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.payload = nil
	c.gen++
	return nil
}
