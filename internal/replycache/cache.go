// Package replycache remembers which comments have already been answered so
// a restart or a replayed stream never replies twice.
package replycache

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultTTL bounds how long a replied marker is kept.
const DefaultTTL = 7 * 24 * time.Hour

// Cache records replied comment ids.
type Cache interface {
	// MarkReplied reports true the first time id is seen.
	MarkReplied(ctx context.Context, id string) (bool, error)
	Close() error
}

// New returns a Redis-backed cache when redisURL is set and an in-process
// cache otherwise.
func New(ctx context.Context, redisURL string, ttl time.Duration) (Cache, error) {
	if strings.TrimSpace(redisURL) == "" {
		return NewMemory(ttl), nil
	}
	return NewRedis(ctx, redisURL, ttl)
}

type Redis struct {
	rdb    *redis.Client
	ttl    time.Duration
	prefix string
}

func NewRedis(ctx context.Context, redisURL string, ttl time.Duration) (*Redis, error) {
	opts, err := parseRedisURL(redisURL)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Redis{rdb: rdb, ttl: ttl, prefix: "crowdchess:replied:"}, nil
}

func (r *Redis) MarkReplied(ctx context.Context, id string) (bool, error) {
	ok, err := r.rdb.SetNX(ctx, r.prefix+id, time.Now().UTC().Unix(), r.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis setnx: %w", err)
	}
	return ok, nil
}

func (r *Redis) Close() error {
	if r == nil || r.rdb == nil {
		return nil
	}
	return r.rdb.Close()
}

// Memory is the single-process fallback. Markers expire lazily.
type Memory struct {
	mu   sync.Mutex
	ttl  time.Duration
	now  func() time.Time
	seen map[string]time.Time
}

func NewMemory(ttl time.Duration) *Memory {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Memory{ttl: ttl, now: time.Now, seen: make(map[string]time.Time)}
}

func (m *Memory) MarkReplied(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if exp, ok := m.seen[id]; ok && now.Before(exp) {
		return false, nil
	}
	m.seen[id] = now.Add(m.ttl)
	if len(m.seen)%1024 == 0 {
		for k, exp := range m.seen {
			if !now.Before(exp) {
				delete(m.seen, k)
			}
		}
	}
	return true, nil
}

func (m *Memory) Close() error { return nil }

func parseRedisURL(raw string) (*redis.Options, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	if u.Scheme != "redis" && u.Scheme != "rediss" {
		return nil, fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}
	db := 0
	if p := strings.TrimPrefix(u.Path, "/"); p != "" {
		if n, err := strconv.Atoi(p); err == nil {
			db = n
		}
	}
	pass, _ := u.User.Password()
	return &redis.Options{Addr: u.Host, Password: pass, DB: db}, nil
}
