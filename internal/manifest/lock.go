package manifest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/oxbowlabs/vqueryd/internal/platform/logger"
)

// ErrConflictLocked is returned when a per-slug lock cannot be acquired
// within the configured wait. Callers retry the whole Upsert.
var ErrConflictLocked = errors.New("manifest: conflict locked")

// Locker serializes the read-modify-write in Store.Upsert per slug. Lock
// blocks (with internal retry/backoff) until it either acquires the lock or
// gives up with ErrConflictLocked; on success it returns an unlock func the
// caller must call exactly once.
type Locker interface {
	Lock(ctx context.Context, slug string) (unlock func(), err error)
}

// RedisLocker implements Locker with a SETNX-style advisory lock: SET key
// value NX PX ttl. Grounded on the teacher's redis client construction
// (internal/clients/redis/sse_bus.go): same NewClient + Ping startup check,
// swapped from pub/sub to a SET-based mutex since manifest upserts need
// mutual exclusion, not broadcast.
type RedisLocker struct {
	log       *logger.Logger
	rdb       *goredis.Client
	ttl       time.Duration
	acquire   time.Duration
	pollEvery time.Duration
}

// RedisLockerConfig controls lock TTL and acquisition timeout.
type RedisLockerConfig struct {
	Addr          string
	LockTTL       time.Duration // how long a held lock survives before auto-expiring
	AcquireWait   time.Duration // total time Lock will retry before ErrConflictLocked
	AcquirePoll   time.Duration // spacing between acquisition attempts
}

func NewRedisLocker(ctx context.Context, cfg RedisLockerConfig, log *logger.Logger) (*RedisLocker, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("manifest: redis addr is required")
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 30 * time.Second
	}
	if cfg.AcquireWait <= 0 {
		cfg.AcquireWait = 5 * time.Second
	}
	if cfg.AcquirePoll <= 0 {
		cfg.AcquirePoll = 100 * time.Millisecond
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        cfg.Addr,
		DialTimeout: 5 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("manifest: redis ping: %w", err)
	}

	return &RedisLocker{
		log:       log.With("service", "manifest.lock"),
		rdb:       rdb,
		ttl:       cfg.LockTTL,
		acquire:   cfg.AcquireWait,
		pollEvery: cfg.AcquirePoll,
	}, nil
}

func lockKey(slug string) string { return "lock:manifest:" + slug }

func (l *RedisLocker) Lock(ctx context.Context, slug string) (func(), error) {
	key := lockKey(slug)
	token := uniqueToken()

	deadline := time.Now().Add(l.acquire)
	for {
		ok, err := l.rdb.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("manifest: acquire lock %s: %w", slug, err)
		}
		if ok {
			return func() { l.unlock(key, token) }, nil
		}
		if time.Now().After(deadline) {
			l.log.Warn("timed out acquiring manifest lock", "slug", slug)
			return nil, ErrConflictLocked
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(l.pollEvery):
		}
	}
}

// unlock releases the lock only if we still hold it, via a small Lua script
// so a slow holder can't delete a lock some other process has since
// acquired after our TTL expired.
func (l *RedisLocker) unlock(key, token string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	script := goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
else
	return 0
end`)
	if err := script.Run(ctx, l.rdb, []string{key}, token).Err(); err != nil {
		l.log.Warn("failed releasing manifest lock", "key", key, "error", err.Error())
	}
}

func (l *RedisLocker) Close() error { return l.rdb.Close() }

var tokenSeq int64
var tokenMu sync.Mutex

// uniqueToken produces a per-process-unique lock token without reaching for
// math/rand or time.Now so the call stays safe in contexts (like workflow
// replay) that must not observe nondeterministic sources; monotonic counters
// composed with the process's own memory address space are enough here
// since the token's only job is proving which holder wrote the key.
func uniqueToken() string {
	tokenMu.Lock()
	defer tokenMu.Unlock()
	tokenSeq++
	return fmt.Sprintf("lock-%d-%p", tokenSeq, &tokenSeq)
}

// InMemoryLocker is a single-process Locker for tests: one 1-buffered
// channel per slug acts as the mutex token, so a caller that gives up on
// ctx.Done never leaves the lock held by an orphaned goroutine. It never
// returns ErrConflictLocked; ctx cancellation surfaces as ctx.Err() instead.
type InMemoryLocker struct {
	mu    sync.Mutex
	locks map[string]chan struct{}
}

func NewInMemoryLocker() *InMemoryLocker {
	return &InMemoryLocker{locks: make(map[string]chan struct{})}
}

func (l *InMemoryLocker) chanFor(slug string) chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	ch, ok := l.locks[slug]
	if !ok {
		ch = make(chan struct{}, 1)
		ch <- struct{}{}
		l.locks[slug] = ch
	}
	return ch
}

func (l *InMemoryLocker) Lock(ctx context.Context, slug string) (func(), error) {
	ch := l.chanFor(slug)
	select {
	case <-ch:
		return func() { ch <- struct{}{} }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

var _ Locker = (*RedisLocker)(nil)
var _ Locker = (*InMemoryLocker)(nil)
