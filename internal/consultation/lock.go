package consultation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

var ErrSessionBusy = errors.New("consultation is busy with another turn")

// Locker serialises turns per consultation. The returned func releases the
// lock and is safe to call more than once.
type Locker interface {
	Lock(ctx context.Context, key string) (func(), error)
}

type memoryLocker struct {
	mu   sync.Mutex
	held map[string]*memoryLock
}

// memoryLock is a one-slot semaphore. refs counts the holder and waiters;
// the entry is dropped when it reaches zero.
type memoryLock struct {
	ch   chan struct{}
	refs int
}

// NewMemoryLocker returns a Locker for a single process.
func NewMemoryLocker() Locker {
	return &memoryLocker{held: make(map[string]*memoryLock)}
}

func (l *memoryLocker) Lock(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	lk, ok := l.held[key]
	if !ok {
		lk = &memoryLock{ch: make(chan struct{}, 1)}
		l.held[key] = lk
	}
	lk.refs++
	l.mu.Unlock()

	select {
	case lk.ch <- struct{}{}:
		var once sync.Once
		return func() {
			once.Do(func() {
				<-lk.ch
				l.drop(key, lk)
			})
		}, nil
	case <-ctx.Done():
		l.drop(key, lk)
		return nil, fmt.Errorf("%w: %v", ErrSessionBusy, ctx.Err())
	}
}

func (l *memoryLocker) drop(key string, lk *memoryLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	lk.refs--
	if lk.refs == 0 {
		delete(l.held, key)
	}
}

func (l *memoryLocker) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.held)
}

// releaseScript deletes the key only while it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

type RedisLocker struct {
	rdb    *redis.Client
	prefix string
	ttl    time.Duration
	wait   time.Duration
	retry  time.Duration
	logger zerolog.Logger
}

// NewRedisLocker returns a Locker shared by every instance talking to rdb.
// ttl bounds how long a crashed holder can block a session; wait bounds how
// long Lock polls before giving up with ErrSessionBusy.
func NewRedisLocker(rdb *redis.Client, ttl, wait time.Duration, logger zerolog.Logger) *RedisLocker {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &RedisLocker{
		rdb:    rdb,
		prefix: "intake:lock:",
		ttl:    ttl,
		wait:   wait,
		retry:  50 * time.Millisecond,
		logger: logger.With().Str("component", "session_lock").Logger(),
	}
}

func (l *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	key = l.prefix + key
	token := uuid.NewString()
	deadline := time.Now().Add(l.wait)
	for {
		ok, err := l.rdb.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("acquire session lock: %w", err)
		}
		if ok {
			var once sync.Once
			return func() {
				once.Do(func() {
					ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					n, err := releaseScript.Run(ctx, l.rdb, []string{key}, token).Int()
					switch {
					case err != nil:
						l.logger.Warn().Err(err).Str("key", key).Msg("failed to release session lock")
					case n == 0:
						l.logger.Warn().Str("key", key).Msg("session lock expired before release")
					}
				})
			}, nil
		}
		if !time.Now().Before(deadline) {
			return nil, ErrSessionBusy
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %v", ErrSessionBusy, ctx.Err())
		case <-time.After(l.retry):
		}
	}
}
