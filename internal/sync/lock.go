package sync

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrCycleInProgress is returned when another worker already holds an
// endpoint's cycle lock.
var ErrCycleInProgress = errors.New("sync cycle already in progress for endpoint")

// Locker serializes cycles per endpoint. Concurrent cycles against the same
// endpoint would race on the cursor, so a cycle runs only while holding the
// endpoint's lock.
type Locker interface {
	// Acquire takes the endpoint's lock and returns a release func, or
	// ErrCycleInProgress when it is already held.
	Acquire(ctx context.Context, endpointID string) (release func(), err error)
}

// MemoryLocker serializes endpoints within a single process.
type MemoryLocker struct {
	mu   sync.Mutex
	held map[string]bool
}

func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{held: make(map[string]bool)}
}

func (l *MemoryLocker) Acquire(_ context.Context, endpointID string) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[endpointID] {
		return nil, ErrCycleInProgress
	}
	l.held[endpointID] = true
	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		delete(l.held, endpointID)
	}, nil
}

// RedisLocker serializes endpoints across workers with a token-checked
// SET NX lock. The TTL bounds lock lifetime if a worker dies mid-cycle.
type RedisLocker struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisLocker(client *redis.Client, ttl time.Duration) *RedisLocker {
	return &RedisLocker{client: client, ttl: ttl}
}

// releaseScript deletes the lock only when the caller still owns it, so an
// expired-and-reacquired lock is never released by the previous holder.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

func (l *RedisLocker) Acquire(ctx context.Context, endpointID string) (func(), error) {
	key := "carelink:sync:lock:" + endpointID
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrCycleInProgress
	}
	return func() {
		// Release with a background context; the cycle's context may
		// already be cancelled.
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = releaseScript.Run(releaseCtx, l.client, []string{key}, token).Err()
	}, nil
}
