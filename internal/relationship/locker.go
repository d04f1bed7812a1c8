package relationship

import (
	"context"
	"errors"
	"hash/fnv"
	"time"

	"kinship/internal/models"
	"kinship/internal/observability"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrLockTimeout is returned when a pair lock could not be acquired in time.
var ErrLockTimeout = errors.New("relationship: timed out waiting for pair lock")

// Locker serializes writers per unordered user pair.
type Locker interface {
	Lock(ctx context.Context, a, b string) (unlock func(), err error)
}

func pairKey(a, b string) string {
	lo, hi := models.NormalizePair(a, b)
	return lo + "\x00" + hi
}

const localStripes = 256

// LocalLocker serializes pairs within one process. Pairs hash onto a fixed
// set of stripes, so unrelated pairs occasionally share one.
type LocalLocker struct {
	stripes [localStripes]chan struct{}
}

// NewLocalLocker returns a ready LocalLocker.
func NewLocalLocker() *LocalLocker {
	l := &LocalLocker{}
	for i := range l.stripes {
		l.stripes[i] = make(chan struct{}, 1)
	}
	return l
}

// Lock blocks until the pair's stripe is free or ctx is done.
func (l *LocalLocker) Lock(ctx context.Context, a, b string) (func(), error) {
	h := fnv.New32a()
	_, _ = h.Write([]byte(pairKey(a, b)))
	stripe := l.stripes[h.Sum32()%localStripes]

	start := time.Now()
	select {
	case stripe <- struct{}{}:
		observability.PairLockWait.WithLabelValues("local").Observe(time.Since(start).Seconds())
		return func() { <-stripe }, nil
	case <-ctx.Done():
		return nil, ErrLockTimeout
	}
}

// releaseScript deletes the lock only if this holder still owns it.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker serializes pairs across processes with a SET NX PX lease. The
// lease expires after ttl so a crashed holder cannot wedge a pair.
type RedisLocker struct {
	rdb  *redis.Client
	ttl  time.Duration
	wait time.Duration
}

// NewRedisLocker returns a RedisLocker holding leases for ttl and waiting at
// most wait to acquire one.
func NewRedisLocker(rdb *redis.Client, ttl, wait time.Duration) *RedisLocker {
	return &RedisLocker{rdb: rdb, ttl: ttl, wait: wait}
}

// Lock polls until it owns the pair's lease, wait elapses or ctx is done.
func (l *RedisLocker) Lock(ctx context.Context, a, b string) (func(), error) {
	ctx, span := observability.StartRedisSpan(ctx, "pair_lock")
	defer span.End()

	lo, hi := models.NormalizePair(a, b)
	key := "lock:pair:" + lo + ":" + hi
	token := uuid.NewString()

	waitCtx, cancel := context.WithTimeout(ctx, l.wait)
	defer cancel()

	start := time.Now()
	backoff := 2 * time.Millisecond
	for {
		ok, err := l.rdb.SetNX(waitCtx, key, token, l.ttl).Result()
		if err != nil && waitCtx.Err() == nil {
			observability.RedisErrorRate.WithLabelValues("pair_lock").Inc()
			return nil, err
		}
		if ok {
			observability.PairLockWait.WithLabelValues("redis").Observe(time.Since(start).Seconds())
			return func() {
				// Release with a fresh context: the caller's may already be done.
				rctx, rcancel := context.WithTimeout(context.Background(), time.Second)
				defer rcancel()
				if err := releaseScript.Run(rctx, l.rdb, []string{key}, token).Err(); err != nil {
					observability.RedisErrorRate.WithLabelValues("pair_unlock").Inc()
				}
			}, nil
		}

		select {
		case <-waitCtx.Done():
			return nil, ErrLockTimeout
		case <-time.After(backoff):
		}
		if backoff < 50*time.Millisecond {
			backoff *= 2
		}
	}
}

// ChainLocker takes each locker in order and releases in reverse. The local
// stripe is taken first so same-process contention never reaches redis.
type ChainLocker []Locker

// Lock acquires every lock or none.
func (c ChainLocker) Lock(ctx context.Context, a, b string) (func(), error) {
	unlocks := make([]func(), 0, len(c))
	release := func() {
		for i := len(unlocks) - 1; i >= 0; i-- {
			unlocks[i]()
		}
	}
	for _, l := range c {
		u, err := l.Lock(ctx, a, b)
		if err != nil {
			release()
			return nil, err
		}
		unlocks = append(unlocks, u)
	}
	return release, nil
}

// NewLocker builds the default chain: local stripes, plus redis when available.
func NewLocker(rdb *redis.Client, ttl, wait time.Duration) Locker {
	if rdb == nil {
		return NewLocalLocker()
	}
	return ChainLocker{NewLocalLocker(), NewRedisLocker(rdb, ttl, wait)}
}
