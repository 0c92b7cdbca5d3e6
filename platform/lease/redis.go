package lease

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Poll interval while waiting for a competing holder to release.
const acquirePollInterval = 100 * time.Millisecond

// Compare-and-delete: only the holder whose token is stored may release.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Compare-and-pexpire: only the current holder may extend the TTL.
var renewScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// RedisLocker implements Locker on a single Redis instance using the
// SET NX PX recipe with a per-holder fencing token.
type RedisLocker struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisLocker creates a locker over the given Redis client. All lease
// keys are namespaced under prefix.
func NewRedisLocker(client redis.UniversalClient, prefix string) *RedisLocker {
	if prefix == "" {
		prefix = "lease"
	}
	return &RedisLocker{client: client, prefix: prefix}
}

// Acquire implements Locker. It polls rather than subscribing: contention
// on a single scheduled instance is rare and short-lived, and the wait
// budget is a few seconds at most.
func (l *RedisLocker) Acquire(ctx context.Context, key string, ttl, wait time.Duration) (Lease, error) {
	token := uuid.NewString()
	fullKey := l.prefix + ":" + key
	deadline := time.Now().Add(wait)

	for {
		ok, err := l.client.SetNX(ctx, fullKey, token, ttl).Result()
		if err != nil {
			return nil, err
		}
		if ok {
			return &redisLease{locker: l, key: fullKey, token: token}, nil
		}

		if time.Now().After(deadline) {
			return nil, ErrNotAcquired
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(acquirePollInterval):
		}
	}
}

type redisLease struct {
	locker *RedisLocker
	key    string
	token  string
}

func (r *redisLease) Key() string { return r.key }

func (r *redisLease) Renew(ctx context.Context, ttl time.Duration) error {
	res, err := renewScript.Run(ctx, r.locker.client, []string{r.key}, r.token, ttl.Milliseconds()).Int64()
	if err != nil {
		return err
	}
	if res == 0 {
		return errors.New("lease: renew on expired or foreign lease")
	}
	return nil
}

func (r *redisLease) Release(ctx context.Context) error {
	_, err := releaseScript.Run(ctx, r.locker.client, []string{r.key}, r.token).Int64()
	return err
}

// Compile-time check that RedisLocker implements Locker.
var _ Locker = (*RedisLocker)(nil)
