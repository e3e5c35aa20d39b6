package sweeper

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// DefaultLockTTL bounds how long a crashed holder blocks other instances.
const DefaultLockTTL = time.Minute

// unlockLua deletes the lock only if it still holds this instance's token.
const unlockLua = `
if redis.call('GET', KEYS[1]) == ARGV[1] then
    return redis.call('DEL', KEYS[1])
end
return 0
`

var unlockScript = redis.NewScript(unlockLua)

// LockKey returns the Redis key guarding sweeps of schema.table.
func LockKey(schema, table string) string {
	return "pgsession:sweep:" + schema + "." + table
}

// RedisLocker is a Locker backed by a single Redis key with a TTL.
type RedisLocker struct {
	client redis.UniversalClient
	key    string
	token  string
	ttl    time.Duration
}

// NewRedisLocker returns a locker for key. Each locker has its own token, so
// only the instance that acquired the lock can release it.
func NewRedisLocker(client redis.UniversalClient, key string, ttl time.Duration) *RedisLocker {
	if ttl <= 0 {
		ttl = DefaultLockTTL
	}
	return &RedisLocker{
		client: client,
		key:    key,
		token:  uuid.NewString(),
		ttl:    ttl,
	}
}

// TryLock acquires the lock without waiting.
func (l *RedisLocker) TryLock(ctx context.Context) (bool, error) {
	ok, err := l.client.SetNX(ctx, l.key, l.token, l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis lock %s: %w", l.key, err)
	}
	return ok, nil
}

// Unlock releases the lock if this locker still holds it.
func (l *RedisLocker) Unlock(ctx context.Context) error {
	err := unlockScript.Run(ctx, l.client, []string{l.key}, l.token).Err()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("redis unlock %s: %w", l.key, err)
	}
	return nil
}
