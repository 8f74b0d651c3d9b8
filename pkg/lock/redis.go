package lock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
)

const keyPrefix = "cascade:lock:"

// releaseScript deletes the key only when this acquisition still holds it,
// so a lease that expired and was re-acquired elsewhere is never deleted
// from under the new holder.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// renewScript extends the TTL only when this acquisition still holds the key.
var renewScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// RedisLocker implements Locker with SET NX PX leases. The lease value is a
// per-acquisition token (owner-prefixed for observability), so a second
// Acquire on the same instance fails while the first lease lives: goroutines
// of one process exclude each other the same way separate instances do.
// Expiry doubles as stale-holder takeover.
type RedisLocker struct {
	client redis.UniversalClient
	owner  string
	mu     sync.Mutex
	tokens map[string]string
}

func NewRedisLocker(client redis.UniversalClient, owner string) *RedisLocker {
	return &RedisLocker{client: client, owner: owner, tokens: make(map[string]string)}
}

func (l *RedisLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	token := l.owner + ":" + uuid.New().String()

	ok, err := l.client.SetNX(ctx, keyPrefix+key, token, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("acquire lock %s: %w", key, err)
	}

	if !ok {
		return false, nil
	}

	l.mu.Lock()
	l.tokens[key] = token
	l.mu.Unlock()

	return true, nil
}

func (l *RedisLocker) Release(ctx context.Context, key string) error {
	l.mu.Lock()
	token := l.tokens[key]
	delete(l.tokens, key)
	l.mu.Unlock()

	if token == "" {
		return ErrNotHeld
	}

	deleted, err := releaseScript.Run(ctx, l.client, []string{keyPrefix + key}, token).Int()
	if err != nil {
		return fmt.Errorf("release lock %s: %w", key, err)
	}

	if deleted == 0 {
		return ErrNotHeld
	}

	return nil
}

func (l *RedisLocker) Renew(ctx context.Context, key string, ttl time.Duration) error {
	l.mu.Lock()
	token := l.tokens[key]
	l.mu.Unlock()

	if token == "" {
		return ErrNotHeld
	}

	extended, err := renewScript.Run(ctx, l.client, []string{keyPrefix + key}, token, ttl.Milliseconds()).Int()
	if err != nil {
		return fmt.Errorf("renew lock %s: %w", key, err)
	}

	if extended == 0 {
		l.mu.Lock()
		delete(l.tokens, key)
		l.mu.Unlock()

		return ErrNotHeld
	}

	return nil
}
