package database

import (
	"context"
	"errors"
	"time"

	"imagevariants/pkg/logger"

	"github.com/google/uuid"
	"github.com/valkey-io/valkey-go"
)

const lockKeyPattern = "lock:%s"

var ErrLockTimeout = errors.New("timed out waiting for lock")

// releaseScript deletes the lock only if it still holds our token, so an expired
// lock taken over by another worker is never released by the previous holder.
var releaseScript = valkey.NewLuaScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// ValkeyLocker is a cross-process mutex built on SET NX PX.
type ValkeyLocker struct {
	client     valkey.Client
	ttl        time.Duration
	retryDelay time.Duration
	log        logger.Logger
}

func NewValkeyLocker(client valkey.Client, ttl time.Duration) *ValkeyLocker {
	return &ValkeyLocker{
		client:     client,
		ttl:        ttl,
		retryDelay: 50 * time.Millisecond,
		log:        logger.New("database").File("lock.database"),
	}
}

// Lock blocks until key is acquired or ctx is done.
func (l *ValkeyLocker) Lock(ctx context.Context, key string) (func(), error) {
	log := l.log.Function("Lock")
	token := uuid.NewString()

	builder := NewCacheBuilder(l.client, key).
		WithHashPattern(lockKeyPattern).
		WithValue(token).
		WithTTL(l.ttl).
		WithContext(ctx)

	for {
		acquired, err := builder.SetNX()
		if err != nil {
			return nil, log.Err("failed to acquire lock", err, "key", key)
		}
		if acquired {
			break
		}

		select {
		case <-ctx.Done():
			return nil, errors.Join(ErrLockTimeout, ctx.Err())
		case <-time.After(l.retryDelay):
		}
	}

	fullKey := builder.Key()
	return func() {
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := releaseScript.Exec(releaseCtx, l.client, []string{fullKey}, []string{token}).Error(); err != nil {
			log.Er("failed to release lock", err, "key", fullKey)
		}
	}, nil
}
