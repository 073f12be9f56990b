package joblock

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Locker provides short-lived single-flight locks backed by redis SET NX.
// It is used to keep scheduled jobs from stacking concurrent runs (lock keyed
// by job name) and to serialize checkout starts per user (lock keyed by user
// id). Locks expire on their own so a crashed holder never wedges the system.
type Locker struct {
	client redis.UniversalClient
	prefix string
}

// New creates a Locker. The prefix namespaces lock keys so multiple
// applications can share one redis instance.
func New(client redis.UniversalClient, prefix string) *Locker {
	if prefix == "" {
		prefix = "subflow:lock"
	}
	return &Locker{client: client, prefix: prefix}
}

// releaseScript deletes the lock only if it still holds our token, so an
// expired lock re-acquired by another holder is never released by us.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// TryAcquire attempts to take the lock for the given key. It returns
// acquired=false without error if another holder owns the lock. On success
// the returned release function frees the lock early; otherwise the TTL
// frees it.
func (l *Locker) TryAcquire(ctx context.Context, key string, ttl time.Duration) (release func(), acquired bool, err error) {
	token := uuid.NewString()
	full := l.prefix + ":" + key

	ok, err := l.client.SetNX(ctx, full, token, ttl).Result()
	if err != nil {
		return nil, false, errors.Join(ErrLockUnavailable, err)
	}
	if !ok {
		return nil, false, nil
	}

	release = func() {
		// Best effort: the TTL is the backstop if the release itself fails.
		_ = releaseScript.Run(context.WithoutCancel(ctx), l.client, []string{full}, token).Err()
	}
	return release, true, nil
}
