// Package lock provides a distributed lock enforcing the Catalog
// Store's single-writer discipline (see the concurrency model) across
// multiple kernel processes sharing one Postgres instance. A single
// process needs no lock at all -- the Catalog's own transaction
// serialization is sufficient -- so this is an optional wrapper, not a
// required collaborator.
package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"rmscore.evalgo.org/model"
)

// ErrNotHeld is returned by Release when the caller no longer holds the
// lock it is trying to release (expired, or never acquired).
var ErrNotHeld = errors.New("lock: not held")

// WriterLock serializes Catalog mutations across processes via a single
// Redis key. It is advisory: nothing stops a caller from writing to the
// Catalog without acquiring it, mirroring the kernel's own "at-most-one-
// wins" stance on deduplication races.
type WriterLock struct {
	client *redis.Client
	key    string
	token  string
}

// NewWriterLock connects to redisURL and returns a lock over the given
// key (one key per Catalog/database the callers want serialized).
func NewWriterLock(redisURL, key string) (*WriterLock, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("lock: parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("lock: connect: %w", err)
	}
	return &WriterLock{client: client, key: "rmslock:" + key}, nil
}

// Acquire blocks, retrying every 50ms, until it owns the lock or ctx is
// done. The lock is held for at most ttl even if the process dies
// without releasing it, so a crashed writer never wedges the catalog.
func (l *WriterLock) Acquire(ctx context.Context, ttl time.Duration) error {
	token := model.NewID()
	for {
		ok, err := l.client.SetNX(ctx, l.key, token, ttl).Result()
		if err != nil {
			return fmt.Errorf("lock: acquire: %w", err)
		}
		if ok {
			l.token = token
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(50 * time.Millisecond):
		}
	}
}

// releaseScript deletes the key only if it still holds this lock's
// token, so a caller can never release a lock it no longer owns (e.g.
// after its TTL expired and another writer acquired it).
const releaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
else
	return 0
end
`

// Release gives up the lock, failing with ErrNotHeld if it has already
// expired or was never acquired.
func (l *WriterLock) Release(ctx context.Context) error {
	if l.token == "" {
		return ErrNotHeld
	}
	n, err := l.client.Eval(ctx, releaseScript, []string{l.key}, l.token).Int64()
	if err != nil {
		return fmt.Errorf("lock: release: %w", err)
	}
	l.token = ""
	if n == 0 {
		return ErrNotHeld
	}
	return nil
}

// Close closes the underlying Redis connection.
func (l *WriterLock) Close() error { return l.client.Close() }
