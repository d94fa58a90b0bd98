package ratelimit

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
)

var (
	ErrLockHeld          = errors.New("lock_held")
	ErrLockNotConfigured = errors.New("lock_not_configured")
	ErrInvalidLock       = errors.New("invalid_lock")
)

// deletes KEYS[1] only while ARGV[1] still owns it
const releaseIfOwner = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`

// Locker hands out expiring, owner-tagged leases on redis keys.
type Locker struct {
	client  *redis.Client
	release *redis.Script
}

func NewLocker(client *redis.Client) *Locker {
	if client == nil {
		return nil
	}
	return &Locker{client: client, release: redis.NewScript(releaseIfOwner)}
}

// Lease is a held lock. The zero value and nil are valid and release nothing.
type Lease struct {
	locker *Locker
	key    string
	owner  string
}

// Acquire takes key for ttl or returns ErrLockHeld.
func (l *Locker) Acquire(ctx context.Context, key string, ttl time.Duration) (*Lease, error) {
	if l == nil || l.client == nil {
		return nil, ErrLockNotConfigured
	}
	if key == "" || ttl <= 0 {
		return nil, ErrInvalidLock
	}

	owner := uuid.NewString()
	acquired, err := l.client.SetNX(ctx, key, owner, ttl).Result()
	if err != nil {
		return nil, err
	}
	if !acquired {
		return nil, ErrLockHeld
	}
	return &Lease{locker: l, key: key, owner: owner}, nil
}

func (le *Lease) Key() string {
	if le == nil {
		return ""
	}
	return le.key
}

// Release drops the lease if it is still owned. Calling it twice is harmless.
func (le *Lease) Release(ctx context.Context) error {
	if le == nil || le.locker == nil || le.owner == "" {
		return nil
	}
	err := le.locker.release.Run(ctx, le.locker.client, []string{le.key}, le.owner).Err()
	le.owner = ""
	return err
}
