package ratelimit

import (
	"context"
	"testing"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/recouply/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewIngestLimiterDisabled(t *testing.T) {
	cfg := config.Config{RateLimit: config.RateLimitConfig{UploadRate: 1, UploadBurst: 5}}
	assert.Nil(t, NewIngestLimiter(cfg, nil))

	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})
	t.Cleanup(func() { _ = client.Close() })
	assert.Nil(t, NewIngestLimiter(config.Config{}, client))
	assert.True(t, NewIngestLimiter(cfg, client).Enabled())
}

func TestNilLimiterAllowsEverything(t *testing.T) {
	var l *IngestLimiter
	ctx := context.Background()

	res, err := l.AllowAccount(ctx, "42")
	require.NoError(t, err)
	assert.True(t, res.Allowed)

	lease, err := l.LockUpload(ctx, "42", "payments")
	require.NoError(t, err)
	assert.Nil(t, lease)
	assert.NoError(t, lease.Release(ctx))
}

func TestLockerValidatesArguments(t *testing.T) {
	var nilLocker *Locker
	_, err := nilLocker.Acquire(context.Background(), "k", time.Second)
	assert.ErrorIs(t, err, ErrLockNotConfigured)

	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})
	t.Cleanup(func() { _ = client.Close() })
	locker := NewLocker(client)

	_, err = locker.Acquire(context.Background(), "", time.Second)
	assert.ErrorIs(t, err, ErrInvalidLock)
	_, err = locker.Acquire(context.Background(), "k", 0)
	assert.ErrorIs(t, err, ErrInvalidLock)
}

func TestZeroLeaseReleaseIsNoop(t *testing.T) {
	var lease Lease
	assert.NoError(t, lease.Release(context.Background()))
	assert.Empty(t, (*Lease)(nil).Key())
}

func TestKeys(t *testing.T) {
	assert.Equal(t, "recouply:ingest:account:42", AccountKey(" 42 "))
	assert.Equal(t, "recouply:upload:lock:42:payments", UploadLockKey("42", " Payments "))
}

func TestDefaultBucketTTL(t *testing.T) {
	assert.Equal(t, 20*time.Second, defaultBucketTTL(1, 10))
	assert.Equal(t, time.Second, defaultBucketTTL(100, 1))
	assert.Equal(t, time.Second, defaultBucketTTL(0, 0))
}

func TestTokenBucketValidatesArguments(t *testing.T) {
	var nilBucket *TokenBucket
	_, err := nilBucket.Allow(context.Background(), "k", 1, 1)
	assert.Error(t, err)

	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})
	t.Cleanup(func() { _ = client.Close() })
	bucket := NewTokenBucket(client)
	for _, tc := range []struct {
		key   string
		rate  float64
		burst int
	}{{"", 1, 1}, {"k", 0, 1}, {"k", 1, 0}} {
		res, err := bucket.Allow(context.Background(), tc.key, tc.rate, tc.burst)
		assert.Error(t, err)
		assert.False(t, res.Allowed)
	}
}
