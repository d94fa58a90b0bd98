package ratelimit

import (
	"context"
	"fmt"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/recouply/internal/config"
)

const (
	keyIngestAccount = "recouply:ingest:account:%s"
	keyUploadLock    = "recouply:upload:lock:%s:%s"
)

// IngestLimiter throttles uploads and payment feed calls per account and
// keeps two uploads of the same file type for one account from overlapping.
// A nil limiter allows everything.
type IngestLimiter struct {
	bucket  *TokenBucket
	locker  *Locker
	rate    float64
	burst   int
	lockTTL time.Duration
}

func NewIngestLimiter(cfg config.Config, client *redis.Client) *IngestLimiter {
	limitCfg := cfg.RateLimit
	if client == nil || limitCfg.UploadRate <= 0 || limitCfg.UploadBurst <= 0 {
		return nil
	}
	lockTTL := limitCfg.UploadLockTTL
	if lockTTL <= 0 {
		lockTTL = 5 * time.Minute
	}
	return &IngestLimiter{
		bucket:  NewTokenBucket(client),
		locker:  NewLocker(client),
		rate:    limitCfg.UploadRate,
		burst:   limitCfg.UploadBurst,
		lockTTL: lockTTL,
	}
}

func (l *IngestLimiter) Enabled() bool {
	return l != nil && l.bucket != nil
}

func (l *IngestLimiter) AllowAccount(ctx context.Context, accountID string) (*RateLimitResult, error) {
	if !l.Enabled() {
		return &RateLimitResult{Allowed: true}, nil
	}
	return l.bucket.Allow(ctx, AccountKey(accountID), l.rate, l.burst)
}

// LockUpload serializes uploads of one file type for an account. It returns
// a nil lease when limiting is disabled and ErrLockHeld when another upload
// is running.
func (l *IngestLimiter) LockUpload(ctx context.Context, accountID, fileType string) (*Lease, error) {
	if !l.Enabled() {
		return nil, nil
	}
	return l.locker.Acquire(ctx, UploadLockKey(accountID, fileType), l.lockTTL)
}

func AccountKey(accountID string) string {
	return fmt.Sprintf(keyIngestAccount, strings.TrimSpace(accountID))
}

func UploadLockKey(accountID, fileType string) string {
	return fmt.Sprintf(keyUploadLock, strings.TrimSpace(accountID), strings.ToLower(strings.TrimSpace(fileType)))
}
