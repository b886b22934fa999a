package ratelimit

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/bsm/redislock"
	redis "github.com/redis/go-redis/v9"

	"github.com/joseph-ayodele/invoice-extractor/internal/common"
)

// InvoiceLocker serializes extraction per invoice across instances. A locker
// built without a Redis client grants every request.
type InvoiceLocker struct {
	client *redislock.Client
	ttl    time.Duration
	logger *slog.Logger
}

func NewInvoiceLocker(client *redis.Client, ttl time.Duration, logger *slog.Logger) *InvoiceLocker {
	if logger == nil {
		logger = slog.Default()
	}
	if ttl <= 0 {
		ttl = 3 * time.Minute
	}
	l := &InvoiceLocker{ttl: ttl, logger: logger}
	if client != nil {
		l.client = redislock.New(client)
	}
	return l
}

// Acquire obtains the lock for key without waiting. A held lock is reported
// as a conflict.
func (l *InvoiceLocker) Acquire(ctx context.Context, key string) (func(), error) {
	if l == nil || l.client == nil {
		return func() {}, nil
	}

	lock, err := l.client.Obtain(ctx, key, l.ttl, nil)
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, common.NewAppError(common.CodeConflict, "extraction already in progress", common.ErrConflict)
	}
	if err != nil {
		l.logger.Error("lock.obtain.failed", "key", key, "error", err)
		return nil, common.WrapError(err, "obtain lock")
	}

	return func() {
		// release must survive a canceled request context
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
		defer cancel()
		if err := lock.Release(rctx); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
			l.logger.Warn("lock.release.failed", "key", key, "error", err)
		}
	}, nil
}
