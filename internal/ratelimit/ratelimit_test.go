package ratelimit

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/invoice-extractor/internal/common"
)

func testLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestTokenBucket(t *testing.T) {
	mr, client := newRedis(t)
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	mr.SetTime(now)

	tb := NewTokenBucket(client, "rl:", 1, 2)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		ok, err := tb.Allow(ctx, "10.0.0.1")
		require.NoError(t, err)
		assert.True(t, ok, "request %d within burst", i)
	}

	res, err := tb.Check(ctx, "10.0.0.1")
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, 2, res.Limit)
	assert.Equal(t, 0, res.Remaining)
	assert.Equal(t, time.Second, res.RetryAfter)

	ok, err := tb.Allow(ctx, "10.0.0.2")
	require.NoError(t, err)
	assert.True(t, ok, "keys are independent")

	mr.SetTime(now.Add(1500 * time.Millisecond))
	ok, err = tb.Allow(ctx, "10.0.0.1")
	require.NoError(t, err)
	assert.True(t, ok, "bucket refills over time")

	assert.True(t, mr.Exists("rl:10.0.0.1"))
	assert.Equal(t, 4*time.Second, mr.TTL("rl:10.0.0.1"))
}

func TestTokenBucketErrors(t *testing.T) {
	_, client := newRedis(t)
	ctx := context.Background()

	assert.Nil(t, NewTokenBucket(nil, "", 1, 1))

	var nilBucket *TokenBucket
	_, err := nilBucket.Allow(ctx, "k")
	assert.Error(t, err)

	_, err = NewTokenBucket(client, "", 1, 1).Allow(ctx, "")
	assert.Error(t, err)

	_, err = NewTokenBucket(client, "", 0, 1).Allow(ctx, "k")
	assert.Error(t, err)
}

func TestBucketTTL(t *testing.T) {
	assert.Equal(t, 40*time.Second, bucketTTL(1, 20))
	assert.Equal(t, time.Second, bucketTTL(100, 1))
	assert.Equal(t, time.Second, bucketTTL(0, 1))
}

func TestLocalLimiter(t *testing.T) {
	l := NewLocalLimiter(1, 3)
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		ok, err := l.Allow(ctx, "a")
		require.NoError(t, err)
		assert.True(t, ok)
	}
	ok, _ := l.Allow(ctx, "a")
	assert.False(t, ok, "burst exhausted")

	ok, _ = l.Allow(ctx, "b")
	assert.True(t, ok, "keys are independent")

	now = now.Add(time.Second)
	ok, _ = l.Allow(ctx, "a")
	assert.True(t, ok, "one token per second")

	assert.Equal(t, 2, l.Len())
	now = now.Add(11 * time.Minute)
	_, _ = l.Allow(ctx, "c")
	assert.Equal(t, 1, l.Len(), "idle buckets are swept")
}

func TestLocalLimiterConcurrent(t *testing.T) {
	l := NewLocalLimiter(0, 50)
	var wg sync.WaitGroup
	var mu sync.Mutex
	allowed := 0
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ok, _ := l.Allow(context.Background(), "k"); ok {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, allowed)
}

func TestInvoiceLocker(t *testing.T) {
	_, client := newRedis(t)
	l := NewInvoiceLocker(client, time.Minute, testLogger())
	ctx := context.Background()

	release, err := l.Acquire(ctx, "invoice:extract:1")
	require.NoError(t, err)

	_, err = l.Acquire(ctx, "invoice:extract:1")
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrConflict)
	assert.Equal(t, common.CodeConflict, common.ErrorCode(err))

	other, err := l.Acquire(ctx, "invoice:extract:2")
	require.NoError(t, err)
	other()

	release()
	release2, err := l.Acquire(ctx, "invoice:extract:1")
	require.NoError(t, err)
	release2()
}

func TestInvoiceLockerWithoutRedis(t *testing.T) {
	l := NewInvoiceLocker(nil, 0, testLogger())
	for i := 0; i < 2; i++ {
		release, err := l.Acquire(context.Background(), "invoice:extract:1")
		require.NoError(t, err)
		release()
	}
}
