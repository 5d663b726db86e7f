package rpcgate

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis"
	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/require"
)

func TestMemoryKVLimiter(t *testing.T) {
	lim := NewMemoryKVLimiter(time.Minute)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		res, err := lim.Take(ctx, "consumer-a", 1, 10)
		require.NoError(t, err)
		require.True(t, res.Allowed)
	}
	res, err := lim.Take(ctx, "consumer-a", 1, 10)
	require.NoError(t, err)
	require.False(t, res.Allowed)
}

func TestRedisKVLimiter(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	cb := NewCircuitBreakerRegistry(0, 0)
	lim := NewRedisKVLimiter(client, cb, mr.Addr(), time.Second, "test")
	ctx := context.Background()

	res, err := lim.Take(ctx, "consumer-a", 3, 5)
	require.NoError(t, err)
	require.True(t, res.Allowed)
	require.Equal(t, float64(2), res.Remaining)

	res, err = lim.Take(ctx, "consumer-a", 3, 5)
	require.NoError(t, err)
	require.False(t, res.Allowed)

	mr.FastForward(2 * time.Second)
	res, err = lim.Take(ctx, "consumer-a", 1, 5)
	require.NoError(t, err)
	require.True(t, res.Allowed)
}

func TestRedisKVLimiterTripsCircuitBreaker(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	mr.Close() // closed immediately: every call errors

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	cb := NewCircuitBreakerRegistry(5, time.Minute)
	lim := NewRedisKVLimiter(client, cb, mr.Addr(), time.Second, "test")
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := lim.Take(ctx, "consumer-a", 1, 10)
		require.Error(t, err)
	}

	_, err = lim.Take(ctx, "consumer-a", 1, 10)
	require.ErrorIs(t, err, gobreaker.ErrOpenState)
}

type errorLimiter struct{}

func (errorLimiter) Take(ctx context.Context, key string, amount, max float64) (TakeResult, error) {
	return TakeResult{}, context.DeadlineExceeded
}

func TestFallbackKVLimiter(t *testing.T) {
	secondary := NewMemoryKVLimiter(time.Minute)
	lim := NewFallbackKVLimiter(errorLimiter{}, secondary)

	res, err := lim.Take(context.Background(), "consumer-a", 1, 10)
	require.NoError(t, err)
	require.True(t, res.Allowed)
}
