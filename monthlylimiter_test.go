package rpcgate

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func TestBillingCycleUTC(t *testing.T) {
	june15 := time.Date(2026, time.June, 15, 12, 0, 0, 0, time.UTC)
	cycleID, cycleEnd := BillingCycle(june15)
	require.Equal(t, "202606", cycleID)
	require.Equal(t, time.Date(2026, time.June, 30, 23, 59, 59, 0, time.UTC), cycleEnd)
}

func TestMonthlyLimiterCharge(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	cb := NewCircuitBreakerRegistry(0, 0)
	limiter := NewMonthlyLimiter(client, cb, mr.Addr())

	rc := NewRPCContext(context.Background(), "req-1")

	res, err := limiter.Charge(rc, "consumer-a", 10, 10)
	require.NoError(t, err)
	require.True(t, res.Allowed)
	require.Equal(t, float64(0), res.Remaining)

	res, err = limiter.Charge(rc, "consumer-a", 10, 10)
	require.NoError(t, err)
	require.False(t, res.Allowed)
}

func TestMonthlyLimiterStageSetsQuotaInfo(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	cb := NewCircuitBreakerRegistry(0, 0)
	limiter := NewMonthlyLimiter(client, cb, mr.Addr())
	stage := NewMonthlyLimiterStage(limiter)

	rc := NewRPCContext(context.Background(), "req-1")
	rc.Consumer = ConsumerIdentity{Name: "consumer-a", MonthlyQuota: 10_000}
	rc.CU = 1

	res := stage.Run(rc)
	require.True(t, res.Continue)
	require.NotNil(t, rc.MonthlyQuota)
	require.Equal(t, float64(9999), rc.MonthlyQuota.Remaining)
}
