package rpcgate

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// TakeResult is the outcome of a KVLimiter.Take call: whether the
// request was allowed plus enough state to populate the X-RateLimit-*
// response headers.
type TakeResult struct {
	Allowed   bool
	Limit     float64
	Remaining float64
	ResetAt   time.Time
}

// KVLimiter is a CU-weighted sliding-window taker backed by a KV store.
// max is supplied per call since it is the caller's resolved
// consumer's seconds_quota, not a route-wide constant. No error is
// returned for "over limit" -- only for backing-store failures, which
// the RateLimiterStage maps through the CircuitBreaker's fail-open
// policy.
type KVLimiter interface {
	Take(ctx context.Context, key string, amount, max float64) (TakeResult, error)
}

type limitedKeys struct {
	truncTS int64
	keys    map[string]float64
	mtx     sync.Mutex
}

func newLimitedKeys(t int64) *limitedKeys {
	return &limitedKeys{truncTS: t, keys: make(map[string]float64)}
}

func (l *limitedKeys) Take(key string, amount, max float64) (float64, bool) {
	l.mtx.Lock()
	defer l.mtx.Unlock()
	val := l.keys[key]
	l.keys[key] = val + amount
	return val + amount, val < max
}

// MemoryKVLimiter keeps per-second-bucket usage in local memory. Used in
// tests and as the secondary leg of a FallbackKVLimiter.
type MemoryKVLimiter struct {
	currGeneration *limitedKeys
	dur            time.Duration
	mtx            sync.Mutex
}

func NewMemoryKVLimiter(dur time.Duration) KVLimiter {
	return &MemoryKVLimiter{dur: dur}
}

func (m *MemoryKVLimiter) Take(ctx context.Context, key string, amount, max float64) (TakeResult, error) {
	m.mtx.Lock()
	truncTS := truncateNow(m.dur)
	if m.currGeneration == nil || m.currGeneration.truncTS != truncTS {
		m.currGeneration = newLimitedKeys(truncTS)
	}
	limiter := m.currGeneration
	m.mtx.Unlock()

	used, ok := limiter.Take(key, amount, max)
	resetAt := time.Unix(truncTS, 0).Add(m.dur)
	return TakeResult{
		Allowed:   ok,
		Limit:     max,
		Remaining: remaining(max, used),
		ResetAt:   resetAt,
	}, nil
}

// RedisKVLimiter implements the per-second bucketed sliding window: an
// INCRBY against a key scoped to the truncated second, with the TTL set
// only when the key is new (first writer in the bucket sets it). Every
// call is routed through the CircuitBreakerRegistry, per spec.md §4.6
// ("All KV calls go through the CircuitBreaker").
type RedisKVLimiter struct {
	r        redis.UniversalClient
	cb       *CircuitBreakerRegistry
	endpoint string
	dur      time.Duration
	prefix   string
}

func NewRedisKVLimiter(r redis.UniversalClient, cb *CircuitBreakerRegistry, endpoint string, dur time.Duration, prefix string) KVLimiter {
	return &RedisKVLimiter{r: r, cb: cb, endpoint: endpoint, dur: dur, prefix: prefix}
}

func (r *RedisKVLimiter) Take(ctx context.Context, key string, amount, max float64) (TakeResult, error) {
	truncTS := truncateNow(r.dur)
	fullKey := fmt.Sprintf("rate_limit:%s:%s:%d", r.prefix, key, truncTS)
	resetAt := time.Unix(truncTS, 0).Add(r.dur)

	result, err := r.cb.Call(r.endpoint, func() (interface{}, error) {
		incr, err := r.r.IncrByFloat(ctx, fullKey, amount).Result()
		if err != nil {
			return nil, err
		}
		if incr == amount {
			r.r.Expire(ctx, fullKey, r.dur)
		}
		return incr, nil
	})
	if err != nil {
		RateLimitTakeErrors.Inc()
		return TakeResult{}, err
	}

	used := result.(float64)
	return TakeResult{
		Allowed:   used <= max,
		Limit:     max,
		Remaining: remaining(max, used),
		ResetAt:   resetAt,
	}, nil
}

func remaining(max, used float64) float64 {
	r := max - used
	if r < 0 {
		return 0
	}
	return r
}

type noopKVLimiter struct{}

var NoopKVLimiter = &noopKVLimiter{}

func (n *noopKVLimiter) Take(ctx context.Context, key string, amount, max float64) (TakeResult, error) {
	return TakeResult{Allowed: true, Limit: max, Remaining: max}, nil
}

func truncateNow(dur time.Duration) int64 {
	return time.Now().Truncate(dur).Unix()
}

// FallbackKVLimiter tries primary first; on a backing-store error it
// falls through to secondary, rather than failing the request outright.
type FallbackKVLimiter struct {
	primary   KVLimiter
	secondary KVLimiter
}

func NewFallbackKVLimiter(primary, secondary KVLimiter) KVLimiter {
	return &FallbackKVLimiter{primary: primary, secondary: secondary}
}

func (r *FallbackKVLimiter) Take(ctx context.Context, key string, amount, max float64) (TakeResult, error) {
	res, err := r.primary.Take(ctx, key, amount, max)
	if err != nil {
		return r.secondary.Take(ctx, key, amount, max)
	}
	return res, nil
}

// RateLimiterStage enforces the per-second CU-weighted window. It fails
// open (allows the request) when the backing KV call errors and the
// route's allow_degradation is set; otherwise it fails closed.
type RateLimiterStage struct {
	limiter       KVLimiter
	allowDegraded bool
}

func NewRateLimiterStage(limiter KVLimiter, allowDegraded bool) *RateLimiterStage {
	return &RateLimiterStage{limiter: limiter, allowDegraded: allowDegraded}
}

func (s *RateLimiterStage) Name() string  { return "rate_limiter" }
func (s *RateLimiterStage) Priority() int { return PriorityRateLimiter }

func (s *RateLimiterStage) Validate(cfg *RouteConfig) error { return nil }

func (s *RateLimiterStage) Run(rc *RPCContext) StageResult {
	key := fmt.Sprintf("%s:%s", rc.Network, rc.Consumer.Name)
	res, err := s.limiter.Take(rc.Context(), key, rc.CU, rc.Consumer.SecondsQuota)
	if err != nil {
		if s.allowDegraded {
			return Continue()
		}
		return Reject(ErrBackendUnavailable)
	}
	rc.RateLimit = &RateLimitInfo{Limit: res.Limit, Remaining: res.Remaining, ResetAt: res.ResetAt}
	if !res.Allowed {
		return Reject(ErrOverRateLimit)
	}
	return Continue()
}
