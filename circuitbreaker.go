package rpcgate

import (
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/sony/gobreaker"
)

// defaultOpenTimeout is the duration a breaker stays OPEN before
// allowing a single HALF_OPEN probe, per spec.md §4.8's stated default.
const defaultOpenTimeout = 60 * time.Second

// defaultFailureThreshold is the number of consecutive failures that
// trips a breaker from CLOSED to OPEN.
const defaultFailureThreshold uint32 = 5

// CircuitBreakerRegistry holds one gobreaker.CircuitBreaker per
// (host, port) KV endpoint, process-wide and concurrency-safe. Every
// KV-store call in the gateway goes through Call.
type CircuitBreakerRegistry struct {
	mu               sync.Mutex
	breakers         map[string]*gobreaker.CircuitBreaker
	failureThreshold uint32
	openTimeout      time.Duration
}

// NewCircuitBreakerRegistry builds a registry whose breakers trip after
// failureThreshold consecutive failures and stay OPEN for openTimeout.
// A zero value for either falls back to the spec's stated defaults
// (5 failures, 60s).
func NewCircuitBreakerRegistry(failureThreshold uint32, openTimeout time.Duration) *CircuitBreakerRegistry {
	if failureThreshold == 0 {
		failureThreshold = defaultFailureThreshold
	}
	if openTimeout == 0 {
		openTimeout = defaultOpenTimeout
	}
	return &CircuitBreakerRegistry{
		breakers:         make(map[string]*gobreaker.CircuitBreaker),
		failureThreshold: failureThreshold,
		openTimeout:      openTimeout,
	}
}

func (r *CircuitBreakerRegistry) breakerFor(endpoint string) *gobreaker.CircuitBreaker {
	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.breakers[endpoint]; ok {
		return b
	}
	b := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        endpoint,
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     r.openTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= r.failureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("circuit breaker state change", "endpoint", name, "from", from, "to", to)
		},
	})
	r.breakers[endpoint] = b
	return b
}

// Call runs fn through the breaker for endpoint. When the breaker is open
// or fn fails, failOpen decides whether the caller should treat the call
// as having succeeded with a degraded result (allow_degradation = true)
// or be rejected (allow_degradation = false). Call itself always returns
// the raw error; it is the caller's job to apply the failOpen policy.
func (r *CircuitBreakerRegistry) Call(endpoint string, fn func() (interface{}, error)) (interface{}, error) {
	return r.breakerFor(endpoint).Execute(fn)
}
