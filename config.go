package rpcgate

import (
	"os"
	"strings"
	"time"
)

// TOMLDuration lets gateway.toml express durations as "30s" strings,
// matching the teacher's own config ergonomics.
type TOMLDuration time.Duration

func (d *TOMLDuration) UnmarshalText(b []byte) error {
	x, err := time.ParseDuration(string(b))
	if err != nil {
		return err
	}
	*d = TOMLDuration(x)
	return nil
}

func (d TOMLDuration) Duration() time.Duration { return time.Duration(d) }

// ServerConfig describes the HTTP/WS listener.
type ServerConfig struct {
	Host             string       `toml:"host"`
	RPCPort          int          `toml:"rpc_port"`
	WSPort           int          `toml:"ws_port"`
	MaxBodySizeBytes int64        `toml:"max_body_size_bytes"`
	Timeout          TOMLDuration `toml:"timeout"`
}

// RedisConfig describes the KV backend shared by RateLimiter,
// MonthlyLimiter, and ConfigStore's reload lock.
type RedisConfig struct {
	URL          string `toml:"url"`
	Username     string `toml:"username"`
	Password     string `toml:"password"`
	Namespace    string `toml:"namespace"`
	PoolSize     int    `toml:"pool_size"`
	MinIdleConns int    `toml:"min_idle_conns"`
}

// RouteConfig is a single upstream route: one (network, upstream URL)
// pair plus the location of its whitelist/pricing documents and the
// route-level knobs spec.md §4 names (guard blocklists, paid-tier
// threshold, bypass networks). Circuit breaker tuning is gateway-wide,
// in GatewayConfig.CircuitBreaker.
type RouteConfig struct {
	RouteID         string `toml:"route_id"`
	NetworkOverride string `toml:"network_override"`
	Upstream        string `toml:"upstream"`
	WhitelistPath   string `toml:"whitelist_path"`
	PricingPath     string `toml:"pricing_path"`

	BlockedIPs       []string  `toml:"blocked_ips"`
	BlockedConsumers []string  `toml:"blocked_consumers"`
	BlockedMethods   []Pattern `toml:"blocked_methods"`

	ConfigTTL         TOMLDuration `toml:"config_ttl"`
	FailOpenOnKVError bool         `toml:"allow_degradation"`

	// PaidQuotaThreshold is compared against a consumer's monthly_quota
	// to derive its tier; 0 means DefaultPaidQuotaThreshold applies.
	PaidQuotaThreshold float64  `toml:"paid_quota_threshold"`
	BypassNetworks     []string `toml:"bypass_networks"`
}

// EffectivePaidQuotaThreshold returns the route's configured threshold,
// or DefaultPaidQuotaThreshold when unset.
func (c *RouteConfig) EffectivePaidQuotaThreshold() float64 {
	if c.PaidQuotaThreshold > 0 {
		return c.PaidQuotaThreshold
	}
	return DefaultPaidQuotaThreshold
}

// CircuitBreakerConfig tunes the process-wide breaker registry guarding
// every KV-store call (RateLimiter and MonthlyLimiter alike), per
// spec.md §4.8. A zero FailureThreshold/OpenTimeout falls back to the
// spec's stated defaults (5 failures, 60s).
type CircuitBreakerConfig struct {
	FailureThreshold uint32       `toml:"failure_threshold"`
	OpenTimeout      TOMLDuration `toml:"open_timeout"`
}

type GatewayConfig struct {
	Server         ServerConfig         `toml:"server"`
	Redis          RedisConfig          `toml:"redis"`
	CircuitBreaker CircuitBreakerConfig `toml:"circuit_breaker"`
	Routes         []RouteConfig        `toml:"routes"`
}

// ReadFromEnvOrConfig resolves a config string that may be a literal
// value, an "$ENV_VAR" reference, or a "\literal" escape forcing a
// leading '$' to be read verbatim -- exactly the teacher's convention.
func ReadFromEnvOrConfig(value string) string {
	if strings.HasPrefix(value, "$") {
		return os.Getenv(strings.TrimPrefix(value, "$"))
	}
	if strings.HasPrefix(value, `\`) {
		return strings.TrimPrefix(value, `\`)
	}
	return value
}

// Pattern is a method-name matcher: either an exact string or a
// prefix-wildcard ("eth_get*") pricing/whitelist pattern.
type Pattern string

func (p Pattern) Matches(method string) bool {
	s := string(p)
	if strings.HasSuffix(s, "*") {
		return strings.HasPrefix(method, strings.TrimSuffix(s, "*"))
	}
	return s == method
}

// WhitelistConfig is a per-route, per-tier set of allowed method
// Patterns, loaded from JSON or YAML by ConfigStore.
type WhitelistConfig struct {
	Free []Pattern `json:"free" yaml:"free"`
	Paid []Pattern `json:"paid" yaml:"paid"`
}

func (w *WhitelistConfig) Allows(method string, tier ConsumerTier) bool {
	for _, p := range w.Free {
		if p.Matches(method) {
			return true
		}
	}
	if tier == TierPaid {
		for _, p := range w.Paid {
			if p.Matches(method) {
				return true
			}
		}
	}
	return false
}

// PricingConfig maps method Patterns to compute-unit cost. Exact matches
// take priority over wildcard matches; among wildcards, the longest
// prefix wins.
type PricingConfig struct {
	Default float64             `json:"default" yaml:"default"`
	Costs   map[Pattern]float64 `json:"costs" yaml:"costs"`
}

func (p *PricingConfig) CostOf(method string) float64 {
	if c, ok := p.Costs[Pattern(method)]; ok {
		return c
	}
	best := -1
	var bestCost float64
	for pat, cost := range p.Costs {
		if !strings.HasSuffix(string(pat), "*") {
			continue
		}
		if pat.Matches(method) {
			prefixLen := len(pat) - 1
			if prefixLen > best {
				best = prefixLen
				bestCost = cost
			}
		}
	}
	if best >= 0 {
		return bestCost
	}
	return p.Default
}
