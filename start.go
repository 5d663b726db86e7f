package rpcgate

import (
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/log"
)

const (
	configTTL         = 60 * time.Second
	configCacheRoutes = 256
)

// Start wires a Server from a GatewayConfig: the shared Redis client,
// ConfigStore, CircuitBreakerRegistry, and one Pipeline per configured
// route, mirroring the teacher's own monolithic Start() wiring function.
func Start(cfg *GatewayConfig) (*Server, func(), error) {
	rdb, err := NewRedisClient(cfg.Redis)
	if err != nil {
		return nil, nil, fmt.Errorf("constructing redis client: %w", err)
	}
	if err := CheckRedisConnection(rdb); err != nil {
		return nil, nil, fmt.Errorf("checking redis connection: %w", err)
	}

	cb := NewCircuitBreakerRegistry(cfg.CircuitBreaker.FailureThreshold, cfg.CircuitBreaker.OpenTimeout.Duration())
	store, err := NewConfigStore(configTTL, configCacheRoutes, rdb)
	if err != nil {
		return nil, nil, fmt.Errorf("constructing config store: %w", err)
	}
	monthly := NewMonthlyLimiter(rdb, cb, cfg.Redis.URL)

	srv := NewServer(cfg.Server.MaxBodySizeBytes)

	for _, routeCfg := range cfg.Routes {
		routeCfg := routeCfg
		guard, err := NewGuardStage(routeCfg.BlockedIPs, routeCfg.BlockedConsumers, routeCfg.BlockedMethods)
		if err != nil {
			return nil, nil, fmt.Errorf("route %s: constructing guard: %w", routeCfg.RouteID, err)
		}

		whitelistGet := func(_ string) (*WhitelistConfig, error) {
			return store.Whitelist(routeCfg.RouteID, routeCfg.WhitelistPath)
		}
		pricingGet := func(_ string) (*PricingConfig, error) {
			return store.Pricing(routeCfg.RouteID, routeCfg.PricingPath)
		}

		rateLimiter := NewRedisKVLimiter(rdb, cb, cfg.Redis.URL, time.Second, routeCfg.RouteID)

		pipeline := NewPipeline(
			&ParserStage{MaxBodySize: cfg.Server.MaxBodySizeBytes},
			guard,
			&ConsumerVarsStage{},
			NewWhitelistStage(whitelistGet, routeCfg.EffectivePaidQuotaThreshold(), routeCfg.BypassNetworks),
			NewCUCalcStage(pricingGet),
			NewMonthlyLimiterStage(monthly),
			NewRateLimiterStage(rateLimiter, routeCfg.FailOpenOnKVError),
		)

		srv.RegisterRoute(routeCfg, pipeline, Upstream{
			RouteID: routeCfg.RouteID,
			HTTPURL: routeCfg.Upstream,
			WSURL:   routeCfg.Upstream,
		})
		log.Info("registered route", "route_id", routeCfg.RouteID, "network_override", routeCfg.NetworkOverride)
	}

	shutdown := func() {
		log.Info("shutting down gateway")
		_ = rdb.Close()
	}

	return srv, shutdown, nil
}
