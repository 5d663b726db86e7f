package rpcgate

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/redis/go-redis/v9"
)

// NewRedisClient builds the shared KV client used by RateLimiter,
// MonthlyLimiter, and ConfigStore's reload lock, with a pool sized per
// the concurrency model's minimum idle-connection requirement.
func NewRedisClient(cfg RedisConfig) (redis.UniversalClient, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, err
	}
	if cfg.Username != "" {
		opts.Username = cfg.Username
	}
	if cfg.Password != "" {
		opts.Password = cfg.Password
	}
	if cfg.PoolSize > 0 {
		opts.PoolSize = cfg.PoolSize
	}
	if cfg.MinIdleConns > 0 {
		opts.MinIdleConns = cfg.MinIdleConns
	} else {
		opts.MinIdleConns = 100
	}
	log.Info("constructed redis client", "pool_size", opts.PoolSize, "min_idle", opts.MinIdleConns)
	return redis.NewClient(opts), nil
}

func CheckRedisConnection(client redis.UniversalClient) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return wrapErr(err, "error connecting to redis")
	}
	return nil
}
