package rpcgate

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru"
	"github.com/golang/snappy"
	"gopkg.in/yaml.v3"

	"github.com/ethereum/go-ethereum/log"
	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	goredislib "github.com/redis/go-redis/v9"
)

type configKind string

const (
	kindWhitelist configKind = "whitelist"
	kindPricing   configKind = "pricing"
)

type configCacheKey struct {
	routeID string
	kind    configKind
	path    string
}

type cacheEntry struct {
	loadedAt time.Time
	compressed []byte
}

// ConfigStore is a TTL-cached loader of per-route whitelist and pricing
// documents, keyed by (route_id, config_type, path) so that one route's
// TTL never interferes with another's. On load failure it degrades to
// the last-good cached value, or a safe empty default if nothing has
// ever loaded successfully. Cache entries are snappy-compressed in the
// LRU, the same role compression plays in the teacher's RPC cache.
type ConfigStore struct {
	mu    sync.RWMutex
	cache *lru.Cache // configCacheKey -> *cacheEntry
	ttl   time.Duration

	rs *redsync.Redsync
}

func NewConfigStore(ttl time.Duration, capacity int, rdb goredislib.UniversalClient) (*ConfigStore, error) {
	c, err := lru.New(capacity)
	if err != nil {
		return nil, err
	}
	pool := goredis.NewPool(rdb)
	return &ConfigStore{
		cache: c,
		ttl:   ttl,
		rs:    redsync.New(pool),
	}, nil
}

func (s *ConfigStore) Whitelist(routeID, path string) (*WhitelistConfig, error) {
	var out WhitelistConfig
	if err := s.load(configCacheKey{routeID, kindWhitelist, path}, path, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *ConfigStore) Pricing(routeID, path string) (*PricingConfig, error) {
	var out PricingConfig
	if err := s.load(configCacheKey{routeID, kindPricing, path}, path, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *ConfigStore) load(key configCacheKey, path string, out interface{}) error {
	if v, ok := s.cache.Get(key); ok {
		entry := v.(*cacheEntry)
		if time.Since(entry.loadedAt) < s.ttl {
			return decompress(entry.compressed, out)
		}
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return s.degrade(key, out, err)
	}
	if perr := parseConfigDoc(path, raw, out); perr != nil {
		return s.degrade(key, out, perr)
	}

	fresh, merr := json.Marshal(out)
	if merr == nil {
		s.cache.Add(key, &cacheEntry{loadedAt: time.Now(), compressed: snappy.Encode(nil, fresh)})
	}
	return nil
}

// degrade falls back to the last-good cached value (ignoring TTL) when a
// fresh load fails, logging the failure; if nothing has ever loaded, out
// is left as it is: for a fresh value that is an empty whitelist (denies
// every method) or a pricing config with no costs and a zero default.
func (s *ConfigStore) degrade(key configCacheKey, out interface{}, loadErr error) error {
	log.Warn("config load failed, degrading to last-good cache", "route", key.routeID, "kind", key.kind, "err", loadErr)
	if v, ok := s.cache.Get(key); ok {
		entry := v.(*cacheEntry)
		return decompress(entry.compressed, out)
	}
	return nil
}

func decompress(compressed []byte, out interface{}) error {
	raw, err := snappy.Decode(nil, compressed)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}

func parseConfigDoc(path string, raw []byte, out interface{}) error {
	if strings.HasSuffix(path, ".yaml") || strings.HasSuffix(path, ".yml") {
		return yaml.Unmarshal(raw, out)
	}
	if err := json.Unmarshal(raw, out); err == nil {
		return nil
	}
	return yaml.Unmarshal(raw, out)
}

// Reload forces a fresh load of the given route's document, bypassing
// the TTL, guarded by a distributed lock so that multiple gateway
// replicas reloading the same config don't thunder the backing store.
func (s *ConfigStore) Reload(routeID string, kind configKind, path string) error {
	lockName := fmt.Sprintf("configstore-reload:%s:%s", routeID, kind)
	mutex := s.rs.NewMutex(lockName, redsync.WithExpiry(5*time.Second))
	if err := mutex.Lock(); err != nil {
		return wrapErr(err, "acquiring config reload lock")
	}
	defer mutex.Unlock()

	s.cache.Remove(configCacheKey{routeID, kind, path})

	var out interface{}
	switch kind {
	case kindWhitelist:
		out = &WhitelistConfig{}
	case kindPricing:
		out = &PricingConfig{}
	}
	return s.load(configCacheKey{routeID, kind, path}, path, out)
}
