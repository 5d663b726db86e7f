package rpcgate

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestConfigStore(t *testing.T, ttl time.Duration) *ConfigStore {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store, err := NewConfigStore(ttl, 16, client)
	require.NoError(t, err)
	return store
}

func TestConfigStoreLoadsJSON(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "whitelist.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"free":["eth_chainId"],"paid":[]}`), 0o644))

	store := newTestConfigStore(t, time.Minute)
	wl, err := store.Whitelist("route-a", path)
	require.NoError(t, err)
	require.True(t, wl.Allows("eth_chainId", TierFree))
}

func TestConfigStoreLoadsYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pricing.yaml")
	require.NoError(t, os.WriteFile(path, []byte("default: 1\ncosts:\n  eth_call: 5\n"), 0o644))

	store := newTestConfigStore(t, time.Minute)
	pricing, err := store.Pricing("route-a", path)
	require.NoError(t, err)
	require.Equal(t, float64(5), pricing.CostOf("eth_call"))
}

func TestConfigStoreDegradesToLastGoodOnLoadFailure(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "whitelist.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"free":["eth_chainId"]}`), 0o644))

	store := newTestConfigStore(t, time.Millisecond)
	_, err := store.Whitelist("route-a", path)
	require.NoError(t, err)

	require.NoError(t, os.Remove(path))
	time.Sleep(5 * time.Millisecond)

	wl, err := store.Whitelist("route-a", path)
	require.NoError(t, err)
	require.True(t, wl.Allows("eth_chainId", TierFree))
}
