package rpcgate

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCUCalcStageSumsBatch(t *testing.T) {
	pricing := &PricingConfig{
		Default: 1,
		Costs:   map[Pattern]float64{"eth_call": 5, "eth_get*": 10},
	}
	stage := NewCUCalcStage(func(string) (*PricingConfig, error) { return pricing, nil })

	rc := NewRPCContext(context.Background(), "req-1")
	rc.Parsed = []ParsedRPC{{Method: "eth_call"}, {Method: "eth_getBalance"}, {Method: "eth_chainId"}}

	res := stage.Run(rc)
	require.True(t, res.Continue)
	require.Equal(t, float64(16), rc.CU)
}

func TestWhitelistStageRejectsUnknownMethod(t *testing.T) {
	wl := &WhitelistConfig{Free: []Pattern{"eth_chainId"}}
	stage := NewWhitelistStage(func(string) (*WhitelistConfig, error) { return wl, nil }, DefaultPaidQuotaThreshold, nil)

	rc := NewRPCContext(context.Background(), "req-1")
	rc.Parsed = []ParsedRPC{{Method: "eth_call"}}

	res := stage.Run(rc)
	require.False(t, res.Continue)
	require.Equal(t, ErrMethodNotWhitelistedFor("eth_call"), res.Err)
}

func TestWhitelistStageDerivesTierFromMonthlyQuota(t *testing.T) {
	wl := &WhitelistConfig{Paid: []Pattern{"debug_traceTransaction"}}
	stage := NewWhitelistStage(func(string) (*WhitelistConfig, error) { return wl, nil }, 1_000_000, nil)

	rc := NewRPCContext(context.Background(), "req-1")
	rc.Consumer = ConsumerIdentity{Name: "big-spender", MonthlyQuota: 2_000_000}
	rc.Parsed = []ParsedRPC{{Method: "debug_traceTransaction"}}

	res := stage.Run(rc)
	require.True(t, res.Continue)
	require.Equal(t, TierPaid, rc.Consumer.Tier)
}

func TestWhitelistStageRejectsFreeTierForPaidMethod(t *testing.T) {
	wl := &WhitelistConfig{Paid: []Pattern{"debug_traceTransaction"}}
	stage := NewWhitelistStage(func(string) (*WhitelistConfig, error) { return wl, nil }, 1_000_000, nil)

	rc := NewRPCContext(context.Background(), "req-1")
	rc.Consumer = ConsumerIdentity{Name: "small-fry", MonthlyQuota: 10_000}
	rc.Parsed = []ParsedRPC{{Method: "debug_traceTransaction"}}

	res := stage.Run(rc)
	require.False(t, res.Continue)
	require.Equal(t, ErrPaidTierRequiredFor("debug_traceTransaction"), res.Err)
}

func TestWhitelistStageBypassNetwork(t *testing.T) {
	wl := &WhitelistConfig{Free: []Pattern{"eth_chainId"}}
	stage := NewWhitelistStage(func(string) (*WhitelistConfig, error) { return wl, nil }, DefaultPaidQuotaThreshold, []string{"sandbox"})

	rc := NewRPCContext(context.Background(), "req-1")
	rc.Network = "sandbox-testnet"
	rc.Parsed = []ParsedRPC{{Method: "eth_sendRawTransaction"}}

	res := stage.Run(rc)
	require.True(t, res.Continue)
}
