package rpcgate

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPatternMatches(t *testing.T) {
	require.True(t, Pattern("eth_getLogs").Matches("eth_getLogs"))
	require.False(t, Pattern("eth_getLogs").Matches("eth_getLog"))
	require.True(t, Pattern("eth_get*").Matches("eth_getBalance"))
	require.False(t, Pattern("eth_get*").Matches("eth_call"))
}

func TestWhitelistAllows(t *testing.T) {
	wl := &WhitelistConfig{
		Free: []Pattern{"eth_chainId", "eth_get*"},
		Paid: []Pattern{"eth_sendRawTransaction"},
	}
	require.True(t, wl.Allows("eth_chainId", TierFree))
	require.True(t, wl.Allows("eth_getBalance", TierFree))
	require.False(t, wl.Allows("eth_sendRawTransaction", TierFree))
	require.True(t, wl.Allows("eth_sendRawTransaction", TierPaid))
	require.False(t, wl.Allows("eth_unknownMethod", TierPaid))
}

func TestPricingCostOf(t *testing.T) {
	pricing := &PricingConfig{
		Default: 1,
		Costs: map[Pattern]float64{
			"eth_call":      5,
			"eth_get*":      10,
			"eth_getLogs*":  20,
		},
	}
	require.Equal(t, float64(5), pricing.CostOf("eth_call"))
	require.Equal(t, float64(20), pricing.CostOf("eth_getLogsByRange"))
	require.Equal(t, float64(10), pricing.CostOf("eth_getBalance"))
	require.Equal(t, float64(1), pricing.CostOf("eth_chainId"))
}

func TestReadFromEnvOrConfig(t *testing.T) {
	t.Setenv("RPCGATE_TEST_VAL", "secret")
	require.Equal(t, "secret", ReadFromEnvOrConfig("$RPCGATE_TEST_VAL"))
	require.Equal(t, "$literal", ReadFromEnvOrConfig(`\$literal`))
	require.Equal(t, "plain", ReadFromEnvOrConfig("plain"))
}
