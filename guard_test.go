package rpcgate

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGuardBlocksExactIP(t *testing.T) {
	g, err := NewGuardStage([]string{"1.2.3.4"}, nil, nil)
	require.NoError(t, err)

	rc := NewRPCContext(context.Background(), "req-1")
	rc.XForwardedFor = "1.2.3.4"
	require.False(t, g.Run(rc).Continue)

	rc2 := NewRPCContext(context.Background(), "req-2")
	rc2.XForwardedFor = "5.6.7.8"
	require.True(t, g.Run(rc2).Continue)
}

func TestGuardBlocksCIDR(t *testing.T) {
	g, err := NewGuardStage([]string{"10.0.0.0/8"}, nil, nil)
	require.NoError(t, err)

	rc := NewRPCContext(context.Background(), "req-1")
	rc.XForwardedFor = "10.1.2.3"
	require.False(t, g.Run(rc).Continue)

	rc2 := NewRPCContext(context.Background(), "req-2")
	rc2.XForwardedFor = "192.168.1.1"
	require.True(t, g.Run(rc2).Continue)
}

func TestGuardAllowsWhenNoXFF(t *testing.T) {
	g, err := NewGuardStage([]string{"1.2.3.4"}, nil, nil)
	require.NoError(t, err)

	rc := NewRPCContext(context.Background(), "req-1")
	require.True(t, g.Run(rc).Continue)
}

func TestGuardBlocksConsumerName(t *testing.T) {
	g, err := NewGuardStage(nil, []string{"evil-consumer"}, nil)
	require.NoError(t, err)

	rc := NewRPCContext(context.Background(), "req-1")
	rc.Consumer = ConsumerIdentity{Name: "evil-consumer"}
	require.False(t, g.Run(rc).Continue)

	rc2 := NewRPCContext(context.Background(), "req-2")
	rc2.Consumer = ConsumerIdentity{Name: "good-consumer"}
	require.True(t, g.Run(rc2).Continue)
}

func TestGuardBlocksMethodPattern(t *testing.T) {
	g, err := NewGuardStage(nil, nil, []Pattern{"admin_*"})
	require.NoError(t, err)

	rc := NewRPCContext(context.Background(), "req-1")
	rc.Parsed = []ParsedRPC{{Method: "admin_shutdown"}}
	require.False(t, g.Run(rc).Continue)

	rc2 := NewRPCContext(context.Background(), "req-2")
	rc2.Parsed = []ParsedRPC{{Method: "eth_chainId"}}
	require.True(t, g.Run(rc2).Continue)
}
