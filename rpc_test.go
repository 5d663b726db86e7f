package rpcgate

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIsBatch(t *testing.T) {
	require.True(t, IsBatch([]byte("  [1,2]")))
	require.False(t, IsBatch([]byte("  {\"a\":1}")))
	require.False(t, IsBatch([]byte("")))
}

func TestValidateRPCReq(t *testing.T) {
	valid := &RPCReq{JSONRPC: "2.0", Method: "eth_chainId", ID: json.RawMessage(`1`)}
	require.NoError(t, ValidateRPCReq(valid))

	badVersion := &RPCReq{JSONRPC: "1.0", Method: "eth_chainId", ID: json.RawMessage(`1`)}
	require.Error(t, ValidateRPCReq(badVersion))

	noMethod := &RPCReq{JSONRPC: "2.0", ID: json.RawMessage(`1`)}
	require.Error(t, ValidateRPCReq(noMethod))

	badID := &RPCReq{JSONRPC: "2.0", Method: "eth_chainId", ID: json.RawMessage(`{}`)}
	require.Error(t, ValidateRPCReq(badID))
}

func TestParseBodySingle(t *testing.T) {
	body := []byte(`{"jsonrpc":"2.0","method":"eth_chainId","id":1}`)
	parsed, isBatch, err := ParseBody(body)
	require.Nil(t, err)
	require.False(t, isBatch)
	require.Len(t, parsed, 1)
	require.Equal(t, "eth_chainId", parsed[0].Method)
}

func TestParseBodyBatch(t *testing.T) {
	body := []byte(`[{"jsonrpc":"2.0","method":"eth_chainId","id":1},{"jsonrpc":"2.0","method":"eth_blockNumber","id":2}]`)
	parsed, isBatch, err := ParseBody(body)
	require.Nil(t, err)
	require.True(t, isBatch)
	require.Len(t, parsed, 2)
}

func TestParseBodyEmptyBatch(t *testing.T) {
	_, _, err := ParseBody([]byte(`[]`))
	require.Equal(t, ErrEmptyBatch, err)
}

func TestParseBodyMalformed(t *testing.T) {
	_, _, err := ParseBody([]byte(`not json`))
	require.Equal(t, ErrParseErr, err)
}
