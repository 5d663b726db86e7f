package rpcgate

import (
	"errors"
	"fmt"
	"net/http"
)

const JSONRPCVersion = "2.0"

const (
	JSONRPCErrorParseErr       = -32700
	JSONRPCErrorInvalidReq     = -32600
	JSONRPCErrorMethodNotFound = -32601
	JSONRPCErrorInternal       = -32603
	JSONRPCErrorOverCapacity   = -32005
)

var (
	ErrParseErr = &RPCErr{
		Code:          JSONRPCErrorParseErr,
		Message:       "parse error",
		HTTPErrorCode: http.StatusBadRequest,
		Kind:          KindInput,
	}

	ErrEmptyBatch = &RPCErr{
		Code:          JSONRPCErrorInvalidReq,
		Message:       "empty batch",
		HTTPErrorCode: http.StatusBadRequest,
		Kind:          KindInput,
	}

	ErrRequestBodyTooLarge = &RPCErr{
		Code:          JSONRPCErrorInvalidReq,
		Message:       "request body too large",
		HTTPErrorCode: http.StatusRequestEntityTooLarge,
		Kind:          KindInput,
	}

	ErrForbidden = &RPCErr{
		Code:          JSONRPCErrorInternal,
		Message:       "forbidden",
		HTTPErrorCode: http.StatusForbidden,
		Kind:          KindAccess,
	}

	ErrOverRateLimit = &RPCErr{
		Code:          JSONRPCErrorOverCapacity,
		Message:       "rate limit exceeded",
		HTTPErrorCode: http.StatusTooManyRequests,
		Kind:          KindQuota,
	}

	ErrOverMonthlyQuota = &RPCErr{
		Code:          JSONRPCErrorOverCapacity,
		Message:       "monthly quota exceeded",
		HTTPErrorCode: http.StatusTooManyRequests,
		Kind:          KindQuota,
	}

	ErrBackendUnavailable = &RPCErr{
		Code:          JSONRPCErrorInternal,
		Message:       "backend unavailable",
		HTTPErrorCode: http.StatusServiceUnavailable,
		Kind:          KindBackend,
	}

	ErrTooManyRequests = errors.New("too many requests")
)

// ErrInvalidRequest builds an RPCErr for malformed request bodies, carrying
// the offending detail in Data.
func ErrInvalidRequest(msg string) *RPCErr {
	return &RPCErr{
		Code:          JSONRPCErrorInvalidReq,
		Message:       "invalid request",
		Data:          msg,
		HTTPErrorCode: http.StatusBadRequest,
		Kind:          KindInput,
	}
}

// ErrMethodNotWhitelistedFor builds the "method not found" RPCErr for a
// specific method. Per spec.md §6's error-code table, -32601 maps to
// HTTP 200 -- this is a well-formed JSON-RPC response, not an HTTP-level
// rejection.
func ErrMethodNotWhitelistedFor(method string) *RPCErr {
	return &RPCErr{
		Code:          JSONRPCErrorMethodNotFound,
		Message:       fmt.Sprintf("unsupported method: %s", method),
		HTTPErrorCode: http.StatusOK,
		Kind:          KindAccess,
	}
}

// ErrNetworkNotFoundFor builds the "network not found" RPCErr for a
// specific network/route. Same HTTP mapping as ErrMethodNotWhitelistedFor.
func ErrNetworkNotFoundFor(network string) *RPCErr {
	return &RPCErr{
		Code:          JSONRPCErrorMethodNotFound,
		Message:       fmt.Sprintf("network not found: %s", network),
		HTTPErrorCode: http.StatusOK,
		Kind:          KindAccess,
	}
}

// ErrPaidTierRequiredFor builds the "paid tier required" RPCErr for a
// specific method. -32603 maps to HTTP 403 per spec.md §6.
func ErrPaidTierRequiredFor(method string) *RPCErr {
	return &RPCErr{
		Code:          JSONRPCErrorInternal,
		Message:       fmt.Sprintf("method %s requires paid tier", method),
		HTTPErrorCode: http.StatusForbidden,
		Kind:          KindAccess,
	}
}

func wrapErr(err error, msg string) error {
	return fmt.Errorf("%s\n%w", msg, err)
}
