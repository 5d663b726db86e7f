package rpcgate

import (
	"context"
	"encoding/json"
	"strconv"
	"time"
)

// RateLimitInfo carries the per-second window state after a RateLimiter
// take, surfaced to the caller as X-RateLimit-* response headers.
type RateLimitInfo struct {
	Limit     float64
	Remaining float64
	ResetAt   time.Time
}

// MonthlyQuotaInfo carries the billing-cycle quota state after a
// MonthlyLimiter charge, surfaced as X-Monthly-* response headers.
type MonthlyQuotaInfo struct {
	Limit     float64
	Remaining float64
	ResetAt   time.Time
}

// Well-known Context.vars keys, per the ambient-vars convention: stages
// communicate through these unless a concern justifies a typed field.
const (
	varMethod       = "jsonrpc_method"
	varMethods      = "jsonrpc_methods"
	varIsBatch      = "jsonrpc_is_batch"
	varCU           = "cu"
	varSecondsQuota = "seconds_quota"
	varMonthlyQuota = "monthly_quota"
	varMonthlyUsed  = "monthly_used"
	varNetwork      = "unifra_network"
	varConsumer     = "consumer_name"
)

// NetworkID identifies the upstream route a request targets, derived from
// the request's host label (e.g. "eth-mainnet" from
// "eth-mainnet.rpc.example.com").
type NetworkID string

// ConsumerIdentity is the resolved caller of a request. Resolution itself
// (API key lookup, JWT, etc.) is out of scope; the gateway is handed an
// already-resolved identity by an upstream auth layer, including its
// per-second and monthly compute-unit quotas.
type ConsumerIdentity struct {
	Name string
	Tier ConsumerTier

	SecondsQuota float64
	MonthlyQuota float64
}

type ConsumerTier string

const (
	TierFree ConsumerTier = "free"
	TierPaid ConsumerTier = "paid"
)

// DefaultPaidQuotaThreshold is the monthly_quota value above which a
// consumer is considered paid, per spec.md §3 ("Tier is paid iff
// monthly_quota > paid_quota_threshold").
const DefaultPaidQuotaThreshold = 1_000_000

// TierForMonthlyQuota derives a consumer's tier from its monthly quota
// and the route's configured threshold.
func TierForMonthlyQuota(monthlyQuota, threshold float64) ConsumerTier {
	if monthlyQuota > threshold {
		return TierPaid
	}
	return TierFree
}

// ParsedRPC is a single parsed JSON-RPC call extracted from the request
// body, whether it arrived alone or as part of a batch.
type ParsedRPC struct {
	Method string
	Params json.RawMessage
	ID     json.RawMessage
}

// RPCContext carries per-request state between pipeline stages: the
// ambient StringMap for loosely-typed signals, plus typed fields for data
// every stage needs to reach quickly. It is created fresh for every HTTP
// request and for every websocket text frame.
type RPCContext struct {
	ctx  context.Context
	vars *StringMap

	ReqID         string
	Auth          string
	XForwardedFor string
	Host          string

	// NetworkOverride, when non-empty, wins over the network derived
	// from Host (spec: "If configuration specifies a network override,
	// it wins").
	NetworkOverride string

	Network  NetworkID
	Consumer ConsumerIdentity

	Parsed  []ParsedRPC
	IsBatch bool

	CU float64

	RateLimit    *RateLimitInfo
	MonthlyQuota *MonthlyQuotaInfo
}

func NewRPCContext(ctx context.Context, reqID string) *RPCContext {
	return &RPCContext{
		ctx:   ctx,
		vars:  NewStringMap(),
		ReqID: reqID,
	}
}

func (c *RPCContext) Context() context.Context { return c.ctx }

func (c *RPCContext) WithContext(ctx context.Context) *RPCContext {
	clone := *c
	clone.ctx = ctx
	return &clone
}

func (c *RPCContext) SetVar(key, value string) { c.vars.Set(key, value) }

func (c *RPCContext) Var(key string) (string, bool) { return c.vars.Get(key) }

func (c *RPCContext) syncVarsFromFields() {
	c.vars.Set(varNetwork, string(c.Network))
	c.vars.Set(varConsumer, c.Consumer.Name)
	c.vars.Set(varSecondsQuota, strconv.FormatFloat(c.Consumer.SecondsQuota, 'f', -1, 64))
	c.vars.Set(varMonthlyQuota, strconv.FormatFloat(c.Consumer.MonthlyQuota, 'f', -1, 64))
	if c.IsBatch {
		c.vars.Set(varIsBatch, "true")
	} else {
		c.vars.Set(varIsBatch, "false")
	}
	methods := make([]string, len(c.Parsed))
	for i, p := range c.Parsed {
		methods[i] = p.Method
	}
	if len(methods) == 1 {
		c.vars.Set(varMethod, methods[0])
	}
	if b, err := json.Marshal(methods); err == nil {
		c.vars.Set(varMethods, string(b))
	}
}
