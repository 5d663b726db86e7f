package rpcgate

import "strings"

// ParserStage decodes the raw request body into one or more ParsedRPC
// values, rejecting malformed JSON-RPC before any other stage runs.
// CPU-only: it never performs I/O.
type ParserStage struct {
	MaxBodySize int64
}

// NetworkFromHost derives a NetworkID from a request's Host header: the
// leftmost dot-separated label, lowercased, with any port stripped. E.g.
// "eth-mainnet.rpc.example.com:443" -> "eth-mainnet". A bare hostname
// with no dots (e.g. "localhost") resolves to itself.
func NetworkFromHost(host string) NetworkID {
	if i := strings.IndexByte(host, ':'); i >= 0 {
		host = host[:i]
	}
	if i := strings.IndexByte(host, '.'); i >= 0 {
		host = host[:i]
	}
	return NetworkID(strings.ToLower(host))
}

func (s *ParserStage) Name() string  { return "parser" }
func (s *ParserStage) Priority() int { return PriorityParser }

func (s *ParserStage) Validate(cfg *RouteConfig) error { return nil }

// ParseBody is invoked by the HTTP/WS handler before Run, since Run
// operates on an already-populated RPCContext rather than raw bytes (the
// handler owns request-size and transport-level checks).
func ParseBody(body []byte) ([]ParsedRPC, bool, *RPCErr) {
	if IsBatch(body) {
		raws, err := ParseBatchRPCReq(body)
		if err != nil {
			return nil, true, ErrParseErr
		}
		if len(raws) == 0 {
			return nil, true, ErrEmptyBatch
		}
		out := make([]ParsedRPC, 0, len(raws))
		for _, raw := range raws {
			req, err := ParseRPCReq(raw)
			if err != nil {
				return nil, true, ErrParseErr
			}
			if err := ValidateRPCReq(req); err != nil {
				return nil, true, err.(*RPCErr)
			}
			out = append(out, ParsedRPC{Method: req.Method, Params: req.Params, ID: req.ID})
		}
		return out, true, nil
	}

	req, err := ParseRPCReq(body)
	if err != nil {
		return nil, false, ErrParseErr
	}
	if err := ValidateRPCReq(req); err != nil {
		return nil, false, err.(*RPCErr)
	}
	return []ParsedRPC{{Method: req.Method, Params: req.Params, ID: req.ID}}, false, nil
}

func (s *ParserStage) Run(rc *RPCContext) StageResult {
	if len(rc.Parsed) == 0 {
		return Reject(ErrInvalidRequest("no parsed methods"))
	}
	for _, p := range rc.Parsed {
		if p.Method == "" {
			return Reject(ErrInvalidRequest("empty method in batch element"))
		}
	}

	// A configured network override always wins; otherwise the network
	// is derived from the request's Host header.
	if rc.NetworkOverride != "" {
		rc.Network = NetworkID(rc.NetworkOverride)
	} else {
		rc.Network = NetworkFromHost(rc.Host)
	}

	rc.syncVarsFromFields()
	return Continue()
}
