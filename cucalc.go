package rpcgate

import "strconv"

// CUCalcStage prices the request in compute units, summing the cost of
// every parsed method for batch requests. The stage does no I/O of its
// own; the pricing getter may read the config file when its cached
// entry has expired.
type CUCalcStage struct {
	get func(routeID string) (*PricingConfig, error)
}

func NewCUCalcStage(get func(routeID string) (*PricingConfig, error)) *CUCalcStage {
	return &CUCalcStage{get: get}
}

func (s *CUCalcStage) Name() string  { return "cu_calc" }
func (s *CUCalcStage) Priority() int { return PriorityCUCalc }

func (s *CUCalcStage) Validate(cfg *RouteConfig) error {
	_, err := s.get(cfg.RouteID)
	return err
}

func (s *CUCalcStage) Run(rc *RPCContext) StageResult {
	pricing, err := s.get(string(rc.Network))
	if err != nil {
		return Reject(ErrNetworkNotFoundFor(string(rc.Network)))
	}
	var total float64
	for _, p := range rc.Parsed {
		total += pricing.CostOf(p.Method)
	}
	rc.CU = total
	rc.SetVar(varCU, strconv.FormatFloat(total, 'f', -1, 64))
	return Continue()
}
