package rpcgate

import "strings"

// WhitelistStage derives the caller's tier from its monthly quota,
// applies any configured bypass_networks, then rejects any parsed
// method not present in the route's WhitelistConfig for that tier. All
// batch elements must pass; the first disallowed method fails the whole
// batch (spec default: no partial-batch success).
type WhitelistStage struct {
	get            func(routeID string) (*WhitelistConfig, error)
	paidThreshold  float64
	bypassNetworks []string
}

func NewWhitelistStage(get func(routeID string) (*WhitelistConfig, error), paidThreshold float64, bypassNetworks []string) *WhitelistStage {
	return &WhitelistStage{get: get, paidThreshold: paidThreshold, bypassNetworks: bypassNetworks}
}

func (s *WhitelistStage) Name() string  { return "whitelist" }
func (s *WhitelistStage) Priority() int { return PriorityWhitelist }

func (s *WhitelistStage) Validate(cfg *RouteConfig) error {
	_, err := s.get(cfg.RouteID)
	return err
}

func (s *WhitelistStage) Run(rc *RPCContext) StageResult {
	rc.Consumer.Tier = TierForMonthlyQuota(rc.Consumer.MonthlyQuota, s.paidThreshold)

	if s.bypassed(string(rc.Network)) {
		return Continue()
	}

	wl, err := s.get(string(rc.Network))
	if err != nil {
		return Reject(ErrNetworkNotFoundFor(string(rc.Network)))
	}
	for _, p := range rc.Parsed {
		if !wl.Allows(p.Method, rc.Consumer.Tier) {
			if len(wl.Paid) > 0 {
				for _, pat := range wl.Paid {
					if pat.Matches(p.Method) {
						return Reject(ErrPaidTierRequiredFor(p.Method))
					}
				}
			}
			return Reject(ErrMethodNotWhitelistedFor(p.Method))
		}
	}
	return Continue()
}

// bypassed reports whether network matches any configured
// bypass_networks entry by substring, per spec.md §6.
func (s *WhitelistStage) bypassed(network string) bool {
	for _, b := range s.bypassNetworks {
		if b != "" && strings.Contains(network, b) {
			return true
		}
	}
	return false
}
