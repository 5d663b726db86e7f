package rpcgate

import "net"

// GuardStage rejects requests whose source IP, consumer name, or any
// parsed method matches the route's blocklists, before any consumer/
// billing state is touched. CPU-only.
type GuardStage struct {
	blockedNets      []*net.IPNet
	blockedIPs       map[string]struct{}
	blockedConsumers map[string]struct{}
	blockedMethods   []Pattern
}

func NewGuardStage(cidrsAndIPs []string, blockedConsumers []string, blockedMethods []Pattern) (*GuardStage, error) {
	g := &GuardStage{
		blockedIPs:       make(map[string]struct{}),
		blockedConsumers: make(map[string]struct{}),
		blockedMethods:   blockedMethods,
	}
	for _, entry := range cidrsAndIPs {
		if _, ipnet, err := net.ParseCIDR(entry); err == nil {
			g.blockedNets = append(g.blockedNets, ipnet)
			continue
		}
		g.blockedIPs[entry] = struct{}{}
	}
	for _, c := range blockedConsumers {
		g.blockedConsumers[c] = struct{}{}
	}
	return g, nil
}

func (s *GuardStage) Name() string  { return "guard" }
func (s *GuardStage) Priority() int { return PriorityGuard }

func (s *GuardStage) Validate(cfg *RouteConfig) error { return nil }

func (s *GuardStage) Run(rc *RPCContext) StageResult {
	if _, blocked := s.blockedConsumers[rc.Consumer.Name]; blocked {
		return Reject(ErrForbidden)
	}

	for _, p := range rc.Parsed {
		for _, pat := range s.blockedMethods {
			if pat.Matches(p.Method) {
				return Reject(ErrForbidden)
			}
		}
	}

	if s.ipBlocked(firstForwardedIP(rc.XForwardedFor)) {
		return Reject(ErrForbidden)
	}
	return Continue()
}

func (s *GuardStage) ipBlocked(ip string) bool {
	if ip == "" {
		return false
	}
	if _, blocked := s.blockedIPs[ip]; blocked {
		return true
	}
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return false
	}
	for _, ipnet := range s.blockedNets {
		if ipnet.Contains(parsed) {
			return true
		}
	}
	return false
}

func firstForwardedIP(xff string) string {
	for i := 0; i < len(xff); i++ {
		if xff[i] == ',' {
			return xff[:i]
		}
	}
	return xff
}
