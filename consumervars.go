package rpcgate

// ConsumerVarsStage copies the resolved ConsumerIdentity and NetworkID
// into the ambient vars map so later stages and log lines can read them
// without threading typed parameters through every call. Consumer
// resolution itself happens upstream of the gateway (Non-goal); this
// stage only republishes what's already on the RPCContext.
type ConsumerVarsStage struct{}

func (s *ConsumerVarsStage) Name() string  { return "consumer_vars" }
func (s *ConsumerVarsStage) Priority() int { return PriorityConsumerVars }

func (s *ConsumerVarsStage) Validate(cfg *RouteConfig) error { return nil }

func (s *ConsumerVarsStage) Run(rc *RPCContext) StageResult {
	rc.syncVarsFromFields()
	return Continue()
}
