package rpcgate

import (
	"github.com/emirpasic/gods/trees/redblacktree"
	"github.com/emirpasic/gods/utils"
)

// StageResult is the outcome of running a Stage against an RPCContext.
type StageResult struct {
	Continue bool
	Err      *RPCErr
}

func Continue() StageResult { return StageResult{Continue: true} }

func Reject(err *RPCErr) StageResult { return StageResult{Continue: false, Err: err} }

// Stage is the capability every pipeline step implements. Stages are
// plain values, not a class hierarchy: a Pipeline holds a set of Stages
// and runs them in descending Priority order, stopping at the first
// rejection.
type Stage interface {
	Name() string
	Priority() int
	Validate(cfg *RouteConfig) error
	Run(rc *RPCContext) StageResult
}

// Pipeline runs an ordered set of Stages against a request. Ordering is
// kept in a red-black tree keyed by negated priority so iteration is
// always highest-priority-first without a custom heap.
type Pipeline struct {
	stages *redblacktree.Tree
}

func NewPipeline(stages ...Stage) *Pipeline {
	t := redblacktree.NewWith(utils.IntComparator)
	for _, s := range stages {
		key := -s.Priority()
		var bucket []Stage
		if v, ok := t.Get(key); ok {
			bucket = v.([]Stage)
		}
		bucket = append(bucket, s)
		t.Put(key, bucket)
	}
	return &Pipeline{stages: t}
}

func (p *Pipeline) Validate(cfg *RouteConfig) error {
	it := p.stages.Iterator()
	for it.Next() {
		for _, s := range it.Value().([]Stage) {
			if err := s.Validate(cfg); err != nil {
				return err
			}
		}
	}
	return nil
}

// Run executes stages in priority order, short-circuiting on the first
// rejection and logging the stage/reason per the error-handling design.
func (p *Pipeline) Run(rc *RPCContext) *RPCErr {
	it := p.stages.Iterator()
	for it.Next() {
		for _, s := range it.Value().([]Stage) {
			res := s.Run(rc)
			if !res.Continue {
				RecordRejection(s.Name(), string(rc.Network), rc.Consumer.Name, res.Err)
				return res.Err
			}
		}
	}
	return nil
}

// Stage priorities, matching the ordering table: higher values run first.
const (
	PriorityParser         = 26000
	PriorityGuard          = 25000
	PriorityConsumerVars   = 24000
	PriorityWhitelist      = 1900
	PriorityCUCalc         = 1012
	PriorityMonthlyLimiter = 1011
	PriorityRateLimiter    = 1010
	PriorityWSProxy        = 999
)
