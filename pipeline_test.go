package rpcgate

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeStage struct {
	name     string
	priority int
	result   StageResult
	ran      *[]string
}

func (s *fakeStage) Name() string  { return s.name }
func (s *fakeStage) Priority() int { return s.priority }
func (s *fakeStage) Validate(cfg *RouteConfig) error { return nil }
func (s *fakeStage) Run(rc *RPCContext) StageResult {
	*s.ran = append(*s.ran, s.name)
	return s.result
}

func TestPipelineRunsHighestPriorityFirst(t *testing.T) {
	var ran []string
	p := NewPipeline(
		&fakeStage{name: "low", priority: 1, result: Continue(), ran: &ran},
		&fakeStage{name: "high", priority: 100, result: Continue(), ran: &ran},
		&fakeStage{name: "mid", priority: 50, result: Continue(), ran: &ran},
	)

	rc := NewRPCContext(context.Background(), "req-1")
	err := p.Run(rc)
	require.Nil(t, err)
	require.Equal(t, []string{"high", "mid", "low"}, ran)
}

func TestPipelineShortCircuitsOnRejection(t *testing.T) {
	var ran []string
	p := NewPipeline(
		&fakeStage{name: "high", priority: 100, result: Reject(ErrForbidden), ran: &ran},
		&fakeStage{name: "low", priority: 1, result: Continue(), ran: &ran},
	)

	rc := NewRPCContext(context.Background(), "req-1")
	err := p.Run(rc)
	require.Equal(t, ErrForbidden, err)
	require.Equal(t, []string{"high"}, ran)
}
