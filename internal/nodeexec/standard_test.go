package nodeexec

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowloom/fabric/internal/agent"
	"github.com/flowloom/fabric/internal/domain"
	"github.com/flowloom/fabric/internal/execctx"
	"github.com/flowloom/fabric/internal/registry"
	"github.com/flowloom/fabric/internal/rubric"
)

type fakeAgent struct {
	id         string
	text       string
	err        error
	lastVal    map[string]any
	lastPrompt string
}

func (f *fakeAgent) ID() string { return f.id }
func (f *fakeAgent) Execute(ctx context.Context, prompt string, vars map[string]any) (agent.Response, error) {
	f.lastVal = vars
	f.lastPrompt = prompt
	if f.err != nil {
		return agent.Response{}, f.err
	}
	return agent.Response{Text: f.text}, nil
}

func newTestExecCtx(t *testing.T, nodes map[string]*domain.Node, agents ...agent.Agent) *execctx.Context {
	t.Helper()
	startNode := "n1"
	if _, ok := nodes[startNode]; !ok {
		startNode = ""
		for id := range nodes {
			if startNode == "" || id < startNode {
				startNode = id
			}
		}
	}
	wf, err := domain.NewWorkflow("wf-1", "1", domain.Metadata{DisplayName: "test"}, nil, nil, nodes, startNode, domain.ExecutionConfig{})
	require.NoError(t, err)

	exec := domain.NewExecution("exec-1", "wf-1", "1", "tenant-1", startNode, map[string]any{"topic": "go"})

	agentReg := registry.NewAgentRegistry()
	for _, a := range agents {
		require.NoError(t, agentReg.Register(a))
	}

	return &execctx.Context{
		Ctx:       context.Background(),
		TenantID:  "tenant-1",
		Workflow:  wf,
		Execution: exec,
		Agents:    agentReg,
		Tools:     registry.NewToolRegistry(),
		Rubrics:   rubric.NewEngine(),
		Cancelled: make(chan struct{}),
	}
}

func TestStandardExecutorSuccess(t *testing.T) {
	a := &fakeAgent{id: "writer", text: "hello world"}
	node := &domain.Node{ID: "n1", Type: domain.NodeTypeStandard, Standard: &domain.StandardSpec{
		AgentID: "writer",
		Prompt:  "Write about {topic}",
	}}
	ectx := newTestExecCtx(t, map[string]*domain.Node{"n1": node}, a)

	s := &StandardExecutor{}
	result, err := s.Execute(ectx, node)
	require.NoError(t, err)
	assert.Equal(t, domain.ResultSuccess, result.Status)
	assert.Equal(t, "hello world", result.Output)
	assert.Equal(t, "Write about go", a.lastPrompt)
}

func TestStandardExecutorMissingAgentIsFailure(t *testing.T) {
	node := &domain.Node{ID: "n1", Type: domain.NodeTypeStandard, Standard: &domain.StandardSpec{AgentID: "ghost"}}
	ectx := newTestExecCtx(t, map[string]*domain.Node{"n1": node})

	s := &StandardExecutor{}
	result, err := s.Execute(ectx, node)
	require.NoError(t, err)
	assert.Equal(t, domain.ResultFailure, result.Status)
	assert.Contains(t, result.Error, "ghost")
}

func TestStandardExecutorAgentErrorIsFailure(t *testing.T) {
	a := &fakeAgent{id: "writer", err: errors.New("boom")}
	node := &domain.Node{ID: "n1", Type: domain.NodeTypeStandard, Standard: &domain.StandardSpec{AgentID: "writer"}}
	ectx := newTestExecCtx(t, map[string]*domain.Node{"n1": node}, a)

	s := &StandardExecutor{}
	result, err := s.Execute(ectx, node)
	require.NoError(t, err)
	assert.Equal(t, domain.ResultFailure, result.Status)
}

func TestStandardExecutorOpenBreakerShortCircuits(t *testing.T) {
	a := &fakeAgent{id: "writer", err: errors.New("boom")}
	node := &domain.Node{ID: "n1", Type: domain.NodeTypeStandard, Standard: &domain.StandardSpec{AgentID: "writer"}}
	ectx := newTestExecCtx(t, map[string]*domain.Node{"n1": node}, a)

	circuit := NewCircuitBreakers(1, 0)
	s := &StandardExecutor{Circuit: circuit}

	_, err := s.Execute(ectx, node)
	require.NoError(t, err)
	result, err := s.Execute(ectx, node)
	require.NoError(t, err)
	assert.Equal(t, domain.ResultFailure, result.Status)
	assert.Contains(t, result.Error, "circuit breaker open")
}

func TestEndExecutorProducesEndStatus(t *testing.T) {
	node := &domain.Node{ID: "end", Type: domain.NodeTypeEnd, End: &domain.EndSpec{ExitStatus: domain.ExitSuccess}}
	ectx := newTestExecCtx(t, map[string]*domain.Node{"end": node})

	e := &EndExecutor{}
	result, err := e.Execute(ectx, node)
	require.NoError(t, err)
	assert.Equal(t, domain.ResultEnd, result.Status)
}
