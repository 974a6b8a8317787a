package nodeexec

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowloom/fabric/internal/domain"
	"github.com/flowloom/fabric/internal/forkjoin"
)

func TestForkThenJoinCollectAllPreservesTargetOrder(t *testing.T) {
	branchA := &domain.Node{ID: "a", Type: domain.NodeTypeStandard, Standard: &domain.StandardSpec{AgentID: "agent-a", Prompt: "a"}}
	branchB := &domain.Node{ID: "b", Type: domain.NodeTypeStandard, Standard: &domain.StandardSpec{AgentID: "agent-b", Prompt: "b"}}
	forkNode := &domain.Node{ID: "fork", Type: domain.NodeTypeFork, Fork: &domain.ForkSpec{Targets: []string{"a", "b"}}}
	joinNode := &domain.Node{ID: "join", Type: domain.NodeTypeJoin, Join: &domain.JoinSpec{
		AwaitTargets:  []string{"fork"},
		MergeStrategy: domain.JoinCollectAll,
		OutputField:   "joined",
		TimeoutMs:     2000,
	}}

	nodes := map[string]*domain.Node{"a": branchA, "b": branchB, "fork": forkNode, "join": joinNode}
	slowA := &fakeAgent{id: "agent-a", text: "slow"}
	fastB := &fakeAgent{id: "agent-b", text: "fast"}
	ectx := newTestExecCtx(t, nodes, slowA, fastB)

	coord := forkjoin.NewCoordinator()
	dispatcher := NewDispatcher(nil, coord)

	result, err := dispatcher.Execute(ectx, forkNode)
	require.NoError(t, err)
	assert.Equal(t, domain.ResultSuccess, result.Status)

	// Give the branch goroutines a moment to complete; b "finishes" first in
	// practice since both are synchronous here, but target order must win.
	time.Sleep(20 * time.Millisecond)

	joined, err := dispatcher.Execute(ectx, joinNode)
	require.NoError(t, err)
	assert.Equal(t, domain.ResultSuccess, joined.Status)

	outputs, ok := joined.Output.([]any)
	require.True(t, ok)
	require.Len(t, outputs, 2)
	assert.Equal(t, "slow", outputs[0])
	assert.Equal(t, "fast", outputs[1])
}

func TestJoinTimesOutWhenBranchNeverCompletes(t *testing.T) {
	stuck := &domain.Node{ID: "stuck", Type: domain.NodeTypeStandard, Standard: &domain.StandardSpec{AgentID: "missing"}}
	joinNode := &domain.Node{ID: "join", Type: domain.NodeTypeJoin, Join: &domain.JoinSpec{
		AwaitTargets:  []string{"fork"},
		MergeStrategy: domain.JoinFirstSuccess,
		TimeoutMs:     1,
	}}
	nodes := map[string]*domain.Node{"stuck": stuck, "join": joinNode}
	ectx := newTestExecCtx(t, nodes)

	coord := forkjoin.NewCoordinator()
	require.NoError(t, coord.Register("fork", []string{"stuck"})) // never completed

	dispatcher := NewDispatcher(nil, coord)
	result, err := dispatcher.Execute(ectx, joinNode)
	require.NoError(t, err)
	assert.Equal(t, domain.ResultFailure, result.Status)
}
