package pipeline

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowloom/fabric/internal/domain"
	"github.com/flowloom/fabric/internal/execctx"
	"github.com/flowloom/fabric/internal/registry"
	"github.com/flowloom/fabric/internal/rubric"
)

func newTestExecCtx(t *testing.T, nodes map[string]*domain.Node, startNode string, rubrics map[string]domain.RubricLocator) *execctx.Context {
	t.Helper()
	wf, err := domain.NewWorkflow("wf-1", "1", domain.Metadata{DisplayName: "test"}, nil, rubrics, nodes, startNode, domain.ExecutionConfig{})
	require.NoError(t, err)

	exec := domain.NewExecution("exec-1", "wf-1", "1", "tenant-1", startNode, nil)

	return &execctx.Context{
		Ctx:       context.Background(),
		TenantID:  "tenant-1",
		Workflow:  wf,
		Execution: exec,
		Agents:    registry.NewAgentRegistry(),
		Tools:     registry.NewToolRegistry(),
		Rubrics:   rubric.NewEngine(),
		Cancelled: make(chan struct{}),
	}
}

// scoreRubric builds a single-criterion automated rubric whose score is the
// "score" context variable directly, so tests can drive the evaluation
// outcome by setting that variable before running the node.
func scoreRubric(id string, passThreshold float64) *domain.Rubric {
	return &domain.Rubric{
		ID:            id,
		Name:          id,
		PassThreshold: passThreshold,
		Criteria: []domain.Criterion{{
			ID:              "c1",
			Weight:          1,
			MinScore:        0,
			EvaluationType:  domain.EvaluationAutomated,
			EvaluationLogic: "context[\"score\"]",
		}},
	}
}

func TestOutputExtractionFailureSkipsHistory(t *testing.T) {
	node := &domain.Node{ID: "n1", Type: domain.NodeTypeStandard, Standard: &domain.StandardSpec{AgentID: "writer"},
		TransitionRules: []domain.TransitionRule{{Kind: domain.TransitionAlways, Target: "n2"}}}
	other := &domain.Node{ID: "n2", Type: domain.NodeTypeEnd, End: &domain.EndSpec{ExitStatus: domain.ExitSuccess}}
	ectx := newTestExecCtx(t, map[string]*domain.Node{"n1": node, "n2": other}, "n1", nil)

	// a string containing a NUL byte fails validate.Output
	result := domain.NodeResult{Status: domain.ResultSuccess, Output: "bad\x00output"}

	p := New()
	outcome, err := p.Run(ectx, node, result)
	require.NoError(t, err)
	assert.Equal(t, Failure, outcome.Disposition)
	assert.Empty(t, ectx.Execution.History)
}

func TestPipelineHappyPathAdvancesCursor(t *testing.T) {
	node := &domain.Node{ID: "n1", Type: domain.NodeTypeStandard, Standard: &domain.StandardSpec{AgentID: "writer"},
		TransitionRules: []domain.TransitionRule{{Kind: domain.TransitionSuccess, Target: "n2"}}}
	end := &domain.Node{ID: "n2", Type: domain.NodeTypeEnd, End: &domain.EndSpec{ExitStatus: domain.ExitSuccess}}
	ectx := newTestExecCtx(t, map[string]*domain.Node{"n1": node, "n2": end}, "n1", nil)

	result := domain.NodeResult{Status: domain.ResultSuccess, Output: "done"}

	p := New()
	outcome, err := p.Run(ectx, node, result)
	require.NoError(t, err)
	assert.False(t, outcome.IsTerminal())
	require.Len(t, ectx.Execution.History, 1)
	assert.Equal(t, "n2", ectx.Execution.CurrentNode)
}

func TestHumanReviewApprovePatchesContextAndContinues(t *testing.T) {
	node := &domain.Node{ID: "n1", Type: domain.NodeTypeStandard, Standard: &domain.StandardSpec{
		AgentID:      "writer",
		ReviewConfig: &domain.ReviewConfig{Mode: domain.ReviewRequired},
	}}
	ectx := newTestExecCtx(t, map[string]*domain.Node{"n1": node}, "n1", nil)
	ectx.Review = approveReview{patch: map[string]any{"approved": true}}

	p := &HumanReviewProcessor{}
	outcome, err := p.Process(ectx, node, domain.NodeResult{Status: domain.ResultSuccess, Output: "x"})
	require.NoError(t, err)
	assert.False(t, outcome.IsTerminal())
	assert.Equal(t, true, ectx.Vars()["approved"])
}

func TestHumanReviewRejectIsTerminal(t *testing.T) {
	node := &domain.Node{ID: "n1", Type: domain.NodeTypeStandard, Standard: &domain.StandardSpec{
		AgentID:      "writer",
		ReviewConfig: &domain.ReviewConfig{Mode: domain.ReviewRequired},
	}}
	ectx := newTestExecCtx(t, map[string]*domain.Node{"n1": node}, "n1", nil)
	ectx.Review = rejectReview{reason: "not good enough"}

	p := &HumanReviewProcessor{}
	outcome, err := p.Process(ectx, node, domain.NodeResult{Status: domain.ResultSuccess, Output: "x"})
	require.NoError(t, err)
	assert.Equal(t, Rejected, outcome.Disposition)
	assert.Equal(t, domain.StatusRejected, ectx.Execution.Status)
}

func TestHumanReviewBacktrackStagesPromptForStandardTarget(t *testing.T) {
	start := &domain.Node{ID: "n1", Type: domain.NodeTypeStandard, Standard: &domain.StandardSpec{
		AgentID:      "writer",
		ReviewConfig: &domain.ReviewConfig{Mode: domain.ReviewRequired},
	}}
	target := &domain.Node{ID: "n0", Type: domain.NodeTypeStandard, Standard: &domain.StandardSpec{AgentID: "writer"}}
	ectx := newTestExecCtx(t, map[string]*domain.Node{"n1": start, "n0": target}, "n1", nil)
	ectx.Review = backtrackReview{target: "n0", reason: "try again", editedPrompt: "do it better"}

	p := &HumanReviewProcessor{}
	outcome, err := p.Process(ectx, start, domain.NodeResult{Status: domain.ResultSuccess, Output: "x"})
	require.NoError(t, err)
	assert.False(t, outcome.IsTerminal())
	assert.Equal(t, "n0", ectx.Execution.CurrentNode)
	assert.Equal(t, "do it better", ectx.Vars()[stagedPromptKey("n0")])
}

func TestRubricAutoBacktrackSeverityBands(t *testing.T) {
	cases := []struct {
		name       string
		score      float64
		wantTarget string
	}{
		{"critical", 10, "n1"},  // earliest rubric-bearing step, here n1 itself
		{"moderate", 45, "n1"},  // no other rubric-bearing step exists -> falls back to start
		{"minor", 70, "n2"},     // retries current node
		{"none", 90, ""},        // no backtrack at all
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rb := scoreRubric("rb1", 80)
			node := &domain.Node{ID: "n2", Type: domain.NodeTypeStandard, RubricID: "rb1",
				Standard: &domain.StandardSpec{AgentID: "writer"}}
			start := &domain.Node{ID: "n1", Type: domain.NodeTypeStandard, RubricID: "rb1",
				Standard: &domain.StandardSpec{AgentID: "writer"}}
			ectx := newTestExecCtx(t, map[string]*domain.Node{"n1": start, "n2": node}, "n1",
				map[string]domain.RubricLocator{"rb1": {RubricID: "rb1", Inline: rb}})
			ectx.Execution.SetVariable("score", tc.score)
			ectx.Execution.MoveCursor("n1", "n2")

			p := &RubricEvaluationProcessor{}
			_, err := p.Process(ectx, node, domain.NodeResult{Status: domain.ResultSuccess, Output: "out"})
			require.NoError(t, err)

			if tc.wantTarget == "" {
				assert.Empty(t, ectx.Execution.Backtracks)
			} else {
				require.NotEmpty(t, ectx.Execution.Backtracks)
				last := ectx.Execution.Backtracks[len(ectx.Execution.Backtracks)-1]
				assert.Equal(t, tc.wantTarget, last.To)
			}
		})
	}
}

func TestRetryCounterResetsOnDifferentNodeBacktrackButPersistsOnSame(t *testing.T) {
	e := domain.NewExecution("exec-1", "wf-1", "1", "tenant-1", "n2", nil)
	e.IncrementRetryCount("n2")
	e.IncrementRetryCount("n2")
	assert.Equal(t, 2, e.RetryCounts["n2"])

	// Minor-band auto-backtrack retries the same node: From == To == n2.
	e.Backtrack("n2", "n2", "retry in place", domain.BacktrackAutomatic, nil)
	assert.Equal(t, 2, e.RetryCounts["n2"], "landing on the same node it came from should preserve the counter")

	// A backtrack that actually moves to a different node resets that node's counter.
	e.Backtrack("n2", "n4", "different node", domain.BacktrackAutomatic, nil)
	assert.Equal(t, 0, e.RetryCounts["n4"], "landing on a different node resets its counter")
}

func TestTransitionResolutionRulePrecedence(t *testing.T) {
	node := &domain.Node{ID: "n1", Type: domain.NodeTypeStandard, Standard: &domain.StandardSpec{AgentID: "writer"},
		TransitionRules: []domain.TransitionRule{
			{Kind: domain.TransitionFailure, Target: "retry-target", MaxRetries: 2},
			{Kind: domain.TransitionAlways, Target: "fallback-target"},
		}}
	other1 := &domain.Node{ID: "retry-target", Type: domain.NodeTypeEnd, End: &domain.EndSpec{}}
	other2 := &domain.Node{ID: "fallback-target", Type: domain.NodeTypeEnd, End: &domain.EndSpec{}}
	ectx := newTestExecCtx(t, map[string]*domain.Node{"n1": node, "retry-target": other1, "fallback-target": other2}, "n1", nil)

	p := &TransitionResolutionProcessor{}
	outcome, err := p.Process(ectx, node, domain.NodeResult{Status: domain.ResultFailure})
	require.NoError(t, err)
	assert.False(t, outcome.IsTerminal())
	assert.Equal(t, "retry-target", ectx.Execution.CurrentNode)
}

func TestTransitionResolutionLoopBreakOverrideWins(t *testing.T) {
	node := &domain.Node{ID: "n1", Type: domain.NodeTypeLoop, Loop: &domain.LoopSpec{LoopBreakTarget: "exit"},
		TransitionRules: []domain.TransitionRule{{Kind: domain.TransitionAlways, Target: "ignored"}}}
	exitNode := &domain.Node{ID: "exit", Type: domain.NodeTypeEnd, End: &domain.EndSpec{}}
	ignored := &domain.Node{ID: "ignored", Type: domain.NodeTypeEnd, End: &domain.EndSpec{}}
	ectx := newTestExecCtx(t, map[string]*domain.Node{"n1": node, "exit": exitNode, "ignored": ignored}, "n1", nil)
	ectx.Execution.SetLoopBreakTarget("exit")

	p := &TransitionResolutionProcessor{}
	outcome, err := p.Process(ectx, node, domain.NodeResult{Status: domain.ResultSuccess})
	require.NoError(t, err)
	assert.False(t, outcome.IsTerminal())
	assert.Equal(t, "exit", ectx.Execution.CurrentNode)
	assert.Empty(t, ectx.Execution.LoopBreakTarget)
}

func TestSelfReportedScoreFallbackOrder(t *testing.T) {
	vars := map[string]any{"quality_score": 42.0, "evaluation_score": 99.0}
	score, ok := selfReportedScore(vars)
	require.True(t, ok)
	assert.Equal(t, 42.0, score, "quality_score should win over evaluation_score per fallback order")
}

func TestTransitionResolutionGuardSkipsWhenCursorAlreadyMoved(t *testing.T) {
	node := &domain.Node{ID: "n1", Type: domain.NodeTypeStandard, Standard: &domain.StandardSpec{AgentID: "writer"},
		TransitionRules: []domain.TransitionRule{{Kind: domain.TransitionAlways, Target: "should-not-be-used"}}}
	moved := &domain.Node{ID: "moved", Type: domain.NodeTypeEnd, End: &domain.EndSpec{}}
	unused := &domain.Node{ID: "should-not-be-used", Type: domain.NodeTypeEnd, End: &domain.EndSpec{}}
	ectx := newTestExecCtx(t, map[string]*domain.Node{"n1": node, "moved": moved, "should-not-be-used": unused}, "n1", nil)
	ectx.Execution.Backtrack("n1", "moved", "already redirected", domain.BacktrackManual, nil)

	p := &TransitionResolutionProcessor{}
	outcome, err := p.Process(ectx, node, domain.NodeResult{Status: domain.ResultSuccess})
	require.NoError(t, err)
	assert.False(t, outcome.IsTerminal())
	assert.Equal(t, "moved", ectx.Execution.CurrentNode)
}

type approveReview struct{ patch map[string]any }

func (r approveReview) Review(ctx context.Context, node *domain.Node, result domain.NodeResult, exec *domain.Execution, workflow *domain.Workflow) (execctx.ReviewDecision, error) {
	return execctx.ReviewDecision{Kind: execctx.ReviewApprove, Patch: r.patch}, nil
}

type rejectReview struct{ reason string }

func (r rejectReview) Review(ctx context.Context, node *domain.Node, result domain.NodeResult, exec *domain.Execution, workflow *domain.Workflow) (execctx.ReviewDecision, error) {
	return execctx.ReviewDecision{Kind: execctx.ReviewReject, Reason: r.reason}, nil
}

type backtrackReview struct {
	target       string
	reason       string
	editedPrompt string
}

func (r backtrackReview) Review(ctx context.Context, node *domain.Node, result domain.NodeResult, exec *domain.Execution, workflow *domain.Workflow) (execctx.ReviewDecision, error) {
	return execctx.ReviewDecision{Kind: execctx.ReviewBacktrack, TargetNodeID: r.target, Reason: r.reason, EditedPrompt: r.editedPrompt}, nil
}
