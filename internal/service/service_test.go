package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowloom/fabric/internal/agent"
	"github.com/flowloom/fabric/internal/broadcaster"
	"github.com/flowloom/fabric/internal/domain"
	"github.com/flowloom/fabric/internal/execctx"
	"github.com/flowloom/fabric/internal/forkjoin"
	"github.com/flowloom/fabric/internal/nodeexec"
	"github.com/flowloom/fabric/internal/registry"
	"github.com/flowloom/fabric/internal/rubric"
	"github.com/flowloom/fabric/internal/service"
	"github.com/flowloom/fabric/internal/storage/memory"
)

// autoApproveReview approves every review call, modeling the non-interactive
// deployment HumanReviewProcessor's own doc comment describes.
type autoApproveReview struct{}

func (autoApproveReview) Review(ctx context.Context, node *domain.Node, result domain.NodeResult, exec *domain.Execution, wf *domain.Workflow) (execctx.ReviewDecision, error) {
	return execctx.ReviewDecision{Kind: execctx.ReviewApprove}, nil
}

type fakeAgent struct {
	id   string
	text string
}

func (f *fakeAgent) ID() string { return f.id }
func (f *fakeAgent) Execute(ctx context.Context, prompt string, vars map[string]any) (agent.Response, error) {
	return agent.Response{Text: f.text}, nil
}

func newTestService(t *testing.T) (*service.Service, *memory.Store, *registry.TenantRegistries) {
	t.Helper()
	return newTestServiceWithReview(t, nil)
}

func newTestServiceWithReview(t *testing.T, review execctx.ReviewHandler) (*service.Service, *memory.Store, *registry.TenantRegistries) {
	t.Helper()
	mem := memory.New()
	tenants := registry.NewTenantRegistries()
	require.NoError(t, tenants.Agents("tenant-1").Register(&fakeAgent{id: "writer", text: "ok"}))

	dispatcher := nodeexec.NewDispatcher(nodeexec.NewCircuitBreakers(5, time.Minute), forkjoin.NewCoordinator())

	svc := service.New(service.Deps{
		Workflows:   mem,
		Events:      mem,
		Broadcaster: broadcaster.New(),
		Tenants:     tenants,
		Rubrics:     rubric.NewEngine(),
		Dispatcher:  dispatcher,
		Review:      review,
	})
	return svc, mem, tenants
}

func linearWorkflow(id, version string) *domain.Workflow {
	n0 := &domain.Node{ID: "n0", Type: domain.NodeTypeStandard, Standard: &domain.StandardSpec{AgentID: "writer", Prompt: "hi"},
		TransitionRules: []domain.TransitionRule{{Kind: domain.TransitionAlways, Target: "n1"}}}
	n1 := &domain.Node{ID: "n1", Type: domain.NodeTypeEnd, End: &domain.EndSpec{ExitStatus: domain.ExitSuccess}}
	wf, err := domain.NewWorkflow(id, version, domain.Metadata{DisplayName: "linear"}, nil, nil,
		map[string]*domain.Node{"n0": n0, "n1": n1}, "n0", domain.ExecutionConfig{CheckpointPolicy: domain.CheckpointEveryNode})
	if err != nil {
		panic(err)
	}
	return wf
}

func TestStartRunsToCompletionAndPersistsEvents(t *testing.T) {
	svc, mem, _ := newTestService(t)
	ctx := context.Background()
	wf := linearWorkflow("wf-1", "1")
	require.NoError(t, mem.SaveWorkflow(ctx, "tenant-1", wf))

	exec, err := svc.Start(ctx, "tenant-1", "wf-1", map[string]any{"topic": "go"})
	require.NoError(t, err)
	require.NotEmpty(t, exec.ID)

	require.Eventually(t, func() bool {
		got, err := svc.Query(ctx, "tenant-1", exec.ID)
		return err == nil && got.Status == domain.StatusCompleted
	}, time.Second, time.Millisecond)

	result, err := svc.Result(ctx, "tenant-1", exec.ID)
	require.NoError(t, err)
	assert.Equal(t, "ok", result["n0"])

	events, err := mem.GetEvents(ctx, "tenant-1", exec.ID)
	require.NoError(t, err)
	assert.NotEmpty(t, events)
}

func TestLoadLatestWorkflowPicksHighestVersion(t *testing.T) {
	svc, mem, _ := newTestService(t)
	ctx := context.Background()
	require.NoError(t, mem.SaveWorkflow(ctx, "tenant-1", linearWorkflow("wf-1", "1")))
	require.NoError(t, mem.SaveWorkflow(ctx, "tenant-1", linearWorkflow("wf-1", "2")))

	wf, err := svc.LoadLatestWorkflow(ctx, "tenant-1", "wf-1")
	require.NoError(t, err)
	assert.Equal(t, "2", wf.Version)
}

func TestSaveWorkflowReportsUpsertKind(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	wf := linearWorkflow("wf-1", "1")

	updated, err := svc.SaveWorkflow(ctx, "tenant-1", wf)
	require.NoError(t, err)
	assert.False(t, updated)

	updated, err = svc.SaveWorkflow(ctx, "tenant-1", wf)
	require.NoError(t, err)
	assert.True(t, updated)
}

func TestCancelStopsRunningExecution(t *testing.T) {
	svc, mem, _ := newTestService(t)
	ctx := context.Background()

	loop := &domain.Node{ID: "n0", Type: domain.NodeTypeStandard, Standard: &domain.StandardSpec{AgentID: "writer", Prompt: "hi"},
		TransitionRules: []domain.TransitionRule{{Kind: domain.TransitionAlways, Target: "n0"}}}
	wf, err := domain.NewWorkflow("wf-loop", "1", domain.Metadata{}, nil, nil, map[string]*domain.Node{"n0": loop}, "n0", domain.ExecutionConfig{})
	require.NoError(t, err)
	require.NoError(t, mem.SaveWorkflow(ctx, "tenant-1", wf))

	exec, err := svc.Start(ctx, "tenant-1", "wf-loop", nil)
	require.NoError(t, err)

	require.NoError(t, svc.Cancel("tenant-1", exec.ID))

	require.Eventually(t, func() bool {
		got, err := svc.Query(ctx, "tenant-1", exec.ID)
		return err == nil && got.Status == domain.StatusCancelled
	}, time.Second, time.Millisecond)
}

func TestCancelUnknownExecutionFails(t *testing.T) {
	svc, _, _ := newTestService(t)
	err := svc.Cancel("tenant-1", "ghost")
	require.Error(t, err)
	var notRunning *service.ErrNotRunning
	assert.ErrorAs(t, err, &notRunning)
}

func TestResumeAfterPauseContinuesExecution(t *testing.T) {
	svc, mem, _ := newTestService(t)
	ctx := context.Background()

	n0 := &domain.Node{ID: "n0", Type: domain.NodeTypeStandard, Standard: &domain.StandardSpec{
		AgentID: "writer",
		Prompt:  "hi",
		PlanningConfig: &domain.PlanningConfig{
			Mode:                domain.PlanningStatic,
			ReviewBeforeExecute: true,
		},
		StaticPlan: []domain.PlanStep{{Tool: "noop"}},
	}, TransitionRules: []domain.TransitionRule{{Kind: domain.TransitionAlways, Target: "n1"}}}
	n1 := &domain.Node{ID: "n1", Type: domain.NodeTypeEnd, End: &domain.EndSpec{ExitStatus: domain.ExitSuccess}}
	wf, err := domain.NewWorkflow("wf-pause", "1", domain.Metadata{}, nil, nil,
		map[string]*domain.Node{"n0": n0, "n1": n1}, "n0", domain.ExecutionConfig{})
	require.NoError(t, err)
	require.NoError(t, mem.SaveWorkflow(ctx, "tenant-1", wf))

	exec, err := svc.Start(ctx, "tenant-1", "wf-pause", nil)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		got, err := svc.Query(ctx, "tenant-1", exec.ID)
		return err == nil && got.Status == domain.StatusPaused
	}, time.Second, time.Millisecond)

	_, err = svc.Resume(ctx, "tenant-1", exec.ID, true, nil)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		got, err := svc.Query(ctx, "tenant-1", exec.ID)
		return err == nil && got.Status == domain.StatusCompleted
	}, time.Second, time.Millisecond)
}

func TestResumeRejectedRecordsTerminalRejection(t *testing.T) {
	svc, mem, _ := newTestService(t)
	ctx := context.Background()

	n0 := &domain.Node{ID: "n0", Type: domain.NodeTypeStandard, Standard: &domain.StandardSpec{
		AgentID: "writer",
		Prompt:  "hi",
		PlanningConfig: &domain.PlanningConfig{
			Mode:                domain.PlanningStatic,
			ReviewBeforeExecute: true,
		},
		StaticPlan: []domain.PlanStep{{Tool: "noop"}},
	}}
	wf, err := domain.NewWorkflow("wf-pause-reject", "1", domain.Metadata{}, nil, nil, map[string]*domain.Node{"n0": n0}, "n0", domain.ExecutionConfig{})
	require.NoError(t, err)
	require.NoError(t, mem.SaveWorkflow(ctx, "tenant-1", wf))

	exec, err := svc.Start(ctx, "tenant-1", "wf-pause-reject", nil)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		got, err := svc.Query(ctx, "tenant-1", exec.ID)
		return err == nil && got.Status == domain.StatusPaused
	}, time.Second, time.Millisecond)

	got, err := svc.Resume(ctx, "tenant-1", exec.ID, false, nil)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusRejected, got.Status)
}

func TestListPausedFindsColdAndLiveExecutions(t *testing.T) {
	svc, mem, _ := newTestService(t)
	ctx := context.Background()

	n0 := &domain.Node{ID: "n0", Type: domain.NodeTypeStandard, Standard: &domain.StandardSpec{
		AgentID: "writer",
		Prompt:  "hi",
		PlanningConfig: &domain.PlanningConfig{
			Mode:                domain.PlanningStatic,
			ReviewBeforeExecute: true,
		},
		StaticPlan: []domain.PlanStep{{Tool: "noop"}},
	}}
	wf, err := domain.NewWorkflow("wf-pause2", "1", domain.Metadata{}, nil, nil, map[string]*domain.Node{"n0": n0}, "n0", domain.ExecutionConfig{})
	require.NoError(t, err)
	require.NoError(t, mem.SaveWorkflow(ctx, "tenant-1", wf))

	exec, err := svc.Start(ctx, "tenant-1", "wf-pause2", nil)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		paused, err := svc.ListPaused(ctx, "tenant-1")
		if err != nil || len(paused) == 0 {
			return false
		}
		for _, p := range paused {
			if p.ID == exec.ID {
				return true
			}
		}
		return false
	}, time.Second, time.Millisecond)
}
