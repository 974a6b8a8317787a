package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowloom/fabric/internal/domain"
	"github.com/flowloom/fabric/internal/storage"
)

func testWorkflow(t *testing.T, id, version string) *domain.Workflow {
	t.Helper()
	nodes := map[string]*domain.Node{
		"end": {ID: "end", Type: domain.NodeTypeEnd, End: &domain.EndSpec{ExitStatus: domain.ExitSuccess}},
	}
	wf, err := domain.NewWorkflow(id, version, domain.Metadata{DisplayName: "test"}, nil, nil, nodes, "end", domain.ExecutionConfig{})
	require.NoError(t, err)
	return wf
}

func TestWorkflowRoundTripIsTenantScoped(t *testing.T) {
	s := New()
	ctx := context.Background()

	require.NoError(t, s.SaveWorkflow(ctx, "tenant-a", testWorkflow(t, "wf-1", "v1")))

	got, err := s.GetWorkflow(ctx, "tenant-a", "wf-1", "v1")
	require.NoError(t, err)
	assert.Equal(t, "wf-1", got.ID)

	_, err = s.GetWorkflow(ctx, "tenant-b", "wf-1", "v1")
	assert.Error(t, err)
	var notFound *storage.ErrNotFound
	assert.ErrorAs(t, err, &notFound)
}

func TestListWorkflowsFiltersByTenant(t *testing.T) {
	s := New()
	ctx := context.Background()
	require.NoError(t, s.SaveWorkflow(ctx, "tenant-a", testWorkflow(t, "wf-1", "v1")))
	require.NoError(t, s.SaveWorkflow(ctx, "tenant-a", testWorkflow(t, "wf-2", "v1")))
	require.NoError(t, s.SaveWorkflow(ctx, "tenant-b", testWorkflow(t, "wf-3", "v1")))

	out, err := s.ListWorkflows(ctx, "tenant-a")
	require.NoError(t, err)
	assert.Len(t, out, 2)
}

func TestDeleteWorkflow(t *testing.T) {
	s := New()
	ctx := context.Background()
	require.NoError(t, s.SaveWorkflow(ctx, "tenant-a", testWorkflow(t, "wf-1", "v1")))
	require.NoError(t, s.DeleteWorkflow(ctx, "tenant-a", "wf-1", "v1"))

	_, err := s.GetWorkflow(ctx, "tenant-a", "wf-1", "v1")
	assert.Error(t, err)
}

func TestAppendAndGetEventsPreservesOrderAndTenantIsolation(t *testing.T) {
	s := New()
	ctx := context.Background()

	exec := domain.NewExecution("exec-1", "wf-1", "v1", "tenant-a", "end", nil)
	require.NoError(t, s.AppendEvents(ctx, "tenant-a", "exec-1", exec.UncommittedEvents()))
	exec.MarkCommitted()

	exec.SetVariable("k", "v")
	require.NoError(t, s.AppendEvents(ctx, "tenant-a", "exec-1", exec.UncommittedEvents()))
	exec.MarkCommitted()

	events, err := s.GetEvents(ctx, "tenant-a", "exec-1")
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, domain.EventExecutionStarted, events[0].EventType())
	assert.Equal(t, domain.EventVariableSet, events[1].EventType())

	otherTenant, err := s.GetEvents(ctx, "tenant-b", "exec-1")
	require.NoError(t, err)
	assert.Empty(t, otherTenant)
}

func TestListExecutions(t *testing.T) {
	s := New()
	ctx := context.Background()
	exec := domain.NewExecution("exec-1", "wf-1", "v1", "tenant-a", "end", nil)
	require.NoError(t, s.AppendEvents(ctx, "tenant-a", "exec-1", exec.UncommittedEvents()))

	ids, err := s.ListExecutions(ctx, "tenant-a")
	require.NoError(t, err)
	assert.Equal(t, []string{"exec-1"}, ids)
}
