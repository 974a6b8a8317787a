package storage_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowloom/fabric/internal/domain"
	"github.com/flowloom/fabric/internal/execctx"
	"github.com/flowloom/fabric/internal/registry"
	"github.com/flowloom/fabric/internal/rubric"
	"github.com/flowloom/fabric/internal/storage"
	"github.com/flowloom/fabric/internal/storage/memory"
)

func TestCheckpointStoreFlushesUncommittedEvents(t *testing.T) {
	mem := memory.New()
	cp := storage.NewCheckpointStore(mem)

	exec := domain.NewExecution("exec-1", "wf-1", "v1", "tenant-a", "n1", nil)
	ectx := &execctx.Context{
		Ctx:       context.Background(),
		TenantID:  "tenant-a",
		Execution: exec,
		Agents:    registry.NewAgentRegistry(),
		Tools:     registry.NewToolRegistry(),
		Rubrics:   rubric.NewEngine(),
	}

	require.NoError(t, cp.Checkpoint(ectx))
	assert.Empty(t, exec.UncommittedEvents())

	stored, err := mem.GetEvents(context.Background(), "tenant-a", "exec-1")
	require.NoError(t, err)
	// ExecutionStarted (from NewExecution) + Checkpointed (from Checkpoint).
	require.Len(t, stored, 2)
	assert.Equal(t, domain.EventExecutionStarted, stored[0].EventType())
	assert.Equal(t, domain.EventCheckpointed, stored[1].EventType())
}

func TestCheckpointStoreAlwaysAppendsItsOwnEvent(t *testing.T) {
	mem := memory.New()
	cp := storage.NewCheckpointStore(mem)

	exec := domain.NewExecution("exec-1", "wf-1", "v1", "tenant-a", "n1", nil)
	ectx := &execctx.Context{Ctx: context.Background(), TenantID: "tenant-a", Execution: exec}

	require.NoError(t, cp.Checkpoint(ectx))
	require.NoError(t, cp.Checkpoint(ectx))

	stored, err := mem.GetEvents(context.Background(), "tenant-a", "exec-1")
	require.NoError(t, err)
	// ExecutionStarted, then one Checkpointed event per Checkpoint call.
	assert.Len(t, stored, 3)
}
