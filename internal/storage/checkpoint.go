package storage

import (
	"fmt"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/flowloom/fabric/internal/execctx"
)

// resumeSnapshot is the msgpack-encoded payload stashed in a
// CheckpointedEvent, reusing the teacher's indirect msgpack dependency. It
// is a convenience fast-path only — the authoritative resume path is always
// "replay the event log," per §4's checkpoint/resume protocol — so a reader
// that can't decode an old snapshot shape can simply ignore it.
type resumeSnapshot struct {
	CurrentNode     string
	Vars            map[string]any
	RetryCounts     map[string]int
	LoopBreakTarget string
}

// CheckpointStore adapts an EventStore into graphdriver.StateRepository:
// every call stages a CheckpointedEvent carrying a point-in-time snapshot,
// then flushes all of the execution's uncommitted events — the checkpoint
// itself included — to the event store in one atomic append.
type CheckpointStore struct {
	Events EventStore
}

func NewCheckpointStore(events EventStore) *CheckpointStore {
	return &CheckpointStore{Events: events}
}

// Checkpoint satisfies graphdriver.StateRepository by structural typing.
func (c *CheckpointStore) Checkpoint(ectx *execctx.Context) error {
	snap := resumeSnapshot{
		CurrentNode:     ectx.Execution.CurrentNode,
		Vars:            ectx.Vars(),
		RetryCounts:     ectx.Execution.RetryCounts,
		LoopBreakTarget: ectx.Execution.LoopBreakTarget,
	}
	encoded, err := msgpack.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode checkpoint snapshot: %w", err)
	}
	ectx.Execution.Checkpoint(encoded)

	pending := ectx.Execution.UncommittedEvents()
	if len(pending) == 0 {
		return nil
	}
	if err := c.Events.AppendEvents(ectx.Ctx, ectx.TenantID, ectx.Execution.ID, pending); err != nil {
		return fmt.Errorf("append checkpoint events: %w", err)
	}
	ectx.Execution.MarkCommitted()
	return nil
}
