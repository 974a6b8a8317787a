package domain

import "time"

// EventType discriminates the concrete Event payloads appended to an
// Execution's log. The log is the source of truth; State is a projection
// rebuilt by replaying events in order.
type EventType string

const (
	EventExecutionStarted EventType = "execution_started"
	EventNodeStarted      EventType = "node_started"
	EventNodeCompleted    EventType = "node_completed"
	EventNodeFailed       EventType = "node_failed"
	EventNodeSkipped      EventType = "node_skipped"
	EventVariableSet      EventType = "variable_set"
	EventCursorMoved      EventType = "cursor_moved"
	EventBacktracked      EventType = "backtracked"
	EventCheckpointed     EventType = "checkpointed"
	EventPaused           EventType = "paused"
	EventResumed          EventType = "resumed"
	EventCompleted        EventType = "completed"
	EventFailed           EventType = "failed"
	EventCancelled        EventType = "cancelled"
	EventRejected         EventType = "rejected"
	EventRubricEvaluated  EventType = "rubric_evaluated"
	EventRetryIncremented EventType = "retry_incremented"
	EventLoopBreakTargetSet EventType = "loop_break_target_set"
)

// Event is one entry in an Execution's append-only log. Concrete event
// structs all embed Envelope; Execution.apply folds them with a type switch
// on the concrete struct.
type Event interface {
	EventType() EventType
	Envelope() Envelope
}

// Envelope carries the fields common to every event.
type Envelope struct {
	ExecutionID string
	Sequence    int64
	OccurredAt  time.Time
}

func (e Envelope) Envelope() Envelope { return e }

type ExecutionStartedEvent struct {
	Envelope
	WorkflowID      string
	WorkflowVersion string
	StartNode       string
	Input           map[string]any
}

func (ExecutionStartedEvent) EventType() EventType { return EventExecutionStarted }

type NodeStartedEvent struct {
	Envelope
	NodeID  string
	Attempt int
}

func (NodeStartedEvent) EventType() EventType { return EventNodeStarted }

type NodeCompletedEvent struct {
	Envelope
	NodeID string
	Result NodeResult
	Eval   *RubricEvaluation // nil if the node has no rubric
}

func (NodeCompletedEvent) EventType() EventType { return EventNodeCompleted }

type NodeFailedEvent struct {
	Envelope
	NodeID    string
	Error     string
	Retryable bool
}

func (NodeFailedEvent) EventType() EventType { return EventNodeFailed }

type NodeSkippedEvent struct {
	Envelope
	NodeID string
	Reason string
}

func (NodeSkippedEvent) EventType() EventType { return EventNodeSkipped }

type VariableSetEvent struct {
	Envelope
	Key   string
	Value any
}

func (VariableSetEvent) EventType() EventType { return EventVariableSet }

type CursorMovedEvent struct {
	Envelope
	FromNode string
	ToNode   string
}

func (CursorMovedEvent) EventType() EventType { return EventCursorMoved }

type BacktrackedEvent struct {
	Envelope
	From        string
	To          string
	Reason      string
	Type        BacktrackType
	RubricScore *float64 // nil unless the backtrack was rubric-driven
}

func (BacktrackedEvent) EventType() EventType { return EventBacktracked }

type CheckpointedEvent struct {
	Envelope
	Snapshot []byte // msgpack-encoded State snapshot
}

func (CheckpointedEvent) EventType() EventType { return EventCheckpointed }

type PausedEvent struct {
	Envelope
	NodeID string
	Reason string
}

func (PausedEvent) EventType() EventType { return EventPaused }

type ResumedEvent struct {
	Envelope
	NodeID string
}

func (ResumedEvent) EventType() EventType { return EventResumed }

type CompletedEvent struct {
	Envelope
	ExitStatus ExitStatus
	Output     map[string]any
}

func (CompletedEvent) EventType() EventType { return EventCompleted }

type FailedEvent struct {
	Envelope
	Error string
}

func (FailedEvent) EventType() EventType { return EventFailed }

type CancelledEvent struct {
	Envelope
	Reason string
}

func (CancelledEvent) EventType() EventType { return EventCancelled }

// RejectedEvent records a human reviewer's terminal rejection of a node's
// result (§4.2.3) — distinct from Failed: a Reject is a considered decision,
// not an error, and is surfaced to callers with the reason rather than an
// error status.
type RejectedEvent struct {
	Envelope
	NodeID string
	Reason string
}

func (RejectedEvent) EventType() EventType { return EventRejected }

// RubricEvaluatedEvent records a rubric evaluation against a node already
// present in history; raised separately from NodeCompletedEvent because the
// Rubric Evaluation processor runs after the History processor in the
// post-execution pipeline (§4.2).
type RubricEvaluatedEvent struct {
	Envelope
	NodeID string
	Eval   *RubricEvaluation
}

func (RubricEvaluatedEvent) EventType() EventType { return EventRubricEvaluated }

// RetryIncrementedEvent records one more attempt at nodeID, consulted by a
// Failure transition rule's maxRetries check (§4.2.5).
type RetryIncrementedEvent struct {
	Envelope
	NodeID string
}

func (RetryIncrementedEvent) EventType() EventType { return EventRetryIncremented }

// LoopBreakTargetSetEvent sets or clears (empty Target) the pending loop
// break override consulted first by transition resolution (§4.2.5).
type LoopBreakTargetSetEvent struct {
	Envelope
	Target string
}

func (LoopBreakTargetSetEvent) EventType() EventType { return EventLoopBreakTargetSet }
