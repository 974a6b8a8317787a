package domain

import "time"

// now is overridable in tests; production code always uses time.Now.
var now = time.Now

// Status is the lifecycle status of an Execution.
type Status string

const (
	StatusRunning   Status = "running"
	StatusPaused    Status = "paused"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
	StatusRejected  Status = "rejected"
)

// NodeResult is the outcome of running a single node once. Output is
// arbitrary — usually a string, but a fork/join merge may store a list, and
// a Standard node's parsed outputParams flow through context separately.
type NodeResult struct {
	Status    ResultStatus
	Output    any
	Metadata  map[string]any
	Timestamp time.Time
	Error     string
}

// ExecutionStep is one entry of the execution's node history, used by the
// History processor (C8) and surfaced via the query API.
type ExecutionStep struct {
	NodeID    string
	Result    NodeResult
	Timestamp time.Time
}

// BacktrackRecord is one entry of the execution's backtrack history.
type BacktrackRecord struct {
	From        string
	To          string
	Reason      string
	Type        BacktrackType
	RubricScore *float64
	Timestamp   time.Time
}

// Execution is an event-sourced aggregate: apply folds one Event into the
// projected State fields below, and the full ordered event log (obtained via
// UncommittedEvents before the store appends them, or replayed wholesale on
// load) is the system of record. Every exported mutator raises an event and
// immediately applies it, so in-memory state is always consistent with the
// log as written so far.
type Execution struct {
	ID              string
	WorkflowID      string
	WorkflowVersion string
	TenantID        string

	Status      Status
	CurrentNode string
	Ctx         *Context
	History     []ExecutionStep
	Backtracks  []BacktrackRecord

	RubricEvaluations map[string]*RubricEvaluation
	RetryCounts       map[string]int
	LoopBreakTarget   string

	ExitStatus ExitStatus
	Output     map[string]any
	Error      string

	StartedAt   time.Time
	UpdatedAt   time.Time
	CompletedAt *time.Time

	sequence  int64
	pending   []Event
}

// NewExecution starts a brand new execution and raises ExecutionStarted.
func NewExecution(id, workflowID, workflowVersion, tenantID, startNode string, input map[string]any) *Execution {
	e := &Execution{
		ID:                id,
		WorkflowID:        workflowID,
		WorkflowVersion:   workflowVersion,
		TenantID:          tenantID,
		Ctx:               NewContext(),
		RubricEvaluations: make(map[string]*RubricEvaluation),
		RetryCounts:       make(map[string]int),
	}
	for k, v := range input {
		e.Ctx.Set(k, v)
	}
	e.raise(ExecutionStartedEvent{
		WorkflowID:      workflowID,
		WorkflowVersion: workflowVersion,
		StartNode:       startNode,
		Input:           input,
	})
	return e
}

// ReconstructExecution rebuilds an Execution by replaying a persisted event
// log in order. The returned Execution has no pending (uncommitted) events.
func ReconstructExecution(id string, log []Event) *Execution {
	e := &Execution{
		ID:                id,
		Ctx:               NewContext(),
		RubricEvaluations: make(map[string]*RubricEvaluation),
		RetryCounts:       make(map[string]int),
	}
	for _, evt := range log {
		e.apply(evt)
		e.sequence = evt.Envelope().Sequence
	}
	return e
}

// UncommittedEvents returns events raised since the last MarkCommitted call.
func (e *Execution) UncommittedEvents() []Event { return e.pending }

// MarkCommitted clears the pending event buffer after the store has
// appended UncommittedEvents() to the log.
func (e *Execution) MarkCommitted() { e.pending = nil }

func (e *Execution) raise(evt Event) {
	e.sequence++
	env := evt.Envelope()
	env.ExecutionID = e.ID
	env.Sequence = e.sequence
	env.OccurredAt = now()
	evt = withEnvelope(evt, env)
	e.pending = append(e.pending, evt)
	e.apply(evt)
}

func (e *Execution) apply(evt Event) {
	e.UpdatedAt = evt.Envelope().OccurredAt
	switch ev := evt.(type) {
	case ExecutionStartedEvent:
		e.WorkflowID = ev.WorkflowID
		e.WorkflowVersion = ev.WorkflowVersion
		e.CurrentNode = ev.StartNode
		e.Status = StatusRunning
		e.StartedAt = ev.OccurredAt
		for k, v := range ev.Input {
			e.Ctx.Set(k, v)
		}
	case NodeStartedEvent:
		e.CurrentNode = ev.NodeID
	case NodeCompletedEvent:
		e.History = append(e.History, ExecutionStep{NodeID: ev.NodeID, Result: ev.Result, Timestamp: ev.OccurredAt})
		if ev.Eval != nil {
			e.RubricEvaluations[ev.NodeID] = ev.Eval
		}
	case NodeFailedEvent:
		e.History = append(e.History, ExecutionStep{
			NodeID:    ev.NodeID,
			Result:    NodeResult{Status: ResultFailure, Error: ev.Error, Timestamp: ev.OccurredAt},
			Timestamp: ev.OccurredAt,
		})
	case NodeSkippedEvent:
		e.History = append(e.History, ExecutionStep{
			NodeID:    ev.NodeID,
			Result:    NodeResult{Status: ResultPending, Metadata: map[string]any{"skipped_reason": ev.Reason}, Timestamp: ev.OccurredAt},
			Timestamp: ev.OccurredAt,
		})
	case VariableSetEvent:
		e.Ctx.Set(ev.Key, ev.Value)
	case CursorMovedEvent:
		e.CurrentNode = ev.ToNode
	case BacktrackedEvent:
		e.CurrentNode = ev.To
		if ev.To != ev.From {
			// landing on a different node resets its retry counter; the same
			// node keeps accumulating across repeated automatic backtracks.
			e.RetryCounts[ev.To] = 0
		}
		e.Backtracks = append(e.Backtracks, BacktrackRecord{
			From: ev.From, To: ev.To, Reason: ev.Reason, Type: ev.Type,
			RubricScore: ev.RubricScore, Timestamp: ev.OccurredAt,
		})
	case CheckpointedEvent:
		// snapshot payload is opaque to the projection; storage reads it directly
		// off the log when resuming cold.
	case PausedEvent:
		e.Status = StatusPaused
		e.CurrentNode = ev.NodeID
	case ResumedEvent:
		e.Status = StatusRunning
		e.CurrentNode = ev.NodeID
	case CompletedEvent:
		e.Status = StatusCompleted
		e.ExitStatus = ev.ExitStatus
		e.Output = ev.Output
		t := ev.OccurredAt
		e.CompletedAt = &t
	case FailedEvent:
		e.Status = StatusFailed
		e.Error = ev.Error
		t := ev.OccurredAt
		e.CompletedAt = &t
	case CancelledEvent:
		e.Status = StatusCancelled
		e.Error = ev.Reason
		t := ev.OccurredAt
		e.CompletedAt = &t
	case RejectedEvent:
		e.Status = StatusRejected
		e.Error = ev.Reason
		t := ev.OccurredAt
		e.CompletedAt = &t
	case RubricEvaluatedEvent:
		e.RubricEvaluations[ev.NodeID] = ev.Eval
	case RetryIncrementedEvent:
		e.RetryCounts[ev.NodeID]++
	case LoopBreakTargetSetEvent:
		e.LoopBreakTarget = ev.Target
	}
}

// withEnvelope rebuilds a concrete event value with env substituted in,
// since Envelope is embedded by value in every concrete event struct.
func withEnvelope(evt Event, env Envelope) Event {
	switch ev := evt.(type) {
	case ExecutionStartedEvent:
		ev.Envelope = env
		return ev
	case NodeStartedEvent:
		ev.Envelope = env
		return ev
	case NodeCompletedEvent:
		ev.Envelope = env
		return ev
	case NodeFailedEvent:
		ev.Envelope = env
		return ev
	case NodeSkippedEvent:
		ev.Envelope = env
		return ev
	case VariableSetEvent:
		ev.Envelope = env
		return ev
	case CursorMovedEvent:
		ev.Envelope = env
		return ev
	case BacktrackedEvent:
		ev.Envelope = env
		return ev
	case CheckpointedEvent:
		ev.Envelope = env
		return ev
	case PausedEvent:
		ev.Envelope = env
		return ev
	case ResumedEvent:
		ev.Envelope = env
		return ev
	case CompletedEvent:
		ev.Envelope = env
		return ev
	case FailedEvent:
		ev.Envelope = env
		return ev
	case CancelledEvent:
		ev.Envelope = env
		return ev
	case RejectedEvent:
		ev.Envelope = env
		return ev
	case RubricEvaluatedEvent:
		ev.Envelope = env
		return ev
	case RetryIncrementedEvent:
		ev.Envelope = env
		return ev
	case LoopBreakTargetSetEvent:
		ev.Envelope = env
		return ev
	default:
		return evt
	}
}

// --- Mutators used by the graph driver and pipeline processors ---

func (e *Execution) StartNode(nodeID string, attempt int) {
	e.raise(NodeStartedEvent{NodeID: nodeID, Attempt: attempt})
}

func (e *Execution) CompleteNode(nodeID string, result NodeResult, eval *RubricEvaluation) {
	e.raise(NodeCompletedEvent{NodeID: nodeID, Result: result, Eval: eval})
}

func (e *Execution) FailNode(nodeID, errMsg string, retryable bool) {
	e.raise(NodeFailedEvent{NodeID: nodeID, Error: errMsg, Retryable: retryable})
}

func (e *Execution) SkipNode(nodeID, reason string) {
	e.raise(NodeSkippedEvent{NodeID: nodeID, Reason: reason})
}

func (e *Execution) SetVariable(key string, value any) {
	e.raise(VariableSetEvent{Key: key, Value: value})
}

func (e *Execution) MoveCursor(from, to string) {
	e.raise(CursorMovedEvent{FromNode: from, ToNode: to})
}

func (e *Execution) Backtrack(from, to, reason string, kind BacktrackType, rubricScore *float64) {
	e.raise(BacktrackedEvent{From: from, To: to, Reason: reason, Type: kind, RubricScore: rubricScore})
}

func (e *Execution) Checkpoint(snapshot []byte) {
	e.raise(CheckpointedEvent{Snapshot: snapshot})
}

func (e *Execution) Pause(nodeID, reason string) {
	e.raise(PausedEvent{NodeID: nodeID, Reason: reason})
}

func (e *Execution) Resume(nodeID string) {
	e.raise(ResumedEvent{NodeID: nodeID})
}

func (e *Execution) Complete(exitStatus ExitStatus, output map[string]any) {
	e.raise(CompletedEvent{ExitStatus: exitStatus, Output: output})
}

func (e *Execution) Fail(errMsg string) {
	e.raise(FailedEvent{Error: errMsg})
}

func (e *Execution) Cancel(reason string) {
	e.raise(CancelledEvent{Reason: reason})
}

// Reject records a human reviewer's terminal rejection at nodeID.
func (e *Execution) Reject(nodeID, reason string) {
	e.raise(RejectedEvent{NodeID: nodeID, Reason: reason})
}

// SetRubricEvaluation records a rubric's verdict against an already-recorded
// node history entry.
func (e *Execution) SetRubricEvaluation(nodeID string, eval *RubricEvaluation) {
	e.raise(RubricEvaluatedEvent{NodeID: nodeID, Eval: eval})
}

// IncrementRetryCount records one more attempt at nodeID and returns the new
// count, used by a Failure transition rule's maxRetries check.
func (e *Execution) IncrementRetryCount(nodeID string) int {
	e.raise(RetryIncrementedEvent{NodeID: nodeID})
	return e.RetryCounts[nodeID]
}

// SetLoopBreakTarget stages (or, with an empty target, clears) the pending
// loop break override that transition resolution consults first.
func (e *Execution) SetLoopBreakTarget(target string) {
	e.raise(LoopBreakTargetSetEvent{Target: target})
}

func (e *Execution) IsTerminal() bool {
	switch e.Status {
	case StatusCompleted, StatusFailed, StatusCancelled, StatusRejected:
		return true
	default:
		return false
	}
}
