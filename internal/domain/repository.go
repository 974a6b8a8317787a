package domain

import "context"

// WorkflowRepository stores and retrieves validated Workflow definitions,
// scoped by tenant. Implementations live in internal/storage.
type WorkflowRepository interface {
	Upsert(ctx context.Context, tenantID string, w *Workflow) error
	Get(ctx context.Context, tenantID, workflowID, version string) (*Workflow, error)
	// GetLatest returns the highest Version on record for workflowID.
	GetLatest(ctx context.Context, tenantID, workflowID string) (*Workflow, error)
	List(ctx context.Context, tenantID string) ([]*Workflow, error)
	Delete(ctx context.Context, tenantID, workflowID, version string) error
}

// ExecutionRepository persists executions as event logs plus periodic
// snapshots, and answers point-in-time queries against the projection.
type ExecutionRepository interface {
	// Append durably stores evt as the next entry in executionID's log. It
	// must be called with the event already stamped (Envelope.Sequence set).
	Append(ctx context.Context, tenantID string, evt Event) error
	// AppendBatch atomically appends multiple events, used when committing
	// an Execution's UncommittedEvents() in one round trip.
	AppendBatch(ctx context.Context, tenantID string, events []Event) error
	// Load replays the full event log and returns a reconstructed Execution.
	Load(ctx context.Context, tenantID, executionID string) (*Execution, error)
	// LoadFromSnapshot loads the most recent checkpoint and replays only the
	// events after it, used to make resume cheap for long executions.
	LoadFromSnapshot(ctx context.Context, tenantID, executionID string) (*Execution, []byte, error)
	List(ctx context.Context, tenantID string, workflowID string) ([]*Execution, error)
	Exists(ctx context.Context, tenantID, executionID string) (bool, error)
}

// RubricRepository stores rubric definitions referenced by RubricLocator.Source.
type RubricRepository interface {
	Upsert(ctx context.Context, tenantID string, r *Rubric) error
	Get(ctx context.Context, tenantID, rubricID string) (*Rubric, error)
	List(ctx context.Context, tenantID string) ([]*Rubric, error)
}

// Storage bundles the three repositories a single tenant-scoped backend
// (in-memory or Postgres) provides together, so the service layer depends on
// one constructor instead of three.
type Storage interface {
	Workflows() WorkflowRepository
	Executions() ExecutionRepository
	Rubrics() RubricRepository
}
