// Package storage defines the Persistence Boundary (C12): two tenant-scoped
// repository interfaces the rest of the engine depends on by interface only,
// per spec §2's "the engine sees only the repository interfaces." Concrete
// implementations live in the memory and postgres subpackages, grounded on
// the teacher's storage.MemoryStore and storage.BunStore/PostgresEventStore.
package storage

import (
	"context"
	"fmt"

	"github.com/flowloom/fabric/internal/domain"
)

// ErrNotFound is returned by a repository lookup that found nothing for the
// given tenant-scoped key.
type ErrNotFound struct {
	Kind string
	ID   string
}

func (e *ErrNotFound) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Kind, e.ID)
}

// WorkflowRepository persists workflow definitions, keyed per tenant and
// per (id, version) within that tenant — a workflow "change" is a new
// version, never an in-place mutation, matching domain.Workflow's immutable
// contract.
type WorkflowRepository interface {
	SaveWorkflow(ctx context.Context, tenantID string, wf *domain.Workflow) error
	GetWorkflow(ctx context.Context, tenantID, id, version string) (*domain.Workflow, error)
	ListWorkflows(ctx context.Context, tenantID string) ([]*domain.Workflow, error)
	DeleteWorkflow(ctx context.Context, tenantID, id, version string) error
}

// EventStore persists and replays an execution's append-only event log,
// keyed per tenant + execution id. Appends must be atomic per call: either
// every event in the batch lands or none do, so a crash mid-checkpoint never
// leaves a partially-written step.
type EventStore interface {
	AppendEvents(ctx context.Context, tenantID, executionID string, events []domain.Event) error
	GetEvents(ctx context.Context, tenantID, executionID string) ([]domain.Event, error)
	ListExecutions(ctx context.Context, tenantID string) ([]string, error)
}
