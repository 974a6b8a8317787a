// Package postgres implements the relational storage.WorkflowRepository and
// storage.EventStore over Postgres via Bun, grounded on the teacher's
// BunStore and PostgresEventStore: a jsonb "spec" blob for the workflow
// definition (the teacher's own WorkflowModel.Spec column) and an
// append-only events table ordered by sequence number within an execution.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"

	"github.com/flowloom/fabric/internal/domain"
	"github.com/flowloom/fabric/internal/storage"
)

// Store is a single Bun-backed connection serving both repository
// interfaces, mirroring the teacher's one-BunStore-does-everything shape.
type Store struct {
	db *bun.DB
}

// New opens a Postgres connection pool for dsn. It does not create tables;
// call InitSchema once at startup.
func New(dsn string) *Store {
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	return &Store{db: bun.NewDB(sqldb, pgdialect.New())}
}

var (
	_ storage.WorkflowRepository = (*Store)(nil)
	_ storage.EventStore         = (*Store)(nil)
)

// WorkflowModel mirrors the teacher's WorkflowModel: a jsonb "spec" blob
// plus the columns needed to look a workflow up without decoding it.
type WorkflowModel struct {
	bun.BaseModel `bun:"table:workflows,alias:w"`

	TenantID    string    `bun:"tenant_id,pk"`
	ID          string    `bun:"id,pk"`
	Version     string    `bun:"version,pk"`
	DisplayName string    `bun:"display_name"`
	Spec        []byte    `bun:"spec,type:jsonb"`
	CreatedAt   time.Time `bun:"created_at,notnull,default:current_timestamp"`
}

// EventModel is one entry of an execution's event log. Payload carries the
// full JSON encoding of the concrete domain.Event value (Envelope fields
// included), so decoding never needs more than EventType to pick the target
// struct.
type EventModel struct {
	bun.BaseModel `bun:"table:events,alias:ev"`

	RowID       int64           `bun:"row_id,pk,autoincrement"`
	TenantID    string          `bun:"tenant_id,notnull"`
	ExecutionID string          `bun:"execution_id,notnull"`
	Sequence    int64           `bun:"sequence,notnull"`
	EventType   domain.EventType `bun:"event_type,notnull"`
	Payload     json.RawMessage `bun:"payload,type:jsonb"`
	OccurredAt  time.Time       `bun:"occurred_at,notnull"`
}

// InitSchema creates the tables and indexes this store needs if they don't
// already exist.
func (s *Store) InitSchema(ctx context.Context) error {
	models := []any{(*WorkflowModel)(nil), (*EventModel)(nil)}
	for _, model := range models {
		if _, err := s.db.NewCreateTable().Model(model).IfNotExists().Exec(ctx); err != nil {
			return fmt.Errorf("create table: %w", err)
		}
	}
	indexes := []string{
		"CREATE INDEX IF NOT EXISTS idx_events_execution ON events(tenant_id, execution_id, sequence)",
	}
	for _, idx := range indexes {
		if _, err := s.db.ExecContext(ctx, idx); err != nil {
			return fmt.Errorf("create index: %w", err)
		}
	}
	return nil
}

func (s *Store) SaveWorkflow(ctx context.Context, tenantID string, wf *domain.Workflow) error {
	spec, err := json.Marshal(wf)
	if err != nil {
		return fmt.Errorf("encode workflow spec: %w", err)
	}
	model := &WorkflowModel{
		TenantID:    tenantID,
		ID:          wf.ID,
		Version:     wf.Version,
		DisplayName: wf.Metadata.DisplayName,
		Spec:        spec,
	}
	_, err = s.db.NewInsert().
		Model(model).
		On("CONFLICT (tenant_id, id, version) DO UPDATE").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("save workflow: %w", err)
	}
	return nil
}

func (s *Store) GetWorkflow(ctx context.Context, tenantID, id, version string) (*domain.Workflow, error) {
	model := new(WorkflowModel)
	err := s.db.NewSelect().
		Model(model).
		Where("tenant_id = ? AND id = ? AND version = ?", tenantID, id, version).
		Scan(ctx)
	if err == sql.ErrNoRows {
		return nil, &storage.ErrNotFound{Kind: "workflow", ID: id + "@" + version}
	}
	if err != nil {
		return nil, fmt.Errorf("get workflow: %w", err)
	}
	return decodeWorkflow(model.Spec)
}

func (s *Store) ListWorkflows(ctx context.Context, tenantID string) ([]*domain.Workflow, error) {
	var models []WorkflowModel
	err := s.db.NewSelect().Model(&models).Where("tenant_id = ?", tenantID).Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list workflows: %w", err)
	}
	out := make([]*domain.Workflow, 0, len(models))
	for _, m := range models {
		wf, err := decodeWorkflow(m.Spec)
		if err != nil {
			return nil, err
		}
		out = append(out, wf)
	}
	return out, nil
}

func (s *Store) DeleteWorkflow(ctx context.Context, tenantID, id, version string) error {
	_, err := s.db.NewDelete().
		Model((*WorkflowModel)(nil)).
		Where("tenant_id = ? AND id = ? AND version = ?", tenantID, id, version).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("delete workflow: %w", err)
	}
	return nil
}

func decodeWorkflow(spec []byte) (*domain.Workflow, error) {
	var wf domain.Workflow
	if err := json.Unmarshal(spec, &wf); err != nil {
		return nil, fmt.Errorf("decode workflow spec: %w", err)
	}
	return domain.ReconstructWorkflow(wf.ID, wf.Version, wf.Metadata, wf.Agents, wf.Rubrics, wf.Nodes, wf.StartNode, wf.Config), nil
}

func (s *Store) AppendEvents(ctx context.Context, tenantID, executionID string, events []domain.Event) error {
	if len(events) == 0 {
		return nil
	}
	models := make([]*EventModel, len(events))
	for i, evt := range events {
		payload, err := json.Marshal(evt)
		if err != nil {
			return fmt.Errorf("encode event %d: %w", i, err)
		}
		env := evt.Envelope()
		models[i] = &EventModel{
			TenantID:    tenantID,
			ExecutionID: executionID,
			Sequence:    env.Sequence,
			EventType:   evt.EventType(),
			Payload:     payload,
			OccurredAt:  env.OccurredAt,
		}
	}
	return s.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		_, err := tx.NewInsert().Model(&models).Exec(ctx)
		if err != nil {
			return fmt.Errorf("append events: %w", err)
		}
		return nil
	})
}

func (s *Store) GetEvents(ctx context.Context, tenantID, executionID string) ([]domain.Event, error) {
	var models []EventModel
	err := s.db.NewSelect().
		Model(&models).
		Where("tenant_id = ? AND execution_id = ?", tenantID, executionID).
		Order("sequence ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("get events: %w", err)
	}
	out := make([]domain.Event, 0, len(models))
	for _, m := range models {
		evt, err := decodeEvent(m.EventType, m.Payload)
		if err != nil {
			return nil, err
		}
		out = append(out, evt)
	}
	return out, nil
}

func (s *Store) ListExecutions(ctx context.Context, tenantID string) ([]string, error) {
	var ids []string
	err := s.db.NewSelect().
		Model((*EventModel)(nil)).
		ColumnExpr("DISTINCT execution_id").
		Where("tenant_id = ?", tenantID).
		Scan(ctx, &ids)
	if err != nil {
		return nil, fmt.Errorf("list executions: %w", err)
	}
	return ids, nil
}

// decodeEvent rebuilds the concrete domain.Event value for eventType from
// its stored JSON payload; the payload includes the embedded Envelope
// fields, so no separate reconstruction path is needed per event kind
// beyond picking the right Go type to unmarshal into.
func decodeEvent(eventType domain.EventType, payload []byte) (domain.Event, error) {
	var evt domain.Event
	switch eventType {
	case domain.EventExecutionStarted:
		var e domain.ExecutionStartedEvent
		evt = &e
	case domain.EventNodeStarted:
		var e domain.NodeStartedEvent
		evt = &e
	case domain.EventNodeCompleted:
		var e domain.NodeCompletedEvent
		evt = &e
	case domain.EventNodeFailed:
		var e domain.NodeFailedEvent
		evt = &e
	case domain.EventNodeSkipped:
		var e domain.NodeSkippedEvent
		evt = &e
	case domain.EventVariableSet:
		var e domain.VariableSetEvent
		evt = &e
	case domain.EventCursorMoved:
		var e domain.CursorMovedEvent
		evt = &e
	case domain.EventBacktracked:
		var e domain.BacktrackedEvent
		evt = &e
	case domain.EventCheckpointed:
		var e domain.CheckpointedEvent
		evt = &e
	case domain.EventPaused:
		var e domain.PausedEvent
		evt = &e
	case domain.EventResumed:
		var e domain.ResumedEvent
		evt = &e
	case domain.EventCompleted:
		var e domain.CompletedEvent
		evt = &e
	case domain.EventFailed:
		var e domain.FailedEvent
		evt = &e
	case domain.EventCancelled:
		var e domain.CancelledEvent
		evt = &e
	case domain.EventRejected:
		var e domain.RejectedEvent
		evt = &e
	case domain.EventRubricEvaluated:
		var e domain.RubricEvaluatedEvent
		evt = &e
	case domain.EventRetryIncremented:
		var e domain.RetryIncrementedEvent
		evt = &e
	case domain.EventLoopBreakTargetSet:
		var e domain.LoopBreakTargetSetEvent
		evt = &e
	default:
		return nil, fmt.Errorf("unknown event type %q", eventType)
	}
	if err := json.Unmarshal(payload, evt); err != nil {
		return nil, fmt.Errorf("decode event %q: %w", eventType, err)
	}
	return dereference(evt), nil
}

// dereference undoes the pointer indirection decodeEvent needs for
// json.Unmarshal, returning the value type domain.Event expects everywhere
// else (Execution.apply switches on concrete value types, not pointers).
func dereference(evt domain.Event) domain.Event {
	switch e := evt.(type) {
	case *domain.ExecutionStartedEvent:
		return *e
	case *domain.NodeStartedEvent:
		return *e
	case *domain.NodeCompletedEvent:
		return *e
	case *domain.NodeFailedEvent:
		return *e
	case *domain.NodeSkippedEvent:
		return *e
	case *domain.VariableSetEvent:
		return *e
	case *domain.CursorMovedEvent:
		return *e
	case *domain.BacktrackedEvent:
		return *e
	case *domain.CheckpointedEvent:
		return *e
	case *domain.PausedEvent:
		return *e
	case *domain.ResumedEvent:
		return *e
	case *domain.CompletedEvent:
		return *e
	case *domain.FailedEvent:
		return *e
	case *domain.CancelledEvent:
		return *e
	case *domain.RejectedEvent:
		return *e
	case *domain.RubricEvaluatedEvent:
		return *e
	case *domain.RetryIncrementedEvent:
		return *e
	case *domain.LoopBreakTargetSetEvent:
		return *e
	default:
		return evt
	}
}

func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *Store) Close() error { return s.db.Close() }
