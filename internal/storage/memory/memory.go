// Package memory implements the in-memory storage.WorkflowRepository and
// storage.EventStore, the default backend per spec §2 ("the in-memory
// default is enough for tests"), grounded on the teacher's MemoryStore's
// sync.RWMutex-guarded-map shape, rebuilt against the kept event-sourced
// domain and with every key scoped by tenant.
package memory

import (
	"context"
	"strings"
	"sync"

	"github.com/flowloom/fabric/internal/domain"
	"github.com/flowloom/fabric/internal/storage"
)

type workflowKey struct {
	tenantID string
	id       string
	version  string
}

// Store is a single in-memory backend for both repository interfaces; the
// engine only ever needs one of each per process, so there is no reason to
// split the table into two types.
type Store struct {
	mu        sync.RWMutex
	workflows map[workflowKey]*domain.Workflow
	events    map[string][]domain.Event // "tenantID/executionID" -> ordered log
}

func New() *Store {
	return &Store{
		workflows: make(map[workflowKey]*domain.Workflow),
		events:    make(map[string][]domain.Event),
	}
}

var (
	_ storage.WorkflowRepository = (*Store)(nil)
	_ storage.EventStore         = (*Store)(nil)
)

func (s *Store) SaveWorkflow(ctx context.Context, tenantID string, wf *domain.Workflow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.workflows[workflowKey{tenantID, wf.ID, wf.Version}] = wf
	return nil
}

func (s *Store) GetWorkflow(ctx context.Context, tenantID, id, version string) (*domain.Workflow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	wf, ok := s.workflows[workflowKey{tenantID, id, version}]
	if !ok {
		return nil, &storage.ErrNotFound{Kind: "workflow", ID: id + "@" + version}
	}
	return wf, nil
}

func (s *Store) ListWorkflows(ctx context.Context, tenantID string) ([]*domain.Workflow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*domain.Workflow, 0)
	for k, wf := range s.workflows {
		if k.tenantID == tenantID {
			out = append(out, wf)
		}
	}
	return out, nil
}

func (s *Store) DeleteWorkflow(ctx context.Context, tenantID, id, version string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.workflows, workflowKey{tenantID, id, version})
	return nil
}

func (s *Store) AppendEvents(ctx context.Context, tenantID, executionID string, events []domain.Event) error {
	if len(events) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	key := execKey(tenantID, executionID)
	s.events[key] = append(s.events[key], events...)
	return nil
}

func (s *Store) GetEvents(ctx context.Context, tenantID, executionID string) ([]domain.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	log := s.events[execKey(tenantID, executionID)]
	out := make([]domain.Event, len(log))
	copy(out, log)
	return out, nil
}

func (s *Store) ListExecutions(ctx context.Context, tenantID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	prefix := tenantID + "/"
	out := make([]string, 0)
	for key := range s.events {
		if id, ok := strings.CutPrefix(key, prefix); ok {
			out = append(out, id)
		}
	}
	return out, nil
}

func execKey(tenantID, executionID string) string {
	return tenantID + "/" + executionID
}
