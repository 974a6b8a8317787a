package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/flowloom/fabric/internal/domain"
	"github.com/flowloom/fabric/internal/execctx"
	"github.com/flowloom/fabric/internal/nodeexec"
	"github.com/flowloom/fabric/internal/storage"
)

// Start loads workflowID's latest version, instantiates a fresh execution,
// and launches the driver loop in the background, returning as soon as the
// execution is registered — matching the REST API's 202-Accepted contract
// (§6: "POST /api/v1/executions ... 202 with {executionId, workflowId}").
func (s *Service) Start(ctx context.Context, tenantID, workflowID string, input map[string]any) (*domain.Execution, error) {
	wf, err := s.LoadLatestWorkflow(ctx, tenantID, workflowID)
	if err != nil {
		return nil, err
	}

	exec := domain.NewExecution(uuid.NewString(), wf.ID, wf.Version, tenantID, wf.StartNode, input)
	cancelCh := make(chan struct{})
	ectx := s.buildContext(context.Background(), tenantID, wf, exec, cancelCh)

	run := &runningExecution{ectx: ectx, cancelCh: cancelCh}
	s.running.Store(runningKey(tenantID, exec.ID), run)

	s.broadcaster.Publish(tenantID, exec.ID, "execution.started", map[string]any{"workflow_id": wf.ID})
	go s.drive(ectx)

	return exec, nil
}

// drive runs the graph driver to its next terminal point (Completed,
// Failed, Cancelled, Rejected, or Paused) in the background. The running
// table entry is left in place afterward so Query/Resume can still find a
// paused or just-finished execution without a storage round trip.
func (s *Service) drive(ectx *execctx.Context) {
	err := s.driver.Run(ectx)
	s.logExecErr(ectx.Execution.ID, err)
}

// Resume continues a paused execution, either from its live in-memory
// context or, if this process was restarted since the pause, from a cold
// replay of its event log. approved=false records a terminal rejection
// instead of continuing.
func (s *Service) Resume(ctx context.Context, tenantID, executionID string, approved bool, modifications map[string]any) (*domain.Execution, error) {
	key := runningKey(tenantID, executionID)
	run, ok := s.running.Load(key)
	if !ok {
		reloaded, err := s.reload(ctx, tenantID, executionID)
		if err != nil {
			return nil, err
		}
		run = reloaded
		s.running.Store(key, run)
	}

	exec := run.ectx.Execution
	if exec.Status != domain.StatusPaused {
		return nil, domain.NewDomainError(domain.ErrCodeInvalidState, fmt.Sprintf("execution %s is not paused (status %s)", executionID, exec.Status), nil)
	}

	if !approved {
		exec.Reject(exec.CurrentNode, "resume rejected by caller")
		return exec, nil
	}

	for k, v := range modifications {
		exec.SetVariable(k, v)
	}
	// Unblocks a node paused on `_plan_review_required`; a no-op re-visit
	// marker for any other pause cause, harmlessly unread.
	exec.SetVariable(nodeexec.PlanApprovedKey(exec.CurrentNode), true)
	exec.Resume(exec.CurrentNode)

	go s.drive(run.ectx)
	return exec, nil
}

// Query returns the current projected state of an execution: its live
// in-memory context if the process is still tracking it, otherwise a cold
// replay of its persisted event log.
func (s *Service) Query(ctx context.Context, tenantID, executionID string) (*domain.Execution, error) {
	if run, ok := s.running.Load(runningKey(tenantID, executionID)); ok {
		return run.ectx.Execution, nil
	}
	events, err := s.events.GetEvents(ctx, tenantID, executionID)
	if err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return nil, &storage.ErrNotFound{Kind: "execution", ID: executionID}
	}
	return domain.ReconstructExecution(executionID, events), nil
}

// Result returns the execution's final context with internal keys (those
// beginning with "_") stripped, per §6's /result endpoint contract.
func (s *Service) Result(ctx context.Context, tenantID, executionID string) (map[string]any, error) {
	exec, err := s.Query(ctx, tenantID, executionID)
	if err != nil {
		return nil, err
	}
	if !exec.IsTerminal() {
		return nil, fmt.Errorf("execution %s has not finished (status %s)", executionID, exec.Status)
	}
	out := make(map[string]any, len(exec.Output))
	for k, v := range exec.Output {
		if len(k) > 0 && k[0] == '_' {
			continue
		}
		out[k] = v
	}
	return out, nil
}

// Cancel requests cancellation of a live execution. The driver observes the
// signal between node steps, never mid-step, so cancellation is cooperative
// and may take one node's worth of time to land.
func (s *Service) Cancel(tenantID, executionID string) error {
	run, ok := s.running.Load(runningKey(tenantID, executionID))
	if !ok {
		return &ErrNotRunning{ExecutionID: executionID}
	}
	run.cancelOnce.Do(func() { close(run.cancelCh) })
	return nil
}

// ListPaused returns every paused execution the service currently knows
// about for tenantID: live in-memory ones first, supplemented by a cold
// replay of any persisted execution not currently resident in memory (e.g.
// paused before this process last restarted).
func (s *Service) ListPaused(ctx context.Context, tenantID string) ([]*domain.Execution, error) {
	seen := make(map[string]bool)
	var paused []*domain.Execution

	s.running.Range(func(key string, run *runningExecution) bool {
		if run.ectx.TenantID != tenantID {
			return true
		}
		seen[run.ectx.Execution.ID] = true
		if run.ectx.Execution.Status == domain.StatusPaused {
			paused = append(paused, run.ectx.Execution)
		}
		return true
	})

	ids, err := s.events.ListExecutions(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	for _, id := range ids {
		if seen[id] {
			continue
		}
		events, err := s.events.GetEvents(ctx, tenantID, id)
		if err != nil {
			log.Warn().Str("execution_id", id).Err(err).Msg("failed to replay execution while listing paused")
			continue
		}
		exec := domain.ReconstructExecution(id, events)
		if exec.Status == domain.StatusPaused {
			paused = append(paused, exec)
		}
	}
	return paused, nil
}

// reload replays executionID's persisted event log into a fresh running
// context, used when Resume or a future Cancel targets an execution this
// process did not itself start (a cold resume after a restart).
func (s *Service) reload(ctx context.Context, tenantID, executionID string) (*runningExecution, error) {
	events, err := s.events.GetEvents(ctx, tenantID, executionID)
	if err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return nil, &storage.ErrNotFound{Kind: "execution", ID: executionID}
	}
	exec := domain.ReconstructExecution(executionID, events)

	wf, err := s.workflows.GetWorkflow(ctx, tenantID, exec.WorkflowID, exec.WorkflowVersion)
	if err != nil {
		return nil, fmt.Errorf("load workflow for execution %s: %w", executionID, err)
	}
	s.registerAgents(tenantID, wf.Agents)

	cancelCh := make(chan struct{})
	ectx := s.buildContext(context.Background(), tenantID, wf, exec, cancelCh)
	return &runningExecution{ectx: ectx, cancelCh: cancelCh}, nil
}
