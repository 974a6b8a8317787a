// Package service implements the Execution Service (C13): the orchestration
// boundary that loads a workflow from the Persistence Boundary (C12),
// instantiates an execution (C2), builds its tenant-bound execution context,
// and hands it to the Graph Driver (C9) — the entry point every external
// interface (REST, CLI) calls through rather than touching C9/C12 directly,
// grounded on the teacher's deleted mbflow.go facade's role (constructor
// injection of every subsystem into one orchestrator) with its workflow
// lookup and execution bookkeeping rebuilt for the tenant-scoped, two-
// repository persistence split this tree implements instead.
package service

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/puzpuzpuz/xsync/v3"
	"github.com/rs/zerolog/log"

	"github.com/flowloom/fabric/internal/agent"
	"github.com/flowloom/fabric/internal/broadcaster"
	"github.com/flowloom/fabric/internal/domain"
	"github.com/flowloom/fabric/internal/execctx"
	"github.com/flowloom/fabric/internal/graphdriver"
	"github.com/flowloom/fabric/internal/nodeexec"
	"github.com/flowloom/fabric/internal/registry"
	"github.com/flowloom/fabric/internal/rubric"
	"github.com/flowloom/fabric/internal/storage"
)

// ErrNotRunning is returned by Cancel when the named execution has no live
// in-memory run to act on.
type ErrNotRunning struct {
	ExecutionID string
}

func (e *ErrNotRunning) Error() string {
	return fmt.Sprintf("execution %s is not running", e.ExecutionID)
}

// ToolInvokerFactory builds the execctx.ToolInvoker bound to one tenant's
// MCP session, deferred to a factory so the service package never imports
// internal/mcp directly — the same seam execctx.RunSubWorkflow uses to keep
// nodeexec out of graphdriver's import path.
type ToolInvokerFactory func(tenantID string) execctx.ToolInvoker

// Deps bundles every external dependency the Execution Service threads
// through to each execution's context. Handler fields are optional; nil
// leaves the corresponding pipeline stage a no-op per its own doc comment.
type Deps struct {
	Workflows   storage.WorkflowRepository
	Events      storage.EventStore
	Broadcaster *broadcaster.Broadcaster
	Tenants     *registry.TenantRegistries
	Rubrics     *rubric.Engine
	Dispatcher  *nodeexec.Dispatcher

	Judge              agent.Agent
	Review             execctx.ReviewHandler
	RubricReview       rubric.ReviewHandler
	ActionHandlers     map[string]execctx.ActionHandler
	GenericHandlers    map[string]execctx.GenericHandler
	Commands           execctx.CommandRegistry
	ToolInvokerFactory ToolInvokerFactory
	AllowShellExec     bool

	// DefaultAgentAPIKey backs every workflow agent whose AgentConfig.Config
	// doesn't supply its own "apiKey" override, mirroring OpenAIAgent's own
	// defaultAPIKey fallback.
	DefaultAgentAPIKey string
}

type runningExecution struct {
	ectx       *execctx.Context
	cancelOnce sync.Once
	cancelCh   chan struct{}
}

// Service is the Execution Service. One instance is shared across all
// tenants; every operation takes tenantID explicitly and never trusts
// ambient state.
type Service struct {
	workflows   storage.WorkflowRepository
	events      storage.EventStore
	broadcaster *broadcaster.Broadcaster
	tenants     *registry.TenantRegistries
	rubrics     *rubric.Engine
	driver      *graphdriver.Driver

	judge              agent.Agent
	review             execctx.ReviewHandler
	rubricReview       rubric.ReviewHandler
	actionHandlers     map[string]execctx.ActionHandler
	genericHandlers    map[string]execctx.GenericHandler
	commands           execctx.CommandRegistry
	toolInvokerFactory ToolInvokerFactory
	allowShellExec     bool
	defaultAgentAPIKey string

	running *xsync.MapOf[string, *runningExecution]
}

// New wires the Execution Service from its dependencies. checkpoints adapts
// deps.Events into the graphdriver.StateRepository the driver checkpoints
// through.
func New(deps Deps) *Service {
	checkpoints := storage.NewCheckpointStore(deps.Events)
	return &Service{
		workflows:          deps.Workflows,
		events:             deps.Events,
		broadcaster:        deps.Broadcaster,
		tenants:            deps.Tenants,
		rubrics:            deps.Rubrics,
		driver:             graphdriver.New(deps.Dispatcher, checkpoints),
		judge:              deps.Judge,
		review:             deps.Review,
		rubricReview:       deps.RubricReview,
		actionHandlers:     deps.ActionHandlers,
		genericHandlers:    deps.GenericHandlers,
		commands:           deps.Commands,
		toolInvokerFactory: deps.ToolInvokerFactory,
		allowShellExec:     deps.AllowShellExec,
		defaultAgentAPIKey: deps.DefaultAgentAPIKey,
		running:            xsync.NewMapOf[string, *runningExecution](),
	}
}

func runningKey(tenantID, executionID string) string {
	return tenantID + "/" + executionID
}

// LoadLatestWorkflow returns the highest-versioned workflow registered under
// id for tenantID. Version ordering is lexicographic: workflows are
// authored with monotonically increasing string versions (§6 gives no
// numeric-version guarantee), so a byte-wise max is the only comparison that
// needs no assumption about the version string's shape beyond "later
// deploys sort higher."
func (s *Service) LoadLatestWorkflow(ctx context.Context, tenantID, workflowID string) (*domain.Workflow, error) {
	all, err := s.workflows.ListWorkflows(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	var latest *domain.Workflow
	for _, wf := range all {
		if wf.ID != workflowID {
			continue
		}
		if latest == nil || wf.Version > latest.Version {
			latest = wf
		}
	}
	if latest == nil {
		return nil, &storage.ErrNotFound{Kind: "workflow", ID: workflowID}
	}
	return latest, nil
}

// SaveWorkflow upserts wf and reports whether it replaced an existing
// (id, version) pair (false means newly created), matching the REST API's
// 200-vs-201 distinction. It also materializes wf.Agents into the tenant's
// AgentRegistry, since a workflow's agents map is the only place an agent's
// model/temperature/timeout configuration is authored (§3: "agents:
// map<agentId, AgentConfig>").
func (s *Service) SaveWorkflow(ctx context.Context, tenantID string, wf *domain.Workflow) (updated bool, err error) {
	if err := wf.ValidateForExecution(); err != nil {
		return false, err
	}
	_, err = s.workflows.GetWorkflow(ctx, tenantID, wf.ID, wf.Version)
	updated = err == nil
	if err := s.workflows.SaveWorkflow(ctx, tenantID, wf); err != nil {
		return false, err
	}
	s.registerAgents(tenantID, wf.Agents)
	return updated, nil
}

// registerAgents wires every AgentConfig entry into tenantID's
// AgentRegistry as a live agent.OpenAIAgent, the engine's single Agent
// implementation (§1: the engine never imports a second provider SDK).
func (s *Service) registerAgents(tenantID string, agents map[string]domain.AgentConfig) {
	registry := s.tenants.Agents(tenantID)
	for id, cfg := range agents {
		apiKey, _ := cfg.Config["apiKey"].(string)
		a := agent.NewOpenAIAgent(agent.Config{
			ID:          id,
			Model:       cfg.Model,
			Temperature: cfg.Temperature,
			TimeoutSec:  cfg.TimeoutSec,
			APIKey:      apiKey,
		}, s.defaultAgentAPIKey)
		if err := registry.Register(a); err != nil {
			log.Warn().Str("tenant_id", tenantID).Str("agent_id", id).Err(err).Msg("failed to register workflow agent")
		}
	}
}

// ListWorkflowSummaries returns {id, version} pairs for every workflow
// version registered under tenantID, sorted for stable listing.
type WorkflowSummary struct {
	ID      string
	Version string
}

func (s *Service) ListWorkflowSummaries(ctx context.Context, tenantID string) ([]WorkflowSummary, error) {
	all, err := s.workflows.ListWorkflows(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	out := make([]WorkflowSummary, 0, len(all))
	for _, wf := range all {
		out = append(out, WorkflowSummary{ID: wf.ID, Version: wf.Version})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ID != out[j].ID {
			return out[i].ID < out[j].ID
		}
		return out[i].Version < out[j].Version
	})
	return out, nil
}

func (s *Service) DeleteWorkflow(ctx context.Context, tenantID, id, version string) error {
	return s.workflows.DeleteWorkflow(ctx, tenantID, id, version)
}

// buildContext assembles one execution's execctx.Context, wiring the
// tenant-scoped agent/tool registries, the shared rubric engine, and the
// RunSubWorkflow closure that lets a SubWorkflow node recurse back into this
// same Service without nodeexec importing it.
func (s *Service) buildContext(ctx context.Context, tenantID string, wf *domain.Workflow, exec *domain.Execution, cancelCh chan struct{}) *execctx.Context {
	var invoker execctx.ToolInvoker
	if s.toolInvokerFactory != nil {
		invoker = s.toolInvokerFactory(tenantID)
	}

	ectx := &execctx.Context{
		Ctx:             ctx,
		TenantID:        tenantID,
		Workflow:        wf,
		Execution:       exec,
		Agents:          s.tenants.Agents(tenantID),
		Tools:           s.tenants.Tools(tenantID),
		Rubrics:         s.rubrics,
		ActionHandlers:  s.actionHandlers,
		GenericHandlers: s.genericHandlers,
		Commands:        s.commands,
		ToolInvoker:     invoker,
		Review:          s.review,
		RubricReview:    s.rubricReview,
		Judge:           s.judge,
		Broadcaster:     s.broadcaster,
		AllowShellExec:  s.allowShellExec,
		Cancelled:       cancelCh,
	}
	ectx.RunSubWorkflow = func(ctx context.Context, childID string, input map[string]any) (map[string]any, error) {
		return s.runSubWorkflow(ctx, tenantID, childID, input, cancelCh)
	}
	return ectx
}

// runSubWorkflow executes a child workflow to completion in the caller's own
// goroutine — the SubWorkflow executor already runs synchronously inside a
// parent node step (§5: "node executors run sequentially with respect to
// the driver"), so no new goroutine or running-execution table entry is
// needed here. The child shares the parent's cancellation token, so
// cancelling a parent execution also stops any sub-workflow it is waiting
// on.
func (s *Service) runSubWorkflow(ctx context.Context, tenantID, childID string, input map[string]any, cancelCh chan struct{}) (map[string]any, error) {
	wf, err := s.LoadLatestWorkflow(ctx, tenantID, childID)
	if err != nil {
		return nil, fmt.Errorf("load sub-workflow %s: %w", childID, err)
	}
	exec := domain.NewExecution(uuid.NewString(), wf.ID, wf.Version, tenantID, wf.StartNode, input)
	childCtx := s.buildContext(ctx, tenantID, wf, exec, cancelCh)

	if err := s.driver.Run(childCtx); err != nil {
		return nil, err
	}
	switch exec.Status {
	case domain.StatusCompleted:
		return exec.Output, nil
	default:
		return nil, fmt.Errorf("sub-workflow %s ended in status %s: %s", childID, exec.Status, exec.Error)
	}
}

func (s *Service) logExecErr(executionID string, err error) {
	if err == nil {
		return
	}
	log.Error().Str("execution_id", executionID).Err(err).Msg("execution ended with error")
}
