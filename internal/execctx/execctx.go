// Package execctx carries the dependencies a single execution's node
// executors and pipeline processors need, threaded explicitly rather than
// reached for through package-level globals — per the spec's direction to
// treat agent/tool/rubric registries as constructed-at-startup singletons
// passed explicitly through the execution context, never ambient state.
package execctx

import (
	"context"

	"github.com/flowloom/fabric/internal/agent"
	"github.com/flowloom/fabric/internal/domain"
	"github.com/flowloom/fabric/internal/registry"
	"github.com/flowloom/fabric/internal/rubric"
)

// ReviewDecision is the outcome of the human review processor's handler
// call (§4.2.3).
type ReviewDecisionKind string

const (
	ReviewApprove   ReviewDecisionKind = "approve"
	ReviewReject    ReviewDecisionKind = "reject"
	ReviewBacktrack ReviewDecisionKind = "backtrack"
)

type ReviewDecision struct {
	Kind         ReviewDecisionKind
	Patch        map[string]any // Approve
	Reason       string         // Reject / Backtrack
	TargetNodeID string         // Backtrack
	EditedPrompt string         // Backtrack, optional
}

// ReviewHandler gates post-execution review for nodes with a reviewConfig.
// A non-interactive implementation (auto-approve) makes the processor a
// no-op, matching the spec's allowance for synchronous auto-approval.
type ReviewHandler interface {
	Review(ctx context.Context, node *domain.Node, result domain.NodeResult, exec *domain.Execution, workflow *domain.Workflow) (ReviewDecision, error)
}

// ActionHandler is a registered callable an Action node's Send step
// dispatches to; externally configured outside the workflow definition.
type ActionHandler interface {
	ID() string
	Execute(ctx context.Context, payload map[string]any, vars map[string]any) (map[string]any, error)
}

// ToolInvoker calls a discovered tool by name, typically by routing through
// the MCP session manager's callTool round trip.
type ToolInvoker interface {
	InvokeTool(ctx context.Context, toolName string, args map[string]any) (any, error)
}

// GenericHandler backs a Generic node's executorType: an escape hatch for
// behavior that doesn't fit Standard/Action/Parallel, registered by name
// outside the workflow definition the same way ActionHandlers are.
type GenericHandler interface {
	Execute(ctx context.Context, config map[string]any, vars map[string]any) (map[string]any, error)
}

// Broadcaster publishes execution lifecycle events (C14) to subscribers.
type Broadcaster interface {
	Publish(tenantID, executionID string, eventName string, payload map[string]any)
}

// Command is a workflow-adjacent shell command entry for the Action
// executor's Execute step.
type Command struct {
	ID          string
	Command     string
	Environment map[string]string
	TimeoutMs   int64
}

// CommandRegistry resolves Action Execute steps to a shell command
// definition. The server-side action executor variant never consults one.
type CommandRegistry interface {
	Get(commandID string) (Command, bool)
}

// Context bundles everything a node executor or pipeline processor needs
// beyond the node and result it's already been handed. One Context is
// constructed per execution and is not safe to share across executions.
type Context struct {
	Ctx      context.Context
	TenantID string

	Workflow  *domain.Workflow
	Execution *domain.Execution

	Agents  *registry.AgentRegistry
	Tools   *registry.ToolRegistry
	Rubrics *rubric.Engine

	ActionHandlers  map[string]ActionHandler
	GenericHandlers map[string]GenericHandler
	Commands        CommandRegistry
	ToolInvoker    ToolInvoker
	Review         ReviewHandler
	RubricReview   rubric.ReviewHandler
	Judge          agent.Agent
	Broadcaster    Broadcaster

	// AllowShellExec gates the Action executor's Execute step; the
	// server-side variant (§4.3) sets this false and rejects Execute
	// outright, delegating Send(handlerId="mcp") to MCP instead.
	AllowShellExec bool

	// Cancelled is polled by the driver between nodes and may be consulted
	// by executors that support mid-step cancellation.
	Cancelled <-chan struct{}

	// RunSubWorkflow invokes a full recursive graph-driver run of childID
	// against input, returning its final output. Supplied by the driver/
	// service layer at context-construction time so nodeexec never imports
	// the graph driver package.
	RunSubWorkflow func(ctx context.Context, childID string, input map[string]any) (map[string]any, error)
}

// Vars returns the current execution's context snapshot, the read side of
// state.context used by templating, rubric evaluation, and transition rules.
func (c *Context) Vars() map[string]any {
	return c.Execution.Ctx.Snapshot()
}

// IsCancelled reports whether the execution's cancellation signal has fired.
func (c *Context) IsCancelled() bool {
	select {
	case <-c.Cancelled:
		return true
	default:
		return false
	}
}
