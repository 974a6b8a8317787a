// Package graphdriver implements the Graph Driver (C9): the step loop that
// walks state.currentNode through a workflow, dispatching each node to its
// executor (C7) and running the post-execution pipeline (C8) between steps,
// grounded on the teacher's WorkflowEngine.ExecuteWorkflow three-phase loop
// restructured around a single cursor instead of wave-based topological
// scheduling, per the spec's single-node-at-a-time driver contract.
package graphdriver

import (
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/flowloom/fabric/internal/domain"
	"github.com/flowloom/fabric/internal/execctx"
	"github.com/flowloom/fabric/internal/nodeexec"
	"github.com/flowloom/fabric/internal/pipeline"
	"github.com/flowloom/fabric/internal/tracing"
)

// defaultStepBudget is the floor of the step budget stepBudget applies to
// every run, whether or not the workflow sets maxExecutionTime.
const defaultStepBudget = 10_000

// StateRepository persists execution snapshots at the checkpoint-safe
// moments the driver calls out (§4.1 step 2, and on pause). Checkpoint is
// called with an execution that may hold uncommitted events; the storage
// implementation (storage.CheckpointStore) appends them together with the
// checkpoint event itself.
type StateRepository interface {
	Checkpoint(ectx *execctx.Context) error
}

// Driver runs the step loop for a single execution against a single
// dispatcher/pipeline pair. It holds no per-execution state itself — every
// mutation lands on the execctx.Context's embedded *domain.Execution.
type Driver struct {
	Dispatcher *nodeexec.Dispatcher
	Pipeline   *pipeline.Pipeline
	State      StateRepository // optional; nil means no checkpointing
}

// New builds a Driver with the standard pipeline (C8) wired in.
func New(dispatcher *nodeexec.Dispatcher, state StateRepository) *Driver {
	return &Driver{Dispatcher: dispatcher, Pipeline: pipeline.New(), State: state}
}

// Run drives ectx.Execution from its current node to a terminal status,
// returning once Completed, Failed, Cancelled, Rejected, or Paused.
func (d *Driver) Run(ectx *execctx.Context) error {
	budget := stepBudget(ectx.Workflow)
	deadline := executionDeadline(ectx.Workflow.Config)
	started := time.Now()

	for step := 0; ; step++ {
		if step >= budget {
			return d.fail(ectx, fmt.Sprintf("step budget of %d exceeded", budget))
		}
		if !deadline.IsZero() && time.Now().After(deadline) {
			return d.fail(ectx, fmt.Sprintf("execution exceeded maxExecutionTime of %s", ectx.Workflow.Config.MaxExecutionTime))
		}
		if ectx.IsCancelled() {
			return d.cancel(ectx)
		}

		nodeID := ectx.Execution.CurrentNode
		node, ok := ectx.Workflow.Nodes[nodeID]
		if !ok {
			return d.fail(ectx, "execution references unknown node "+nodeID)
		}

		if node.Type == domain.NodeTypeEnd {
			return d.complete(ectx, node)
		}

		if ectx.Workflow.Config.CheckpointPolicy != domain.CheckpointOnPause {
			if err := d.checkpoint(ectx); err != nil {
				return d.fail(ectx, fmt.Sprintf("checkpoint failed at node %s: %v", nodeID, err))
			}
		}

		attempt := ectx.Execution.RetryCounts[nodeID]
		ectx.Execution.StartNode(nodeID, attempt)
		d.notify(ectx, "step.started", map[string]any{"node_id": nodeID, "attempt": attempt})

		baseCtx := ectx.Ctx
		spanCtx, span := tracing.StartNodeSpan(baseCtx, ectx.Execution.ID, nodeID, string(node.Type))
		ectx.Ctx = spanCtx
		result, err := d.Dispatcher.Execute(ectx, node)
		ectx.Ctx = baseCtx
		tracing.EndNode(span, err)
		if err != nil {
			return d.fail(ectx, fmt.Sprintf("node %s: executor error: %v", nodeID, err))
		}

		if result.Status == domain.ResultPending {
			if required, _ := result.Metadata["_plan_review_required"].(bool); required {
				d.stagePlan(ectx, nodeID, result)
				return d.pause(ectx, nodeID, "plan review required")
			}
		}

		outcome, err := d.Pipeline.Run(ectx, node, result)
		if err != nil {
			return d.fail(ectx, err.Error())
		}
		switch outcome.Disposition {
		case pipeline.Rejected:
			// ectx.Execution.Reject was already raised by the human review
			// processor; nothing further to record here.
			d.notify(ectx, "execution.error", map[string]any{"reason": outcome.Reason, "kind": "rejected"})
			return nil
		case pipeline.Failure:
			return d.fail(ectx, outcome.Reason)
		}

		d.notify(ectx, "step.completed", map[string]any{"node_id": nodeID, "next_node": ectx.Execution.CurrentNode})

		log.Debug().
			Str("execution_id", ectx.Execution.ID).
			Str("node_id", nodeID).
			Str("next_node", ectx.Execution.CurrentNode).
			Dur("elapsed", time.Since(started)).
			Msg("step completed")
	}
}

func (d *Driver) complete(ectx *execctx.Context, endNode *domain.Node) error {
	exitStatus := domain.ExitSuccess
	if endNode.End != nil {
		exitStatus = endNode.End.ExitStatus
	}
	ectx.Execution.Complete(exitStatus, ectx.Vars())
	_ = d.checkpoint(ectx)
	d.notify(ectx, "execution.completed", map[string]any{"exit_status": string(exitStatus)})
	return nil
}

func (d *Driver) fail(ectx *execctx.Context, reason string) error {
	ectx.Execution.Fail(reason)
	_ = d.checkpoint(ectx)
	d.notify(ectx, "execution.error", map[string]any{"reason": reason, "kind": "failure"})
	return domain.NewDomainError(domain.ErrCodeInvalidState, reason, nil)
}

func (d *Driver) cancel(ectx *execctx.Context) error {
	ectx.Execution.Cancel("cancellation signal received")
	_ = d.checkpoint(ectx)
	d.notify(ectx, "execution.error", map[string]any{"reason": "cancelled", "kind": "cancelled"})
	return nil
}

// stagePlan records the plan a node just raised for out-of-band review under
// a `_plan_<nodeID>` context variable, in the `{planId, totalSteps,
// currentStep}` shape GET /api/v1/executions/{id}/plan returns verbatim
// (spec.md:305). Going through SetVariable rather than writing ectx.Execution
// directly keeps the write event-sourced, so a replayed execution recovers
// the same staged plan a live one sees.
func (d *Driver) stagePlan(ectx *execctx.Context, nodeID string, result domain.NodeResult) {
	planID, _ := result.Metadata["_plan_id"].(string)
	totalSteps, _ := result.Metadata["_plan_total_steps"].(int)
	ectx.Execution.SetVariable("_plan_"+nodeID, map[string]any{
		"planId":      planID,
		"totalSteps":  totalSteps,
		"currentStep": 0,
	})
}

func (d *Driver) pause(ectx *execctx.Context, nodeID, reason string) error {
	ectx.Execution.Pause(nodeID, reason)
	_ = d.checkpoint(ectx)
	d.notify(ectx, "execution.paused", map[string]any{"node_id": nodeID, "reason": reason})
	return nil
}

func (d *Driver) checkpoint(ectx *execctx.Context) error {
	if d.State == nil {
		return nil
	}
	return d.State.Checkpoint(ectx)
}

func (d *Driver) notify(ectx *execctx.Context, eventName string, payload map[string]any) {
	if ectx.Broadcaster == nil {
		return
	}
	ectx.Broadcaster.Publish(ectx.TenantID, ectx.Execution.ID, eventName, payload)
}

// stepBudget is the loop-count backstop layered under the wall-clock
// deadline: a node graph with N nodes and automatic backtracking shouldn't
// need more than a few hundred visits per node to either converge or exhaust
// its rubric retry caps, so we scale with graph size and floor at the
// default for tiny or misconfigured workflows.
func stepBudget(wf *domain.Workflow) int {
	perNode := len(wf.Nodes) * 200
	if perNode > defaultStepBudget {
		return perNode
	}
	return defaultStepBudget
}

func executionDeadline(cfg domain.ExecutionConfig) time.Time {
	if cfg.MaxExecutionTime <= 0 {
		return time.Time{}
	}
	return time.Now().Add(cfg.MaxExecutionTime)
}
