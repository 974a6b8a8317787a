package nodeexec

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/flowloom/fabric/internal/agent"
	"github.com/flowloom/fabric/internal/domain"
	"github.com/flowloom/fabric/internal/execctx"
	"github.com/flowloom/fabric/internal/template"
)

// StandardExecutor runs a single agent prompt/response round trip, or — when
// the node carries a PlanningConfig — a static or dynamically-generated plan
// of tool calls instead.
type StandardExecutor struct {
	Circuit *CircuitBreakers
}

func (s *StandardExecutor) Execute(ectx *execctx.Context, node *domain.Node) (domain.NodeResult, error) {
	if node.Standard == nil {
		return domain.NodeResult{}, domain.NewDomainError(domain.ErrCodeInvalidInput, "standard node missing StandardSpec", nil)
	}
	spec := node.Standard

	a, ok := ectx.Agents.Get(spec.AgentID)
	if !ok {
		return failureResult(fmt.Errorf("node %s: agent %q not registered", node.ID, spec.AgentID)), nil
	}

	if spec.PlanningConfig != nil && spec.PlanningConfig.Mode != domain.PlanningNone {
		return s.runPlan(ectx, node, a)
	}

	promptSource := spec.Prompt
	stagedKey := stagedPromptKey(node.ID)
	if staged, ok := ectx.Execution.Ctx.Get(stagedKey); ok {
		if s, ok := staged.(string); ok {
			promptSource = s
		}
		ectx.Execution.Ctx.Delete(stagedKey)
	}

	prompt := template.Resolve(promptSource, ectx.Vars())
	resp, err := Guard(s.Circuit, spec.AgentID, func() (agent.Response, error) {
		return a.Execute(ectx.Ctx, prompt, ectx.Vars())
	})
	if err != nil {
		return failureResult(err), nil
	}
	return successResult(resp.Text), nil
}

func (s *StandardExecutor) runPlan(ectx *execctx.Context, node *domain.Node, a agent.Agent) (domain.NodeResult, error) {
	spec := node.Standard

	var plan *Plan
	switch spec.PlanningConfig.Mode {
	case domain.PlanningStatic:
		plan = &Plan{Steps: spec.StaticPlan}
	case domain.PlanningDynamic:
		planner := &AgentPlanner{Judge: ectx.Judge}
		goal := template.Resolve(spec.Prompt, ectx.Vars())
		p, err := planner.Plan(ectx.Ctx, goal, ectx.Tools.List())
		if err != nil {
			return s.planFailure(node, err), nil
		}
		plan = p
	default:
		return failureResult(fmt.Errorf("node %s: unknown planning mode %q", node.ID, spec.PlanningConfig.Mode)), nil
	}
	notifyPlan(ectx, "plan.created", node.ID, map[string]any{"total_steps": len(plan.Steps)})

	if spec.PlanningConfig.ReviewBeforeExecute {
		approvedKey := planApprovedKey(node.ID)
		if _, approved := ectx.Execution.Ctx.Get(approvedKey); approved {
			ectx.Execution.Ctx.Delete(approvedKey)
		} else if ectx.Review == nil {
			// No in-process reviewer configured: surface the plan for
			// out-of-band approval and let the graph driver pause, per
			// §4.1 step 4's `_plan_review_required` pause contract. The
			// Execution Service's Resume sets approvedKey before re-driving
			// the driver, so this branch is taken at most once per pause.
			// _plan_id/_plan_total_steps ride along in Metadata so the driver
			// can stage a `_plan_<nodeID>` context variable for GET .../plan.
			return domain.NodeResult{
				Status: domain.ResultPending,
				Output: plan.Steps,
				Metadata: map[string]any{
					"_plan_review_required": true,
					"_plan_id":              uuid.NewString(),
					"_plan_total_steps":     len(plan.Steps),
				},
				Timestamp: now(),
			}, nil
		}
		if ectx.Review != nil {
			decision, err := ectx.Review.Review(ectx.Ctx, node, domain.NodeResult{Status: domain.ResultPending, Output: plan.Steps}, ectx.Execution, ectx.Workflow)
			if err != nil {
				return failureResult(err), nil
			}
			if decision.Kind != execctx.ReviewApprove {
				return s.planFailure(node, fmt.Errorf("plan rejected before execution: %s", decision.Reason)), nil
			}
		}
	}

	pe := &PlanExecutor{}
	steps, err := pe.Run(ectx, plan)
	if err != nil {
		return s.planFailure(node, err), nil
	}
	notifyPlan(ectx, "plan.completed", node.ID, map[string]any{"steps_executed": len(steps)})

	// Plan steps exhausted: summarize via the agent so the node still
	// produces a single textual output for downstream prompts/rubrics.
	summary := fmt.Sprintf("Executed %d plan step(s).", len(steps))
	resp, err := a.Execute(ectx.Ctx, summarizePrompt(spec.Prompt, steps), ectx.Vars())
	if err == nil {
		summary = resp.Text
	}
	return domain.NodeResult{
		Status:    domain.ResultSuccess,
		Output:    summary,
		Metadata:  map[string]any{"plan_steps": steps},
		Timestamp: now(),
	}, nil
}

func (s *StandardExecutor) planFailure(node *domain.Node, err error) domain.NodeResult {
	if node.Standard.PlanningConfig.PlanFailureTarget != "" {
		return domain.NodeResult{
			Status:    domain.ResultFailure,
			Error:     err.Error(),
			Metadata:  map[string]any{"_plan_failure_target": node.Standard.PlanningConfig.PlanFailureTarget},
			Timestamp: now(),
		}
	}
	return failureResult(err)
}

func summarizePrompt(goal string, steps []StepResult) string {
	return fmt.Sprintf("Goal: %s\n\nSummarize the outcome of %d executed step(s) for the record.", goal, len(steps))
}

// stagedPromptKey is the well-known context key the human-review post
// processor writes an edited prompt under when backtracking into a Standard
// node; this executor reads and clears it on its next visit.
func stagedPromptKey(targetNodeID string) string {
	return "_staged_prompt_" + targetNodeID
}

// planApprovedKey is the well-known context key the Execution Service's
// Resume sets, for exactly one re-visit, to unblock a node paused on
// `_plan_review_required` without an in-process ReviewHandler configured.
func planApprovedKey(nodeID string) string {
	return "_plan_approved_" + nodeID
}

// PlanApprovedKey exports planApprovedKey for callers outside this package
// (the Execution Service) that need to stage the same marker on Resume.
func PlanApprovedKey(nodeID string) string {
	return planApprovedKey(nodeID)
}

// notifyPlan publishes a plan-lifecycle SSE event (§6: plan.created,
// plan.revised, plan.completed) through the execution's broadcaster, a
// no-op when none is configured (e.g. in unit tests).
func notifyPlan(ectx *execctx.Context, eventName, nodeID string, extra map[string]any) {
	if ectx.Broadcaster == nil {
		return
	}
	payload := map[string]any{"node_id": nodeID}
	for k, v := range extra {
		payload[k] = v
	}
	ectx.Broadcaster.Publish(ectx.TenantID, ectx.Execution.ID, eventName, payload)
}
