package nodeexec

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/flowloom/fabric/internal/agent"
	"github.com/flowloom/fabric/internal/domain"
	"github.com/flowloom/fabric/internal/execctx"
	"github.com/flowloom/fabric/internal/registry"
	"github.com/flowloom/fabric/internal/template"
)

// Plan is an ordered list of tool invocations to run before the Standard
// node's executor considers itself done.
type Plan struct {
	Steps []domain.PlanStep
}

// StepResult is one executed plan step's outcome.
type StepResult struct {
	Tool   string
	Output any
	Error  string
}

// Planner produces a Plan for a goal given the tools currently available.
// The Dynamic planning mode asks one for a fresh plan every time; the
// Static mode never calls it (node.Standard.StaticPlan is used directly).
type Planner interface {
	Plan(ctx context.Context, goal string, tools []registry.ToolDescriptor) (*Plan, error)
}

// AgentPlanner prompts a judge/planner Agent to emit a JSON list of
// {tool, args} steps, grounded on the teacher's planner.go LLM-driven
// planning approach.
type AgentPlanner struct {
	Judge agent.Agent
}

func (p *AgentPlanner) Plan(ctx context.Context, goal string, tools []registry.ToolDescriptor) (*Plan, error) {
	if p.Judge == nil {
		return nil, fmt.Errorf("dynamic planning requires a configured judge agent")
	}
	var toolLines []string
	for _, t := range tools {
		toolLines = append(toolLines, fmt.Sprintf("- %s: %s", t.Name, t.Description))
	}
	prompt := fmt.Sprintf(
		"Goal: %s\n\nAvailable tools:\n%s\n\nRespond with ONLY a JSON array of steps, each {\"tool\": string, \"args\": object}.",
		goal, strings.Join(toolLines, "\n"),
	)
	resp, err := p.Judge.Execute(ctx, prompt, nil)
	if err != nil {
		return nil, fmt.Errorf("planner agent call failed: %w", err)
	}
	var steps []domain.PlanStep
	if err := json.Unmarshal([]byte(extractJSONArray(resp.Text)), &steps); err != nil {
		return nil, fmt.Errorf("planner agent returned invalid plan JSON: %w", err)
	}
	return &Plan{Steps: steps}, nil
}

func extractJSONArray(s string) string {
	start := strings.Index(s, "[")
	end := strings.LastIndex(s, "]")
	if start == -1 || end == -1 || end < start {
		return s
	}
	return s[start : end+1]
}

// PlanExecutor runs each step of a Plan through the Tool Registry/Invoker,
// collecting StepResults. A step failure stops the plan.
type PlanExecutor struct{}

func (pe *PlanExecutor) Run(ectx *execctx.Context, plan *Plan) ([]StepResult, error) {
	vars := ectx.Vars()
	results := make([]StepResult, 0, len(plan.Steps))
	for _, step := range plan.Steps {
		if _, ok := ectx.Tools.Get(step.Tool); !ok {
			return results, fmt.Errorf("plan step references unknown tool %q", step.Tool)
		}
		args := template.ResolveMap(step.Args, vars)
		if ectx.ToolInvoker == nil {
			return results, fmt.Errorf("no tool invoker configured to run step %q", step.Tool)
		}
		out, err := ectx.ToolInvoker.InvokeTool(ectx.Ctx, step.Tool, args)
		if err != nil {
			results = append(results, StepResult{Tool: step.Tool, Error: err.Error()})
			return results, fmt.Errorf("plan step %q failed: %w", step.Tool, err)
		}
		results = append(results, StepResult{Tool: step.Tool, Output: out})
	}
	return results, nil
}
