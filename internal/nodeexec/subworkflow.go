package nodeexec

import (
	"fmt"

	"github.com/flowloom/fabric/internal/domain"
	"github.com/flowloom/fabric/internal/execctx"
)

// SubWorkflowExecutor maps parent variables into a child input, invokes a
// full recursive driver run of the child workflow, and maps its output back
// into the parent's variable context.
type SubWorkflowExecutor struct{}

func (s *SubWorkflowExecutor) Execute(ectx *execctx.Context, node *domain.Node) (domain.NodeResult, error) {
	if node.SubWorkflow == nil {
		return domain.NodeResult{}, domain.NewDomainError(domain.ErrCodeInvalidInput, "sub_workflow node missing SubWorkflowSpec", nil)
	}
	if ectx.RunSubWorkflow == nil {
		return failureResult(fmt.Errorf("node %s: no sub-workflow runner configured", node.ID)), nil
	}
	spec := node.SubWorkflow

	parentVars := ectx.Vars()
	input := make(map[string]any, len(spec.InputMappings))
	for _, m := range spec.InputMappings {
		if v, ok := parentVars[m.From]; ok {
			input[m.To] = v
		}
	}

	output, err := ectx.RunSubWorkflow(ectx.Ctx, spec.ChildWorkflowID, input)
	if err != nil {
		return failureResult(fmt.Errorf("node %s: sub-workflow %s failed: %w", node.ID, spec.ChildWorkflowID, err)), nil
	}

	mapped := make(map[string]any, len(spec.OutputMappings))
	for _, m := range spec.OutputMappings {
		if v, ok := output[m.From]; ok {
			mapped[m.To] = v
			ectx.Execution.SetVariable(m.To, v)
		}
	}

	return successResult(mapped), nil
}
