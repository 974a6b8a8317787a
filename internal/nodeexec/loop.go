package nodeexec

import (
	"github.com/flowloom/fabric/internal/domain"
	"github.com/flowloom/fabric/internal/execctx"
)

// LoopExecutor does no work beyond copying the node's break target into the
// loop_exit_target context variable, which the transition resolution
// processor consults ahead of the node's transitionRules; looping back
// simply requires the graph to contain an edge into this node again.
// Passing through Success lets the existing transition machinery do the
// routing.
type LoopExecutor struct{}

func (l *LoopExecutor) Execute(ectx *execctx.Context, node *domain.Node) (domain.NodeResult, error) {
	if node.Loop == nil {
		return domain.NodeResult{}, domain.NewDomainError(domain.ErrCodeInvalidInput, "loop node missing LoopSpec", nil)
	}
	if node.Loop.LoopBreakTarget != "" {
		ectx.Execution.SetVariable("loop_exit_target", node.Loop.LoopBreakTarget)
	}
	return successResult(nil), nil
}
