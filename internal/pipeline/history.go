package pipeline

import (
	"github.com/flowloom/fabric/internal/domain"
	"github.com/flowloom/fabric/internal/execctx"
)

// HistoryProcessor appends the node's result to the execution's append-only
// history. Rubric evaluation (run later in the chain) attaches its verdict
// to this same node id separately, via SetRubricEvaluation.
type HistoryProcessor struct{}

func (p *HistoryProcessor) Process(ectx *execctx.Context, node *domain.Node, result domain.NodeResult) (Outcome, error) {
	ectx.Execution.CompleteNode(node.ID, result, nil)
	return ContinueOutcome(), nil
}
