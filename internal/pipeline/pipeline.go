package pipeline

import (
	"fmt"

	"github.com/flowloom/fabric/internal/domain"
	"github.com/flowloom/fabric/internal/execctx"
)

// Pipeline runs the fixed processor chain in declaration order, returning the
// first terminal Outcome it hits or ContinueOutcome() once every processor
// has run clean — at which point the driver is free to advance past node.
type Pipeline struct {
	stages []Processor
}

// New builds the standard post-execution pipeline: output extraction,
// history recording, human review, rubric evaluation, then transition
// resolution, in that fixed order per §4.2.
func New() *Pipeline {
	return &Pipeline{stages: []Processor{
		&OutputExtractionProcessor{},
		&HistoryProcessor{},
		&HumanReviewProcessor{},
		&RubricEvaluationProcessor{},
		&TransitionResolutionProcessor{},
	}}
}

func (p *Pipeline) Run(ectx *execctx.Context, node *domain.Node, result domain.NodeResult) (Outcome, error) {
	for _, stage := range p.stages {
		outcome, err := stage.Process(ectx, node, result)
		if err != nil {
			return Outcome{}, fmt.Errorf("node %s: %w", node.ID, err)
		}
		if outcome.IsTerminal() {
			return outcome, nil
		}
	}
	return ContinueOutcome(), nil
}
