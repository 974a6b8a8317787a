package pipeline

import (
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/flowloom/fabric/internal/domain"
	"github.com/flowloom/fabric/internal/execctx"
	"github.com/flowloom/fabric/internal/validate"
)

// OutputExtractionProcessor validates a node's raw output, stores it in
// context keyed by node id, and — for Standard nodes declaring
// outputParams — lifts matching top-level JSON keys into context directly.
type OutputExtractionProcessor struct{}

func (p *OutputExtractionProcessor) Process(ectx *execctx.Context, node *domain.Node, result domain.NodeResult) (Outcome, error) {
	if result.Output == nil {
		return ContinueOutcome(), nil
	}

	text := fmt.Sprint(result.Output)
	if err := validate.Output(text); err != nil {
		return FailOutcome(fmt.Sprintf("output validation failed for node %s: %v", node.ID, err)), nil
	}

	ectx.Execution.SetVariable(node.ID, result.Output)

	if node.Type == domain.NodeTypeStandard && node.Standard != nil && len(node.Standard.OutputParams) > 0 {
		p.liftParams(ectx, node, text)
	}

	return ContinueOutcome(), nil
}

func (p *OutputExtractionProcessor) liftParams(ectx *execctx.Context, node *domain.Node, text string) {
	var parsed map[string]any
	if err := json.Unmarshal([]byte(text), &parsed); err != nil {
		log.Warn().Str("node_id", node.ID).Err(err).Msg("output is not valid JSON, skipping outputParams extraction")
		return
	}
	for _, param := range node.Standard.OutputParams {
		if v, ok := parsed[param]; ok {
			ectx.Execution.SetVariable(param, v)
		}
	}
}
