package pipeline

import (
	"fmt"

	"github.com/flowloom/fabric/internal/domain"
	"github.com/flowloom/fabric/internal/execctx"
)

// TransitionResolutionProcessor moves the execution cursor once a node body
// and the processors ahead of it in the chain have all run, per §4.2.5's
// strategy precedence.
type TransitionResolutionProcessor struct{}

func (p *TransitionResolutionProcessor) Process(ectx *execctx.Context, node *domain.Node, result domain.NodeResult) (Outcome, error) {
	// A prior processor (human review, rubric auto-backtrack) already
	// redirected the cursor; do not override it.
	if ectx.Execution.CurrentNode != node.ID {
		return ContinueOutcome(), nil
	}

	if target := ectx.Execution.LoopBreakTarget; target != "" {
		ectx.Execution.SetLoopBreakTarget("")
		ectx.Execution.MoveCursor(node.ID, target)
		return ContinueOutcome(), nil
	}

	if node.Type == domain.NodeTypeLoop {
		if target, ok := ectx.Vars()["loop_exit_target"]; ok {
			if targetID, ok := target.(string); ok && targetID != "" {
				ectx.Execution.MoveCursor(node.ID, targetID)
				return ContinueOutcome(), nil
			}
		}
	}

	if target, ok := result.Metadata["_plan_failure_target"].(string); ok && target != "" {
		ectx.Execution.MoveCursor(node.ID, target)
		return ContinueOutcome(), nil
	}

	for _, rule := range node.TransitionRules {
		target, matched := p.evaluateRule(ectx, node, result, rule)
		if matched {
			ectx.Execution.MoveCursor(node.ID, target)
			return ContinueOutcome(), nil
		}
	}

	return FailOutcome(fmt.Sprintf("no valid transition from %s", node.ID)), nil
}

func (p *TransitionResolutionProcessor) evaluateRule(ectx *execctx.Context, node *domain.Node, result domain.NodeResult, rule domain.TransitionRule) (string, bool) {
	switch rule.Kind {
	case domain.TransitionSuccess:
		if result.Status == domain.ResultSuccess {
			return rule.Target, true
		}
		return "", false

	case domain.TransitionFailure:
		if result.Status != domain.ResultFailure {
			return "", false
		}
		count := ectx.Execution.IncrementRetryCount(node.ID)
		if count <= rule.MaxRetries {
			return rule.Target, true
		}
		return "", false

	case domain.TransitionScore:
		score, ok := p.resolveScore(ectx, node)
		if !ok {
			return "", false
		}
		return matchScoreCondition(score, rule.Conditions)

	case domain.TransitionAlways:
		return rule.Target, true

	default:
		return "", false
	}
}

func (p *TransitionResolutionProcessor) resolveScore(ectx *execctx.Context, node *domain.Node) (float64, bool) {
	if eval, ok := ectx.Execution.RubricEvaluations[node.ID]; ok && eval != nil {
		return eval.Score, true
	}
	return selfReportedScore(ectx.Vars())
}
