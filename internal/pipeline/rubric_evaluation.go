package pipeline

import (
	"fmt"

	"github.com/flowloom/fabric/internal/domain"
	"github.com/flowloom/fabric/internal/execctx"
	"github.com/flowloom/fabric/internal/rubric"
)

const defaultMaxRetryAttempts = 3

// RubricEvaluationProcessor scores a node's output against its rubricId
// (§4.2.4) and, when the evaluation fails and no Score transition rule on
// the node already claims the routing, computes an auto-backtrack target by
// severity band.
type RubricEvaluationProcessor struct {
	MaxRetryAttempts int
}

func (p *RubricEvaluationProcessor) maxRetryAttempts() int {
	if p.MaxRetryAttempts > 0 {
		return p.MaxRetryAttempts
	}
	return defaultMaxRetryAttempts
}

func (p *RubricEvaluationProcessor) Process(ectx *execctx.Context, node *domain.Node, result domain.NodeResult) (Outcome, error) {
	if node.RubricID == "" {
		return ContinueOutcome(), nil
	}

	loc := ectx.Workflow.Rubrics[node.RubricID]
	rb, err := ectx.Rubrics.Resolve(node.RubricID, loc)
	if err != nil {
		return FailOutcome(fmt.Sprintf("rubric %s not found for node %s: %v", node.RubricID, node.ID, err)), nil
	}

	outputText := fmt.Sprint(result.Output)
	eval, err := ectx.Rubrics.Evaluate(ectx.Ctx, rb, outputText, ectx.Vars(), rubric.Deps{Judge: ectx.Judge, Review: ectx.RubricReview})
	if err != nil {
		return FailOutcome(fmt.Sprintf("rubric evaluation failed for node %s: %v", node.ID, err)), nil
	}
	ectx.Execution.SetRubricEvaluation(node.ID, eval)

	if eval.Passed {
		return ContinueOutcome(), nil
	}
	if nodeHasMatchingScoreRule(node, eval.Score) {
		return ContinueOutcome(), nil
	}
	return p.autoBacktrack(ectx, node, eval), nil
}

func (p *RubricEvaluationProcessor) autoBacktrack(ectx *execctx.Context, node *domain.Node, eval *domain.RubricEvaluation) Outcome {
	score := eval.Score
	var target string

	switch {
	case score < 30:
		target = p.earliestRubricStep(ectx)
	case score < 60:
		target = p.mostRecentDifferentRubricStep(ectx, node)
	case score < 80:
		attempt, _ := toFloat(ectx.Vars()["retry_attempt"])
		if int(attempt) >= p.maxRetryAttempts() {
			return ContinueOutcome()
		}
		ectx.Execution.SetVariable("retry_attempt", attempt+1)
		target = node.ID
	default:
		return ContinueOutcome()
	}

	if target == "" {
		return ContinueOutcome()
	}

	ectx.Execution.SetVariable("backtrack_reason", fmt.Sprintf("%s rubric failure: %.1f", backtrackSeverity(score), score))
	if len(eval.FailedCriteria) > 0 {
		ectx.Execution.SetVariable("failed_criteria", eval.FailedCriteria)
	}
	if len(eval.Suggestions) > 0 {
		ectx.Execution.SetVariable("improvement_suggestions", eval.Suggestions)
	}

	scoreCopy := score
	ectx.Execution.Backtrack(node.ID, target, "automatic rubric backtrack", domain.BacktrackAutomatic, &scoreCopy)
	return ContinueOutcome()
}

// backtrackSeverity labels the severity band autoBacktrack routed on, for the
// human-readable backtrack_reason context variable (spec §8 S4's critical
// band reads "Critical rubric failure: 20.0").
func backtrackSeverity(score float64) string {
	switch {
	case score < 30:
		return "Critical"
	case score < 60:
		return "Major"
	default:
		return "Minor"
	}
}

func (p *RubricEvaluationProcessor) earliestRubricStep(ectx *execctx.Context) string {
	for _, step := range ectx.Execution.History {
		if n, ok := ectx.Workflow.Nodes[step.NodeID]; ok && n.RubricID != "" {
			return step.NodeID
		}
	}
	return ectx.Workflow.StartNode
}

func (p *RubricEvaluationProcessor) mostRecentDifferentRubricStep(ectx *execctx.Context, node *domain.Node) string {
	for i := len(ectx.Execution.History) - 1; i >= 0; i-- {
		step := ectx.Execution.History[i]
		n, ok := ectx.Workflow.Nodes[step.NodeID]
		if ok && n.RubricID != "" && n.RubricID != node.RubricID {
			return step.NodeID
		}
	}
	return ectx.Workflow.StartNode
}
