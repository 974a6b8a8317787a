package pipeline

import (
	"fmt"

	"github.com/flowloom/fabric/internal/domain"
	"github.com/flowloom/fabric/internal/execctx"
)

// HumanReviewProcessor gates continuation on a ReviewHandler decision for
// Standard nodes carrying a non-Off reviewConfig (§4.2.3). A nil handler
// makes this a no-op, modeling a non-interactive auto-approve deployment.
type HumanReviewProcessor struct{}

func (p *HumanReviewProcessor) Process(ectx *execctx.Context, node *domain.Node, result domain.NodeResult) (Outcome, error) {
	if node.Standard == nil || node.Standard.ReviewConfig == nil {
		return ContinueOutcome(), nil
	}
	cfg := node.Standard.ReviewConfig

	switch cfg.Mode {
	case domain.ReviewOff:
		return ContinueOutcome(), nil
	case domain.ReviewOptional:
		if result.Status == domain.ResultSuccess {
			return ContinueOutcome(), nil
		}
	case domain.ReviewRequired:
		// always invoke, fall through
	default:
		return ContinueOutcome(), nil
	}

	if ectx.Review == nil {
		return ContinueOutcome(), nil
	}

	decision, err := ectx.Review.Review(ectx.Ctx, node, result, ectx.Execution, ectx.Workflow)
	if err != nil {
		return Outcome{}, fmt.Errorf("node %s: review handler failed: %w", node.ID, err)
	}

	switch decision.Kind {
	case execctx.ReviewApprove:
		for k, v := range decision.Patch {
			ectx.Execution.SetVariable(k, v)
		}
		return ContinueOutcome(), nil

	case execctx.ReviewReject:
		ectx.Execution.Reject(node.ID, decision.Reason)
		return RejectOutcome(decision.Reason), nil

	case execctx.ReviewBacktrack:
		ectx.Execution.Backtrack(node.ID, decision.TargetNodeID, decision.Reason, domain.BacktrackManual, nil)
		if target, ok := ectx.Workflow.Nodes[decision.TargetNodeID]; ok && target.Type == domain.NodeTypeStandard && decision.EditedPrompt != "" {
			ectx.Execution.SetVariable(stagedPromptKey(decision.TargetNodeID), decision.EditedPrompt)
		}
		return ContinueOutcome(), nil

	default:
		return Outcome{}, fmt.Errorf("node %s: unknown review decision kind %q", node.ID, decision.Kind)
	}
}

// stagedPromptKey is the well-known context key the Standard executor
// consults (and clears) the next time it visits targetNodeID.
func stagedPromptKey(targetNodeID string) string {
	return "_staged_prompt_" + targetNodeID
}
