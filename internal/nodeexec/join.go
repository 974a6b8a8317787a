package nodeexec

import (
	"fmt"
	"time"

	"github.com/flowloom/fabric/internal/domain"
	"github.com/flowloom/fabric/internal/execctx"
)

// JoinExecutor awaits one or more fork contexts and merges their branch
// results per node.Join.MergeStrategy.
type JoinExecutor struct {
	Coordinator ForkJoinCoordinator
}

func (j *JoinExecutor) Execute(ectx *execctx.Context, node *domain.Node) (domain.NodeResult, error) {
	if node.Join == nil {
		return domain.NodeResult{}, domain.NewDomainError(domain.ErrCodeInvalidInput, "join node missing JoinSpec", nil)
	}
	spec := node.Join

	timeout := time.Duration(spec.TimeoutMs) * time.Millisecond
	grouped, err := j.Coordinator.Await(ectx.Ctx, spec.AwaitTargets, timeout)
	if err != nil {
		return failureResult(err), nil
	}

	// Flatten in declared fork order, then declared target order within
	// each fork, giving a single deterministic branch sequence.
	var branches []domain.NodeResult
	var branchErrs []error
	for _, forkID := range spec.AwaitTargets {
		for _, br := range grouped[forkID] {
			branches = append(branches, br.Result)
			branchErrs = append(branchErrs, br.Err)
		}
	}

	switch spec.MergeStrategy {
	case domain.JoinFirstSuccess:
		for i, r := range branches {
			if branchErrs[i] == nil && r.Status == domain.ResultSuccess {
				return j.store(ectx, node, r.Output), nil
			}
		}
		return failureResult(fmt.Errorf("join %s: no branch succeeded", node.ID)), nil

	case domain.JoinMajority, domain.JoinCollectAll:
		outputs := make([]any, len(branches))
		for i, r := range branches {
			if branchErrs[i] != nil || r.Status != domain.ResultSuccess {
				if spec.FailOnAnyError {
					return failureResult(fmt.Errorf("join %s: branch %d failed", node.ID, i)), nil
				}
				outputs[i] = map[string]any{"error": branchErrorMessage(branchErrs[i], r)}
				continue
			}
			outputs[i] = r.Output
		}
		return j.store(ectx, node, outputs), nil

	default:
		return failureResult(fmt.Errorf("join %s: unknown merge strategy %q", node.ID, spec.MergeStrategy)), nil
	}
}

func branchErrorMessage(err error, r domain.NodeResult) string {
	if err != nil {
		return err.Error()
	}
	return r.Error
}

func (j *JoinExecutor) store(ectx *execctx.Context, node *domain.Node, value any) domain.NodeResult {
	if node.Join.OutputField != "" {
		ectx.Execution.SetVariable(node.Join.OutputField, value)
	}
	return domain.NodeResult{Status: domain.ResultSuccess, Output: value, Timestamp: now()}
}
