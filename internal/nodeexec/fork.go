package nodeexec

import (
	"context"
	"time"

	"github.com/flowloom/fabric/internal/domain"
	"github.com/flowloom/fabric/internal/execctx"
	"github.com/flowloom/fabric/internal/forkjoin"
)

// ForkJoinCoordinator is the subset of *forkjoin.Coordinator the fork and
// join executors need; named here so nodeexec doesn't otherwise depend on
// forkjoin's concrete type beyond construction.
type ForkJoinCoordinator interface {
	Register(forkID string, targets []string) error
	Complete(forkID, targetID string, result domain.NodeResult, err error)
	Await(ctx context.Context, forkIDs []string, timeout time.Duration) (map[string][]forkjoin.BranchResult, error)
}

// NodeRunner lets Fork dispatch a single target node the same way the
// top-level Dispatcher would, without importing the graph driver.
type NodeRunner interface {
	Execute(ectx *execctx.Context, node *domain.Node) (domain.NodeResult, error)
}

// ForkExecutor registers a ForkContext and spawns one goroutine per target
// that runs that target node's executor on a derived (read-only-context)
// snapshot, then returns Success immediately without waiting — matching the
// spec's "does not block" contract for Fork.
type ForkExecutor struct {
	Coordinator ForkJoinCoordinator
	Runner      NodeRunner
}

func (f *ForkExecutor) Execute(ectx *execctx.Context, node *domain.Node) (domain.NodeResult, error) {
	if node.Fork == nil {
		return domain.NodeResult{}, domain.NewDomainError(domain.ErrCodeInvalidInput, "fork node missing ForkSpec", nil)
	}
	if err := f.Coordinator.Register(node.ID, node.Fork.Targets); err != nil {
		return failureResult(err), nil
	}

	for _, targetID := range node.Fork.Targets {
		targetNode, ok := ectx.Workflow.Nodes[targetID]
		if !ok {
			f.Coordinator.Complete(node.ID, targetID, domain.NodeResult{}, domain.NewDomainError(domain.ErrCodeNotFound, "fork target not found: "+targetID, nil))
			continue
		}
		go func(n *domain.Node) {
			branchCtx := *ectx // shallow copy: same registries, same read-only Execution pointer
			result, err := f.Runner.Execute(&branchCtx, n)
			f.Coordinator.Complete(node.ID, n.ID, result, err)
		}(targetNode)
	}

	return domain.NodeResult{
		Status:    domain.ResultSuccess,
		Metadata:  map[string]any{"fork_id": node.ID},
		Timestamp: now(),
	}, nil
}
