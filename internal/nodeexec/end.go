package nodeexec

import (
	"github.com/flowloom/fabric/internal/domain"
	"github.com/flowloom/fabric/internal/execctx"
)

// EndExecutor produces the terminal NodeResult that the graph driver
// recognizes as the signal to finalize the execution with ExitStatus.
type EndExecutor struct{}

func (e *EndExecutor) Execute(ectx *execctx.Context, node *domain.Node) (domain.NodeResult, error) {
	if node.End == nil {
		return domain.NodeResult{}, domain.NewDomainError(domain.ErrCodeInvalidInput, "end node missing EndSpec", nil)
	}
	return domain.NodeResult{
		Status:    domain.ResultEnd,
		Output:    ectx.Vars(),
		Metadata:  map[string]any{"exit_status": node.End.ExitStatus},
		Timestamp: now(),
	}, nil
}
