package nodeexec

import (
	"fmt"

	"github.com/flowloom/fabric/internal/domain"
	"github.com/flowloom/fabric/internal/execctx"
	"github.com/flowloom/fabric/internal/template"
)

// GenericExecutor dispatches to a handler registered under the node's
// executorType, for behavior that doesn't fit the other node shapes.
type GenericExecutor struct{}

func (g *GenericExecutor) Execute(ectx *execctx.Context, node *domain.Node) (domain.NodeResult, error) {
	if node.Generic == nil {
		return domain.NodeResult{}, domain.NewDomainError(domain.ErrCodeInvalidInput, "generic node missing GenericSpec", nil)
	}
	handler, ok := ectx.GenericHandlers[node.Generic.ExecutorType]
	if !ok {
		return failureResult(fmt.Errorf("node %s: no generic handler registered for executorType %q", node.ID, node.Generic.ExecutorType)), nil
	}
	config := template.ResolveMap(node.Generic.Config, ectx.Vars())
	out, err := handler.Execute(ectx.Ctx, config, ectx.Vars())
	if err != nil {
		return failureResult(err), nil
	}
	return successResult(out), nil
}
