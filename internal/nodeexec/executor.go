// Package nodeexec implements the Node Executors (C7): one pure function
// per node variant, dispatched by domain.NodeType off the tagged-union
// domain.Node the redesign note in §9 calls for — no executor interface
// hierarchy, just a map from tag to function, mirroring how the Node type
// itself replaced subtype polymorphism with a single struct.
package nodeexec

import (
	"time"

	"github.com/flowloom/fabric/internal/domain"
	"github.com/flowloom/fabric/internal/execctx"
)

// Executor produces a NodeResult given a node and the execution context. It
// must not mutate ectx.Execution directly except through the context
// variable/result channels the pipeline already owns — only Fork/Join use
// ectx.Execution incidentally via the coordinator.
type Executor interface {
	Execute(ectx *execctx.Context, node *domain.Node) (domain.NodeResult, error)
}

// Dispatcher routes a node to its variant's Executor by NodeType.
type Dispatcher struct {
	executors map[domain.NodeType]Executor
}

// NewDispatcher wires every node executor, including the ones (Fork/Join)
// that need to call back into the dispatcher itself to run a single target
// node as part of their own logic.
func NewDispatcher(circuit *CircuitBreakers, fj ForkJoinCoordinator) *Dispatcher {
	d := &Dispatcher{executors: make(map[domain.NodeType]Executor)}

	standard := &StandardExecutor{Circuit: circuit}
	d.executors[domain.NodeTypeStandard] = standard
	d.executors[domain.NodeTypeAction] = &ActionExecutor{Circuit: circuit}
	d.executors[domain.NodeTypeGeneric] = &GenericExecutor{}
	d.executors[domain.NodeTypeParallel] = &ParallelExecutor{Circuit: circuit}

	fork := &ForkExecutor{Coordinator: fj, Runner: d}
	d.executors[domain.NodeTypeFork] = fork
	d.executors[domain.NodeTypeJoin] = &JoinExecutor{Coordinator: fj}

	d.executors[domain.NodeTypeSubWorkflow] = &SubWorkflowExecutor{}
	d.executors[domain.NodeTypeLoop] = &LoopExecutor{}
	d.executors[domain.NodeTypeEnd] = &EndExecutor{}

	return d
}

// Execute implements NodeRunner so Fork can call back through the same
// dispatch table it was built from.
func (d *Dispatcher) Execute(ectx *execctx.Context, node *domain.Node) (domain.NodeResult, error) {
	exec, ok := d.executors[node.Type]
	if !ok {
		return domain.NodeResult{}, domain.NewDomainError(domain.ErrCodeInvalidType, "no executor registered for node type "+string(node.Type), nil)
	}
	return exec.Execute(ectx, node)
}

func now() time.Time { return time.Now() }

func successResult(output any) domain.NodeResult {
	return domain.NodeResult{Status: domain.ResultSuccess, Output: output, Timestamp: now()}
}

func failureResult(err error) domain.NodeResult {
	return domain.NodeResult{Status: domain.ResultFailure, Error: err.Error(), Timestamp: now()}
}
