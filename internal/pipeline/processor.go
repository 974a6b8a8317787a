// Package pipeline implements the Post-Execution Pipeline (C8): a fixed
// ordered chain of processors that runs after every node executor call.
// Each processor observes (execCtx, node, result) and may mutate execution
// state; the chain short-circuits on the first terminal outcome, per §4.2.
package pipeline

import (
	"github.com/flowloom/fabric/internal/domain"
	"github.com/flowloom/fabric/internal/execctx"
)

// Disposition is the terminal classification a Processor may produce. The
// zero value, Continuing, means the pipeline should proceed to the next
// processor (or, after the last one, let the driver advance the cursor).
type Disposition int

const (
	Continuing Disposition = iota
	Rejected
	Failure
)

// Outcome is a processor's verdict: either empty (continue) or terminal,
// matching the "(ctx) → either continue-empty or terminal-result" contract
// spec §9 calls for.
type Outcome struct {
	Disposition Disposition
	Reason      string
}

func ContinueOutcome() Outcome { return Outcome{Disposition: Continuing} }

func FailOutcome(reason string) Outcome {
	return Outcome{Disposition: Failure, Reason: reason}
}

func RejectOutcome(reason string) Outcome {
	return Outcome{Disposition: Rejected, Reason: reason}
}

func (o Outcome) IsTerminal() bool { return o.Disposition != Continuing }

// Processor is one stage of the post-execution pipeline.
type Processor interface {
	Process(ectx *execctx.Context, node *domain.Node, result domain.NodeResult) (Outcome, error)
}
