// Package forkjoin implements the Fork/Join Coordinator (C10): the Fork
// executor registers a ForkContext of futures keyed by branch id and
// returns immediately; the Join executor blocks on those futures (with a
// timeout) and merges them. Ownership follows §9's note directly: Fork
// creates the context and hands it to the coordinator, Join consumes and
// removes it, and the futures themselves are owned by whatever goroutine is
// running the branch.
package forkjoin

import (
	"context"
	"fmt"
	"time"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/flowloom/fabric/internal/domain"
)

// BranchResult pairs a fork target's node id with its eventual NodeResult,
// so CollectAll can restore target-list order regardless of completion order.
type BranchResult struct {
	TargetID string
	Result   domain.NodeResult
	Err      error
}

type forkContext struct {
	targets   []string
	futures   map[string]chan BranchResult
	startedAt time.Time
}

// Coordinator is safe for concurrent use: branch completions arrive from
// worker goroutines while the Join executor (possibly for a different
// execution entirely, sharing the same process-wide coordinator) awaits.
type Coordinator struct {
	forks *xsync.MapOf[string, *forkContext]
}

func NewCoordinator() *Coordinator {
	return &Coordinator{forks: xsync.NewMapOf[string, *forkContext]()}
}

// Register creates a ForkContext for forkID with one pending future per
// target. It is an error to register the same forkID twice before it has
// been released by a Join (or abandoned).
func (c *Coordinator) Register(forkID string, targets []string) error {
	fc := &forkContext{
		targets:   targets,
		futures:   make(map[string]chan BranchResult, len(targets)),
		startedAt: time.Now(),
	}
	for _, t := range targets {
		fc.futures[t] = make(chan BranchResult, 1)
	}
	if _, loaded := c.forks.LoadOrStore(forkID, fc); loaded {
		return fmt.Errorf("fork %s already has an active context", forkID)
	}
	return nil
}

// Complete records a branch's outcome. Safe to call from any goroutine;
// a nil error with a Failure-status result is itself the branch's outcome,
// not a coordinator-level error.
func (c *Coordinator) Complete(forkID, targetID string, result domain.NodeResult, err error) {
	fc, ok := c.forks.Load(forkID)
	if !ok {
		return
	}
	future, ok := fc.futures[targetID]
	if !ok {
		return
	}
	select {
	case future <- BranchResult{TargetID: targetID, Result: result, Err: err}:
	default:
		// already completed once; branch results are single-shot.
	}
}

// Await blocks until every target of every forkID in forkIDs has completed
// or timeout elapses, then removes those ForkContexts (Join consumes them).
// Results are returned per forkID, ordered to match that fork's declared
// target list — never completion order.
func (c *Coordinator) Await(ctx context.Context, forkIDs []string, timeout time.Duration) (map[string][]BranchResult, error) {
	deadline := time.Now().Add(timeout)
	if timeout <= 0 {
		deadline = time.Time{} // zero value: no deadline
	}

	out := make(map[string][]BranchResult, len(forkIDs))
	for _, forkID := range forkIDs {
		fc, ok := c.forks.Load(forkID)
		if !ok {
			return nil, fmt.Errorf("no active fork context for %s", forkID)
		}
		results := make([]BranchResult, len(fc.targets))
		for i, target := range fc.targets {
			var waitCtx context.Context
			var cancel context.CancelFunc
			if !deadline.IsZero() {
				waitCtx, cancel = context.WithDeadline(ctx, deadline)
			} else {
				waitCtx, cancel = context.WithCancel(ctx)
			}
			select {
			case br := <-fc.futures[target]:
				results[i] = br
			case <-waitCtx.Done():
				cancel()
				return nil, fmt.Errorf("join timed out waiting for fork %s target %s", forkID, target)
			}
			cancel()
		}
		out[forkID] = results
		c.forks.Delete(forkID)
	}
	return out, nil
}

// Targets returns the declared target list for a fork still pending a join,
// used by callers that need to validate before attempting Await.
func (c *Coordinator) Targets(forkID string) ([]string, bool) {
	fc, ok := c.forks.Load(forkID)
	if !ok {
		return nil, false
	}
	return fc.targets, true
}
