package nodeexec

import (
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/flowloom/fabric/internal/domain"
	"github.com/flowloom/fabric/internal/execctx"
	"github.com/flowloom/fabric/internal/rubric"
	"github.com/flowloom/fabric/internal/template"
)

// branchOutcome is one Parallel branch's agent response, optionally scored
// against its own rubric.
type branchOutcome struct {
	Branch domain.Branch
	Output string
	Score  float64
	Passed bool
	Err    error
}

// ParallelExecutor runs every branch's agent concurrently, then resolves the
// node's output via node.Parallel.Consensus once all branches have finished.
type ParallelExecutor struct {
	Circuit *CircuitBreakers
}

func (p *ParallelExecutor) Execute(ectx *execctx.Context, node *domain.Node) (domain.NodeResult, error) {
	if node.Parallel == nil {
		return domain.NodeResult{}, domain.NewDomainError(domain.ErrCodeInvalidInput, "parallel node missing ParallelSpec", nil)
	}
	spec := node.Parallel
	if len(spec.Branches) == 0 {
		return failureResult(fmt.Errorf("node %s: parallel node has no branches", node.ID)), nil
	}

	outcomes := make([]branchOutcome, len(spec.Branches))
	var wg sync.WaitGroup
	for i, b := range spec.Branches {
		wg.Add(1)
		go func(i int, b domain.Branch) {
			defer wg.Done()
			outcomes[i] = p.runBranch(ectx, b)
		}(i, b)
	}
	wg.Wait()

	switch spec.Consensus.Strategy {
	case domain.ConsensusUnanimous:
		return p.unanimous(node, outcomes), nil
	case domain.ConsensusMajorityVote:
		return p.majorityVote(node, outcomes, 0.5), nil
	case domain.ConsensusWeightedVote:
		threshold := spec.Consensus.Threshold
		if threshold <= 0 {
			threshold = 0.5
		}
		return p.weightedVote(node, outcomes, threshold), nil
	case domain.ConsensusJudgeDecides:
		return p.judgeDecides(ectx, node, outcomes), nil
	default:
		return failureResult(fmt.Errorf("node %s: unknown consensus strategy %q", node.ID, spec.Consensus.Strategy)), nil
	}
}

func (p *ParallelExecutor) runBranch(ectx *execctx.Context, b domain.Branch) branchOutcome {
	a, ok := ectx.Agents.Get(b.AgentID)
	if !ok {
		return branchOutcome{Branch: b, Err: fmt.Errorf("branch %s: agent %q not registered", b.ID, b.AgentID)}
	}
	prompt := template.Resolve(b.Prompt, ectx.Vars())
	resp, err := Guard(p.Circuit, b.AgentID, func() (string, error) {
		r, err := a.Execute(ectx.Ctx, prompt, ectx.Vars())
		return r.Text, err
	})
	if err != nil {
		return branchOutcome{Branch: b, Err: err}
	}

	if b.RubricID == "" {
		return branchOutcome{Branch: b, Output: resp, Passed: true}
	}
	rb, err := ectx.Rubrics.Resolve(b.RubricID, ectx.Workflow.Rubrics[b.RubricID])
	if err != nil {
		return branchOutcome{Branch: b, Output: resp, Err: err}
	}
	eval, err := ectx.Rubrics.Evaluate(ectx.Ctx, rb, resp, ectx.Vars(), rubric.Deps{Judge: ectx.Judge, Review: ectx.RubricReview})
	if err != nil {
		return branchOutcome{Branch: b, Output: resp, Err: err}
	}
	return branchOutcome{Branch: b, Output: resp, Score: eval.Score, Passed: eval.Passed}
}

func (p *ParallelExecutor) unanimous(node *domain.Node, outcomes []branchOutcome) domain.NodeResult {
	for _, o := range outcomes {
		if o.Err != nil || !o.Passed {
			return failureResult(fmt.Errorf("node %s: consensus not unanimous (branch %s: %s)", node.ID, o.Branch.ID, branchFailureReason(o)))
		}
	}
	return successResult(outcomes[0].Output)
}

func (p *ParallelExecutor) majorityVote(node *domain.Node, outcomes []branchOutcome, threshold float64) domain.NodeResult {
	passCount := 0
	var firstPass string
	haveFirst := false
	for _, o := range outcomes {
		if o.Err == nil && o.Passed {
			passCount++
			if !haveFirst {
				firstPass = o.Output
				haveFirst = true
			}
		}
	}
	if float64(passCount)/float64(len(outcomes)) > threshold || (passCount*2 == len(outcomes) && threshold == 0.5) {
		return successResult(firstPass)
	}
	return failureResult(fmt.Errorf("node %s: majority vote failed (%d/%d branches passed)", node.ID, passCount, len(outcomes)))
}

func (p *ParallelExecutor) weightedVote(node *domain.Node, outcomes []branchOutcome, threshold float64) domain.NodeResult {
	var totalWeight, passWeight float64
	var firstPass string
	haveFirst := false
	for _, o := range outcomes {
		w := o.Branch.Weight
		if w == 0 {
			w = 1
		}
		totalWeight += w
		if o.Err == nil && o.Passed {
			passWeight += w
			if !haveFirst {
				firstPass = o.Output
				haveFirst = true
			}
		}
	}
	if totalWeight == 0 || passWeight/totalWeight < threshold {
		return failureResult(fmt.Errorf("node %s: weighted vote below threshold %.2f", node.ID, threshold))
	}
	return successResult(firstPass)
}

func (p *ParallelExecutor) judgeDecides(ectx *execctx.Context, node *domain.Node, outcomes []branchOutcome) domain.NodeResult {
	if ectx.Judge == nil {
		return failureResult(fmt.Errorf("node %s: judge_decides consensus requires a configured judge agent", node.ID))
	}
	var sb strings.Builder
	sb.WriteString("Pick the best response among the following candidates. Respond with ONLY the candidate number.\n\n")
	validIdx := make([]int, 0, len(outcomes))
	for i, o := range outcomes {
		if o.Err != nil {
			continue
		}
		validIdx = append(validIdx, i)
		fmt.Fprintf(&sb, "Candidate %d:\n%s\n\n", len(validIdx), o.Output)
	}
	if len(validIdx) == 0 {
		return failureResult(fmt.Errorf("node %s: all branches failed, judge has nothing to decide on", node.ID))
	}
	resp, err := ectx.Judge.Execute(ectx.Ctx, sb.String(), ectx.Vars())
	if err != nil {
		return failureResult(fmt.Errorf("node %s: judge call failed: %w", node.ID, err))
	}
	choice, err := strconv.Atoi(strings.TrimSpace(resp.Text))
	if err != nil || choice < 1 || choice > len(validIdx) {
		choice = 1
	}
	return successResult(outcomes[validIdx[choice-1]].Output)
}

func branchFailureReason(o branchOutcome) string {
	if o.Err != nil {
		return o.Err.Error()
	}
	return "did not pass rubric"
}
