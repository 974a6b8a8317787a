// Package rubric implements the Rubric Engine (C6): given a rubric and a
// node's output, produces a weighted score, per-criterion results, and a
// pass/fail verdict. Automated and Hybrid criteria are scored with
// expr-lang/expr expressions, the same engine and compiled-program caching
// pattern the teacher's ConditionEvaluator uses for transition conditions.
package rubric

import (
	"context"
	"fmt"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/flowloom/fabric/internal/agent"
	"github.com/flowloom/fabric/internal/domain"
)

// ReviewHandler is invoked for Manual criteria, where a human (or an
// upstream system standing in for one) supplies the score directly. It is
// the same dependency the human-review post-processor uses, scoped down to
// a single criterion decision.
type ReviewHandler interface {
	ReviewCriterion(ctx context.Context, criterion domain.Criterion, output string, vars map[string]any) (score float64, feedback string, err error)
}

// Deps bundles the two external dependencies Evaluate needs beyond the
// rubric and output themselves. Either may be nil if the rubric is known not
// to use that evaluation type; Evaluate returns an error only if a criterion
// that needs the missing dependency is actually encountered.
type Deps struct {
	Judge  agent.Agent
	Review ReviewHandler
}

// Engine caches registered/lazily-resolved rubrics and compiled expr-lang
// programs across evaluations.
type Engine struct {
	mu      sync.RWMutex
	rubrics map[string]*domain.Rubric
	exprs   map[string]*vm.Program
}

func NewEngine() *Engine {
	return &Engine{
		rubrics: make(map[string]*domain.Rubric),
		exprs:   make(map[string]*vm.Program),
	}
}

// Register adds a validated rubric to the in-process cache.
func (e *Engine) Register(r *domain.Rubric) error {
	if err := r.Validate(); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.rubrics[r.ID] = r
	return nil
}

// Resolve returns the cached rubric for id, lazily registering it from loc
// if this is the first time it's been needed.
func (e *Engine) Resolve(rubricID string, loc domain.RubricLocator) (*domain.Rubric, error) {
	e.mu.RLock()
	r, ok := e.rubrics[rubricID]
	e.mu.RUnlock()
	if ok {
		return r, nil
	}
	if loc.Inline == nil {
		return nil, domain.NewDomainError(domain.ErrCodeNotFound, "rubric "+rubricID+" has no inline definition or resolved source", nil)
	}
	if err := e.Register(loc.Inline); err != nil {
		return nil, err
	}
	return loc.Inline, nil
}

// Evaluate scores output against rubric using vars as the expr-lang
// environment's "context" binding ({output, context} per criterion.evaluationLogic).
func (e *Engine) Evaluate(ctx context.Context, rubric *domain.Rubric, output string, vars map[string]any, deps Deps) (*domain.RubricEvaluation, error) {
	results := make([]domain.CriterionResult, 0, len(rubric.Criteria))
	var weightedSum, weightSum float64
	failedCriteria := make([]string, 0)
	suggestions := make([]string, 0)
	allRequiredPassed := true

	for _, c := range rubric.Criteria {
		score, feedback, err := e.scoreCriterion(ctx, c, output, vars, deps)
		if err != nil {
			return nil, err
		}
		passed := score >= c.MinScore
		results = append(results, domain.CriterionResult{
			CriterionID:   c.ID,
			Score:         score,
			WeightedScore: score * c.Weight,
			Passed:        passed,
			Feedback:      feedback,
		})
		weightedSum += score * c.Weight
		weightSum += c.Weight
		if !passed {
			failedCriteria = append(failedCriteria, c.ID)
			if feedback != "" {
				suggestions = append(suggestions, feedback)
			}
			if c.Required {
				allRequiredPassed = false
			}
		}
	}

	overall := 0.0
	if weightSum > 0 {
		overall = clamp(weightedSum/weightSum, 0, 100)
	}

	return &domain.RubricEvaluation{
		RubricID:         rubric.ID,
		Score:            overall,
		Passed:           overall >= rubric.PassThreshold && allRequiredPassed,
		CriterionResults: results,
		FailedCriteria:   failedCriteria,
		Suggestions:      suggestions,
	}, nil
}

func (e *Engine) scoreCriterion(ctx context.Context, c domain.Criterion, output string, vars map[string]any, deps Deps) (float64, string, error) {
	switch c.EvaluationType {
	case domain.EvaluationAutomated, domain.EvaluationHybrid:
		return e.evalExpression(c, output, vars)
	case domain.EvaluationManual:
		if deps.Review == nil {
			return 0, "", domain.NewDomainError(domain.ErrCodeInvalidState, "criterion "+c.ID+" requires a review handler but none was configured", nil)
		}
		return deps.Review.ReviewCriterion(ctx, c, output, vars)
	case domain.EvaluationLlmBased:
		if deps.Judge == nil {
			return 0, "", domain.NewDomainError(domain.ErrCodeInvalidState, "criterion "+c.ID+" requires a judge agent but none was configured", nil)
		}
		return e.evalWithJudge(ctx, deps.Judge, c, output, vars)
	default:
		return 0, "", domain.NewDomainError(domain.ErrCodeInvalidInput, "unknown evaluation type for criterion "+c.ID, nil)
	}
}

func (e *Engine) evalExpression(c domain.Criterion, output string, vars map[string]any) (float64, string, error) {
	if c.EvaluationLogic == "" {
		return 0, "", domain.NewDomainError(domain.ErrCodeInvalidInput, "criterion "+c.ID+" has no evaluationLogic", nil)
	}
	env := map[string]any{"output": output, "context": vars}

	e.mu.RLock()
	program, cached := e.exprs[c.EvaluationLogic]
	e.mu.RUnlock()
	if !cached {
		var err error
		program, err = expr.Compile(c.EvaluationLogic, expr.Env(env), expr.AsFloat64())
		if err != nil {
			return 0, "", fmt.Errorf("criterion %s: failed to compile evaluationLogic: %w", c.ID, err)
		}
		e.mu.Lock()
		e.exprs[c.EvaluationLogic] = program
		e.mu.Unlock()
	}

	result, err := expr.Run(program, env)
	if err != nil {
		return 0, "", fmt.Errorf("criterion %s: failed to run evaluationLogic: %w", c.ID, err)
	}
	score, ok := result.(float64)
	if !ok {
		return 0, "", fmt.Errorf("criterion %s: evaluationLogic did not return a number, got %T", c.ID, result)
	}
	return clamp(score, 0, 100), "", nil
}

func (e *Engine) evalWithJudge(ctx context.Context, judge agent.Agent, c domain.Criterion, output string, vars map[string]any) (float64, string, error) {
	prompt := c.EvaluationLogic
	if prompt == "" {
		prompt = fmt.Sprintf("Evaluate the following output against criterion %q (%s) on a scale of 0 to 100. Respond with only the number.\n\nOutput:\n%s", c.Name, c.Description, output)
	}
	resp, err := judge.Execute(ctx, prompt, vars)
	if err != nil {
		return 0, "", fmt.Errorf("criterion %s: judge agent failed: %w", c.ID, err)
	}
	score, parseErr := parseLeadingNumber(resp.Text)
	if parseErr != nil {
		return 0, "", fmt.Errorf("criterion %s: judge response not a number: %w", c.ID, parseErr)
	}
	return clamp(score, 0, 100), resp.Text, nil
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
