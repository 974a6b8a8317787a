package pipeline

import "github.com/flowloom/fabric/internal/domain"

// matchScoreCondition returns the target of the first ScoreCondition in
// conditions that score satisfies, evaluated in declaration order.
func matchScoreCondition(score float64, conditions []domain.ScoreCondition) (string, bool) {
	for _, c := range conditions {
		if scoreMatches(score, c) {
			return c.Target, true
		}
	}
	return "", false
}

func scoreMatches(score float64, c domain.ScoreCondition) bool {
	switch c.Operator {
	case domain.ScoreGT:
		return score > c.Value
	case domain.ScoreGTE:
		return score >= c.Value
	case domain.ScoreLT:
		return score < c.Value
	case domain.ScoreLTE:
		return score <= c.Value
	case domain.ScoreEQ:
		return score == c.Value
	case domain.ScoreRange:
		return score >= c.RangeLo && score <= c.RangeHi
	default:
		return false
	}
}

// nodeHasMatchingScoreRule reports whether node has a Score transition rule
// whose conditions match score, meaning the rubric processor should defer to
// user routing instead of computing an auto-backtrack target.
func nodeHasMatchingScoreRule(node *domain.Node, score float64) bool {
	for _, rule := range node.TransitionRules {
		if rule.Kind != domain.TransitionScore {
			continue
		}
		if _, ok := matchScoreCondition(score, rule.Conditions); ok {
			return true
		}
	}
	return false
}

// selfReportedScore resolves a score from context under the fallback key
// order the Score transition rule uses when no RubricEvaluation is present.
func selfReportedScore(vars map[string]any) (float64, bool) {
	for _, key := range []string{"score", "final_score", "quality_score", "evaluation_score"} {
		if v, ok := vars[key]; ok {
			if f, ok := toFloat(v); ok {
				return f, true
			}
		}
	}
	return 0, false
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}
