package analysis

import "assessflow/internal/models"

// AchievedLevel assigns the competency level deterministically from key
// behavior verdicts. A level counts as achieved when, for it and every level
// below it, every key behavior has been evaluated and the fulfilled fraction
// meets the threshold (1.0 = strict all-fulfilled). Assignment stops at the
// first level that misses, so the result is monotonic with evidence coverage
// and never skips an unevaluated level.
func AchievedLevel(comp models.Competency, verdicts []models.KeyBehaviorAnalysis, threshold float64) int {
	if threshold <= 0 || threshold > 1 {
		threshold = 1.0
	}
	byKB := make(map[string]models.KeyBehaviorStatus, len(verdicts))
	for _, v := range verdicts {
		byKB[v.KeyBehaviorID] = v.Status
	}

	achieved := 0
	for _, lvl := range comp.Levels {
		if len(lvl.KeyBehaviors) == 0 {
			break
		}
		fulfilled := 0
		for _, kb := range lvl.KeyBehaviors {
			status, evaluated := byKB[kb.KeyBehaviorID]
			if !evaluated {
				return achieved
			}
			if status == models.KBFulfilled {
				fulfilled++
			}
		}
		if float64(fulfilled)/float64(len(lvl.KeyBehaviors)) < threshold {
			return achieved
		}
		achieved = lvl.Number
	}
	return achieved
}
