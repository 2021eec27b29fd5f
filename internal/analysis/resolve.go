package analysis

import (
	"strconv"

	"assessflow/internal/models"
)

// DictionaryIndex answers membership questions against an immutable
// dictionary snapshot.
type DictionaryIndex struct {
	competencies map[string]models.Competency
	triples      map[string]struct{}
}

func NewDictionaryIndex(d models.CompetencyDictionary) *DictionaryIndex {
	idx := &DictionaryIndex{
		competencies: make(map[string]models.Competency, len(d.Competencies)),
		triples:      map[string]struct{}{},
	}
	for _, c := range d.Competencies {
		idx.competencies[c.CompetencyID] = c
		for _, lvl := range c.Levels {
			for _, kb := range lvl.KeyBehaviors {
				idx.triples[tripleKey(c.CompetencyID, lvl.Number, kb.KeyBehaviorID)] = struct{}{}
			}
		}
	}
	return idx
}

func (i *DictionaryIndex) HasCompetency(competencyID string) bool {
	_, ok := i.competencies[competencyID]
	return ok
}

func (i *DictionaryIndex) HasTriple(competencyID string, level int, keyBehaviorID string) bool {
	_, ok := i.triples[tripleKey(competencyID, level, keyBehaviorID)]
	return ok
}

func tripleKey(competencyID string, level int, keyBehaviorID string) string {
	return competencyID + "|" + strconv.Itoa(level) + "|" + keyBehaviorID
}

// FilterEvidence drops extracted items whose competency/level/key-behavior tag
// is not present in the dictionary snapshot. Such items are hallucinated tags,
// recovered locally rather than failing the phase.
func FilterEvidence(items []RawEvidence, idx *DictionaryIndex) (kept []RawEvidence, dropped []RawEvidence) {
	kept = make([]RawEvidence, 0, len(items))
	for _, ev := range items {
		if idx.HasTriple(ev.CompetencyID, ev.Level, ev.KeyBehaviorID) {
			kept = append(kept, ev)
			continue
		}
		dropped = append(dropped, ev)
	}
	return kept, dropped
}

// GroupEvidenceByKeyBehavior indexes stored evidence by key behavior id.
func GroupEvidenceByKeyBehavior(items []models.Evidence) map[string][]models.Evidence {
	out := map[string][]models.Evidence{}
	for _, ev := range items {
		out[ev.KeyBehaviorID] = append(out[ev.KeyBehaviorID], ev)
	}
	return out
}

// EvidenceForCompetency returns stored evidence for one competency, preserving
// input order.
func EvidenceForCompetency(items []models.Evidence, competencyID string) []models.Evidence {
	out := make([]models.Evidence, 0)
	for _, ev := range items {
		if ev.CompetencyID == competencyID {
			out = append(out, ev)
		}
	}
	return out
}

// ApplyContraPrecedence downgrades fulfilled verdicts: contra evidence for a
// key behavior disqualifies it no matter what the model concluded. A single
// strong counter-example wins over corroborating positives.
func ApplyContraPrecedence(verdicts []RawKBVerdict, evidenceByKB map[string][]models.Evidence) []RawKBVerdict {
	out := make([]RawKBVerdict, 0, len(verdicts))
	for _, v := range verdicts {
		if v.Status == string(models.KBFulfilled) && hasContra(evidenceByKB[v.KeyBehaviorID]) {
			v.Status = string(models.KBContraIndicator)
			if v.Reasoning != "" {
				v.Reasoning = "Contra-indicating evidence present; " + v.Reasoning
			} else {
				v.Reasoning = "Contra-indicating evidence present."
			}
		}
		out = append(out, v)
	}
	return out
}

func hasContra(items []models.Evidence) bool {
	for _, ev := range items {
		if ev.Polarity == models.PolarityContra {
			return true
		}
	}
	return false
}
