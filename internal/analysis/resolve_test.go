package analysis

import (
	"testing"

	"assessflow/internal/models"

	"github.com/stretchr/testify/require"
)

func testDictionary() models.CompetencyDictionary {
	return models.CompetencyDictionary{
		Name: "leadership-v2",
		Competencies: []models.Competency{
			{
				CompetencyID: "c1",
				Name:         "Collaboration",
				Definition:   "Works effectively with others.",
				Levels: []models.Level{
					{Number: 1, Description: "basic", KeyBehaviors: []models.KeyBehavior{
						{KeyBehaviorID: "kb1", Statement: "Listens actively"},
						{KeyBehaviorID: "kb2", Statement: "Shares information"},
					}},
					{Number: 2, Description: "advanced", KeyBehaviors: []models.KeyBehavior{
						{KeyBehaviorID: "kb3", Statement: "Builds consensus"},
					}},
				},
			},
		},
	}
}

func TestFilterEvidenceDropsHallucinatedTags(t *testing.T) {
	idx := NewDictionaryIndex(testDictionary())
	items := []RawEvidence{
		{CompetencyID: "c1", Level: 1, KeyBehaviorID: "kb1", Quote: "q1", Polarity: "SUPPORTING"},
		{CompetencyID: "c1", Level: 3, KeyBehaviorID: "kb1", Quote: "q2", Polarity: "SUPPORTING"},
		{CompetencyID: "c9", Level: 1, KeyBehaviorID: "kb1", Quote: "q3", Polarity: "SUPPORTING"},
		{CompetencyID: "c1", Level: 2, KeyBehaviorID: "kb3", Quote: "q4", Polarity: "CONTRA"},
	}
	kept, dropped := FilterEvidence(items, idx)
	require.Len(t, kept, 2)
	require.Len(t, dropped, 2)
	require.Equal(t, "q1", kept[0].Quote)
	require.Equal(t, "q4", kept[1].Quote)
}

func TestApplyContraPrecedence(t *testing.T) {
	evidence := map[string][]models.Evidence{
		"kb1": {
			{EvidenceID: "e1", KeyBehaviorID: "kb1", Polarity: models.PolaritySupporting},
			{EvidenceID: "e2", KeyBehaviorID: "kb1", Polarity: models.PolarityContra},
		},
		"kb2": {
			{EvidenceID: "e3", KeyBehaviorID: "kb2", Polarity: models.PolaritySupporting},
		},
	}
	verdicts := []RawKBVerdict{
		{KeyBehaviorID: "kb1", Status: "FULFILLED", Reasoning: "model saw positives"},
		{KeyBehaviorID: "kb2", Status: "FULFILLED"},
		{KeyBehaviorID: "kb3", Status: "NOT_OBSERVED"},
	}
	out := ApplyContraPrecedence(verdicts, evidence)
	require.Equal(t, string(models.KBContraIndicator), out[0].Status)
	require.Contains(t, out[0].Reasoning, "Contra-indicating")
	require.Equal(t, string(models.KBFulfilled), out[1].Status)
	require.Equal(t, string(models.KBNotObserved), out[2].Status)
}

func TestAchievedLevelStrict(t *testing.T) {
	comp := testDictionary().Competencies[0]
	verdicts := []models.KeyBehaviorAnalysis{
		{KeyBehaviorID: "kb1", Status: models.KBFulfilled},
		{KeyBehaviorID: "kb2", Status: models.KBFulfilled},
		{KeyBehaviorID: "kb3", Status: models.KBNotObserved},
	}
	// Level 1 fully fulfilled, level 2 not observed: achieved 1, never 2.
	require.Equal(t, 1, AchievedLevel(comp, verdicts, 1.0))
}

func TestAchievedLevelNeverSkipsUnevaluated(t *testing.T) {
	comp := testDictionary().Competencies[0]
	verdicts := []models.KeyBehaviorAnalysis{
		{KeyBehaviorID: "kb1", Status: models.KBFulfilled},
		// kb2 missing: level 1 unevaluated, so even a fulfilled kb3 cannot count.
		{KeyBehaviorID: "kb3", Status: models.KBFulfilled},
	}
	require.Equal(t, 0, AchievedLevel(comp, verdicts, 1.0))
}

func TestAchievedLevelContraBlocks(t *testing.T) {
	comp := testDictionary().Competencies[0]
	verdicts := []models.KeyBehaviorAnalysis{
		{KeyBehaviorID: "kb1", Status: models.KBFulfilled},
		{KeyBehaviorID: "kb2", Status: models.KBContraIndicator},
		{KeyBehaviorID: "kb3", Status: models.KBFulfilled},
	}
	require.Equal(t, 0, AchievedLevel(comp, verdicts, 1.0))
}

func TestAchievedLevelThreshold(t *testing.T) {
	comp := testDictionary().Competencies[0]
	verdicts := []models.KeyBehaviorAnalysis{
		{KeyBehaviorID: "kb1", Status: models.KBFulfilled},
		{KeyBehaviorID: "kb2", Status: models.KBNotObserved},
		{KeyBehaviorID: "kb3", Status: models.KBFulfilled},
	}
	// Half of level 1 fulfilled: fails strict, passes a 0.5 majority policy,
	// and then level 2 (1/1 fulfilled) is reachable.
	require.Equal(t, 0, AchievedLevel(comp, verdicts, 1.0))
	require.Equal(t, 2, AchievedLevel(comp, verdicts, 0.5))
}

func TestGroupEvidenceByKeyBehavior(t *testing.T) {
	items := []models.Evidence{
		{EvidenceID: "e1", KeyBehaviorID: "kb1", CompetencyID: "c1"},
		{EvidenceID: "e2", KeyBehaviorID: "kb1", CompetencyID: "c1"},
		{EvidenceID: "e3", KeyBehaviorID: "kb3", CompetencyID: "c1"},
	}
	grouped := GroupEvidenceByKeyBehavior(items)
	require.Len(t, grouped["kb1"], 2)
	require.Len(t, grouped["kb3"], 1)
	require.Len(t, EvidenceForCompetency(items, "c1"), 3)
	require.Empty(t, EvidenceForCompetency(items, "c2"))
}
