package analysis

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseEvidencePayload(t *testing.T) {
	raw := "```json\n" + `{"evidence":[
		{"competency_id":"c1","level":1,"key_behavior_id":"kb1","quote":"led the group discussion","polarity":"supporting","reasoning":"shows initiative"},
		{"competency_id":"c1","level":2,"key_behavior_id":"kb3","quote":"interrupted a colleague","polarity":"CONTRA","reasoning":"counter example"}
	]}` + "\n```"
	items, err := ParseEvidencePayload(raw)
	require.NoError(t, err)
	require.Len(t, items, 2)
	require.Equal(t, "SUPPORTING", items[0].Polarity)
	require.Equal(t, "CONTRA", items[1].Polarity)
	require.Equal(t, "led the group discussion", items[0].Quote)
}

func TestParseEvidencePayloadRejectsMissingTag(t *testing.T) {
	_, err := ParseEvidencePayload(`{"evidence":[{"competency_id":"","level":1,"key_behavior_id":"kb1","quote":"q","polarity":"SUPPORTING"}]}`)
	require.Error(t, err)

	_, err = ParseEvidencePayload(`{"evidence":[{"competency_id":"c1","level":1,"key_behavior_id":"kb1","quote":"","polarity":"SUPPORTING"}]}`)
	require.Error(t, err)

	_, err = ParseEvidencePayload(`{"evidence":[{"competency_id":"c1","level":1,"key_behavior_id":"kb1","quote":"q","polarity":"MAYBE"}]}`)
	require.Error(t, err)
}

func TestParseEvidencePayloadRejectsGarbage(t *testing.T) {
	_, err := ParseEvidencePayload("I could not find any evidence, sorry!")
	require.Error(t, err)

	_, err = ParseEvidencePayload("")
	require.Error(t, err)
}

func TestParseKBVerdicts(t *testing.T) {
	raw := `{"verdicts":[
		{"key_behavior_id":"kb1","status":"FULFILLED","reasoning":"seen twice","evidence_ids":["e1","e2"]},
		{"key_behavior_id":"kb2","status":"NOT_OBSERVED","reasoning":"no mention"}
	]}`
	verdicts, err := ParseKBVerdicts(raw)
	require.NoError(t, err)
	require.Len(t, verdicts, 2)
	require.Equal(t, []string{"e1", "e2"}, verdicts[0].EvidenceIDs)
}

func TestParseKBVerdictsRejectsUnknownStatus(t *testing.T) {
	_, err := ParseKBVerdicts(`{"verdicts":[{"key_behavior_id":"kb1","status":"PARTIAL"}]}`)
	require.Error(t, err)

	_, err = ParseKBVerdicts(`{"verdicts":[]}`)
	require.Error(t, err)
}

func TestParseNarrativeAndSummary(t *testing.T) {
	n, err := ParseNarrative(`{"explanation":"consistent level 2 behavior"}`)
	require.NoError(t, err)
	require.Equal(t, "consistent level 2 behavior", n.Explanation)

	_, err = ParseNarrative(`{"explanation":"  "}`)
	require.Error(t, err)

	s, err := ParseSummary("```\n" + `{"summary":"Overall the candidate..."}` + "\n```")
	require.NoError(t, err)
	require.Equal(t, "Overall the candidate...", s.Summary)

	c, err := ParseCritique(`{"critique":"too vague","revised_summary":"Sharper text."}`)
	require.NoError(t, err)
	require.Equal(t, "Sharper text.", c.RevisedSummary)

	r, err := ParseRefinement(`{"refined_text":"tightened paragraph"}`)
	require.NoError(t, err)
	require.Equal(t, "tightened paragraph", r.RefinedText)
}

func TestParseRecommendations(t *testing.T) {
	p, err := ParseRecommendations(`{"recommendations":["shadow a senior facilitator","take the listening workshop"]}`)
	require.NoError(t, err)
	require.Len(t, p.Recommendations, 2)

	_, err = ParseRecommendations(`{"recommendations":[]}`)
	require.Error(t, err)
}
