package prompts

import (
	"encoding/json"
	"fmt"
	"strings"

	"assessflow/internal/models"
)

// Prompt builders for each pipeline phase. All prompts demand STRICT JSON so
// responses can be validated structurally; CorrectiveSuffix is appended on the
// single re-prompt after a schema violation.

const CorrectiveSuffix = "\n\nYour previous reply was not valid JSON matching the required schema. " +
	"Reply again with ONLY the JSON object, no prose, no markdown fences, all required fields present."

const extractionSystemPrompt = `You are an assessment evidence extractor for a competency-based evaluation.
You receive the transcript of one simulation exercise and a competency dictionary.
Extract verbatim quotes that evidence a specific key behavior from the dictionary.

Output STRICT JSON with this schema:
{
  "evidence": [
    {
      "competency_id": "string, must exist in the dictionary",
      "level": 1,
      "key_behavior_id": "string, must exist at that competency and level",
      "quote": "verbatim quote from the transcript",
      "polarity": "SUPPORTING|CONTRA",
      "reasoning": "one sentence: why this quote evidences the key behavior"
    }
  ]
}

Rules:
- Quotes must be verbatim spans from the transcript, not paraphrases.
- Tag polarity CONTRA when the quote shows behavior opposed to the key behavior.
- Only use competency_id/level/key_behavior_id combinations from the dictionary.
- If no evidence is found, return {"evidence":[]}.`

func BuildExtractionPrompts(dict models.CompetencyDictionary, doc models.SourceDocument, specificContext, text string) (string, string) {
	var b strings.Builder
	b.WriteString("Competency dictionary:\n")
	b.WriteString(marshal(dict))
	if strings.TrimSpace(specificContext) != "" {
		b.WriteString("\n\nAssessment context:\n")
		b.WriteString(specificContext)
	}
	b.WriteString("\n\nSimulation method: ")
	if strings.TrimSpace(doc.Method) != "" {
		b.WriteString(doc.Method)
	} else {
		b.WriteString("unspecified")
	}
	b.WriteString("\n\nTranscript:\n")
	b.WriteString(text)
	return extractionSystemPrompt, b.String()
}

const kbCheckSystemPrompt = `You are an assessment judge. For each key behavior of one competency, decide
whether the provided evidence fulfills it.

Output STRICT JSON with this schema:
{
  "verdicts": [
    {
      "key_behavior_id": "string",
      "status": "FULFILLED|NOT_OBSERVED|CONTRA_INDICATOR",
      "reasoning": "one or two sentences",
      "evidence_ids": ["ids of evidence items supporting this verdict"]
    }
  ]
}

Rules:
- Emit exactly one verdict per key behavior listed, across all levels.
- A key behavior with no evidence is NOT_OBSERVED.
- Any credible contra evidence makes the verdict CONTRA_INDICATOR, regardless
  of positive evidence.`

func BuildKBCheckPrompts(comp models.Competency, evidence []models.Evidence) (string, string) {
	var b strings.Builder
	b.WriteString("Competency:\n")
	b.WriteString(marshal(comp))
	b.WriteString("\n\nEvidence items:\n")
	if len(evidence) == 0 {
		b.WriteString("(none)")
	} else {
		b.WriteString(marshal(evidence))
	}
	return kbCheckSystemPrompt, b.String()
}

const narrativeSystemPrompt = `You are an assessment report writer. Explain, for one competency, why the
candidate achieved the stated level, grounded only in the verdicts given.

Output STRICT JSON: {"explanation": "2-4 paragraphs of plain prose"}`

func BuildNarrativePrompts(comp models.Competency, achievedLevel, targetLevel int, verdicts []models.KeyBehaviorAnalysis) (string, string) {
	var b strings.Builder
	fmt.Fprintf(&b, "Competency: %s\nDefinition: %s\nAchieved level: %d\nTarget level: %d\n\nKey behavior verdicts:\n",
		comp.Name, comp.Definition, achievedLevel, targetLevel)
	b.WriteString(marshal(verdicts))
	return narrativeSystemPrompt, b.String()
}

const recommendationsSystemPrompt = `You are a leadership development coach. Propose concrete development
recommendations that would move the candidate from the achieved level toward
the target level of one competency.

Output STRICT JSON: {"recommendations": ["3-5 short actionable items"]}`

func BuildRecommendationsPrompts(comp models.Competency, achievedLevel, targetLevel int, explanation string) (string, string) {
	var b strings.Builder
	fmt.Fprintf(&b, "Competency: %s\nAchieved level: %d\nTarget level: %d\n\nAssessment explanation:\n%s",
		comp.Name, achievedLevel, targetLevel, explanation)
	return recommendationsSystemPrompt, b.String()
}

const summarySystemPrompt = `You are an assessment report writer producing the executive summary of a
competency-assessment report. Synthesize across competencies; do not invent
facts beyond the analyses given.

Output STRICT JSON: {"summary": "3-5 paragraphs of plain prose"}`

func BuildSummaryPrompts(report models.Report, analyses []models.CompetencyAnalysis) (string, string) {
	var b strings.Builder
	fmt.Fprintf(&b, "Report: %s\n", report.Title)
	if strings.TrimSpace(report.SpecificContext) != "" {
		fmt.Fprintf(&b, "Context: %s\n", report.SpecificContext)
	}
	b.WriteString("\nCompetency analyses:\n")
	b.WriteString(marshal(analyses))
	return summarySystemPrompt, b.String()
}

const critiqueSystemPrompt = `You are a critical reviewer of assessment reports. Critique the draft
executive summary for unsupported claims, vagueness and imbalance, then
produce one revised version that fixes the problems.

Output STRICT JSON: {"critique": "bullet-style critique", "revised_summary": "full revised summary"}`

func BuildCritiquePrompts(draft string, analyses []models.CompetencyAnalysis) (string, string) {
	var b strings.Builder
	b.WriteString("Draft executive summary:\n")
	b.WriteString(draft)
	b.WriteString("\n\nCompetency analyses the summary must stay grounded in:\n")
	b.WriteString(marshal(analyses))
	return critiqueSystemPrompt, b.String()
}

const refineSystemPrompt = `You are an assistant refining a finalized assessment report on request.
Rework ONLY the given text block according to the instruction; preserve all
factual claims.

Output STRICT JSON: {"refined_text": "the reworked text block"}`

func BuildRefinePrompts(textBlock, instruction string) (string, string) {
	var b strings.Builder
	b.WriteString("Instruction: ")
	b.WriteString(instruction)
	b.WriteString("\n\nText block:\n")
	b.WriteString(textBlock)
	return refineSystemPrompt, b.String()
}

func marshal(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return "{}"
	}
	return string(b)
}
