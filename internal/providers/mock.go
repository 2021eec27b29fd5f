package providers

import (
	"context"
	"regexp"
	"strings"

	"assessflow/internal/models"
)

// MockProvider emits deterministic, schema-valid payloads so pipelines run
// end-to-end without a real model. Token counts are derived from text length.
type MockProvider struct{}

func NewMockProvider() *MockProvider {
	return &MockProvider{}
}

var kbIDPattern = regexp.MustCompile(`"key_behavior_id":"([^"]+)"`)

func (m *MockProvider) Complete(ctx context.Context, req ChatRequest) (ChatResponse, error) {
	_ = ctx
	var text string
	switch req.Action {
	case models.PhaseExtraction:
		text = `{"evidence":[]}`
	case models.PhaseKBFulfillment:
		text = mockVerdicts(req.UserPrompt)
	case models.PhaseLevelAndNarrative:
		text = `{"explanation":"Deterministic mock explanation grounded in the listed verdicts."}`
	case models.PhaseRecommendations:
		text = `{"recommendations":["Mock recommendation 1.","Mock recommendation 2.","Mock recommendation 3."]}`
	case models.PhaseSummaryDraft:
		text = `{"summary":"Deterministic mock executive summary across all assessed competencies."}`
	case models.PhaseSummaryCritique:
		text = `{"critique":"- mock critique note","revised_summary":"Deterministic mock revised executive summary."}`
	case models.PhaseAskAIRefine:
		text = `{"refined_text":"Deterministic mock refinement of the given text block."}`
	default:
		text = `{}`
	}
	return ChatResponse{
		Text:         text,
		InputTokens:  (len(req.SystemPrompt) + len(req.UserPrompt)) / 4,
		OutputTokens: len(text) / 4,
	}, nil
}

// mockVerdicts marks every key behavior mentioned in the prompt NOT_OBSERVED,
// matching the empty evidence the mock extractor produces.
func mockVerdicts(userPrompt string) string {
	seen := map[string]struct{}{}
	b := strings.Builder{}
	b.WriteString(`{"verdicts":[`)
	first := true
	for _, match := range kbIDPattern.FindAllStringSubmatch(userPrompt, -1) {
		id := match[1]
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		if !first {
			b.WriteString(",")
		}
		first = false
		b.WriteString(`{"key_behavior_id":"` + id + `","status":"NOT_OBSERVED","reasoning":"No evidence in mock run.","evidence_ids":[]}`)
	}
	b.WriteString("]}")
	if first {
		return `{"verdicts":[{"key_behavior_id":"kb-unknown","status":"NOT_OBSERVED","reasoning":"No key behaviors listed.","evidence_ids":[]}]}`
	}
	return b.String()
}
