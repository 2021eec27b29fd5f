package analysis

import (
	"encoding/json"
	"fmt"
	"strings"

	"assessflow/internal/models"
)

// Raw payload shapes emitted by the models. Parsing is strict: a payload that
// does not match the expected structure is a schema violation, handled by the
// router's corrective re-prompt before escalating.

type RawEvidence struct {
	CompetencyID  string `json:"competency_id"`
	Level         int    `json:"level"`
	KeyBehaviorID string `json:"key_behavior_id"`
	Quote         string `json:"quote"`
	Polarity      string `json:"polarity"`
	Reasoning     string `json:"reasoning"`
}

type RawKBVerdict struct {
	KeyBehaviorID string   `json:"key_behavior_id"`
	Status        string   `json:"status"`
	Reasoning     string   `json:"reasoning"`
	EvidenceIDs   []string `json:"evidence_ids"`
}

type NarrativePayload struct {
	Explanation string `json:"explanation"`
}

type RecommendationsPayload struct {
	Recommendations []string `json:"recommendations"`
}

type SummaryPayload struct {
	Summary string `json:"summary"`
}

type CritiquePayload struct {
	Critique       string `json:"critique"`
	RevisedSummary string `json:"revised_summary"`
}

type RefinementPayload struct {
	RefinedText string `json:"refined_text"`
}

func ParseEvidencePayload(raw string) ([]RawEvidence, error) {
	var payload struct {
		Evidence []RawEvidence `json:"evidence"`
	}
	if err := decodeStrict(raw, &payload); err != nil {
		return nil, err
	}
	out := make([]RawEvidence, 0, len(payload.Evidence))
	for i, ev := range payload.Evidence {
		ev.Quote = strings.TrimSpace(ev.Quote)
		ev.Reasoning = strings.TrimSpace(ev.Reasoning)
		ev.Polarity = strings.ToUpper(strings.TrimSpace(ev.Polarity))
		if ev.Quote == "" {
			return nil, fmt.Errorf("evidence[%d]: empty quote", i)
		}
		if ev.CompetencyID == "" || ev.KeyBehaviorID == "" || ev.Level <= 0 {
			return nil, fmt.Errorf("evidence[%d]: missing competency/level/key_behavior tag", i)
		}
		if ev.Polarity != string(models.PolaritySupporting) && ev.Polarity != string(models.PolarityContra) {
			return nil, fmt.Errorf("evidence[%d]: polarity %q not SUPPORTING or CONTRA", i, ev.Polarity)
		}
		out = append(out, ev)
	}
	return out, nil
}

func ParseKBVerdicts(raw string) ([]RawKBVerdict, error) {
	var payload struct {
		Verdicts []RawKBVerdict `json:"verdicts"`
	}
	if err := decodeStrict(raw, &payload); err != nil {
		return nil, err
	}
	if len(payload.Verdicts) == 0 {
		return nil, fmt.Errorf("no verdicts in payload")
	}
	for i, v := range payload.Verdicts {
		if v.KeyBehaviorID == "" {
			return nil, fmt.Errorf("verdicts[%d]: missing key_behavior_id", i)
		}
		switch models.KeyBehaviorStatus(v.Status) {
		case models.KBFulfilled, models.KBNotObserved, models.KBContraIndicator:
		default:
			return nil, fmt.Errorf("verdicts[%d]: unknown status %q", i, v.Status)
		}
	}
	return payload.Verdicts, nil
}

func ParseNarrative(raw string) (NarrativePayload, error) {
	var p NarrativePayload
	if err := decodeStrict(raw, &p); err != nil {
		return NarrativePayload{}, err
	}
	if strings.TrimSpace(p.Explanation) == "" {
		return NarrativePayload{}, fmt.Errorf("empty explanation")
	}
	return p, nil
}

func ParseRecommendations(raw string) (RecommendationsPayload, error) {
	var p RecommendationsPayload
	if err := decodeStrict(raw, &p); err != nil {
		return RecommendationsPayload{}, err
	}
	if len(p.Recommendations) == 0 {
		return RecommendationsPayload{}, fmt.Errorf("empty recommendations list")
	}
	return p, nil
}

func ParseSummary(raw string) (SummaryPayload, error) {
	var p SummaryPayload
	if err := decodeStrict(raw, &p); err != nil {
		return SummaryPayload{}, err
	}
	if strings.TrimSpace(p.Summary) == "" {
		return SummaryPayload{}, fmt.Errorf("empty summary")
	}
	return p, nil
}

func ParseCritique(raw string) (CritiquePayload, error) {
	var p CritiquePayload
	if err := decodeStrict(raw, &p); err != nil {
		return CritiquePayload{}, err
	}
	if strings.TrimSpace(p.RevisedSummary) == "" {
		return CritiquePayload{}, fmt.Errorf("empty revised_summary")
	}
	return p, nil
}

func ParseRefinement(raw string) (RefinementPayload, error) {
	var p RefinementPayload
	if err := decodeStrict(raw, &p); err != nil {
		return RefinementPayload{}, err
	}
	if strings.TrimSpace(p.RefinedText) == "" {
		return RefinementPayload{}, fmt.Errorf("empty refined_text")
	}
	return p, nil
}

func decodeStrict(raw string, v any) error {
	raw = stripCodeFence(strings.TrimSpace(raw))
	if raw == "" {
		return fmt.Errorf("empty model output")
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return fmt.Errorf("decode model output: %w", err)
	}
	return nil
}

func stripCodeFence(s string) string {
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(s, "```")
	}
	return strings.TrimSpace(s)
}
