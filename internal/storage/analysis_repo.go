package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"assessflow/internal/models"
)

type AnalysisRepo struct {
	db *DB
}

func NewAnalysisRepo(db *DB) *AnalysisRepo {
	return &AnalysisRepo{db: db}
}

func (r *AnalysisRepo) InsertEvidence(ctx context.Context, items []models.Evidence) error {
	for _, ev := range items {
		_, err := r.db.Pool.Exec(ctx, `
INSERT INTO evidence (evidence_id, report_id, document_id, competency_id, level, key_behavior_id, quote, polarity, reasoning, is_ai_generated)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NULLIF($9,''), $10)
ON CONFLICT (evidence_id) DO NOTHING`,
			ev.EvidenceID, ev.ReportID, ev.DocumentID, ev.CompetencyID, ev.Level, ev.KeyBehaviorID,
			ev.Quote, ev.Polarity, ev.Reasoning, ev.IsAIGenerated)
		if err != nil {
			return fmt.Errorf("insert evidence: %w", err)
		}
	}
	return nil
}

func (r *AnalysisRepo) ListEvidence(ctx context.Context, reportID string) ([]models.Evidence, error) {
	rows, err := r.db.Pool.Query(ctx, `
SELECT evidence_id, report_id, document_id, competency_id, level, key_behavior_id,
       quote, polarity, COALESCE(reasoning,''), is_ai_generated, created_at
FROM evidence
WHERE report_id=$1
ORDER BY created_at, evidence_id`, reportID)
	if err != nil {
		return nil, fmt.Errorf("list evidence: %w", err)
	}
	defer rows.Close()

	out := make([]models.Evidence, 0)
	for rows.Next() {
		var ev models.Evidence
		if err := rows.Scan(&ev.EvidenceID, &ev.ReportID, &ev.DocumentID, &ev.CompetencyID, &ev.Level,
			&ev.KeyBehaviorID, &ev.Quote, &ev.Polarity, &ev.Reasoning, &ev.IsAIGenerated, &ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan evidence: %w", err)
		}
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate evidence: %w", err)
	}
	return out, nil
}

func (r *AnalysisRepo) UpsertKBAnalyses(ctx context.Context, items []models.KeyBehaviorAnalysis) error {
	for _, a := range items {
		evJSON, _ := json.Marshal(a.EvidenceIDs)
		_, err := r.db.Pool.Exec(ctx, `
INSERT INTO kb_analyses (analysis_id, report_id, competency_id, level, key_behavior_id, status, reasoning, evidence_ids)
VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7,''), $8::jsonb)
ON CONFLICT (report_id, key_behavior_id)
DO UPDATE SET
  status = EXCLUDED.status,
  reasoning = EXCLUDED.reasoning,
  evidence_ids = EXCLUDED.evidence_ids`,
			a.AnalysisID, a.ReportID, a.CompetencyID, a.Level, a.KeyBehaviorID, a.Status, a.Reasoning, string(evJSON))
		if err != nil {
			return fmt.Errorf("upsert kb analysis: %w", err)
		}
	}
	return nil
}

func (r *AnalysisRepo) ListKBAnalyses(ctx context.Context, reportID string) ([]models.KeyBehaviorAnalysis, error) {
	rows, err := r.db.Pool.Query(ctx, `
SELECT analysis_id, report_id, competency_id, level, key_behavior_id, status, COALESCE(reasoning,''), evidence_ids, created_at
FROM kb_analyses
WHERE report_id=$1
ORDER BY competency_id, level, key_behavior_id`, reportID)
	if err != nil {
		return nil, fmt.Errorf("list kb analyses: %w", err)
	}
	defer rows.Close()

	out := make([]models.KeyBehaviorAnalysis, 0)
	for rows.Next() {
		var a models.KeyBehaviorAnalysis
		var evJSON []byte
		if err := rows.Scan(&a.AnalysisID, &a.ReportID, &a.CompetencyID, &a.Level, &a.KeyBehaviorID,
			&a.Status, &a.Reasoning, &evJSON, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan kb analysis: %w", err)
		}
		if len(evJSON) > 0 {
			if err := json.Unmarshal(evJSON, &a.EvidenceIDs); err != nil {
				return nil, fmt.Errorf("decode evidence ids: %w", err)
			}
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate kb analyses: %w", err)
	}
	return out, nil
}

func (r *AnalysisRepo) UpsertCompetencyAnalysis(ctx context.Context, a models.CompetencyAnalysis) error {
	recJSON, _ := json.Marshal(a.Recommendations)
	_, err := r.db.Pool.Exec(ctx, `
INSERT INTO competency_analyses (report_id, competency_id, achieved_level, target_level, explanation, recommendations)
VALUES ($1, $2, $3, $4, NULLIF($5,''), $6::jsonb)
ON CONFLICT (report_id, competency_id)
DO UPDATE SET
  achieved_level = EXCLUDED.achieved_level,
  target_level = EXCLUDED.target_level,
  explanation = COALESCE(EXCLUDED.explanation, competency_analyses.explanation),
  recommendations = EXCLUDED.recommendations,
  updated_at = NOW()`,
		a.ReportID, a.CompetencyID, a.AchievedLevel, a.TargetLevel, a.Explanation, string(recJSON))
	if err != nil {
		return fmt.Errorf("upsert competency analysis: %w", err)
	}
	return nil
}

func (r *AnalysisRepo) ListCompetencyAnalyses(ctx context.Context, reportID string) ([]models.CompetencyAnalysis, error) {
	rows, err := r.db.Pool.Query(ctx, `
SELECT report_id, competency_id, achieved_level, target_level, COALESCE(explanation,''), recommendations, updated_at
FROM competency_analyses
WHERE report_id=$1
ORDER BY competency_id`, reportID)
	if err != nil {
		return nil, fmt.Errorf("list competency analyses: %w", err)
	}
	defer rows.Close()

	out := make([]models.CompetencyAnalysis, 0)
	for rows.Next() {
		var a models.CompetencyAnalysis
		var recJSON []byte
		if err := rows.Scan(&a.ReportID, &a.CompetencyID, &a.AchievedLevel, &a.TargetLevel,
			&a.Explanation, &recJSON, &a.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan competency analysis: %w", err)
		}
		if len(recJSON) > 0 {
			if err := json.Unmarshal(recJSON, &a.Recommendations); err != nil {
				return nil, fmt.Errorf("decode recommendations: %w", err)
			}
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate competency analyses: %w", err)
	}
	return out, nil
}

func (r *AnalysisRepo) UpsertSummary(ctx context.Context, s models.ExecutiveSummary) error {
	_, err := r.db.Pool.Exec(ctx, `
INSERT INTO executive_summaries (report_id, draft, critique_notes, final_text, finalized)
VALUES ($1, NULLIF($2,''), NULLIF($3,''), NULLIF($4,''), $5)
ON CONFLICT (report_id)
DO UPDATE SET
  draft = COALESCE(EXCLUDED.draft, executive_summaries.draft),
  critique_notes = COALESCE(EXCLUDED.critique_notes, executive_summaries.critique_notes),
  final_text = COALESCE(EXCLUDED.final_text, executive_summaries.final_text),
  finalized = EXCLUDED.finalized,
  updated_at = NOW()`,
		s.ReportID, s.Draft, s.CritiqueNotes, s.FinalText, s.Finalized)
	if err != nil {
		return fmt.Errorf("upsert summary: %w", err)
	}
	return nil
}

func (r *AnalysisRepo) GetSummary(ctx context.Context, reportID string) (models.ExecutiveSummary, error) {
	var s models.ExecutiveSummary
	err := r.db.Pool.QueryRow(ctx, `
SELECT report_id, COALESCE(draft,''), COALESCE(critique_notes,''), COALESCE(final_text,''), finalized, updated_at
FROM executive_summaries
WHERE report_id=$1`, reportID).
		Scan(&s.ReportID, &s.Draft, &s.CritiqueNotes, &s.FinalText, &s.Finalized, &s.UpdatedAt)
	if err != nil {
		return models.ExecutiveSummary{}, fmt.Errorf("get summary: %w", err)
	}
	return s, nil
}
