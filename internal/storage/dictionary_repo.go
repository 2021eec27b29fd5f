package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"assessflow/internal/models"
)

type DictionaryRepo struct {
	db *DB
}

func NewDictionaryRepo(db *DB) *DictionaryRepo {
	return &DictionaryRepo{db: db}
}

// SaveProjectDictionary replaces the project's live dictionary. Running
// reports are unaffected because each run works off its own snapshot.
func (r *DictionaryRepo) SaveProjectDictionary(ctx context.Context, projectID string, dict models.CompetencyDictionary) error {
	body, err := json.Marshal(dict)
	if err != nil {
		return fmt.Errorf("encode dictionary: %w", err)
	}
	_, err = r.db.Pool.Exec(ctx, `
INSERT INTO project_dictionaries (project_id, body)
VALUES ($1, $2::jsonb)
ON CONFLICT (project_id)
DO UPDATE SET body = EXCLUDED.body, updated_at = NOW()`, projectID, string(body))
	if err != nil {
		return fmt.Errorf("save project dictionary: %w", err)
	}
	return nil
}

func (r *DictionaryRepo) GetProjectDictionary(ctx context.Context, projectID string) (models.CompetencyDictionary, error) {
	var body []byte
	err := r.db.Pool.QueryRow(ctx, `
SELECT body FROM project_dictionaries WHERE project_id=$1`, projectID).Scan(&body)
	if err != nil {
		return models.CompetencyDictionary{}, fmt.Errorf("get project dictionary: %w", err)
	}
	var dict models.CompetencyDictionary
	if err := json.Unmarshal(body, &dict); err != nil {
		return models.CompetencyDictionary{}, fmt.Errorf("decode project dictionary: %w", err)
	}
	return dict, nil
}

// SnapshotForReport freezes the project's live dictionary for one report run.
// Idempotent: a retried run keeps the snapshot it took first.
func (r *DictionaryRepo) SnapshotForReport(ctx context.Context, projectID, reportID string) error {
	_, err := r.db.Pool.Exec(ctx, `
INSERT INTO report_dictionaries (report_id, body)
SELECT $2, body FROM project_dictionaries WHERE project_id=$1
ON CONFLICT (report_id) DO NOTHING`, projectID, reportID)
	if err != nil {
		return fmt.Errorf("snapshot dictionary: %w", err)
	}
	return nil
}

func (r *DictionaryRepo) GetReportDictionary(ctx context.Context, reportID string) (models.CompetencyDictionary, error) {
	var body []byte
	err := r.db.Pool.QueryRow(ctx, `
SELECT body FROM report_dictionaries WHERE report_id=$1`, reportID).Scan(&body)
	if err != nil {
		return models.CompetencyDictionary{}, fmt.Errorf("get report dictionary: %w", err)
	}
	var dict models.CompetencyDictionary
	if err := json.Unmarshal(body, &dict); err != nil {
		return models.CompetencyDictionary{}, fmt.Errorf("decode report dictionary: %w", err)
	}
	return dict, nil
}
