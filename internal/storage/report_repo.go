package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"assessflow/internal/models"
)

type ReportRepo struct {
	db *DB
}

func NewReportRepo(db *DB) *ReportRepo {
	return &ReportRepo{db: db}
}

func (r *ReportRepo) Create(ctx context.Context, rep models.Report) error {
	targetJSON, _ := json.Marshal(rep.TargetLevels)
	_, err := r.db.Pool.Exec(ctx, `
INSERT INTO reports (report_id, project_id, title, target_levels, specific_context, status)
VALUES ($1, $2, $3, $4::jsonb, NULLIF($5,''), $6)`,
		rep.ReportID, rep.ProjectID, rep.Title, string(targetJSON), rep.SpecificContext, rep.Status)
	if err != nil {
		return fmt.Errorf("create report: %w", err)
	}
	return nil
}

const reportColumns = `
report_id, project_id::text, title, target_levels, COALESCE(specific_context,''),
status, COALESCE(current_phase,''), completed_phases, COALESCE(failed_phase,''),
COALESCE(fail_reason,''), created_at, updated_at`

func scanReport(row interface{ Scan(...any) error }) (models.Report, error) {
	var rep models.Report
	var targetJSON, completedJSON []byte
	if err := row.Scan(&rep.ReportID, &rep.ProjectID, &rep.Title, &targetJSON, &rep.SpecificContext,
		&rep.Status, &rep.CurrentPhase, &completedJSON, &rep.FailedPhase,
		&rep.FailReason, &rep.CreatedAt, &rep.UpdatedAt); err != nil {
		return models.Report{}, err
	}
	if len(targetJSON) > 0 {
		if err := json.Unmarshal(targetJSON, &rep.TargetLevels); err != nil {
			return models.Report{}, fmt.Errorf("decode target levels: %w", err)
		}
	}
	if len(completedJSON) > 0 {
		if err := json.Unmarshal(completedJSON, &rep.CompletedPhases); err != nil {
			return models.Report{}, fmt.Errorf("decode completed phases: %w", err)
		}
	}
	return rep, nil
}

func (r *ReportRepo) Get(ctx context.Context, reportID string) (models.Report, error) {
	row := r.db.Pool.QueryRow(ctx, `SELECT `+reportColumns+` FROM reports WHERE report_id=$1`, reportID)
	rep, err := scanReport(row)
	if err != nil {
		return models.Report{}, fmt.Errorf("get report: %w", err)
	}
	return rep, nil
}

func (r *ReportRepo) UpdateStatus(ctx context.Context, reportID, status, failedPhase, failReason string) error {
	_, err := r.db.Pool.Exec(ctx, `
UPDATE reports
SET status=$2, failed_phase=NULLIF($3,''), fail_reason=NULLIF($4,''), updated_at=NOW()
WHERE report_id=$1`, reportID, status, failedPhase, failReason)
	if err != nil {
		return fmt.Errorf("update report status: %w", err)
	}
	return nil
}

func (r *ReportRepo) SetCurrentPhase(ctx context.Context, reportID, phase string) error {
	_, err := r.db.Pool.Exec(ctx, `
UPDATE reports SET current_phase=NULLIF($2,''), updated_at=NOW() WHERE report_id=$1`, reportID, phase)
	if err != nil {
		return fmt.Errorf("set current phase: %w", err)
	}
	return nil
}

// MarkPhaseComplete appends the phase to completed_phases exactly once so a
// resumed run can skip everything already done.
func (r *ReportRepo) MarkPhaseComplete(ctx context.Context, reportID, phase string) error {
	_, err := r.db.Pool.Exec(ctx, `
UPDATE reports
SET completed_phases = CASE
      WHEN completed_phases ? $2 THEN completed_phases
      ELSE completed_phases || to_jsonb($2::text)
    END,
    updated_at = NOW()
WHERE report_id=$1`, reportID, phase)
	if err != nil {
		return fmt.Errorf("mark phase complete: %w", err)
	}
	return nil
}

func (r *ReportRepo) ListByStatus(ctx context.Context, status string) ([]models.Report, error) {
	rows, err := r.db.Pool.Query(ctx, `SELECT `+reportColumns+` FROM reports WHERE status=$1 ORDER BY created_at`, status)
	if err != nil {
		return nil, fmt.Errorf("list reports: %w", err)
	}
	defer rows.Close()

	out := make([]models.Report, 0)
	for rows.Next() {
		rep, err := scanReport(rows)
		if err != nil {
			return nil, fmt.Errorf("scan report: %w", err)
		}
		out = append(out, rep)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate reports: %w", err)
	}
	return out, nil
}

// CountByStatus returns status -> report count for the queue stats endpoint.
func (r *ReportRepo) CountByStatus(ctx context.Context) (map[string]int, error) {
	rows, err := r.db.Pool.Query(ctx, `SELECT status, COUNT(*) FROM reports GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("count reports: %w", err)
	}
	defer rows.Close()

	out := map[string]int{}
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan report count: %w", err)
		}
		out[status] = n
	}
	return out, rows.Err()
}
