package storage

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"assessflow/internal/models"
)

type UsageRepo struct {
	db *DB
}

func NewUsageRepo(db *DB) *UsageRepo {
	return &UsageRepo{db: db}
}

// Insert appends one ledger row. The ledger is append-only; failed attempts
// that consumed tokens are recorded like successes, with outcome FAILED.
func (r *UsageRepo) Insert(ctx context.Context, e models.UsageLogEntry) error {
	_, err := r.db.Pool.Exec(ctx, `
INSERT INTO usage_log (entry_id, report_id, project_id, action, role, model_id, attempt,
                       input_tokens, output_tokens, cost_micro_usd, duration_ms, outcome,
                       error_type, prompt_hash, response_hash)
VALUES (COALESCE(NULLIF($1,'')::uuid, gen_random_uuid()), $2, $3, $4, $5, $6, $7,
        $8, $9, $10, $11, $12, NULLIF($13,''), NULLIF($14,''), NULLIF($15,''))`,
		e.EntryID, e.ReportID, e.ProjectID, e.Action, e.Role, e.ModelID, e.Attempt,
		e.InputTokens, e.OutputTokens, e.CostMicroUSD, e.DurationMS, e.Outcome,
		e.ErrorType, e.PromptHash, e.ResponseHash)
	if err != nil {
		return fmt.Errorf("insert usage entry: %w", err)
	}
	return nil
}

// UsageFilter narrows ledger queries; zero values mean "any".
type UsageFilter struct {
	From      time.Time
	To        time.Time
	ProjectID string
	ReportID  string
	ModelID   string
	Action    string
}

func (f UsageFilter) where() (string, []any) {
	clauses := []string{}
	args := []any{}
	add := func(cond string, v any) {
		args = append(args, v)
		clauses = append(clauses, strings.ReplaceAll(cond, "?", "$"+strconv.Itoa(len(args))))
	}
	if !f.From.IsZero() {
		add("created_at >= ?", f.From)
	}
	if !f.To.IsZero() {
		add("created_at < ?", f.To)
	}
	if f.ProjectID != "" {
		add("project_id = ?", f.ProjectID)
	}
	if f.ReportID != "" {
		add("report_id = ?", f.ReportID)
	}
	if f.ModelID != "" {
		add("model_id = ?", f.ModelID)
	}
	if f.Action != "" {
		add("action = ?", f.Action)
	}
	if len(clauses) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

// TotalCost sums cost over the filtered rows. Costs are integers, so the SQL
// sum matches recomputing from the individual entries exactly.
func (r *UsageRepo) TotalCost(ctx context.Context, f UsageFilter) (int64, error) {
	where, args := f.where()
	var total int64
	err := r.db.Pool.QueryRow(ctx, `SELECT COALESCE(SUM(cost_micro_usd),0) FROM usage_log`+where, args...).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("sum usage cost: %w", err)
	}
	return total, nil
}

func (r *UsageRepo) List(ctx context.Context, f UsageFilter) ([]models.UsageLogEntry, error) {
	where, args := f.where()
	rows, err := r.db.Pool.Query(ctx, `
SELECT entry_id::text, report_id, project_id, action, role, model_id, attempt,
       input_tokens, output_tokens, cost_micro_usd, duration_ms, outcome,
       COALESCE(error_type,''), COALESCE(prompt_hash,''), COALESCE(response_hash,''), created_at
FROM usage_log`+where+` ORDER BY created_at`, args...)
	if err != nil {
		return nil, fmt.Errorf("list usage entries: %w", err)
	}
	defer rows.Close()

	out := make([]models.UsageLogEntry, 0)
	for rows.Next() {
		var e models.UsageLogEntry
		if err := rows.Scan(&e.EntryID, &e.ReportID, &e.ProjectID, &e.Action, &e.Role, &e.ModelID, &e.Attempt,
			&e.InputTokens, &e.OutputTokens, &e.CostMicroUSD, &e.DurationMS, &e.Outcome,
			&e.ErrorType, &e.PromptHash, &e.ResponseHash, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan usage entry: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate usage entries: %w", err)
	}
	return out, nil
}
