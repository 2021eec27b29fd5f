package storage

import (
	"context"
	"fmt"

	"assessflow/internal/models"
)

type ModelRepo struct {
	db *DB
}

func NewModelRepo(db *DB) *ModelRepo {
	return &ModelRepo{db: db}
}

func (r *ModelRepo) ListCatalog(ctx context.Context) ([]models.AIModelConfig, error) {
	rows, err := r.db.Pool.Query(ctx, `
SELECT model_id, provider, context_window, input_cost_per_mtok, output_cost_per_mtok, supports_temperature
FROM ai_models
ORDER BY model_id`)
	if err != nil {
		return nil, fmt.Errorf("list model catalog: %w", err)
	}
	defer rows.Close()

	out := make([]models.AIModelConfig, 0)
	for rows.Next() {
		var mc models.AIModelConfig
		if err := rows.Scan(&mc.ModelID, &mc.Provider, &mc.ContextWindow, &mc.InputCostPerMTok, &mc.OutputCostPerMTok, &mc.SupportsTemperature); err != nil {
			return nil, fmt.Errorf("scan model: %w", err)
		}
		out = append(out, mc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate models: %w", err)
	}
	return out, nil
}

// Upsert lets operators register or reprice a model. Rates are micro-USD per
// million tokens.
func (r *ModelRepo) Upsert(ctx context.Context, mc models.AIModelConfig) error {
	_, err := r.db.Pool.Exec(ctx, `
INSERT INTO ai_models (model_id, provider, context_window, input_cost_per_mtok, output_cost_per_mtok, supports_temperature)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (model_id)
DO UPDATE SET
  provider = EXCLUDED.provider,
  context_window = EXCLUDED.context_window,
  input_cost_per_mtok = EXCLUDED.input_cost_per_mtok,
  output_cost_per_mtok = EXCLUDED.output_cost_per_mtok,
  supports_temperature = EXCLUDED.supports_temperature`,
		mc.ModelID, mc.Provider, mc.ContextWindow, mc.InputCostPerMTok, mc.OutputCostPerMTok, mc.SupportsTemperature)
	if err != nil {
		return fmt.Errorf("upsert model: %w", err)
	}
	return nil
}
