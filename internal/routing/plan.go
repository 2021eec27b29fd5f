package routing

import (
	"fmt"

	"assessflow/internal/config"
	"assessflow/internal/models"
)

const (
	RoleJudgment  = "judgment"
	RoleNarrative = "narrative"
	RoleBackup    = "backup"
	RoleAskAI     = "ask_ai"
)

// ModelBinding is one resolved role slot: concrete model id, temperature and
// the catalog rates needed to meter its calls.
type ModelBinding struct {
	Role                string  `json:"role"`
	ModelID             string  `json:"model_id"`
	Temperature         float32 `json:"temperature"`
	SupportsTemperature bool    `json:"supports_temperature"`
	InputCostPerMTok    int64   `json:"input_cost_per_mtok_micro_usd"`
	OutputCostPerMTok   int64   `json:"output_cost_per_mtok_micro_usd"`
}

// Plan is the immutable routing snapshot a pipeline run resolves once at
// start. Catalog or config edits after that point never reach an in-flight
// report.
type Plan struct {
	Bindings             map[string]ModelBinding `json:"bindings"`
	CallTimeoutSecs      int                     `json:"call_timeout_secs"`
	FulfillmentThreshold float64                 `json:"fulfillment_threshold"`
}

func (p Plan) ForRole(role string) (ModelBinding, error) {
	b, ok := p.Bindings[role]
	if !ok {
		return ModelBinding{}, fmt.Errorf("no model bound for role %s", role)
	}
	return b, nil
}

// BuildPlan validates the configured role bindings against the model catalog.
// A model absent from the catalog cannot be selected for any role.
func BuildPlan(cfg config.Config, catalog []models.AIModelConfig) (Plan, error) {
	byID := make(map[string]models.AIModelConfig, len(catalog))
	for _, mc := range catalog {
		byID[mc.ModelID] = mc
	}

	plan := Plan{
		Bindings:             map[string]ModelBinding{},
		CallTimeoutSecs:      cfg.ModelCallTimeoutSecs,
		FulfillmentThreshold: cfg.FulfillmentThreshold,
	}
	for role, want := range map[string]struct {
		modelID     string
		temperature float32
	}{
		RoleJudgment:  {cfg.JudgmentModel, cfg.JudgmentTemperature},
		RoleNarrative: {cfg.NarrativeModel, cfg.NarrativeTemperature},
		RoleBackup:    {cfg.BackupModel, cfg.JudgmentTemperature},
		RoleAskAI:     {cfg.AskAIModel, cfg.AskAITemperature},
	} {
		mc, ok := byID[want.modelID]
		if !ok {
			return Plan{}, fmt.Errorf("role %s: model %s not in catalog", role, want.modelID)
		}
		plan.Bindings[role] = ModelBinding{
			Role:                role,
			ModelID:             mc.ModelID,
			Temperature:         want.temperature,
			SupportsTemperature: mc.SupportsTemperature,
			InputCostPerMTok:    mc.InputCostPerMTok,
			OutputCostPerMTok:   mc.OutputCostPerMTok,
		}
	}
	return plan, nil
}
