package routing

import (
	"testing"

	"assessflow/internal/config"
	"assessflow/internal/models"

	"github.com/stretchr/testify/require"
)

func testCatalog() []models.AIModelConfig {
	return []models.AIModelConfig{
		{ModelID: "judge-1", Provider: "openai", SupportsTemperature: true, InputCostPerMTok: 3_000_000, OutputCostPerMTok: 15_000_000},
		{ModelID: "writer-1", Provider: "openai", SupportsTemperature: true, InputCostPerMTok: 1_000_000, OutputCostPerMTok: 5_000_000},
		{ModelID: "reasoner-1", Provider: "openai", SupportsTemperature: false, InputCostPerMTok: 2_000_000, OutputCostPerMTok: 8_000_000},
	}
}

func testConfig() config.Config {
	cfg := config.Load()
	cfg.JudgmentModel = "judge-1"
	cfg.NarrativeModel = "writer-1"
	cfg.BackupModel = "reasoner-1"
	cfg.AskAIModel = "writer-1"
	return cfg
}

func TestBuildPlanBindsAllRoles(t *testing.T) {
	plan, err := BuildPlan(testConfig(), testCatalog())
	require.NoError(t, err)

	for _, role := range []string{RoleJudgment, RoleNarrative, RoleBackup, RoleAskAI} {
		b, err := plan.ForRole(role)
		require.NoError(t, err)
		require.NotEmpty(t, b.ModelID)
	}

	backup, _ := plan.ForRole(RoleBackup)
	require.False(t, backup.SupportsTemperature)
	require.Equal(t, int64(2_000_000), backup.InputCostPerMTok)
}

func TestBuildPlanRejectsUncataloguedModel(t *testing.T) {
	cfg := testConfig()
	cfg.BackupModel = "not-in-catalog"
	_, err := BuildPlan(cfg, testCatalog())
	require.Error(t, err)
}

func TestForRoleUnknown(t *testing.T) {
	plan, err := BuildPlan(testConfig(), testCatalog())
	require.NoError(t, err)
	_, err = plan.ForRole("chit-chat")
	require.Error(t, err)
}
