package providers

import (
	"context"
	"testing"

	"assessflow/internal/models"

	"github.com/stretchr/testify/require"
)

func TestMockVerdictsCoverPromptedKeyBehaviors(t *testing.T) {
	p := NewMockProvider()
	resp, err := p.Complete(context.Background(), ChatRequest{
		Action:     models.PhaseKBFulfillment,
		UserPrompt: `{"key_behaviors":[{"key_behavior_id":"kb1"},{"key_behavior_id":"kb2"},{"key_behavior_id":"kb1"}]}`,
	})
	require.NoError(t, err)
	require.Contains(t, resp.Text, `"key_behavior_id":"kb1"`)
	require.Contains(t, resp.Text, `"key_behavior_id":"kb2"`)
	require.Greater(t, resp.OutputTokens, 0)
}

func TestManagerRejectsUncataloguedModel(t *testing.T) {
	m, err := NewManager([]models.AIModelConfig{
		{ModelID: "mock-judgment", Provider: "mock"},
	})
	require.NoError(t, err)

	_, _, err = m.ForModel("gpt-unlisted")
	require.Error(t, err)

	p, mc, err := m.ForModel("mock-judgment")
	require.NoError(t, err)
	require.NotNil(t, p)
	require.Equal(t, "mock-judgment", mc.ModelID)
}

func TestManagerRejectsUnknownProvider(t *testing.T) {
	_, err := NewManager([]models.AIModelConfig{
		{ModelID: "m1", Provider: "carrier-pigeon"},
	})
	require.Error(t, err)
}
