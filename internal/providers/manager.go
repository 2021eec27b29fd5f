package providers

import (
	"fmt"
	"strings"

	"assessflow/internal/models"
)

// Manager resolves a catalog model to the gateway that serves it. Providers
// are keyed by the catalog's provider column; "name:alias" selects an API key
// alias for multi-tenant keys.
type Manager struct {
	catalog   map[string]models.AIModelConfig
	providers map[string]ChatProvider
}

func NewManager(catalog []models.AIModelConfig) (*Manager, error) {
	m := &Manager{
		catalog:   make(map[string]models.AIModelConfig, len(catalog)),
		providers: map[string]ChatProvider{},
	}
	for _, mc := range catalog {
		if mc.ModelID == "" {
			return nil, fmt.Errorf("catalog entry with empty model id")
		}
		m.catalog[mc.ModelID] = mc
		key := strings.ToLower(strings.TrimSpace(mc.Provider))
		if _, ok := m.providers[key]; ok {
			continue
		}
		p, err := buildProvider(key)
		if err != nil {
			return nil, err
		}
		m.providers[key] = p
	}
	return m, nil
}

func (m *Manager) ForModel(modelID string) (ChatProvider, models.AIModelConfig, error) {
	mc, ok := m.catalog[modelID]
	if !ok {
		return nil, models.AIModelConfig{}, fmt.Errorf("model %s not in catalog", modelID)
	}
	p, ok := m.providers[strings.ToLower(strings.TrimSpace(mc.Provider))]
	if !ok {
		return nil, models.AIModelConfig{}, fmt.Errorf("no provider registered for %s", mc.Provider)
	}
	return p, mc, nil
}

func buildProvider(ref string) (ChatProvider, error) {
	name, alias := ref, ""
	if strings.Contains(ref, ":") {
		x := strings.SplitN(ref, ":", 2)
		name, alias = strings.TrimSpace(x[0]), strings.TrimSpace(x[1])
	}
	switch name {
	case "mock", "":
		return NewMockProvider(), nil
	case "openai":
		return NewOpenAIProvider(alias), nil
	default:
		return nil, fmt.Errorf("unsupported provider: %s", name)
	}
}
