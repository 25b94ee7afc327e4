package providers

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Logical model roles used across the pipeline. Each resolves to a native
// model id per provider through the ModelTable.
const (
	ModelPlanning = "meta-llama/Llama-3.3-70B-Instruct-Turbo"
	ModelJSON     = "meta-llama/Meta-Llama-3.1-70B-Instruct-Turbo"
	ModelSummary  = "meta-llama/Llama-3.3-70B-Instruct-Turbo"
	ModelAnswer   = "deepseek-ai/DeepSeek-V3"
)

// ModelTable translates a logical model identifier into a provider's native
// identifier. Resolution order: the explicit cross-provider mapping, then
// the per-provider table matched by key or value, then identity.
type ModelTable struct {
	// Cross maps a logical model id to its native id per provider.
	Cross map[string]map[Name]string `yaml:"cross"`
	// PerProvider maps a role key to a native model id, per provider.
	PerProvider map[Name]map[string]string `yaml:"per_provider"`
}

// DefaultModelTable returns the built-in mapping for the Together/OpenRouter
// pair.
func DefaultModelTable() *ModelTable {
	return &ModelTable{
		Cross: map[string]map[Name]string{
			"meta-llama/Llama-3.3-70B-Instruct-Turbo": {
				Together:   "meta-llama/Llama-3.3-70B-Instruct-Turbo",
				OpenRouter: "meta-llama/llama-3.3-70b-instruct",
			},
			"meta-llama/Meta-Llama-3.1-70B-Instruct-Turbo": {
				Together:   "meta-llama/Meta-Llama-3.1-70B-Instruct-Turbo",
				OpenRouter: "meta-llama/llama-3.1-70b-instruct",
			},
			"deepseek-ai/DeepSeek-V3": {
				Together:   "deepseek-ai/DeepSeek-V3",
				OpenRouter: "deepseek/deepseek-chat",
			},
		},
		PerProvider: map[Name]map[string]string{
			Together: {
				"planning": "meta-llama/Llama-3.3-70B-Instruct-Turbo",
				"json":     "meta-llama/Meta-Llama-3.1-70B-Instruct-Turbo",
				"summary":  "meta-llama/Llama-3.3-70B-Instruct-Turbo",
				"answer":   "deepseek-ai/DeepSeek-V3",
			},
			OpenRouter: {
				"planning": "meta-llama/llama-3.3-70b-instruct",
				"json":     "meta-llama/llama-3.1-70b-instruct",
				"summary":  "meta-llama/llama-3.3-70b-instruct",
				"answer":   "deepseek/deepseek-chat",
			},
		},
	}
}

// LoadModelTable reads a mapping override file. Missing sections fall back
// to the built-in defaults.
func LoadModelTable(path string) (*ModelTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read model table: %w", err)
	}
	t := DefaultModelTable()
	if err := yaml.Unmarshal(data, t); err != nil {
		return nil, fmt.Errorf("unmarshal model table: %w", err)
	}
	return t, nil
}

// Resolve maps a logical model id to the provider's native id. Unknown
// models resolve to themselves.
func (t *ModelTable) Resolve(model string, provider Name) string {
	if byProvider, ok := t.Cross[model]; ok {
		if native, ok := byProvider[provider]; ok && native != "" {
			return native
		}
	}
	if table, ok := t.PerProvider[provider]; ok {
		for key, value := range table {
			if model == key || model == value {
				return value
			}
		}
	}
	return model
}
