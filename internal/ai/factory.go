package ai

import (
	"fmt"

	"github.com/kiranshivaraju/hyroxreport/internal/config"
	"github.com/kiranshivaraju/hyroxreport/pkg/models"
)

// NewOracle constructs the chat oracle for cfg.Provider, wrapped with the
// configured retry policy. Called once at server startup.
func NewOracle(cfg config.AIConfig) (models.Oracle, error) {
	switch cfg.Provider {
	case "openai", "dashscope", "vllm", "ollama":
		ep := cfg.Endpoint()
		client := NewOpenAIClient(cfg.Provider, ep.BaseURL, ep.APIKey, ep.Model, cfg.InferenceTimeout, nil)
		return WithRetry(client, PolicyFromConfig(cfg.Retry)), nil
	default:
		return nil, fmt.Errorf("unknown AI provider %q: must be one of openai, dashscope, vllm, ollama", cfg.Provider)
	}
}
