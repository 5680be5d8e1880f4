package perception

import (
	"fmt"
	"os"

	"ontoforge/internal/config"
)

// ProviderConfig holds the resolved provider and API key.
type ProviderConfig struct {
	Provider Provider
	APIKey   string
	Model    string
	BaseURL  string
}

// NewClient creates an LLM client from the workspace configuration.
func NewClient(cfg *config.Config) (LLMClient, error) {
	pc := &ProviderConfig{
		Provider: Provider(cfg.LLM.Provider),
		APIKey:   cfg.LLM.APIKey,
		Model:    cfg.LLM.Model,
		BaseURL:  cfg.LLM.BaseURL,
	}
	if pc.APIKey == "" {
		detected, err := DetectProvider()
		if err != nil {
			return nil, err
		}
		pc = detected
	}
	return NewClientFromConfig(pc)
}

// DetectProvider resolves a provider from environment variables.
// Priority: ANTHROPIC_API_KEY > OPENAI_API_KEY.
func DetectProvider() (*ProviderConfig, error) {
	providers := []struct {
		envVar   string
		provider Provider
	}{
		{"ANTHROPIC_API_KEY", ProviderAnthropic},
		{"OPENAI_API_KEY", ProviderOpenAI},
	}

	for _, p := range providers {
		if key := os.Getenv(p.envVar); key != "" {
			return &ProviderConfig{
				Provider: p.provider,
				APIKey:   key,
			}, nil
		}
	}

	return nil, fmt.Errorf("no API key found; edit .onto/config.yaml or set ANTHROPIC_API_KEY or OPENAI_API_KEY")
}

// NewClientFromConfig creates an LLM client from a provider config.
func NewClientFromConfig(pc *ProviderConfig) (LLMClient, error) {
	switch pc.Provider {
	case ProviderAnthropic:
		clientCfg := DefaultAnthropicConfig(pc.APIKey)
		if pc.Model != "" {
			clientCfg.Model = pc.Model
		}
		if pc.BaseURL != "" {
			clientCfg.BaseURL = pc.BaseURL
		}
		return NewAnthropicClientWithConfig(clientCfg), nil

	case ProviderOpenAI:
		clientCfg := DefaultOpenAIConfig(pc.APIKey)
		if pc.Model != "" {
			clientCfg.Model = pc.Model
		}
		if pc.BaseURL != "" {
			clientCfg.BaseURL = pc.BaseURL
		}
		return NewOpenAIClientWithConfig(clientCfg), nil

	default:
		return nil, fmt.Errorf("unknown provider: %s (valid: anthropic, openai)", pc.Provider)
	}
}
