package llm

import (
	"fmt"
	"strings"

	"voice-intake/internal/config"
)

// NewFromConfig creates the chat-completion client selected by LLM_PROVIDER.
func NewFromConfig(cfg *config.Config) (Client, error) {
	switch config.LLMProvider(strings.ToLower(string(cfg.LLMProvider))) {
	case config.ProviderAzure:
		return NewAzureOpenAI(cfg.OpenAIEndpoint, cfg.OpenAIKey, cfg.OpenAIDeploymentName, cfg.OpenAIAPIVersion), nil
	case config.ProviderOpenAI:
		return NewOpenAI(cfg.OpenAIKey, cfg.OpenAIEndpoint, cfg.OpenAIDeploymentName), nil
	case config.ProviderYandex:
		return NewYandex(cfg.YandexOAuthToken, cfg.YandexFolderID)
	default:
		return nil, fmt.Errorf("unknown llm provider: %s", cfg.LLMProvider)
	}
}
