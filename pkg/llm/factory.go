package llm

import (
	"fmt"

	"go.uber.org/zap"
)

// Chat providers selectable via configuration.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

// NewChatClient creates the chat-completion client for the configured
// provider. OpenAI-compatible is the default and covers local endpoints
// (vLLM, Ollama) as well as the hosted API.
func NewChatClient(provider string, cfg *Config, logger *zap.Logger) (LLMClient, error) {
	switch provider {
	case "", ProviderOpenAI:
		return NewClient(cfg, logger)
	case ProviderAnthropic:
		return NewAnthropicClient(cfg, logger)
	default:
		return nil, fmt.Errorf("unknown llm provider %q", provider)
	}
}

// NewEmbeddingClient creates the embedding client. Embeddings always go
// through an OpenAI-compatible endpoint regardless of the chat provider.
func NewEmbeddingClient(cfg *Config, logger *zap.Logger) (LLMClient, error) {
	return NewClient(cfg, logger)
}
