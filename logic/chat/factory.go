package chat

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"go.uber.org/zap"
)

const (
	ProviderGroq   = "groq"
	ProviderOpenAI = "openai"
	ProviderOllama = "ollama"
)

// New returns the chat model selected by cfg.Provider. The default provider is
// the in-house retrying client.
func New(ctx context.Context, cfg Config, log *zap.Logger) (model.BaseChatModel, error) {
	switch strings.ToLower(cfg.Provider) {
	case "", ProviderGroq:
		c, err := NewClient(cfg, log)
		if err != nil {
			return nil, err
		}
		return c, nil
	case ProviderOpenAI:
		return NewOpenAIChatModel(ctx, cfg)
	case ProviderOllama:
		return NewOllamaChatModel(ctx, cfg)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, cfg.Provider)
	}
}
