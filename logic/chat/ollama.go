package chat

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino-ext/components/model/ollama"
	"github.com/cloudwego/eino/components/model"
)

// NewOllamaChatModel connects to a local Ollama server. No API key is needed.
func NewOllamaChatModel(ctx context.Context, cfg Config) (model.ToolCallingChatModel, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost:11434"
	}
	chatModel, err := ollama.NewChatModel(ctx, &ollama.ChatModelConfig{
		BaseURL: cfg.BaseURL,
		Model:   cfg.Model,
	})
	if err != nil {
		return nil, fmt.Errorf("create ollama chat model: %w", err)
	}
	return chatModel, nil
}
