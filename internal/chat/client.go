package chat

import (
	"context"
	"fmt"

	"github.com/imkarma/taskplan/internal/config"
)

// Client produces the assistant's next reply for a conversation.
type Client interface {
	Complete(ctx context.Context, system string, msgs []Message) (string, error)
}

// NewClient builds the client for the configured provider. The API key is
// read from the environment variable named in cfg.
func NewClient(cfg config.Chat) (Client, error) {
	apiKey, err := cfg.APIKey()
	if err != nil {
		return nil, err
	}

	switch cfg.Provider {
	case "", "anthropic":
		return NewAnthropicClient(cfg, apiKey), nil
	case "openai":
		return NewOpenAIClient(cfg, apiKey), nil
	default:
		return nil, fmt.Errorf("unsupported chat provider: %s", cfg.Provider)
	}
}
