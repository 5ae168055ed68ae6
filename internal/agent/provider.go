package agent

import (
	"context"
	"fmt"
	"sort"

	"github.com/cloudwego/eino-ext/components/model/deepseek"
	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"

	"github.com/pkrishnath/AI-Trader/config"
)

// ModelFactory builds a tool-calling chat model for one agent entry.
type ModelFactory func(ctx context.Context, cfg config.AgentConfig) (model.ToolCallingChatModel, error)

var providers = map[string]ModelFactory{}

// RegisterProvider makes a factory available under a provider tag.
// OpenAI-compatible endpoints reuse the "openai" provider with a
// custom base URL.
func RegisterProvider(name string, f ModelFactory) {
	providers[name] = f
}

// NewChatModel resolves the provider tag in cfg and constructs the
// chat model.
func NewChatModel(ctx context.Context, cfg config.AgentConfig) (model.ToolCallingChatModel, error) {
	f, ok := providers[cfg.Provider]
	if !ok {
		return nil, fmt.Errorf("unknown provider %q (have: %v)", cfg.Provider, RegisteredProviders())
	}
	apiKey := cfg.APIKey()
	if apiKey == "" {
		return nil, fmt.Errorf("no API key resolved for agent %s", cfg.Signature)
	}
	return f(ctx, cfg)
}

func RegisteredProviders() []string {
	names := make([]string, 0, len(providers))
	for name := range providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

const defaultMaxTokens = 8192

func init() {
	RegisterProvider("openai", func(ctx context.Context, cfg config.AgentConfig) (model.ToolCallingChatModel, error) {
		maxTokens := defaultMaxTokens
		return openai.NewChatModel(ctx, &openai.ChatModelConfig{
			BaseURL:   cfg.BaseURL,
			APIKey:    cfg.APIKey(),
			Model:     cfg.Model,
			MaxTokens: &maxTokens,
		})
	})

	RegisterProvider("deepseek", func(ctx context.Context, cfg config.AgentConfig) (model.ToolCallingChatModel, error) {
		return deepseek.NewChatModel(ctx, &deepseek.ChatModelConfig{
			APIKey:    cfg.APIKey(),
			Model:     cfg.Model,
			MaxTokens: defaultMaxTokens,
		})
	})
}
