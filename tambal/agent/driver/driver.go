package driver

import (
	"context"
	"fmt"

	"github.com/odit-bit/tambal/tambal/agent"
)

const (
	NameOpenAI = "openai"
	NameOllama = "ollama"
	NameGenAI  = "genai"
)

// New builds the provider registered under name.
func New(ctx context.Context, name, key string, config *Config) (agent.Provider, error) {
	if config == nil {
		config = &Config{}
	}
	switch name {
	case NameOpenAI:
		return NewOpenAIAdapter(key, config)
	case NameOllama:
		return NewOllamaAdapter(config)
	case NameGenAI:
		return NewGeminiAdapter(ctx, key, config)
	}
	return nil, fmt.Errorf("unknown provider: %q", name)
}
