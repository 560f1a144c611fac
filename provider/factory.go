package provider

import (
	"fmt"
	"os"
)

// New constructs a provider by name. API keys and base URL overrides come
// from the environment, never from config files.
func New(name, model string) (Provider, error) {
	switch name {
	case "anthropic":
		return NewAnthropicProvider(AnthropicConfig{
			APIKey:  os.Getenv("ANTHROPIC_API_KEY"),
			Model:   model,
			BaseURL: os.Getenv("ANTHROPIC_BASE_URL"),
		}), nil
	case "openai", "nim", "deepseek", "openrouter":
		return NewOpenAIProvider(OpenAIConfig{
			APIKey:  os.Getenv("OPENAI_API_KEY"),
			Model:   model,
			BaseURL: os.Getenv("OPENAI_BASE_URL"),
		}), nil
	default:
		return nil, fmt.Errorf("unknown provider %q", name)
	}
}
