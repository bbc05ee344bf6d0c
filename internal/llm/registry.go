package llm

import (
	"fmt"
	"sync"
)

// Factory constructs a Client from a free-form config map, matching the
// source's ClientManager._create_client dispatch-by-type-string approach.
type Factory func(config map[string]any) (Client, error)

// Registry resolves a configured `type` tag to a Client constructor.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry returns a Registry pre-populated with the three built-in
// provider families.
func NewRegistry() *Registry {
	r := &Registry{factories: make(map[string]Factory)}
	r.Register("openai", newOpenAIFromConfig)
	r.Register("anthropic", newAnthropicFromConfig)
	r.Register("ollama", newOllamaFromConfig)
	return r
}

// Register adds or replaces the factory for typeTag.
func (r *Registry) Register(typeTag string, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[typeTag] = factory
}

// Create resolves typeTag to a Client using the given config.
func (r *Registry) Create(typeTag string, config map[string]any) (Client, error) {
	r.mu.RLock()
	factory, ok := r.factories[typeTag]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("llm: unknown provider type %q", typeTag)
	}
	return factory(config)
}

func stringConfig(config map[string]any, key string) string {
	if v, ok := config[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

func intConfig(config map[string]any, key string) int {
	switch v := config[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return 0
}

func newOpenAIFromConfig(config map[string]any) (Client, error) {
	apiKey := stringConfig(config, "api_key")
	if apiKey == "" {
		return nil, fmt.Errorf("llm: openai provider requires api_key")
	}
	return NewOpenAIClient(OpenAIConfig{
		APIKey:       apiKey,
		BaseURL:      stringConfig(config, "base_url"),
		DefaultModel: stringConfig(config, "model"),
		MaxTokens:    intConfig(config, "max_tokens"),
	}), nil
}

func newAnthropicFromConfig(config map[string]any) (Client, error) {
	apiKey := stringConfig(config, "api_key")
	if apiKey == "" {
		return nil, fmt.Errorf("llm: anthropic provider requires api_key")
	}
	return NewAnthropicClient(AnthropicConfig{
		APIKey:       apiKey,
		BaseURL:      stringConfig(config, "base_url"),
		DefaultModel: stringConfig(config, "model"),
		MaxTokens:    intConfig(config, "max_tokens"),
	})
}

func newOllamaFromConfig(config map[string]any) (Client, error) {
	return NewOllamaClient(OllamaConfig{
		BaseURL:      stringConfig(config, "base_url"),
		DefaultModel: stringConfig(config, "model"),
	}), nil
}
