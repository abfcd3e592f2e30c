package provider

import "fmt"

// RegistryConfig holds per-provider endpoint overrides plus the Vertex
// platform settings. Empty URLs mean the public endpoints.
type RegistryConfig struct {
	OpenAIBaseURL    string
	CerebrasBaseURL  string
	AnthropicBaseURL string
	GeminiBaseURL    string
	Vertex           VertexConfig
}

// Registry resolves a provider name plus credential to an adapter. Resolution
// is a pure lookup: no network activity happens until the adapter is called.
type Registry struct {
	cfg RegistryConfig
}

func NewRegistry(cfg RegistryConfig) *Registry {
	return &Registry{cfg: cfg}
}

// Resolve maps a provider name to its adapter, or ErrUnknownProvider.
func (r *Registry) Resolve(name, apiKey string) (Provider, error) {
	switch name {
	case "openai":
		return NewOpenAI(apiKey, r.cfg.OpenAIBaseURL), nil
	case "cerebras":
		return NewCerebras(apiKey, r.cfg.CerebrasBaseURL), nil
	case "anthropic":
		return NewAnthropic(apiKey, r.cfg.AnthropicBaseURL), nil
	case "gemini":
		return NewGemini(apiKey, r.cfg.GeminiBaseURL), nil
	case "vertex_mistral":
		return NewVertexMistral(r.cfg.Vertex), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, name)
	}
}

// RequiresKey reports whether the named provider needs a caller credential.
// Vertex-hosted models authenticate through the managed platform instead.
func (r *Registry) RequiresKey(name string) bool {
	return name != "vertex_mistral"
}
