// Package credential resolves decrypted per-provider API keys. Key issuance
// and lifecycle live outside this service; the gateway only consumes.
package credential

import (
	"errors"
	"os"
	"strings"
)

// ErrMissingCredential means no key is configured for the requested provider.
var ErrMissingCredential = errors.New("no API key configured for provider")

// Store yields the decrypted API key for a provider, if one is configured.
type Store interface {
	KeyFor(provider string) (string, bool)
}

var envKeys = map[string]string{
	"openai":    "OPENAI_API_KEY",
	"anthropic": "ANTHROPIC_API_KEY",
	"gemini":    "GEMINI_API_KEY",
	"cerebras":  "CEREBRAS_API_KEY",
}

// EnvStore reads per-provider keys from the environment, decrypting stored
// values with the configured secret.
type EnvStore struct {
	secret string
}

func NewEnvStore(secret string) *EnvStore {
	return &EnvStore{secret: secret}
}

func (s *EnvStore) KeyFor(provider string) (string, bool) {
	name, ok := envKeys[provider]
	if !ok {
		return "", false
	}
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return "", false
	}
	return Decrypt(s.secret, raw), true
}

// StaticStore holds keys directly; used by tests and embedded setups.
type StaticStore map[string]string

func (s StaticStore) KeyFor(provider string) (string, bool) {
	key, ok := s[provider]
	return key, ok && key != ""
}
