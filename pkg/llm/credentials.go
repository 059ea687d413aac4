package llm

import (
	"context"
	"fmt"
	"os"
)

// CredentialProvider supplies the API key for a backend.
type CredentialProvider interface {
	APIKey(ctx context.Context, backend Backend) (string, error)
}

// DefaultKeyEnv maps each dialect to the environment variable read by EnvCredentials.
var DefaultKeyEnv = map[Dialect]string{
	DialectOpenAI:    "OPENAI_API_KEY",
	DialectAnthropic: "ANTHROPIC_API_KEY",
}

// EnvCredentials reads keys from the environment.
// Backend.KeyEnv takes precedence over DefaultKeyEnv.
type EnvCredentials struct{}

func (EnvCredentials) APIKey(ctx context.Context, b Backend) (string, error) {
	name := b.KeyEnv
	if name == "" {
		name = DefaultKeyEnv[b.Dialect]
	}
	if name == "" {
		return "", fmt.Errorf("no key variable for backend %q", b.Name)
	}
	key := os.Getenv(name)
	if key == "" {
		return "", fmt.Errorf("environment variable %s is empty", name)
	}
	return key, nil
}

// StaticCredentials returns fixed keys by backend name.
type StaticCredentials map[string]string

func (s StaticCredentials) APIKey(ctx context.Context, b Backend) (string, error) {
	if key, ok := s[b.Name]; ok {
		return key, nil
	}
	return "", fmt.Errorf("no key for backend %q", b.Name)
}
