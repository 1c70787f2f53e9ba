package config

import (
	"context"
	"os"
)

// EnvVarProvider implements SecretProvider by resolving each key as the name
// of another environment variable. It is useful in development where a
// pointer variable aliases a secret already present in the shell.
type EnvVarProvider struct{}

// NewEnvVarProvider creates a new EnvVarProvider.
func NewEnvVarProvider() *EnvVarProvider {
	return &EnvVarProvider{}
}

// GetParametersBatch looks up each key via os.LookupEnv. Missing keys are
// omitted.
func (p *EnvVarProvider) GetParametersBatch(_ context.Context, keys []string) (map[string]string, error) {
	result := make(map[string]string, len(keys))
	for _, key := range keys {
		if val, ok := os.LookupEnv(key); ok {
			result[key] = val
		}
	}
	return result, nil
}
