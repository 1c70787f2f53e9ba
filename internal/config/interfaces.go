package config

import "context"

// SecretProvider abstracts the retrieval of secrets. Keys are provider
// specific references: file paths for FileProvider, variable names for
// EnvVarProvider.
type SecretProvider interface {
	// GetParametersBatch resolves every key it can. Keys that do not exist
	// are omitted from the returned map rather than reported as errors.
	GetParametersBatch(ctx context.Context, keys []string) (map[string]string, error)
}
