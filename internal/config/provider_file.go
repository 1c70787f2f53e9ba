package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// FileProvider implements SecretProvider by reading mounted secret files,
// such as Docker or Kubernetes secrets. Relative keys are resolved against
// Root.
type FileProvider struct {
	Root string
}

// NewFileProvider creates a FileProvider rooted at root. An empty root means
// the working directory.
func NewFileProvider(root string) *FileProvider {
	return &FileProvider{Root: root}
}

// GetParametersBatch reads each key as a file and returns its content with
// trailing newlines trimmed. Missing files are omitted; any other read error
// aborts the batch.
func (p *FileProvider) GetParametersBatch(ctx context.Context, keys []string) (map[string]string, error) {
	result := make(map[string]string, len(keys))
	for _, key := range keys {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		path := key
		if !filepath.IsAbs(path) && p.Root != "" {
			path = filepath.Join(p.Root, path)
		}

		data, err := os.ReadFile(path)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("read secret file %s: %w", key, err)
		}
		result[key] = strings.TrimRight(string(data), "\r\n")
	}
	return result, nil
}
