package secrets

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// FileProvider reads each secret from its own file under a base
// directory, the layout Kubernetes uses for mounted secrets. Files must
// not be group- or world-readable.
type FileProvider struct {
	basePath string
}

// NewFileProvider creates a provider rooted at basePath.
func NewFileProvider(basePath string) (*FileProvider, error) {
	info, err := os.Stat(basePath)
	if err != nil {
		return nil, fmt.Errorf("stat secrets directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("secrets path is not a directory: %s", basePath)
	}
	return &FileProvider{basePath: basePath}, nil
}

// Get reads the secret from <basePath>/<name>, trimming a trailing
// newline. The name must not escape the base directory.
func (p *FileProvider) Get(ctx context.Context, name string) (string, error) {
	path := filepath.Join(p.basePath, name)

	absBase, err := filepath.Abs(p.basePath)
	if err != nil {
		return "", fmt.Errorf("resolve secrets directory: %w", err)
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolve secret path: %w", err)
	}
	if !strings.HasPrefix(absPath, absBase+string(filepath.Separator)) {
		return "", fmt.Errorf("secret name %q escapes the secrets directory", name)
	}

	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("secret file not found: %s", name)
		}
		return "", fmt.Errorf("stat secret file: %w", err)
	}
	if perm := info.Mode().Perm(); perm&0o077 != 0 {
		return "", fmt.Errorf("secret file %s has permissions %04o, want 0600 or 0400", name, perm)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read secret file: %w", err)
	}
	return strings.TrimRight(string(data), "\n"), nil
}

// Name identifies the backend.
func (p *FileProvider) Name() string { return "file" }
