package secrets

import (
	"context"
	"fmt"
	"os"
	"strings"
)

// DefaultEnvPrefix namespaces secret environment variables.
const DefaultEnvPrefix = "GANYMEDE_SECRET_"

// EnvProvider reads secrets from environment variables. The secret name
// is uppercased with hyphens replaced by underscores, so "alice-api-key"
// resolves from GANYMEDE_SECRET_ALICE_API_KEY.
type EnvProvider struct {
	prefix string
}

// NewEnvProvider creates a provider with the given variable prefix.
func NewEnvProvider(prefix string) *EnvProvider {
	return &EnvProvider{prefix: prefix}
}

// Get resolves name from the environment.
func (p *EnvProvider) Get(ctx context.Context, name string) (string, error) {
	envVar := p.prefix + strings.ToUpper(strings.ReplaceAll(name, "-", "_"))
	value := os.Getenv(envVar)
	if value == "" {
		return "", fmt.Errorf("secret %q not found in environment (%s)", name, envVar)
	}
	return value, nil
}

// Name identifies the backend.
func (p *EnvProvider) Name() string { return "env" }
