package secrets

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"strings"
	"time"
)

// secretRefPattern matches ${secret:name} placeholders.
var secretRefPattern = regexp.MustCompile(`\$\{secret:([^}]+)\}`)

const cacheTTL = 5 * time.Minute

// Manager resolves secrets through a provider chain. The first provider
// that returns a value wins.
type Manager struct {
	providers []Provider
	cache     *cache
	logger    *slog.Logger
}

// NewManager creates a manager trying providers in the given order.
func NewManager(providers ...Provider) *Manager {
	return &Manager{
		providers: providers,
		cache:     newCache(cacheTTL),
		logger:    slog.Default().With("component", "secrets"),
	}
}

// NewDefaultManager builds the standard chain: environment variables,
// plus a file provider when secretsDir is non-empty.
func NewDefaultManager(secretsDir string) (*Manager, error) {
	providers := []Provider{NewEnvProvider(DefaultEnvPrefix)}

	if secretsDir != "" {
		fp, err := NewFileProvider(secretsDir)
		if err != nil {
			return nil, err
		}
		providers = append(providers, fp)
	}
	return NewManager(providers...), nil
}

// Get resolves a secret by name, consulting the cache first.
func (m *Manager) Get(ctx context.Context, name string) (string, error) {
	if value, ok := m.cache.get(name); ok {
		return value, nil
	}

	var lastErr error
	for _, p := range m.providers {
		value, err := p.Get(ctx, name)
		if err != nil {
			lastErr = err
			continue
		}
		m.cache.set(name, value)
		m.logger.Debug("secret resolved",
			"name", redactName(name),
			"provider", p.Name(),
		)
		return value, nil
	}

	if lastErr != nil {
		return "", fmt.Errorf("resolve secret %q: %w", name, lastErr)
	}
	return "", fmt.Errorf("no provider configured for secret %q", name)
}

// Resolve replaces every ${secret:name} placeholder in input. A single
// unresolvable reference fails the whole document: starting with a
// placeholder where a credential belongs is never useful.
func (m *Manager) Resolve(ctx context.Context, input string) (string, error) {
	var failures []string

	output := secretRefPattern.ReplaceAllStringFunc(input, func(match string) string {
		name := secretRefPattern.FindStringSubmatch(match)[1]
		value, err := m.Get(ctx, name)
		if err != nil {
			failures = append(failures, err.Error())
			return match
		}
		return value
	})

	if len(failures) > 0 {
		return "", fmt.Errorf("unresolved secret references: %s", strings.Join(failures, "; "))
	}
	return output, nil
}

// HasReferences reports whether input contains any secret placeholders.
func HasReferences(input string) bool {
	return secretRefPattern.MatchString(input)
}

// SecretsDirFromEnv returns the configured secrets directory, if any.
func SecretsDirFromEnv() string {
	return os.Getenv("GANYMEDE_SECRETS_DIR")
}

// redactName keeps enough of the secret name to be recognizable in debug
// logs without echoing it verbatim.
func redactName(name string) string {
	if len(name) <= 4 {
		return "***"
	}
	return name[:2] + "..." + name[len(name)-2:]
}
