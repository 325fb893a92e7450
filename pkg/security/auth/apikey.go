package auth

import (
	"errors"
	"sort"
	"sync"
)

// ErrInvalidKey is returned when a presented API key is not configured.
var ErrInvalidKey = errors.New("invalid API key")

// APIKeyValidator maps client API keys to principal names.
type APIKeyValidator struct {
	mu   sync.RWMutex
	keys map[string]string
}

// NewAPIKeyValidator creates a validator from a key-to-principal map,
// typically taken straight from configuration.
func NewAPIKeyValidator(keys map[string]string) *APIKeyValidator {
	m := make(map[string]string, len(keys))
	for key, principal := range keys {
		m[key] = principal
	}
	return &APIKeyValidator{keys: m}
}

// Validate returns the principal for key, or ErrInvalidKey.
func (v *APIKeyValidator) Validate(key string) (string, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()

	principal, ok := v.keys[key]
	if !ok {
		return "", ErrInvalidKey
	}
	return principal, nil
}

// Principals returns the distinct principal names, sorted.
func (v *APIKeyValidator) Principals() []string {
	v.mu.RLock()
	defer v.mu.RUnlock()

	seen := make(map[string]struct{}, len(v.keys))
	for _, p := range v.keys {
		seen[p] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for p := range seen {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Replace swaps in a new key set atomically, for configuration reload.
func (v *APIKeyValidator) Replace(keys map[string]string) {
	m := make(map[string]string, len(keys))
	for key, principal := range keys {
		m[key] = principal
	}

	v.mu.Lock()
	v.keys = m
	v.mu.Unlock()
}
