package secrets

import "context"

// Provider retrieves named secrets from one backend.
type Provider interface {
	// Get returns the secret value, or an error when the secret does not
	// exist in this backend.
	Get(ctx context.Context, name string) (string, error)

	// Name identifies the backend in logs ("env", "file").
	Name() string
}
