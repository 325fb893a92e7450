package credentials

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"mercator-hq/ganymede/pkg/bridge"
)

// CredentialFile is the on-disk shape of the model credential mapping.
type CredentialFile struct {
	// Models maps model names to their session credential pools.
	Models map[string][]bridge.SessionCredential `yaml:"models"`

	// Fallback is the credential used for models with no pool of their
	// own. Omit it to reject unmapped models.
	Fallback *bridge.SessionCredential `yaml:"fallback"`
}

// LoadFile reads and parses a credential mapping file. Entries are not
// filtered here; the pool drops invalid ones on Replace so that a partially
// bad file still serves its good entries.
func LoadFile(path string) (*CredentialFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read credential file %q: %w", path, err)
	}

	var f CredentialFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse credential file %q: %w", path, err)
	}

	if len(f.Models) == 0 && f.Fallback == nil {
		return nil, fmt.Errorf("credential file %q maps no models and has no fallback", path)
	}

	return &f, nil
}
