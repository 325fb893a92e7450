package bridge

import (
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
)

// Mode is the interaction mode a session credential was captured under.
// A credential is only valid for the mode it was captured with, so the two
// are never separated.
type Mode string

const (
	// ModeDirectChat targets the remote service's direct chat surface.
	ModeDirectChat Mode = "direct_chat"

	// ModeBattle targets the side-by-side comparison surface.
	ModeBattle Mode = "battle"
)

// SessionCredential is an opaque session/message reference pair bound to the
// interaction mode it was captured under. The triple (SessionID, Mode,
// BattleTarget) is indivisible: pool operations copy or replace whole values,
// never individual fields.
type SessionCredential struct {
	SessionID    string `json:"session_id" yaml:"session_id"`
	MessageID    string `json:"message_id" yaml:"message_id"`
	Mode         Mode   `json:"mode" yaml:"mode"`
	BattleTarget string `json:"battle_target,omitempty" yaml:"battle_target,omitempty"`
}

// Valid reports whether the credential carries both references and a known mode.
func (c SessionCredential) Valid() bool {
	if c.SessionID == "" || c.MessageID == "" {
		return false
	}
	switch c.Mode {
	case ModeDirectChat:
		return c.BattleTarget == ""
	case ModeBattle:
		return c.BattleTarget == "A" || c.BattleTarget == "B" || c.BattleTarget == ""
	default:
		return false
	}
}

// CredentialPool holds the per-model session credentials and the optional
// default used for unmapped models. It is safe for concurrent use and can be
// swapped wholesale when the credential map file changes on disk.
type CredentialPool struct {
	mu            sync.RWMutex
	pools         map[string][]SessionCredential
	fallback      *SessionCredential
	fallbackModel string
	logger        *slog.Logger
}

// NewCredentialPool creates a pool from per-model credential lists. fallback
// may be nil, in which case unmapped models fail with NoMappingError.
func NewCredentialPool(pools map[string][]SessionCredential, fallback *SessionCredential) *CredentialPool {
	p := &CredentialPool{
		logger: slog.Default().With("component", "bridge.credentials"),
	}
	p.Replace(pools, fallback)
	return p
}

// Get returns a credential for the model, chosen uniformly at random from the
// model's pool. Uniform random selection avoids pinning traffic to one hot
// session when a model has several captured credentials.
func (p *CredentialPool) Get(model string) (SessionCredential, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if creds, ok := p.pools[model]; ok && len(creds) > 0 {
		return creds[rand.IntN(len(creds))], nil
	}

	if p.fallbackModel != "" && p.fallbackModel != model {
		if creds, ok := p.pools[p.fallbackModel]; ok && len(creds) > 0 {
			p.logger.Debug("model not mapped, using fallback model pool",
				"model", model,
				"fallback_model", p.fallbackModel,
			)
			return creds[rand.IntN(len(creds))], nil
		}
	}

	if p.fallback != nil {
		p.logger.Debug("model not mapped, using default credential", "model", model)
		return *p.fallback, nil
	}

	return SessionCredential{}, &NoMappingError{Model: model}
}

// Replace swaps the entire credential map and fallback in one step. Invalid
// entries are dropped with a warning rather than poisoning dispatch.
func (p *CredentialPool) Replace(pools map[string][]SessionCredential, fallback *SessionCredential) {
	cleaned := make(map[string][]SessionCredential, len(pools))
	for model, creds := range pools {
		kept := make([]SessionCredential, 0, len(creds))
		for _, c := range creds {
			if !c.Valid() {
				p.logger.Warn("dropping invalid session credential",
					"model", model,
					"mode", string(c.Mode),
				)
				continue
			}
			kept = append(kept, c)
		}
		if len(kept) > 0 {
			cleaned[model] = kept
		}
	}

	var fb *SessionCredential
	if fallback != nil && fallback.Valid() {
		copied := *fallback
		fb = &copied
	}

	p.mu.Lock()
	p.pools = cleaned
	p.fallback = fb
	p.mu.Unlock()
}

// Install adds a captured credential to a model's pool without disturbing the
// rest of the map. Used by the credential capture flow.
func (p *CredentialPool) Install(model string, cred SessionCredential) error {
	if !cred.Valid() {
		return fmt.Errorf("invalid session credential for model %q", model)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.pools == nil {
		p.pools = make(map[string][]SessionCredential)
	}
	p.pools[model] = append(p.pools[model], cred)
	return nil
}

// SetFallbackModel names the pool consulted when a requested model has no
// entry of its own. It is checked before the default credential. Empty
// disables the redirect.
func (p *CredentialPool) SetFallbackModel(model string) {
	p.mu.Lock()
	p.fallbackModel = model
	p.mu.Unlock()
}

// Models returns the names of all mapped models, in map order.
func (p *CredentialPool) Models() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()

	names := make([]string, 0, len(p.pools))
	for model := range p.pools {
		names = append(names, model)
	}
	return names
}

// HasFallback reports whether unmapped models are served by a default credential.
func (p *CredentialPool) HasFallback() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.fallback != nil
}
