package credentials

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"mercator-hq/ganymede/pkg/bridge"
)

// Manager ties the credential file, the broker's credential pool, and the
// capture flow together. It owns the armed-capture state: a capture must be
// armed with a mode first, and the next captured session/message pair is
// installed under that mode.
type Manager struct {
	pool   *bridge.CredentialPool
	path   string
	logger *slog.Logger

	mu    sync.Mutex
	armed *armedCapture
}

// armedCapture is the pending capture target set by Arm.
type armedCapture struct {
	mode         bridge.Mode
	battleTarget string
}

// NewManager creates a credential manager over the given pool. path may be
// empty when the mapping is managed purely through capture and install.
func NewManager(pool *bridge.CredentialPool, path string) *Manager {
	return &Manager{
		pool:   pool,
		path:   path,
		logger: slog.Default().With("component", "credentials.manager"),
	}
}

// Load reads the credential file and swaps the pool's mapping wholesale.
// On error the pool keeps its previous mapping.
func (m *Manager) Load() error {
	if m.path == "" {
		return fmt.Errorf("no credential file configured")
	}

	f, err := LoadFile(m.path)
	if err != nil {
		return err
	}

	m.pool.Replace(f.Models, f.Fallback)
	m.logger.Info("credential mapping loaded",
		"path", m.path,
		"models", len(f.Models),
		"has_fallback", f.Fallback != nil,
	)
	return nil
}

// Watch hot-reloads the credential file until the context is cancelled.
// Reload failures are logged and the previous mapping stays active.
func (m *Manager) Watch(ctx context.Context) error {
	if m.path == "" {
		return fmt.Errorf("no credential file configured")
	}

	fw, err := NewFileWatcher(m.path, DefaultDebounceInterval, m.logger)
	if err != nil {
		return err
	}
	return fw.Watch(ctx, m.Load)
}

// Arm prepares the capture flow: the next Capture call installs its
// credential under the given mode. For battle mode, battleTarget selects
// side "A" or "B". Re-arming replaces the pending state.
func (m *Manager) Arm(mode bridge.Mode, battleTarget string) error {
	switch mode {
	case bridge.ModeDirectChat:
		if battleTarget != "" {
			return fmt.Errorf("battle target is only valid in battle mode")
		}
	case bridge.ModeBattle:
		if battleTarget != "A" && battleTarget != "B" {
			return fmt.Errorf("battle mode requires target A or B, got %q", battleTarget)
		}
	default:
		return fmt.Errorf("unknown capture mode %q", mode)
	}

	m.mu.Lock()
	m.armed = &armedCapture{mode: mode, battleTarget: battleTarget}
	m.mu.Unlock()

	m.logger.Info("credential capture armed",
		"mode", string(mode),
		"battle_target", battleTarget,
	)
	return nil
}

// Armed reports whether a capture is pending and, if so, its mode.
func (m *Manager) Armed() (bridge.Mode, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.armed == nil {
		return "", false
	}
	return m.armed.mode, true
}

// Capture consumes the armed state and installs the captured session and
// message references for the model. The install is in-memory only; edits to
// the credential file on disk are the durable path.
func (m *Manager) Capture(model, sessionID, messageID string) (bridge.SessionCredential, error) {
	if model == "" {
		return bridge.SessionCredential{}, fmt.Errorf("model is required")
	}
	if sessionID == "" || messageID == "" {
		return bridge.SessionCredential{}, fmt.Errorf("session_id and message_id are required")
	}

	m.mu.Lock()
	armed := m.armed
	m.armed = nil
	m.mu.Unlock()

	if armed == nil {
		return bridge.SessionCredential{}, fmt.Errorf("capture is not armed")
	}

	cred := bridge.SessionCredential{
		SessionID:    sessionID,
		MessageID:    messageID,
		Mode:         armed.mode,
		BattleTarget: armed.battleTarget,
	}
	if err := m.pool.Install(model, cred); err != nil {
		return bridge.SessionCredential{}, err
	}

	m.logger.Info("session credential captured",
		"model", model,
		"mode", string(armed.mode),
		"battle_target", armed.battleTarget,
	)
	return cred, nil
}
