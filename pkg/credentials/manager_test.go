package credentials

import (
	"os"
	"path/filepath"
	"testing"

	"mercator-hq/ganymede/pkg/bridge"
)

func writeCredentialFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "credentials.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write credential file: %v", err)
	}
	return path
}

func TestLoadFile_Valid(t *testing.T) {
	path := writeCredentialFile(t, `
models:
  model-a:
    - session_id: "sess-1"
      message_id: "msg-1"
      mode: "direct_chat"
    - session_id: "sess-2"
      message_id: "msg-2"
      mode: "battle"
      battle_target: "A"
fallback:
  session_id: "sess-fb"
  message_id: "msg-fb"
  mode: "direct_chat"
`)

	f, err := LoadFile(path)
	if err != nil {
		t.Fatalf("failed to load: %v", err)
	}

	if len(f.Models["model-a"]) != 2 {
		t.Fatalf("expected 2 credentials for model-a, got %d", len(f.Models["model-a"]))
	}
	first := f.Models["model-a"][0]
	if first.SessionID != "sess-1" || first.Mode != bridge.ModeDirectChat {
		t.Errorf("unexpected first credential: %+v", first)
	}
	second := f.Models["model-a"][1]
	if second.Mode != bridge.ModeBattle || second.BattleTarget != "A" {
		t.Errorf("unexpected second credential: %+v", second)
	}
	if f.Fallback == nil || f.Fallback.SessionID != "sess-fb" {
		t.Errorf("fallback not loaded: %+v", f.Fallback)
	}
}

func TestLoadFile_EmptyMapping(t *testing.T) {
	path := writeCredentialFile(t, `models: {}`)

	if _, err := LoadFile(path); err == nil {
		t.Error("expected error for empty mapping")
	}
}

func TestLoadFile_Missing(t *testing.T) {
	if _, err := LoadFile("/nonexistent/credentials.yaml"); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestManagerLoad_ReplacesPool(t *testing.T) {
	path := writeCredentialFile(t, `
models:
  model-a:
    - session_id: "sess-1"
      message_id: "msg-1"
      mode: "direct_chat"
`)

	pool := bridge.NewCredentialPool(nil, nil)
	m := NewManager(pool, path)

	if err := m.Load(); err != nil {
		t.Fatalf("load: %v", err)
	}

	cred, err := pool.Get("model-a")
	if err != nil {
		t.Fatalf("expected credential after load: %v", err)
	}
	if cred.SessionID != "sess-1" {
		t.Errorf("unexpected credential: %+v", cred)
	}
}

func TestManagerLoad_BadFileKeepsPool(t *testing.T) {
	path := writeCredentialFile(t, `
models:
  model-a:
    - session_id: "sess-1"
      message_id: "msg-1"
      mode: "direct_chat"
`)

	pool := bridge.NewCredentialPool(nil, nil)
	m := NewManager(pool, path)
	if err := m.Load(); err != nil {
		t.Fatalf("load: %v", err)
	}

	if err := os.WriteFile(path, []byte("models: ["), 0644); err != nil {
		t.Fatalf("rewrite: %v", err)
	}
	if err := m.Load(); err == nil {
		t.Fatal("expected error for broken file")
	}

	// Previous mapping stays active.
	if _, err := pool.Get("model-a"); err != nil {
		t.Errorf("pool lost its mapping after a failed reload: %v", err)
	}
}

func TestArmAndCapture(t *testing.T) {
	pool := bridge.NewCredentialPool(nil, nil)
	m := NewManager(pool, "")

	if _, _, err := captureHelper(m, "model-a", "sess-x", "msg-x"); err == nil {
		t.Fatal("capture should fail before arming")
	}

	if err := m.Arm(bridge.ModeBattle, "B"); err != nil {
		t.Fatalf("arm: %v", err)
	}
	if mode, ok := m.Armed(); !ok || mode != bridge.ModeBattle {
		t.Fatalf("expected armed battle mode, got %v %v", mode, ok)
	}

	cred, err := m.Capture("model-a", "sess-x", "msg-x")
	if err != nil {
		t.Fatalf("capture: %v", err)
	}
	if cred.Mode != bridge.ModeBattle || cred.BattleTarget != "B" {
		t.Errorf("captured credential not bound to armed mode: %+v", cred)
	}

	// Capture disarms.
	if _, ok := m.Armed(); ok {
		t.Error("capture should consume the armed state")
	}

	got, err := pool.Get("model-a")
	if err != nil {
		t.Fatalf("expected installed credential: %v", err)
	}
	if got.SessionID != "sess-x" {
		t.Errorf("unexpected installed credential: %+v", got)
	}
}

func TestArm_Validation(t *testing.T) {
	m := NewManager(bridge.NewCredentialPool(nil, nil), "")

	if err := m.Arm(bridge.ModeDirectChat, "A"); err == nil {
		t.Error("direct chat must reject a battle target")
	}
	if err := m.Arm(bridge.ModeBattle, ""); err == nil {
		t.Error("battle mode requires a target")
	}
	if err := m.Arm(bridge.Mode("arena"), ""); err == nil {
		t.Error("unknown mode must be rejected")
	}
}

func TestCapture_RequiresFields(t *testing.T) {
	m := NewManager(bridge.NewCredentialPool(nil, nil), "")
	if err := m.Arm(bridge.ModeDirectChat, ""); err != nil {
		t.Fatalf("arm: %v", err)
	}

	if _, err := m.Capture("", "sess", "msg"); err == nil {
		t.Error("capture without model must fail")
	}
	if _, err := m.Capture("model-a", "", "msg"); err == nil {
		t.Error("capture without session_id must fail")
	}
}

func captureHelper(m *Manager, model, sess, msg string) (bridge.SessionCredential, bool, error) {
	cred, err := m.Capture(model, sess, msg)
	return cred, err == nil, err
}
