package bridge

import (
	"errors"
	"testing"
)

func TestSessionCredentialValid(t *testing.T) {
	tests := []struct {
		name string
		cred SessionCredential
		want bool
	}{
		{
			name: "direct chat",
			cred: SessionCredential{SessionID: "s1", MessageID: "m1", Mode: ModeDirectChat},
			want: true,
		},
		{
			name: "battle with target",
			cred: SessionCredential{SessionID: "s1", MessageID: "m1", Mode: ModeBattle, BattleTarget: "A"},
			want: true,
		},
		{
			name: "missing session id",
			cred: SessionCredential{MessageID: "m1", Mode: ModeDirectChat},
			want: false,
		},
		{
			name: "missing message id",
			cred: SessionCredential{SessionID: "s1", Mode: ModeDirectChat},
			want: false,
		},
		{
			name: "unknown mode",
			cred: SessionCredential{SessionID: "s1", MessageID: "m1", Mode: "evaluation"},
			want: false,
		},
		{
			name: "direct chat with battle target",
			cred: SessionCredential{SessionID: "s1", MessageID: "m1", Mode: ModeDirectChat, BattleTarget: "A"},
			want: false,
		},
		{
			name: "battle with bogus target",
			cred: SessionCredential{SessionID: "s1", MessageID: "m1", Mode: ModeBattle, BattleTarget: "C"},
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.cred.Valid(); got != tt.want {
				t.Errorf("Valid() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCredentialPoolGet(t *testing.T) {
	pool := NewCredentialPool(map[string][]SessionCredential{
		"gpt-4": {
			{SessionID: "s1", MessageID: "m1", Mode: ModeDirectChat},
			{SessionID: "s2", MessageID: "m2", Mode: ModeDirectChat},
		},
	}, nil)

	cred, err := pool.Get("gpt-4")
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if cred.SessionID != "s1" && cred.SessionID != "s2" {
		t.Errorf("Get() returned credential outside the pool: %+v", cred)
	}

	_, err = pool.Get("unmapped")
	var nmErr *NoMappingError
	if !errors.As(err, &nmErr) {
		t.Fatalf("Get(unmapped) error = %v, want NoMappingError", err)
	}
	if nmErr.Model != "unmapped" {
		t.Errorf("NoMappingError.Model = %q, want %q", nmErr.Model, "unmapped")
	}
}

func TestCredentialPoolGetModeBinding(t *testing.T) {
	// The (session, mode, target) triple must come back whole, never
	// recombined from separate entries.
	pool := NewCredentialPool(map[string][]SessionCredential{
		"claude": {
			{SessionID: "s-battle", MessageID: "m-battle", Mode: ModeBattle, BattleTarget: "B"},
		},
	}, nil)

	for i := 0; i < 10; i++ {
		cred, err := pool.Get("claude")
		if err != nil {
			t.Fatalf("Get() error: %v", err)
		}
		if cred.Mode != ModeBattle || cred.BattleTarget != "B" || cred.SessionID != "s-battle" {
			t.Fatalf("credential fields recombined: %+v", cred)
		}
	}
}

func TestCredentialPoolFallbackCredential(t *testing.T) {
	fb := &SessionCredential{SessionID: "fb", MessageID: "fbm", Mode: ModeDirectChat}
	pool := NewCredentialPool(nil, fb)

	cred, err := pool.Get("anything")
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if cred.SessionID != "fb" {
		t.Errorf("Get() = %+v, want fallback credential", cred)
	}
	if !pool.HasFallback() {
		t.Error("HasFallback() = false, want true")
	}
}

func TestCredentialPoolFallbackModel(t *testing.T) {
	pool := NewCredentialPool(map[string][]SessionCredential{
		"default-model": {{SessionID: "d1", MessageID: "dm1", Mode: ModeDirectChat}},
	}, nil)
	pool.SetFallbackModel("default-model")

	cred, err := pool.Get("unmapped")
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if cred.SessionID != "d1" {
		t.Errorf("Get() = %+v, want credential from fallback model pool", cred)
	}

	// The redirect must not loop when the fallback model itself is missing.
	pool.SetFallbackModel("also-unmapped")
	if _, err := pool.Get("also-unmapped"); err == nil {
		t.Error("Get() expected NoMappingError when fallback model has no pool")
	}
}

func TestCredentialPoolReplaceDropsInvalid(t *testing.T) {
	pool := NewCredentialPool(nil, nil)
	pool.Replace(map[string][]SessionCredential{
		"gpt-4": {
			{SessionID: "good", MessageID: "m1", Mode: ModeDirectChat},
			{SessionID: "bad", Mode: ModeDirectChat}, // no message id
		},
		"empty": {
			{SessionID: "", MessageID: "", Mode: ModeDirectChat},
		},
	}, &SessionCredential{SessionID: "x", Mode: "bogus"})

	cred, err := pool.Get("gpt-4")
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if cred.SessionID != "good" {
		t.Errorf("invalid credential survived Replace: %+v", cred)
	}

	if _, err := pool.Get("empty"); err == nil {
		t.Error("model with only invalid credentials should be unmapped")
	}
	if pool.HasFallback() {
		t.Error("invalid fallback should have been dropped")
	}
}

func TestCredentialPoolInstall(t *testing.T) {
	pool := NewCredentialPool(nil, nil)

	if err := pool.Install("gpt-4", SessionCredential{SessionID: "s1", Mode: ModeDirectChat}); err == nil {
		t.Error("Install() accepted an invalid credential")
	}

	cred := SessionCredential{SessionID: "s1", MessageID: "m1", Mode: ModeDirectChat}
	if err := pool.Install("gpt-4", cred); err != nil {
		t.Fatalf("Install() error: %v", err)
	}
	got, err := pool.Get("gpt-4")
	if err != nil {
		t.Fatalf("Get() after Install error: %v", err)
	}
	if got != cred {
		t.Errorf("Get() = %+v, want %+v", got, cred)
	}

	models := pool.Models()
	if len(models) != 1 || models[0] != "gpt-4" {
		t.Errorf("Models() = %v, want [gpt-4]", models)
	}
}
