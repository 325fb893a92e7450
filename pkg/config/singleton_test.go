package config

import (
	"testing"
)

func TestSetAndGetConfig(t *testing.T) {
	original := GetConfig()
	defer SetConfig(original)

	cfg := DefaultConfig()
	cfg.Server.ListenAddress = "10.1.2.3:4567"
	SetConfig(cfg)

	got := GetConfig()
	if got == nil {
		t.Fatal("expected config after SetConfig")
	}
	if got.Server.ListenAddress != "10.1.2.3:4567" {
		t.Errorf("expected stored config, got %q", got.Server.ListenAddress)
	}
}

func TestMustGetConfig_PanicsWhenUnset(t *testing.T) {
	original := GetConfig()
	defer SetConfig(original)

	SetConfig(nil)

	defer func() {
		if r := recover(); r == nil {
			t.Error("expected panic from MustGetConfig with no config")
		}
	}()
	MustGetConfig()
}

func TestReloadConfig_KeepsOldOnFailure(t *testing.T) {
	original := GetConfig()
	defer SetConfig(original)

	cfg := DefaultConfig()
	cfg.Server.ListenAddress = "kept:1111"
	SetConfig(cfg)

	if err := ReloadConfig("/nonexistent/config.yaml"); err == nil {
		t.Fatal("expected reload error for missing file")
	}

	got := GetConfig()
	if got == nil || got.Server.ListenAddress != "kept:1111" {
		t.Error("failed reload should not replace the existing config")
	}
}
