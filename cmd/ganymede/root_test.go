package main

import (
	"testing"
	"time"
)

func TestCommandsRegistered(t *testing.T) {
	want := map[string]bool{
		"run":      false,
		"validate": false,
		"usage":    false,
		"version":  false,
	}
	for _, cmd := range rootCmd.Commands() {
		if _, ok := want[cmd.Name()]; ok {
			want[cmd.Name()] = true
		}
	}
	for name, found := range want {
		if !found {
			t.Errorf("command %q not registered", name)
		}
	}
}

func TestVersionCommand(t *testing.T) {
	if versionCmd.Use != "version" {
		t.Errorf("versionCmd.Use = %q, want %q", versionCmd.Use, "version")
	}
	if versionCmd.Run == nil {
		t.Error("versionCmd.Run should not be nil")
	}
}

func TestPersistentFlags(t *testing.T) {
	flag := rootCmd.PersistentFlags().Lookup("config")
	if flag == nil {
		t.Fatal("--config flag not registered")
	}
	if flag.DefValue != "config.yaml" {
		t.Errorf("--config default = %q, want %q", flag.DefValue, "config.yaml")
	}
}

func TestParseWindow(t *testing.T) {
	tests := []struct {
		in      string
		want    time.Duration
		wantErr bool
	}{
		{in: "24h", want: 24 * time.Hour},
		{in: "90m", want: 90 * time.Minute},
		{in: "7d", want: 7 * 24 * time.Hour},
		{in: "1d", want: 24 * time.Hour},
		{in: "0d", wantErr: true},
		{in: "bogus", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseWindow(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("parseWindow(%q) expected error, got %v", tt.in, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseWindow(%q) error: %v", tt.in, err)
			}
			if got != tt.want {
				t.Errorf("parseWindow(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}
