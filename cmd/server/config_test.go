package main

import (
	"os"
	"path/filepath"
	"slices"
	"testing"
	"time"
)

func TestLoadConfig(t *testing.T) {
	cfgHome := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", cfgHome)
	t.Setenv("HOME", cfgHome)

	t.Run("Defaults without a config file", func(t *testing.T) {
		cfg, err := loadConfig("")
		if err != nil {
			t.Fatalf("loadConfig() error = %v", err)
		}
		if cfg.Port != "8080" || cfg.BackendURL != "ws://localhost:5000/socket" {
			t.Errorf("config = %+v", cfg)
		}
		if filepath.Base(cfg.StorePath) != "store.db" {
			t.Errorf("StorePath = %v", cfg.StorePath)
		}
	})

	t.Run("Explicit file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.yaml")
		content := `
port: "9090"
backendURL: ws://chat.internal/socket
modes: [normal, code]
defaultMode: code
codeStyle: monokai
reconnect:
  enabled: true
  maxAttempts: 3
  initialBackoff: 250ms
  maxBackoff: 5s
`
		if err := os.WriteFile(path, []byte(content), 0600); err != nil {
			t.Fatal(err)
		}

		cfg, err := loadConfig(path)
		if err != nil {
			t.Fatalf("loadConfig() error = %v", err)
		}
		if cfg.Port != "9090" || cfg.DefaultMode != "code" || cfg.CodeStyle != "monokai" {
			t.Errorf("config = %+v", cfg)
		}
		if !slices.Equal(cfg.Modes, []string{"normal", "code"}) {
			t.Errorf("Modes = %v", cfg.Modes)
		}
		if cfg.LogLevel != "info" {
			t.Errorf("LogLevel = %v, want default info", cfg.LogLevel)
		}

		tc := cfg.transport()
		if !tc.Reconnect || tc.MaxAttempts != 3 || tc.InitialBackoff != 250*time.Millisecond || tc.MaxBackoff != 5*time.Second {
			t.Errorf("transport config = %+v", tc)
		}
	})

	t.Run("Missing explicit file", func(t *testing.T) {
		if _, err := loadConfig(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
			t.Error("loadConfig() should fail for a missing explicit file")
		}
	})
}
