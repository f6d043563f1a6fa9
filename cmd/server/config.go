package main

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/MegaGrindStone/chatwidget/internal/logging"
	"github.com/MegaGrindStone/chatwidget/internal/render"
	"github.com/MegaGrindStone/chatwidget/internal/transport"
)

type config struct {
	Port        string          `yaml:"port"`
	BackendURL  string          `yaml:"backendURL"`
	Modes       []string        `yaml:"modes"`
	DefaultMode string          `yaml:"defaultMode"`
	StorePath   string          `yaml:"storePath"`
	LogLevel    string          `yaml:"logLevel"`
	LogFormat   string          `yaml:"logFormat"`
	CodeStyle   string          `yaml:"codeStyle"`
	Reconnect   reconnectConfig `yaml:"reconnect"`
}

type reconnectConfig struct {
	Enabled        bool          `yaml:"enabled"`
	MaxAttempts    int           `yaml:"maxAttempts"`
	InitialBackoff time.Duration `yaml:"initialBackoff"`
	MaxBackoff     time.Duration `yaml:"maxBackoff"`
}

const appDir = "chatwidget"

// loadConfig reads the config at path, or at <user config dir>/chatwidget/config.yaml when path is
// empty. A missing default file leaves every setting at its default.
func loadConfig(path string) (config, error) {
	cfgDir, err := os.UserConfigDir()
	if err != nil {
		return config{}, fmt.Errorf("error getting user config dir: %w", err)
	}
	if err := os.MkdirAll(filepath.Join(cfgDir, appDir), 0755); err != nil {
		return config{}, fmt.Errorf("error creating config directory: %w", err)
	}

	cfg := config{
		Port:       "8080",
		BackendURL: "ws://localhost:5000/socket",
		StorePath:  filepath.Join(cfgDir, appDir, "store.db"),
		LogLevel:   "info",
		LogFormat:  "text",
		CodeStyle:  render.DefaultStyle,
	}

	explicit := path != ""
	if !explicit {
		path = filepath.Join(cfgDir, appDir, "config.yaml")
	}

	cfgFile, err := os.Open(path)
	if err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			return cfg, nil
		}
		return config{}, fmt.Errorf("error opening config file: %w", err)
	}
	defer cfgFile.Close()

	if err := yaml.NewDecoder(cfgFile).Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return config{}, fmt.Errorf("error decoding config file: %w", err)
	}

	return cfg, nil
}

func (c config) transport() transport.Config {
	return transport.Config{
		URL:            c.BackendURL,
		Reconnect:      c.Reconnect.Enabled,
		MaxAttempts:    c.Reconnect.MaxAttempts,
		InitialBackoff: c.Reconnect.InitialBackoff,
		MaxBackoff:     c.Reconnect.MaxBackoff,
	}
}

func (c config) logger() (*slog.Logger, error) {
	return logging.New(os.Stderr, c.LogLevel, c.LogFormat)
}
