package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/MegaGrindStone/chatwidget/internal/backend"
	"github.com/MegaGrindStone/chatwidget/internal/logging"
	"github.com/MegaGrindStone/chatwidget/internal/models"
	"github.com/MegaGrindStone/chatwidget/internal/services"
)

type llmConfig interface {
	llm(systemPrompt string, logger *slog.Logger) (backend.LLM, error)
}

// BaseLLMConfig contains the common fields for all LLM configurations.
type BaseLLMConfig struct {
	Provider string `yaml:"provider"`
	Model    string `yaml:"model"`
}

type config struct {
	Port         string                       `yaml:"port"`
	SystemPrompt string                       `yaml:"systemPrompt"`
	ReplyTimeout time.Duration                `yaml:"replyTimeout"`
	LogLevel     string                       `yaml:"logLevel"`
	LogFormat    string                       `yaml:"logFormat"`
	Modes        map[string]models.ModeParams `yaml:"modes"`
	LLM          llmConfig                    `yaml:"llm"`
}

type ollamaConfig struct {
	BaseLLMConfig `yaml:",inline"`
	Host          string `yaml:"host"`
}

type openAIConfig struct {
	BaseLLMConfig `yaml:",inline"`
	APIKey        string `yaml:"apiKey"`
	BaseURL       string `yaml:"baseURL"`
}

type anthropicConfig struct {
	BaseLLMConfig `yaml:",inline"`
	APIKey        string `yaml:"apiKey"`
	Endpoint      string `yaml:"endpoint"`
	MaxTokens     int    `yaml:"maxTokens"`
}

func (c *config) UnmarshalYAML(value *yaml.Node) error {
	var rawConfig struct {
		Port         string                       `yaml:"port"`
		SystemPrompt string                       `yaml:"systemPrompt"`
		ReplyTimeout time.Duration                `yaml:"replyTimeout"`
		LogLevel     string                       `yaml:"logLevel"`
		LogFormat    string                       `yaml:"logFormat"`
		Modes        map[string]models.ModeParams `yaml:"modes"`
		LLM          map[string]any               `yaml:"llm"`
	}

	if err := value.Decode(&rawConfig); err != nil {
		return err
	}

	llmProvider, ok := rawConfig.LLM["provider"].(string)
	if !ok {
		return fmt.Errorf("llm provider is required")
	}

	llmRawYAML, err := yaml.Marshal(rawConfig.LLM)
	if err != nil {
		return err
	}

	var llm llmConfig
	switch llmProvider {
	case "ollama":
		llm = &ollamaConfig{}
	case "openai":
		llm = &openAIConfig{}
	case "anthropic":
		llm = &anthropicConfig{}
	default:
		return fmt.Errorf("unknown llm provider: %s", llmProvider)
	}

	if err := yaml.Unmarshal(llmRawYAML, llm); err != nil {
		return err
	}

	c.Port = rawConfig.Port
	c.SystemPrompt = rawConfig.SystemPrompt
	c.ReplyTimeout = rawConfig.ReplyTimeout
	c.LogLevel = rawConfig.LogLevel
	c.LogFormat = rawConfig.LogFormat
	c.Modes = rawConfig.Modes
	c.LLM = llm

	return nil
}

// loadConfig reads the config at path, or at <user config dir>/chatwidget/backend.yaml when path is
// empty.
func loadConfig(path string) (config, error) {
	if path == "" {
		cfgDir, err := os.UserConfigDir()
		if err != nil {
			return config{}, fmt.Errorf("error getting user config dir: %w", err)
		}
		path = filepath.Join(cfgDir, "chatwidget", "backend.yaml")
	}

	cfgFile, err := os.Open(path)
	if err != nil {
		return config{}, fmt.Errorf("error opening config file: %w", err)
	}
	defer cfgFile.Close()

	var cfg config
	if err := yaml.NewDecoder(cfgFile).Decode(&cfg); err != nil {
		return config{}, fmt.Errorf("error decoding config file: %w", err)
	}
	if cfg.Port == "" {
		cfg.Port = "5000"
	}

	return cfg, nil
}

func (c config) logger() (*slog.Logger, error) {
	return logging.New(os.Stderr, c.LogLevel, c.LogFormat)
}

func (o ollamaConfig) llm(systemPrompt string, _ *slog.Logger) (backend.LLM, error) {
	if o.Model == "" {
		return nil, fmt.Errorf("model is required")
	}

	host := o.Host
	if host == "" {
		host = os.Getenv("OLLAMA_HOST")
	}
	if host == "" {
		host = "http://localhost:11434"
	}
	return services.NewOllama(host, o.Model, systemPrompt)
}

func (o openAIConfig) llm(systemPrompt string, logger *slog.Logger) (backend.LLM, error) {
	if o.Model == "" {
		return nil, fmt.Errorf("model is required")
	}

	apiKey := o.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	return services.NewOpenAI(apiKey, o.BaseURL, o.Model, systemPrompt, logger), nil
}

func (a anthropicConfig) llm(systemPrompt string, _ *slog.Logger) (backend.LLM, error) {
	if a.Model == "" {
		return nil, fmt.Errorf("model is required")
	}
	if a.MaxTokens == 0 {
		return nil, fmt.Errorf("maxTokens is required")
	}

	apiKey := a.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("ANTHROPIC_API_KEY")
	}
	return services.NewAnthropic(apiKey, a.Endpoint, a.Model, systemPrompt, a.MaxTokens), nil
}
