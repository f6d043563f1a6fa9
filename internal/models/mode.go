package models

// ModeParams are the generation parameters a backend applies for a mode.
type ModeParams struct {
	Temperature float32 `yaml:"temperature"`
	TopP        float32 `yaml:"topP"`
	MaxTokens   int     `yaml:"maxTokens"`
}

// DefaultModeParams mirror the modes offered by the widget by default.
var DefaultModeParams = map[string]ModeParams{
	"normal":   {Temperature: 0.7, TopP: 0.9, MaxTokens: 512},
	"code":     {Temperature: 0.2, TopP: 0.95, MaxTokens: 1024},
	"creative": {Temperature: 0.9, TopP: 1.0, MaxTokens: 750},
}
