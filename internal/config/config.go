package config

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration for Parley.
type Config struct {
	Server ServerConfig `yaml:"server"`
	Store  StoreConfig  `yaml:"store"`
	Models ModelsConfig `yaml:"models"`
	Agent  AgentConfig  `yaml:"agent"`
	Tools  ToolsConfig  `yaml:"tools"`
}

// ServerConfig holds the HTTP/WebSocket server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// StoreConfig configures session/event persistence. Path defaults to the
// sessions database under the Parley data dir; ":memory:" keeps everything
// ephemeral. An open failure degrades to the in-memory store instead of
// failing startup.
type StoreConfig struct {
	Path         string   `yaml:"path"`
	ReapSchedule string   `yaml:"reap_schedule"` // cron spec for the empty-session reaper
	ReapMinAge   Duration `yaml:"reap_min_age"`  // sessions younger than this are never reaped
}

// ModelsConfig holds model provider configuration.
type ModelsConfig struct {
	Default   string                    `yaml:"default"`
	Providers map[string]ProviderConfig `yaml:"providers"`
}

// ProviderConfig configures a single LLM provider.
type ProviderConfig struct {
	Driver        string         `yaml:"driver"` // "gemini", "anthropic", "openai", "ollama"
	Model         string         `yaml:"model"`
	BaseURL       string         `yaml:"base_url,omitempty"`
	Auth          AuthConfig     `yaml:"auth"`
	MaxTokens     int            `yaml:"max_tokens,omitempty"`
	MaxConcurrent int            `yaml:"max_concurrent,omitempty"` // concurrent backend calls (0 = unlimited)
	Timeout       Duration       `yaml:"timeout,omitempty"`
	Options       map[string]any `yaml:"options,omitempty"`
}

// AuthConfig configures API key resolution.
// The key may be a literal value or a ${VAR} environment reference.
type AuthConfig struct {
	APIKey string `yaml:"api_key,omitempty"`
}

// AgentConfig holds conversation engine settings.
type AgentConfig struct {
	SystemPrompt      string   `yaml:"system_prompt,omitempty"`
	MaxToolIterations int      `yaml:"max_tool_iterations"` // hard cap on tool rounds per turn
	StreamDelay       Duration `yaml:"stream_delay"`        // pause between streamed token chunks
}

// ToolsConfig configures the builtin tool set.
type ToolsConfig struct {
	WebSearch WebSearchConfig `yaml:"web_search"`
}

// WebSearchConfig configures the optional web_search tool.
// Supported providers: "duckduckgo" (default, no API key), "google", "bing".
type WebSearchConfig struct {
	Enabled      bool     `yaml:"enabled"`
	Provider     string   `yaml:"provider,omitempty"`
	MaxResults   int      `yaml:"max_results,omitempty"`
	GoogleAPIKey string   `yaml:"google_api_key,omitempty"`
	GoogleCX     string   `yaml:"google_cx,omitempty"`
	BingAPIKey   string   `yaml:"bing_api_key,omitempty"`
	Timeout      Duration `yaml:"timeout,omitempty"`
}

// Duration wraps time.Duration for YAML unmarshaling ("30s", "2m", ...).
type Duration time.Duration

func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	dur, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", value.Value, err)
	}
	*d = Duration(dur)
	return nil
}

func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}
