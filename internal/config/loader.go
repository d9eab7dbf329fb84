package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

var envTemplateRe = regexp.MustCompile(`\$\{\{\s*\.Env\.(\w+)\s*\}\}`)

// Load reads a YAML config file, expands ${{ .Env.VAR }} templates,
// unmarshals it into Config, and applies defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	// Expand environment variable templates before unmarshaling, since
	// templates live inside string values.
	expanded := expandEnvTemplates(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

// Default returns a configuration with all defaults applied, for running
// without a config file.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// expandEnvTemplates replaces ${{ .Env.VAR }} with the env var value.
func expandEnvTemplates(s string) string {
	return envTemplateRe.ReplaceAllStringFunc(s, func(match string) string {
		parts := envTemplateRe.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}
		return os.Getenv(parts[1])
	})
}

// applyDefaults fills in zero-value fields with sensible defaults.
func applyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "127.0.0.1"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 18900
	}
	if cfg.Store.Path == "" {
		cfg.Store.Path = DataPath()
	}
	if cfg.Store.ReapSchedule == "" {
		cfg.Store.ReapSchedule = "@every 30m"
	}
	if cfg.Store.ReapMinAge == 0 {
		cfg.Store.ReapMinAge = Duration(30 * time.Minute)
	}
	if cfg.Models.Default == "" {
		cfg.Models.Default = "gemini"
	}
	if cfg.Models.Providers == nil {
		cfg.Models.Providers = map[string]ProviderConfig{}
	}
	// A bare config still gets a working default provider; auth falls back
	// to GEMINI_API_KEY at resolve time.
	if _, ok := cfg.Models.Providers[cfg.Models.Default]; !ok && cfg.Models.Default == "gemini" {
		cfg.Models.Providers["gemini"] = ProviderConfig{
			Driver: "gemini",
			Model:  "gemini-2.0-flash",
		}
	}
	if cfg.Agent.MaxToolIterations == 0 {
		cfg.Agent.MaxToolIterations = 8
	}
	if cfg.Agent.StreamDelay == 0 {
		cfg.Agent.StreamDelay = Duration(20 * time.Millisecond)
	}
	if cfg.Tools.WebSearch.Provider == "" {
		cfg.Tools.WebSearch.Provider = "duckduckgo"
	}
	if cfg.Tools.WebSearch.MaxResults == 0 {
		cfg.Tools.WebSearch.MaxResults = 5
	}
}
