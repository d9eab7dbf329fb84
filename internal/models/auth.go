package models

import (
	"fmt"
	"os"
	"strings"

	"github.com/parleyhq/parley/internal/config"
)

// ResolveAuth resolves the API key for a provider.
// Resolution order: direct api_key → ${VAR} indirection → driver default env.
func ResolveAuth(cfg config.ProviderConfig) (string, error) {
	key := strings.TrimSpace(cfg.Auth.APIKey)
	if strings.HasPrefix(key, "${") && strings.HasSuffix(key, "}") {
		key = os.Getenv(key[2 : len(key)-1])
	}
	if key != "" {
		return key, nil
	}

	switch strings.ToLower(cfg.Driver) {
	case "gemini":
		if key := os.Getenv("GEMINI_API_KEY"); key != "" {
			return key, nil
		}
		if key := os.Getenv("GOOGLE_API_KEY"); key != "" {
			return key, nil
		}
		return "", fmt.Errorf("GEMINI_API_KEY not set")
	case "anthropic":
		if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" {
			return key, nil
		}
		return "", fmt.Errorf("ANTHROPIC_API_KEY not set")
	case "openai":
		if key := os.Getenv("OPENAI_API_KEY"); key != "" {
			return key, nil
		}
		return "", fmt.Errorf("OPENAI_API_KEY not set")
	case "mistral":
		if key := os.Getenv("MISTRAL_API_KEY"); key != "" {
			return key, nil
		}
		return "", fmt.Errorf("MISTRAL_API_KEY not set")
	case "ollama":
		// Local backend, no credentials.
		return "", nil
	default:
		return "", fmt.Errorf("unknown driver %q: cannot resolve auth", cfg.Driver)
	}
}
