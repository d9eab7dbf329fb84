package tools

import (
	"context"
	"fmt"
	"time"

	"github.com/cloudwego/eino/components/tool"

	"github.com/cloudwego/eino-ext/components/tool/bingsearch"
	duckduckgo "github.com/cloudwego/eino-ext/components/tool/duckduckgo/v2"
	"github.com/cloudwego/eino-ext/components/tool/googlesearch"

	"github.com/parleyhq/parley/internal/config"
)

const (
	webSearchName = "web_search"
	webSearchDesc = "Search the web for current information. Returns titles, URLs, and snippets."
)

// newWebSearchTool builds the configured web search provider.
func newWebSearchTool(ctx context.Context, cfg config.WebSearchConfig) (tool.InvokableTool, error) {
	maxResults := cfg.MaxResults
	if maxResults <= 0 {
		maxResults = 5
	}

	switch cfg.Provider {
	case "", "duckduckgo":
		return duckduckgo.NewTextSearchTool(ctx, &duckduckgo.Config{
			ToolName:   webSearchName,
			ToolDesc:   webSearchDesc,
			MaxResults: maxResults,
			Timeout:    time.Duration(cfg.Timeout),
		})
	case "google":
		if cfg.GoogleAPIKey == "" || cfg.GoogleCX == "" {
			return nil, fmt.Errorf("google search needs google_api_key and google_cx")
		}
		return googlesearch.NewTool(ctx, &googlesearch.Config{
			APIKey:         cfg.GoogleAPIKey,
			SearchEngineID: cfg.GoogleCX,
			Num:            maxResults,
			ToolName:       webSearchName,
			ToolDesc:       webSearchDesc,
		})
	case "bing":
		if cfg.BingAPIKey == "" {
			return nil, fmt.Errorf("bing search needs bing_api_key")
		}
		return bingsearch.NewTool(ctx, &bingsearch.Config{
			APIKey:     cfg.BingAPIKey,
			MaxResults: maxResults,
			ToolName:   webSearchName,
			ToolDesc:   webSearchDesc,
			Timeout:    time.Duration(cfg.Timeout),
		})
	default:
		return nil, fmt.Errorf("unknown web search provider %q", cfg.Provider)
	}
}
