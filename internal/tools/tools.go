// Package tools holds the fixed set of capabilities the model may invoke
// during a conversation. Tools never fail the calling turn: malformed input,
// execution errors, and unknown names all come back as a result object with
// an "error" field so the model can react to them like any other result.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"

	"github.com/parleyhq/parley/internal/config"
)

// Registry is the closed tool catalog, assembled once at startup and
// read-only afterwards, so it is safe for unrestricted concurrent use.
type Registry struct {
	order []string
	tools map[string]tool.InvokableTool
}

// NewRegistry returns a registry preloaded with the builtin tools.
func NewRegistry() *Registry {
	r := &Registry{tools: make(map[string]tool.InvokableTool)}
	r.register(NewWeatherTool())
	r.register(NewCalculateTool())
	r.register(NewKnowledgeTool())
	r.register(NewTimeTool())
	return r
}

// Setup builds the registry for the given configuration, adding web search
// when it is enabled. A misconfigured web search provider degrades to a
// registry without it rather than failing startup.
func Setup(ctx context.Context, cfg config.ToolsConfig) *Registry {
	r := NewRegistry()
	if cfg.WebSearch.Enabled {
		ws, err := newWebSearchTool(ctx, cfg.WebSearch)
		if err != nil {
			slog.Warn("web search disabled", "provider", cfg.WebSearch.Provider, "error", err)
		} else {
			r.register(ws)
			slog.Info("web search enabled", "provider", cfg.WebSearch.Provider)
		}
	}
	slog.Info("tools registered", "tools", r.Names())
	return r
}

func (r *Registry) register(t tool.InvokableTool) {
	info, err := t.Info(context.Background())
	if err != nil {
		slog.Warn("tool rejected, no info", "error", err)
		return
	}
	if _, exists := r.tools[info.Name]; !exists {
		r.order = append(r.order, info.Name)
	}
	r.tools[info.Name] = t
}

// Names returns the registered tool names in registration order.
func (r *Registry) Names() []string {
	return append([]string(nil), r.order...)
}

// Infos returns the model-facing tool catalog.
func (r *Registry) Infos(ctx context.Context) []*schema.ToolInfo {
	infos := make([]*schema.ToolInfo, 0, len(r.order))
	for _, name := range r.order {
		info, err := r.tools[name].Info(ctx)
		if err != nil {
			slog.Warn("tool info unavailable", "tool", name, "error", err)
			continue
		}
		infos = append(infos, info)
	}
	return infos
}

// Execute runs the named tool with JSON-encoded arguments and returns its
// JSON-encoded result. Errors are data: an unknown name or a failing tool
// produces an {"error": ...} result, never a Go error.
func (r *Registry) Execute(ctx context.Context, name, argsJSON string) string {
	t, ok := r.tools[name]
	if !ok {
		return errorResult(fmt.Sprintf("Unknown tool: %s", name))
	}
	out, err := t.InvokableRun(ctx, argsJSON)
	if err != nil {
		return errorResult(err.Error())
	}
	return out
}

func errorResult(message string) string {
	data, _ := json.Marshal(map[string]string{"error": message})
	return string(data)
}

func marshalResult(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("marshal tool result: %w", err)
	}
	return string(data), nil
}

func decodeArgs(argsJSON string, v any) error {
	if strings.TrimSpace(argsJSON) == "" {
		return nil
	}
	return json.Unmarshal([]byte(argsJSON), v)
}
