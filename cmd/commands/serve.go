package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/parleyhq/parley/internal/agent"
	"github.com/parleyhq/parley/internal/config"
	"github.com/parleyhq/parley/internal/gateway"
	"github.com/parleyhq/parley/internal/gateway/ws"
	"github.com/parleyhq/parley/internal/heartbeat"
	"github.com/parleyhq/parley/internal/models"
	"github.com/parleyhq/parley/internal/postprocess"
	"github.com/parleyhq/parley/internal/sessions"
	"github.com/parleyhq/parley/internal/tools"
)

// NewServeCommand returns the serve subcommand.
func NewServeCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Start the Parley session server",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "host",
				Usage: "Host to listen on",
			},
			&cli.IntFlag{
				Name:  "port",
				Usage: "Port to listen on",
			},
		},
		Action: runServe,
	}
}

func runServe(_ context.Context, cmd *cli.Command) error {
	setupLogging(cmd)
	cfg := loadConfig(cmd)

	// CLI flags override config
	if cmd.IsSet("host") {
		cfg.Server.Host = cmd.String("host")
	}
	if cmd.IsSet("port") {
		cfg.Server.Port = cmd.Int("port")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	// Session store; open failure degrades to in-memory.
	store := sessions.Open(cfg.Store.Path)
	defer store.Close()

	// Reap abandoned empty sessions at startup and on a schedule.
	reaper := sessions.NewReaper(store, cfg.Store.ReapSchedule, cfg.Store.ReapMinAge.Duration())
	if err := reaper.Start(ctx); err != nil {
		return fmt.Errorf("start reaper: %w", err)
	}
	defer reaper.Stop()

	// Model registry; a broken default provider disables engines, it does
	// not stop the server.
	registry := models.NewRegistry(cfg.Models)

	var completer postprocess.Completer
	if m, err := registry.Default(ctx); err != nil {
		slog.Warn("default model unavailable, conversations disabled",
			"provider", registry.DefaultName(), "error", err)
	} else {
		completer = models.NewSummarizer(m)
	}

	processor := postprocess.New(store, completer, 0)
	defer processor.Close()

	toolRegistry := tools.Setup(ctx, cfg.Tools)
	slog.Info("tools loaded", "names", toolRegistry.Names())

	factory := func(ctx context.Context, sessionID string) *agent.Agent {
		m, err := registry.Default(ctx)
		if err != nil {
			return agent.Disabled(err)
		}
		return agent.New(agent.Config{
			SessionID:     sessionID,
			SystemPrompt:  cfg.Agent.SystemPrompt,
			MaxIterations: cfg.Agent.MaxToolIterations,
			StreamDelay:   cfg.Agent.StreamDelay.Duration(),
			Model:         m,
			Tools:         toolRegistry,
			History:       store,
		})
	}

	wsHandler := ws.NewHandler(store, factory, processor)
	server := gateway.NewServer(store, wsHandler, cfg.Server.Host, cfg.Server.Port)

	// Liveness file for the status command.
	if err := os.MkdirAll(config.ParleyPath(), 0o755); err != nil {
		slog.Warn("create data dir failed", "path", config.ParleyPath(), "error", err)
	}
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	hb := heartbeat.NewWriter(config.HeartbeatPath(), addr, wsHandler.ActiveSessions)
	hb.Start()
	defer hb.Stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	select {
	case <-ctx.Done():
		slog.Info("shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
