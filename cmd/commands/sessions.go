package commands

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/parleyhq/parley/internal/sessions"
)

// NewSessionsCommand returns the sessions subcommand.
func NewSessionsCommand() *cli.Command {
	return &cli.Command{
		Name:  "sessions",
		Usage: "Inspect recorded sessions",
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List recent sessions",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Maximum sessions to list",
						Value: 20,
					},
				},
				Action: runSessionsList,
			},
			{
				Name:      "show",
				Usage:     "Show a session and its conversation",
				ArgsUsage: "<session_id>",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "all",
						Usage: "Include tool call events",
					},
				},
				Action: runSessionsShow,
			},
		},
		DefaultCommand: "list",
	}
}

func runSessionsList(ctx context.Context, cmd *cli.Command) error {
	cfg := loadConfig(cmd)
	store := sessions.Open(cfg.Store.Path)
	defer store.Close()

	list, err := store.ListSessions(ctx, cmd.Int("limit"))
	if err != nil {
		return fmt.Errorf("list sessions: %w", err)
	}

	if len(list) == 0 {
		fmt.Println("No sessions found.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tUSER\tSTATUS\tSTARTED\tDURATION\tTITLE")
	for _, s := range list {
		duration := "-"
		if s.DurationSeconds != nil {
			duration = (time.Duration(*s.DurationSeconds) * time.Second).String()
		}
		title := s.Title
		if title == "" {
			title = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			s.ID,
			s.UserID,
			s.Status,
			s.StartTime.Local().Format("2006-01-02 15:04"),
			duration,
			title,
		)
	}
	return w.Flush()
}

func runSessionsShow(ctx context.Context, cmd *cli.Command) error {
	sessionID := cmd.Args().First()
	if sessionID == "" {
		return fmt.Errorf("usage: parley sessions show <session_id>")
	}

	cfg := loadConfig(cmd)
	store := sessions.Open(cfg.Store.Path)
	defer store.Close()

	sess, err := store.GetSession(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("load session: %w", err)
	}

	fmt.Printf("Session: %s\n", sess.ID)
	fmt.Printf("User:    %s\n", sess.UserID)
	fmt.Printf("Status:  %s\n", sess.Status)
	fmt.Printf("Started: %s\n", sess.StartTime.Local().Format("2006-01-02 15:04:05"))
	if sess.DurationSeconds != nil {
		fmt.Printf("Length:  %s\n", time.Duration(*sess.DurationSeconds)*time.Second)
	}
	if sess.Title != "" {
		fmt.Printf("Title:   %s\n", sess.Title)
	}
	if sess.Summary != "" {
		fmt.Printf("Summary: %s\n", sess.Summary)
	}

	types := []sessions.EventType{
		sessions.EventUserMessage,
		sessions.EventAiResponse,
		sessions.EventSystem,
		sessions.EventError,
	}
	if cmd.Bool("all") {
		types = nil
	}

	events, err := store.Events(ctx, sessionID, types...)
	if err != nil {
		return fmt.Errorf("load events: %w", err)
	}
	if len(events) == 0 {
		fmt.Println("\nNo events in this session.")
		return nil
	}

	fmt.Println()
	for _, e := range events {
		fmt.Printf("[%s] %s: %s\n", e.Timestamp.Local().Format("15:04:05"), e.Type, e.Content)
	}
	return nil
}
