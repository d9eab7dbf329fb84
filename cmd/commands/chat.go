package commands

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/urfave/cli/v3"

	wsclient "github.com/parleyhq/parley/clients/ws"
	wsprotocol "github.com/parleyhq/parley/internal/gateway/ws"
)

// NewChatCommand returns the chat subcommand.
func NewChatCommand() *cli.Command {
	return &cli.Command{
		Name:  "chat",
		Usage: "Open an interactive conversation with the server",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "server",
				Usage: "Server base URL",
				Value: "http://127.0.0.1:18900",
			},
			&cli.StringFlag{
				Name:    "session",
				Aliases: []string{"s"},
				Usage:   "Session ID to resume (empty = new session)",
			},
			&cli.StringFlag{
				Name:  "user",
				Usage: "User ID for new sessions",
				Value: "anonymous",
			},
		},
		Action: runChat,
	}
}

func runChat(ctx context.Context, cmd *cli.Command) error {
	base := strings.TrimRight(cmd.String("server"), "/")

	sessionID := cmd.String("session")
	if sessionID == "" {
		id, err := createSession(ctx, base, cmd.String("user"))
		if err != nil {
			return err
		}
		sessionID = id
	}

	wsURL := "ws" + strings.TrimPrefix(base, "http") + "/ws/session/" + sessionID
	client, err := wsclient.Dial(ctx, wsURL)
	if err != nil {
		return fmt.Errorf("connect to server: %w", err)
	}
	defer client.Close()

	fmt.Fprintf(os.Stderr, "session: %s (exit to quit)\n", sessionID)

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Fprint(os.Stderr, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(os.Stderr)
			return nil
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "exit" || line == "quit" {
			return nil
		}

		if err := client.Send(line); err != nil {
			return fmt.Errorf("send message: %w", err)
		}
		if err := readTurn(ctx, client); err != nil {
			return err
		}
	}
}

// createSession asks the server for a fresh session id.
func createSession(ctx context.Context, base, userID string) (string, error) {
	body, _ := json.Marshal(map[string]string{"user_id": userID})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		base+"/api/sessions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("create session: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("create session: unexpected status %s", resp.Status)
	}

	var out struct {
		SessionID string `json:"session_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode session response: %w", err)
	}
	return out.SessionID, nil
}

// readTurn prints one reply: streamed tokens on stdout, tool activity and
// errors on stderr.
func readTurn(ctx context.Context, client *wsclient.Client) error {
	for {
		f, err := client.ReadFrame()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("read frame: %w", err)
		}

		switch f.Type {
		case wsprotocol.FrameToken:
			fmt.Print(f.Token)
		case wsprotocol.FrameComplete:
			fmt.Println()
			return nil
		case wsprotocol.FrameToolCall:
			fmt.Fprintf(os.Stderr, "[tool] %s %s\n", f.ToolName, compactJSON(f.ToolInput))
		case wsprotocol.FrameToolResult:
			fmt.Fprintf(os.Stderr, "[tool] %s -> %s\n", f.ToolName, compactJSON(f.Result))
		case wsprotocol.FrameError:
			fmt.Fprintf(os.Stderr, "error: %s\n", f.Message)
			return nil
		}
	}
}

func compactJSON(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(data)
}
