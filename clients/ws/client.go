// Package ws provides a WebSocket client for a Parley session endpoint.
package ws

import (
	"context"
	"fmt"

	"github.com/coder/websocket"

	wsprotocol "github.com/parleyhq/parley/internal/gateway/ws"
)

// Client is a WebSocket client bound to one session.
type Client struct {
	conn   *websocket.Conn
	ctx    context.Context
	cancel context.CancelFunc
}

// Dial connects to a session's websocket endpoint.
func Dial(ctx context.Context, url string) (*Client, error) {
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("ws dial: %w", err)
	}

	clientCtx, cancel := context.WithCancel(ctx)

	return &Client{
		conn:   conn,
		ctx:    clientCtx,
		cancel: cancel,
	}, nil
}

// Send transmits one user message.
func (c *Client) Send(content string) error {
	data, err := wsprotocol.MarshalInbound(wsprotocol.Inbound{Type: "message", Content: content})
	if err != nil {
		return err
	}
	return c.conn.Write(c.ctx, websocket.MessageText, data)
}

// Ping sends a keepalive; the server answers with a pong frame.
func (c *Client) Ping() error {
	data, err := wsprotocol.MarshalInbound(wsprotocol.Inbound{Type: "ping"})
	if err != nil {
		return err
	}
	return c.conn.Write(c.ctx, websocket.MessageText, data)
}

// ReadFrame reads the next server frame from the connection.
func (c *Client) ReadFrame() (wsprotocol.Frame, error) {
	_, data, err := c.conn.Read(c.ctx)
	if err != nil {
		return wsprotocol.Frame{}, err
	}
	return wsprotocol.ParseFrame(data)
}

// Close gracefully closes the connection.
func (c *Client) Close() error {
	c.cancel()
	return c.conn.Close(websocket.StatusNormalClosure, "bye")
}
