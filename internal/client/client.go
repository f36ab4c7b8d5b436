// Package client drives the tako control socket: one connection, one JSON
// document, one newline-terminated response. The test harness uses it, and
// it doubles as a scripting interface for anything else that speaks to the
// emulator.
package client

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net"
	"time"

	"github.com/lilienblum/tako/internal/protocol"
)

// dialTimeout bounds connection establishment.
const dialTimeout = 2 * time.Second

// Client performs single-exchange requests against the control socket. Each
// call dials its own connection; the protocol permits exactly one exchange
// per connection.
type Client struct {
	socketPath string
	timeout    time.Duration
}

// New creates a client for the socket at socketPath.
func New(socketPath string) *Client {
	return &Client{
		socketPath: socketPath,
		timeout:    30 * time.Second,
	}
}

// SetTimeout sets the per-exchange deadline.
func (c *Client) SetTimeout(timeout time.Duration) {
	c.timeout = timeout
}

// SendRaw transmits raw bytes as the request document and returns the decoded
// response, whatever its status. The bytes need not be valid JSON; this is
// the escape hatch for protocol-level tests.
func (c *Client) SendRaw(raw []byte) (*protocol.Response, error) {
	conn, err := net.DialTimeout("unix", c.socketPath, dialTimeout)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", c.socketPath, err)
	}
	defer func() { _ = conn.Close() }()

	if c.timeout > 0 {
		deadline := time.Now().Add(c.timeout)
		if err := conn.SetDeadline(deadline); err != nil {
			return nil, fmt.Errorf("failed to set deadline: %w", err)
		}
	}

	if _, err := conn.Write(raw); err != nil {
		return nil, fmt.Errorf("failed to write request: %w", err)
	}

	// Half-close the write side so the server's read sees the document as
	// complete even when it arrives empty.
	if uc, ok := conn.(*net.UnixConn); ok {
		if err := uc.CloseWrite(); err != nil {
			return nil, fmt.Errorf("failed to close write side: %w", err)
		}
	}

	reader := bufio.NewReader(conn)
	line, err := reader.ReadBytes('\n')
	if err != nil && len(line) == 0 {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var resp protocol.Response
	if err := json.Unmarshal(line, &resp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return &resp, nil
}

// Send marshals a request document and performs one exchange. An error-status
// response is returned alongside a non-nil error.
func (c *Client) Send(doc interface{}) (*protocol.Response, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	resp, err := c.SendRaw(raw)
	if err != nil {
		return nil, err
	}
	if resp.Status != protocol.StatusOK {
		return resp, fmt.Errorf("command failed: %s", resp.Message)
	}
	return resp, nil
}

// DeployRequest is the document sent by Deploy.
type DeployRequest struct {
	Command string   `json:"command"`
	App     string   `json:"app,omitempty"`
	Version string   `json:"version,omitempty"`
	Routes  []string `json:"routes,omitempty"`
}

// commandRequest is the minimal document for commands addressed by name.
type commandRequest struct {
	Command string `json:"command"`
	App     string `json:"app,omitempty"`
}

// Routes fetches the route entries currently served by the emulator.
func (c *Client) Routes() ([]protocol.RouteEntry, error) {
	resp, err := c.Send(commandRequest{Command: protocol.CmdRoutes})
	if err != nil {
		return nil, err
	}

	var data protocol.RoutesData
	if err := resp.UnmarshalData(&data); err != nil {
		return nil, fmt.Errorf("failed to unmarshal routes: %w", err)
	}
	return data.Routes, nil
}

// Deploy records a deployment for app. The emulator acknowledges deploys
// unconditionally; an error here means the exchange itself failed.
func (c *Client) Deploy(app, version string, routes []string) error {
	resp, err := c.Send(DeployRequest{
		Command: protocol.CmdDeploy,
		App:     app,
		Version: version,
		Routes:  routes,
	})
	if err != nil {
		return err
	}

	var ack protocol.AckData
	if err := resp.UnmarshalData(&ack); err != nil {
		return fmt.Errorf("failed to unmarshal ack: %w", err)
	}
	if !ack.OK {
		return fmt.Errorf("deploy not acknowledged")
	}
	return nil
}

// Status looks up one app in the deploy journal. Returns nil for apps the
// emulator has never seen deployed.
func (c *Client) Status(app string) (*protocol.AppStatus, error) {
	resp, err := c.Send(commandRequest{Command: protocol.CmdStatus, App: app})
	if err != nil {
		return nil, err
	}

	var data struct {
		App *protocol.AppStatus `json:"app"`
	}
	if err := resp.UnmarshalData(&data); err != nil {
		return nil, fmt.Errorf("failed to unmarshal status: %w", err)
	}
	return data.App, nil
}

// List enumerates every app recorded in the deploy journal.
func (c *Client) List() ([]protocol.AppStatus, error) {
	resp, err := c.Send(commandRequest{Command: protocol.CmdList})
	if err != nil {
		return nil, err
	}

	var data protocol.AppsData
	if err := resp.UnmarshalData(&data); err != nil {
		return nil, fmt.Errorf("failed to unmarshal apps: %w", err)
	}
	return data.Apps, nil
}

// Stop marks an app stopped in the deploy journal.
func (c *Client) Stop(app string) error {
	_, err := c.Send(commandRequest{Command: protocol.CmdStop, App: app})
	return err
}
