package daemon

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"strconv"
	"sync/atomic"
	"time"
)

// Client performs one-shot request/response exchanges with a daemon. Each
// call opens a fresh connection; the daemon keeps the expensive state, so
// connections are cheap.
type Client struct {
	cfg    Config
	nextID atomic.Int64
}

// NewClient wraps a daemon config.
func NewClient(cfg Config) *Client {
	return &Client{cfg: cfg}
}

// IsRunning reports whether a daemon answers ping on the configured socket.
func (c *Client) IsRunning() bool {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := c.Ping(ctx)
	return err == nil
}

// Ping checks liveness and returns the daemon's instance name.
func (c *Client) Ping(ctx context.Context) (*PingResult, error) {
	var result PingResult
	if err := c.call(ctx, MethodPing, nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Status fetches the daemon's status block.
func (c *Client) Status(ctx context.Context) (*StatusResult, error) {
	var result StatusResult
	if err := c.call(ctx, MethodStatus, nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Search runs a semantic query through the daemon.
func (c *Client) Search(ctx context.Context, params SearchParams) ([]SearchResult, error) {
	var results []SearchResult
	if err := c.call(ctx, MethodSearch, params, &results); err != nil {
		return nil, err
	}
	return results, nil
}

// Graph issues one code-graph method and decodes into result.
func (c *Client) Graph(ctx context.Context, method string, params GraphParams, result any) error {
	return c.call(ctx, method, params, result)
}

// call sends one request line and decodes the single response line.
func (c *Client) call(ctx context.Context, method string, params, result any) error {
	deadline := time.Now().Add(c.cfg.Timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	conn, err := net.DialTimeout("unix", c.cfg.SocketPath, 2*time.Second)
	if err != nil {
		return fmt.Errorf("daemon not reachable at %s: %w", c.cfg.SocketPath, err)
	}
	defer conn.Close()
	_ = conn.SetDeadline(deadline)

	req := Request{
		JSONRPC: "2.0",
		Method:  method,
		Params:  params,
		ID:      json.RawMessage(strconv.Quote(strconv.FormatInt(c.nextID.Add(1), 10))),
	}
	payload, err := json.Marshal(req)
	if err != nil {
		return err
	}
	if _, err := conn.Write(append(payload, '\n')); err != nil {
		return fmt.Errorf("send %s: %w", method, err)
	}

	line, err := bufio.NewReader(conn).ReadBytes('\n')
	if err != nil {
		return fmt.Errorf("read %s response: %w", method, err)
	}

	var resp Response
	if err := json.Unmarshal(line, &resp); err != nil {
		return fmt.Errorf("parse %s response: %w", method, err)
	}
	if resp.Error != nil {
		return fmt.Errorf("daemon error %d: %s", resp.Error.Code, resp.Error.Message)
	}
	if result == nil {
		return nil
	}

	raw, err := json.Marshal(resp.Result)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, result)
}
