package ipc

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"syscall"
	"time"

	"github.com/google/uuid"
)

const defaultTimeout = 220 * time.Millisecond

// ErrNoDaemon reports that nothing is listening on the control socket.
var ErrNoDaemon = errors.New("no running voxkey daemon")

// RejectedError is a reply the daemon answered with ok=false.
type RejectedError struct {
	Command Command
	Reason  string
}

func (e *RejectedError) Error() string {
	return e.Reason
}

// Client sends commands to the daemon listening on one socket.
type Client struct {
	path    string
	timeout time.Duration
}

// NewClient builds a client for the socket at path.
func NewClient(path string) *Client {
	return &Client{path: path, timeout: defaultTimeout}
}

// WithTimeout returns a copy of c whose round trips are bounded by d.
func (c *Client) WithTimeout(d time.Duration) *Client {
	out := *c
	out.timeout = d
	return &out
}

// Send performs one round trip. A missing or refusing socket yields
// ErrNoDaemon; a rejected command returns the reply with a *RejectedError.
func (c *Client) Send(ctx context.Context, cmd Command) (Response, error) {
	req := Request{ID: uuid.NewString(), Command: cmd}
	resp, err := roundTrip(ctx, c.path, req, c.timeout)
	if err != nil {
		if isSocketMissing(err) || isConnectionRefused(err) {
			return Response{}, fmt.Errorf("%w at %s", ErrNoDaemon, c.path)
		}
		return Response{}, fmt.Errorf("send %s: %w", cmd, err)
	}
	if !resp.OK {
		return resp, &RejectedError{Command: cmd, Reason: resp.Error}
	}
	return resp, nil
}

func (c *Client) Status(ctx context.Context) (Response, error)  { return c.Send(ctx, CommandStatus) }
func (c *Client) Toggle(ctx context.Context) (Response, error)  { return c.Send(ctx, CommandToggle) }
func (c *Client) Press(ctx context.Context) (Response, error)   { return c.Send(ctx, CommandPress) }
func (c *Client) Release(ctx context.Context) (Response, error) { return c.Send(ctx, CommandRelease) }
func (c *Client) Stop(ctx context.Context) (Response, error)    { return c.Send(ctx, CommandStop) }
func (c *Client) Cancel(ctx context.Context) (Response, error)  { return c.Send(ctx, CommandCancel) }

// Alive reports whether a daemon answers on the socket. An error means the
// socket exists but its owner could not be judged.
func (c *Client) Alive(ctx context.Context) (bool, error) {
	_, err := c.Status(ctx)
	var rejected *RejectedError
	switch {
	case err == nil, errors.As(err, &rejected):
		return true, nil
	case errors.Is(err, ErrNoDaemon):
		return false, nil
	default:
		return false, fmt.Errorf("check socket: %w", err)
	}
}

func roundTrip(ctx context.Context, path string, req Request, timeout time.Duration) (Response, error) {
	dialer := net.Dialer{Timeout: timeout}
	conn, err := dialer.DialContext(ctx, "unix", path)
	if err != nil {
		return Response{}, err
	}
	defer conn.Close()

	if err := conn.SetDeadline(time.Now().Add(timeout)); err != nil {
		return Response{}, fmt.Errorf("set deadline: %w", err)
	}
	if err := json.NewEncoder(conn).Encode(req); err != nil {
		return Response{}, fmt.Errorf("encode request: %w", err)
	}

	line, err := bufio.NewReader(conn).ReadBytes('\n')
	if err != nil {
		return Response{}, fmt.Errorf("read response: %w", err)
	}
	var resp Response
	if err := json.Unmarshal(line, &resp); err != nil {
		return Response{}, fmt.Errorf("decode response: %w", err)
	}
	return resp, nil
}

func isSocketMissing(err error) bool {
	return errors.Is(err, os.ErrNotExist) || errors.Is(err, syscall.ENOENT)
}

func isConnectionRefused(err error) bool {
	return errors.Is(err, syscall.ECONNREFUSED)
}
