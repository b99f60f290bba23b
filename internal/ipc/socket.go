package ipc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// ErrAlreadyRunning reports that another daemon answers on the control socket.
var ErrAlreadyRunning = errors.New("voxkey daemon already running")

// SocketEnv overrides the control socket location.
const SocketEnv = "VOXKEY_SOCKET"

// SocketPath returns $VOXKEY_SOCKET, or voxkey.sock under XDG_RUNTIME_DIR.
func SocketPath() (string, error) {
	if path := strings.TrimSpace(os.Getenv(SocketEnv)); path != "" {
		return path, nil
	}
	runtimeDir := strings.TrimSpace(os.Getenv("XDG_RUNTIME_DIR"))
	if runtimeDir == "" {
		return "", fmt.Errorf("XDG_RUNTIME_DIR is not set (or set %s)", SocketEnv)
	}
	return filepath.Join(runtimeDir, "voxkey.sock"), nil
}

var errStaleSocket = errors.New("stale socket removed")

// Acquire listens on path for the daemon. A socket left by a dead daemon is
// removed and listening is retried up to retries times; a live daemon yields
// ErrAlreadyRunning.
func Acquire(ctx context.Context, path string, checkTimeout time.Duration, retries int) (net.Listener, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("ensure runtime socket dir: %w", err)
	}
	owner := NewClient(path).WithTimeout(checkTimeout)

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 25 * time.Millisecond
	b.MaxInterval = 200 * time.Millisecond

	listener, err := backoff.Retry(ctx, func() (net.Listener, error) {
		listener, err := net.Listen("unix", path)
		if err == nil {
			_ = os.Chmod(path, 0o600)
			return listener, nil
		}
		if !errors.Is(err, syscall.EADDRINUSE) {
			return nil, backoff.Permanent(fmt.Errorf("listen unix %s: %w", path, err))
		}

		alive, checkErr := owner.Alive(ctx)
		if alive {
			return nil, backoff.Permanent(ErrAlreadyRunning)
		}
		if checkErr != nil {
			return nil, backoff.Permanent(fmt.Errorf("check existing socket %s: %w", path, checkErr))
		}
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, backoff.Permanent(fmt.Errorf("remove stale socket %s: %w", path, err))
		}
		return nil, errStaleSocket
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(retries+1)),
	)
	if errors.Is(err, errStaleSocket) {
		return nil, fmt.Errorf("failed to acquire socket %s after %d retries", path, retries)
	}
	return listener, err
}
