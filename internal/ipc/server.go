package ipc

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// requestTimeout bounds how long one client may take to send its request line.
const requestTimeout = 2 * time.Second

// Handler processes one IPC command request.
type Handler interface {
	Handle(context.Context, Request) Response
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(context.Context, Request) Response

func (f HandlerFunc) Handle(ctx context.Context, req Request) Response {
	return f(ctx, req)
}

// Serve answers one request per connection until ctx ends or listener closes.
// Unknown commands are rejected before reaching handler.
func Serve(ctx context.Context, listener net.Listener, handler Handler, logger zerolog.Logger) error {
	var wg sync.WaitGroup

	go func() {
		<-ctx.Done()
		_ = listener.Close()
	}()

	for {
		conn, err := listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) || ctx.Err() != nil {
				wg.Wait()
				return nil
			}
			return fmt.Errorf("accept IPC connection: %w", err)
		}

		wg.Add(1)
		go func(c net.Conn) {
			defer wg.Done()
			defer c.Close()
			serveConn(ctx, c, handler, logger)
		}(conn)
	}
}

func serveConn(ctx context.Context, c net.Conn, handler Handler, logger zerolog.Logger) {
	_ = c.SetReadDeadline(time.Now().Add(requestTimeout))

	line, err := bufio.NewReader(c).ReadBytes('\n')
	if err != nil {
		logger.Debug().Err(err).Msg("ipc read request failed")
		_ = json.NewEncoder(c).Encode(Response{OK: false, Error: fmt.Sprintf("read request: %v", err)})
		return
	}

	var req Request
	if err := json.Unmarshal(line, &req); err != nil {
		logger.Debug().Err(err).Msg("ipc decode request failed")
		_ = json.NewEncoder(c).Encode(Response{OK: false, Error: fmt.Sprintf("decode request: %v", err)})
		return
	}

	log := logger.With().Str("request_id", req.ID).Str("command", string(req.Command)).Logger()
	var resp Response
	if req.Command.Valid() {
		resp = handler.Handle(ctx, req)
	} else {
		resp = Response{OK: false, Error: fmt.Sprintf("unknown command: %s", req.Command)}
	}
	resp.ID = req.ID

	log.Debug().Bool("ok", resp.OK).Str("state", resp.State).Msg("ipc request handled")
	_ = json.NewEncoder(c).Encode(resp)
}
