// Copyright 2026 The Yatfs Authors
// SPDX-License-Identifier: Apache-2.0

package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"sync"
	"time"

	"github.com/yatfs/yatfs/lib/codec"
)

// CodeNotFound is the response code for a lookup that produced
// nothing.
const CodeNotFound = "not_found"

// ActionFunc processes one request. raw is the full CBOR request,
// including the "action" field. A non-nil result is encoded into the
// response's data field.
type ActionFunc func(ctx context.Context, raw []byte) (any, error)

// Response is the envelope of every reply.
type Response struct {
	OK    bool             `cbor:"ok"`
	Error string           `cbor:"error,omitempty"`
	Code  string           `cbor:"code,omitempty"`
	Data  codec.RawMessage `cbor:"data,omitempty"`
}

// Error is a handler failure carrying a machine-readable code. Clients
// receive it back as an *Error with the same Code.
type Error struct {
	Action  string
	Code    string
	Message string
}

func (e *Error) Error() string {
	if e.Action == "" {
		return e.Message
	}
	return fmt.Sprintf("service error on %q: %s", e.Action, e.Message)
}

// NotFound returns an *Error with CodeNotFound.
func NotFound(format string, args ...any) *Error {
	return &Error{Code: CodeNotFound, Message: fmt.Sprintf(format, args...)}
}

const (
	// readTimeout bounds how long the server waits for the request.
	readTimeout = 30 * time.Second

	// writeTimeout bounds writing the response.
	writeTimeout = 30 * time.Second
)

// SocketServer serves the protocol on a Unix socket. Register actions
// with Handle before calling Serve.
type SocketServer struct {
	socketPath string
	handlers   map[string]ActionFunc
	logger     *slog.Logger

	activeConnections sync.WaitGroup
}

// NewSocketServer creates a server that will listen on socketPath. A
// nil logger discards output.
func NewSocketServer(socketPath string, logger *slog.Logger) *SocketServer {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &SocketServer{
		socketPath: socketPath,
		handlers:   make(map[string]ActionFunc),
		logger:     logger,
	}
}

// Handle registers handler for action. Panics on a duplicate action.
func (s *SocketServer) Handle(action string, handler ActionFunc) {
	if _, exists := s.handlers[action]; exists {
		panic(fmt.Sprintf("service.SocketServer: duplicate handler for action %q", action))
	}
	s.handlers[action] = handler
}

// Serve accepts connections until ctx is cancelled, then waits for
// active handlers to finish. A stale socket file is replaced; the
// socket file is removed on return.
func (s *SocketServer) Serve(ctx context.Context) error {
	if err := os.Remove(s.socketPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing stale socket %s: %w", s.socketPath, err)
	}

	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.socketPath, err)
	}
	defer func() {
		listener.Close()
		os.Remove(s.socketPath)
	}()

	go func() {
		<-ctx.Done()
		listener.Close()
	}()

	s.logger.Info("socket server listening", "path", s.socketPath)

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				break
			}
			s.logger.Error("accept failed", "error", err)
			continue
		}

		s.activeConnections.Add(1)
		go func() {
			defer s.activeConnections.Done()
			s.handleConnection(ctx, conn)
		}()
	}

	s.activeConnections.Wait()
	return nil
}

func (s *SocketServer) handleConnection(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(readTimeout))

	var raw codec.RawMessage
	if err := codec.NewDecoder(io.LimitReader(conn, codec.MaxMessageSize)).Decode(&raw); err != nil {
		if errors.Is(err, io.EOF) {
			return
		}
		s.writeError(conn, &Error{Message: fmt.Sprintf("invalid request: %v", err)})
		return
	}

	var header struct {
		Action string `cbor:"action"`
	}
	if err := codec.Unmarshal(raw, &header); err != nil {
		s.writeError(conn, &Error{Message: fmt.Sprintf("invalid request: %v", err)})
		return
	}
	if header.Action == "" {
		s.writeError(conn, &Error{Message: "missing required field: action"})
		return
	}

	handler, exists := s.handlers[header.Action]
	if !exists {
		s.writeError(conn, &Error{Message: fmt.Sprintf("unknown action %q", header.Action)})
		return
	}

	result, err := handler(ctx, []byte(raw))
	if err != nil {
		s.logger.Debug("action failed", "action", header.Action, "error", err)
		var serviceError *Error
		if !errors.As(err, &serviceError) {
			serviceError = &Error{Message: err.Error()}
		}
		s.writeError(conn, serviceError)
		return
	}

	s.writeSuccess(conn, result)
}

// writeError sends {ok: false}. Write failures are only logged; the
// connection is closing either way.
func (s *SocketServer) writeError(conn net.Conn, failure *Error) {
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := codec.NewEncoder(conn).Encode(Response{
		OK:    false,
		Error: failure.Message,
		Code:  failure.Code,
	}); err != nil {
		s.logger.Debug("failed to write error response", "error", err)
	}
}

func (s *SocketServer) writeSuccess(conn net.Conn, result any) {
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))

	response := Response{OK: true}
	if result != nil {
		data, err := codec.Marshal(result)
		if err != nil {
			s.writeError(conn, &Error{Message: fmt.Sprintf("internal: marshaling response: %v", err)})
			return
		}
		response.Data = data
	}

	if err := codec.NewEncoder(conn).Encode(response); err != nil {
		s.logger.Debug("failed to write success response", "error", err)
	}
}
