// Package control serves gallery commands on a local unix socket and
// provides the matching client used by the CLI and console.
package control

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/tracgallery/gallery/internal/events"
	"github.com/tracgallery/gallery/internal/logging"
)

// Handler answers command requests
type Handler interface {
	HandleCommand(ctx context.Context, req events.Request) *events.Message
}

// Server manages the control socket of a running gallery daemon.
// Each connection carries one JSON request and one JSON envelope back.
type Server struct {
	socketPath string
	listener   net.Listener
	handler    Handler
	log        *zerolog.Logger
	mu         sync.RWMutex
	running    bool
	stopCh     chan struct{}
	doneCh     chan struct{}
}

// NewServer creates a control server. Any stale socket left by a crashed
// daemon is removed.
func NewServer(socketPath string, handler Handler, logger *zerolog.Logger) (*Server, error) {
	if handler == nil {
		return nil, fmt.Errorf("command handler is required")
	}
	dir := filepath.Dir(socketPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create socket directory: %w", err)
	}
	if err := os.RemoveAll(socketPath); err != nil {
		return nil, fmt.Errorf("failed to remove existing socket: %w", err)
	}

	return &Server{
		socketPath: socketPath,
		handler:    handler,
		log:        logging.Component(logger, "control"),
		stopCh:     make(chan struct{}),
		doneCh:     make(chan struct{}),
	}, nil
}

// Start begins listening for commands
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("control server already running")
	}

	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("failed to create control socket: %w", err)
	}
	// owner only
	if err := os.Chmod(s.socketPath, 0600); err != nil {
		listener.Close()
		s.mu.Unlock()
		return fmt.Errorf("failed to restrict control socket: %w", err)
	}

	s.listener = listener
	s.running = true
	s.mu.Unlock()

	s.log.Info().Str("socket", s.socketPath).Msg("control server listening")
	go s.acceptLoop(ctx)
	return nil
}

func (s *Server) acceptLoop(ctx context.Context) {
	defer close(s.doneCh)
	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		default:
		}

		// accept timeout lets the loop observe stop and ctx
		if err := s.listener.(*net.UnixListener).SetDeadline(time.Now().Add(time.Second)); err != nil {
			s.log.Warn().Err(err).Msg("failed to set accept deadline")
			continue
		}

		conn, err := s.listener.Accept()
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			select {
			case <-s.stopCh:
				return
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}
			s.log.Warn().Err(err).Msg("accept error")
			continue
		}

		go s.handleConnection(ctx, conn)
	}
}

func (s *Server) handleConnection(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	if err := conn.SetReadDeadline(time.Now().Add(5 * time.Second)); err != nil {
		s.log.Warn().Err(err).Msg("failed to set read deadline")
		return
	}

	var req events.Request
	if err := json.NewDecoder(conn).Decode(&req); err != nil {
		s.send(conn, events.NewError(fmt.Sprintf("failed to decode command: %v", err), time.Now()))
		return
	}
	_ = conn.SetReadDeadline(time.Time{})

	s.log.Debug().Str("command", req.Name()).Str("requester", req.RequesterID).Msg("control command")
	s.send(conn, s.handler.HandleCommand(ctx, req))
}

func (s *Server) send(conn net.Conn, msg *events.Message) {
	_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	if err := json.NewEncoder(conn).Encode(msg); err != nil {
		s.log.Warn().Err(err).Msg("failed to send response")
	}
}

// Stop closes the listener, waits for the accept loop and removes the socket file
func (s *Server) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	close(s.stopCh)

	if s.listener != nil {
		if err := s.listener.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			s.log.Warn().Err(err).Msg("error closing listener")
		}
	}

	select {
	case <-s.doneCh:
	case <-time.After(5 * time.Second):
		s.log.Warn().Msg("timeout waiting for control server shutdown")
	}

	if err := os.RemoveAll(s.socketPath); err != nil {
		s.log.Warn().Err(err).Msg("failed to remove socket file")
	}
	s.log.Info().Msg("control server stopped")
	return nil
}

// IsRunning returns whether the server is currently running
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// SocketPath returns the path to the control socket
func (s *Server) SocketPath() string {
	return s.socketPath
}
