// Package server implements the tako control socket: a Unix stream listener
// answering exactly one JSON command per connection, strictly in sequence.
package server

import (
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"sync"

	"github.com/lilienblum/tako/internal/protocol"
	"github.com/lilienblum/tako/internal/state"
)

// Default endpoint and state locations. A deployment harness drives the
// emulator at exactly these paths unless overridden.
const (
	DefaultSocketPath = "/var/run/tako/tako.sock"
	DefaultStateDir   = "/opt/tako"
)

// Server owns the listening socket and the state handles used to answer
// commands. Connections are handled one at a time; a slow client blocks the
// accept loop by contract.
type Server struct {
	socketPath string
	store      *state.Store
	dispatcher *Dispatcher
	logger     *slog.Logger

	mu        sync.Mutex
	listener  net.Listener
	shutdown  bool
	stopOnce  sync.Once
	readyChan chan struct{}
}

// New creates a server bound to socketPath once started. journal may be nil;
// the dispatcher then serves without one.
func New(socketPath string, store *state.Store, journal *state.Journal, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		socketPath: socketPath,
		store:      store,
		dispatcher: NewDispatcher(store, journal, logger),
		logger:     logger,
		readyChan:  make(chan struct{}),
	}
}

// Start prepares the state directory and socket, then serves connections
// until the process dies or Close releases the listener. It blocks for the
// server's whole lifetime.
func (s *Server) Start() error {
	if err := os.MkdirAll(s.store.Dir(), 0o755); err != nil {
		return fmt.Errorf("failed to ensure state directory: %w", err)
	}
	if err := s.ensureSocketDir(); err != nil {
		return fmt.Errorf("failed to ensure socket directory: %w", err)
	}

	// No liveness check: any existing socket at the path is replaced.
	if err := s.removeStaleSocket(); err != nil {
		return fmt.Errorf("failed to remove stale socket: %w", err)
	}

	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.socketPath, err)
	}

	// The socket file outlives the listener; removal happens at the next
	// startup, never on shutdown.
	if ul, ok := listener.(*net.UnixListener); ok {
		ul.SetUnlinkOnClose(false)
	}

	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()

	s.logger.Info("listening", "socket", s.socketPath, "state_dir", s.store.Dir())
	close(s.readyChan)

	for {
		conn, err := listener.Accept()
		if err != nil {
			s.mu.Lock()
			shutdown := s.shutdown
			s.mu.Unlock()
			if shutdown {
				return nil
			}
			return fmt.Errorf("failed to accept connection: %w", err)
		}

		// One connection at a time: the next accept waits until this one
		// has been answered and closed.
		s.handleConn(conn)
	}
}

// WaitReady returns a channel closed once the server is accepting
// connections.
func (s *Server) WaitReady() <-chan struct{} {
	return s.readyChan
}

// Close releases the listener so a blocked Start returns nil. The socket
// file stays on disk; only the next startup removes it.
func (s *Server) Close() error {
	var err error
	s.stopOnce.Do(func() {
		s.mu.Lock()
		s.shutdown = true
		listener := s.listener
		s.listener = nil
		s.mu.Unlock()

		if listener != nil {
			err = listener.Close()
		}
	})
	return err
}

func (s *Server) ensureSocketDir() error {
	return os.MkdirAll(filepath.Dir(s.socketPath), 0o755)
}

func (s *Server) removeStaleSocket() error {
	if err := os.Remove(s.socketPath); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// handleConn runs one request/response exchange and closes the connection.
// Read, write, and close failures never propagate: the worst outcome for a
// misbehaving peer is a dropped response.
func (s *Server) handleConn(conn net.Conn) {
	defer func() { _ = conn.Close() }()

	// A single read bounds the request; the protocol has no framing beyond
	// the client half-closing after its document.
	buf := make([]byte, protocol.MaxRequestSize)
	n, err := conn.Read(buf)

	var resp protocol.Response
	if err != nil && err != io.EOF && n == 0 {
		s.logger.Debug("read failed", "error", err)
		resp = protocol.ErrorResponse(err)
	} else {
		// A peer that closes without sending anything sent the empty
		// document.
		cmd, derr := protocol.Decode(buf[:n])
		if derr != nil {
			s.logger.Debug("request rejected", "error", derr)
			resp = protocol.ErrorResponse(derr)
		} else {
			s.logger.Debug("request", "command", cmd.Kind)
			resp = s.dispatcher.Dispatch(cmd)
		}
	}

	_, _ = conn.Write(protocol.Encode(resp))
}
