package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/muurk/aqualogic/internal/logging"
	"go.uber.org/zap"
)

// Config holds the simulator configuration
type Config struct {
	Host string
	Port int

	// Interval is the pause between frames
	Interval time.Duration

	// CorruptEvery sends a bad checksum on every Nth frame (0 disables)
	CorruptEvery int

	Scenario Scenario
}

// Server streams a simulated controller bus to every TCP client, the way a
// serial-to-network bridge would
type Server struct {
	config      Config
	listener    net.Listener
	wg          sync.WaitGroup
	mu          sync.Mutex
	activeConns map[string]net.Conn
	framesSent  atomic.Uint64
}

// New creates a simulator. The scenario is checked here so Start cannot
// fail on encoding.
func New(config Config) (*Server, error) {
	if _, err := NewGenerator(config.Scenario, config.CorruptEvery); err != nil {
		return nil, err
	}
	if config.Interval <= 0 {
		config.Interval = 100 * time.Millisecond
	}
	return &Server{
		config:      config,
		activeConns: make(map[string]net.Conn),
	}, nil
}

// Start listens and serves until ctx is cancelled. ready, if non-nil,
// receives the bound address once the listener is up.
func (s *Server) Start(ctx context.Context, ready chan<- net.Addr) error {
	addr := net.JoinHostPort(s.config.Host, fmt.Sprint(s.config.Port))

	var lc net.ListenConfig
	listener, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	s.listener = listener

	logging.Info("Simulator listening for connections",
		zap.String("addr", listener.Addr().String()),
		zap.Duration("interval", s.config.Interval),
		zap.Int("corrupt_every", s.config.CorruptEvery),
	)
	if ready != nil {
		ready <- listener.Addr()
	}

	errChan := make(chan error, 1)
	go func() {
		errChan <- s.acceptConnections(ctx)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.Shutdown(shutdownCtx)
	case err := <-errChan:
		return err
	}
}

func (s *Server) acceptConnections(ctx context.Context) error {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			logging.Error("Failed to accept connection", zap.Error(err))
			continue
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleConnection(ctx, conn)
		}()
	}
}

// handleConnection streams frames to one client until it disconnects or
// ctx ends. Each client gets its own generator so every stream starts at
// the top of a cycle.
func (s *Server) handleConnection(ctx context.Context, conn net.Conn) {
	remoteAddr := conn.RemoteAddr().String()

	s.mu.Lock()
	s.activeConns[remoteAddr] = conn
	s.mu.Unlock()

	defer func() {
		_ = conn.Close()
		s.mu.Lock()
		delete(s.activeConns, remoteAddr)
		s.mu.Unlock()
		logging.LogConnection(remoteAddr, "connection_closed")
	}()

	logging.LogConnection(remoteAddr, "connection_accepted")

	gen, _ := NewGenerator(s.config.Scenario, s.config.CorruptEvery)
	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		frame := gen.Next()
		_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		if _, err := conn.Write(frame); err != nil {
			logging.Debug("Client write failed",
				zap.String("remote_addr", remoteAddr),
				zap.Error(err),
			)
			return
		}
		s.framesSent.Add(1)
		logging.LogRawBytes("simulator_tx", frame)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Shutdown stops accepting clients, closes the active ones and waits for
// their goroutines
func (s *Server) Shutdown(ctx context.Context) error {
	logging.Info("Shutting down simulator...")

	if s.listener != nil {
		if err := s.listener.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			logging.Error("Error closing listener", zap.Error(err))
		}
	}

	s.mu.Lock()
	for addr, conn := range s.activeConns {
		logging.Debug("Closing active connection", zap.String("remote_addr", addr))
		_ = conn.Close()
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logging.Info("All simulator clients closed", zap.Uint64("frames_sent", s.framesSent.Load()))
		return nil
	case <-ctx.Done():
		logging.Warn("Shutdown timeout, forcing close")
		return ctx.Err()
	}
}

// ActiveConnections returns the number of connected clients
func (s *Server) ActiveConnections() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.activeConns)
}

// FramesSent returns the number of frames written across all clients
func (s *Server) FramesSent() uint64 {
	return s.framesSent.Load()
}
