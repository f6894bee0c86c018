// Package api serves the decoded controller state over HTTP and streams
// changes to websocket clients.
package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/muurk/aqualogic/internal/controller"
	"github.com/muurk/aqualogic/internal/logging"
	"github.com/muurk/aqualogic/internal/state"
	"github.com/muurk/aqualogic/internal/version"
	"go.uber.org/zap"
)

// Source is what the API reads from. *controller.Controller satisfies it.
type Source interface {
	Store() *state.Store
	Stats() controller.Stats
	LastDisplay() string
}

// IndicatorStatus is one entry of the indicator listing
type IndicatorStatus struct {
	Name   string `json:"name"`
	Bit    int    `json:"bit"`
	Active bool   `json:"active"`
}

// Server is the HTTP state API
type Server struct {
	src    Source
	hub    *Hub
	router *gin.Engine
	ctx    context.Context
	cancel context.CancelFunc
}

// New builds the router and starts the websocket hub. Call Close (or
// cancel ctx) to stop the hub.
func New(ctx context.Context, src Source) *Server {
	gin.SetMode(gin.ReleaseMode)

	ctx, cancel := context.WithCancel(ctx)
	s := &Server{
		src:    src,
		hub:    NewHub(src.Store().Snapshot),
		router: gin.New(),
		ctx:    ctx,
		cancel: cancel,
	}

	updates, unsubscribe := src.Store().Subscribe()
	go func() {
		defer unsubscribe()
		s.hub.Run(ctx, updates)
	}()

	s.router.Use(gin.Recovery(), requestLogger())
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)

	api := s.router.Group("/api")
	api.GET("/state", s.handleState)
	api.GET("/stats", s.handleStats)
	api.GET("/display", s.handleDisplay)
	api.GET("/indicators", s.handleIndicators)
	api.GET("/indicators/:name", s.handleIndicator)

	s.router.GET("/ws", s.handleWS)
}

// Handler returns the HTTP handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// Hub returns the websocket hub
func (s *Server) Hub() *Hub {
	return s.hub
}

// Close stops the websocket hub and disconnects its clients
func (s *Server) Close() {
	s.cancel()
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully. ready, if non-nil, receives the bound address.
func (s *Server) ListenAndServe(ctx context.Context, addr string, ready chan<- net.Addr) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	if ready != nil {
		ready <- ln.Addr()
	}

	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		errChan <- srv.Serve(ln)
	}()

	logging.Info("State API listening", zap.String("addr", ln.Addr().String()))

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.Close()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	case err := <-errChan:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	snap := s.src.Store().Snapshot()
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"version":   version.Version,
		"state":     snap.Version,
		"updatedAt": snap.UpdatedAt,
		"clients":   s.hub.ClientCount(),
	})
}

func (s *Server) handleState(c *gin.Context) {
	c.JSON(http.StatusOK, s.src.Store().Snapshot())
}

func (s *Server) handleStats(c *gin.Context) {
	c.JSON(http.StatusOK, s.src.Stats())
}

func (s *Server) handleDisplay(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"text": s.src.LastDisplay()})
}

func (s *Server) handleIndicators(c *gin.Context) {
	snap := s.src.Store().Snapshot()
	out := make([]IndicatorStatus, 0, state.IndicatorCount)
	for _, ind := range state.AllIndicators() {
		out = append(out, IndicatorStatus{
			Name:   ind.String(),
			Bit:    int(ind),
			Active: snap.IsIndicatorActive(ind),
		})
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) handleIndicator(c *gin.Context) {
	ind, err := state.ParseIndicator(c.Param("name"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	snap := s.src.Store().Snapshot()
	c.JSON(http.StatusOK, IndicatorStatus{
		Name:   ind.String(),
		Bit:    int(ind),
		Active: snap.IsIndicatorActive(ind),
	})
}

func (s *Server) handleWS(c *gin.Context) {
	s.hub.serve(s.ctx, c.Writer, c.Request)
}

// requestLogger logs each request through the zap logger
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logging.Debug("HTTP request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("remote_addr", c.ClientIP()),
		)
	}
}
