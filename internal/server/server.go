package server

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/drallgood/book-manager/internal/library"
	"github.com/drallgood/book-manager/internal/logger"
	"github.com/drallgood/book-manager/internal/store"
)

// Server represents the HTTP server exposing a library
type Server struct {
	server *http.Server
	logger *logger.Logger

	// mu serializes access to manager and keeps it in step with store
	mu      sync.Mutex
	manager *library.Manager
	store   store.Store
}

// New creates a new HTTP server for m. Every mutation is written to st
// before the response is sent.
func New(addr string, m *library.Manager, st store.Store, log *logger.Logger) *Server {
	s := &Server{
		server: &http.Server{
			Addr: addr,
		},
		logger: log.With(map[string]interface{}{
			"component": "server",
		}),
		manager: m,
		store:   st,
	}

	var handler http.Handler = s.routes()
	handler = logger.HTTPMiddleware(handler)
	handler = logger.RequestIDMiddleware(handler)
	s.server.Handler = handler

	s.server.ReadTimeout = 10 * time.Second
	s.server.WriteTimeout = 30 * time.Second
	s.server.IdleTimeout = 120 * time.Second

	return s
}

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthz", s.handleHealthCheck)

	api := r.Group("/api")
	{
		api.GET("/books", s.handleListBooks)
		api.GET("/books/count", s.handleCountBooks)
		api.POST("/books", s.handleAddBook)
		api.GET("/books/:id", s.handleGetBook)
		api.PATCH("/books/:id", s.handleUpdateBook)
		api.DELETE("/books/:id", s.handleRemoveBook)
	}

	return r
}

// Handler returns the server's root handler
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Start starts the HTTP server and blocks until it is shut down
func (s *Server) Start() error {
	s.logger.Info("Starting HTTP server", map[string]interface{}{
		"addr": s.server.Addr,
	})

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down HTTP server")
	return s.server.Shutdown(ctx)
}

// mutate runs fn under the lock and persists the result. If saving fails the
// manager is rolled back so memory and store stay in agreement.
func (s *Server) mutate(ctx context.Context, fn func(m *library.Manager) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	before := s.manager.Snapshot()
	if err := fn(s.manager); err != nil {
		return err
	}

	if err := store.SaveManager(ctx, s.store, s.manager); err != nil {
		if rerr := s.manager.Restore(before); rerr != nil {
			s.logger.Error("Failed to roll back library after save error", map[string]interface{}{
				"error": rerr.Error(),
			})
		}
		return err
	}
	return nil
}

// read runs fn under the lock
func (s *Server) read(fn func(m *library.Manager)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s.manager)
}
