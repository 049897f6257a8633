// Package web exposes the engine over a small JSON API. The handlers
// sit strictly on top of Engine.Execute; nothing here reaches into the
// storage or planner layers.
package web

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/pesadb/pesadb/internal/engine"
)

// Server serves the HTTP API for one engine.
type Server struct {
	router *chi.Mux
	port   int
	db     *engine.Engine
}

// NewServer creates the HTTP server for the given engine.
func NewServer(port int, db *engine.Engine) *Server {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	s := &Server{
		router: r,
		port:   port,
		db:     db,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.router.Get("/health", s.handleHealth)
	s.router.Route("/api", func(r chi.Router) {
		r.Get("/tables", s.handleTables)
		r.Get("/tables/{name}", s.handleTableSchema)
		r.Post("/query", s.handleQuery)
	})
}

// Router returns the handler, mainly for tests.
func (s *Server) Router() http.Handler {
	return s.router
}

// Run starts the server and blocks until SIGINT/SIGTERM or a listener
// error, then drains in-flight requests before returning.
func (s *Server) Run() error {
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(done)

	g, ctx := errgroup.WithContext(context.Background())
	g.Go(func() error {
		fmt.Printf("listening on :%d\n", s.port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		select {
		case <-done:
		case <-ctx.Done():
			return nil
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown error: %w", err)
		}
		return nil
	})
	return g.Wait()
}
