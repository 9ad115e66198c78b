package server

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"yad2watch/internal/core"
	"yad2watch/internal/features/vehicles"
)

type Server struct {
	config   *core.Config
	logger   *core.Logger
	registry *core.Registry
	server   *http.Server
}

func New(logger *core.Logger, config *core.Config) *Server {
	registry := core.NewRegistry(logger)

	vehiclesFeature := vehicles.NewFeature(logger, config)
	if err := registry.Register(vehiclesFeature); err != nil {
		logger.Error("Failed to register vehicles feature", "error", err)
		os.Exit(1)
	}

	srv := &Server{
		config:   config,
		logger:   logger,
		registry: registry,
	}

	srv.setupRoutes()
	return srv
}

func (s *Server) setupRoutes() {
	mux := chi.NewRouter()

	mux.Use(middleware.Recoverer)
	mux.Use(middleware.RequestID)
	mux.Use(middleware.RealIP)
	mux.Use(middleware.Logger)

	mux.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status": "ok"}`))
	})

	for _, route := range s.registry.GetAllRoutes() {
		mux.Method(route.Method, route.Path, route.Handler)
	}

	s.server = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port),
		Handler: mux,
	}
}

func (s *Server) Start() error {
	ctx := context.Background()
	if err := s.registry.InitAll(ctx); err != nil {
		s.logger.Error("Failed to initialize features", "error", err)
		return err
	}

	s.logger.Info("Starting server", "host", s.config.Server.Host, "port", s.config.Server.Port)

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down server...")

	if err := s.registry.ShutdownAll(ctx); err != nil {
		s.logger.Error("Failed to shutdown features", "error", err)
	}

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown HTTP server: %w", err)
	}

	return nil
}
