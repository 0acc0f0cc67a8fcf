// Package api exposes the status HTTP server: stream and connection
// health, rendered charts, recent logs, and the raw output directory.
package api

import (
	"context"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/rs/zerolog"

	"github.com/queryviz/queryviz/internal/chart"
	"github.com/queryviz/queryviz/internal/config"
	"github.com/queryviz/queryviz/internal/database"
	"github.com/queryviz/queryviz/internal/datafile"
)

// Server serves the queryviz status API.
type Server struct {
	app       *fiber.App
	logger    zerolog.Logger
	cfg       config.ServerConfig
	outputDir string
	version   string
	startTime time.Time

	files      *datafile.FileSet
	manager    *database.Manager
	generators []*chart.Generator
}

// NewServer builds the HTTP server and registers all routes.
func NewServer(cfg config.ServerConfig, outputDir, version string, files *datafile.FileSet,
	manager *database.Manager, generators []*chart.Generator, logger zerolog.Logger) *Server {

	app := fiber.New(fiber.Config{
		AppName:               "queryviz",
		ReadTimeout:           30 * time.Second,
		WriteTimeout:          30 * time.Second,
		IdleTimeout:           120 * time.Second,
		DisableStartupMessage: true,
		// Stream names contain spaces; decode them in route params.
		UnescapePath: true,
	})

	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,OPTIONS",
	}))

	s := &Server{
		app:        app,
		logger:     logger,
		cfg:        cfg,
		outputDir:  outputDir,
		version:    version,
		startTime:  time.Now(),
		files:      files,
		manager:    manager,
		generators: generators,
	}

	app.Use(s.requestLogger())
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.app.Get("/health", s.healthHandler)

	v1 := s.app.Group("/api/v1")
	v1.Get("/streams", s.streamsHandler)
	v1.Get("/streams/:name", s.streamHandler)
	v1.Get("/connections", s.connectionsHandler)
	v1.Get("/charts", s.chartsHandler)
	v1.Get("/logs", s.logsHandler)

	// Rendered charts and raw data files.
	s.app.Static("/output", s.outputDir)
}

// requestLogger logs every request at debug level.
func (s *Server) requestLogger() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()
		s.logger.Debug().
			Str("method", c.Method()).
			Str("path", c.Path()).
			Int("status", c.Response().StatusCode()).
			Dur("duration", time.Since(start)).
			Msg("Request handled")
		return err
	}
}

// App returns the underlying Fiber app, used by tests.
func (s *Server) App() *fiber.App {
	return s.app
}

// Start begins listening in a background goroutine.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	s.logger.Info().Str("addr", addr).Msg("Starting status server")

	go func() {
		if err := s.app.Listen(addr); err != nil {
			s.logger.Error().Err(err).Msg("Status server stopped")
		}
	}()
	return nil
}

// Shutdown drains in-flight requests and stops the server.
func (s *Server) Shutdown(timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := s.app.ShutdownWithContext(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	s.logger.Info().Msg("Status server stopped")
	return nil
}
