package server

import (
	"context"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/sabi-wallet/sabi_backend/internal/config"
	"github.com/sabi-wallet/sabi_backend/internal/middleware"
	"github.com/sabi-wallet/sabi_backend/internal/routes"
)

// Server wraps the Fiber application and shared dependencies.
type Server struct {
	app *fiber.App
	cfg config.Config
}

// New instantiates the HTTP server and delegates route wiring to routes.Setup.
func New(cfg config.Config, db *pgxpool.Pool, cache *redis.Client, logger *slog.Logger) (*Server, error) {
	// Transport timeouts sit a little above the request deadline so handlers
	// observe context cancellation before the connection is cut.
	ioTimeout := cfg.RequestTimeout + 5*time.Second
	app := fiber.New(fiber.Config{
		AppName:               cfg.AppName,
		ReadTimeout:           ioTimeout,
		WriteTimeout:          ioTimeout,
		ErrorHandler:          middleware.ErrorHandler(logger),
		DisableStartupMessage: !cfg.IsDevelopment(),
	})

	if err := routes.Setup(app, routes.Deps{Cfg: cfg, DB: db, Cache: cache, Logger: logger}); err != nil {
		return nil, err
	}

	return &Server{app: app, cfg: cfg}, nil
}

// App exposes the underlying Fiber application, mainly for tests.
func (s *Server) App() *fiber.App {
	return s.app
}

// Listen starts the HTTP server.
func (s *Server) Listen() error {
	return s.app.Listen(s.cfg.Address())
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}
