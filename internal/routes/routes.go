package routes

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/sabi-wallet/sabi_backend/internal/audit"
	"github.com/sabi-wallet/sabi_backend/internal/config"
	"github.com/sabi-wallet/sabi_backend/internal/logging"
	"github.com/sabi-wallet/sabi_backend/internal/middleware"
	"github.com/sabi-wallet/sabi_backend/internal/node"
	"github.com/sabi-wallet/sabi_backend/internal/wallet"
)

// Deps aggregates shared dependencies required to wire routes.
type Deps struct {
	Cfg    config.Config
	DB     *pgxpool.Pool
	Cache  *redis.Client
	Logger *slog.Logger
	// Nodes overrides the node client built from Cfg.Node.
	Nodes node.Client
}

// Setup configures middlewares and all application routes. The store and node
// client are built once here and shared by every request.
func Setup(app *fiber.App, d Deps) error {
	if !d.Cfg.IsDevelopment() && d.DB == nil {
		return fmt.Errorf("database is required when APP_ENV=%s", d.Cfg.AppEnv)
	}

	var store wallet.Store
	if d.DB != nil {
		store = wallet.NewPostgresStore(d.DB)
	} else {
		d.Logger.Warn("no database configured, using in-memory wallet store")
		store = wallet.NewMemoryStore()
	}

	nodes := d.Nodes
	if nodes == nil {
		var err error
		nodes, err = node.New(d.Cfg.Node, d.Logger)
		if err != nil {
			return fmt.Errorf("build node client: %w", err)
		}
	}

	recorder := audit.NewLoggerRecorder(d.Logger, d.Cfg.AuditFingerprintKey)
	walletSvc := wallet.NewService(store, nodes, recorder, d.Logger, wallet.ServiceConfig{
		FirstChannelSats: d.Cfg.FirstChannelSatsDefault,
		InviteCodePrefix: d.Cfg.InviteCodePrefix,
	})
	guard := wallet.NewGuard(store, nodes, recorder, d.Logger)
	walletHandler := wallet.NewHandler(walletSvc, guard, d.Logger)

	// Middlewares
	app.Use(recover.New())
	app.Use(middleware.RequestID())
	app.Use(middleware.AccessLog(d.Logger))
	app.Use(cors.New())
	app.Use(middleware.Deadline(d.Cfg.RequestTimeout))
	if d.Cache != nil {
		app.Use(middleware.Idempotency(d.Cache, middleware.IdempotencyConfig{
			TTL:      d.Cfg.IdempotencyTTL,
			Required: d.Cfg.IdempotencyRequired,
		}, d.Logger))
	}

	RegisterHealthRoutes(app, healthChecks{store: store, cache: d.Cache, nodes: nodes, logger: logging.Component(d.Logger, "health")})
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	api := app.Group("/api/v1")
	api.Get("/ping", func(c *fiber.Ctx) error {
		return c.Status(http.StatusOK).JSON(fiber.Map{
			"status":     "ok",
			"request_id": middleware.RequestIDFrom(c),
			"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
		})
	})

	createLimit := middleware.RateLimit(d.Cache, "wallet_create", d.Cfg.CreateRateLimit, d.Logger)
	RegisterWalletRoutes(api, walletHandler, createLimit)

	return nil
}
