package routes

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/sabi-wallet/sabi_backend/internal/node"
	"github.com/sabi-wallet/sabi_backend/internal/wallet"
)

const (
	healthHealthy   = "healthy"
	healthDegraded  = "degraded"
	healthUnhealthy = "unhealthy"
	healthDisabled  = "disabled"

	dependencyCheckTimeout = 2 * time.Second

	checkTimeout     = "timeout"
	checkUnavailable = "unavailable"
)

type healthChecks struct {
	store  wallet.Store
	cache  *redis.Client
	nodes  node.Client
	logger *slog.Logger
}

type componentHealth struct {
	Status    string `json:"status"`
	Message   string `json:"message,omitempty"`
	LatencyMS *int64 `json:"latency_ms,omitempty"`
}

type healthResponse struct {
	Status      string          `json:"status"`
	Timestamp   string          `json:"timestamp"`
	Database    componentHealth `json:"database"`
	Redis       componentHealth `json:"redis"`
	NodeService componentHealth `json:"node_service"`
	LSP         componentHealth `json:"lsp"`
}

// RegisterHealthRoutes adds the dependency health endpoint. Only an
// unreachable database makes the service unavailable; every other failing
// dependency reports degraded.
func RegisterHealthRoutes(app *fiber.App, hc healthChecks) {
	app.Get("/health", func(c *fiber.Ctx) error {
		res := hc.run(c.UserContext())
		status := http.StatusOK
		if res.Database.Status != healthHealthy {
			status = http.StatusServiceUnavailable
		}
		return c.Status(status).JSON(res)
	})
}

func (hc healthChecks) run(ctx context.Context) healthResponse {
	res := healthResponse{Redis: componentHealth{Status: healthDisabled}}

	// Checks never return errors so one slow dependency cannot cancel the others.
	var g errgroup.Group
	g.Go(func() error {
		res.Database = hc.runCheck(ctx, "database", dependencyCheckTimeout, hc.store.Ping)
		return nil
	})
	if hc.cache != nil {
		g.Go(func() error {
			res.Redis = hc.runCheck(ctx, "redis", dependencyCheckTimeout, func(ctx context.Context) error {
				return hc.cache.Ping(ctx).Err()
			})
			return nil
		})
	}
	g.Go(func() error {
		res.NodeService = hc.runCheck(ctx, "node_service", node.StatusTimeout, hc.nodes.HealthCheck)
		return nil
	})
	g.Go(func() error {
		var lsp node.LSPStatus
		res.LSP = hc.runCheck(ctx, "lsp", node.StatusTimeout, func(ctx context.Context) error {
			var err error
			lsp, err = hc.nodes.LSPStatus(ctx)
			return err
		})
		if res.LSP.Status == healthHealthy {
			res.LSP.Message = fmt.Sprintf("LSP: %s", lsp.ID)
			if !lsp.Online {
				res.LSP.Status = healthDegraded
			}
		}
		return nil
	})
	_ = g.Wait()

	res.Status = healthHealthy
	for _, component := range []componentHealth{res.Database, res.Redis, res.NodeService, res.LSP} {
		if component.Status != healthHealthy && component.Status != healthDisabled {
			res.Status = healthDegraded
		}
	}
	res.Timestamp = time.Now().UTC().Format(time.RFC3339)
	return res
}

// runCheck runs one dependency check. Failure detail is logged, never returned.
func (hc healthChecks) runCheck(ctx context.Context, component string, timeout time.Duration, check func(context.Context) error) componentHealth {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	if err := check(ctx); err != nil {
		if hc.logger != nil {
			hc.logger.Warn("health check failed", slog.String("component", component), slog.Any("error", err))
		}
		message := checkUnavailable
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			message = checkTimeout
		}
		return componentHealth{Status: healthUnhealthy, Message: message}
	}
	latency := time.Since(start).Milliseconds()
	return componentHealth{Status: healthHealthy, LatencyMS: &latency}
}
