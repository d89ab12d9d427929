package routes

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sabi-wallet/sabi_backend/internal/config"
	"github.com/sabi-wallet/sabi_backend/internal/logging"
	"github.com/sabi-wallet/sabi_backend/internal/node"
	"github.com/sabi-wallet/sabi_backend/internal/wallet"
)

type downNodes struct {
	*node.DeviceClient
	lspOnline bool
}

func (downNodes) HealthCheck(context.Context) error {
	return errors.New(`node service health: http status 503: {"error":"breez sdk at 10.0.3.7 refused"}`)
}

func (d downNodes) LSPStatus(context.Context) (node.LSPStatus, error) {
	return node.LSPStatus{ID: "lsp-1", Online: d.lspOnline}, nil
}

type failingStore struct {
	wallet.Store
}

func (failingStore) Ping(context.Context) error {
	return errors.New("dial tcp 10.0.2.9:5432: connection refused")
}

func TestSetupRequiresDatabaseOutsideDevelopment(t *testing.T) {
	app := fiber.New()
	err := Setup(app, Deps{
		Cfg:    config.Config{AppEnv: "production", Node: config.NodeConfig{Mode: config.NodeModeDevice}},
		Logger: logging.Discard(),
	})
	assert.Error(t, err)
}

func TestSetupRejectsUnknownNodeMode(t *testing.T) {
	app := fiber.New()
	err := Setup(app, Deps{
		Cfg:    config.Config{AppEnv: "development", Node: config.NodeConfig{Mode: "bogus"}},
		Logger: logging.Discard(),
	})
	assert.Error(t, err)
}

func TestHealthDegradedWhenNodeServiceDown(t *testing.T) {
	app := fiber.New()
	RegisterHealthRoutes(app, healthChecks{store: wallet.NewMemoryStore(), nodes: downNodes{DeviceClient: node.NewDeviceClient(nil)}})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/health", nil), -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	var body healthResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, healthDegraded, body.Status)
	assert.Equal(t, healthHealthy, body.Database.Status)
	assert.NotNil(t, body.Database.LatencyMS)
	assert.Equal(t, healthUnhealthy, body.NodeService.Status)
	assert.Equal(t, checkUnavailable, body.NodeService.Message)
	assert.Equal(t, healthDegraded, body.LSP.Status)
	assert.Equal(t, "LSP: lsp-1", body.LSP.Message)
	assert.Equal(t, healthDisabled, body.Redis.Status)
}

func TestHealthUnavailableWhenDatabaseDown(t *testing.T) {
	app := fiber.New()
	RegisterHealthRoutes(app, healthChecks{store: failingStore{}, nodes: node.NewDeviceClient(nil)})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/health", nil), -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	var body healthResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, healthDegraded, body.Status)
	assert.Equal(t, healthUnhealthy, body.Database.Status)
	assert.Equal(t, checkUnavailable, body.Database.Message)
	assert.Equal(t, healthHealthy, body.LSP.Status)
}

type slowStore struct {
	wallet.Store
}

func (slowStore) Ping(ctx context.Context) error {
	<-ctx.Done()
	return fmt.Errorf("ping 10.0.2.9: %w", ctx.Err())
}

func TestHealthHidesDependencyErrors(t *testing.T) {
	app := fiber.New()
	RegisterHealthRoutes(app, healthChecks{
		store:  slowStore{},
		nodes:  downNodes{DeviceClient: node.NewDeviceClient(nil)},
		logger: logging.Discard(),
	})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/health", nil), -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "10.0.")
	assert.NotContains(t, string(raw), "breez sdk")

	var body healthResponse
	require.NoError(t, json.Unmarshal(raw, &body))
	assert.Equal(t, checkTimeout, body.Database.Message)
	assert.Equal(t, checkUnavailable, body.NodeService.Message)
}
