package node

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/time/rate"

	"github.com/sabi-wallet/sabi_backend/internal/logging"
	"github.com/sabi-wallet/sabi_backend/internal/metrics"
	"github.com/sabi-wallet/sabi_backend/internal/tracing"
)

// StatusTimeout bounds status, health and LSP calls to the node service.
const StatusTimeout = 5 * time.Second

const maxErrorBody = 512

const (
	opProvision   = "provision_node"
	opOpenChannel = "open_channel"
	opStatus      = "wallet_status"
	opHealth      = "health"
	opLSPStatus   = "lsp_status"
)

// ServiceError is returned when the node service answers with a non-2xx status.
type ServiceError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("node service %s: http status %d: %s", e.Op, e.StatusCode, e.Body)
}

// RemoteConfig configures the HTTP node service client.
type RemoteConfig struct {
	BaseURL           string
	Env               string
	RequestsPerSecond float64
	Burst             int
	// HTTPClient overrides the default transport, mainly for tests.
	HTTPClient *http.Client
}

// RemoteClient provisions nodes through the Breez node microservice over HTTP/JSON.
type RemoteClient struct {
	httpClient *http.Client
	baseURL    string
	env        string
	logger     *slog.Logger
	limiter    *rate.Limiter
	breaker    *breaker
}

var _ Client = (*RemoteClient)(nil)

// NewRemoteClient constructs a RemoteClient. Provisioning and channel calls carry
// no client-side timeout and rely on the caller's context deadline.
func NewRemoteClient(cfg RemoteConfig, logger *slog.Logger) (*RemoteClient, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("node service url is required")
	}
	if _, err := url.ParseRequestURI(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("parse node service url: %w", err)
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}

	c := &RemoteClient{
		httpClient: httpClient,
		baseURL:    cfg.BaseURL,
		env:        cfg.Env,
		logger:     logging.Component(logger, "node_client"),
	}
	if cfg.RequestsPerSecond > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}
	c.breaker = newBreaker(5, 30*time.Second, func(from, to breakerState) {
		metrics.NodeBreakerState.Set(float64(to))
		c.logger.Warn("node status breaker state change",
			slog.String("from", from.String()),
			slog.String("to", to.String()),
		)
	})
	return c, nil
}

type createNodeRequest struct {
	WalletID string `json:"wallet_id"`
}

type createNodeResponse struct {
	NodeID     string `json:"node_id"`
	InviteCode string `json:"invite_code"`
}

// ProvisionNode asks the node service to create a new Breez node. The request
// carries a fresh time-ordered wallet id the service keys the node by, and it
// is returned in NodeInfo.WalletID.
func (c *RemoteClient) ProvisionNode(ctx context.Context) (info NodeInfo, err error) {
	id, err := uuid.NewV7()
	if err != nil {
		return NodeInfo{}, fmt.Errorf("generate wallet id: %w", err)
	}
	walletID := id.String()

	ctx, span := tracing.StartSpan(ctx, "node.ProvisionNode", attribute.String("wallet.id", walletID))
	defer func() { tracing.End(span, err) }()

	c.logger.Info("provisioning node", slog.String("wallet_id", walletID), slog.String("env", c.env))

	var resp createNodeResponse
	if err := c.do(ctx, opProvision, http.MethodPost, "/api/create-node", createNodeRequest{WalletID: walletID}, &resp); err != nil {
		return NodeInfo{}, err
	}
	if resp.NodeID == "" {
		return NodeInfo{}, fmt.Errorf("node service %s: empty node_id in response", opProvision)
	}

	c.logger.Info("node provisioned", slog.String("node_reference", resp.NodeID))
	return NodeInfo{NodeReference: resp.NodeID, InviteCode: resp.InviteCode, WalletID: walletID}, nil
}

type openChannelRequest struct {
	WalletID   string `json:"wallet_id"`
	AmountSats int64  `json:"amount_sats"`
}

type openChannelResponse struct {
	BitcoinAddress string `json:"bitcoin_address"`
	SwapFeeSat     int64  `json:"swap_fee_sat"`
}

// OpenChannel requests inbound liquidity for the wallet's node.
func (c *RemoteClient) OpenChannel(ctx context.Context, walletID string, amountSats int64) (err error) {
	if err := ValidateChannelAmount(amountSats); err != nil {
		return err
	}

	ctx, span := tracing.StartSpan(ctx, "node.OpenChannel",
		attribute.String("wallet.id", walletID),
		attribute.Int64("channel.amount_sats", amountSats),
	)
	defer func() { tracing.End(span, err) }()

	var resp openChannelResponse
	if err := c.do(ctx, opOpenChannel, http.MethodPost, "/api/open-channel", openChannelRequest{WalletID: walletID, AmountSats: amountSats}, &resp); err != nil {
		return err
	}

	c.logger.Info("channel opening initiated",
		slog.String("wallet_id", walletID),
		slog.Int64("amount_sats", amountSats),
		slog.Int64("swap_fee_sat", resp.SwapFeeSat),
	)
	return nil
}

// GetStatus fetches live node status, degrading to the zero Status on any failure.
func (c *RemoteClient) GetStatus(ctx context.Context, nodeReference string) Status {
	if err := c.breaker.allow(); err != nil {
		metrics.NodeStatusFallbacks.Inc()
		metrics.NodeRequests.WithLabelValues(opStatus, "short_circuit").Inc()
		return Status{}
	}

	parent := ctx
	ctx, cancel := context.WithTimeout(ctx, StatusTimeout)
	defer cancel()

	ctx, span := tracing.StartSpan(ctx, "node.GetStatus", attribute.String("node.reference", nodeReference))

	var status Status
	err := c.do(ctx, opStatus, http.MethodGet, "/api/wallet-status/"+url.PathEscape(nodeReference), nil, &status)
	tracing.End(span, err)
	if err != nil {
		metrics.NodeStatusFallbacks.Inc()
		// A caller that went away says nothing about the node service.
		if parent.Err() != nil {
			c.logger.Debug("node status abandoned by caller",
				slog.String("node_reference", nodeReference),
				slog.Any("error", parent.Err()),
			)
			return Status{}
		}
		c.breaker.failure()
		c.logger.Warn("node status unavailable, serving defaults",
			slog.String("node_reference", nodeReference),
			slog.Any("error", err),
		)
		return Status{}
	}
	c.breaker.success()
	return status
}

// HealthCheck pings the node service health endpoint.
func (c *RemoteClient) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, StatusTimeout)
	defer cancel()
	return c.do(ctx, opHealth, http.MethodGet, "/health", nil, nil)
}

// LSPStatus reports whether the node service's LSP is online.
func (c *RemoteClient) LSPStatus(ctx context.Context) (LSPStatus, error) {
	ctx, cancel := context.WithTimeout(ctx, StatusTimeout)
	defer cancel()

	var status LSPStatus
	if err := c.do(ctx, opLSPStatus, http.MethodGet, "/api/lsp-status", nil, &status); err != nil {
		return LSPStatus{}, err
	}
	return status, nil
}

func (c *RemoteClient) do(ctx context.Context, op, method, path string, body, out any) (err error) {
	start := time.Now()
	statusLabel := "error"
	defer func() {
		metrics.NodeRequests.WithLabelValues(op, statusLabel).Inc()
		metrics.NodeRequestLatency.WithLabelValues(op).Observe(time.Since(start).Seconds())
	}()

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("node service %s: rate limiter: %w", op, err)
		}
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("node service %s: marshal request: %w", op, err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("node service %s: create request: %w", op, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			statusLabel = "timeout"
		}
		return fmt.Errorf("node service %s: request failed: %w", op, err)
	}
	defer resp.Body.Close()
	statusLabel = strconv.Itoa(resp.StatusCode)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &ServiceError{Op: op, StatusCode: resp.StatusCode, Body: string(bytes.TrimSpace(snippet))}
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("node service %s: invalid response: %w", op, err)
	}
	return nil
}
