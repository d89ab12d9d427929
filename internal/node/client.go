package node

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/sabi-wallet/sabi_backend/internal/config"
)

const (
	// MinChannelSats is the smallest initial channel the LSP will open.
	MinChannelSats int64 = 100_000
	// MaxChannelSats is the largest initial channel the LSP will open.
	MaxChannelSats int64 = 300_000

	// DeviceManagedNodeReference marks wallets whose node lives on the device.
	DeviceManagedNodeReference = "nodeless-device-managed"
)

// ErrInvalidChannelAmount is returned before any remote call when the requested
// channel size is outside [MinChannelSats, MaxChannelSats].
var ErrInvalidChannelAmount = errors.New("channel amount must be between 100000 and 300000 sats")

// NodeInfo identifies a freshly provisioned Lightning node.
// WalletID is set when the node service keys the node by a wallet identifier
// chosen at provisioning time; later channel calls must use it.
type NodeInfo struct {
	NodeReference string
	InviteCode    string
	WalletID      string
}

// Status is the live view of a node. The zero value is the degraded default
// served whenever the node service cannot answer.
type Status struct {
	BalanceSats         int64 `json:"balance_sats"`
	ChannelCount        int64 `json:"channel_count"`
	ChannelCapacitySats int64 `json:"channel_capacity_sats"`
	IsConnected         bool  `json:"is_connected"`
}

// LSPStatus reports the liquidity service provider reachability.
type LSPStatus struct {
	ID     string `json:"lsp_id"`
	Online bool   `json:"is_online"`
}

// Client is the contract implemented by node provisioning backends.
//
// GetStatus never fails: implementations return the zero Status on any error
// because status is advisory. HealthCheck and LSPStatus are bounded by
// StatusTimeout and are only used by health reporting.
type Client interface {
	ProvisionNode(ctx context.Context) (NodeInfo, error)
	OpenChannel(ctx context.Context, walletID string, amountSats int64) error
	GetStatus(ctx context.Context, nodeReference string) Status
	HealthCheck(ctx context.Context) error
	LSPStatus(ctx context.Context) (LSPStatus, error)
}

// ValidateChannelAmount enforces the LSP channel bounds.
func ValidateChannelAmount(amountSats int64) error {
	if amountSats < MinChannelSats || amountSats > MaxChannelSats {
		return fmt.Errorf("%w: got %d", ErrInvalidChannelAmount, amountSats)
	}
	return nil
}

// New builds the client variant selected by cfg.Mode.
func New(cfg config.NodeConfig, logger *slog.Logger) (Client, error) {
	switch cfg.Mode {
	case config.NodeModeRemote:
		return NewRemoteClient(RemoteConfig{
			BaseURL:           cfg.ServiceURL,
			Env:               string(cfg.Env),
			RequestsPerSecond: cfg.RequestsPerSecond,
			Burst:             cfg.Burst,
		}, logger)
	case config.NodeModeDevice:
		return NewDeviceClient(logger), nil
	default:
		return nil, fmt.Errorf("unsupported node mode %q", cfg.Mode)
	}
}
