package node

import (
	"context"
	"log/slog"

	"github.com/sabi-wallet/sabi_backend/internal/logging"
)

// DeviceClient is used when the Lightning node is created by the on-device SDK.
// No remote calls are made; the backend only records the binding.
type DeviceClient struct {
	logger *slog.Logger
}

var _ Client = (*DeviceClient)(nil)

// NewDeviceClient constructs the device-managed client.
func NewDeviceClient(logger *slog.Logger) *DeviceClient {
	return &DeviceClient{logger: logging.Component(logger, "node_client")}
}

// ProvisionNode returns the device-managed sentinel. The invite code is left
// empty so the caller derives one from the wallet id.
func (d *DeviceClient) ProvisionNode(_ context.Context) (NodeInfo, error) {
	return NodeInfo{NodeReference: DeviceManagedNodeReference}, nil
}

// OpenChannel validates the amount; liquidity is requested by the device itself.
func (d *DeviceClient) OpenChannel(_ context.Context, walletID string, amountSats int64) error {
	if err := ValidateChannelAmount(amountSats); err != nil {
		return err
	}
	d.logger.Debug("channel open delegated to device", slog.String("wallet_id", walletID), slog.Int64("amount_sats", amountSats))
	return nil
}

// GetStatus has no server-side view of a device node.
func (d *DeviceClient) GetStatus(_ context.Context, _ string) Status {
	return Status{}
}

func (d *DeviceClient) HealthCheck(_ context.Context) error {
	return nil
}

func (d *DeviceClient) LSPStatus(_ context.Context) (LSPStatus, error) {
	return LSPStatus{ID: DeviceManagedNodeReference, Online: true}, nil
}
