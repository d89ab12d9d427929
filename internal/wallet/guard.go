package wallet

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/sabi-wallet/sabi_backend/internal/audit"
	"github.com/sabi-wallet/sabi_backend/internal/logging"
	"github.com/sabi-wallet/sabi_backend/internal/metrics"
	"github.com/sabi-wallet/sabi_backend/internal/node"
	"github.com/sabi-wallet/sabi_backend/internal/tracing"
)

// Guard serves wallet status only to the device the wallet is bound to.
type Guard struct {
	store  Store
	nodes  node.Client
	audit  audit.Recorder
	logger *slog.Logger
	now    func() time.Time
}

// NewGuard builds a device-binding guard.
func NewGuard(store Store, nodes node.Client, recorder audit.Recorder, logger *slog.Logger) *Guard {
	return &Guard{
		store:  store,
		nodes:  nodes,
		audit:  recorder,
		logger: logging.Component(logger, "device_guard"),
		now:    time.Now,
	}
}

// GetWalletStatus returns stored metadata and live node status for walletID.
//
// The last_seen_at refresh is best effort: a failed write is logged and the
// read proceeds with the previously stored value. Node status degrades to
// zero values when the node service is unavailable.
func (g *Guard) GetWalletStatus(ctx context.Context, walletID, requestingDeviceID string) (resp WalletStatusResponse, err error) {
	ctx, span := tracing.StartSpan(ctx, "wallet.GetWalletStatus", attribute.String("wallet.id", walletID))
	defer func() { tracing.End(span, err) }()

	w, err := g.store.FindByID(ctx, walletID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return WalletStatusResponse{}, ErrNotFound
		}
		return WalletStatusResponse{}, fmt.Errorf("lookup wallet: %w", err)
	}

	requestingDeviceID = strings.TrimSpace(requestingDeviceID)
	if requestingDeviceID == "" || w.DeviceID != requestingDeviceID {
		metrics.BindingViolations.Inc()
		if g.audit != nil {
			if err := g.audit.Record(ctx, audit.Event{
				Kind:               audit.KindDeviceBindingViolation,
				WalletID:           w.ID,
				DeviceID:           w.DeviceID,
				RequestingDeviceID: requestingDeviceID,
				At:                 g.now().UTC(),
			}); err != nil {
				g.logger.Warn("audit record failed", slog.String("wallet_id", w.ID), slog.Any("error", err))
			}
		}
		return WalletStatusResponse{}, ErrBindingViolation
	}

	seen, err := g.store.TouchLastSeen(ctx, w.ID, g.now())
	if err != nil {
		metrics.LastSeenTouchErrors.Inc()
		g.logger.Warn("last seen update failed", slog.String("wallet_id", w.ID), slog.Any("error", err))
	} else {
		w.LastSeenAt = &seen
	}

	return WalletStatusResponse{
		Wallet: w,
		Node:   g.nodes.GetStatus(ctx, w.NodeReference),
	}, nil
}
