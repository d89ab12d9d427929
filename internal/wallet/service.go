package wallet

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tyler-smith/go-bip39"
	"go.opentelemetry.io/otel/attribute"

	"github.com/sabi-wallet/sabi_backend/internal/audit"
	"github.com/sabi-wallet/sabi_backend/internal/logging"
	"github.com/sabi-wallet/sabi_backend/internal/metrics"
	"github.com/sabi-wallet/sabi_backend/internal/node"
	"github.com/sabi-wallet/sabi_backend/internal/tracing"
)

// DefaultFirstChannelSats is used when no channel size is configured.
const DefaultFirstChannelSats int64 = 200_000

const recoveryEntropyBits = 128 // 12 words

var phonePattern = regexp.MustCompile(`^\+234\d{10}$`)

// ServiceConfig carries the provisioning knobs loaded from configuration.
type ServiceConfig struct {
	FirstChannelSats int64
	InviteCodePrefix string
}

// Service provisions wallets: validation, node provisioning, the initial
// channel and persistence, in that order.
type Service struct {
	store  Store
	nodes  node.Client
	audit  audit.Recorder
	logger *slog.Logger
	cfg    ServiceConfig

	now       func() time.Time
	newID     func() (string, error)
	newPhrase func() (string, error)
}

// NewService builds a wallet provisioning service.
func NewService(store Store, nodes node.Client, recorder audit.Recorder, logger *slog.Logger, cfg ServiceConfig) *Service {
	return &Service{
		store:     store,
		nodes:     nodes,
		audit:     recorder,
		logger:    logging.Component(logger, "wallet_service"),
		cfg:       cfg,
		now:       time.Now,
		newID:     newWalletID,
		newPhrase: newRecoveryPhrase,
	}
}

// CreateWallet provisions a wallet for a device that has none yet.
//
// Validation and the device pre-check run before any remote call. A failed
// channel open is tolerated and reported through FirstChannelOpened. If the
// device is bound by a concurrent request between provisioning and insert,
// ErrDeviceBound is returned and the orphaned node is reported for
// reconciliation.
func (s *Service) CreateWallet(ctx context.Context, input CreateWalletInput) (resp CreateWalletResponse, err error) {
	ctx, span := tracing.StartSpan(ctx, "wallet.CreateWallet")
	defer func() {
		tracing.End(span, err)
		metrics.WalletsCreated.WithLabelValues(createOutcome(err)).Inc()
	}()

	deviceID := strings.TrimSpace(input.DeviceID)
	if deviceID == "" {
		return CreateWalletResponse{}, fmt.Errorf("%w: device_id is required", ErrValidation)
	}

	if _, err := s.store.FindByDeviceID(ctx, deviceID); err == nil {
		return CreateWalletResponse{}, ErrDeviceBound
	} else if !errors.Is(err, ErrNotFound) {
		return CreateWalletResponse{}, fmt.Errorf("lookup device: %w", err)
	}

	phone := input.Phone
	if !phonePattern.MatchString(phone) {
		return CreateWalletResponse{}, fmt.Errorf("%w: phone must be +234 followed by 10 digits", ErrValidation)
	}

	backupType, ok := ParseBackupType(input.BackupType)
	if !ok {
		return CreateWalletResponse{}, fmt.Errorf("%w: backup_type must be one of none, social, seed", ErrValidation)
	}
	span.SetAttributes(attribute.String("wallet.backup_type", string(backupType)))

	var recoveryPhrase *string
	if backupType == BackupSeed {
		phrase, err := s.newPhrase()
		if err != nil {
			return CreateWalletResponse{}, fmt.Errorf("generate recovery phrase: %w", err)
		}
		recoveryPhrase = &phrase
	}

	info, err := s.nodes.ProvisionNode(ctx)
	if err != nil {
		s.logger.Error("node provisioning failed", slog.Any("error", err))
		return CreateWalletResponse{}, fmt.Errorf("%w: %w", ErrProvisioning, err)
	}

	walletID := info.WalletID
	if walletID == "" {
		if walletID, err = s.newID(); err != nil {
			return CreateWalletResponse{}, fmt.Errorf("generate wallet id: %w", err)
		}
	} else if _, err := uuid.Parse(walletID); err != nil {
		return CreateWalletResponse{}, fmt.Errorf("%w: node service wallet id %q is not a uuid", ErrProvisioning, walletID)
	}
	span.SetAttributes(attribute.String("wallet.id", walletID))

	amount := ClampChannelSats(s.cfg.FirstChannelSats)
	channelOpened := true
	if err := s.nodes.OpenChannel(ctx, walletID, amount); err != nil {
		channelOpened = false
		metrics.FirstChannelOpens.WithLabelValues("failed").Inc()
		s.logger.Warn("initial channel open failed, continuing without channel",
			slog.String("wallet_id", walletID),
			slog.Int64("amount_sats", amount),
			slog.Any("error", err),
		)
	} else {
		metrics.FirstChannelOpens.WithLabelValues("opened").Inc()
	}

	inviteCode := info.InviteCode
	if inviteCode == "" {
		inviteCode = DeriveInviteCode(s.cfg.InviteCodePrefix, walletID)
	}

	now := s.now().UTC()
	wallet := Wallet{
		ID:                 walletID,
		Phone:              phone,
		DeviceID:           deviceID,
		NodeReference:      info.NodeReference,
		InviteCode:         inviteCode,
		BackupType:         backupType,
		BackupStatus:       backupType.Status(),
		Status:             StatusActive,
		FirstChannelOpened: channelOpened,
		FirstChannelSats:   amount,
		DeviceBoundAt:      &now,
		LastSeenAt:         &now,
		CreatedAt:          now,
	}

	if err := s.store.Insert(ctx, wallet); err != nil {
		if errors.Is(err, ErrDuplicateDevice) {
			metrics.ProvisionedUnbound.Inc()
			s.record(ctx, audit.Event{
				Kind:          audit.KindNodeProvisionedUnbound,
				WalletID:      walletID,
				DeviceID:      deviceID,
				NodeReference: info.NodeReference,
				Detail:        "device bound by a concurrent request after node provisioning",
				At:            now,
			})
			return CreateWalletResponse{}, ErrDeviceBound
		}
		s.logger.Error("wallet insert failed after provisioning",
			slog.String("wallet_id", walletID),
			slog.String("node_reference", info.NodeReference),
			slog.Any("error", err),
		)
		return CreateWalletResponse{}, fmt.Errorf("persist wallet: %w", err)
	}

	s.record(ctx, audit.Event{
		Kind:          audit.KindWalletCreated,
		WalletID:      walletID,
		DeviceID:      deviceID,
		Phone:         phone,
		NodeReference: info.NodeReference,
		At:            now,
	})
	s.logger.Info("wallet created",
		slog.String("wallet_id", walletID),
		slog.String("node_reference", info.NodeReference),
		slog.String("backup_type", string(backupType)),
		slog.Bool("first_channel_opened", channelOpened),
	)

	return CreateWalletResponse{
		WalletID:           walletID,
		InviteCode:         inviteCode,
		NodeReference:      info.NodeReference,
		FirstChannelOpened: channelOpened,
		RecoveryPhrase:     recoveryPhrase,
	}, nil
}

func (s *Service) record(ctx context.Context, event audit.Event) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, event); err != nil {
		s.logger.Warn("audit record failed", slog.String("kind", event.Kind), slog.Any("error", err))
	}
}

// ClampChannelSats applies the default for unset amounts and bounds the result
// to the LSP channel limits.
func ClampChannelSats(configured int64) int64 {
	if configured <= 0 {
		configured = DefaultFirstChannelSats
	}
	if configured < node.MinChannelSats {
		return node.MinChannelSats
	}
	if configured > node.MaxChannelSats {
		return node.MaxChannelSats
	}
	return configured
}

// DeriveInviteCode builds a shareable code from the tail of the wallet id.
func DeriveInviteCode(prefix, walletID string) string {
	hex := strings.ToUpper(strings.ReplaceAll(walletID, "-", ""))
	if len(hex) > 12 {
		hex = hex[len(hex)-12:]
	}
	if prefix == "" {
		return hex
	}
	return prefix + "-" + hex
}

func createOutcome(err error) string {
	switch {
	case err == nil:
		return "created"
	case errors.Is(err, ErrValidation):
		return "invalid"
	case errors.Is(err, ErrDeviceBound):
		return "conflict"
	case errors.Is(err, ErrProvisioning):
		return "provisioning_failed"
	default:
		return "error"
	}
}

func newWalletID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

func newRecoveryPhrase() (string, error) {
	entropy, err := bip39.NewEntropy(recoveryEntropyBits)
	if err != nil {
		return "", err
	}
	return bip39.NewMnemonic(entropy)
}
