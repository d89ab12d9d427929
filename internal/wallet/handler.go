package wallet

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/sabi-wallet/sabi_backend/internal/logging"
)

const (
	// DeviceIDHeader carries the requesting device on status reads.
	DeviceIDHeader = "X-Device-ID"

	serverErrorMessage    = "Server error"
	walletNotFoundMessage = "wallet not found for device"
	deviceBoundMessage    = "device already bound"
)

// Handler exposes wallet HTTP endpoints.
type Handler struct {
	service *Service
	guard   *Guard
	logger  *slog.Logger
}

// NewHandler builds a wallet HTTP handler.
func NewHandler(service *Service, guard *Guard, logger *slog.Logger) *Handler {
	return &Handler{service: service, guard: guard, logger: logging.Component(logger, "wallet_handler")}
}

type createRequest struct {
	DeviceID   string `json:"device_id"`
	Phone      string `json:"phone"`
	BackupType *string `json:"backup_type"`
}

type createResponse struct {
	WalletID             string  `json:"wallet_id"`
	InviteCode           string  `json:"invite_code"`
	NodeID               string  `json:"node_id"`
	InitialChannelOpened bool    `json:"initial_channel_opened"`
	RecoveryPhrase       *string `json:"recovery_phrase,omitempty"`
}

type statusResponse struct {
	WalletID            string     `json:"wallet_id"`
	Phone               string     `json:"phone"`
	NodeID              string     `json:"node_id"`
	InviteCode          string     `json:"invite_code"`
	BackupType          string     `json:"backup_type"`
	BackupStatus        string     `json:"backup_status"`
	Status              string     `json:"status"`
	FirstChannelOpened  bool       `json:"first_channel_opened"`
	FirstChannelSats    int64      `json:"first_channel_sats"`
	DeviceBoundAt       *time.Time `json:"device_bound_at,omitempty"`
	LastSeenAt          *time.Time `json:"last_seen_at,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
	BalanceSats         int64      `json:"balance_sats"`
	ChannelCount        int64      `json:"channel_count"`
	ChannelCapacitySats int64      `json:"channel_capacity_sats"`
	IsConnected         bool       `json:"is_connected"`
}

// Create provisions a wallet for the calling device.
func (h *Handler) Create(c *fiber.Ctx) error {
	var req createRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid request body")
	}

	backupType := string(BackupNone)
	if req.BackupType != nil {
		backupType = *req.BackupType
	}

	res, err := h.service.CreateWallet(c.UserContext(), CreateWalletInput{
		DeviceID:   req.DeviceID,
		Phone:      req.Phone,
		BackupType: backupType,
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrValidation):
			return fiber.NewError(http.StatusBadRequest, err.Error())
		case errors.Is(err, ErrDeviceBound):
			return fiber.NewError(http.StatusBadRequest, deviceBoundMessage)
		default:
			h.logger.Error("create wallet failed", slog.Any("error", err))
			return fiber.NewError(http.StatusInternalServerError, serverErrorMessage)
		}
	}

	return c.Status(http.StatusCreated).JSON(createResponse{
		WalletID:             res.WalletID,
		InviteCode:           res.InviteCode,
		NodeID:               res.NodeReference,
		InitialChannelOpened: res.FirstChannelOpened,
		RecoveryPhrase:       res.RecoveryPhrase,
	})
}

// Status returns wallet status to the bound device. Unknown wallets and
// foreign devices get the same answer.
func (h *Handler) Status(c *fiber.Ctx) error {
	deviceID := strings.TrimSpace(c.Get(DeviceIDHeader))
	if deviceID == "" {
		deviceID = strings.TrimSpace(c.Query("device_id"))
	}

	res, err := h.guard.GetWalletStatus(c.UserContext(), c.Params("walletId"), deviceID)
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound), errors.Is(err, ErrBindingViolation):
			return fiber.NewError(http.StatusBadRequest, walletNotFoundMessage)
		default:
			h.logger.Error("wallet status failed", slog.Any("error", err))
			return fiber.NewError(http.StatusInternalServerError, serverErrorMessage)
		}
	}

	w := res.Wallet
	return c.Status(http.StatusOK).JSON(statusResponse{
		WalletID:            w.ID,
		Phone:               w.Phone,
		NodeID:              w.NodeReference,
		InviteCode:          w.InviteCode,
		BackupType:          string(w.BackupType),
		BackupStatus:        string(w.BackupStatus),
		Status:              w.Status,
		FirstChannelOpened:  w.FirstChannelOpened,
		FirstChannelSats:    w.FirstChannelSats,
		DeviceBoundAt:       w.DeviceBoundAt,
		LastSeenAt:          w.LastSeenAt,
		CreatedAt:           w.CreatedAt,
		BalanceSats:         res.Node.BalanceSats,
		ChannelCount:        res.Node.ChannelCount,
		ChannelCapacitySats: res.Node.ChannelCapacitySats,
		IsConnected:         res.Node.IsConnected,
	})
}
