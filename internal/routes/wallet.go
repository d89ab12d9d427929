package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/sabi-wallet/sabi_backend/internal/wallet"
)

// RegisterWalletRoutes wires wallet provisioning and status endpoints.
func RegisterWalletRoutes(r fiber.Router, h *wallet.Handler, createLimit fiber.Handler) {
	r.Post("/wallets/create", createLimit, h.Create)
	r.Get("/wallets/:walletId/status", h.Status)
}
