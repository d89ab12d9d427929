package middleware

import (
	"errors"
	"log/slog"

	"github.com/gofiber/fiber/v2"
)

const serverErrorMessage = "Server error"

// ErrorHandler renders every error as {"error": message}. Errors that are not
// *fiber.Error are logged and hidden behind a generic message.
func ErrorHandler(logger *slog.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		code := fiber.StatusInternalServerError
		message := serverErrorMessage

		var fe *fiber.Error
		if errors.As(err, &fe) {
			code = fe.Code
			message = fe.Message
		} else if logger != nil {
			logger.Error("unhandled request error", slog.String("path", c.Path()), slog.Any("error", err))
		}

		return c.Status(code).JSON(fiber.Map{"error": message})
	}
}
