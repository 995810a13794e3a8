package middleware

import (
	"strings"

	"pong-arena/services"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"
)

// TokenValidator resolves an access token to an identity.
// services.AuthServiceClient satisfies it.
type TokenValidator interface {
	ValidateToken(accessToken, deviceID string) (*services.ValidateResponse, error)
}

// WebSocketAuthMiddleware admits websocket upgrades only. With a validator
// the `token` and `device_id` query params are checked against the auth
// service; without one the gateway's X-User-ID (or `user_id` query) is
// trusted.
func WebSocketAuthMiddleware(validator TokenValidator) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !websocket.IsWebSocketUpgrade(c) {
			return fiber.ErrUpgradeRequired
		}

		var userID string
		if validator != nil {
			token := strings.TrimSpace(c.Query("token"))
			deviceID := strings.TrimSpace(c.Query("device_id"))
			if token == "" || deviceID == "" {
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
					"error": "missing token or device_id in query",
				})
			}
			resp, err := validator.ValidateToken(token, deviceID)
			if err != nil {
				log.Warn().Err(err).Str("device_id", deviceID).Msg("[WS_AUTH] token validation failed")
				return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized"})
			}
			userID = resp.UserID
		} else {
			userID = strings.TrimSpace(c.Get("X-User-ID"))
			if userID == "" {
				userID = strings.TrimSpace(c.Query("user_id"))
			}
		}

		if userID == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized"})
		}
		c.Locals(UserIDLocal, userID)
		return c.Next()
	}
}
