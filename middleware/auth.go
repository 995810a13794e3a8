package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"
)

// UserIDLocal is the fiber.Ctx local holding the caller's user id.
const UserIDLocal = "user_id"

// UserContextMiddleware extracts the identity set by the gateway. Routes it
// guards require X-User-ID.
func UserContextMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID := strings.TrimSpace(c.Get("X-User-ID"))
		if userID == "" {
			log.Debug().Str("path", c.Path()).Msg("[USER_CTX] X-User-ID missing")
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "missing X-User-ID, request must come through gateway with auth context",
			})
		}

		var roles []string
		for _, r := range strings.Split(c.Get("X-User-Roles"), ",") {
			if r = strings.TrimSpace(r); r != "" {
				roles = append(roles, r)
			}
		}

		c.Locals(UserIDLocal, userID)
		c.Locals("user_roles", roles)
		return c.Next()
	}
}

// UserID returns the id stored by UserContextMiddleware or
// WebSocketAuthMiddleware.
func UserID(c *fiber.Ctx) string {
	id, _ := c.Locals(UserIDLocal).(string)
	return id
}
