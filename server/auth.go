package server

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"
)

// Local key under which the verified requesting identity is stored.
const localUserID = "userId"

// RequireAuth verifies the Bearer token issued by the auth subsystem and
// injects the requesting identity into the request context. Requests
// without valid proof of identity never reach the feed handlers.
func RequireAuth(secret []byte) fiber.Handler {
	return func(c *fiber.Ctx) error {
		header := c.Get(fiber.HeaderAuthorization)
		if !strings.HasPrefix(header, "Bearer ") {
			return fiber.NewError(fiber.StatusUnauthorized, "Not authenticated.")
		}

		raw := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
		token, err := jwt.Parse([]byte(raw), jwt.WithKey(jwa.HS256, secret), jwt.WithValidate(true))
		if err != nil {
			return fiber.NewError(fiber.StatusUnauthorized, "Not authenticated.")
		}

		if token.Subject() == "" {
			return fiber.NewError(fiber.StatusUnauthorized, "Not authenticated.")
		}

		c.Locals(localUserID, token.Subject())
		return c.Next()
	}
}
