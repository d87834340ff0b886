package middleware

import (
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/chatpay/chatpay/internal/auth"
)

// AdminAuth requires a valid admin bearer token.
func AdminAuth(secret []byte) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authz := c.Get(fiber.HeaderAuthorization)
		if !strings.HasPrefix(strings.ToLower(authz), "bearer ") {
			return fiber.NewError(http.StatusUnauthorized, "missing bearer token")
		}
		claims, err := auth.Parse(secret, strings.TrimSpace(authz[len("Bearer "):]))
		if err != nil {
			return fiber.NewError(http.StatusUnauthorized, "invalid token")
		}
		if claims.Role != auth.RoleAdmin {
			return fiber.NewError(http.StatusForbidden, "admin role required")
		}
		c.Locals("admin_subject", claims.Subject)
		return c.Next()
	}
}
