package middleware

import (
	"crypto/subtle"

	"github.com/gofiber/fiber/v2"

	"github.com/seludoto/dolesecommerce/internal/config"
	"github.com/seludoto/dolesecommerce/internal/utils"
)

// WebhookAuthMiddleware validates the shared secret embedded in callback
// URLs. Providers cannot send custom headers, so the secret travels as a
// path segment and the whole URL is treated as a credential.
func WebhookAuthMiddleware(cfg *config.Config) fiber.Handler {
	return func(c *fiber.Ctx) error {
		secret := c.Params("secret")
		if secret == "" || subtle.ConstantTimeCompare([]byte(secret), []byte(cfg.WebhookSecret)) != 1 {
			return fiber.NewError(fiber.StatusNotFound, "not found")
		}
		return c.Next()
	}
}

// AdminKeyMiddleware guards manual override endpoints with an ops
// credential supplied in the X-Admin-Key header and checked against a
// bcrypt hash from configuration.
func AdminKeyMiddleware(cfg *config.Config) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if cfg.AdminKeyHash == "" {
			return fiber.NewError(fiber.StatusForbidden, "admin access is not configured")
		}

		key := c.Get("X-Admin-Key")
		if key == "" || !utils.CheckPassword(cfg.AdminKeyHash, key) {
			return fiber.NewError(fiber.StatusForbidden, "invalid admin key")
		}

		return c.Next()
	}
}
