package middleware

import (
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"

	"github.com/seludoto/dolesecommerce/internal/config"
	"github.com/seludoto/dolesecommerce/internal/utils"
)

func newWebhookApp(cfg *config.Config) *fiber.App {
	app := fiber.New()
	app.Post("/api/callbacks/:secret/mpesa/stk", WebhookAuthMiddleware(cfg), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})
	return app
}

func TestWebhookAuthMiddleware(t *testing.T) {
	cfg := &config.Config{WebhookSecret: "correct-secret"}

	var tests = []struct {
		name     string
		path     string
		expected int
	}{
		{name: "valid secret", path: "/api/callbacks/correct-secret/mpesa/stk", expected: fiber.StatusOK},
		{name: "wrong secret", path: "/api/callbacks/wrong-secret/mpesa/stk", expected: fiber.StatusNotFound},
		{name: "missing secret segment", path: "/api/callbacks//mpesa/stk", expected: fiber.StatusNotFound},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			app := newWebhookApp(cfg)
			req := httptest.NewRequest(fiber.MethodPost, tt.path, nil)

			resp, err := app.Test(req)
			require.NoError(t, err)
			require.Equal(t, tt.expected, resp.StatusCode)
		})
	}
}

func TestAdminKeyMiddleware(t *testing.T) {
	hash, err := utils.HashPassword("super-secret-key")
	require.NoError(t, err)

	var tests = []struct {
		name     string
		cfg      *config.Config
		key      string
		expected int
	}{
		{name: "valid key", cfg: &config.Config{AdminKeyHash: hash}, key: "super-secret-key", expected: fiber.StatusOK},
		{name: "wrong key", cfg: &config.Config{AdminKeyHash: hash}, key: "guess", expected: fiber.StatusForbidden},
		{name: "missing key", cfg: &config.Config{AdminKeyHash: hash}, key: "", expected: fiber.StatusForbidden},
		{name: "admin access not configured", cfg: &config.Config{}, key: "super-secret-key", expected: fiber.StatusForbidden},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			app := fiber.New()
			app.Post("/admin/op", AdminKeyMiddleware(tt.cfg), func(c *fiber.Ctx) error {
				return c.SendStatus(fiber.StatusOK)
			})

			req := httptest.NewRequest(fiber.MethodPost, "/admin/op", nil)
			if tt.key != "" {
				req.Header.Set("X-Admin-Key", tt.key)
			}

			resp, err := app.Test(req)
			require.NoError(t, err)
			require.Equal(t, tt.expected, resp.StatusCode)
		})
	}
}
