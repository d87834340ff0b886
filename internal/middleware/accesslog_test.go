package middleware

import (
	"bytes"
	"log/slog"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAccessLogLevelsByStatus(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	app := fiber.New()
	app.Use(RequestID(), AccessLog(logger))
	app.Get("/ok", func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusOK) })
	app.Get("/bad", func(c *fiber.Ctx) error { return fiber.NewError(fiber.StatusBadRequest, "nope") })
	app.Get("/boom", func(c *fiber.Ctx) error { return fiber.NewError(fiber.StatusInternalServerError, "boom") })

	for _, path := range []string{"/ok", "/bad", "/boom"} {
		resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, path, nil))
		require.NoError(t, err)
		resp.Body.Close()
	}

	out := buf.String()
	assert.Contains(t, out, `"level":"INFO","msg":"request completed","method":"GET","path":"/ok","status":200`)
	assert.Contains(t, out, `"level":"WARN","msg":"request completed","method":"GET","path":"/bad","status":400`)
	assert.Contains(t, out, `"level":"ERROR","msg":"request completed","method":"GET","path":"/boom","status":500`)
	assert.Contains(t, out, `"request_id":`)
}
