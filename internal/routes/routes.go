package routes

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/chatpay/chatpay/internal/bootstrap"
	"github.com/chatpay/chatpay/internal/conversation"
	"github.com/chatpay/chatpay/internal/middleware"
)

// Deps aggregates shared dependencies required to wire routes.
type Deps struct {
	Stack *bootstrap.Stack
}

// Setup configures middlewares and all application routes.
func Setup(app *fiber.App, d Deps) error {
	s := d.Stack
	if s == nil {
		return fmt.Errorf("routes: stack is required")
	}
	// Enforce DB/Redis presence outside of dev, even though config validation also checks.
	if !s.Cfg.IsDev() {
		if s.DB == nil {
			return fmt.Errorf("database is required when APP_ENV=%s", s.Cfg.AppEnv)
		}
		if s.Cache == nil {
			return fmt.Errorf("redis is required when APP_ENV=%s", s.Cfg.AppEnv)
		}
	}

	app.Use(recover.New())
	app.Use(middleware.RequestID())
	app.Use(middleware.AccessLog(s.Logger))

	RegisterHealthRoutes(app, d)
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	chat := conversation.NewHandler(s.Router)
	limiter := middleware.NewInboundLimiter(s.Cfg.InboundRatePerMinute)
	inbound := []fiber.Handler{
		middleware.InboundRateLimit(limiter),
		middleware.Dedupe(s.Cache, s.Cfg.IdempotencyTTL, s.Logger),
	}
	app.Post("/webhooks/twilio", append(inbound, chat.TwilioWebhook)...)

	api := app.Group("/api/v1")
	api.Get("/ping", func(c *fiber.Ctx) error {
		reqID, _ := c.Locals("X-Request-ID").(string)
		return c.Status(http.StatusOK).JSON(fiber.Map{
			"status":     "ok",
			"request_id": reqID,
			"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
		})
	})
	api.Post("/messages", append(inbound, chat.Messages)...)

	if s.Cfg.AdminJWTSecret == "" {
		s.Logger.Warn("ADMIN_JWT_SECRET not set, admin API disabled")
		return nil
	}
	admin := api.Group("/admin", middleware.AdminAuth([]byte(s.Cfg.AdminJWTSecret)))
	RegisterAdminRoutes(admin, s)
	s.Logger.Info("admin API enabled", slog.String("prefix", "/api/v1/admin"))
	return nil
}
