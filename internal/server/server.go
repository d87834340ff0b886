package server

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/chatpay/chatpay/internal/bootstrap"
	"github.com/chatpay/chatpay/internal/routes"
)

// Server wraps the Fiber application and the assembled stack.
type Server struct {
	app   *fiber.App
	stack *bootstrap.Stack
}

// New instantiates the HTTP server and delegates route wiring to routes.Setup.
func New(stack *bootstrap.Stack) (*Server, error) {
	app := fiber.New(fiber.Config{
		AppName:      stack.Cfg.AppName,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		ErrorHandler: errorHandler,
	})

	if err := routes.Setup(app, routes.Deps{Stack: stack}); err != nil {
		return nil, err
	}

	return &Server{app: app, stack: stack}, nil
}

// App exposes the Fiber application for in-process tests.
func (s *Server) App() *fiber.App {
	return s.app
}

// Listen starts the HTTP server.
func (s *Server) Listen() error {
	return s.app.Listen(s.stack.Cfg.Address())
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

func errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	msg := "internal error"
	if fe, ok := err.(*fiber.Error); ok {
		code = fe.Code
		msg = fe.Message
	}
	return c.Status(code).JSON(fiber.Map{"error": msg})
}
