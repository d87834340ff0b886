package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/chatpay/chatpay/internal/audit"
	"github.com/chatpay/chatpay/internal/bootstrap"
	"github.com/chatpay/chatpay/internal/identity"
	"github.com/chatpay/chatpay/internal/scheduled"
	"github.com/chatpay/chatpay/internal/transactions"
)

// RegisterAdminRoutes wires the operator endpoints. r is expected to be behind AdminAuth.
func RegisterAdminRoutes(r fiber.Router, s *bootstrap.Stack) {
	users := identity.NewHandler(s.Users)
	r.Get("/users", users.GetByPhone)
	r.Get("/users/:id", users.Get)
	r.Post("/users/:id/lock", users.SetLocked)
	r.Post("/users/:id/daily-limit", users.SetDailyLimit)

	txs := transactions.NewHandler(s.Transactions)
	r.Get("/users/:id/transactions", txs.ListByUser)

	intents := scheduled.NewHandler(s.Scheduled)
	r.Post("/scheduled", intents.Create)
	r.Get("/users/:id/scheduled", intents.ListByOwner)

	r.Get("/audit", audit.NewHandler(s.AuditRepo).List)
}
