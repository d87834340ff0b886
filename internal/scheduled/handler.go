package scheduled

import (
	"net/http"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/chatpay/chatpay/internal/phone"
)

// Handler exposes operator endpoints for scheduled intents.
type Handler struct {
	repo Repository
}

func NewHandler(repo Repository) *Handler {
	return &Handler{repo: repo}
}

type createRequest struct {
	OwnerID       string         `json:"owner_id"`
	Type          string         `json:"type"`
	Token         string         `json:"token"`
	Amount        string         `json:"amount"`
	Recipient     string         `json:"recipient"`
	ScheduledFor  time.Time      `json:"scheduled_for"`
	DelegationRef string         `json:"delegation_ref"`
	Metadata      map[string]any `json:"metadata"`
}

type intentResponse struct {
	ID            string         `json:"id"`
	OwnerID       string         `json:"owner_id"`
	Type          string         `json:"type"`
	Token         string         `json:"token"`
	Amount        string         `json:"amount"`
	Recipient     string         `json:"recipient"`
	ScheduledFor  time.Time      `json:"scheduled_for"`
	Status        string         `json:"status"`
	DelegationRef string         `json:"delegation_ref,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
}

func toResponse(in Intent) intentResponse {
	return intentResponse{
		ID:            in.ID,
		OwnerID:       in.OwnerID,
		Type:          in.Type,
		Token:         in.Token,
		Amount:        in.Amount.String(),
		Recipient:     in.Recipient,
		ScheduledFor:  in.ScheduledFor,
		Status:        in.Status,
		DelegationRef: in.DelegationRef,
		Metadata:      in.Metadata,
		CreatedAt:     in.CreatedAt,
	}
}

// Create schedules an intent on behalf of a user.
func (h *Handler) Create(c *fiber.Ctx) error {
	var req createRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid payload")
	}
	if _, err := uuid.Parse(req.OwnerID); err != nil {
		return fiber.NewError(http.StatusBadRequest, "owner_id must be a uuid")
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil || !amount.IsPositive() {
		return fiber.NewError(http.StatusBadRequest, "amount must be a positive decimal")
	}
	recipient, ok := phone.Normalize(req.Recipient)
	if !ok {
		return fiber.NewError(http.StatusBadRequest, "recipient must be a phone number")
	}
	if req.ScheduledFor.IsZero() {
		return fiber.NewError(http.StatusBadRequest, "scheduled_for is required")
	}
	if req.Type == "" {
		req.Type = TypeSend
	}
	if req.Token == "" {
		req.Token = "USDC"
	}
	in, err := h.repo.Create(c.UserContext(), Intent{
		OwnerID:       req.OwnerID,
		Type:          req.Type,
		Token:         strings.ToUpper(req.Token),
		Amount:        amount,
		Recipient:     recipient,
		ScheduledFor:  req.ScheduledFor.UTC(),
		DelegationRef: req.DelegationRef,
		Metadata:      req.Metadata,
	})
	if err != nil {
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
	return c.Status(http.StatusCreated).JSON(toResponse(in))
}

// ListByOwner returns the intents scheduled by the :id user.
func (h *Handler) ListByOwner(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 20)
	if limit <= 0 || limit > 200 {
		return fiber.NewError(http.StatusBadRequest, "limit must be between 1 and 200")
	}
	list, err := h.repo.ListByOwner(c.UserContext(), c.Params("id"), limit)
	if err != nil {
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
	out := make([]intentResponse, 0, len(list))
	for _, in := range list {
		out = append(out, toResponse(in))
	}
	return c.JSON(fiber.Map{"scheduled_intents": out})
}
