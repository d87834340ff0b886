package audit

import (
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
)

// Handler exposes the audit trail to operators.
type Handler struct {
	repo Repository
}

func NewHandler(repo Repository) *Handler {
	return &Handler{repo: repo}
}

type entryResponse struct {
	ID               string         `json:"id"`
	UserID           string         `json:"user_id,omitempty"`
	Action           string         `json:"action"`
	Details          map[string]any `json:"details,omitempty"`
	ChannelMessageID string         `json:"channel_message_id,omitempty"`
	CreatedAt        time.Time      `json:"created_at"`
}

// List returns recent entries, optionally filtered with ?user_id=.
func (h *Handler) List(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 50)
	if limit <= 0 || limit > 500 {
		return fiber.NewError(http.StatusBadRequest, "limit must be between 1 and 500")
	}
	entries, err := h.repo.List(c.UserContext(), c.Query("user_id"), limit)
	if err != nil {
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
	out := make([]entryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, entryResponse(e))
	}
	return c.JSON(fiber.Map{"entries": out})
}
