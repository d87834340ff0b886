package identity

import (
	"errors"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"

	"github.com/chatpay/chatpay/internal/phone"
)

// Handler exposes operator endpoints for users.
type Handler struct {
	service *Service
}

// NewHandler constructs an identity HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type userResponse struct {
	UserID              string    `json:"user_id"`
	Phone               string    `json:"phone"`
	WalletAddress       string    `json:"wallet_address,omitempty"`
	HasPIN              bool      `json:"has_pin"`
	DailyLimit          string    `json:"daily_limit"`
	Locked              bool      `json:"locked"`
	OnboardingCompleted bool      `json:"onboarding_completed"`
	OnboardingStep      string    `json:"onboarding_step"`
	DefaultNetwork      string    `json:"default_network,omitempty"`
	DefaultToken        string    `json:"default_token,omitempty"`
	CreatedAt           time.Time `json:"created_at"`
	UpdatedAt           time.Time `json:"updated_at"`
}

func toResponse(u User) userResponse {
	return userResponse{
		UserID:              u.ID,
		Phone:               u.Phone,
		WalletAddress:       u.WalletAddress,
		HasPIN:              u.HasPIN(),
		DailyLimit:          u.DailyLimit.String(),
		Locked:              u.Locked,
		OnboardingCompleted: u.OnboardingCompleted,
		OnboardingStep:      u.OnboardingStep,
		DefaultNetwork:      u.DefaultNetwork,
		DefaultToken:        u.DefaultToken,
		CreatedAt:           u.CreatedAt,
		UpdatedAt:           u.UpdatedAt,
	}
}

// GetByPhone looks a user up by the ?phone= query parameter.
func (h *Handler) GetByPhone(c *fiber.Ctx) error {
	p, ok := phone.Normalize(c.Query("phone"))
	if !ok {
		return fiber.NewError(http.StatusBadRequest, "phone must be an E.164 number")
	}
	user, err := h.service.FindByPhone(c.UserContext(), p)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(toResponse(user))
}

// Get returns a user by id.
func (h *Handler) Get(c *fiber.Ctx) error {
	user, err := h.service.FindByID(c.UserContext(), c.Params("id"))
	if err != nil {
		return mapError(err)
	}
	return c.JSON(toResponse(user))
}

type lockRequest struct {
	Locked bool `json:"locked"`
}

// SetLocked locks or unlocks a user.
func (h *Handler) SetLocked(c *fiber.Ctx) error {
	var req lockRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	user, err := h.service.SetLocked(c.UserContext(), c.Params("id"), req.Locked)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(toResponse(user))
}

type limitRequest struct {
	DailyLimit string `json:"daily_limit"`
}

// SetDailyLimit changes a user's daily sending limit.
func (h *Handler) SetDailyLimit(c *fiber.Ctx) error {
	var req limitRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	limit, err := decimal.NewFromString(req.DailyLimit)
	if err != nil || limit.IsNegative() {
		return fiber.NewError(http.StatusBadRequest, "daily_limit must be a non-negative decimal")
	}
	user, err := h.service.SetDailyLimit(c.UserContext(), c.Params("id"), limit)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(toResponse(user))
}

func mapError(err error) error {
	if errors.Is(err, ErrNotFound) {
		return fiber.NewError(http.StatusNotFound, err.Error())
	}
	return fiber.NewError(http.StatusInternalServerError, err.Error())
}
