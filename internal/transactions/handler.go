package transactions

import (
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
)

const (
	defaultListLimit = 20
	maxListLimit     = 200
)

// Handler exposes operator endpoints for transactions.
type Handler struct {
	repo Repository
}

// NewHandler constructs a transactions HTTP handler.
func NewHandler(repo Repository) *Handler {
	return &Handler{repo: repo}
}

type transactionResponse struct {
	ID           string    `json:"id"`
	TxHash       string    `json:"tx_hash,omitempty"`
	Direction    string    `json:"direction"`
	Token        string    `json:"token"`
	Amount       string    `json:"amount"`
	Counterparty string    `json:"counterparty"`
	Status       string    `json:"status"`
	BlockNumber  int64     `json:"block_number,omitempty"`
	GasUsed      int64     `json:"gas_used,omitempty"`
	FailureNote  string    `json:"failure_note,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// ListByUser returns the newest transactions for the :id user.
func (h *Handler) ListByUser(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", defaultListLimit)
	if limit <= 0 || limit > maxListLimit {
		return fiber.NewError(http.StatusBadRequest, "limit must be between 1 and 200")
	}
	txs, err := h.repo.ListByUser(c.UserContext(), c.Params("id"), limit)
	if err != nil {
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
	out := make([]transactionResponse, 0, len(txs))
	for _, tx := range txs {
		out = append(out, transactionResponse{
			ID:           tx.ID,
			TxHash:       tx.TxHash,
			Direction:    tx.Direction,
			Token:        tx.Token,
			Amount:       tx.Amount.String(),
			Counterparty: tx.Counterparty,
			Status:       tx.Status,
			BlockNumber:  tx.BlockNumber,
			GasUsed:      tx.GasUsed,
			FailureNote:  tx.FailureNote,
			CreatedAt:    tx.CreatedAt,
			UpdatedAt:    tx.UpdatedAt,
		})
	}
	return c.JSON(fiber.Map{"transactions": out})
}
