package transactions

import (
	"time"

	"github.com/shopspring/decimal"
)

// Directions.
const (
	DirectionSend    = "send"
	DirectionReceive = "receive"
	DirectionRequest = "request"
)

// Statuses. pending moves to exactly one of the terminal states.
const (
	StatusPending   = "pending"
	StatusConfirmed = "confirmed"
	StatusFailed    = "failed"
)

// Transaction records an executed or attempted transfer from one user's point of view.
// A send and its mirrored receive share TxHash once it is known.
type Transaction struct {
	ID           string
	UserID       string
	TxHash       string
	Direction    string
	Token        string
	Amount       decimal.Decimal
	Counterparty string
	Status       string
	BlockNumber  int64
	GasUsed      int64
	FailureNote  string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Settlement carries what the chain reported for a confirmed transfer.
type Settlement struct {
	TxHash      string
	BlockNumber int64
	GasUsed     int64
}
