package scheduled

import (
	"time"

	"github.com/shopspring/decimal"
)

// Statuses. pending moves to approved or cancelled; approved moves to executed or cancelled.
const (
	StatusPending   = "pending"
	StatusApproved  = "approved"
	StatusExecuted  = "executed"
	StatusCancelled = "cancelled"
)

// TypeSend is the only intent type the sweeper executes; other types are cancelled when due.
const TypeSend = "send"

// Intent is a future-dated action owned by a user.
type Intent struct {
	ID            string
	OwnerID       string
	Type          string
	Token         string
	Amount        decimal.Decimal
	Recipient     string
	ScheduledFor  time.Time
	Status        string
	DelegationRef string
	Metadata      map[string]any
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

var transitions = map[string][]string{
	StatusPending:  {StatusApproved, StatusCancelled},
	StatusApproved: {StatusExecuted, StatusCancelled},
}

// CanTransition reports whether a status change keeps the lifecycle monotonic.
func CanTransition(from, to string) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
