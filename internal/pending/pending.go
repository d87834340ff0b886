// Package pending stages unconfirmed financial actions, at most one per user.
package pending

import (
	"context"
	"time"
)

// DefaultTTL is how long a staged action stays confirmable.
const DefaultTTL = 5 * time.Minute

// Kind identifies what a staged action will do once confirmed.
type Kind string

const (
	KindSend    Kind = "send"
	KindRequest Kind = "request"
	KindCoupon  Kind = "coupon"
)

// Action is a staged instruction awaiting PIN confirmation.
type Action struct {
	ID           string    `json:"id"`
	UserID       string    `json:"user_id"`
	Kind         Kind      `json:"kind"`
	Amount       string    `json:"amount"`
	Token        string    `json:"token"`
	Counterparty string    `json:"counterparty,omitempty"`
	Note         string    `json:"note,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	ExpiresAt    time.Time `json:"expires_at"`

	// PIN is attached by Confirm and never persisted.
	PIN string `json:"-"`
}

// Expired reports whether the action is past its window at now.
func (a Action) Expired(now time.Time) bool {
	return now.After(a.ExpiresAt)
}

// Store holds at most one live action per user. Absence is reported through the
// boolean results; errors only come from the backing store.
type Store interface {
	// Create stages draft for draft.UserID, superseding any previous action.
	Create(ctx context.Context, draft Action) (Action, error)
	Get(ctx context.Context, userID string) (Action, bool, error)
	// Confirm removes and returns the live action, attaching pin to it.
	Confirm(ctx context.Context, userID, pin string) (Action, bool, error)
	Cancel(ctx context.Context, userID string) (bool, error)
}
