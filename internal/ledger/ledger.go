// Package ledger keeps decimal token balances for the simulated chain backend.
package ledger

import (
	"context"
	"errors"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	// ErrInsufficientFunds occurs when the source account lacks available balance
	// to cover a requested posting.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrDuplicateTransaction indicates the provided client transaction identifier
	// already exists and therefore the operation should be treated as idempotent.
	ErrDuplicateTransaction = errors.New("duplicate transaction")

	// ErrAccountNotFound is returned when a posting references an unknown account.
	ErrAccountNotFound = errors.New("ledger account not found")

	// ErrInvalidAmount is returned for zero or negative postings.
	ErrInvalidAmount = errors.New("amount must be positive")
)

// MintAccountCode is the source of simulated credits.
const MintAccountCode = "system:mint"

// TransactionResult captures the outcome of a ledger posting.
type TransactionResult struct {
	TransactionID string
	FromBalance   decimal.Decimal
	ToBalance     decimal.Decimal
}

// Ledger defines the contract implemented by ledger backends.
type Ledger interface {
	EnsureAccount(ctx context.Context, code string) error
	// Balance returns zero for accounts that do not exist yet.
	Balance(ctx context.Context, code string) (decimal.Decimal, error)
	// Credit mints amount into code.
	Credit(ctx context.Context, code, clientTxID string, amount decimal.Decimal) (decimal.Decimal, error)
	Transfer(ctx context.Context, fromCode, toCode, kind, clientTxID string, amount decimal.Decimal) (TransactionResult, error)
}

// AccountCode names the ledger account holding token for address.
func AccountCode(address, token string) string {
	return "wallet:" + strings.ToLower(address) + ":" + strings.ToUpper(token)
}
