package ledger

import (
	"context"
	"sync"

	"github.com/shopspring/decimal"
)

type inMemoryLedger struct {
	mu           sync.RWMutex
	balances     map[string]decimal.Decimal
	transactions map[string]TransactionResult
}

// NewInMemory creates a concurrency-safe in-memory ledger.
func NewInMemory() Ledger {
	return &inMemoryLedger{
		balances:     make(map[string]decimal.Decimal),
		transactions: make(map[string]TransactionResult),
	}
}

func (l *inMemoryLedger) EnsureAccount(_ context.Context, code string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, exists := l.balances[code]; !exists {
		l.balances[code] = decimal.Zero
	}
	return nil
}

func (l *inMemoryLedger) Balance(_ context.Context, code string) (decimal.Decimal, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.balances[code], nil
}

func (l *inMemoryLedger) Credit(_ context.Context, code, clientTxID string, amount decimal.Decimal) (decimal.Decimal, error) {
	if !amount.IsPositive() {
		return decimal.Zero, ErrInvalidAmount
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	key := "credit:" + clientTxID
	if res, exists := l.transactions[key]; exists {
		return res.ToBalance, ErrDuplicateTransaction
	}
	balance := l.balances[code].Add(amount)
	l.balances[code] = balance
	l.balances[MintAccountCode] = l.balances[MintAccountCode].Sub(amount)
	l.transactions[key] = TransactionResult{TransactionID: key, ToBalance: balance}
	return balance, nil
}

func (l *inMemoryLedger) Transfer(_ context.Context, fromCode, toCode, kind, clientTxID string, amount decimal.Decimal) (TransactionResult, error) {
	if !amount.IsPositive() {
		return TransactionResult{}, ErrInvalidAmount
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	key := kind + ":" + clientTxID
	if res, exists := l.transactions[key]; exists {
		return res, ErrDuplicateTransaction
	}

	fromBalance, ok := l.balances[fromCode]
	if !ok {
		return TransactionResult{}, ErrAccountNotFound
	}
	toBalance, ok := l.balances[toCode]
	if !ok {
		return TransactionResult{}, ErrAccountNotFound
	}
	if fromBalance.LessThan(amount) {
		return TransactionResult{}, ErrInsufficientFunds
	}

	fromBalance = fromBalance.Sub(amount)
	toBalance = toBalance.Add(amount)
	l.balances[fromCode] = fromBalance
	l.balances[toCode] = toBalance

	res := TransactionResult{
		TransactionID: key,
		FromBalance:   fromBalance,
		ToBalance:     toBalance,
	}
	l.transactions[key] = res
	return res, nil
}
