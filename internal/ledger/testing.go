package ledger

import "github.com/shopspring/decimal"

// SeedBalance sets the balance for an account when using the in-memory ledger.
// Other backends are left untouched.
func SeedBalance(l Ledger, code string, amount decimal.Decimal) {
	if mem, ok := l.(*inMemoryLedger); ok {
		mem.mu.Lock()
		defer mem.mu.Unlock()
		mem.balances[code] = amount
	}
}
