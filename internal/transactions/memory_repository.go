package transactions

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

type memoryRepository struct {
	mu  sync.RWMutex
	now func() time.Time
	txs map[string]Transaction
}

// NewMemoryRepository builds an in-memory transaction store.
func NewMemoryRepository() Repository {
	return &memoryRepository{now: time.Now, txs: make(map[string]Transaction)}
}

func (r *memoryRepository) Create(_ context.Context, tx Transaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.txs[tx.ID] = tx
	return nil
}

func (r *memoryRepository) Get(_ context.Context, id string) (Transaction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tx, ok := r.txs[id]
	if !ok {
		return Transaction{}, ErrNotFound
	}
	return tx, nil
}

func (r *memoryRepository) MarkConfirmed(_ context.Context, id string, s Settlement) error {
	return r.transition(id, func(tx *Transaction) {
		tx.Status = StatusConfirmed
		tx.TxHash = s.TxHash
		tx.BlockNumber = s.BlockNumber
		tx.GasUsed = s.GasUsed
	})
}

func (r *memoryRepository) MarkFailed(_ context.Context, id, note string) error {
	return r.transition(id, func(tx *Transaction) {
		tx.Status = StatusFailed
		tx.FailureNote = note
	})
}

func (r *memoryRepository) transition(id string, apply func(*Transaction)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	tx, ok := r.txs[id]
	if !ok {
		return ErrNotFound
	}
	if tx.Status != StatusPending {
		return ErrInvalidTransition
	}
	apply(&tx)
	tx.UpdatedAt = r.now().UTC()
	r.txs[id] = tx
	return nil
}

func (r *memoryRepository) ListByUser(_ context.Context, userID string, limit int) ([]Transaction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Transaction
	for _, tx := range r.txs {
		if tx.UserID == userID {
			out = append(out, tx)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *memoryRepository) SumSent(_ context.Context, userID string, since time.Time) (decimal.Decimal, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	total := decimal.Zero
	for _, tx := range r.txs {
		if tx.UserID != userID || tx.Direction != DirectionSend || tx.Status == StatusFailed {
			continue
		}
		if tx.CreatedAt.Before(since) {
			continue
		}
		total = total.Add(tx.Amount)
	}
	return total, nil
}
