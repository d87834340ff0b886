package wallet

import (
	"context"
	"strings"
	"sync"
)

type memoryRepository struct {
	mu        sync.RWMutex
	nextIndex uint32
	byUser    map[string]Wallet
}

// NewMemoryRepository constructs an in-memory repository for tests.
func NewMemoryRepository() Repository {
	return &memoryRepository{byUser: make(map[string]Wallet)}
}

func (r *memoryRepository) NextIndex(context.Context) (uint32, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	idx := r.nextIndex
	r.nextIndex++
	return idx, nil
}

func (r *memoryRepository) Create(_ context.Context, wallet Wallet) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byUser[wallet.UserID]; exists {
		return ErrExists
	}
	r.byUser[wallet.UserID] = wallet
	return nil
}

func (r *memoryRepository) GetByUser(_ context.Context, userID string) (Wallet, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	wallet, ok := r.byUser[userID]
	if !ok {
		return Wallet{}, ErrNotFound
	}
	return wallet, nil
}

func (r *memoryRepository) GetByAddress(_ context.Context, address string) (Wallet, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, w := range r.byUser {
		if strings.EqualFold(w.Address, address) {
			return w, nil
		}
	}
	return Wallet{}, ErrNotFound
}

func (r *memoryRepository) MarkProvisioned(_ context.Context, walletID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for userID, w := range r.byUser {
		if w.ID == walletID {
			w.Provisioned = true
			r.byUser[userID] = w
			return nil
		}
	}
	return ErrNotFound
}
