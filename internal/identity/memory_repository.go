package identity

import (
	"context"
	"sync"
)

type memoryRepository struct {
	mu    sync.RWMutex
	users map[string]User
}

// NewMemoryRepository builds an in-memory user store for tests and the CLI.
func NewMemoryRepository() Repository {
	return &memoryRepository{users: make(map[string]User)}
}

func (r *memoryRepository) Create(_ context.Context, user User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.users[user.Phone]; exists {
		return ErrUserExists
	}
	r.users[user.Phone] = user
	return nil
}

func (r *memoryRepository) FindByPhone(_ context.Context, phone string) (User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	user, ok := r.users[phone]
	if !ok {
		return User{}, ErrNotFound
	}
	return user, nil
}

func (r *memoryRepository) FindByID(_ context.Context, id string) (User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, user := range r.users {
		if user.ID == id {
			return user, nil
		}
	}
	return User{}, ErrNotFound
}

func (r *memoryRepository) Update(_ context.Context, user User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for phone, existing := range r.users {
		if existing.ID == user.ID {
			user.Phone = existing.Phone
			user.WalletAddress = existing.WalletAddress
			user.CreatedAt = existing.CreatedAt
			r.users[phone] = user
			return nil
		}
	}
	return ErrNotFound
}

func (r *memoryRepository) SetWalletAddress(_ context.Context, id, address string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for phone, user := range r.users {
		if user.ID != id {
			continue
		}
		if user.WalletAddress != "" {
			if user.WalletAddress == address {
				return nil
			}
			return ErrWalletImmutable
		}
		user.WalletAddress = address
		r.users[phone] = user
		return nil
	}
	return ErrNotFound
}
