package identity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/chatpay/chatpay/internal/pin"
)

// Defaults applied to new users and on onboarding completion.
type Defaults struct {
	DailyLimit decimal.Decimal
	Network    string
	Token      string
}

// Service manages the user lifecycle.
type Service struct {
	repo     Repository
	guard    *pin.Guard
	defaults Defaults
	now      func() time.Time
}

// NewService creates a new identity service. A nil guard selects pin.Default.
func NewService(repo Repository, guard *pin.Guard, defaults Defaults) *Service {
	if guard == nil {
		guard = pin.Default
	}
	return &Service{repo: repo, guard: guard, defaults: defaults, now: time.Now}
}

// GetOrCreate returns the user registered to phone, creating one at the welcome
// step if none exists. The phone must already be normalized.
func (s *Service) GetOrCreate(ctx context.Context, phone string) (User, bool, error) {
	user, err := s.repo.FindByPhone(ctx, phone)
	if err == nil {
		return user, false, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return User{}, false, err
	}

	now := s.now().UTC()
	user = User{
		ID:             uuid.New().String(),
		Phone:          phone,
		DailyLimit:     s.defaults.DailyLimit,
		OnboardingStep: StepWelcome,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.repo.Create(ctx, user); err != nil {
		// lost a race with a concurrent first message from the same number
		if errors.Is(err, ErrUserExists) {
			existing, findErr := s.repo.FindByPhone(ctx, phone)
			return existing, false, findErr
		}
		return User{}, false, err
	}
	return user, true, nil
}

// FindByPhone fetches a user by phone number.
func (s *Service) FindByPhone(ctx context.Context, phone string) (User, error) {
	return s.repo.FindByPhone(ctx, phone)
}

// FindByID fetches a user by identifier.
func (s *Service) FindByID(ctx context.Context, id string) (User, error) {
	return s.repo.FindByID(ctx, id)
}

// SetPIN hashes and stores a new PIN, replacing any previous one.
func (s *Service) SetPIN(ctx context.Context, user User, p string) (User, error) {
	hash, err := s.guard.Hash(p)
	if err != nil {
		return User{}, err
	}
	user.PINHash = hash
	return s.save(ctx, user)
}

// VerifyPIN checks p against the stored hash. Users without a PIN never verify.
func (s *Service) VerifyPIN(user User, p string) bool {
	if !user.HasPIN() {
		return false
	}
	return s.guard.Verify(p, user.PINHash)
}

// AdvanceOnboarding moves the user to step.
func (s *Service) AdvanceOnboarding(ctx context.Context, user User, step string) (User, error) {
	user.OnboardingStep = step
	return s.save(ctx, user)
}

// CompleteOnboarding applies the default network and token and marks onboarding done.
func (s *Service) CompleteOnboarding(ctx context.Context, user User) (User, error) {
	user.DefaultNetwork = s.defaults.Network
	user.DefaultToken = s.defaults.Token
	user.OnboardingStep = StepCompleted
	user.OnboardingCompleted = true
	return s.save(ctx, user)
}

// AssignWallet records the user's wallet address. It can only be set once.
func (s *Service) AssignWallet(ctx context.Context, user User, address string) (User, error) {
	if err := s.repo.SetWalletAddress(ctx, user.ID, address); err != nil {
		return User{}, err
	}
	user.WalletAddress = address
	return user, nil
}

// SetLocked locks or unlocks the user.
func (s *Service) SetLocked(ctx context.Context, id string, locked bool) (User, error) {
	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return User{}, err
	}
	user.Locked = locked
	return s.save(ctx, user)
}

// SetDailyLimit changes the user's daily sending limit.
func (s *Service) SetDailyLimit(ctx context.Context, id string, limit decimal.Decimal) (User, error) {
	if limit.IsNegative() {
		return User{}, fmt.Errorf("daily limit must not be negative")
	}
	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return User{}, err
	}
	user.DailyLimit = limit
	return s.save(ctx, user)
}

func (s *Service) save(ctx context.Context, user User) (User, error) {
	user.UpdatedAt = s.now().UTC()
	if err := s.repo.Update(ctx, user); err != nil {
		return User{}, err
	}
	return user, nil
}
