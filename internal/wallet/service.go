package wallet

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/chatpay/chatpay/internal/logging"
)

// Service provisions derived wallets and fronts the chain backend.
type Service struct {
	repo    Repository
	deriver *Deriver
	chain   Chain
	logger  *slog.Logger
}

// NewService builds a wallet service instance.
func NewService(repo Repository, deriver *Deriver, chain Chain, logger *slog.Logger) *Service {
	return &Service{repo: repo, deriver: deriver, chain: chain, logger: logger}
}

// GetOrCreate returns the user's wallet, deriving and provisioning one on first use.
// Concurrent callers for the same user converge on a single wallet. A wallet whose
// provisioning failed is provisioned again on the next call.
func (s *Service) GetOrCreate(ctx context.Context, userID, phone string) (Wallet, error) {
	existing, err := s.repo.GetByUser(ctx, userID)
	if err == nil {
		return s.ensureProvisioned(ctx, existing)
	}
	if !errors.Is(err, ErrNotFound) {
		return Wallet{}, err
	}

	index, err := s.repo.NextIndex(ctx)
	if err != nil {
		return Wallet{}, fmt.Errorf("reserve derivation index: %w", err)
	}
	address, err := s.deriver.Address(index)
	if err != nil {
		return Wallet{}, err
	}

	w := Wallet{
		ID:              uuid.New().String(),
		UserID:          userID,
		Address:         address,
		DerivationIndex: index,
		CreatedAt:       time.Now().UTC(),
	}
	if err := s.repo.Create(ctx, w); err != nil {
		if errors.Is(err, ErrExists) {
			winner, getErr := s.repo.GetByUser(ctx, userID)
			if getErr != nil {
				return Wallet{}, getErr
			}
			return s.ensureProvisioned(ctx, winner)
		}
		return Wallet{}, err
	}
	s.logger.Info("wallet created", "user_id", userID, logging.Phone("phone", phone), "address", address)
	return s.ensureProvisioned(ctx, w)
}

// ensureProvisioned runs the chain's Provision step until it has succeeded once.
// Provision is idempotent, so racing callers may both run it.
func (s *Service) ensureProvisioned(ctx context.Context, w Wallet) (Wallet, error) {
	if w.Provisioned {
		return w, nil
	}
	if err := s.chain.Provision(ctx, w); err != nil {
		return Wallet{}, fmt.Errorf("provision wallet: %w", err)
	}
	if err := s.repo.MarkProvisioned(ctx, w.ID); err != nil {
		return Wallet{}, fmt.Errorf("mark wallet provisioned: %w", err)
	}
	w.Provisioned = true
	return w, nil
}

// ForUser returns the user's existing wallet.
func (s *Service) ForUser(ctx context.Context, userID string) (Wallet, error) {
	return s.repo.GetByUser(ctx, userID)
}

// Balance returns the token balance held at address.
func (s *Service) Balance(ctx context.Context, address, token string) (decimal.Decimal, error) {
	return s.chain.TokenBalance(ctx, address, token)
}

// HasGas reports whether address can pay network fees.
func (s *Service) HasGas(ctx context.Context, address string) (bool, error) {
	return s.chain.HasGas(ctx, address)
}

// Transfer moves funds out of the signer wallet.
func (s *Service) Transfer(ctx context.Context, from Wallet, to, token string, amount decimal.Decimal, reference string) (TransferResult, error) {
	return s.chain.Transfer(ctx, from, to, token, amount, reference)
}
