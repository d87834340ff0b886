package coupons

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/chatpay/chatpay/internal/apperr"
	"github.com/chatpay/chatpay/internal/ledger"
	"github.com/chatpay/chatpay/internal/wallet"
)

const (
	codeAlphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"
	codeLength   = 8
	maxCodeTries = 5
)

// CreateInput describes a new coupon. ExpiresIn of zero means the coupon never expires.
type CreateInput struct {
	Creator   wallet.Wallet
	CreatorID string
	Amount    decimal.Decimal
	Token     string
	Message   string
	ExpiresIn time.Duration
}

// Service issues and redeems gift coupons.
type Service struct {
	repo     Repository
	contract Contract
	logger   *slog.Logger
	now      func() time.Time
	newCode  func() (string, error)
}

func NewService(repo Repository, contract Contract, logger *slog.Logger) *Service {
	return &Service{
		repo:     repo,
		contract: contract,
		logger:   logger,
		now:      time.Now,
		newCode:  GenerateCode,
	}
}

// GenerateCode returns a random code drawn from an alphabet without look-alike characters.
func GenerateCode() (string, error) {
	max := big.NewInt(int64(len(codeAlphabet)))
	var b strings.Builder
	b.Grow(codeLength)
	for i := 0; i < codeLength; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b.WriteByte(codeAlphabet[n.Int64()])
	}
	return b.String(), nil
}

// Create escrows the amount on the contract and records the coupon.
func (s *Service) Create(ctx context.Context, in CreateInput) (Coupon, error) {
	if !in.Amount.IsPositive() {
		return Coupon{}, apperr.Validation("coupon amount must be positive")
	}
	code, err := s.freeCode(ctx)
	if err != nil {
		return Coupon{}, apperr.Execution(err, "could not create the coupon")
	}

	hash, err := s.contract.Create(ctx, in.Creator, code, in.Amount, in.Token)
	if errors.Is(err, ledger.ErrInsufficientFunds) {
		return Coupon{}, apperr.InsufficientFunds("not enough %s to fund the coupon", in.Token)
	}
	if err != nil {
		return Coupon{}, apperr.Execution(err, "could not create the coupon")
	}

	now := s.now().UTC()
	c := Coupon{
		ID:        uuid.NewString(),
		Code:      code,
		CreatorID: in.CreatorID,
		Amount:    in.Amount,
		Token:     in.Token,
		Message:   in.Message,
		Status:    StatusActive,
		TxHash:    hash,
		CreatedAt: now,
	}
	if in.ExpiresIn > 0 {
		exp := now.Add(in.ExpiresIn)
		c.ExpiresAt = &exp
	}
	if err := s.repo.Create(ctx, c); err != nil {
		// funds are already escrowed; the code still redeems on chain
		s.logger.Error("coupon record not saved", "code", code, "tx_hash", hash, "error", err)
	}
	return c, nil
}

func (s *Service) freeCode(ctx context.Context) (string, error) {
	for i := 0; i < maxCodeTries; i++ {
		code, err := s.newCode()
		if err != nil {
			return "", err
		}
		_, err = s.repo.GetByCode(ctx, code)
		if errors.Is(err, ErrNotFound) {
			return code, nil
		}
		if err != nil {
			return "", err
		}
	}
	return "", fmt.Errorf("no free coupon code after %d attempts", maxCodeTries)
}

// Check looks a code up without changing it.
func (s *Service) Check(ctx context.Context, code string) (CheckResult, error) {
	c, err := s.repo.GetByCode(ctx, strings.ToUpper(code))
	if errors.Is(err, ErrNotFound) {
		return CheckResult{}, nil
	}
	if err != nil {
		return CheckResult{}, apperr.Collaborator(err, "coupon lookup failed")
	}
	return CheckResult{Exists: true, IsValid: c.Redeemable(s.now()), Coupon: c}, nil
}

// Redeem releases the escrowed funds to the redeemer's wallet.
func (s *Service) Redeem(ctx context.Context, code, redeemerID string, redeemer wallet.Wallet) (Coupon, error) {
	code = strings.ToUpper(code)
	c, err := s.repo.GetByCode(ctx, code)
	if errors.Is(err, ErrNotFound) {
		return Coupon{}, apperr.NotFound("coupon %s does not exist", code)
	}
	if err != nil {
		return Coupon{}, apperr.Collaborator(err, "coupon lookup failed")
	}
	switch {
	case c.Status != StatusActive:
		return Coupon{}, apperr.Validation("coupon %s was already redeemed", code)
	case c.Expired(s.now()):
		return Coupon{}, apperr.Validation("coupon %s has expired", code)
	case c.CreatorID == redeemerID:
		return Coupon{}, apperr.Validation("you cannot redeem your own coupon")
	}

	hash, err := s.contract.Redeem(ctx, code, redeemer.Address, c.Amount, c.Token)
	if errors.Is(err, ErrAlreadyRedeemed) {
		return Coupon{}, apperr.Validation("coupon %s was already redeemed", code)
	}
	if err != nil {
		return Coupon{}, apperr.Execution(err, "could not redeem the coupon")
	}

	now := s.now().UTC()
	if err := s.repo.MarkRedeemed(ctx, code, redeemerID, hash, now); err != nil {
		s.logger.Error("coupon redemption not saved", "code", code, "tx_hash", hash, "error", err)
	}
	c.Status = StatusRedeemed
	c.RedeemerID = redeemerID
	c.RedeemedAt = &now
	c.RedeemTxHash = hash
	return c, nil
}

// ListByCreator returns the most recent coupons created by a user.
func (s *Service) ListByCreator(ctx context.Context, creatorID string, limit int) ([]Coupon, error) {
	list, err := s.repo.ListByCreator(ctx, creatorID, limit)
	if err != nil {
		return nil, apperr.Collaborator(err, "coupon lookup failed")
	}
	return list, nil
}
