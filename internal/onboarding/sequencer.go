// Package onboarding gates new users behind a short welcome and PIN setup flow.
package onboarding

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/chatpay/chatpay/internal/audit"
	"github.com/chatpay/chatpay/internal/identity"
	"github.com/chatpay/chatpay/internal/intent"
	"github.com/chatpay/chatpay/internal/wallet"
)

// NeedsOnboarding reports whether the user must finish onboarding before anything else.
func NeedsOnboarding(u identity.User) bool {
	return !u.OnboardingCompleted
}

// Sequencer walks a user through welcome -> pin -> completed.
type Sequencer struct {
	users   *identity.Service
	wallets *wallet.Service
	audit   *audit.Recorder
	logger  *slog.Logger
}

func NewSequencer(users *identity.Service, wallets *wallet.Service, recorder *audit.Recorder, logger *slog.Logger) *Sequencer {
	return &Sequencer{users: users, wallets: wallets, audit: recorder, logger: logger}
}

// Handle consumes one inbound message for a user still onboarding and returns the replies.
func (s *Sequencer) Handle(ctx context.Context, user identity.User, text, messageID string) ([]string, error) {
	switch user.OnboardingStep {
	case identity.StepPIN:
		return s.handlePIN(ctx, user, text, messageID)
	case identity.StepCompleted:
		// flag and step disagree; finish the record rather than looping the user
		if _, err := s.users.CompleteOnboarding(ctx, user); err != nil {
			return nil, err
		}
		return []string{pinPromptMessage}, nil
	default:
		if _, err := s.users.AdvanceOnboarding(ctx, user, identity.StepPIN); err != nil {
			return nil, err
		}
		return []string{welcomeMessage}, nil
	}
}

func (s *Sequencer) handlePIN(ctx context.Context, user identity.User, text, messageID string) ([]string, error) {
	p, ok := intent.ParseSetPIN(text)
	if !ok && intent.IsBarePIN(text) {
		p, ok = strings.TrimSpace(text), true
	}
	if !ok {
		return []string{pinPromptMessage}, nil
	}

	user, err := s.users.SetPIN(ctx, user, p)
	if err != nil {
		return nil, err
	}
	s.audit.Record(ctx, user.ID, audit.ActionPINSet, messageID, nil)

	user, err = s.users.CompleteOnboarding(ctx, user)
	if err != nil {
		return nil, err
	}

	w, err := s.wallets.GetOrCreate(ctx, user.ID, user.Phone)
	if err != nil {
		s.logger.Error("wallet creation after onboarding failed", "user", user, "error", err)
		return []string{completeNoWalletMessage}, nil
	}
	if user.WalletAddress == "" {
		if _, err := s.users.AssignWallet(ctx, user, w.Address); err != nil {
			s.logger.Error("failed to record wallet address", "user", user, "error", err)
		}
	}
	s.audit.Record(ctx, user.ID, audit.ActionWalletCreated, messageID, map[string]any{"address": w.Address})
	return []string{fmt.Sprintf(completeMessage, w.Address)}, nil
}
