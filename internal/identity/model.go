package identity

import (
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/chatpay/chatpay/internal/logging"
)

// Onboarding steps, in order.
const (
	StepWelcome   = "welcome"
	StepPIN       = "pin"
	StepCompleted = "completed"
)

// User is a wallet owner identified by phone number.
type User struct {
	ID                  string
	Phone               string
	WalletAddress       string
	PINHash             string
	DailyLimit          decimal.Decimal
	Locked              bool
	OnboardingCompleted bool
	OnboardingStep      string
	DefaultNetwork      string
	DefaultToken        string
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// HasPIN reports whether a PIN hash is stored.
func (u User) HasPIN() bool {
	return u.PINHash != ""
}

// LogValue keeps the PIN hash and full phone number out of logs.
func (u User) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("id", u.ID),
		logging.Phone("phone", u.Phone),
		slog.String("onboarding_step", u.OnboardingStep),
		slog.Bool("locked", u.Locked),
	)
}
