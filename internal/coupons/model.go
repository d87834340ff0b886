package coupons

import (
	"time"

	"github.com/shopspring/decimal"
)

// Statuses. active moves to redeemed exactly once.
const (
	StatusActive   = "active"
	StatusRedeemed = "redeemed"
)

// Coupon mirrors a gift coupon held in escrow by the coupon contract.
type Coupon struct {
	ID           string
	Code         string
	CreatorID    string
	Amount       decimal.Decimal
	Token        string
	Message      string
	Status       string
	RedeemerID   string
	RedeemedAt   *time.Time
	ExpiresAt    *time.Time
	TxHash       string
	RedeemTxHash string
	CreatedAt    time.Time
}

// Expired reports whether the coupon has an expiry that lies before now.
func (c Coupon) Expired(now time.Time) bool {
	return c.ExpiresAt != nil && now.After(*c.ExpiresAt)
}

// Redeemable reports whether the coupon can still be claimed at now.
func (c Coupon) Redeemable(now time.Time) bool {
	return c.Status == StatusActive && !c.Expired(now)
}

// CheckResult answers a coupon lookup.
type CheckResult struct {
	Exists  bool
	IsValid bool
	Coupon  Coupon
}
