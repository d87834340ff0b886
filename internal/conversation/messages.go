package conversation

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/chatpay/chatpay/internal/coupons"
	"github.com/chatpay/chatpay/internal/identity"
	"github.com/chatpay/chatpay/internal/transactions"
)

const (
	helpMessage = "Here is what I can do:\n" +
		"• balance - show your balance\n" +
		"• account - show your wallet address\n" +
		"• send $10 to +15551234567 - send money\n" +
		"• request $10 from +15551234567 - ask for money\n" +
		"• history - recent transactions\n" +
		"• create coupon $5 [message] - make a gift coupon\n" +
		"• redeem CODE / check coupon CODE / my coupons\n" +
		"• change pin OLD NEW - change your PIN\n" +
		"• cancel - drop a pending action"

	unknownMessage         = "Sorry, I didn't understand that. Reply \"help\" to see what I can do."
	genericErrorMessage    = "Sorry, something went wrong on our side. Please try again in a moment."
	noPINMessage           = "You need to set a PIN first. Reply \"Set PIN 1234\" (use your own digits)."
	noPendingMessage       = "You have nothing waiting for confirmation."
	askPINMessage          = "Please reply with your PIN to confirm, or \"cancel\"."
	cancelledMessage       = "Cancelled. Nothing was sent."
	nothingToCancel        = "There is nothing to cancel."
	wrongPINMessage        = "❌ Incorrect PIN. The pending action was cancelled for your security. Please start again."
	pinChangedMessage      = "✅ Your PIN has been updated."
	changePINUsageMessage  = "To change your PIN, reply \"change pin OLD NEW\" with your current PIN first."
	wrongCurrentPINMessage = "❌ That is not your current PIN. Your PIN was not changed."
	lockedMessage          = "Your account is locked. Please contact support."
	noHistoryMessage       = "No transactions yet."
	noCouponsMessage       = "You have not created any coupons yet."
	couponUnknownMessage   = "Coupon %s does not exist."
)

func money(amount decimal.Decimal) string {
	return "$" + amount.StringFixed(2)
}

func moneyString(amount string) string {
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return amount
	}
	return money(d)
}

func sendPrompt(amount, token, to string, ttl time.Duration) string {
	return fmt.Sprintf("Send %s %s to %s?\nReply with your PIN to confirm, or \"cancel\". This expires in %s.",
		moneyString(amount), token, to, humanDuration(ttl))
}

func requestPrompt(amount, token, from string, ttl time.Duration) string {
	return fmt.Sprintf("Request %s %s from %s?\nReply with your PIN to confirm, or \"cancel\". This expires in %s.",
		moneyString(amount), token, from, humanDuration(ttl))
}

func couponPrompt(amount, token, message string, ttl time.Duration) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Create a gift coupon worth %s %s", moneyString(amount), token)
	if message != "" {
		fmt.Fprintf(&b, " with the message %q", message)
	}
	fmt.Fprintf(&b, "?\nReply with your PIN to confirm, or \"cancel\". This expires in %s.", humanDuration(ttl))
	return b.String()
}

func sendSuccess(amount decimal.Decimal, token, to, txHash, explorerURL string) string {
	return fmt.Sprintf("✅ Sent %s %s to %s.\nTx: %s", money(amount), token, to, txLink(txHash, explorerURL))
}

func requestSuccess(amount decimal.Decimal, token, from string, notified bool) string {
	msg := fmt.Sprintf("📨 Your request for %s %s was sent to %s.", money(amount), token, from)
	if !notified {
		msg = fmt.Sprintf("📨 Your request for %s %s to %s was recorded, but we could not message them. Let them know directly.", money(amount), token, from)
	}
	return msg
}

func couponCreated(c coupons.Coupon) string {
	return fmt.Sprintf("🎁 Coupon created!\nCode: %s\nValue: %s %s\nShare the code; anyone can claim it with \"redeem %s\".",
		c.Code, money(c.Amount), c.Token, c.Code)
}

func couponRedeemed(c coupons.Coupon, explorerURL string) string {
	msg := fmt.Sprintf("🎉 You redeemed %s %s.", money(c.Amount), c.Token)
	if c.Message != "" {
		msg += fmt.Sprintf("\nMessage: %s", c.Message)
	}
	if c.RedeemTxHash != "" {
		msg += "\nTx: " + txLink(c.RedeemTxHash, explorerURL)
	}
	return msg
}

func couponStatus(res coupons.CheckResult) string {
	c := res.Coupon
	state := "✅ valid and ready to redeem"
	switch {
	case c.Status == coupons.StatusRedeemed:
		state = "❌ already redeemed"
	case !res.IsValid:
		state = "❌ expired"
	}
	msg := fmt.Sprintf("Coupon %s: %s %s, %s.", c.Code, money(c.Amount), c.Token, state)
	if c.ExpiresAt != nil && res.IsValid {
		msg += fmt.Sprintf("\nExpires %s.", c.ExpiresAt.UTC().Format("2006-01-02 15:04 UTC"))
	}
	return msg
}

func couponList(list []coupons.Coupon) string {
	var b strings.Builder
	b.WriteString("Your coupons:")
	for _, c := range list {
		fmt.Fprintf(&b, "\n• %s %s %s (%s)", c.Code, money(c.Amount), c.Token, c.Status)
	}
	return b.String()
}

func balanceMessage(balance decimal.Decimal, token string, usd decimal.Decimal) string {
	msg := fmt.Sprintf("💰 Balance: %s %s", balance.StringFixed(2), token)
	if usd.IsPositive() {
		msg += fmt.Sprintf(" (≈ %s)", money(balance.Mul(usd)))
	}
	return msg
}

func accountMessage(u identity.User, address, network, explorerURL string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "👤 Account\nPhone: %s\nWallet: %s\nNetwork: %s", u.Phone, address, network)
	if u.DailyLimit.IsPositive() {
		fmt.Fprintf(&b, "\nDaily limit: %s", money(u.DailyLimit))
	}
	if explorerURL != "" {
		fmt.Fprintf(&b, "\nExplorer: %s/address/%s", explorerURL, address)
	}
	return b.String()
}

func historyMessage(txs []transactions.Transaction) string {
	var b strings.Builder
	b.WriteString("Recent transactions:")
	for _, tx := range txs {
		arrow := "↑"
		switch tx.Direction {
		case transactions.DirectionReceive:
			arrow = "↓"
		case transactions.DirectionRequest:
			arrow = "?"
		}
		fmt.Fprintf(&b, "\n%s %s %s %s %s · %s", arrow, tx.Direction, money(tx.Amount), tx.Token, tx.Counterparty, tx.Status)
	}
	return b.String()
}

func txLink(hash, explorerURL string) string {
	if explorerURL == "" || hash == "" {
		return hash
	}
	return explorerURL + "/tx/" + hash
}

func humanDuration(d time.Duration) string {
	if d >= time.Minute && d%time.Minute == 0 {
		m := int(d / time.Minute)
		if m == 1 {
			return "1 minute"
		}
		return fmt.Sprintf("%d minutes", m)
	}
	return d.String()
}
