// Package intent turns raw chat text into one of a closed set of typed intents.
package intent

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/chatpay/chatpay/internal/phone"
	"github.com/chatpay/chatpay/internal/pin"
)

// Type tags an Intent.
type Type string

const (
	TypeSend         Type = "send"
	TypeRequest      Type = "request"
	TypeBalance      Type = "balance"
	TypeAccount      Type = "account"
	TypeHistory      Type = "history"
	TypeHelp         Type = "help"
	TypeConfirm      Type = "confirm"
	TypeCancel       Type = "cancel"
	TypeSetPIN       Type = "setPin"
	TypeCreateCoupon Type = "createCoupon"
	TypeRedeemCoupon Type = "redeemCoupon"
	TypeCheckCoupon  Type = "checkCoupon"
	TypeListCoupons  Type = "listCoupons"
	TypeUnknown      Type = "unknown"
)

// maxAmountDecimals matches the smallest unit of a 6-decimal stablecoin.
const maxAmountDecimals = 6

var knownTypes = map[Type]struct{}{
	TypeSend: {}, TypeRequest: {}, TypeBalance: {}, TypeAccount: {}, TypeHistory: {},
	TypeHelp: {}, TypeConfirm: {}, TypeCancel: {}, TypeSetPIN: {}, TypeCreateCoupon: {},
	TypeRedeemCoupon: {}, TypeCheckCoupon: {}, TypeListCoupons: {}, TypeUnknown: {},
}

var knownTokens = map[string]struct{}{"USDC": {}, "USDT": {}, "DAI": {}}

// Intent is the classified meaning of one message. Only the fields relevant to
// Type are populated.
type Intent struct {
	Type      Type   `json:"type"`
	Amount    string `json:"amount,omitempty"`
	Recipient string `json:"recipient,omitempty"`
	Token     string `json:"token,omitempty"`
	PIN       string `json:"pin,omitempty"`
	// OldPIN is the current PIN a user quotes when changing it.
	OldPIN  string `json:"old_pin,omitempty"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
	// Text is the original message, kept for unknown intents.
	Text string `json:"-"`
}

// Unknown builds the fallback intent for text.
func Unknown(text string) Intent {
	return Intent{Type: TypeUnknown, Text: text}
}

// Normalize validates the fields required by the intent's type and returns a
// canonical copy: amounts as plain decimal strings, phones in E.164, codes upper-cased.
func (i Intent) Normalize() (Intent, bool) {
	if _, ok := knownTypes[i.Type]; !ok {
		return Intent{}, false
	}
	out := Intent{Type: i.Type, Text: i.Text}

	if i.Token != "" {
		token := strings.ToUpper(strings.TrimSpace(i.Token))
		if _, ok := knownTokens[token]; !ok {
			return Intent{}, false
		}
		out.Token = token
	}

	switch i.Type {
	case TypeSend, TypeRequest:
		amount, ok := NormalizeAmount(i.Amount)
		if !ok {
			return Intent{}, false
		}
		recipient, ok := phone.Normalize(i.Recipient)
		if !ok {
			return Intent{}, false
		}
		out.Amount, out.Recipient = amount, recipient
	case TypeCreateCoupon:
		amount, ok := NormalizeAmount(i.Amount)
		if !ok {
			return Intent{}, false
		}
		out.Amount = amount
		out.Message = strings.TrimSpace(i.Message)
	case TypeRedeemCoupon, TypeCheckCoupon:
		code := strings.ToUpper(strings.TrimSpace(i.Code))
		if !couponCodePattern.MatchString(code) {
			return Intent{}, false
		}
		out.Code = code
	case TypeSetPIN:
		if !pin.ValidFormat(i.PIN) {
			return Intent{}, false
		}
		if i.OldPIN != "" && !pin.ValidFormat(i.OldPIN) {
			return Intent{}, false
		}
		out.PIN, out.OldPIN = i.PIN, i.OldPIN
	}
	return out, true
}

// NormalizeAmount parses a positive amount with at most six decimals.
func NormalizeAmount(raw string) (string, bool) {
	raw = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(raw), "$"))
	raw = strings.ReplaceAll(raw, ",", "")
	if raw == "" {
		return "", false
	}
	d, err := decimal.NewFromString(raw)
	if err != nil || !d.IsPositive() || d.Exponent() < -maxAmountDecimals {
		return "", false
	}
	return d.String(), true
}
