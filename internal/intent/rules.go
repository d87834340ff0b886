package intent

import (
	"regexp"
	"strings"

	"github.com/chatpay/chatpay/internal/phone"
)

var (
	confirmWords = map[string]struct{}{
		"yes": {}, "confirm": {}, "proceed": {}, "ok": {}, "yeah": {}, "yep": {}, "sure": {}, "accept": {},
	}
	cancelWords = map[string]struct{}{
		"no": {}, "cancel": {}, "stop": {}, "abort": {}, "decline": {}, "reject": {},
	}

	setPINPattern    = regexp.MustCompile(`(?i)^/?\s*(?:set\s*)?pin\s*(?:to\s+|[:=])?\s*(\d{4,6})$`)
	changePINPattern = regexp.MustCompile(`(?i)^/?\s*(?:change|set|update)?\s*pin\s+(?:from\s+)?(\d{4,6})\s+(?:to\s+)?(\d{4,6})$`)

	createCouponPattern = regexp.MustCompile(`(?i)^/?\s*(?:create|make|new)\s+(?:a\s+)?(?:gift\s+)?coupon\s+(?:for\s+)?\$?\s*(\d[\d,]*(?:\.\d+)?)\s*(usdc|usdt|dai)?\b\s*(.*)$`)
	redeemCouponPattern = regexp.MustCompile(`(?i)^/?\s*(?:redeem|claim)(?:\s+(?:gift\s+)?coupon)?\s+([a-z0-9]{4,16})$`)
	checkCouponPattern  = regexp.MustCompile(`(?i)^/?\s*check\s+(?:gift\s+)?coupon\s+([a-z0-9]{4,16})$`)
	listCouponsPattern  = regexp.MustCompile(`(?i)^/?\s*(?:my|list(?:\s+my)?|show(?:\s+my)?)?\s*(?:gift\s+)?coupons$`)
	couponCodePattern   = regexp.MustCompile(`^[A-Z0-9]{4,16}$`)

	balancePattern = regexp.MustCompile(`(?i)\b(balance|bal|how much (do i have|money|funds))\b`)
	accountPattern = regexp.MustCompile(`(?i)\b(account|address|wallet|my info|profile)\b`)
	historyPattern = regexp.MustCompile(`(?i)\b(history|transactions|recent|activity|statement)\b`)
	helpPattern    = regexp.MustCompile(`(?i)(^\s*/?(menu|commands|start|\?)\s*$|\bhelp\b)`)

	sendVerbPattern    = regexp.MustCompile(`(?i)\b(send|pay|transfer)\b`)
	requestVerbPattern = regexp.MustCompile(`(?i)\b(request|ask|charge|bill)\b`)
	tokenPattern       = regexp.MustCompile(`(?i)\b(usdc|usdt|dai)\b`)
	amountPattern      = regexp.MustCompile(`\$?\s*(\d[\d,]*(?:\.\d+)?)`)

	// plusPhonePattern allows spaces between digit groups once a leading + makes
	// the number unambiguous; barePhonePattern does not.
	plusPhonePattern = regexp.MustCompile(`\+\d[\d\s\-().]{6,}\d`)
	barePhonePattern = regexp.MustCompile(`\b\d[\d\-().]{6,}\d\b`)
)

// fastPath matches the exact confirm and cancel words.
func fastPath(text string) (Intent, bool) {
	word := strings.ToLower(strings.TrimSpace(text))
	if _, ok := confirmWords[word]; ok {
		return Intent{Type: TypeConfirm, Text: text}, true
	}
	if _, ok := cancelWords[word]; ok {
		return Intent{Type: TypeCancel, Text: text}, true
	}
	return Intent{}, false
}

// ParseSetPIN extracts the PIN from commands such as "Set PIN 1234" or "/pin 1234".
func ParseSetPIN(text string) (string, bool) {
	m := setPINPattern.FindStringSubmatch(strings.TrimSpace(text))
	if m == nil {
		return "", false
	}
	return m[1], true
}

// ParseChangePIN extracts the current and new PIN from "change pin 1234 5678"
// or "change pin from 1234 to 5678".
func ParseChangePIN(text string) (oldPIN, newPIN string, ok bool) {
	m := changePINPattern.FindStringSubmatch(strings.TrimSpace(text))
	if m == nil {
		return "", "", false
	}
	return m[1], m[2], true
}

// IsBarePIN reports whether text is nothing but 4 to 6 digits.
func IsBarePIN(text string) bool {
	text = strings.TrimSpace(text)
	if len(text) < 4 || len(text) > 6 {
		return false
	}
	for i := 0; i < len(text); i++ {
		if text[i] < '0' || text[i] > '9' {
			return false
		}
	}
	return true
}

// matchRules is the deterministic classifier. The first matching rule wins.
func matchRules(text string) Intent {
	trimmed := strings.TrimSpace(text)

	if in, ok := matchCoupon(trimmed); ok {
		in.Text = text
		return in
	}
	if oldPIN, newPIN, ok := ParseChangePIN(trimmed); ok {
		return Intent{Type: TypeSetPIN, PIN: newPIN, OldPIN: oldPIN, Text: text}
	}
	if p, ok := ParseSetPIN(trimmed); ok {
		return Intent{Type: TypeSetPIN, PIN: p, Text: text}
	}

	// transfers are tried before the keyword rules when a verb and a phone are
	// both present, so "pay +1555... for the wallet" is not read as an account query
	if sendVerbPattern.MatchString(trimmed) {
		if in, ok := matchTransfer(TypeSend, trimmed); ok {
			in.Text = text
			return in
		}
	}
	if requestVerbPattern.MatchString(trimmed) {
		if in, ok := matchTransfer(TypeRequest, trimmed); ok {
			in.Text = text
			return in
		}
	}

	switch {
	case balancePattern.MatchString(trimmed):
		return Intent{Type: TypeBalance, Text: text}
	case accountPattern.MatchString(trimmed):
		return Intent{Type: TypeAccount, Text: text}
	case historyPattern.MatchString(trimmed):
		return Intent{Type: TypeHistory, Text: text}
	case helpPattern.MatchString(trimmed):
		return Intent{Type: TypeHelp, Text: text}
	}
	return Unknown(text)
}

func matchCoupon(text string) (Intent, bool) {
	if m := createCouponPattern.FindStringSubmatch(text); m != nil {
		return Intent{Type: TypeCreateCoupon, Amount: m[1], Token: m[2], Message: m[3]}.Normalize()
	}
	if m := redeemCouponPattern.FindStringSubmatch(text); m != nil {
		return Intent{Type: TypeRedeemCoupon, Code: m[1]}.Normalize()
	}
	if m := checkCouponPattern.FindStringSubmatch(text); m != nil {
		return Intent{Type: TypeCheckCoupon, Code: m[1]}.Normalize()
	}
	if listCouponsPattern.MatchString(text) {
		return Intent{Type: TypeListCoupons}, true
	}
	return Intent{}, false
}

// matchTransfer pulls a recipient phone and an amount out of a send or request.
// The phone is cut from the text first so its digits are not read as the amount.
func matchTransfer(kind Type, text string) (Intent, bool) {
	raw, rest, ok := extractPhone(text)
	if !ok {
		return Intent{}, false
	}
	m := amountPattern.FindStringSubmatch(rest)
	if m == nil {
		return Intent{}, false
	}
	in := Intent{Type: kind, Amount: m[1], Recipient: raw}
	if t := tokenPattern.FindString(rest); t != "" {
		in.Token = t
	}
	return in.Normalize()
}

func extractPhone(text string) (raw, rest string, ok bool) {
	if loc := plusPhonePattern.FindStringIndex(text); loc != nil {
		return text[loc[0]:loc[1]], text[:loc[0]] + " " + text[loc[1]:], true
	}
	// the last bare number is the recipient in "send 20 to 5551234567"
	locs := barePhonePattern.FindAllStringIndex(text, -1)
	for i := len(locs) - 1; i >= 0; i-- {
		loc := locs[i]
		if _, valid := phone.Normalize(text[loc[0]:loc[1]]); valid {
			return text[loc[0]:loc[1]], text[:loc[0]] + " " + text[loc[1]:], true
		}
	}
	return "", "", false
}
