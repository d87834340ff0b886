package intent

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"

	"github.com/chatpay/chatpay/internal/llm"
	"github.com/chatpay/chatpay/internal/metrics"
)

const systemPrompt = `You classify messages sent to a stablecoin payment assistant.
Reply with a single JSON object and nothing else, shaped as:
{"type": "...", "amount": "...", "recipient": "...", "token": "...", "pin": "...", "old_pin": "...", "code": "...", "message": "..."}
"type" is one of: send, request, balance, account, history, help, confirm, cancel,
setPin, createCoupon, redeemCoupon, checkCoupon, listCoupons, unknown.
send and request need "amount" (decimal string, no currency symbol) and "recipient" (phone number with country code).
setPin is only for messages that mention a PIN change; it needs "pin" (the new PIN, 4 to 6 digits)
and "old_pin" when the current PIN is quoted. A message of bare digits is not setPin. createCoupon needs "amount" and may carry "message".
redeemCoupon and checkCoupon need "code". "token" is optional: USDC, USDT or DAI.
Omit fields that do not apply. If unsure, use {"type": "unknown"}.`

// Classifier resolves message text to an Intent. It never fails.
type Classifier struct {
	completer llm.Completer
	logger    *slog.Logger
}

// NewClassifier builds a classifier. completer may be nil, in which case only the
// word lists and deterministic rules are used.
func NewClassifier(completer llm.Completer, logger *slog.Logger) *Classifier {
	return &Classifier{completer: completer, logger: logger}
}

// Parse classifies text: confirm and cancel words first, then the LLM when
// configured, then the deterministic rules.
func (c *Classifier) Parse(ctx context.Context, text string) Intent {
	if in, ok := fastPath(text); ok {
		return in
	}
	if c.completer != nil {
		if in, ok := c.fromLLM(ctx, text); ok {
			return in
		}
	}
	return matchRules(text)
}

func (c *Classifier) fromLLM(ctx context.Context, text string) (Intent, bool) {
	reply, err := c.completer.Complete(ctx, systemPrompt, text)
	if err != nil {
		outcome := "fallback"
		if errors.Is(err, llm.ErrCircuitOpen) {
			outcome = "breaker_open"
		}
		metrics.ClassifierOutcomesTotal.WithLabelValues(outcome).Inc()
		c.logger.Warn("llm classification failed", "error", err)
		return Intent{}, false
	}

	in, err := decodeReply(reply)
	if err != nil {
		metrics.ClassifierOutcomesTotal.WithLabelValues("fallback").Inc()
		c.logger.Warn("llm reply rejected", "error", err)
		return Intent{}, false
	}
	// an unknown verdict still gets a chance with the rules
	if in.Type == TypeUnknown {
		metrics.ClassifierOutcomesTotal.WithLabelValues("fallback").Inc()
		return Intent{}, false
	}
	// PIN changes are taken from the explicit command only; the model may read a
	// bare PIN typed to confirm an action as a new PIN
	if in.Type == TypeSetPIN {
		rules := matchRules(text)
		if rules.Type != TypeSetPIN {
			metrics.ClassifierOutcomesTotal.WithLabelValues("fallback").Inc()
			return Intent{}, false
		}
		metrics.ClassifierOutcomesTotal.WithLabelValues("ok").Inc()
		return rules, true
	}
	metrics.ClassifierOutcomesTotal.WithLabelValues("ok").Inc()
	in.Text = text
	return in, true
}

var errInvalidReply = errors.New("reply does not match the intent schema")

func decodeReply(reply string) (Intent, error) {
	reply = strings.TrimSpace(reply)
	reply = strings.TrimPrefix(reply, "```json")
	reply = strings.TrimPrefix(reply, "```")
	reply = strings.TrimSuffix(reply, "```")

	var raw Intent
	dec := json.NewDecoder(strings.NewReader(reply))
	if err := dec.Decode(&raw); err != nil {
		return Intent{}, err
	}
	in, ok := raw.Normalize()
	if !ok {
		return Intent{}, errInvalidReply
	}
	return in, nil
}
