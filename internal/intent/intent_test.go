package intent

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chatpay/chatpay/internal/llm"
	"github.com/chatpay/chatpay/internal/logging"
)

type countingCompleter struct {
	calls atomic.Int32
	reply string
	err   error
}

func (c *countingCompleter) Complete(context.Context, string, string) (string, error) {
	c.calls.Add(1)
	return c.reply, c.err
}

func TestConfirmAndCancelWordsSkipLLM(t *testing.T) {
	completer := &countingCompleter{reply: `{"type":"balance"}`}
	c := NewClassifier(completer, logging.Discard())
	ctx := context.Background()

	for _, text := range []string{"yes", "CONFIRM", " yep ", "Ok", "sure", "accept", "proceed", "yeah"} {
		assert.Equal(t, TypeConfirm, c.Parse(ctx, text).Type, text)
	}
	for _, text := range []string{"no", "Cancel", " STOP", "abort", "decline", "reject"} {
		assert.Equal(t, TypeCancel, c.Parse(ctx, text).Type, text)
	}
	assert.Zero(t, completer.calls.Load())
}

func TestConfirmWordsMustMatchExactly(t *testing.T) {
	c := NewClassifier(nil, logging.Discard())
	assert.Equal(t, TypeUnknown, c.Parse(context.Background(), "yes please do it").Type)
}

func TestLLMReplyIsUsedWhenValid(t *testing.T) {
	completer := &countingCompleter{reply: "```json\n{\"type\":\"send\",\"amount\":\"12.50\",\"recipient\":\"+1 (555) 123-4567\",\"token\":\"usdc\"}\n```"}
	c := NewClassifier(completer, logging.Discard())

	in := c.Parse(context.Background(), "yo can you shoot twelve fifty to my brother 5551234567")
	assert.Equal(t, TypeSend, in.Type)
	assert.Equal(t, "12.5", in.Amount)
	assert.Equal(t, "+15551234567", in.Recipient)
	assert.Equal(t, "USDC", in.Token)
	assert.Equal(t, int32(1), completer.calls.Load())
}

func TestGarbageLLMOutputFallsBackToRules(t *testing.T) {
	replies := []string{
		"",
		"not json at all",
		`{"type":`,
		`{"type":"transfer_everything"}`,
		`{"type":"send","amount":"-5","recipient":"+15551234567"}`,
		`{"type":"send","amount":"10","recipient":"bob"}`,
		`{"type":"send","amount":10,"recipient":"+15551234567"}`,
		`{"type":"setPin","pin":"12"}`,
		`{"type":"redeemCoupon","code":"!!"}`,
		`[1,2,3]`,
		`null`,
		`{"type":"send","amount":"1.0000001","recipient":"+15551234567"}`,
		`{"type":"balance","token":"DOGE"}`,
	}
	for _, reply := range replies {
		c := NewClassifier(&countingCompleter{reply: reply}, logging.Discard())
		var in Intent
		require.NotPanics(t, func() {
			in = c.Parse(context.Background(), "Send $10 to +15551234567")
		}, reply)
		assert.Equal(t, TypeSend, in.Type, reply)
		assert.Equal(t, "10", in.Amount, reply)

		in = c.Parse(context.Background(), "blorp")
		assert.Equal(t, TypeUnknown, in.Type, reply)
		assert.Equal(t, "blorp", in.Text, reply)
	}
}

func TestLLMErrorsFallBack(t *testing.T) {
	for _, err := range []error{errors.New("timeout"), llm.ErrCircuitOpen, context.DeadlineExceeded} {
		c := NewClassifier(&countingCompleter{err: err}, logging.Discard())
		assert.Equal(t, TypeBalance, c.Parse(context.Background(), "what's my balance?").Type)
	}
}

func TestLLMUnknownFallsThroughToRules(t *testing.T) {
	c := NewClassifier(&countingCompleter{reply: `{"type":"unknown"}`}, logging.Discard())
	assert.Equal(t, TypeHistory, c.Parse(context.Background(), "show my history").Type)
}

func TestLLMSetPINNeedsExplicitCommand(t *testing.T) {
	completer := &countingCompleter{reply: `{"type":"setPin","pin":"9999"}`}
	c := NewClassifier(completer, logging.Discard())
	ctx := context.Background()

	assert.Equal(t, TypeUnknown, c.Parse(ctx, "9999").Type)
	assert.Equal(t, TypeUnknown, c.Parse(ctx, "my lucky number is 9999").Type)

	in := c.Parse(ctx, "change pin 1234 9999")
	assert.Equal(t, Intent{Type: TypeSetPIN, PIN: "9999", OldPIN: "1234", Text: "change pin 1234 9999"}, in)
}

func TestRules(t *testing.T) {
	c := NewClassifier(nil, logging.Discard())
	ctx := context.Background()

	tests := []struct {
		text string
		want Intent
	}{
		{"Send $10 to +15551234567", Intent{Type: TypeSend, Amount: "10", Recipient: "+15551234567"}},
		{"pay 2.5 usdc to +44 20 7946 0958", Intent{Type: TypeSend, Amount: "2.5", Recipient: "+442079460958", Token: "USDC"}},
		{"transfer 1,000 to 5551234567", Intent{Type: TypeSend, Amount: "1000", Recipient: "+15551234567"}},
		{"/send 3 +15551234567", Intent{Type: TypeSend, Amount: "3", Recipient: "+15551234567"}},
		{"request $20 from +15551234567", Intent{Type: TypeRequest, Amount: "20", Recipient: "+15551234567"}},
		{"ask +15551234567 for 7.25", Intent{Type: TypeRequest, Amount: "7.25", Recipient: "+15551234567"}},
		{"balance", Intent{Type: TypeBalance}},
		{"/balance", Intent{Type: TypeBalance}},
		{"What's my BAL", Intent{Type: TypeBalance}},
		{"my address", Intent{Type: TypeAccount}},
		{"wallet", Intent{Type: TypeAccount}},
		{"history", Intent{Type: TypeHistory}},
		{"recent transactions", Intent{Type: TypeHistory}},
		{"help", Intent{Type: TypeHelp}},
		{"/start", Intent{Type: TypeHelp}},
		{"Set PIN 1234", Intent{Type: TypeSetPIN, PIN: "1234"}},
		{"/setpin 654321", Intent{Type: TypeSetPIN, PIN: "654321"}},
		{"set pin to 9876", Intent{Type: TypeSetPIN, PIN: "9876"}},
		{"change pin 1234 5678", Intent{Type: TypeSetPIN, PIN: "5678", OldPIN: "1234"}},
		{"Change PIN from 1234 to 567890", Intent{Type: TypeSetPIN, PIN: "567890", OldPIN: "1234"}},
		{"create coupon $5 happy birthday", Intent{Type: TypeCreateCoupon, Amount: "5", Message: "happy birthday"}},
		{"create coupon 5.00", Intent{Type: TypeCreateCoupon, Amount: "5"}},
		{"redeem abcd2345", Intent{Type: TypeRedeemCoupon, Code: "ABCD2345"}},
		{"redeem coupon ABCD2345", Intent{Type: TypeRedeemCoupon, Code: "ABCD2345"}},
		{"check coupon ABCD2345", Intent{Type: TypeCheckCoupon, Code: "ABCD2345"}},
		{"my coupons", Intent{Type: TypeListCoupons}},
	}
	for _, tt := range tests {
		got := c.Parse(ctx, tt.text)
		tt.want.Text = tt.text
		assert.Equal(t, tt.want, got, tt.text)
	}
}

func TestRulesUnknown(t *testing.T) {
	c := NewClassifier(nil, logging.Discard())
	for _, text := range []string{"", "1234", "send money", "send $10", "send $0 to +15551234567", "hello there", "set pin 12"} {
		got := c.Parse(context.Background(), text)
		assert.Equal(t, TypeUnknown, got.Type, text)
		assert.Equal(t, text, got.Text)
	}
}

func TestParseSetPIN(t *testing.T) {
	p, ok := ParseSetPIN("Set PIN 1234")
	assert.True(t, ok)
	assert.Equal(t, "1234", p)

	_, ok = ParseSetPIN("set pin 1234567")
	assert.False(t, ok)
	_, ok = ParseSetPIN("hi")
	assert.False(t, ok)
}

func TestParseChangePIN(t *testing.T) {
	oldPIN, newPIN, ok := ParseChangePIN("change pin 1234 to 5678")
	assert.True(t, ok)
	assert.Equal(t, "1234", oldPIN)
	assert.Equal(t, "5678", newPIN)

	_, _, ok = ParseChangePIN("set pin 1234")
	assert.False(t, ok)
	_, _, ok = ParseChangePIN("change pin 12 5678")
	assert.False(t, ok)
}

func TestIsBarePIN(t *testing.T) {
	assert.True(t, IsBarePIN("1234"))
	assert.True(t, IsBarePIN(" 123456 "))
	assert.False(t, IsBarePIN("123"))
	assert.False(t, IsBarePIN("1234567"))
	assert.False(t, IsBarePIN("12a4"))
}

func TestNormalizeAmount(t *testing.T) {
	for in, want := range map[string]string{"10": "10", "$10.50": "10.5", "0.000001": "0.000001", "1,250.00": "1250"} {
		got, ok := NormalizeAmount(in)
		assert.True(t, ok, in)
		assert.Equal(t, want, got, in)
	}
	for _, in := range []string{"", "0", "-1", "abc", "0.0000001", "1e3x"} {
		_, ok := NormalizeAmount(in)
		assert.False(t, ok, in)
	}
}
