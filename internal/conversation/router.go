// Package conversation routes inbound chat messages through onboarding, intent
// classification and the pending-action confirmation flow.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/chatpay/chatpay/internal/apperr"
	"github.com/chatpay/chatpay/internal/audit"
	"github.com/chatpay/chatpay/internal/coupons"
	"github.com/chatpay/chatpay/internal/executor"
	"github.com/chatpay/chatpay/internal/identity"
	"github.com/chatpay/chatpay/internal/intent"
	"github.com/chatpay/chatpay/internal/logging"
	"github.com/chatpay/chatpay/internal/metrics"
	"github.com/chatpay/chatpay/internal/onboarding"
	"github.com/chatpay/chatpay/internal/pending"
	"github.com/chatpay/chatpay/internal/phone"
	"github.com/chatpay/chatpay/internal/price"
	"github.com/chatpay/chatpay/internal/transactions"
	"github.com/chatpay/chatpay/internal/wallet"
)

const historyLimit = 5

// InboundMessage is what a chat channel delivers.
type InboundMessage struct {
	From      string `json:"from"`
	Body      string `json:"body"`
	MessageID string `json:"message_id"`
}

// OutboundMessage is a reply to deliver.
type OutboundMessage struct {
	To   string `json:"to"`
	Body string `json:"body"`
}

// Settings holds presentation and policy values.
type Settings struct {
	Token       string
	Network     string
	ExplorerURL string
	PendingTTL  time.Duration
}

// Deps are the collaborators a Router needs.
type Deps struct {
	Users        *identity.Service
	Wallets      *wallet.Service
	Onboarding   *onboarding.Sequencer
	Classifier   *intent.Classifier
	Pending      pending.Store
	Executor     *executor.Executor
	Coupons      *coupons.Service
	Transactions transactions.Repository
	Prices       price.Feed
	Audit        *audit.Recorder
	Logger       *slog.Logger
	Settings     Settings
}

// Router handles one inbound message at a time per user.
type Router struct {
	Deps
	locks *keyedMutex
}

func NewRouter(d Deps) *Router {
	if d.Settings.Token == "" {
		d.Settings.Token = "USDC"
	}
	if d.Settings.PendingTTL <= 0 {
		d.Settings.PendingTTL = pending.DefaultTTL
	}
	return &Router{Deps: d, locks: newKeyedMutex()}
}

type turn struct {
	user      identity.User
	messageID string
}

// HandleInbound processes a message and returns the replies. It never panics and
// always returns at least one reply.
func (r *Router) HandleInbound(ctx context.Context, msg InboundMessage) (out []OutboundMessage) {
	start := time.Now()
	to := msg.From
	defer func() {
		if rec := recover(); rec != nil {
			metrics.TurnPanicsTotal.Inc()
			r.Logger.Error("panic while handling message", logging.Phone("from", msg.From), "panic", rec, "stack", string(debug.Stack()))
			out = []OutboundMessage{{To: to, Body: genericErrorMessage}}
		}
		metrics.TurnLatency.Observe(time.Since(start).Seconds())
	}()

	number, ok := phone.Normalize(msg.From)
	if !ok {
		r.Logger.Warn("inbound message from invalid number", logging.Phone("from", msg.From))
		return []OutboundMessage{{To: msg.From, Body: genericErrorMessage}}
	}
	to = number

	unlock := r.locks.Lock(number)
	defer unlock()

	replies := r.handle(ctx, number, msg)
	if len(replies) == 0 {
		replies = []string{genericErrorMessage}
	}
	out = make([]OutboundMessage, 0, len(replies))
	for _, body := range replies {
		out = append(out, OutboundMessage{To: number, Body: body})
	}
	return out
}

func (r *Router) handle(ctx context.Context, number string, msg InboundMessage) []string {
	user, created, err := r.Users.GetOrCreate(ctx, number)
	if err != nil {
		r.Logger.Error("failed to load user", logging.Phone("phone", number), "error", err)
		return []string{genericErrorMessage}
	}
	if created {
		r.Audit.Record(ctx, user.ID, audit.ActionUserCreated, msg.MessageID, nil)
	}
	r.Audit.Record(ctx, user.ID, audit.ActionInbound, msg.MessageID, map[string]any{"length": len(msg.Body)})

	if onboarding.NeedsOnboarding(user) {
		metrics.InboundMessagesTotal.WithLabelValues("onboarding").Inc()
		replies, err := r.Onboarding.Handle(ctx, user, msg.Body, msg.MessageID)
		if err != nil {
			r.Logger.Error("onboarding failed", "user", user, "error", err)
			return []string{genericErrorMessage}
		}
		return replies
	}
	if user.Locked {
		metrics.InboundMessagesTotal.WithLabelValues("locked").Inc()
		return []string{lockedMessage}
	}

	t := turn{user: user, messageID: msg.MessageID}

	// a bare PIN answers the waiting action and never reaches the classifier
	if intent.IsBarePIN(msg.Body) {
		_, live, err := r.Pending.Get(ctx, user.ID)
		if err != nil {
			r.Logger.Error("failed to read pending action", "user", user, "error", err)
			return []string{genericErrorMessage}
		}
		if live {
			metrics.InboundMessagesTotal.WithLabelValues(string(intent.TypeConfirm)).Inc()
			return r.confirmWithPIN(ctx, t, strings.TrimSpace(msg.Body))
		}
	}

	in := r.Classifier.Parse(ctx, msg.Body)
	metrics.InboundMessagesTotal.WithLabelValues(string(in.Type)).Inc()

	switch in.Type {
	case intent.TypeSend:
		return r.stageSend(ctx, t, in)
	case intent.TypeRequest:
		return r.stageRequest(ctx, t, in)
	case intent.TypeCreateCoupon:
		return r.stageCoupon(ctx, t, in)
	case intent.TypeConfirm:
		return r.confirmWithoutPIN(ctx, t)
	case intent.TypeCancel:
		return r.cancel(ctx, t)
	case intent.TypeBalance:
		return r.balance(ctx, t)
	case intent.TypeAccount:
		return r.account(ctx, t)
	case intent.TypeHistory:
		return r.history(ctx, t)
	case intent.TypeHelp:
		return []string{helpMessage}
	case intent.TypeSetPIN:
		return r.setPIN(ctx, t, in)
	case intent.TypeRedeemCoupon:
		return r.redeemCoupon(ctx, t, in.Code)
	case intent.TypeCheckCoupon:
		return r.checkCoupon(ctx, t, in.Code)
	case intent.TypeListCoupons:
		return r.listCoupons(ctx, t)
	default:
		return []string{unknownMessage}
	}
}

func (r *Router) token(in intent.Intent, u identity.User) string {
	switch {
	case in.Token != "":
		return in.Token
	case u.DefaultToken != "":
		return u.DefaultToken
	default:
		return r.Settings.Token
	}
}

func (r *Router) stageSend(ctx context.Context, t turn, in intent.Intent) []string {
	if !t.user.HasPIN() {
		return []string{noPINMessage}
	}
	if in.Recipient == t.user.Phone {
		return []string{"You cannot send money to yourself."}
	}
	token := r.token(in, t.user)

	w, err := r.Wallets.GetOrCreate(ctx, t.user.ID, t.user.Phone)
	if err != nil {
		r.Logger.Error("failed to load wallet", "user", t.user, "error", err)
		return []string{genericErrorMessage}
	}
	balance, err := r.Wallets.Balance(ctx, w.Address, token)
	if err != nil {
		r.Logger.Error("failed to read balance", "user", t.user, "error", err)
		return []string{genericErrorMessage}
	}
	amount, _ := decimal.NewFromString(in.Amount)
	if balance.LessThan(amount) {
		return []string{fmt.Sprintf("Insufficient balance. You have %s %s and need %s more.",
			money(balance), token, money(amount.Sub(balance)))}
	}

	if err := r.stage(ctx, t, pending.KindSend, in.Amount, token, in.Recipient, ""); err != nil {
		return []string{genericErrorMessage}
	}
	return []string{sendPrompt(in.Amount, token, in.Recipient, r.Settings.PendingTTL)}
}

func (r *Router) stageRequest(ctx context.Context, t turn, in intent.Intent) []string {
	if !t.user.HasPIN() {
		return []string{noPINMessage}
	}
	if in.Recipient == t.user.Phone {
		return []string{"You cannot request money from yourself."}
	}
	token := r.token(in, t.user)
	if err := r.stage(ctx, t, pending.KindRequest, in.Amount, token, in.Recipient, ""); err != nil {
		return []string{genericErrorMessage}
	}
	return []string{requestPrompt(in.Amount, token, in.Recipient, r.Settings.PendingTTL)}
}

func (r *Router) stageCoupon(ctx context.Context, t turn, in intent.Intent) []string {
	if !t.user.HasPIN() {
		return []string{noPINMessage}
	}
	token := r.token(in, t.user)
	if err := r.stage(ctx, t, pending.KindCoupon, in.Amount, token, "", in.Message); err != nil {
		return []string{genericErrorMessage}
	}
	return []string{couponPrompt(in.Amount, token, in.Message, r.Settings.PendingTTL)}
}

func (r *Router) stage(ctx context.Context, t turn, kind pending.Kind, amount, token, counterparty, note string) error {
	a, err := r.Pending.Create(ctx, pending.Action{
		UserID:       t.user.ID,
		Kind:         kind,
		Amount:       amount,
		Token:        token,
		Counterparty: counterparty,
		Note:         note,
	})
	if err != nil {
		r.Logger.Error("failed to stage action", "user", t.user, "kind", kind, "error", err)
		return err
	}
	metrics.PendingActionsTotal.WithLabelValues("created").Inc()
	r.Audit.Record(ctx, t.user.ID, audit.ActionStaged, t.messageID, map[string]any{
		"action_id": a.ID,
		"kind":      string(kind),
		"amount":    amount,
		"token":     token,
	})
	return nil
}

func (r *Router) confirmWithoutPIN(ctx context.Context, t turn) []string {
	_, ok, err := r.Pending.Get(ctx, t.user.ID)
	if err != nil {
		r.Logger.Error("failed to read pending action", "user", t.user, "error", err)
		return []string{genericErrorMessage}
	}
	if !ok {
		return []string{noPendingMessage}
	}
	return []string{askPINMessage}
}

// confirmWithPIN takes the pending action out of the store before verifying the
// PIN, so a wrong PIN always discards it and two racing confirmations execute once.
func (r *Router) confirmWithPIN(ctx context.Context, t turn, p string) []string {
	action, ok, err := r.Pending.Confirm(ctx, t.user.ID, p)
	if err != nil {
		r.Logger.Error("failed to confirm pending action", "user", t.user, "error", err)
		return []string{genericErrorMessage}
	}
	if !ok {
		return []string{noPendingMessage}
	}
	if !r.Users.VerifyPIN(t.user, action.PIN) {
		metrics.PendingActionsTotal.WithLabelValues("auth_failed").Inc()
		r.Audit.Record(ctx, t.user.ID, audit.ActionAuthFailed, t.messageID, map[string]any{"action_id": action.ID})
		return []string{wrongPINMessage}
	}
	metrics.PendingActionsTotal.WithLabelValues("confirmed").Inc()
	r.Audit.Record(ctx, t.user.ID, audit.ActionConfirmed, t.messageID, map[string]any{"action_id": action.ID})

	out, err := r.Executor.Execute(ctx, action, t.user)
	if err != nil {
		r.Audit.Record(ctx, t.user.ID, audit.ActionFailed, t.messageID, map[string]any{
			"action_id": action.ID,
			"kind":      string(action.Kind),
			"error":     string(apperr.KindOf(err)),
		})
		return []string{errorReply(r.Logger, err)}
	}
	r.Audit.Record(ctx, t.user.ID, audit.ActionExecuted, t.messageID, map[string]any{
		"action_id": action.ID,
		"kind":      string(action.Kind),
		"tx_hash":   out.TxHash,
	})

	switch out.Kind {
	case pending.KindSend:
		return []string{sendSuccess(out.Amount, out.Token, out.Counterparty, out.TxHash, r.Settings.ExplorerURL)}
	case pending.KindRequest:
		return []string{requestSuccess(out.Amount, out.Token, out.Counterparty, out.Notified)}
	case pending.KindCoupon:
		return []string{couponCreated(*out.Coupon)}
	}
	return []string{genericErrorMessage}
}

func (r *Router) cancel(ctx context.Context, t turn) []string {
	removed, err := r.Pending.Cancel(ctx, t.user.ID)
	if err != nil {
		r.Logger.Error("failed to cancel pending action", "user", t.user, "error", err)
		return []string{genericErrorMessage}
	}
	if !removed {
		return []string{nothingToCancel}
	}
	metrics.PendingActionsTotal.WithLabelValues("cancelled").Inc()
	r.Audit.Record(ctx, t.user.ID, audit.ActionCancelled, t.messageID, nil)
	return []string{cancelledMessage}
}

func (r *Router) balance(ctx context.Context, t turn) []string {
	token := r.token(intent.Intent{}, t.user)
	w, err := r.Wallets.GetOrCreate(ctx, t.user.ID, t.user.Phone)
	if err != nil {
		r.Logger.Error("failed to load wallet", "user", t.user, "error", err)
		return []string{genericErrorMessage}
	}
	bal, err := r.Wallets.Balance(ctx, w.Address, token)
	if err != nil {
		r.Logger.Error("failed to read balance", "user", t.user, "error", err)
		return []string{"Sorry, I could not reach the network to read your balance. Please try again shortly."}
	}
	return []string{balanceMessage(bal, token, r.Prices.USDPrice(ctx, token))}
}

func (r *Router) account(ctx context.Context, t turn) []string {
	w, err := r.Wallets.GetOrCreate(ctx, t.user.ID, t.user.Phone)
	if err != nil {
		r.Logger.Error("failed to load wallet", "user", t.user, "error", err)
		return []string{genericErrorMessage}
	}
	network := t.user.DefaultNetwork
	if network == "" {
		network = r.Settings.Network
	}
	return []string{accountMessage(t.user, w.Address, network, r.Settings.ExplorerURL)}
}

func (r *Router) history(ctx context.Context, t turn) []string {
	txs, err := r.Transactions.ListByUser(ctx, t.user.ID, historyLimit)
	if err != nil {
		r.Logger.Error("failed to list transactions", "user", t.user, "error", err)
		return []string{genericErrorMessage}
	}
	if len(txs) == 0 {
		return []string{noHistoryMessage}
	}
	return []string{historyMessage(txs)}
}

// setPIN replaces the PIN only when the current one is quoted correctly.
func (r *Router) setPIN(ctx context.Context, t turn, in intent.Intent) []string {
	if t.user.HasPIN() {
		if in.OldPIN == "" {
			return []string{changePINUsageMessage}
		}
		if !r.Users.VerifyPIN(t.user, in.OldPIN) {
			r.Audit.Record(ctx, t.user.ID, audit.ActionAuthFailed, t.messageID, map[string]any{"operation": "change_pin"})
			return []string{wrongCurrentPINMessage}
		}
	}
	if _, err := r.Users.SetPIN(ctx, t.user, in.PIN); err != nil {
		r.Logger.Error("failed to set pin", "user", t.user, "error", err)
		return []string{genericErrorMessage}
	}
	r.Audit.Record(ctx, t.user.ID, audit.ActionPINSet, t.messageID, nil)
	return []string{pinChangedMessage}
}

func (r *Router) redeemCoupon(ctx context.Context, t turn, code string) []string {
	w, err := r.Wallets.GetOrCreate(ctx, t.user.ID, t.user.Phone)
	if err != nil {
		r.Logger.Error("failed to load wallet", "user", t.user, "error", err)
		return []string{genericErrorMessage}
	}
	c, err := r.Coupons.Redeem(ctx, code, t.user.ID, w)
	if err != nil {
		return []string{errorReply(r.Logger, err)}
	}
	r.Audit.Record(ctx, t.user.ID, audit.ActionCouponRedeem, t.messageID, map[string]any{"code": c.Code, "tx_hash": c.RedeemTxHash})
	return []string{couponRedeemed(c, r.Settings.ExplorerURL)}
}

func (r *Router) checkCoupon(ctx context.Context, _ turn, code string) []string {
	res, err := r.Coupons.Check(ctx, code)
	if err != nil {
		return []string{errorReply(r.Logger, err)}
	}
	if !res.Exists {
		return []string{fmt.Sprintf(couponUnknownMessage, strings.ToUpper(code))}
	}
	return []string{couponStatus(res)}
}

func (r *Router) listCoupons(ctx context.Context, t turn) []string {
	list, err := r.Coupons.ListByCreator(ctx, t.user.ID, 10)
	if err != nil {
		return []string{errorReply(r.Logger, err)}
	}
	if len(list) == 0 {
		return []string{noCouponsMessage}
	}
	return []string{couponList(list)}
}

// errorReply turns a classified error into its user message and logs anything else.
func errorReply(logger *slog.Logger, err error) string {
	if msg, ok := apperr.UserMessage(err); ok {
		if k := apperr.KindOf(err); k == apperr.KindExecution || k == apperr.KindCollaborator {
			logger.Error("action failed", "kind", k, "error", errors.Unwrap(err))
		}
		return msg
	}
	logger.Error("unexpected error", "error", err)
	return genericErrorMessage
}
