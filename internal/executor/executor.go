// Package executor carries out confirmed pending actions: transfers, payment
// requests and coupon creation.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/chatpay/chatpay/internal/apperr"
	"github.com/chatpay/chatpay/internal/coupons"
	"github.com/chatpay/chatpay/internal/identity"
	"github.com/chatpay/chatpay/internal/ledger"
	"github.com/chatpay/chatpay/internal/logging"
	"github.com/chatpay/chatpay/internal/messaging"
	"github.com/chatpay/chatpay/internal/metrics"
	"github.com/chatpay/chatpay/internal/pending"
	"github.com/chatpay/chatpay/internal/phone"
	"github.com/chatpay/chatpay/internal/transactions"
	"github.com/chatpay/chatpay/internal/wallet"
)

// Outcome describes a successfully executed action.
type Outcome struct {
	Kind         pending.Kind
	Amount       decimal.Decimal
	Token        string
	Counterparty string
	TxHash       string
	Coupon       *coupons.Coupon
	// Notified is false when the counterparty notification could not be delivered.
	Notified bool
}

// Options tunes the executor.
type Options struct {
	// TransferTimeout bounds the chain transfer call. Zero means no bound.
	TransferTimeout time.Duration
}

// Executor runs confirmed actions against the wallet, store and messaging collaborators.
type Executor struct {
	users   *identity.Service
	wallets *wallet.Service
	txs     transactions.Repository
	coupons *coupons.Service
	sender  messaging.Sender
	logger  *slog.Logger
	opts    Options
	now     func() time.Time
}

func New(users *identity.Service, wallets *wallet.Service, txs transactions.Repository, couponSvc *coupons.Service,
	sender messaging.Sender, logger *slog.Logger, opts Options) *Executor {
	return &Executor{
		users:   users,
		wallets: wallets,
		txs:     txs,
		coupons: couponSvc,
		sender:  sender,
		logger:  logger,
		opts:    opts,
		now:     time.Now,
	}
}

// Execute runs action on behalf of user. Errors are classified with apperr.
func (e *Executor) Execute(ctx context.Context, action pending.Action, user identity.User) (Outcome, error) {
	out, err := e.execute(ctx, action, user)
	result := "success"
	if err != nil {
		result = string(apperr.KindOf(err))
		if result == "" {
			result = "error"
		}
	}
	metrics.ExecutionsTotal.WithLabelValues(string(action.Kind), result).Inc()
	return out, err
}

func (e *Executor) execute(ctx context.Context, action pending.Action, user identity.User) (Outcome, error) {
	if user.Locked {
		return Outcome{}, apperr.Validation("Your account is locked. Please contact support.")
	}
	amount, err := decimal.NewFromString(action.Amount)
	if err != nil || !amount.IsPositive() {
		return Outcome{}, apperr.Validation("Invalid amount %q.", action.Amount)
	}

	switch action.Kind {
	case pending.KindSend:
		return e.send(ctx, action, user, amount)
	case pending.KindRequest:
		return e.request(ctx, action, user, amount)
	case pending.KindCoupon:
		return e.createCoupon(ctx, action, user, amount)
	default:
		return Outcome{}, apperr.Validation("Unsupported action %q.", action.Kind)
	}
}

func (e *Executor) send(ctx context.Context, action pending.Action, user identity.User, amount decimal.Decimal) (Outcome, error) {
	to, ok := phone.Normalize(action.Counterparty)
	if !ok {
		return Outcome{}, apperr.Validation("%s is not a valid phone number. Use the international format, e.g. +15551234567.", action.Counterparty)
	}
	if to == user.Phone {
		return Outcome{}, apperr.Validation("You cannot send money to yourself.")
	}

	if err := e.checkDailyLimit(ctx, user, amount); err != nil {
		return Outcome{}, err
	}

	from, err := e.wallets.GetOrCreate(ctx, user.ID, user.Phone)
	if err != nil {
		return Outcome{}, apperr.Execution(err, "Could not load your wallet.")
	}
	recipient, recipientWallet, err := e.resolveRecipient(ctx, to)
	if err != nil {
		return Outcome{}, apperr.Execution(err, "Could not set up the recipient's wallet.")
	}

	balance, err := e.wallets.Balance(ctx, from.Address, action.Token)
	if err != nil {
		return Outcome{}, apperr.Execution(err, "Could not read your balance.")
	}
	if balance.LessThan(amount) {
		return Outcome{}, apperr.InsufficientFunds("Insufficient balance. You need $%s more %s.",
			amount.Sub(balance).StringFixed(2), action.Token)
	}
	hasGas, err := e.wallets.HasGas(ctx, from.Address)
	if err != nil {
		return Outcome{}, apperr.Execution(err, "Could not check network fees.")
	}
	if !hasGas {
		return Outcome{}, apperr.InsufficientGas("Your wallet cannot cover network fees right now. Please top up gas and try again.")
	}

	now := e.now().UTC()
	sendRow := transactions.Transaction{
		ID:           uuid.NewString(),
		UserID:       user.ID,
		Direction:    transactions.DirectionSend,
		Token:        action.Token,
		Amount:       amount,
		Counterparty: to,
		Status:       transactions.StatusPending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	receiveRow := sendRow
	receiveRow.ID = uuid.NewString()
	receiveRow.UserID = recipient.ID
	receiveRow.Direction = transactions.DirectionReceive
	receiveRow.Counterparty = user.Phone
	for _, row := range []transactions.Transaction{sendRow, receiveRow} {
		if err := e.txs.Create(ctx, row); err != nil {
			return Outcome{}, apperr.Execution(err, "Could not record the transaction.")
		}
	}

	transferCtx := ctx
	if e.opts.TransferTimeout > 0 {
		var cancel context.CancelFunc
		transferCtx, cancel = context.WithTimeout(ctx, e.opts.TransferTimeout)
		defer cancel()
	}
	res, err := e.wallets.Transfer(transferCtx, from, recipientWallet.Address, action.Token, amount, action.ID)
	if err != nil && outcomeUnknown(err) {
		// the signer may have broadcast before the deadline; the rows stay pending
		// until the transfer is reconciled by its reference
		e.logger.Warn("transfer outcome unknown", "action_id", action.ID, "user_id", user.ID,
			"send_transaction_id", sendRow.ID, "receive_transaction_id", receiveRow.ID, "error", err)
		return Outcome{}, apperr.Execution(err, "Your transfer of $%s %s to %s was submitted but the network has not confirmed it yet. "+
			"Check your balance or history before trying again.", amount.StringFixed(2), action.Token, to)
	}
	if err != nil {
		for _, id := range []string{sendRow.ID, receiveRow.ID} {
			if markErr := e.txs.MarkFailed(ctx, id, err.Error()); markErr != nil {
				e.logger.Error("failed to mark transaction failed", "transaction_id", id, "error", markErr)
			}
		}
		e.logger.Error("transfer failed", "action_id", action.ID, "user_id", user.ID, "error", err)
		return Outcome{}, apperr.Execution(err, "Transaction failed: %s. Please try again.", failureReason(err))
	}

	// the transfer is final; bookkeeping failures below are logged, never returned
	settlement := transactions.Settlement{TxHash: res.TxHash, BlockNumber: res.BlockNumber, GasUsed: res.GasUsed}
	for _, id := range []string{sendRow.ID, receiveRow.ID} {
		if err := e.txs.MarkConfirmed(ctx, id, settlement); err != nil {
			e.logger.Error("failed to confirm transaction", "transaction_id", id, "tx_hash", res.TxHash, "error", err)
		}
	}
	e.logger.Info("transfer confirmed", "action_id", action.ID, "user_id", user.ID, "tx_hash", res.TxHash)

	notified := e.notify(ctx, to, fmt.Sprintf("You received $%s %s from %s.\nTx: %s",
		amount.StringFixed(2), action.Token, user.Phone, res.TxHash))
	return Outcome{
		Kind:         pending.KindSend,
		Amount:       amount,
		Token:        action.Token,
		Counterparty: to,
		TxHash:       res.TxHash,
		Notified:     notified,
	}, nil
}

func (e *Executor) request(ctx context.Context, action pending.Action, user identity.User, amount decimal.Decimal) (Outcome, error) {
	to, ok := phone.Normalize(action.Counterparty)
	if !ok {
		return Outcome{}, apperr.Validation("%s is not a valid phone number. Use the international format, e.g. +15551234567.", action.Counterparty)
	}
	now := e.now().UTC()
	row := transactions.Transaction{
		ID:           uuid.NewString(),
		UserID:       user.ID,
		Direction:    transactions.DirectionRequest,
		Token:        action.Token,
		Amount:       amount,
		Counterparty: to,
		Status:       transactions.StatusPending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := e.txs.Create(ctx, row); err != nil {
		e.logger.Error("failed to record payment request", "action_id", action.ID, "error", err)
	} else if err := e.txs.MarkConfirmed(ctx, row.ID, transactions.Settlement{}); err != nil {
		e.logger.Error("failed to confirm payment request", "transaction_id", row.ID, "error", err)
	}

	notified := e.notify(ctx, to, fmt.Sprintf("%s is requesting $%s %s from you. Reply \"send %s to %s\" to pay.",
		user.Phone, amount.StringFixed(2), action.Token, amount.String(), user.Phone))
	return Outcome{
		Kind:         pending.KindRequest,
		Amount:       amount,
		Token:        action.Token,
		Counterparty: to,
		Notified:     notified,
	}, nil
}

func (e *Executor) createCoupon(ctx context.Context, action pending.Action, user identity.User, amount decimal.Decimal) (Outcome, error) {
	if e.coupons == nil {
		return Outcome{}, apperr.Validation("Gift coupons are not available.")
	}
	creator, err := e.wallets.GetOrCreate(ctx, user.ID, user.Phone)
	if err != nil {
		return Outcome{}, apperr.Execution(err, "Could not load your wallet.")
	}
	balance, err := e.wallets.Balance(ctx, creator.Address, action.Token)
	if err != nil {
		return Outcome{}, apperr.Execution(err, "Could not read your balance.")
	}
	if balance.LessThan(amount) {
		return Outcome{}, apperr.InsufficientFunds("Insufficient balance. You need $%s more %s.",
			amount.Sub(balance).StringFixed(2), action.Token)
	}
	c, err := e.coupons.Create(ctx, coupons.CreateInput{
		Creator:   creator,
		CreatorID: user.ID,
		Amount:    amount,
		Token:     action.Token,
		Message:   action.Note,
	})
	if err != nil {
		return Outcome{}, err
	}
	e.logger.Info("coupon created", "user_id", user.ID, "code", c.Code, "tx_hash", c.TxHash)
	return Outcome{
		Kind:     pending.KindCoupon,
		Amount:   amount,
		Token:    action.Token,
		TxHash:   c.TxHash,
		Coupon:   &c,
		Notified: true,
	}, nil
}

func (e *Executor) checkDailyLimit(ctx context.Context, user identity.User, amount decimal.Decimal) error {
	if !user.DailyLimit.IsPositive() {
		return nil
	}
	now := e.now().UTC()
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	sent, err := e.txs.SumSent(ctx, user.ID, dayStart)
	if err != nil {
		return apperr.Execution(err, "Could not check your daily limit.")
	}
	if sent.Add(amount).GreaterThan(user.DailyLimit) {
		remaining := decimal.Max(user.DailyLimit.Sub(sent), decimal.Zero)
		return apperr.Validation("This exceeds your daily limit of $%s. You can send $%s more today.",
			user.DailyLimit.StringFixed(2), remaining.StringFixed(2))
	}
	return nil
}

// resolveRecipient returns the recipient's user and wallet, registering both when
// the number has never used the service.
func (e *Executor) resolveRecipient(ctx context.Context, to string) (identity.User, wallet.Wallet, error) {
	recipient, created, err := e.users.GetOrCreate(ctx, to)
	if err != nil {
		return identity.User{}, wallet.Wallet{}, err
	}
	w, err := e.wallets.GetOrCreate(ctx, recipient.ID, to)
	if err != nil {
		return identity.User{}, wallet.Wallet{}, err
	}
	if recipient.WalletAddress == "" {
		updated, err := e.users.AssignWallet(ctx, recipient, w.Address)
		switch {
		case err == nil:
			recipient = updated
		case !errors.Is(err, identity.ErrWalletImmutable):
			return identity.User{}, wallet.Wallet{}, err
		}
	}
	if created {
		e.logger.Info("recipient registered by incoming transfer", "user_id", recipient.ID, logging.Phone("phone", to))
	}
	return recipient, w, nil
}

func (e *Executor) notify(ctx context.Context, to, body string) bool {
	if e.sender == nil {
		return false
	}
	if _, err := e.sender.Send(ctx, to, body); err != nil {
		metrics.NotificationFailuresTotal.Inc()
		e.logger.Warn("counterparty notification failed", logging.Phone("to", to), "error", err)
		return false
	}
	return true
}

// outcomeUnknown reports whether the transfer call gave up without learning if
// the chain accepted it.
func outcomeUnknown(err error) bool {
	return errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
}

// failureReason maps a transfer error to a phrase safe to show the user. The raw
// error is logged by the caller.
func failureReason(err error) string {
	switch {
	case errors.Is(err, ledger.ErrInsufficientFunds):
		return "your balance is too low"
	case errors.Is(err, wallet.ErrTransferRejected):
		return "the network rejected the transfer"
	default:
		return "the network could not process it"
	}
}
