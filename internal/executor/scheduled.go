package executor

import (
	"context"
	"fmt"

	"github.com/chatpay/chatpay/internal/pending"
	"github.com/chatpay/chatpay/internal/scheduled"
)

// RunScheduled executes a due scheduled send as if its owner had confirmed it.
func (e *Executor) RunScheduled(ctx context.Context, in scheduled.Intent) error {
	owner, err := e.users.FindByID(ctx, in.OwnerID)
	if err != nil {
		return fmt.Errorf("load owner: %w", err)
	}
	action := pending.Action{
		ID:           "scheduled:" + in.ID,
		UserID:       owner.ID,
		Kind:         pending.KindSend,
		Amount:       in.Amount.String(),
		Token:        in.Token,
		Counterparty: in.Recipient,
		CreatedAt:    in.CreatedAt,
		ExpiresAt:    in.ScheduledFor,
	}
	out, err := e.Execute(ctx, action, owner)
	if err != nil {
		return err
	}
	e.notify(ctx, owner.Phone, fmt.Sprintf("Your scheduled payment of $%s %s to %s went through.\nTx: %s",
		out.Amount.StringFixed(2), out.Token, out.Counterparty, out.TxHash))
	return nil
}
