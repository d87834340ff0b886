package audit

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chatpay/chatpay/internal/logging"
)

type failingRepo struct{ Repository }

func (failingRepo) Log(context.Context, Entry) error { return errors.New("db down") }

func TestRecorderStoresEntries(t *testing.T) {
	repo := NewMemoryRepository()
	rec := NewRecorder(repo, logging.Discard())
	ctx := context.Background()

	rec.Record(ctx, "u1", ActionPINSet, "SM1", nil)
	rec.Record(ctx, "u2", ActionInbound, "SM2", map[string]any{"intent": "balance"})
	rec.Record(ctx, "u1", ActionStaged, "SM3", map[string]any{"kind": "send"})

	all, err := repo.List(ctx, "", 10)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, ActionStaged, all[0].Action, "newest first")

	mine, err := repo.List(ctx, "u1", 10)
	require.NoError(t, err)
	require.Len(t, mine, 2)
	assert.Equal(t, "SM1", mine[1].ChannelMessageID)
}

func TestRecorderSwallowsErrors(t *testing.T) {
	rec := NewRecorder(failingRepo{}, logging.Discard())
	assert.NotPanics(t, func() {
		rec.Record(context.Background(), "u1", ActionInbound, "", nil)
	})
}
