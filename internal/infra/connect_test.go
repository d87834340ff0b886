package infra

import (
	"context"
	"errors"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chatpay/chatpay/internal/config"
	"github.com/chatpay/chatpay/internal/logging"
)

func TestRetryStopsOnSuccess(t *testing.T) {
	calls := 0
	err := retry(context.Background(), func(context.Context) error {
		calls++
		if calls < 2 {
			return errors.New("not yet")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestRetryHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := retry(ctx, func(context.Context) error { return errors.New("down") })
	assert.ErrorIs(t, err, context.Canceled)
}

func TestConnectRedisOnly(t *testing.T) {
	mr := miniredis.RunT(t)
	conns, err := Connect(context.Background(), config.Config{RedisURL: "redis://" + mr.Addr()}, logging.Discard())
	require.NoError(t, err)
	defer conns.Close()

	assert.Nil(t, conns.DB)
	require.NotNil(t, conns.Cache)
	assert.NoError(t, conns.Cache.Ping(context.Background()).Err())
}

func TestConnectRejectsBadURLs(t *testing.T) {
	_, err := NewRedisClient(context.Background(), "")
	assert.Error(t, err)
	_, err = NewPostgresPool(context.Background(), "")
	assert.Error(t, err)
	_, err = NewRedisClient(context.Background(), "not-a-url")
	assert.Error(t, err)
}
