package price

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/chatpay/chatpay/internal/logging"
)

func TestStablecoinsAreOneDollar(t *testing.T) {
	feed := NewCoinGecko("http://127.0.0.1:1", logging.Discard())
	for _, s := range []string{"USDC", "usdt", "DAI"} {
		assert.True(t, feed.USDPrice(context.Background(), s).Equal(decimal.NewFromInt(1)), s)
	}
	assert.True(t, Static{}.USDPrice(context.Background(), "usdc").Equal(decimal.NewFromInt(1)))
}

func TestCoinGeckoCachesQuotes(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		assert.Equal(t, "/api/v3/simple/price", r.URL.Path)
		assert.Equal(t, "ethereum", r.URL.Query().Get("ids"))
		_, _ = w.Write([]byte(`{"ethereum":{"usd":3120.55}}`))
	}))
	defer srv.Close()

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	feed := NewCoinGecko(srv.URL, logging.Discard())
	feed.now = func() time.Time { return now }

	assert.Equal(t, "3120.55", feed.USDPrice(context.Background(), "eth").String())
	assert.Equal(t, "3120.55", feed.USDPrice(context.Background(), "ETH").String())
	assert.Equal(t, int32(1), hits.Load())

	now = now.Add(2 * time.Minute)
	feed.USDPrice(context.Background(), "ETH")
	assert.Equal(t, int32(2), hits.Load())
}

func TestCoinGeckoDegradesToZero(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	feed := NewCoinGecko(srv.URL, logging.Discard())
	assert.True(t, feed.USDPrice(context.Background(), "ETH").IsZero())
	assert.True(t, feed.USDPrice(context.Background(), "UNKNOWN").IsZero())
}
