package price

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

const defaultTTL = time.Minute

var stablecoins = map[string]bool{"USDC": true, "USDT": true, "DAI": true}

var coinIDs = map[string]string{
	"ETH":   "ethereum",
	"BTC":   "bitcoin",
	"MATIC": "matic-network",
	"POL":   "matic-network",
}

// Feed quotes token prices in USD.
type Feed interface {
	USDPrice(ctx context.Context, symbol string) decimal.Decimal
}

// Static returns fixed prices and 1 for stablecoins. Used when no feed is configured.
type Static map[string]decimal.Decimal

func (s Static) USDPrice(_ context.Context, symbol string) decimal.Decimal {
	symbol = strings.ToUpper(symbol)
	if stablecoins[symbol] {
		return decimal.NewFromInt(1)
	}
	return s[symbol]
}

type quote struct {
	value   decimal.Decimal
	fetched time.Time
}

// CoinGecko reads spot prices from the CoinGecko simple price endpoint and caches them briefly.
// Lookups never fail: an unreachable feed yields zero so callers can still render a reply.
type CoinGecko struct {
	httpClient *http.Client
	baseURL    string
	ttl        time.Duration
	logger     *slog.Logger
	now        func() time.Time

	mu    sync.Mutex
	cache map[string]quote
}

func NewCoinGecko(baseURL string, logger *slog.Logger) *CoinGecko {
	return &CoinGecko{
		httpClient: &http.Client{Timeout: 3 * time.Second},
		baseURL:    strings.TrimRight(baseURL, "/"),
		ttl:        defaultTTL,
		logger:     logger,
		now:        time.Now,
		cache:      make(map[string]quote),
	}
}

func (c *CoinGecko) USDPrice(ctx context.Context, symbol string) decimal.Decimal {
	symbol = strings.ToUpper(symbol)
	if stablecoins[symbol] {
		return decimal.NewFromInt(1)
	}
	id, ok := coinIDs[symbol]
	if !ok {
		return decimal.Zero
	}

	c.mu.Lock()
	q, hit := c.cache[symbol]
	c.mu.Unlock()
	if hit && c.now().Sub(q.fetched) < c.ttl {
		return q.value
	}

	value, err := c.fetch(ctx, id)
	if err != nil {
		c.logger.Warn("price lookup failed", "symbol", symbol, "error", err)
		if hit {
			return q.value
		}
		return decimal.Zero
	}
	c.mu.Lock()
	c.cache[symbol] = quote{value: value, fetched: c.now()}
	c.mu.Unlock()
	return value
}

func (c *CoinGecko) fetch(ctx context.Context, id string) (decimal.Decimal, error) {
	q := url.Values{}
	q.Set("ids", id)
	q.Set("vs_currencies", "usd")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/v3/simple/price?"+q.Encode(), nil)
	if err != nil {
		return decimal.Zero, err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return decimal.Zero, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return decimal.Zero, fmt.Errorf("price feed status %d", resp.StatusCode)
	}

	var body map[string]map[string]json.Number
	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	if err := dec.Decode(&body); err != nil {
		return decimal.Zero, fmt.Errorf("decode price: %w", err)
	}
	raw, ok := body[id]["usd"]
	if !ok {
		return decimal.Zero, fmt.Errorf("no usd price for %s", id)
	}
	return decimal.NewFromString(raw.String())
}
