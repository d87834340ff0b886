package wallet

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chatpay/chatpay/internal/ledger"
	"github.com/chatpay/chatpay/internal/logging"
)

const testMnemonic = "test test test test test test test test test test test junk"

func newTestService(t *testing.T) (*Service, *SimulatedChain) {
	t.Helper()
	deriver, err := NewDeriver(testMnemonic)
	require.NoError(t, err)
	chain := NewSimulatedChain(ledger.NewInMemory(), SimulatedChainConfig{Token: "USDC"})
	return NewService(NewMemoryRepository(), deriver, chain, logging.Discard()), chain
}

func TestDeriverKnownAddresses(t *testing.T) {
	deriver, err := NewDeriver(testMnemonic)
	require.NoError(t, err)

	addr0, err := deriver.Address(0)
	require.NoError(t, err)
	assert.Equal(t, "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266", addr0)

	addr1, err := deriver.Address(1)
	require.NoError(t, err)
	assert.Equal(t, "0x70997970C51812dc3A010C7d01b50e0d17dc79C8", addr1)
}

func TestDeriverRejectsBadMnemonic(t *testing.T) {
	_, err := NewDeriver("not a real seed phrase")
	assert.ErrorIs(t, err, ErrInvalidMnemonic)

	mnemonic, err := NewRandomMnemonic()
	require.NoError(t, err)
	_, err = NewDeriver(mnemonic)
	require.NoError(t, err)
}

func TestServiceGetOrCreateIsIdempotent(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	userID := uuid.NewString()

	first, err := svc.GetOrCreate(ctx, userID, "+15550000001")
	require.NoError(t, err)
	second, err := svc.GetOrCreate(ctx, userID, "+15550000001")
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.True(t, IsAddress(first.Address))

	other, err := svc.GetOrCreate(ctx, uuid.NewString(), "+15550000002")
	require.NoError(t, err)
	assert.NotEqual(t, first.Address, other.Address)
}

func TestServiceGetOrCreateConcurrent(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	userID := uuid.NewString()

	var wg sync.WaitGroup
	addrs := make([]string, 8)
	for i := range addrs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			w, err := svc.GetOrCreate(ctx, userID, "+15550000001")
			assert.NoError(t, err)
			addrs[i] = w.Address
		}(i)
	}
	wg.Wait()
	for _, a := range addrs {
		assert.Equal(t, addrs[0], a)
	}
}

// flakyChain fails its first Provision call.
type flakyChain struct {
	*SimulatedChain
	failures int
}

func (c *flakyChain) Provision(ctx context.Context, w Wallet) error {
	if c.failures > 0 {
		c.failures--
		return errors.New("rpc timeout")
	}
	return c.SimulatedChain.Provision(ctx, w)
}

func TestServiceRetriesFailedProvisioning(t *testing.T) {
	deriver, err := NewDeriver(testMnemonic)
	require.NoError(t, err)
	chain := &flakyChain{
		SimulatedChain: NewSimulatedChain(ledger.NewInMemory(), SimulatedChainConfig{Token: "USDC", InitialBalance: decimal.NewFromInt(5)}),
		failures:       1,
	}
	svc := NewService(NewMemoryRepository(), deriver, chain, logging.Discard())
	ctx := context.Background()
	userID := uuid.NewString()

	_, err = svc.GetOrCreate(ctx, userID, "+15550000001")
	require.ErrorContains(t, err, "rpc timeout")

	w, err := svc.GetOrCreate(ctx, userID, "+15550000001")
	require.NoError(t, err)
	assert.True(t, w.Provisioned)

	hasGas, err := svc.HasGas(ctx, w.Address)
	require.NoError(t, err)
	assert.True(t, hasGas)
	bal, err := svc.Balance(ctx, w.Address, "USDC")
	require.NoError(t, err)
	assert.Equal(t, "5", bal.String())

	stored, err := svc.ForUser(ctx, userID)
	require.NoError(t, err)
	assert.True(t, stored.Provisioned)
}

func TestServiceBalanceGasAndTransfer(t *testing.T) {
	svc, chain := newTestService(t)
	ctx := context.Background()

	alice, err := svc.GetOrCreate(ctx, uuid.NewString(), "+15550000001")
	require.NoError(t, err)
	bob, err := svc.GetOrCreate(ctx, uuid.NewString(), "+15550000002")
	require.NoError(t, err)

	require.NoError(t, chain.Fund(ctx, alice.Address, "USDC", decimal.RequireFromString("50"), "seed"))

	bal, err := svc.Balance(ctx, alice.Address, "USDC")
	require.NoError(t, err)
	assert.Equal(t, "50", bal.String())

	hasGas, err := svc.HasGas(ctx, alice.Address)
	require.NoError(t, err)
	assert.True(t, hasGas)

	res, err := svc.Transfer(ctx, alice, bob.Address, "USDC", decimal.RequireFromString("12.5"), "ref-1")
	require.NoError(t, err)
	assert.Len(t, res.TxHash, 66)
	assert.Positive(t, res.BlockNumber)

	bal, _ = svc.Balance(ctx, bob.Address, "USDC")
	assert.Equal(t, "12.5", bal.String())

	_, err = svc.Transfer(ctx, alice, bob.Address, "USDC", decimal.RequireFromString("100"), "ref-2")
	assert.ErrorIs(t, err, ledger.ErrInsufficientFunds)
}

func TestSimulatedChainInitialBalance(t *testing.T) {
	chain := NewSimulatedChain(ledger.NewInMemory(), SimulatedChainConfig{Token: "USDC", InitialBalance: decimal.NewFromInt(25)})
	w := Wallet{Address: "0x00000000000000000000000000000000000000aa"}
	ctx := context.Background()

	require.NoError(t, chain.Provision(ctx, w))
	require.NoError(t, chain.Provision(ctx, w))

	bal, err := chain.TokenBalance(ctx, w.Address, "USDC")
	require.NoError(t, err)
	assert.Equal(t, "25", bal.String())
}

func TestSimulatedChainNoGasForUnknownAddress(t *testing.T) {
	chain := NewSimulatedChain(ledger.NewInMemory(), SimulatedChainConfig{Token: "USDC"})
	ok, err := chain.HasGas(context.Background(), "0x00000000000000000000000000000000000000bb")
	require.NoError(t, err)
	assert.False(t, ok)
}
