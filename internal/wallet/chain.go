package wallet

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/shopspring/decimal"

	"github.com/chatpay/chatpay/internal/ledger"
)

// ErrTransferRejected marks a transfer the chain backend refused outright, so no
// funds moved.
var ErrTransferRejected = errors.New("transfer rejected")

// Chain is the settlement backend behind wallets.
type Chain interface {
	// Provision prepares a freshly created wallet.
	Provision(ctx context.Context, w Wallet) error
	TokenBalance(ctx context.Context, address, token string) (decimal.Decimal, error)
	HasGas(ctx context.Context, address string) (bool, error)
	// Transfer moves amount of token from the signer wallet to address. reference is
	// an idempotency key; a failed transfer returns an error and no hash.
	Transfer(ctx context.Context, from Wallet, to, token string, amount decimal.Decimal, reference string) (TransferResult, error)
}

// SimulatedChainConfig seeds new wallets on the simulated chain.
type SimulatedChainConfig struct {
	NativeSymbol   string
	GasAllowance   decimal.Decimal
	InitialBalance decimal.Decimal
	Token          string
}

// simulatedGasUsed is what an ERC-20 transfer typically costs.
const simulatedGasUsed = 65_000

// SimulatedChain settles transfers in a ledger instead of on a network.
type SimulatedChain struct {
	ledger ledger.Ledger
	cfg    SimulatedChainConfig
	block  atomic.Int64
}

// NewSimulatedChain builds a ledger-backed chain.
func NewSimulatedChain(l ledger.Ledger, cfg SimulatedChainConfig) *SimulatedChain {
	if cfg.NativeSymbol == "" {
		cfg.NativeSymbol = "ETH"
	}
	if cfg.GasAllowance.IsZero() {
		cfg.GasAllowance = decimal.RequireFromString("0.01")
	}
	c := &SimulatedChain{ledger: l, cfg: cfg}
	c.block.Store(1_000_000)
	return c
}

// Provision opens ledger accounts and grants gas plus any configured starting balance.
func (c *SimulatedChain) Provision(ctx context.Context, w Wallet) error {
	tokenCode := ledger.AccountCode(w.Address, c.cfg.Token)
	if err := c.ledger.EnsureAccount(ctx, tokenCode); err != nil {
		return err
	}
	if err := c.credit(ctx, ledger.AccountCode(w.Address, c.cfg.NativeSymbol), "gas:"+w.Address, c.cfg.GasAllowance); err != nil {
		return err
	}
	if c.cfg.InitialBalance.IsPositive() {
		return c.credit(ctx, tokenCode, "faucet:"+w.Address, c.cfg.InitialBalance)
	}
	return nil
}

// Fund mints amount of token into address. Used by the CLI and tests.
func (c *SimulatedChain) Fund(ctx context.Context, address, token string, amount decimal.Decimal, reference string) error {
	return c.credit(ctx, ledger.AccountCode(address, token), reference, amount)
}

func (c *SimulatedChain) credit(ctx context.Context, code, reference string, amount decimal.Decimal) error {
	if err := c.ledger.EnsureAccount(ctx, code); err != nil {
		return err
	}
	if _, err := c.ledger.Credit(ctx, code, reference, amount); err != nil && err != ledger.ErrDuplicateTransaction {
		return err
	}
	return nil
}

func (c *SimulatedChain) TokenBalance(ctx context.Context, address, token string) (decimal.Decimal, error) {
	return c.ledger.Balance(ctx, ledger.AccountCode(address, token))
}

func (c *SimulatedChain) HasGas(ctx context.Context, address string) (bool, error) {
	bal, err := c.ledger.Balance(ctx, ledger.AccountCode(address, c.cfg.NativeSymbol))
	if err != nil {
		return false, err
	}
	return bal.IsPositive(), nil
}

func (c *SimulatedChain) Transfer(ctx context.Context, from Wallet, to, token string, amount decimal.Decimal, reference string) (TransferResult, error) {
	toCode := ledger.AccountCode(to, token)
	if err := c.ledger.EnsureAccount(ctx, toCode); err != nil {
		return TransferResult{}, err
	}
	res, err := c.ledger.Transfer(ctx, ledger.AccountCode(from.Address, token), toCode, "transfer", reference, amount)
	if err != nil {
		return TransferResult{}, fmt.Errorf("simulated transfer: %w", err)
	}
	return TransferResult{
		TxHash:      "0x" + hex.EncodeToString(keccak256([]byte(res.TransactionID))),
		BlockNumber: c.block.Add(1),
		GasUsed:     simulatedGasUsed,
	}, nil
}
