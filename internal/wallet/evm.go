package wallet

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"
)

// balanceOfSelector is the ERC-20 balanceOf(address) function selector.
const balanceOfSelector = "0x70a08231"

// EVMChainConfig configures the JSON-RPC and signer endpoints.
type EVMChainConfig struct {
	RPCURL        string
	SignerURL     string
	TokenContract string
	TokenSymbol   string
	TokenDecimals int32
	// MinGas is the native balance, in wei, below which a wallet is treated as unable to pay gas.
	MinGas *big.Int
}

// EVMChain reads balances over JSON-RPC and delegates signing to an external signer.
type EVMChain struct {
	httpClient *http.Client
	cfg        EVMChainConfig
	requestID  atomic.Int64
	logger     *slog.Logger
}

// NewEVMChain builds a JSON-RPC backed chain.
func NewEVMChain(cfg EVMChainConfig, logger *slog.Logger) *EVMChain {
	if cfg.MinGas == nil {
		cfg.MinGas = big.NewInt(0)
	}
	return &EVMChain{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		cfg:        cfg,
		logger:     logger,
	}
}

type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      int           `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int             `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *rpcError       `json:"error"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// Provision is a no-op: derived addresses exist on chain without registration.
func (c *EVMChain) Provision(context.Context, Wallet) error { return nil }

func (c *EVMChain) TokenBalance(ctx context.Context, address, token string) (decimal.Decimal, error) {
	if !strings.EqualFold(token, c.cfg.TokenSymbol) {
		return decimal.Zero, fmt.Errorf("token %s is not configured", token)
	}
	if !IsAddress(address) {
		return decimal.Zero, fmt.Errorf("invalid address %q", address)
	}
	data := balanceOfSelector + strings.Repeat("0", 24) + strings.ToLower(address[2:])
	raw, err := c.call(ctx, "eth_call", []interface{}{
		map[string]string{"to": c.cfg.TokenContract, "data": data},
		"latest",
	})
	if err != nil {
		return decimal.Zero, err
	}
	units, err := decodeQuantity(raw)
	if err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromBigInt(units, -c.cfg.TokenDecimals), nil
}

func (c *EVMChain) HasGas(ctx context.Context, address string) (bool, error) {
	raw, err := c.call(ctx, "eth_getBalance", []interface{}{address, "latest"})
	if err != nil {
		return false, err
	}
	wei, err := decodeQuantity(raw)
	if err != nil {
		return false, err
	}
	return wei.Sign() > 0 && wei.Cmp(c.cfg.MinGas) >= 0, nil
}

type signerTransferRequest struct {
	Reference       string `json:"reference"`
	DerivationIndex uint32 `json:"derivation_index"`
	From            string `json:"from"`
	To              string `json:"to"`
	TokenContract   string `json:"token_contract"`
	Amount          string `json:"amount"`
}

type signerTransferResponse struct {
	TxHash      string `json:"tx_hash"`
	BlockNumber int64  `json:"block_number"`
	GasUsed     int64  `json:"gas_used"`
	Error       string `json:"error"`
}

// Transfer asks the signer service to build, sign and broadcast an ERC-20 transfer.
func (c *EVMChain) Transfer(ctx context.Context, from Wallet, to, token string, amount decimal.Decimal, reference string) (TransferResult, error) {
	if !strings.EqualFold(token, c.cfg.TokenSymbol) {
		return TransferResult{}, fmt.Errorf("token %s is not configured", token)
	}
	units := amount.Shift(c.cfg.TokenDecimals)
	if !units.Equal(units.Truncate(0)) {
		return TransferResult{}, fmt.Errorf("amount %s exceeds %d decimals", amount, c.cfg.TokenDecimals)
	}
	body, err := json.Marshal(signerTransferRequest{
		Reference:       reference,
		DerivationIndex: from.DerivationIndex,
		From:            from.Address,
		To:              to,
		TokenContract:   c.cfg.TokenContract,
		Amount:          units.String(),
	})
	if err != nil {
		return TransferResult{}, fmt.Errorf("marshal transfer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(c.cfg.SignerURL, "/")+"/v1/transfers", bytes.NewReader(body))
	if err != nil {
		return TransferResult{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", reference)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return TransferResult{}, fmt.Errorf("signer request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return TransferResult{}, fmt.Errorf("read signer response: %w", err)
	}
	var out signerTransferResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return TransferResult{}, fmt.Errorf("signer status %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}
	if resp.StatusCode >= 300 {
		msg := out.Error
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return TransferResult{}, fmt.Errorf("%w by signer: %s", ErrTransferRejected, msg)
	}
	if out.TxHash == "" {
		return TransferResult{}, errors.New("signer returned no transaction hash")
	}
	c.logger.Info("transfer broadcast", "reference", reference, "tx_hash", out.TxHash)
	return TransferResult{TxHash: out.TxHash, BlockNumber: out.BlockNumber, GasUsed: out.GasUsed}, nil
}

func (c *EVMChain) call(ctx context.Context, method string, params []interface{}) (json.RawMessage, error) {
	id := int(c.requestID.Add(1))
	body, err := json.Marshal(rpcRequest{JSONRPC: "2.0", ID: id, Method: method, Params: params})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.RPCURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("http status %d: %s", resp.StatusCode, string(respBody))
	}

	var rpcResp rpcResponse
	if err := json.Unmarshal(respBody, &rpcResp); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}
	if rpcResp.Error != nil {
		return nil, rpcResp.Error
	}
	return rpcResp.Result, nil
}

func decodeQuantity(raw json.RawMessage) (*big.Int, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("decode quantity: %w", err)
	}
	s = strings.TrimPrefix(s, "0x")
	if s == "" {
		return big.NewInt(0), nil
	}
	v, ok := new(big.Int).SetString(s, 16)
	if !ok {
		return nil, fmt.Errorf("invalid hex quantity %q", s)
	}
	return v, nil
}
