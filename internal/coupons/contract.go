package coupons

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/crypto/sha3"

	"github.com/chatpay/chatpay/internal/ledger"
	"github.com/chatpay/chatpay/internal/wallet"
)

// Contract is the on-chain escrow that holds coupon funds until redemption.
type Contract interface {
	Create(ctx context.Context, creator wallet.Wallet, code string, amount decimal.Decimal, token string) (string, error)
	Redeem(ctx context.Context, code, redeemerAddress string, amount decimal.Decimal, token string) (string, error)
}

// EscrowAccountCode is the ledger account holding unredeemed coupon funds for token.
func EscrowAccountCode(token string) string {
	return "escrow:coupons:" + strings.ToUpper(token)
}

// LedgerContract escrows coupon funds in the ledger backing the simulated chain.
type LedgerContract struct {
	ledger ledger.Ledger
}

func NewLedgerContract(l ledger.Ledger) *LedgerContract {
	return &LedgerContract{ledger: l}
}

func (c *LedgerContract) Create(ctx context.Context, creator wallet.Wallet, code string, amount decimal.Decimal, token string) (string, error) {
	escrow := EscrowAccountCode(token)
	if err := c.ledger.EnsureAccount(ctx, escrow); err != nil {
		return "", err
	}
	res, err := c.ledger.Transfer(ctx, ledger.AccountCode(creator.Address, token), escrow, "coupon_create", code, amount)
	if err != nil {
		return "", fmt.Errorf("escrow coupon: %w", err)
	}
	return txHash(res.TransactionID), nil
}

func (c *LedgerContract) Redeem(ctx context.Context, code, redeemerAddress string, amount decimal.Decimal, token string) (string, error) {
	to := ledger.AccountCode(redeemerAddress, token)
	if err := c.ledger.EnsureAccount(ctx, to); err != nil {
		return "", err
	}
	res, err := c.ledger.Transfer(ctx, EscrowAccountCode(token), to, "coupon_redeem", code, amount)
	if errors.Is(err, ledger.ErrDuplicateTransaction) {
		return "", ErrAlreadyRedeemed
	}
	if err != nil {
		return "", fmt.Errorf("release coupon: %w", err)
	}
	return txHash(res.TransactionID), nil
}

func txHash(id string) string {
	h := sha3.NewLegacyKeccak256()
	h.Write([]byte(id))
	return "0x" + hex.EncodeToString(h.Sum(nil))
}

// SignerContract drives the deployed coupon contract through the signer service.
type SignerContract struct {
	httpClient    *http.Client
	baseURL       string
	tokenDecimals int32
}

func NewSignerContract(signerURL string, tokenDecimals int32) *SignerContract {
	return &SignerContract{
		httpClient:    &http.Client{Timeout: 30 * time.Second},
		baseURL:       strings.TrimRight(signerURL, "/"),
		tokenDecimals: tokenDecimals,
	}
}

type signerCouponRequest struct {
	Code            string `json:"code"`
	DerivationIndex uint32 `json:"derivation_index,omitempty"`
	From            string `json:"from,omitempty"`
	To              string `json:"to,omitempty"`
	Token           string `json:"token"`
	Amount          string `json:"amount"`
}

type signerCouponResponse struct {
	TxHash string `json:"tx_hash"`
	Error  string `json:"error"`
}

func (c *SignerContract) Create(ctx context.Context, creator wallet.Wallet, code string, amount decimal.Decimal, token string) (string, error) {
	return c.post(ctx, "/v1/coupons", "coupon-create:"+code, signerCouponRequest{
		Code:            code,
		DerivationIndex: creator.DerivationIndex,
		From:            creator.Address,
		Token:           token,
		Amount:          amount.Shift(c.tokenDecimals).Truncate(0).String(),
	})
}

func (c *SignerContract) Redeem(ctx context.Context, code, redeemerAddress string, amount decimal.Decimal, token string) (string, error) {
	return c.post(ctx, "/v1/coupons/"+url.PathEscape(code)+"/redeem", "coupon-redeem:"+code, signerCouponRequest{
		Code:   code,
		To:     redeemerAddress,
		Token:  token,
		Amount: amount.Shift(c.tokenDecimals).Truncate(0).String(),
	})
}

func (c *SignerContract) post(ctx context.Context, path, idempotencyKey string, payload signerCouponRequest) (string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal coupon request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", idempotencyKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("signer request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read signer response: %w", err)
	}
	var out signerCouponResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("signer status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	if resp.StatusCode == http.StatusConflict {
		return "", ErrAlreadyRedeemed
	}
	if resp.StatusCode >= 300 {
		msg := out.Error
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return "", fmt.Errorf("signer rejected coupon call: %s", msg)
	}
	if out.TxHash == "" {
		return "", errors.New("signer returned no transaction hash")
	}
	return out.TxHash, nil
}
