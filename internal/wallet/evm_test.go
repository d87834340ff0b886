package wallet

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chatpay/chatpay/internal/logging"
)

const testAddress = "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"

func rpcServer(t *testing.T, results map[string]string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		result, ok := results[req.Method]
		if !ok {
			_ = json.NewEncoder(w).Encode(map[string]any{"jsonrpc": "2.0", "id": req.ID, "error": map[string]any{"code": -32601, "message": "method not found"}})
			return
		}
		if req.Method == "eth_call" {
			call := req.Params[0].(map[string]any)
			assert.Equal(t, "0x70a08231000000000000000000000000f39fd6e51aad88f6f4ce6ab8827279cfffb92266", call["data"])
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"jsonrpc": "2.0", "id": req.ID, "result": result})
	}))
}

func TestEVMChainTokenBalance(t *testing.T) {
	// 12.5 USDC = 12_500_000 base units
	srv := rpcServer(t, map[string]string{"eth_call": "0x0000000000000000000000000000000000000000000000000000000000bebc20"})
	defer srv.Close()

	chain := NewEVMChain(EVMChainConfig{RPCURL: srv.URL, TokenContract: "0xtoken", TokenSymbol: "USDC", TokenDecimals: 6}, logging.Discard())
	bal, err := chain.TokenBalance(context.Background(), testAddress, "USDC")
	require.NoError(t, err)
	assert.Equal(t, "12.5", bal.String())

	_, err = chain.TokenBalance(context.Background(), testAddress, "DAI")
	require.Error(t, err)
}

func TestEVMChainHasGas(t *testing.T) {
	srv := rpcServer(t, map[string]string{"eth_getBalance": "0x0"})
	defer srv.Close()
	chain := NewEVMChain(EVMChainConfig{RPCURL: srv.URL, TokenSymbol: "USDC"}, logging.Discard())
	ok, err := chain.HasGas(context.Background(), testAddress)
	require.NoError(t, err)
	assert.False(t, ok)

	srv2 := rpcServer(t, map[string]string{"eth_getBalance": "0x38d7ea4c68000"})
	defer srv2.Close()
	chain = NewEVMChain(EVMChainConfig{RPCURL: srv2.URL, TokenSymbol: "USDC"}, logging.Discard())
	ok, err = chain.HasGas(context.Background(), testAddress)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestEVMChainRPCError(t *testing.T) {
	srv := rpcServer(t, map[string]string{})
	defer srv.Close()
	chain := NewEVMChain(EVMChainConfig{RPCURL: srv.URL, TokenSymbol: "USDC"}, logging.Discard())
	_, err := chain.HasGas(context.Background(), testAddress)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "method not found")
}

func TestEVMChainTransferViaSigner(t *testing.T) {
	var got signerTransferRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/transfers", r.URL.Path)
		assert.Equal(t, "ref-1", r.Header.Get("Idempotency-Key"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_ = json.NewEncoder(w).Encode(signerTransferResponse{TxHash: "0xabc", BlockNumber: 42, GasUsed: 51000})
	}))
	defer srv.Close()

	chain := NewEVMChain(EVMChainConfig{SignerURL: srv.URL + "/", TokenContract: "0xtoken", TokenSymbol: "USDC", TokenDecimals: 6}, logging.Discard())
	res, err := chain.Transfer(context.Background(), Wallet{Address: testAddress, DerivationIndex: 3}, "0xdead", "USDC", decimal.RequireFromString("10.25"), "ref-1")
	require.NoError(t, err)
	assert.Equal(t, TransferResult{TxHash: "0xabc", BlockNumber: 42, GasUsed: 51000}, res)
	assert.Equal(t, "10250000", got.Amount)
	assert.Equal(t, uint32(3), got.DerivationIndex)
}

func TestEVMChainTransferFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_ = json.NewEncoder(w).Encode(signerTransferResponse{Error: "nonce too low"})
	}))
	defer srv.Close()

	chain := NewEVMChain(EVMChainConfig{SignerURL: srv.URL, TokenSymbol: "USDC", TokenDecimals: 6}, logging.Discard())
	_, err := chain.Transfer(context.Background(), Wallet{Address: testAddress}, "0xdead", "USDC", decimal.NewFromInt(1), "ref")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nonce too low")
	assert.ErrorIs(t, err, ErrTransferRejected)

	_, err = chain.Transfer(context.Background(), Wallet{Address: testAddress}, "0xdead", "USDC", decimal.RequireFromString("0.0000001"), "ref")
	require.Error(t, err)
}

func TestEVMChainSignerWithoutHash(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(signerTransferResponse{})
	}))
	defer srv.Close()
	chain := NewEVMChain(EVMChainConfig{SignerURL: srv.URL, TokenSymbol: "USDC", TokenDecimals: 6}, logging.Discard())
	_, err := chain.Transfer(context.Background(), Wallet{Address: testAddress}, "0xdead", "USDC", decimal.NewFromInt(1), "ref")
	require.Error(t, err)
}
