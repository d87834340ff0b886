package main

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chatpay/chatpay/internal/bootstrap"
	"github.com/chatpay/chatpay/internal/config"
	"github.com/chatpay/chatpay/internal/logging"
)

func memoryStack(t *testing.T) *bootstrap.Stack {
	t.Helper()
	stack, err := bootstrap.Build(config.Config{
		AppEnv:         "test",
		PendingTTL:     time.Minute,
		PendingStore:   config.PendingStoreMemory,
		WalletMode:     config.WalletModeSimulated,
		WalletMnemonic: "test test test test test test test test test test test junk",
		TokenSymbol:    "USDC",
		Network:        "base-sepolia",
		NativeSymbol:   "ETH",
		ExplorerURL:    "https://sepolia.basescan.org",
		DailyLimit:     "1000",
		InitialBalance: "0",
	}, nil, nil, logging.Discard())
	require.NoError(t, err)
	return stack
}

func TestRunChatScript(t *testing.T) {
	stack := memoryStack(t)
	script := strings.Join([]string{
		"hi",
		"1234",
		"@+15550000002",
		"hello",
		"4321",
		"@+15550000001",
		"send 3 to +15550000002",
		"1234",
	}, "\n")

	var out bytes.Buffer
	err := runChat(context.Background(), stack, chatOptions{from: "+15550000001", fund: "10"}, nil, strings.NewReader(script), &out)
	require.NoError(t, err)

	transcript := out.String()
	assert.Contains(t, transcript, "> [+15550000002] hello")
	assert.Contains(t, transcript, "(funded 10.00 USDC)")
	assert.Contains(t, transcript, "Sent $3.00 USDC")
}

func TestRunChatSingleMessage(t *testing.T) {
	stack := memoryStack(t)
	var out bytes.Buffer
	require.NoError(t, runChat(context.Background(), stack, chatOptions{from: "+15550000001"}, []string{"hi"}, nil, &out))
	assert.Contains(t, out.String(), "Welcome")
}

func TestRunChatRejectsBadSender(t *testing.T) {
	stack := memoryStack(t)
	err := runChat(context.Background(), stack, chatOptions{from: "nope"}, []string{"hi"}, nil, &bytes.Buffer{})
	assert.Error(t, err)
}

func TestRootRegistersCommands(t *testing.T) {
	root := newRootCmd()
	names := map[string]bool{}
	for _, c := range root.Commands() {
		names[c.Name()] = true
	}
	assert.True(t, names["migrate"])
	assert.True(t, names["chat"])
	assert.True(t, names["token"])
}
