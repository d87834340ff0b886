package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaultsInDevelopment(t *testing.T) {
	t.Setenv("APP_ENV", "development")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("REDIS_URL", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 5*time.Minute, cfg.PendingTTL)
	assert.Equal(t, PendingStoreMemory, cfg.PendingStore)
	assert.Equal(t, WalletModeSimulated, cfg.WalletMode)
	assert.Equal(t, "USDC", cfg.TokenSymbol)
	assert.Equal(t, int32(6), cfg.TokenDecimals)
	assert.Equal(t, ":8080", cfg.Address())
	assert.False(t, cfg.LLMEnabled())
}

func TestLoadRequiresStoresOutsideDevelopment(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("REDIS_URL", "")

	_, err := Load()
	require.Error(t, err)
}

func TestLoadDurations(t *testing.T) {
	t.Setenv("APP_ENV", "development")
	t.Setenv("SHUTDOWN_TIMEOUT_SECONDS", "3")
	t.Setenv("PENDING_ACTION_TTL", "90s")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 3*time.Second, cfg.ShutdownPeriod)
	assert.Equal(t, 90*time.Second, cfg.PendingTTL)

	t.Setenv("PENDING_ACTION_TTL", "soon")
	_, err = Load()
	require.Error(t, err)
}

func TestValidateRedisPendingStoreNeedsURL(t *testing.T) {
	cfg := Config{AppEnv: "development", PendingStore: PendingStoreRedis, WalletMode: WalletModeSimulated, PendingTTL: time.Minute}
	require.Error(t, cfg.Validate())

	cfg.RedisURL = "redis://localhost:6379/0"
	require.NoError(t, cfg.Validate())
}

func TestValidateEVMWalletMode(t *testing.T) {
	cfg := Config{AppEnv: "development", PendingStore: PendingStoreMemory, WalletMode: WalletModeEVM, PendingTTL: time.Minute}
	require.Error(t, cfg.Validate())

	cfg.EVMRPCURL = "http://localhost:8545"
	cfg.SignerURL = "http://localhost:9000"
	cfg.TokenContract = "0x036CbD53842c5426634e7929541eC2318f3dCF7e"
	cfg.WalletMnemonic = "test test test test test test test test test test test junk"
	require.NoError(t, cfg.Validate())
}
