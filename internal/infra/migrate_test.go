package infra

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrationsAreOrderedAndNonEmpty(t *testing.T) {
	versions, err := Migrations()
	require.NoError(t, err)
	require.NotEmpty(t, versions)
	assert.True(t, strings.HasPrefix(versions[0], "0001_"))
	for i := 1; i < len(versions); i++ {
		assert.Less(t, versions[i-1], versions[i])
	}
	for _, v := range versions {
		sql, err := migrationFiles.ReadFile("migrations/" + v + ".up.sql")
		require.NoError(t, err)
		assert.NotEmpty(t, strings.TrimSpace(string(sql)), v)
	}
}

func TestMigrationsCreateEveryTable(t *testing.T) {
	versions, err := Migrations()
	require.NoError(t, err)
	var all strings.Builder
	for _, v := range versions {
		sql, err := migrationFiles.ReadFile("migrations/" + v + ".up.sql")
		require.NoError(t, err)
		all.Write(sql)
	}
	for _, table := range []string{
		"users", "wallets", "transactions", "scheduled_intents", "gift_coupons",
		"audit_logs", "ledger_accounts", "ledger_transactions", "ledger_entries",
	} {
		assert.Contains(t, all.String(), "CREATE TABLE IF NOT EXISTS "+table+" (", table)
	}
	assert.Contains(t, all.String(), "wallet_derivation_index_seq")
}
