package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// PostgresLedger persists ledger entries in PostgreSQL ensuring double-entry balance.
// Amounts are NUMERIC columns exchanged as text so no precision is lost.
type PostgresLedger struct {
	db *pgxpool.Pool
}

// NewPostgresLedger constructs a Postgres-backed ledger implementation.
func NewPostgresLedger(db *pgxpool.Pool) *PostgresLedger {
	return &PostgresLedger{db: db}
}

// EnsureAccount guarantees an account exists for the provided code.
func (l *PostgresLedger) EnsureAccount(ctx context.Context, code string) error {
	_, err := l.db.Exec(ctx, `INSERT INTO ledger_accounts (id, code) VALUES ($1, $2)
        ON CONFLICT (code) DO NOTHING`, uuid.New(), code)
	return err
}

// Balance returns the summed balance for the specified account code.
func (l *PostgresLedger) Balance(ctx context.Context, code string) (decimal.Decimal, error) {
	const query = `
        SELECT COALESCE(SUM(e.amount), 0)::text
        FROM ledger_entries e
        INNER JOIN ledger_accounts a ON a.id = e.account_id
        WHERE a.code = $1`
	var raw string
	if err := l.db.QueryRow(ctx, query, code).Scan(&raw); err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromString(raw)
}

// Credit mints amount into code, balanced against the mint account.
func (l *PostgresLedger) Credit(ctx context.Context, code, clientTxID string, amount decimal.Decimal) (decimal.Decimal, error) {
	if err := l.EnsureAccount(ctx, code); err != nil {
		return decimal.Zero, err
	}
	if err := l.EnsureAccount(ctx, MintAccountCode); err != nil {
		return decimal.Zero, err
	}
	res, err := l.Transfer(ctx, MintAccountCode, code, "credit", clientTxID, amount)
	return res.ToBalance, err
}

// Transfer records a balanced posting between two accounts.
func (l *PostgresLedger) Transfer(ctx context.Context, fromCode, toCode, kind, clientTxID string, amount decimal.Decimal) (TransactionResult, error) {
	if !amount.IsPositive() {
		return TransactionResult{}, ErrInvalidAmount
	}

	tx, err := l.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return TransactionResult{}, err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	fromAccountID, err := lockAccount(ctx, tx, fromCode)
	if err != nil {
		return TransactionResult{}, err
	}
	toAccountID, err := lockAccount(ctx, tx, toCode)
	if err != nil {
		return TransactionResult{}, err
	}

	const existingTxQuery = `SELECT id FROM ledger_transactions WHERE client_tx_id = $1 AND kind = $2`
	var existingTxID uuid.UUID
	if err := tx.QueryRow(ctx, existingTxQuery, clientTxID, kind).Scan(&existingTxID); err == nil {
		fromBal, err := balanceForAccount(ctx, tx, fromAccountID)
		if err != nil {
			return TransactionResult{}, err
		}
		toBal, err := balanceForAccount(ctx, tx, toAccountID)
		if err != nil {
			return TransactionResult{}, err
		}
		return TransactionResult{TransactionID: existingTxID.String(), FromBalance: fromBal, ToBalance: toBal}, ErrDuplicateTransaction
	} else if !errors.Is(err, pgx.ErrNoRows) {
		return TransactionResult{}, err
	}

	fromBalance, err := balanceForAccount(ctx, tx, fromAccountID)
	if err != nil {
		return TransactionResult{}, err
	}
	// the mint account may go negative, every other account may not
	if fromCode != MintAccountCode && fromBalance.LessThan(amount) {
		return TransactionResult{}, ErrInsufficientFunds
	}
	toBalance, err := balanceForAccount(ctx, tx, toAccountID)
	if err != nil {
		return TransactionResult{}, err
	}

	txID := uuid.New()
	if _, err := tx.Exec(ctx, `INSERT INTO ledger_transactions (id, client_tx_id, kind) VALUES ($1, $2, $3)`, txID, clientTxID, kind); err != nil {
		return TransactionResult{}, err
	}
	const entryInsert = `INSERT INTO ledger_entries (id, transaction_id, account_id, amount) VALUES ($1, $2, $3, $4::numeric)`
	if _, err := tx.Exec(ctx, entryInsert, uuid.New(), txID, fromAccountID, amount.Neg().String()); err != nil {
		return TransactionResult{}, err
	}
	if _, err := tx.Exec(ctx, entryInsert, uuid.New(), txID, toAccountID, amount.String()); err != nil {
		return TransactionResult{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return TransactionResult{}, err
	}

	return TransactionResult{
		TransactionID: txID.String(),
		FromBalance:   fromBalance.Sub(amount),
		ToBalance:     toBalance.Add(amount),
	}, nil
}

func lockAccount(ctx context.Context, tx pgx.Tx, code string) (uuid.UUID, error) {
	var id uuid.UUID
	err := tx.QueryRow(ctx, `SELECT id FROM ledger_accounts WHERE code = $1 FOR UPDATE`, code).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return uuid.Nil, fmt.Errorf("%w: %s", ErrAccountNotFound, code)
	}
	return id, err
}

func balanceForAccount(ctx context.Context, tx pgx.Tx, accountID uuid.UUID) (decimal.Decimal, error) {
	var raw string
	if err := tx.QueryRow(ctx, `SELECT COALESCE(SUM(amount), 0)::text FROM ledger_entries WHERE account_id = $1`, accountID).Scan(&raw); err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromString(raw)
}
