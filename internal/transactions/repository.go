package transactions

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

var (
	// ErrNotFound is returned when no transaction matches the lookup.
	ErrNotFound = errors.New("transaction not found")
	// ErrInvalidTransition is returned when a terminal transaction is updated again.
	ErrInvalidTransition = errors.New("transaction status can only move from pending")
)

// Repository persists transactions.
type Repository interface {
	Create(ctx context.Context, tx Transaction) error
	Get(ctx context.Context, id string) (Transaction, error)
	MarkConfirmed(ctx context.Context, id string, s Settlement) error
	MarkFailed(ctx context.Context, id, note string) error
	ListByUser(ctx context.Context, userID string, limit int) ([]Transaction, error)
	// SumSent totals pending and confirmed sends by userID created at or after since.
	SumSent(ctx context.Context, userID string, since time.Time) (decimal.Decimal, error)
}

// PostgresRepository stores transactions in PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository builds a repository backed by PostgreSQL.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const txColumns = `id, user_id, COALESCE(tx_hash, ''), direction, token, amount::text, counterparty, status,
        COALESCE(block_number, 0), COALESCE(gas_used, 0), COALESCE(failure_note, ''), created_at, updated_at`

// Create inserts a transaction.
func (r *PostgresRepository) Create(ctx context.Context, tx Transaction) error {
	id, err := uuid.Parse(tx.ID)
	if err != nil {
		return err
	}
	userID, err := uuid.Parse(tx.UserID)
	if err != nil {
		return err
	}
	_, err = r.db.Exec(ctx, `INSERT INTO transactions (id, user_id, tx_hash, direction, token, amount, counterparty, status, created_at, updated_at)
        VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6::numeric, $7, $8, $9, $10)`,
		id, userID, tx.TxHash, tx.Direction, tx.Token, tx.Amount.String(), tx.Counterparty, tx.Status,
		tx.CreatedAt.UTC(), tx.UpdatedAt.UTC())
	return err
}

// Get fetches a transaction by id.
func (r *PostgresRepository) Get(ctx context.Context, id string) (Transaction, error) {
	txID, err := uuid.Parse(id)
	if err != nil {
		return Transaction{}, ErrNotFound
	}
	return scanTransaction(r.db.QueryRow(ctx, `SELECT `+txColumns+` FROM transactions WHERE id = $1`, txID))
}

// MarkConfirmed settles a pending transaction. The status guard in the WHERE
// clause keeps terminal rows untouched.
func (r *PostgresRepository) MarkConfirmed(ctx context.Context, id string, s Settlement) error {
	return r.transition(ctx, id, `UPDATE transactions SET status = 'confirmed', tx_hash = $2, block_number = $3, gas_used = $4, updated_at = now()
        WHERE id = $1 AND status = 'pending'`, s.TxHash, s.BlockNumber, s.GasUsed)
}

// MarkFailed fails a pending transaction.
func (r *PostgresRepository) MarkFailed(ctx context.Context, id, note string) error {
	return r.transition(ctx, id, `UPDATE transactions SET status = 'failed', failure_note = $2, updated_at = now()
        WHERE id = $1 AND status = 'pending'`, note)
}

func (r *PostgresRepository) transition(ctx context.Context, id, query string, args ...any) error {
	txID, err := uuid.Parse(id)
	if err != nil {
		return ErrNotFound
	}
	cmd, err := r.db.Exec(ctx, query, append([]any{txID}, args...)...)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 1 {
		return nil
	}
	if _, err := r.Get(ctx, id); err != nil {
		return err
	}
	return ErrInvalidTransition
}

// ListByUser returns the user's most recent transactions first.
func (r *PostgresRepository) ListByUser(ctx context.Context, userID string, limit int) ([]Transaction, error) {
	uid, err := uuid.Parse(userID)
	if err != nil {
		return nil, nil
	}
	rows, err := r.db.Query(ctx, `SELECT `+txColumns+` FROM transactions WHERE user_id = $1
        ORDER BY created_at DESC LIMIT $2`, uid, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, tx)
	}
	return out, rows.Err()
}

// SumSent totals outgoing value since the given time.
func (r *PostgresRepository) SumSent(ctx context.Context, userID string, since time.Time) (decimal.Decimal, error) {
	uid, err := uuid.Parse(userID)
	if err != nil {
		return decimal.Zero, nil
	}
	var raw string
	if err := r.db.QueryRow(ctx, `SELECT COALESCE(SUM(amount), 0)::text FROM transactions
        WHERE user_id = $1 AND direction = 'send' AND status IN ('pending', 'confirmed') AND created_at >= $2`,
		uid, since.UTC()).Scan(&raw); err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromString(raw)
}

func scanTransaction(row pgx.Row) (Transaction, error) {
	var (
		tx     Transaction
		id     uuid.UUID
		userID uuid.UUID
		amount string
	)
	if err := row.Scan(&id, &userID, &tx.TxHash, &tx.Direction, &tx.Token, &amount, &tx.Counterparty, &tx.Status,
		&tx.BlockNumber, &tx.GasUsed, &tx.FailureNote, &tx.CreatedAt, &tx.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Transaction{}, ErrNotFound
		}
		return Transaction{}, err
	}
	value, err := decimal.NewFromString(amount)
	if err != nil {
		return Transaction{}, err
	}
	tx.ID = id.String()
	tx.UserID = userID.String()
	tx.Amount = value
	tx.CreatedAt = tx.CreatedAt.UTC()
	tx.UpdatedAt = tx.UpdatedAt.UTC()
	return tx, nil
}
