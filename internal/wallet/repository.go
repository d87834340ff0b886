package wallet

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrNotFound is returned when no wallet matches the lookup.
	ErrNotFound = errors.New("wallet not found")
	// ErrExists is returned when the user already owns a wallet.
	ErrExists = errors.New("wallet exists")
)

// Repository persists wallet metadata.
type Repository interface {
	// NextIndex reserves a derivation index that no other wallet will use.
	NextIndex(ctx context.Context) (uint32, error)
	Create(ctx context.Context, wallet Wallet) error
	GetByUser(ctx context.Context, userID string) (Wallet, error)
	GetByAddress(ctx context.Context, address string) (Wallet, error)
	MarkProvisioned(ctx context.Context, walletID string) error
}

// PostgresRepository stores wallets in PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository builds a repository backed by PostgreSQL.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// NextIndex draws from a database sequence so concurrent instances never collide.
func (r *PostgresRepository) NextIndex(ctx context.Context) (uint32, error) {
	var idx int64
	if err := r.db.QueryRow(ctx, `SELECT nextval('wallet_derivation_index_seq')`).Scan(&idx); err != nil {
		return 0, err
	}
	return uint32(idx), nil
}

// Create inserts a wallet record.
func (r *PostgresRepository) Create(ctx context.Context, wallet Wallet) error {
	walletID, err := uuid.Parse(wallet.ID)
	if err != nil {
		return err
	}
	userID, err := uuid.Parse(wallet.UserID)
	if err != nil {
		return err
	}
	_, err = r.db.Exec(ctx, `INSERT INTO wallets (id, user_id, address, derivation_index, provisioned, created_at)
        VALUES ($1, $2, $3, $4, $5, $6)`, walletID, userID, wallet.Address, int64(wallet.DerivationIndex), wallet.Provisioned, wallet.CreatedAt.UTC())
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrExists
	}
	return err
}

// GetByUser fetches the wallet owned by userID.
func (r *PostgresRepository) GetByUser(ctx context.Context, userID string) (Wallet, error) {
	id, err := uuid.Parse(userID)
	if err != nil {
		return Wallet{}, ErrNotFound
	}
	return r.scan(r.db.QueryRow(ctx, `SELECT id, user_id, address, derivation_index, provisioned, created_at
        FROM wallets WHERE user_id = $1`, id))
}

// GetByAddress fetches a wallet by its address, case-insensitively.
func (r *PostgresRepository) GetByAddress(ctx context.Context, address string) (Wallet, error) {
	return r.scan(r.db.QueryRow(ctx, `SELECT id, user_id, address, derivation_index, provisioned, created_at
        FROM wallets WHERE lower(address) = lower($1)`, address))
}

// MarkProvisioned records that the chain backend has prepared the wallet.
func (r *PostgresRepository) MarkProvisioned(ctx context.Context, walletID string) error {
	id, err := uuid.Parse(walletID)
	if err != nil {
		return ErrNotFound
	}
	cmd, err := r.db.Exec(ctx, `UPDATE wallets SET provisioned = TRUE WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresRepository) scan(row pgx.Row) (Wallet, error) {
	var (
		w         Wallet
		idVal     uuid.UUID
		userID    uuid.UUID
		index     int64
		createdAt time.Time
	)
	if err := row.Scan(&idVal, &userID, &w.Address, &index, &w.Provisioned, &createdAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Wallet{}, ErrNotFound
		}
		return Wallet{}, err
	}
	w.ID = idVal.String()
	w.UserID = userID.String()
	w.DerivationIndex = uint32(index)
	w.CreatedAt = createdAt.UTC()
	return w, nil
}
