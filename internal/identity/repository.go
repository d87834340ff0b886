package identity

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

var (
	// ErrNotFound is returned when no user matches the lookup.
	ErrNotFound = errors.New("user not found")
	// ErrUserExists is returned when the phone number is already registered.
	ErrUserExists = errors.New("user exists")
	// ErrWalletImmutable is returned when a user already has a different wallet address.
	ErrWalletImmutable = errors.New("wallet address already assigned")
)

// Repository persists users.
type Repository interface {
	Create(ctx context.Context, user User) error
	FindByPhone(ctx context.Context, phone string) (User, error)
	FindByID(ctx context.Context, id string) (User, error)
	// Update writes every mutable field except the wallet address.
	Update(ctx context.Context, user User) error
	// SetWalletAddress assigns the address once. Re-assigning the same address is a no-op.
	SetWalletAddress(ctx context.Context, id, address string) error
}

// PostgresRepository implements Repository using PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository builds a Postgres-backed identity repository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const userColumns = `id, phone, wallet_address, pin_hash, daily_limit::text, locked, onboarding_completed,
        onboarding_step, default_network, default_token, created_at, updated_at`

// Create inserts a new user.
func (r *PostgresRepository) Create(ctx context.Context, user User) error {
	userID, err := uuid.Parse(user.ID)
	if err != nil {
		return err
	}
	_, err = r.db.Exec(ctx, `INSERT INTO users (id, phone, wallet_address, pin_hash, daily_limit, locked,
            onboarding_completed, onboarding_step, default_network, default_token, created_at, updated_at)
        VALUES ($1, $2, NULLIF($3, ''), NULLIF($4, ''), $5::numeric, $6, $7, $8, $9, $10, $11, $12)`,
		userID, user.Phone, user.WalletAddress, user.PINHash, user.DailyLimit.String(), user.Locked,
		user.OnboardingCompleted, user.OnboardingStep, user.DefaultNetwork, user.DefaultToken,
		user.CreatedAt.UTC(), user.UpdatedAt.UTC())
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrUserExists
	}
	return err
}

// FindByPhone fetches a user by phone number.
func (r *PostgresRepository) FindByPhone(ctx context.Context, phone string) (User, error) {
	return scanUser(r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE phone = $1`, phone))
}

// FindByID fetches a user by identifier.
func (r *PostgresRepository) FindByID(ctx context.Context, id string) (User, error) {
	userID, err := uuid.Parse(id)
	if err != nil {
		return User{}, ErrNotFound
	}
	return scanUser(r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, userID))
}

// Update stores the user's mutable fields.
func (r *PostgresRepository) Update(ctx context.Context, user User) error {
	userID, err := uuid.Parse(user.ID)
	if err != nil {
		return err
	}
	cmd, err := r.db.Exec(ctx, `UPDATE users SET pin_hash = NULLIF($2, ''), daily_limit = $3::numeric, locked = $4,
            onboarding_completed = $5, onboarding_step = $6, default_network = $7, default_token = $8, updated_at = $9
        WHERE id = $1`,
		userID, user.PINHash, user.DailyLimit.String(), user.Locked, user.OnboardingCompleted,
		user.OnboardingStep, user.DefaultNetwork, user.DefaultToken, user.UpdatedAt.UTC())
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SetWalletAddress assigns the wallet address if none is set yet.
func (r *PostgresRepository) SetWalletAddress(ctx context.Context, id, address string) error {
	userID, err := uuid.Parse(id)
	if err != nil {
		return err
	}
	var current *string
	err = r.db.QueryRow(ctx, `UPDATE users SET wallet_address = COALESCE(wallet_address, $2), updated_at = now()
        WHERE id = $1 RETURNING wallet_address`, userID, address).Scan(&current)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	if current == nil || *current != address {
		return ErrWalletImmutable
	}
	return nil
}

func scanUser(row pgx.Row) (User, error) {
	var (
		id            uuid.UUID
		walletAddress *string
		pinHash       *string
		dailyLimit    string
		createdAt     time.Time
		updatedAt     time.Time
		user          User
	)
	if err := row.Scan(&id, &user.Phone, &walletAddress, &pinHash, &dailyLimit, &user.Locked,
		&user.OnboardingCompleted, &user.OnboardingStep, &user.DefaultNetwork, &user.DefaultToken,
		&createdAt, &updatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, ErrNotFound
		}
		return User{}, err
	}
	limit, err := decimal.NewFromString(dailyLimit)
	if err != nil {
		return User{}, err
	}
	user.ID = id.String()
	if walletAddress != nil {
		user.WalletAddress = *walletAddress
	}
	if pinHash != nil {
		user.PINHash = *pinHash
	}
	user.DailyLimit = limit
	user.CreatedAt = createdAt.UTC()
	user.UpdatedAt = updatedAt.UTC()
	return user, nil
}
