package coupons

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

var (
	// ErrNotFound is returned when no coupon has the code.
	ErrNotFound = errors.New("coupon not found")
	// ErrCodeTaken is returned when a generated code collides with an existing one.
	ErrCodeTaken = errors.New("coupon code taken")
	// ErrAlreadyRedeemed is returned when a redeemed coupon is redeemed again.
	ErrAlreadyRedeemed = errors.New("coupon already redeemed")
)

// Repository persists coupons.
type Repository interface {
	Create(ctx context.Context, c Coupon) error
	GetByCode(ctx context.Context, code string) (Coupon, error)
	// MarkRedeemed flips an active coupon to redeemed, failing if it is not active.
	MarkRedeemed(ctx context.Context, code, redeemerID, txHash string, at time.Time) error
	ListByCreator(ctx context.Context, creatorID string, limit int) ([]Coupon, error)
}

// PostgresRepository stores coupons in PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const couponColumns = `id, code, creator_id, amount::text, token, COALESCE(message, ''), status,
        COALESCE(redeemer_id::text, ''), redeemed_at, expires_at, COALESCE(tx_hash, ''), COALESCE(redeem_tx_hash, ''), created_at`

func (r *PostgresRepository) Create(ctx context.Context, c Coupon) error {
	_, err := r.db.Exec(ctx, `INSERT INTO gift_coupons (id, code, creator_id, amount, token, message, status, expires_at, tx_hash, created_at)
        VALUES ($1, $2, $3, $4::numeric, $5, NULLIF($6, ''), $7, $8, NULLIF($9, ''), $10)`,
		c.ID, c.Code, c.CreatorID, c.Amount.String(), c.Token, c.Message, c.Status, c.ExpiresAt, c.TxHash, c.CreatedAt.UTC())
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrCodeTaken
	}
	return err
}

func (r *PostgresRepository) GetByCode(ctx context.Context, code string) (Coupon, error) {
	return scanCoupon(r.db.QueryRow(ctx, `SELECT `+couponColumns+` FROM gift_coupons WHERE code = $1`, code))
}

func (r *PostgresRepository) MarkRedeemed(ctx context.Context, code, redeemerID, txHash string, at time.Time) error {
	cmd, err := r.db.Exec(ctx, `UPDATE gift_coupons SET status = 'redeemed', redeemer_id = $2, redeemed_at = $3, redeem_tx_hash = NULLIF($4, '')
        WHERE code = $1 AND status = 'active'`, code, redeemerID, at.UTC(), txHash)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		if _, err := r.GetByCode(ctx, code); err != nil {
			return err
		}
		return ErrAlreadyRedeemed
	}
	return nil
}

func (r *PostgresRepository) ListByCreator(ctx context.Context, creatorID string, limit int) ([]Coupon, error) {
	rows, err := r.db.Query(ctx, `SELECT `+couponColumns+` FROM gift_coupons WHERE creator_id::text = $1
        ORDER BY created_at DESC LIMIT $2`, creatorID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Coupon
	for rows.Next() {
		c, err := scanCoupon(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func scanCoupon(row pgx.Row) (Coupon, error) {
	var (
		c         Coupon
		id        uuid.UUID
		creatorID uuid.UUID
		amount    string
	)
	if err := row.Scan(&id, &c.Code, &creatorID, &amount, &c.Token, &c.Message, &c.Status, &c.RedeemerID,
		&c.RedeemedAt, &c.ExpiresAt, &c.TxHash, &c.RedeemTxHash, &c.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Coupon{}, ErrNotFound
		}
		return Coupon{}, err
	}
	value, err := decimal.NewFromString(amount)
	if err != nil {
		return Coupon{}, err
	}
	c.ID = id.String()
	c.CreatorID = creatorID.String()
	c.Amount = value
	return c, nil
}

type memoryRepository struct {
	mu      sync.RWMutex
	coupons map[string]Coupon
}

// NewMemoryRepository builds an in-memory coupon store.
func NewMemoryRepository() Repository {
	return &memoryRepository{coupons: make(map[string]Coupon)}
}

func (r *memoryRepository) Create(_ context.Context, c Coupon) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.coupons[c.Code]; exists {
		return ErrCodeTaken
	}
	r.coupons[c.Code] = c
	return nil
}

func (r *memoryRepository) GetByCode(_ context.Context, code string) (Coupon, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.coupons[code]
	if !ok {
		return Coupon{}, ErrNotFound
	}
	return c, nil
}

func (r *memoryRepository) MarkRedeemed(_ context.Context, code, redeemerID, txHash string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.coupons[code]
	if !ok {
		return ErrNotFound
	}
	if c.Status != StatusActive {
		return ErrAlreadyRedeemed
	}
	at = at.UTC()
	c.Status = StatusRedeemed
	c.RedeemerID = redeemerID
	c.RedeemedAt = &at
	c.RedeemTxHash = txHash
	r.coupons[code] = c
	return nil
}

func (r *memoryRepository) ListByCreator(_ context.Context, creatorID string, limit int) ([]Coupon, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Coupon
	for _, c := range r.coupons {
		if c.CreatorID == creatorID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
