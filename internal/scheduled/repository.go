package scheduled

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

var (
	ErrNotFound          = errors.New("scheduled intent not found")
	ErrInvalidTransition = errors.New("invalid scheduled intent status transition")
)

// Repository persists scheduled intents.
type Repository interface {
	Create(ctx context.Context, in Intent) (Intent, error)
	Get(ctx context.Context, id string) (Intent, error)
	// Due returns pending intents scheduled at or before now, oldest first.
	Due(ctx context.Context, now time.Time, limit int) ([]Intent, error)
	// UpdateStatus moves an intent from one status to another. It fails with
	// ErrInvalidTransition when the stored status is not from.
	UpdateStatus(ctx context.Context, id, from, to string) error
	ListByOwner(ctx context.Context, ownerID string, limit int) ([]Intent, error)
}

// PostgresRepository stores intents in the scheduled_intents table.
type PostgresRepository struct {
	db *pgxpool.Pool
}

func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const intentColumns = `id, owner_id, type, token, amount::text, recipient, scheduled_for, status,
        COALESCE(delegation_ref, ''), metadata, created_at, updated_at`

func (r *PostgresRepository) Create(ctx context.Context, in Intent) (Intent, error) {
	in = prepare(in)
	meta, err := json.Marshal(in.Metadata)
	if err != nil {
		return Intent{}, err
	}
	_, err = r.db.Exec(ctx, `INSERT INTO scheduled_intents (id, owner_id, type, token, amount, recipient, scheduled_for, status, delegation_ref, metadata, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5::numeric, $6, $7, $8, NULLIF($9, ''), $10, $11, $11)`,
		in.ID, in.OwnerID, in.Type, in.Token, in.Amount.String(), in.Recipient, in.ScheduledFor.UTC(), in.Status, in.DelegationRef, meta, in.CreatedAt)
	if err != nil {
		return Intent{}, err
	}
	return in, nil
}

func (r *PostgresRepository) Get(ctx context.Context, id string) (Intent, error) {
	uid, err := uuid.Parse(id)
	if err != nil {
		return Intent{}, ErrNotFound
	}
	return scanIntent(r.db.QueryRow(ctx, `SELECT `+intentColumns+` FROM scheduled_intents WHERE id = $1`, uid))
}

func (r *PostgresRepository) Due(ctx context.Context, now time.Time, limit int) ([]Intent, error) {
	rows, err := r.db.Query(ctx, `SELECT `+intentColumns+` FROM scheduled_intents
        WHERE status = 'pending' AND scheduled_for <= $1 ORDER BY scheduled_for LIMIT $2`, now.UTC(), limit)
	if err != nil {
		return nil, err
	}
	return collect(rows)
}

func (r *PostgresRepository) UpdateStatus(ctx context.Context, id, from, to string) error {
	if !CanTransition(from, to) {
		return ErrInvalidTransition
	}
	cmd, err := r.db.Exec(ctx, `UPDATE scheduled_intents SET status = $3, updated_at = now()
        WHERE id = $1 AND status = $2`, id, from, to)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		if _, err := r.Get(ctx, id); err != nil {
			return err
		}
		return ErrInvalidTransition
	}
	return nil
}

func (r *PostgresRepository) ListByOwner(ctx context.Context, ownerID string, limit int) ([]Intent, error) {
	rows, err := r.db.Query(ctx, `SELECT `+intentColumns+` FROM scheduled_intents
        WHERE owner_id::text = $1 ORDER BY scheduled_for DESC LIMIT $2`, ownerID, limit)
	if err != nil {
		return nil, err
	}
	return collect(rows)
}

func collect(rows pgx.Rows) ([]Intent, error) {
	defer rows.Close()
	var out []Intent
	for rows.Next() {
		in, err := scanIntent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, in)
	}
	return out, rows.Err()
}

func scanIntent(row pgx.Row) (Intent, error) {
	var (
		in      Intent
		id      uuid.UUID
		ownerID uuid.UUID
		amount  string
		meta    []byte
	)
	if err := row.Scan(&id, &ownerID, &in.Type, &in.Token, &amount, &in.Recipient, &in.ScheduledFor, &in.Status,
		&in.DelegationRef, &meta, &in.CreatedAt, &in.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Intent{}, ErrNotFound
		}
		return Intent{}, err
	}
	value, err := decimal.NewFromString(amount)
	if err != nil {
		return Intent{}, err
	}
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &in.Metadata); err != nil {
			return Intent{}, err
		}
	}
	in.ID = id.String()
	in.OwnerID = ownerID.String()
	in.Amount = value
	return in, nil
}

func prepare(in Intent) Intent {
	if in.ID == "" {
		in.ID = uuid.NewString()
	}
	if in.Status == "" {
		in.Status = StatusPending
	}
	if in.CreatedAt.IsZero() {
		in.CreatedAt = time.Now().UTC()
	}
	in.UpdatedAt = in.CreatedAt
	return in
}

type memoryRepository struct {
	mu      sync.RWMutex
	intents map[string]Intent
}

// NewMemoryRepository builds an in-memory scheduled intent store.
func NewMemoryRepository() Repository {
	return &memoryRepository{intents: make(map[string]Intent)}
}

func (r *memoryRepository) Create(_ context.Context, in Intent) (Intent, error) {
	in = prepare(in)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.intents[in.ID] = in
	return in, nil
}

func (r *memoryRepository) Get(_ context.Context, id string) (Intent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	in, ok := r.intents[id]
	if !ok {
		return Intent{}, ErrNotFound
	}
	return in, nil
}

func (r *memoryRepository) Due(_ context.Context, now time.Time, limit int) ([]Intent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Intent
	for _, in := range r.intents {
		if in.Status == StatusPending && !in.ScheduledFor.After(now) {
			out = append(out, in)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ScheduledFor.Before(out[j].ScheduledFor) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *memoryRepository) UpdateStatus(_ context.Context, id, from, to string) error {
	if !CanTransition(from, to) {
		return ErrInvalidTransition
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	in, ok := r.intents[id]
	if !ok {
		return ErrNotFound
	}
	if in.Status != from {
		return ErrInvalidTransition
	}
	in.Status = to
	in.UpdatedAt = time.Now().UTC()
	r.intents[id] = in
	return nil
}

func (r *memoryRepository) ListByOwner(_ context.Context, ownerID string, limit int) ([]Intent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Intent
	for _, in := range r.intents {
		if in.OwnerID == ownerID {
			out = append(out, in)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ScheduledFor.After(out[j].ScheduledFor) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
