// Package audit appends a durable trail of security-relevant conversation events.
package audit

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Actions recorded by the conversation flow.
const (
	ActionInbound       = "message.inbound"
	ActionUserCreated   = "user.created"
	ActionPINSet        = "pin.set"
	ActionWalletCreated = "wallet.created"
	ActionStaged        = "action.staged"
	ActionConfirmed     = "action.confirmed"
	ActionCancelled     = "action.cancelled"
	ActionAuthFailed    = "action.auth_failed"
	ActionExecuted      = "action.executed"
	ActionFailed        = "action.failed"
	ActionCouponRedeem  = "coupon.redeemed"
	ActionUserLocked    = "user.locked"
)

// Entry is one audit record. UserID is empty for events without a known user.
type Entry struct {
	ID               string
	UserID           string
	Action           string
	Details          map[string]any
	ChannelMessageID string
	CreatedAt        time.Time
}

// Repository persists audit entries.
type Repository interface {
	Log(ctx context.Context, entry Entry) error
	List(ctx context.Context, userID string, limit int) ([]Entry, error)
}

// PostgresRepository stores audit entries in PostgreSQL.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

func (r *PostgresRepository) Log(ctx context.Context, entry Entry) error {
	meta, err := json.Marshal(entry.Details)
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO audit_logs (id, user_id, action, details, channel_message_id, created_at)
		VALUES ($1, NULLIF($2, '')::uuid, $3, $4, NULLIF($5, ''), $6)
	`, entry.ID, entry.UserID, entry.Action, meta, entry.ChannelMessageID, entry.CreatedAt.UTC())
	return err
}

// List returns the newest entries first. An empty userID lists across all users.
func (r *PostgresRepository) List(ctx context.Context, userID string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id::text, COALESCE(user_id::text, ''), action, details, COALESCE(channel_message_id, ''), created_at
		FROM audit_logs WHERE ($1 = '' OR user_id::text = $1)
		ORDER BY created_at DESC LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var logs []Entry
	for rows.Next() {
		var (
			e    Entry
			meta []byte
		)
		if err := rows.Scan(&e.ID, &e.UserID, &e.Action, &meta, &e.ChannelMessageID, &e.CreatedAt); err != nil {
			return nil, err
		}
		if len(meta) > 0 {
			_ = json.Unmarshal(meta, &e.Details)
		}
		logs = append(logs, e)
	}
	return logs, rows.Err()
}

type memoryRepository struct {
	mu      sync.RWMutex
	entries []Entry
}

// NewMemoryRepository builds an in-memory audit trail.
func NewMemoryRepository() Repository {
	return &memoryRepository{}
}

func (r *memoryRepository) Log(_ context.Context, entry Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, entry)
	return nil
}

func (r *memoryRepository) List(_ context.Context, userID string, limit int) ([]Entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if limit <= 0 {
		limit = 50
	}
	var out []Entry
	for i := len(r.entries) - 1; i >= 0 && len(out) < limit; i-- {
		if userID == "" || r.entries[i].UserID == userID {
			out = append(out, r.entries[i])
		}
	}
	return out, nil
}

// Recorder writes entries without letting audit failures disturb the caller.
type Recorder struct {
	repo   Repository
	logger *slog.Logger
}

func NewRecorder(repo Repository, logger *slog.Logger) *Recorder {
	return &Recorder{repo: repo, logger: logger}
}

// Record appends an entry. Errors are logged and swallowed.
func (r *Recorder) Record(ctx context.Context, userID, action, messageID string, details map[string]any) {
	entry := Entry{
		ID:               uuid.NewString(),
		UserID:           userID,
		Action:           action,
		Details:          details,
		ChannelMessageID: messageID,
		CreatedAt:        time.Now().UTC(),
	}
	if err := r.repo.Log(ctx, entry); err != nil {
		r.logger.Warn("audit log failed", "action", action, "user_id", userID, "error", err)
	}
}
