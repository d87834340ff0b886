package pending

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "pending:v1:"

// RedisStore keeps staged actions in Redis so several API instances share them.
// Expiry is the key TTL; Confirm uses GETDEL so only one caller can take an action.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
	now    func() time.Time
}

// NewRedisStore builds a Redis-backed store. A non-positive ttl selects DefaultTTL.
func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisStore{client: client, ttl: ttl, now: time.Now}
}

func (s *RedisStore) Create(ctx context.Context, draft Action) (Action, error) {
	now := s.now().UTC()
	action := draft
	action.ID = uuid.NewString()
	action.PIN = ""
	action.CreatedAt = now
	action.ExpiresAt = now.Add(s.ttl)

	payload, err := json.Marshal(action)
	if err != nil {
		return Action{}, fmt.Errorf("encode pending action: %w", err)
	}
	// SET replaces any previous value, which is the supersede rule.
	if err := s.client.Set(ctx, key(action.UserID), payload, s.ttl).Err(); err != nil {
		return Action{}, fmt.Errorf("store pending action: %w", err)
	}
	return action, nil
}

func (s *RedisStore) Get(ctx context.Context, userID string) (Action, bool, error) {
	raw, err := s.client.Get(ctx, key(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Action{}, false, nil
	}
	if err != nil {
		return Action{}, false, fmt.Errorf("load pending action: %w", err)
	}
	action, err := decode(raw)
	if err != nil {
		return Action{}, false, err
	}
	if action.Expired(s.now()) {
		if err := s.client.Del(ctx, key(userID)).Err(); err != nil {
			return Action{}, false, fmt.Errorf("drop expired pending action: %w", err)
		}
		return Action{}, false, nil
	}
	return action, true, nil
}

func (s *RedisStore) Confirm(ctx context.Context, userID, pin string) (Action, bool, error) {
	raw, err := s.client.GetDel(ctx, key(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Action{}, false, nil
	}
	if err != nil {
		return Action{}, false, fmt.Errorf("take pending action: %w", err)
	}
	action, err := decode(raw)
	if err != nil {
		return Action{}, false, err
	}
	if action.Expired(s.now()) {
		return Action{}, false, nil
	}
	action.PIN = pin
	return action, true, nil
}

func (s *RedisStore) Cancel(ctx context.Context, userID string) (bool, error) {
	n, err := s.client.Del(ctx, key(userID)).Result()
	if err != nil {
		return false, fmt.Errorf("cancel pending action: %w", err)
	}
	return n > 0, nil
}

func key(userID string) string {
	return redisKeyPrefix + userID
}

func decode(raw []byte) (Action, error) {
	var action Action
	if err := json.Unmarshal(raw, &action); err != nil {
		return Action{}, fmt.Errorf("decode pending action: %w", err)
	}
	return action, nil
}
