// Package idempotency remembers the outcome of booking requests so a
// client retry with the same key replays the first answer instead of
// booking twice.
package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrInProgress is returned while the first request for a key is running.
var ErrInProgress = errors.New("idempotency: request in progress")

const pending = "pending"

// Record is the stored response of a completed request.
type Record struct {
	Status int             `json:"status"`
	Body   json.RawMessage `json:"body"`
}

// Store keeps records in Redis for ttl. A nil *Store disables replay.
type Store struct {
	client *redis.Client
	ttl    time.Duration
}

func NewStore(client *redis.Client, ttl time.Duration) *Store {
	if client == nil {
		return nil
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Store{client: client, ttl: ttl}
}

func redisKey(businessID, key string) string {
	return fmt.Sprintf("booking:idem:%s:%s", businessID, key)
}

// Begin claims key. It returns (nil, nil) when the caller should run the
// request, a Record to replay when one is stored, or ErrInProgress.
func (s *Store) Begin(ctx context.Context, businessID, key string) (*Record, error) {
	key = strings.TrimSpace(key)
	if s == nil || key == "" {
		return nil, nil
	}
	k := redisKey(businessID, key)
	ok, err := s.client.SetNX(ctx, k, pending, s.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("idempotency: claim: %w", err)
	}
	if ok {
		return nil, nil
	}
	raw, err := s.client.Get(ctx, k).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrInProgress
	}
	if err != nil {
		return nil, fmt.Errorf("idempotency: load: %w", err)
	}
	if raw == pending {
		return nil, ErrInProgress
	}
	var rec Record
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return nil, fmt.Errorf("idempotency: decode: %w", err)
	}
	return &rec, nil
}

// Finish stores the response for key.
func (s *Store) Finish(ctx context.Context, businessID, key string, rec Record) error {
	key = strings.TrimSpace(key)
	if s == nil || key == "" {
		return nil
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("idempotency: encode: %w", err)
	}
	if err := s.client.Set(ctx, redisKey(businessID, key), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("idempotency: save: %w", err)
	}
	return nil
}

// Abandon releases a claim so the client may retry, used when the request
// failed for a reason worth retrying.
func (s *Store) Abandon(ctx context.Context, businessID, key string) {
	key = strings.TrimSpace(key)
	if s == nil || key == "" {
		return
	}
	_ = s.client.Del(ctx, redisKey(businessID, key)).Err()
}
