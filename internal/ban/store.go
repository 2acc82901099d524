// Package ban provides user-ID-based ban management backed by Redis.
// Ban records are stored as simple key-value pairs with TTL-based expiry:
//
//	Key:   ban:<userID>
//	Value: <reason>
//	TTL:   ban duration
//
// Repeat offenses escalate through a counter key with its own TTL.
package ban

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// BanPrefix is the Redis key prefix for ban records.
	BanPrefix = "ban:"

	// OffensesPrefix is the Redis key prefix for offense counters used by
	// the escalating ban durations.
	OffensesPrefix = "offenses:"

	// Escalating ban durations.
	Ban15Min  = 15 * time.Minute // 1st offense
	Ban1Hour  = 1 * time.Hour    // 2nd offense
	Ban24Hour = 24 * time.Hour   // 3rd+ offense

	// OffensesTTL is how long the offense counter lives in Redis. After 24h
	// without new offenses the counter resets to zero.
	OffensesTTL = 24 * time.Hour

	// AutoBanThreshold is the number of moderation flags within OffensesTTL
	// that triggers an automatic ban.
	AutoBanThreshold = 3
)

// Store manages ban records in Redis.
type Store struct {
	client *redis.Client
}

// NewStore creates a new ban store using the provided Redis client.
func NewStore(client *redis.Client) *Store {
	return &Store{client: client}
}

// IsBanned checks if a user is currently banned.
// Returns (isBanned, remainingSeconds, reason, error). If the user is not
// banned, isBanned is false and the other return values are zero/empty.
// Redis errors are returned so callers can decide how to handle them (the
// recommended policy is fail-open).
func (s *Store) IsBanned(ctx context.Context, userID string) (bool, int, string, error) {
	key := BanPrefix + userID

	reason, err := s.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return false, 0, "", nil
	}
	if err != nil {
		return false, 0, "", err
	}

	ttl, err := s.client.TTL(ctx, key).Result()
	if err != nil {
		// The ban exists but the TTL is unreadable. Report banned with 0
		// remaining rather than swallowing the ban.
		return true, 0, reason, nil
	}

	remaining := 0
	if ttl > 0 {
		remaining = int(ttl.Seconds())
	}

	return true, remaining, reason, nil
}

// Ban records a ban for the given duration and reason.
func (s *Store) Ban(ctx context.Context, userID string, duration time.Duration, reason string) error {
	key := BanPrefix + userID
	if err := s.client.Set(ctx, key, reason, duration).Err(); err != nil {
		return fmt.Errorf("ban: set %s: %w", userID, err)
	}
	return nil
}

// Unban removes a ban immediately. Unbanning a user who is not banned is a
// no-op.
func (s *Store) Unban(ctx context.Context, userID string) error {
	key := BanPrefix + userID
	if err := s.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("ban: del %s: %w", userID, err)
	}
	return nil
}

// RecordOffense increments the user's offense counter and refreshes its TTL.
// It returns the new count so callers can apply the auto-ban threshold.
func (s *Store) RecordOffense(ctx context.Context, userID string) (int, error) {
	key := OffensesPrefix + userID

	pipe := s.client.Pipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, OffensesTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("ban: record offense %s: %w", userID, err)
	}
	return int(incr.Val()), nil
}

// EscalationDuration maps an offense count to the ban duration it earns.
func EscalationDuration(count int) time.Duration {
	switch {
	case count <= 1:
		return Ban15Min
	case count == 2:
		return Ban1Hour
	default:
		return Ban24Hour
	}
}
