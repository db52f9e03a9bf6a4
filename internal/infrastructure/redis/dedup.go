package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	processedKeyPrefix = "consumer:processed:"
	retryKeyPrefix     = "consumer:retries:"
)

// DedupStore keeps processed-message markers and per-message failure counters.
// Keys expire after the configured TTL.
type DedupStore struct {
	client *redis.Client
}

func NewDedupStore(client *redis.Client) *DedupStore {
	return &DedupStore{client: client}
}

func (s *DedupStore) IsProcessed(ctx context.Context, messageID string) (bool, error) {
	n, err := s.client.Exists(ctx, processedKeyPrefix+messageID).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check processed marker: %w", err)
	}
	return n > 0, nil
}

func (s *DedupStore) MarkProcessed(ctx context.Context, messageID string, ttl time.Duration) error {
	if err := s.client.Set(ctx, processedKeyPrefix+messageID, "1", ttl).Err(); err != nil {
		return fmt.Errorf("failed to write processed marker: %w", err)
	}
	return nil
}

// IncrRetry records one more failed attempt and returns the total so far.
func (s *DedupStore) IncrRetry(ctx context.Context, messageID string, ttl time.Duration) (int, error) {
	key := retryKeyPrefix + messageID
	var incr *redis.IntCmd
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, key)
		pipe.Expire(ctx, key, ttl)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to increment retry counter: %w", err)
	}
	return int(incr.Val()), nil
}
