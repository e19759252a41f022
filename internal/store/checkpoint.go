package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	apperrors "jobmail-engine/internal/common/errors"
	"jobmail-engine/internal/models"
)

const (
	checkpointKey = "batch:checkpoint"
	leaseKey      = "batch:orchestrator:lease"
)

// RedisCheckpointStore persists the batch checkpoint in Redis. The lease
// key enforces the single-writer invariant when multiple orchestrator
// processes could run concurrently.
type RedisCheckpointStore struct {
	client *redis.Client
}

var _ CheckpointStore = (*RedisCheckpointStore)(nil)

func NewRedisCheckpointStore(client *redis.Client) *RedisCheckpointStore {
	return &RedisCheckpointStore{client: client}
}

func (s *RedisCheckpointStore) LoadCheckpoint(ctx context.Context) (*models.Checkpoint, error) {
	val, err := s.client.Get(ctx, checkpointKey).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.NewStoreUnavailableError(err)
	}

	var cp models.Checkpoint
	if err := json.Unmarshal([]byte(val), &cp); err != nil {
		// A corrupt checkpoint means a full re-run, not a crash.
		return nil, nil
	}
	return &cp, nil
}

func (s *RedisCheckpointStore) SaveCheckpoint(ctx context.Context, cp models.Checkpoint) error {
	data, err := json.Marshal(cp)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, checkpointKey, data, 0).Err(); err != nil {
		return apperrors.NewCheckpointFailedError(err)
	}
	return nil
}

// AcquireLease takes the orchestrator writer lease. Returns false when
// another owner currently holds it.
func (s *RedisCheckpointStore) AcquireLease(ctx context.Context, owner string, ttl time.Duration) (bool, error) {
	ok, err := s.client.SetNX(ctx, leaseKey, owner, ttl).Result()
	if err != nil {
		return false, apperrors.NewStoreUnavailableError(err)
	}
	if ok {
		return true, nil
	}

	current, err := s.client.Get(ctx, leaseKey).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return false, apperrors.NewStoreUnavailableError(err)
	}
	if current == owner {
		// Re-acquisition by the same owner extends the lease.
		if err := s.client.Set(ctx, leaseKey, owner, ttl).Err(); err != nil {
			return false, apperrors.NewStoreUnavailableError(err)
		}
		return true, nil
	}
	return false, nil
}

// ReleaseLease drops the lease only when still held by owner.
func (s *RedisCheckpointStore) ReleaseLease(ctx context.Context, owner string) error {
	current, err := s.client.Get(ctx, leaseKey).Result()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		return apperrors.NewStoreUnavailableError(err)
	}
	if current != owner {
		return nil
	}
	return s.client.Del(ctx, leaseKey).Err()
}
