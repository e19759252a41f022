package store

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jobmail-engine/internal/models"
)

func setupCheckpointStore(t *testing.T) (*RedisCheckpointStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewRedisCheckpointStore(client), mr
}

func TestCheckpointRoundTrip(t *testing.T) {
	s, _ := setupCheckpointStore(t)
	ctx := context.Background()

	cp := models.Checkpoint{
		Offset:    1500,
		Timestamp: time.Date(2026, 8, 20, 3, 0, 0, 0, time.UTC),
	}
	require.NoError(t, s.SaveCheckpoint(ctx, cp))

	got, err := s.LoadCheckpoint(ctx)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, int64(1500), got.Offset)
	assert.True(t, cp.Timestamp.Equal(got.Timestamp))
}

func TestLoadCheckpoint_AbsentMeansFreshStart(t *testing.T) {
	s, _ := setupCheckpointStore(t)

	got, err := s.LoadCheckpoint(context.Background())
	assert.NoError(t, err)
	assert.Nil(t, got)
}

func TestLoadCheckpoint_CorruptMeansFreshStart(t *testing.T) {
	s, mr := setupCheckpointStore(t)
	mr.Set(checkpointKey, "{broken")

	got, err := s.LoadCheckpoint(context.Background())
	assert.NoError(t, err)
	assert.Nil(t, got)
}

func TestSaveCheckpoint_OverwritesPrevious(t *testing.T) {
	s, _ := setupCheckpointStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveCheckpoint(ctx, models.Checkpoint{Offset: 100, Timestamp: time.Now()}))
	require.NoError(t, s.SaveCheckpoint(ctx, models.Checkpoint{Offset: 200, Timestamp: time.Now()}))

	got, err := s.LoadCheckpoint(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(200), got.Offset)
}

// ==========================
// Writer Lease
// ==========================

func TestAcquireLease_SingleWriter(t *testing.T) {
	s, _ := setupCheckpointStore(t)
	ctx := context.Background()

	ok, err := s.AcquireLease(ctx, "run-a", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	// A second owner is refused while the lease is held.
	ok, err = s.AcquireLease(ctx, "run-b", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	// The same owner re-acquires and extends.
	ok, err = s.AcquireLease(ctx, "run-a", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestAcquireLease_AvailableAfterExpiry(t *testing.T) {
	s, mr := setupCheckpointStore(t)
	ctx := context.Background()

	ok, err := s.AcquireLease(ctx, "run-a", time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	mr.FastForward(2 * time.Second)

	ok, err = s.AcquireLease(ctx, "run-b", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestReleaseLease_OnlyOwnerReleases(t *testing.T) {
	s, _ := setupCheckpointStore(t)
	ctx := context.Background()

	ok, err := s.AcquireLease(ctx, "run-a", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	// A non-owner release is a no-op.
	require.NoError(t, s.ReleaseLease(ctx, "run-b"))
	ok, err = s.AcquireLease(ctx, "run-b", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	// The owner's release frees it.
	require.NoError(t, s.ReleaseLease(ctx, "run-a"))
	ok, err = s.AcquireLease(ctx, "run-b", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestReleaseLease_NoLeaseHeld(t *testing.T) {
	s, _ := setupCheckpointStore(t)
	assert.NoError(t, s.ReleaseLease(context.Background(), "run-a"))
}
