package journal

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runStoreConformance(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	_, err := s.Get(ctx, "missing")
	require.True(t, errors.Is(err, ErrNotFound), "expected ErrNotFound, got %v", err)

	require.NoError(t, s.Put(ctx, Entry{Deploy: "d1", Item: "7", Step: "verify", Status: StatusPending, SubmittedAt: now}))
	require.NoError(t, s.Put(ctx, Entry{Deploy: "d2", Item: "7", Step: "revoke", Status: StatusPending, SubmittedAt: now.Add(time.Minute)}))
	require.NoError(t, s.Put(ctx, Entry{Deploy: "d1", Item: "7", Step: "verify", Status: StatusSuccess, SubmittedAt: now, UpdatedAt: now.Add(5 * time.Second)}))

	e, err := s.Get(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, e.Status)

	all, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "d1", all[0].Deploy)
	assert.Equal(t, "d2", all[1].Deploy)

	open := Unresolved(all)
	require.Len(t, open, 1)
	assert.Equal(t, "d2", open[0].Deploy)

	assert.Error(t, s.Put(ctx, Entry{Item: "7"}))
}

func TestFileStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "journal.jsonl")
	s, err := OpenFile(path)
	require.NoError(t, err)
	defer s.Close()

	runStoreConformance(t, s)

	// Reopen and observe the same state.
	require.NoError(t, s.Close())
	s2, err := OpenFile(path)
	require.NoError(t, err)
	defer s2.Close()
	e, err := s2.Get(context.Background(), "d1")
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, e.Status)
}

func TestFileStore_CorruptLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.jsonl")
	require.NoError(t, os.WriteFile(path, []byte("{not json}\n"), 0o644))
	s, err := OpenFile(path)
	require.NoError(t, err)
	defer s.Close()
	_, err = s.List(context.Background())
	assert.Error(t, err)
}

func TestRedisStore(t *testing.T) {
	addr := os.Getenv("CREDLEDGER_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("set CREDLEDGER_TEST_REDIS_ADDR to run against a Redis server")
	}
	s, err := NewRedisStore(RedisOptions{Addr: addr})
	require.NoError(t, err)
	s.prefix = "credledger:test:" + uuid.NewString()
	defer s.Close()

	runStoreConformance(t, s)
}

func TestNewRedisStore_RequiresAddr(t *testing.T) {
	_, err := NewRedisStore(RedisOptions{})
	assert.Error(t, err)
}
