package localfs

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"xdao.co/credledger/cidutil"
	"xdao.co/credledger/storage"
	"xdao.co/credledger/storage/testkit"
)

func TestLocalFS_Conformance(t *testing.T) {
	testkit.RunStoreConformance(t, func(t *testing.T) storage.Store {
		t.Helper()
		s, err := New(t.TempDir())
		require.NoError(t, err)
		return s
	})
}

func TestLocalFS_DetectsTamperedArtifact(t *testing.T) {
	ctx := context.Background()
	s, err := New(t.TempDir())
	require.NoError(t, err)

	orig := []byte(`{"deploy_hash":"abc"}`)
	id, err := s.Put(ctx, orig)
	require.NoError(t, err)

	path := s.pathFor(id)
	require.NoError(t, os.Chmod(path, 0o644))
	require.NoError(t, os.WriteFile(path, []byte("tampered"), 0o644))

	_, err = s.Get(ctx, id)
	assert.ErrorIs(t, err, storage.ErrCIDMismatch)
	// Put must not overwrite what is on disk.
	_, err = s.Put(ctx, orig)
	assert.ErrorIs(t, err, storage.ErrImmutable)

	want, err := cidutil.Sum(orig)
	require.NoError(t, err)
	assert.True(t, id.Equals(want), "got %s want %s", id, want)
}

func TestLocalFS_CancelledContext(t *testing.T) {
	s, err := New(t.TempDir())
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = s.Put(ctx, []byte("x"))
	assert.ErrorIs(t, err, context.Canceled)
}
