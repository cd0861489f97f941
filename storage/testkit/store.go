// Package testkit holds the conformance suite every storage.Store backend
// must pass.
package testkit

import (
	"context"
	"testing"

	"github.com/ipfs/go-cid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"xdao.co/credledger/cidutil"
	"xdao.co/credledger/storage"
)

// NewStore returns a fresh, empty store isolated from other tests.
type NewStore func(t *testing.T) storage.Store

func RunStoreConformance(t *testing.T, newStore NewStore) {
	t.Helper()
	ctx := context.Background()

	t.Run("PutGetRoundTrip", func(t *testing.T) {
		s := newStore(t)
		want := []byte(`{"state_root_hash":"root-1","fields":{}}`)

		id, err := s.Put(ctx, want)
		require.NoError(t, err)
		wantID, err := cidutil.Sum(want)
		require.NoError(t, err)
		require.True(t, id.Equals(wantID), "Put CID mismatch: got %s want %s", id, wantID)

		got, err := s.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	})

	t.Run("PutIdempotent", func(t *testing.T) {
		s := newStore(t)
		b := []byte("same deploy")

		id1, err := s.Put(ctx, b)
		require.NoError(t, err)
		id2, err := s.Put(ctx, b)
		require.NoError(t, err)
		assert.True(t, id1.Equals(id2), "Put not idempotent: %s vs %s", id1, id2)
	})

	t.Run("HasAndNotFound", func(t *testing.T) {
		s := newStore(t)
		b := []byte("missing outcome")
		id, err := cidutil.Sum(b)
		require.NoError(t, err)

		ok, err := s.Has(ctx, id)
		require.NoError(t, err)
		assert.False(t, ok)
		_, err = s.Get(ctx, id)
		assert.True(t, storage.IsNotFound(err), "Get missing: %v", err)

		_, err = s.Put(ctx, b)
		require.NoError(t, err)
		ok, err = s.Has(ctx, id)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("RejectUndefCID", func(t *testing.T) {
		s := newStore(t)
		var undef cid.Cid
		ok, _ := s.Has(ctx, undef)
		assert.False(t, ok)
		_, err := s.Get(ctx, undef)
		assert.Error(t, err)
	})

	t.Run("EmptyPayload", func(t *testing.T) {
		s := newStore(t)
		id, err := s.Put(ctx, []byte{})
		require.NoError(t, err)
		got, err := s.Get(ctx, id)
		require.NoError(t, err)
		assert.Empty(t, got)
	})
}
