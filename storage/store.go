// Package storage persists lifecycle artifacts: raw node responses, parsed
// records, signed deploys and execution outcomes.
//
// Artifacts are immutable and content addressed. Every backend keys them by
// the CIDv1 (raw codec, sha2-256) of their bytes and verifies that identity on
// read. Which artifacts belong to which credential is tracked separately in a
// Manifest.
package storage

import (
	"context"

	"github.com/ipfs/go-cid"

	"xdao.co/credledger/cidutil"
)

// Store is a content-addressed artifact store.
//
// Put is idempotent. Get returns ErrNotFound when the CID is absent and
// ErrCIDMismatch when stored bytes no longer hash to the CID.
type Store interface {
	Put(ctx context.Context, data []byte) (cid.Cid, error)
	Get(ctx context.Context, id cid.Cid) ([]byte, error)
	Has(ctx context.Context, id cid.Cid) (bool, error)
}

// Verify checks that data hashes to id.
func Verify(id cid.Cid, data []byte) error {
	if !id.Defined() {
		return ErrInvalidCID
	}
	got, err := cidutil.Sum(data)
	if err != nil {
		return err
	}
	if !got.Equals(id) {
		return ErrCIDMismatch
	}
	return nil
}
