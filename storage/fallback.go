package storage

import (
	"context"
	"errors"

	"github.com/ipfs/go-cid"
)

// Fallback writes to its first store and reads from each store in order
// until one has the artifact.
type Fallback []Store

func (f Fallback) Put(ctx context.Context, data []byte) (cid.Cid, error) {
	if len(f) == 0 {
		return cid.Undef, errors.New("storage: fallback has no stores")
	}
	return f[0].Put(ctx, data)
}

func (f Fallback) Get(ctx context.Context, id cid.Cid) ([]byte, error) {
	for _, s := range f {
		b, err := s.Get(ctx, id)
		if err == nil {
			return b, nil
		}
		if !IsNotFound(err) {
			return nil, err
		}
	}
	return nil, ErrNotFound
}

func (f Fallback) Has(ctx context.Context, id cid.Cid) (bool, error) {
	for _, s := range f {
		ok, err := s.Has(ctx, id)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}
