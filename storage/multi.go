package storage

import (
	"context"

	"github.com/ipfs/go-cid"
)

// MultiCAS reads from several stores in a fixed order and writes only to the
// first. Callers choose the order; it is never derived from a map.
type MultiCAS struct {
	Adapters []CAS
}

var _ CAS = MultiCAS{}

func (m MultiCAS) Put(ctx context.Context, data []byte) (cid.Cid, error) {
	if len(m.Adapters) == 0 {
		return cid.Undef, ErrNoBackends
	}
	return m.Adapters[0].Put(ctx, data)
}

func (m MultiCAS) Get(ctx context.Context, id cid.Cid) ([]byte, error) {
	return getOrdered(ctx, id, m.Adapters)
}

func (m MultiCAS) Has(ctx context.Context, id cid.Cid) (bool, error) {
	return hasAny(ctx, id, m.Adapters)
}

// getOrdered returns the first hit. A hard error from any store stops the
// search; misses fall through.
func getOrdered(ctx context.Context, id cid.Cid, stores []CAS) ([]byte, error) {
	if !id.Defined() {
		return nil, ErrInvalidCID
	}
	for _, s := range stores {
		if s == nil {
			continue
		}
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

func hasAny(ctx context.Context, id cid.Cid, stores []CAS) (bool, error) {
	if !id.Defined() {
		return false, nil
	}
	for _, s := range stores {
		if s == nil {
			continue
		}
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
