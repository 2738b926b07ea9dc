package artifact

import (
	"errors"

	"github.com/ipfs/go-cid"
)

// Tiered reads from an ordered list of stores with deterministic fallback
// and writes only to the first. Slice order is the retrieval strategy;
// callers must supply a fixed order.
//
// Typical wiring: a fast local store first, a pinning backend second.
type Tiered struct {
	Stores []Store
}

var _ Store = Tiered{}

func (t Tiered) Put(data []byte) (cid.Cid, error) {
	if len(t.Stores) == 0 {
		return cid.Undef, errors.New("artifact: tiered store has no backends")
	}
	return t.Stores[0].Put(data)
}

func (t Tiered) Get(id cid.Cid) ([]byte, error) {
	var sawNotFound bool
	for _, s := range t.Stores {
		b, err := s.Get(id)
		if err == nil {
			return b, nil
		}
		if IsNotFound(err) {
			sawNotFound = true
			continue
		}
		return nil, err
	}
	if sawNotFound {
		return nil, ErrNotFound
	}
	return nil, errors.New("artifact: tiered store has no backends")
}

func (t Tiered) Has(id cid.Cid) bool {
	for _, s := range t.Stores {
		if s.Has(id) {
			return true
		}
	}
	return false
}
