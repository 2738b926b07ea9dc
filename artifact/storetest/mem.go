package storetest

import (
	"sync"

	"github.com/ipfs/go-cid"

	"tensormart.io/market/artifact"
)

// Mem is an in-memory artifact.Store for tests.
type Mem struct {
	mu      sync.RWMutex
	objects map[cid.Cid][]byte
}

var _ artifact.Store = (*Mem)(nil)

func NewMem() *Mem {
	return &Mem{objects: make(map[cid.Cid][]byte)}
}

func (m *Mem) Put(data []byte) (cid.Cid, error) {
	id, err := artifact.Sum(data)
	if err != nil {
		return cid.Undef, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[id] = append([]byte(nil), data...)
	return id, nil
}

func (m *Mem) Get(id cid.Cid) ([]byte, error) {
	if !id.Defined() {
		return nil, artifact.ErrInvalidCID
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.objects[id]
	if !ok {
		return nil, artifact.ErrNotFound
	}
	return append([]byte(nil), b...), nil
}

func (m *Mem) Has(id cid.Cid) bool {
	if !id.Defined() {
		return false
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.objects[id]
	return ok
}
