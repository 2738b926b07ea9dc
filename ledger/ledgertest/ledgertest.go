// Package ledgertest provides an in-memory ledger.Reader for tests. Tests
// seed it with encoded records at derived addresses and can force outages
// to exercise unavailability paths.
package ledgertest

import (
	"bytes"
	"context"
	"sort"
	"sync"

	"tensormart.io/market/ledger"
)

// Reader is a concurrency-safe fake ledger.
type Reader struct {
	mu       sync.RWMutex
	accounts map[ledger.Address][]byte
	down     bool
}

var _ ledger.Reader = (*Reader)(nil)

func New() *Reader {
	return &Reader{accounts: make(map[ledger.Address][]byte)}
}

// Put stores raw account bytes at addr, replacing any previous value.
func (r *Reader) Put(addr ledger.Address, data []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.accounts[addr] = append([]byte(nil), data...)
}

// Delete removes the account at addr.
func (r *Reader) Delete(addr ledger.Address) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.accounts, addr)
}

// SetUnavailable makes every subsequent call fail with ledger.ErrUnavailable.
func (r *Reader) SetUnavailable(down bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.down = down
}

func (r *Reader) GetByAddress(_ context.Context, addr ledger.Address) ([]byte, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.down {
		return nil, ledger.ErrUnavailable
	}
	data, ok := r.accounts[addr]
	if !ok {
		return nil, ledger.ErrNotFound
	}
	return append([]byte(nil), data...), nil
}

func (r *Reader) Scan(_ context.Context, filters []ledger.MemcmpFilter) ([]ledger.Entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.down {
		return nil, ledger.ErrUnavailable
	}

	var entries []ledger.Entry
	for addr, data := range r.accounts {
		if matchesAll(data, filters) {
			entries = append(entries, ledger.Entry{
				Address: addr,
				Data:    append([]byte(nil), data...),
			})
		}
	}
	// Map iteration order is random; tests need stable listings.
	sort.Slice(entries, func(i, j int) bool {
		return bytes.Compare(entries[i].Address[:], entries[j].Address[:]) < 0
	})
	return entries, nil
}

func matchesAll(data []byte, filters []ledger.MemcmpFilter) bool {
	for _, f := range filters {
		if f.Offset < 0 || f.Offset+len(f.Bytes) > len(data) {
			return false
		}
		if !bytes.Equal(data[f.Offset:f.Offset+len(f.Bytes)], f.Bytes) {
			return false
		}
	}
	return true
}
