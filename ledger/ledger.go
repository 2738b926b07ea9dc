// Package ledger defines the read-side view of the marketplace ledger
// program: principal and address types, deterministic program-derived
// address computation, and the Reader boundary through which raw account
// bytes are fetched. The package never writes to the ledger.
package ledger

import (
	"fmt"

	"github.com/mr-tron/base58"
)

// Principal is a 32-byte public key referenced by ledger records as
// creator, user, authority or treasury.
type Principal [32]byte

// Address locates a single record on the ledger. Addresses for marketplace
// records are derived, never chosen (see derive.go).
type Address [32]byte

// ParsePrincipal decodes the base58 text form of a principal.
func ParsePrincipal(s string) (Principal, error) {
	var p Principal
	b, err := base58.Decode(s)
	if err != nil {
		return p, fmt.Errorf("ledger: invalid principal %q: %w", s, err)
	}
	if len(b) != len(p) {
		return p, fmt.Errorf("ledger: invalid principal %q: got %d bytes, want 32", s, len(b))
	}
	copy(p[:], b)
	return p, nil
}

// ParseAddress decodes the base58 text form of an address.
func ParseAddress(s string) (Address, error) {
	var a Address
	b, err := base58.Decode(s)
	if err != nil {
		return a, fmt.Errorf("ledger: invalid address %q: %w", s, err)
	}
	if len(b) != len(a) {
		return a, fmt.Errorf("ledger: invalid address %q: got %d bytes, want 32", s, len(b))
	}
	copy(a[:], b)
	return a, nil
}

func (p Principal) String() string { return base58.Encode(p[:]) }
func (a Address) String() string   { return base58.Encode(a[:]) }

// Bytes returns the raw key material. Derivation hashes these bytes,
// never the base58 text form.
func (p Principal) Bytes() []byte { return append([]byte(nil), p[:]...) }
func (a Address) Bytes() []byte   { return append([]byte(nil), a[:]...) }

func (p Principal) IsZero() bool { return p == Principal{} }
func (a Address) IsZero() bool   { return a == Address{} }
