package ledger

import (
	"context"
	"errors"
)

var (
	// ErrNotFound reports that no record exists at the requested address.
	// Absence is an ordinary outcome, not a transport failure.
	ErrNotFound = errors.New("ledger: record not found")

	// ErrUnavailable reports that the ledger could not be reached or did
	// not answer in time. It must never be conflated with ErrNotFound:
	// callers need to distinguish "no entitlement" from "could not
	// determine entitlement".
	ErrUnavailable = errors.New("ledger: unavailable")
)

func IsNotFound(err error) bool    { return errors.Is(err, ErrNotFound) }
func IsUnavailable(err error) bool { return errors.Is(err, ErrUnavailable) }

// Discriminator is the 8-byte tag leading every program account,
// identifying which record kind the remaining bytes encode.
type Discriminator [8]byte

// MemcmpFilter matches accounts whose raw bytes equal Bytes at Offset.
// Offset 0 with a discriminator narrows a scan to one record kind;
// offset 8 matches the first field after the discriminator.
type MemcmpFilter struct {
	Offset int
	Bytes  []byte
}

// Entry pairs an account's address with its raw bytes as returned by a scan.
type Entry struct {
	Address Address
	Data    []byte
}

// Reader is the narrow read interface the engine depends on. The ledger
// program owns and mutates all records; implementations only fetch
// point-in-time snapshots.
//
// Contract:
//   - GetByAddress returns ErrNotFound when no record exists at addr.
//   - Transport failures and timeouts surface wrapped in ErrUnavailable.
//   - Scan returns all program accounts matching every filter; an empty
//     result is not an error.
type Reader interface {
	GetByAddress(ctx context.Context, addr Address) ([]byte, error)
	Scan(ctx context.Context, filters []MemcmpFilter) ([]Entry, error)
}
