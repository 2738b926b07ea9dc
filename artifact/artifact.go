// Package artifact stores model binaries in content-addressed storage.
// Model records on the ledger point at artifacts through ipfs:// URIs; the
// CID in the URI is the sole retrieval key and the sole integrity check.
//
// Contract for every Store implementation:
//   - Put is idempotent and returns the CID of the bytes written.
//   - Stored objects are immutable.
//   - Get verifies the returned bytes against the requested CID before
//     handing them to the caller; transport is never trusted for validity.
//   - Get returns ErrNotFound for absent CIDs.
package artifact

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"
)

var (
	ErrNotFound   = errors.New("artifact: not found")
	ErrInvalidCID = errors.New("artifact: invalid cid")
	ErrMismatch   = errors.New("artifact: bytes do not match cid")
	ErrImmutable  = errors.New("artifact: immutable object mismatch")
)

func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// Store is the content-addressable storage boundary.
type Store interface {
	Put(data []byte) (cid.Cid, error)
	Get(id cid.Cid) ([]byte, error)
	Has(id cid.Cid) bool
}

// Sum returns the CIDv1 (raw codec, sha2-256) for data. All stores in
// this repository key strictly by this CID form.
func Sum(data []byte) (cid.Cid, error) {
	mh, err := multihash.Sum(data, multihash.SHA2_256, -1)
	if err != nil {
		return cid.Undef, err
	}
	return cid.NewCidV1(cid.Raw, mh), nil
}

const uriScheme = "ipfs://"

// FormatURI renders the storage URI recorded on the ledger for a CID.
func FormatURI(id cid.Cid) string {
	return uriScheme + id.String()
}

// ParseURI extracts the CID from a ledger storage URI. Only ipfs:// URIs
// are understood; anything else is the ledger program's concern, not ours.
func ParseURI(uri string) (cid.Cid, error) {
	rest, ok := strings.CutPrefix(uri, uriScheme)
	if !ok {
		return cid.Undef, fmt.Errorf("%w: unsupported storage uri %q", ErrInvalidCID, uri)
	}
	id, err := cid.Decode(rest)
	if err != nil || !id.Defined() {
		return cid.Undef, fmt.Errorf("%w: %q", ErrInvalidCID, rest)
	}
	return id, nil
}

// Verify checks data against id and returns ErrMismatch on disagreement.
func Verify(id cid.Cid, data []byte) error {
	got, err := Sum(data)
	if err != nil {
		return err
	}
	if got != id {
		return ErrMismatch
	}
	return nil
}
