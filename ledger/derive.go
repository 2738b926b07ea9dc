package ledger

import (
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"

	"filippo.io/edwards25519"
)

// Seed prefixes used by the marketplace program. These are domain
// separation tags: records of different kinds can never collide even for
// identical key fields.
const (
	seedMarketplace = "marketplace"
	seedModel       = "model"
	seedAccess      = "access"
	seedUsage       = "usage"
)

// Derivation limits enforced by the ledger runtime.
const (
	maxSeedLen = 32
	maxSeeds   = 16
)

const derivedAddressMarker = "ProgramDerivedAddress"

var errNoBump = errors.New("ledger: unable to find a valid bump seed")

// Derivation is the result of a program-derived address computation. The
// bump is the highest value in [0,255] for which the candidate hash falls
// off the ed25519 curve; the program stores it so the record can re-derive
// and verify its own address.
type Derivation struct {
	Address Address
	Bump    uint8
}

// DeriveMarketplace derives the singleton marketplace address for program.
func DeriveMarketplace(program Address) (Derivation, error) {
	return findDerivedAddress(program, []byte(seedMarketplace))
}

// DeriveModel derives the address of the model record listed by creator
// under the given sequence number. The sequence number is serialized as an
// 8-byte little-endian unsigned integer, matching the program's layout.
func DeriveModel(program Address, creator Principal, modelID uint64) (Derivation, error) {
	var seq [8]byte
	binary.LittleEndian.PutUint64(seq[:], modelID)
	return findDerivedAddress(program, []byte(seedModel), creator[:], seq[:])
}

// DeriveAccess derives the address of the access record for (user, model).
// At most one live access record exists per pair because the pair fully
// determines the address.
func DeriveAccess(program Address, user Principal, model Address) (Derivation, error) {
	return findDerivedAddress(program, []byte(seedAccess), user[:], model[:])
}

// DeriveUsage derives the address of the usage record for a specific
// inference. The fingerprint participates as its raw 32-byte digest; the
// hex text form would exceed the ledger's per-seed limit and would derive
// an address the program never uses.
func DeriveUsage(program Address, user Principal, model Address, inferenceDigest [32]byte) (Derivation, error) {
	return findDerivedAddress(program, []byte(seedUsage), user[:], model[:], inferenceDigest[:])
}

// findDerivedAddress searches bump values from 255 downward and returns
// the first candidate that is not a valid ed25519 curve point. This
// mirrors the ledger runtime exactly: an on-curve candidate would be a
// spendable key, which derived records must never be.
func findDerivedAddress(program Address, seeds ...[]byte) (Derivation, error) {
	if len(seeds) > maxSeeds {
		return Derivation{}, fmt.Errorf("ledger: %d seeds exceeds the limit of %d", len(seeds), maxSeeds)
	}
	for _, s := range seeds {
		if len(s) > maxSeedLen {
			return Derivation{}, fmt.Errorf("ledger: seed of %d bytes exceeds the limit of %d", len(s), maxSeedLen)
		}
	}
	for bump := 255; bump >= 0; bump-- {
		h := sha256.New()
		for _, s := range seeds {
			h.Write(s)
		}
		h.Write([]byte{uint8(bump)})
		h.Write(program[:])
		h.Write([]byte(derivedAddressMarker))

		var cand Address
		copy(cand[:], h.Sum(nil))
		if !onCurve(cand) {
			return Derivation{Address: cand, Bump: uint8(bump)}, nil
		}
	}
	return Derivation{}, errNoBump
}

// onCurve reports whether the 32 bytes decompress to a valid ed25519
// point. Roughly half of all candidates do; the bump search exists to skip
// them.
func onCurve(a Address) bool {
	_, err := new(edwards25519.Point).SetBytes(a[:])
	return err == nil
}
