package ledger

import (
	"crypto/sha256"
	"testing"
)

// Fixture addresses computed independently for the deployed program. Any
// change to seed contents, seed order or the hashing rule shows up here
// as a byte-level mismatch.
const (
	fixtureProgram     = "8g37Z8wZR9xMaHQRP8W8FzWqAj1A8VRt2c4t6LnBqAyb"
	fixtureMarketplace = "8hSynym9RZwfboN55eKGHiZy4AgrfmqML1iPyBiSq1u"
	fixtureModel       = "B7s8qaFGEPgyAqVjXcSZ5XSoHSZHqVs8c5WBQyxEXLCs"
	fixtureAccess      = "8omBycRTj3VRZMdEUYc6befDYgRK3R15VJozX8RFnHon"
	fixtureUsage       = "4ZfEfMQwBiQUMS65Z4iPqa2ck1CrYq2WCe6R5wguPBhM"
)

func fixtureKeys(t *testing.T) (program Address, creator, user Principal) {
	t.Helper()
	var err error
	program, err = ParseAddress(fixtureProgram)
	if err != nil {
		t.Fatalf("ParseAddress(program): %v", err)
	}
	creator = Principal(sha256.Sum256([]byte("fixture-creator")))
	user = Principal(sha256.Sum256([]byte("fixture-user")))
	return program, creator, user
}

func TestDeriveKnownAddresses(t *testing.T) {
	program, creator, user := fixtureKeys(t)

	mkt, err := DeriveMarketplace(program)
	if err != nil {
		t.Fatalf("DeriveMarketplace: %v", err)
	}
	if got := mkt.Address.String(); got != fixtureMarketplace {
		t.Fatalf("marketplace address = %s, want %s", got, fixtureMarketplace)
	}
	if mkt.Bump != 252 {
		t.Fatalf("marketplace bump = %d, want 252", mkt.Bump)
	}

	model, err := DeriveModel(program, creator, 1)
	if err != nil {
		t.Fatalf("DeriveModel: %v", err)
	}
	if got := model.Address.String(); got != fixtureModel {
		t.Fatalf("model address = %s, want %s", got, fixtureModel)
	}

	access, err := DeriveAccess(program, user, model.Address)
	if err != nil {
		t.Fatalf("DeriveAccess: %v", err)
	}
	if got := access.Address.String(); got != fixtureAccess {
		t.Fatalf("access address = %s, want %s", got, fixtureAccess)
	}

	digest := sha256.Sum256([]byte("fixture-inference"))
	usage, err := DeriveUsage(program, user, model.Address, digest)
	if err != nil {
		t.Fatalf("DeriveUsage: %v", err)
	}
	if got := usage.Address.String(); got != fixtureUsage {
		t.Fatalf("usage address = %s, want %s", got, fixtureUsage)
	}
}

func TestDeriveDeterministic(t *testing.T) {
	program, creator, _ := fixtureKeys(t)

	a, err := DeriveModel(program, creator, 42)
	if err != nil {
		t.Fatalf("DeriveModel(1st): %v", err)
	}
	b, err := DeriveModel(program, creator, 42)
	if err != nil {
		t.Fatalf("DeriveModel(2nd): %v", err)
	}
	if a != b {
		t.Fatalf("derivation not deterministic: %s vs %s", a.Address, b.Address)
	}
}

func TestDeriveDistinctKeys(t *testing.T) {
	program, creator, _ := fixtureKeys(t)

	seen := make(map[Address]uint64)
	for id := uint64(0); id < 100; id++ {
		d, err := DeriveModel(program, creator, id)
		if err != nil {
			t.Fatalf("DeriveModel(%d): %v", id, err)
		}
		if prev, dup := seen[d.Address]; dup {
			t.Fatalf("model ids %d and %d derived the same address %s", prev, id, d.Address)
		}
		seen[d.Address] = id
	}
}

// Hashing the base58 text of a principal instead of its raw bytes would
// still produce stable, plausible-looking addresses that the ledger never
// uses. Pin the difference explicitly.
func TestDeriveUsesRawPrincipalBytes(t *testing.T) {
	program, _, user := fixtureKeys(t)
	model, err := ParseAddress(fixtureModel)
	if err != nil {
		t.Fatalf("ParseAddress: %v", err)
	}

	good, err := DeriveAccess(program, user, model)
	if err != nil {
		t.Fatalf("DeriveAccess: %v", err)
	}

	textDerived, err := findDerivedAddress(program,
		[]byte(seedAccess),
		[]byte(user.String())[:maxSeedLen],
		[]byte(model.String())[:maxSeedLen],
	)
	if err != nil {
		t.Fatalf("text-seed derivation: %v", err)
	}
	if textDerived.Address == good.Address {
		t.Fatalf("text-encoded seeds produced the canonical address; raw-bytes test is vacuous")
	}
	if good.Address.String() != fixtureAccess {
		t.Fatalf("raw-bytes derivation = %s, want %s", good.Address, fixtureAccess)
	}
}

func TestDeriveSeedLimits(t *testing.T) {
	program, _, _ := fixtureKeys(t)

	if _, err := findDerivedAddress(program, make([]byte, maxSeedLen+1)); err == nil {
		t.Fatalf("oversized seed accepted")
	}

	seeds := make([][]byte, maxSeeds+1)
	for i := range seeds {
		seeds[i] = []byte{byte(i)}
	}
	if _, err := findDerivedAddress(program, seeds...); err == nil {
		t.Fatalf("too many seeds accepted")
	}
}

func TestOnCurveKnownPoint(t *testing.T) {
	// RFC 8032 test vector public key: a valid curve point by definition.
	var a Address
	copy(a[:], mustHex(t, "d75a980182b10ab7d54bfed3c964073a0ee172f3daa62325af021a68f707511a"))
	if !onCurve(a) {
		t.Fatalf("known ed25519 public key reported off-curve")
	}
}

func mustHex(t *testing.T, s string) []byte {
	t.Helper()
	out := make([]byte, len(s)/2)
	for i := 0; i < len(out); i++ {
		hi := hexVal(t, s[2*i])
		lo := hexVal(t, s[2*i+1])
		out[i] = hi<<4 | lo
	}
	return out
}

func hexVal(t *testing.T, c byte) byte {
	switch {
	case c >= '0' && c <= '9':
		return c - '0'
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10
	default:
		t.Fatalf("bad hex char %q", c)
		return 0
	}
}
