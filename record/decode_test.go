package record

import (
	"crypto/sha256"
	"encoding/hex"
	"reflect"
	"testing"

	"tensormart.io/market/ledger"
)

func testPrincipal(tag string) ledger.Principal {
	return ledger.Principal(sha256.Sum256([]byte(tag)))
}

func testAddress(tag string) ledger.Address {
	return ledger.Address(sha256.Sum256([]byte(tag)))
}

func sampleMarketplace() *Marketplace {
	return &Marketplace{
		Authority:      testPrincipal("authority"),
		Treasury:       testPrincipal("treasury"),
		ProtocolFeeBps: 250,
		TotalModels:    12,
		Bump:           252,
	}
}

func sampleModel() *Model {
	return &Model{
		Creator:         testPrincipal("creator"),
		Name:            "sentiment-classifier",
		Description:     "Binary sentiment model trained on product reviews.",
		ModelHash:       "9f86d081884c7d659a2feaa0c55ad015a3bf4f1b2b0b822cd15d6c15b0f00a08",
		StorageURI:      "ipfs://bafkreigh2akiscaildcqabsyg3dfr6chu3fgpregiymsck7e7aqa4s52zy",
		ModelSize:       1 << 20,
		InferencePrice:  5_000,
		DownloadPrice:   250_000,
		PaymentToken:    PaymentNative,
		TotalInferences: 42,
		TotalDownloads:  3,
		TotalRevenue:    960_000,
		IsActive:        true,
		CreatedAt:       1_756_000_000,
		ModelID:         7,
		Bump:            255,
	}
}

func sampleAccess(expiresAt *int64) *Access {
	return &Access{
		User:           testPrincipal("user"),
		Model:          testAddress("model"),
		AccessType:     AccessInference,
		PurchasedAt:    1_756_100_000,
		ExpiresAt:      expiresAt,
		InferenceCount: 9,
		IsActive:       true,
		Bump:           254,
	}
}

func sampleUsage() *Usage {
	return &Usage{
		User:          testPrincipal("user"),
		Model:         testAddress("model"),
		InferenceHash: "4db72e99a3ab131b8a471e2d3b8235353cab3032512e7c90ecd638b4762db815",
		Timestamp:     1_756_200_000,
		Bump:          253,
	}
}

// Discriminator values are part of the wire contract with the deployed
// program. These constants were computed independently.
func TestDiscriminators(t *testing.T) {
	cases := []struct {
		kind EntityKind
		want string
	}{
		{KindMarketplace, "46de293e4e0320ae"},
		{KindModel, "98ddf77ab97ddf97"},
		{KindAccess, "759a6cd2ca5360de"},
		{KindUsage, "98a2b26a2bd0ed59"},
	}
	for _, tc := range cases {
		t.Run(tc.kind.String(), func(t *testing.T) {
			d := tc.kind.Discriminator()
			if got := hex.EncodeToString(d[:]); got != tc.want {
				t.Fatalf("discriminator = %s, want %s", got, tc.want)
			}
		})
	}
}

func TestRoundTrip(t *testing.T) {
	t.Run("marketplace", func(t *testing.T) {
		in := sampleMarketplace()
		out, err := DecodeMarketplace(EncodeMarketplace(in))
		if err != nil {
			t.Fatalf("DecodeMarketplace: %v", err)
		}
		if !reflect.DeepEqual(in, out) {
			t.Fatalf("round trip mismatch:\n in=%+v\nout=%+v", in, out)
		}
	})

	t.Run("model", func(t *testing.T) {
		in := sampleModel()
		out, err := DecodeModel(EncodeModel(in))
		if err != nil {
			t.Fatalf("DecodeModel: %v", err)
		}
		if !reflect.DeepEqual(in, out) {
			t.Fatalf("round trip mismatch:\n in=%+v\nout=%+v", in, out)
		}
	})

	t.Run("access expiring", func(t *testing.T) {
		exp := int64(1_788_000_000)
		in := sampleAccess(&exp)
		out, err := DecodeAccess(EncodeAccess(in))
		if err != nil {
			t.Fatalf("DecodeAccess: %v", err)
		}
		if !reflect.DeepEqual(in, out) {
			t.Fatalf("round trip mismatch:\n in=%+v\nout=%+v", in, out)
		}
	})

	t.Run("access non-expiring", func(t *testing.T) {
		in := sampleAccess(nil)
		out, err := DecodeAccess(EncodeAccess(in))
		if err != nil {
			t.Fatalf("DecodeAccess: %v", err)
		}
		if out.ExpiresAt != nil {
			t.Fatalf("ExpiresAt = %d, want nil", *out.ExpiresAt)
		}
		if !reflect.DeepEqual(in, out) {
			t.Fatalf("round trip mismatch:\n in=%+v\nout=%+v", in, out)
		}
	})

	t.Run("usage", func(t *testing.T) {
		in := sampleUsage()
		out, err := DecodeUsage(EncodeUsage(in))
		if err != nil {
			t.Fatalf("DecodeUsage: %v", err)
		}
		if !reflect.DeepEqual(in, out) {
			t.Fatalf("round trip mismatch:\n in=%+v\nout=%+v", in, out)
		}
	})
}

// A blob cut at any byte boundary must fail with Truncated, never panic
// and never decode to a partial record.
func TestTruncationSweep(t *testing.T) {
	full := map[string][]byte{
		"marketplace": EncodeMarketplace(sampleMarketplace()),
		"model":       EncodeModel(sampleModel()),
		"access":      EncodeAccess(sampleAccess(nil)),
		"usage":       EncodeUsage(sampleUsage()),
	}
	decode := map[string]func([]byte) error{
		"marketplace": func(b []byte) error { _, err := DecodeMarketplace(b); return err },
		"model":       func(b []byte) error { _, err := DecodeModel(b); return err },
		"access":      func(b []byte) error { _, err := DecodeAccess(b); return err },
		"usage":       func(b []byte) error { _, err := DecodeUsage(b); return err },
	}

	for name, blob := range full {
		t.Run(name, func(t *testing.T) {
			for cut := 0; cut < len(blob); cut++ {
				err := decode[name](blob[:cut])
				if err == nil {
					t.Fatalf("cut at %d of %d decoded successfully", cut, len(blob))
				}
				if !IsKind(err, KindTruncated) {
					t.Fatalf("cut at %d: kind = %v, want Truncated", cut, err)
				}
			}
		})
	}
}

func TestTrailingPaddingTolerated(t *testing.T) {
	exp := int64(1_788_000_000)
	in := sampleAccess(&exp)
	blob := append(EncodeAccess(in), make([]byte, 64)...)
	out, err := DecodeAccess(blob)
	if err != nil {
		t.Fatalf("DecodeAccess with padding: %v", err)
	}
	if !reflect.DeepEqual(in, out) {
		t.Fatalf("padded round trip mismatch:\n in=%+v\nout=%+v", in, out)
	}
}

func TestWrongKind(t *testing.T) {
	blob := EncodeModel(sampleModel())
	_, err := DecodeAccess(blob)
	if err == nil {
		t.Fatalf("model blob decoded as access record")
	}
	if !IsKind(err, KindWrongKind) {
		t.Fatalf("kind = %v, want WrongKind", err)
	}
}

func TestInvalidTags(t *testing.T) {
	t.Run("access type", func(t *testing.T) {
		blob := EncodeAccess(sampleAccess(nil))
		blob[8+32+32] = 7 // accessType byte
		_, err := DecodeAccess(blob)
		if !IsKind(err, KindInvalidEnumTag) {
			t.Fatalf("kind = %v, want InvalidEnumTag", err)
		}
	})

	t.Run("option flag", func(t *testing.T) {
		blob := EncodeAccess(sampleAccess(nil))
		blob[8+32+32+1+8] = 2 // expiresAt presence flag
		_, err := DecodeAccess(blob)
		if !IsKind(err, KindInvalidEnumTag) {
			t.Fatalf("kind = %v, want InvalidEnumTag", err)
		}
	})

	t.Run("bool", func(t *testing.T) {
		blob := EncodeAccess(sampleAccess(nil))
		blob[8+32+32+1+8+1+8] = 255 // isActive byte
		_, err := DecodeAccess(blob)
		if !IsKind(err, KindInvalidEnumTag) {
			t.Fatalf("kind = %v, want InvalidEnumTag", err)
		}
	})

	t.Run("payment token", func(t *testing.T) {
		m := sampleModel()
		blob := EncodeModel(m)
		// paymentToken sits after creator, four strings and three u64s.
		off := 8 + 32 +
			4 + len(m.Name) +
			4 + len(m.Description) +
			4 + len(m.ModelHash) +
			4 + len(m.StorageURI) +
			8 + 8 + 8
		blob[off] = 9
		_, err := DecodeModel(blob)
		if !IsKind(err, KindInvalidEnumTag) {
			t.Fatalf("kind = %v, want InvalidEnumTag", err)
		}
	})
}

func TestOversizedLengthPrefix(t *testing.T) {
	u := sampleUsage()
	blob := EncodeUsage(u)
	// Inflate the inferenceHash length prefix far past the field limit.
	off := 8 + 32 + 32
	blob[off] = 0xff
	blob[off+1] = 0xff
	_, err := DecodeUsage(blob)
	if !IsKind(err, KindTruncated) {
		t.Fatalf("kind = %v, want Truncated", err)
	}
}

func TestIsKindOnForeignError(t *testing.T) {
	if IsKind(ledger.ErrNotFound, KindTruncated) {
		t.Fatalf("IsKind matched an unrelated error")
	}
}
