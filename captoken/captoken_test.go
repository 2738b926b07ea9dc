package captoken

import (
	"crypto/ed25519"
	"crypto/sha256"
	"errors"
	"testing"
	"time"

	"tensormart.io/market/ledger"
)

var testSecret = []byte("unit-test-secret")

func newTestSigner(t *testing.T, now *time.Time) *Signer {
	t.Helper()
	s, err := NewSigner(testSecret, Options{Now: func() time.Time { return *now }})
	if err != nil {
		t.Fatalf("NewSigner: %v", err)
	}
	return s
}

func testPrincipal(tag string) ledger.Principal {
	return ledger.Principal(sha256.Sum256([]byte(tag)))
}

func testModel(tag string) ledger.Address {
	return ledger.Address(sha256.Sum256([]byte(tag)))
}

func TestNewSignerRequiresSecret(t *testing.T) {
	if _, err := NewSigner(nil, Options{}); err == nil {
		t.Fatalf("empty secret accepted")
	}
}

func TestSessionRoundTrip(t *testing.T) {
	now := time.Unix(1_756_500_000, 0)
	s := newTestSigner(t, &now)
	principal := testPrincipal("wallet")

	tok, err := s.MintSession(principal, 0)
	if err != nil {
		t.Fatalf("MintSession: %v", err)
	}
	got, err := s.VerifySession(tok)
	if err != nil {
		t.Fatalf("VerifySession: %v", err)
	}
	if got != principal {
		t.Fatalf("principal = %s, want %s", got, principal)
	}
}

func TestSessionExpiry(t *testing.T) {
	now := time.Unix(1_756_500_000, 0)
	s := newTestSigner(t, &now)

	tok, err := s.MintSession(testPrincipal("wallet"), time.Minute)
	if err != nil {
		t.Fatalf("MintSession: %v", err)
	}

	now = now.Add(time.Minute + 2*time.Second)
	if _, err := s.VerifySession(tok); !errors.Is(err, ErrExpired) {
		t.Fatalf("error = %v, want ErrExpired", err)
	}
}

func TestSessionWrongSecret(t *testing.T) {
	now := time.Unix(1_756_500_000, 0)
	s := newTestSigner(t, &now)
	other, err := NewSigner([]byte("a-different-secret"), Options{Now: func() time.Time { return now }})
	if err != nil {
		t.Fatalf("NewSigner: %v", err)
	}

	tok, err := s.MintSession(testPrincipal("wallet"), time.Hour)
	if err != nil {
		t.Fatalf("MintSession: %v", err)
	}
	if _, err := other.VerifySession(tok); !errors.Is(err, ErrInvalid) {
		t.Fatalf("error = %v, want ErrInvalid", err)
	}
}

func TestSessionGarbageToken(t *testing.T) {
	now := time.Unix(1_756_500_000, 0)
	s := newTestSigner(t, &now)
	if _, err := s.VerifySession("not.a.jwt"); !errors.Is(err, ErrInvalid) {
		t.Fatalf("error = %v, want ErrInvalid", err)
	}
}

func TestDownloadRoundTrip(t *testing.T) {
	now := time.Unix(1_756_500_000, 0)
	s := newTestSigner(t, &now)
	model := testModel("model")
	user := testPrincipal("buyer")

	tok, err := s.MintDownload(model, user, 0)
	if err != nil {
		t.Fatalf("MintDownload: %v", err)
	}
	grant, err := s.VerifyDownload(tok)
	if err != nil {
		t.Fatalf("VerifyDownload: %v", err)
	}
	if grant.Model != model {
		t.Fatalf("grant model = %s, want %s", grant.Model, model)
	}
	if grant.User != user {
		t.Fatalf("grant user = %s, want %s", grant.User, user)
	}
}

func TestDownloadExpiry(t *testing.T) {
	now := time.Unix(1_756_500_000, 0)
	s := newTestSigner(t, &now)

	tok, err := s.MintDownload(testModel("model"), testPrincipal("buyer"), 30*time.Minute)
	if err != nil {
		t.Fatalf("MintDownload: %v", err)
	}

	now = now.Add(31 * time.Minute)
	if _, err := s.VerifyDownload(tok); !errors.Is(err, ErrExpired) {
		t.Fatalf("error = %v, want ErrExpired", err)
	}
}

// A session token must not redeem as a download token: it carries no model
// claim and fails the model address parse.
func TestSessionTokenIsNotADownloadToken(t *testing.T) {
	now := time.Unix(1_756_500_000, 0)
	s := newTestSigner(t, &now)

	tok, err := s.MintSession(testPrincipal("wallet"), time.Hour)
	if err != nil {
		t.Fatalf("MintSession: %v", err)
	}
	if _, err := s.VerifyDownload(tok); !errors.Is(err, ErrInvalid) {
		t.Fatalf("error = %v, want ErrInvalid", err)
	}
}

func TestVerifyWalletSignature(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	var principal ledger.Principal
	copy(principal[:], pub)

	sig := ed25519.Sign(priv, LoginMessage(principal))
	if err := VerifyWalletSignature(principal, sig); err != nil {
		t.Fatalf("VerifyWalletSignature: %v", err)
	}

	t.Run("tampered signature", func(t *testing.T) {
		bad := append([]byte(nil), sig...)
		bad[0] ^= 1
		if err := VerifyWalletSignature(principal, bad); !errors.Is(err, ErrInvalid) {
			t.Fatalf("error = %v, want ErrInvalid", err)
		}
	})

	t.Run("wrong length", func(t *testing.T) {
		if err := VerifyWalletSignature(principal, sig[:10]); !errors.Is(err, ErrInvalid) {
			t.Fatalf("error = %v, want ErrInvalid", err)
		}
	})

	t.Run("signature for another principal", func(t *testing.T) {
		other := testPrincipal("someone-else")
		if err := VerifyWalletSignature(other, sig); !errors.Is(err, ErrInvalid) {
			t.Fatalf("error = %v, want ErrInvalid", err)
		}
	})
}
