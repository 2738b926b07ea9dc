// Package captoken mints and verifies the two short-lived credentials the
// gateway issues: session tokens proving control of a wallet key, and
// download capability tokens bound to one (model, user) pair.
//
// Tokens are HS256 JWTs. Verification failures are deliberately coarse:
// callers only need "expired" vs "invalid", and neither is ever confused
// with an entitlement failure.
package captoken

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"tensormart.io/market/ledger"
)

const (
	DefaultSessionTTL  = 24 * time.Hour
	DefaultDownloadTTL = time.Hour
)

var (
	ErrExpired = errors.New("captoken: token expired")
	ErrInvalid = errors.New("captoken: token invalid")
)

// Signer mints and verifies tokens with one shared secret.
type Signer struct {
	secret []byte
	now    func() time.Time
}

type Options struct {
	// Now overrides the clock. Defaults to time.Now.
	Now func() time.Time
}

func NewSigner(secret []byte, opts Options) (*Signer, error) {
	if len(secret) == 0 {
		return nil, errors.New("captoken: signing secret is required")
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Signer{secret: secret, now: now}, nil
}

type sessionClaims struct {
	jwt.RegisteredClaims
}

type downloadClaims struct {
	Model string `json:"model"`
	jwt.RegisteredClaims
}

// MintSession issues a session token for a principal. TTL <= 0 uses the
// 24h default.
func (s *Signer) MintSession(principal ledger.Principal, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	now := s.now()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, sessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   principal.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	})
	return tok.SignedString(s.secret)
}

// VerifySession returns the principal a session token was minted for.
func (s *Signer) VerifySession(token string) (ledger.Principal, error) {
	var claims sessionClaims
	if err := s.parse(token, &claims); err != nil {
		return ledger.Principal{}, err
	}
	p, err := ledger.ParsePrincipal(claims.Subject)
	if err != nil {
		return ledger.Principal{}, fmt.Errorf("%w: bad subject", ErrInvalid)
	}
	return p, nil
}

// DownloadGrant is the claims set of a verified download token.
type DownloadGrant struct {
	Model ledger.Address
	User  ledger.Principal
}

// MintDownload issues a capability token redeemable for one model's
// artifact by one user. TTL <= 0 uses the 1h default.
func (s *Signer) MintDownload(model ledger.Address, user ledger.Principal, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = DefaultDownloadTTL
	}
	now := s.now()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, downloadClaims{
		Model: model.String(),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	})
	return tok.SignedString(s.secret)
}

// VerifyDownload checks a capability token and returns its grant.
func (s *Signer) VerifyDownload(token string) (DownloadGrant, error) {
	var claims downloadClaims
	if err := s.parse(token, &claims); err != nil {
		return DownloadGrant{}, err
	}
	model, err := ledger.ParseAddress(claims.Model)
	if err != nil {
		return DownloadGrant{}, fmt.Errorf("%w: bad model claim", ErrInvalid)
	}
	user, err := ledger.ParsePrincipal(claims.Subject)
	if err != nil {
		return DownloadGrant{}, fmt.Errorf("%w: bad subject", ErrInvalid)
	}
	return DownloadGrant{Model: model, User: user}, nil
}

func (s *Signer) parse(token string, claims jwt.Claims) error {
	parsed, err := jwt.ParseWithClaims(token, claims,
		func(t *jwt.Token) (any, error) { return s.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
	)
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return ErrExpired
	case err != nil:
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	case !parsed.Valid:
		return ErrInvalid
	}
	return nil
}

// LoginMessage is the exact byte string a wallet must sign to obtain a
// session token. Binding the principal into the message prevents replaying
// one wallet's signature for another principal.
func LoginMessage(principal ledger.Principal) []byte {
	return []byte("tensormart-login-v1:" + principal.String())
}

// VerifyWalletSignature checks an ed25519 signature over LoginMessage.
// Ledger principals are ed25519 public keys, so the principal itself is
// the verification key.
func VerifyWalletSignature(principal ledger.Principal, sig []byte) error {
	if len(sig) != ed25519.SignatureSize {
		return fmt.Errorf("%w: signature must be %d bytes", ErrInvalid, ed25519.SignatureSize)
	}
	if !ed25519.Verify(ed25519.PublicKey(principal[:]), LoginMessage(principal), sig) {
		return fmt.Errorf("%w: wallet signature verification failed", ErrInvalid)
	}
	return nil
}
