// Package pkce generates the random material consumed by the authorization
// code flow: the anti-CSRF state parameter, the RFC 7636 verifier/challenge
// pair, and relying-party session identifiers.
package pkce

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"math/big"
)

const MethodS256 = "S256"

type PKCE struct {
	Verifier  string
	Challenge string
	Method    string
}

type Source struct{}

func (p Source) randBytes(n int) []byte {
	b := make([]byte, n)
	_, _ = rand.Read(b)

	return b
}

func (p Source) randString(n int) string {
	const letters = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz-"

	ret := make([]byte, n)
	for i := range n {
		num, _ := rand.Int(rand.Reader, big.NewInt(int64(len(letters))))
		ret[i] = letters[num.Int64()]
	}

	return string(ret)
}

// PKCE returns a fresh verifier/challenge pair. The verifier is the
// base64url encoding of 32 random bytes, 43 characters, the RFC 7636
// minimum length; the challenge is base64url(SHA-256(verifier)) without
// padding.
func (p Source) PKCE() PKCE {
	const n = 32

	verifierBuf := make([]byte, base64.RawURLEncoding.EncodedLen(n))
	base64.RawURLEncoding.Encode(verifierBuf, p.randBytes(n))

	return PKCE{
		Verifier:  string(verifierBuf),
		Challenge: Challenge(string(verifierBuf)),
		Method:    MethodS256,
	}
}

// Challenge derives the S256 code challenge for a verifier.
func Challenge(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	buf := make([]byte, base64.RawURLEncoding.EncodedLen(len(sum)))
	base64.RawURLEncoding.Encode(buf, sum[:])

	return string(buf)
}

// State returns an opaque anti-CSRF token. 64 characters over a 63-symbol
// alphabet is well above the 128 bits of entropy the flow requires.
func (p Source) State() string {
	return p.randString(64)
}

func (p Source) SessionID() string {
	return p.randString(32) // Entropy E = L * log2(63) = 32 * log2(63) = 191.3 bits
}
