package internal

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
)

// SessionToken is an opaque 128-bit random identifier. It carries no claims;
// everything about the session lives server side, keyed by the token.
type SessionToken [16]byte

func NewSessionToken() (SessionToken, error) {
	var tok SessionToken
	_, err := rand.Read(tok[:])
	return tok, err
}

func (t SessionToken) Bytes() []byte {
	return t[:]
}

func (t SessionToken) String() string {
	// base64url, no padding, compact
	return base64.RawURLEncoding.EncodeToString(t[:])
}

func ParseSessionToken(token string) (SessionToken, error) {
	var tok SessionToken

	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return tok, err
	}
	if len(raw) != len(tok) {
		return tok, errors.New("invalid session token size")
	}

	copy(tok[:], raw)
	return tok, nil
}
