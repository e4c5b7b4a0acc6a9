// Package session stores authenticated sessions in Redis.
//
// Sessions are encoded in a compact binary format keyed by opaque token.
// A per-principal index set makes bulk invalidation possible after a
// credential rotation. Tokens are minted by the caller; this package only
// persists and looks them up.
package session
