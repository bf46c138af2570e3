// Package goGrant is an authorization-code grant engine bound to one
// registered client. It issues, exchanges, rotates and revokes opaque grant
// codes, signs access tokens, and mediates local and third-party OpenID
// sign-up and sign-in.
//
// Engine methods are safe to call from multiple goroutines after
// initialization through [Builder.Build]. The engine keeps no mutable state
// of its own; every coordination point (grant consumption, refresh rotation)
// is an atomic Redis operation, so any number of engine instances may share
// one Redis.
//
// # Architecture boundaries
//
// goGrant is the public surface. It exposes [Engine], [Builder], [Config],
// the error taxonomy and plain value types ([AuthRequest], [TokenSet],
// [UserValidation], ...). Grant storage, code encoding and rate limiting
// live under internal/; sessions, the user mirror, signing, hashing,
// providers and mail are separate packages wired together by [Builder].
//
// # What this package must NOT do
//
//   - Log codes, tokens or passwords. Codes appear in logs only as a
//     fingerprint.
//   - Write a durable user record before its required fields are present.
//   - Retry failed cache, store or provider calls. Callers own retry policy.
package goGrant
