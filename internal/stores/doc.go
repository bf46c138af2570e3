// Package stores provides the Redis-backed grant store used by every
// code-based flow: authorization codes and refresh tokens (auth.grant),
// account recovery (recovery.grant) and email verification
// (emailVerification.grant).
//
// # Design
//
// A grant is a Redis hash keyed <namespace>:<code>. Creation writes the
// fields and the expiry inside one MULTI so no record ever exists without a
// TTL. Consumption reads and deletes inside one MULTI, which gives
// at-most-once exchange under concurrent callers. An empty hash and an
// absent key are the same thing.
//
// Refresh grants that have been rotated keep their key with a "rotated"
// marker until they expire; reading one yields ErrAlreadyRotated. Refresh
// grants also carry the owner's refresh generation, which the session
// registry compares when rotating.
//
// # Architecture boundaries
//
// This package owns persistence and atomicity of grant records. It does NOT
// generate codes, compare client bindings or decide grant types; those
// checks belong to the engine.
//
// # What this package must NOT do
//
//   - Import goGrant or any sibling internal package.
//   - Log codes or grant payloads.
package stores
