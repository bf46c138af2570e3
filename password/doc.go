// Package password hashes and verifies passwords with Argon2id.
//
// # Output format
//
// Digests are encoded in PHC string format:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// The caller owns the salt: it draws one with [Argon2.NewSalt], stores its
// [EncodeSalt] form next to the digest, and passes it to [Argon2.Hash]. The
// digest embeds the salt as well, so [Argon2.Verify] needs only the digest.
// [Argon2.NeedsUpgrade] reports digests produced with weaker parameters so
// the caller can re-hash after the next successful login.
//
// # What this package must NOT do
//
//   - Store or retrieve passwords.
//   - Import any other goGrant package.
//   - Log plaintexts or digests.
package password
