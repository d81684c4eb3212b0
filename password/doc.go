// Package password verifies plaintext secrets against stored one-way hashes.
//
// # Formats
//
// New hashes are argon2id in PHC string format:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// Legacy bcrypt hashes ($2a$, $2b$, $2y$) are verified and reported by
// [Verifier.NeedsUpgrade] so callers can rehash after a successful login.
//
// # Failure semantics
//
// [Verifier.Verify] returns a bool. A malformed or unsupported stored hash is a
// non-match, never an error surfaced to the caller. Comparisons run in
// constant time with respect to the stored digest.
//
// # What this package must NOT do
//
//   - Store or retrieve passwords.
//   - Import any other estateauth package.
//   - Log plaintext passwords or hash parameters.
package password
