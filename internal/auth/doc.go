// Package auth implements the credential lifecycle for connected mailboxes:
// encrypted-at-rest storage, decryption, expiry detection, single-flight
// refresh against the Microsoft identity platform, and atomic
// refresh-and-persist.
//
// # Components
//
//   - Codec: AES-256-GCM encryption of token material at rest
//   - Store: Postgres persistence of oauth_connections rows
//   - Refresher: refresh-token grants with conservative error classification
//   - TokenService: the orchestrating load/decrypt/refresh/persist cycle
//
// # Error taxonomy
//
// All failures map onto the package sentinel errors (ErrNotFound,
// ErrRevoked, ErrRefreshFailed, ErrDecryptionFailure, ErrPersistenceError).
// ErrNotFound, ErrRevoked and ErrDecryptionFailure require the user to
// reconnect their mailbox; the remaining two are retryable by the caller.
//
// # Security
//
// Plaintext tokens exist only inside a single decrypt-use-discard cycle.
// No log line or returned error carries token material, ciphertext, or the
// encryption key.
package auth
