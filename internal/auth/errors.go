package auth

import "errors"

// Sentinel errors forming the credential error taxonomy. Callers classify
// failures with errors.Is; wrapped detail never contains token material.
var (
	// ErrNotFound indicates no active connection exists for the user.
	ErrNotFound = errors.New("no active connection for user")

	// ErrRevoked indicates the provider definitively rejected the stored
	// grant. The user must reconnect their mailbox.
	ErrRevoked = errors.New("refresh grant rejected by provider")

	// ErrRefreshFailed indicates a refresh attempt failed for a reason that
	// may be transient (network, 5xx, timeout). The stored grant is kept.
	ErrRefreshFailed = errors.New("token refresh failed")

	// ErrDecryptionFailure indicates stored ciphertext could not be
	// decrypted, usually after a key rotation or data corruption.
	ErrDecryptionFailure = errors.New("credential decryption failed")

	// ErrPersistenceError indicates the credential store rejected a read or
	// write.
	ErrPersistenceError = errors.New("credential persistence failed")
)

// NeedsReconnect reports whether err can only be resolved by the user
// re-linking their mailbox. Transient failures return false so callers can
// retry without discarding the stored grant.
func NeedsReconnect(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrRevoked) ||
		errors.Is(err, ErrDecryptionFailure)
}
