// Package integrity verifies downloaded package bytes.
//
// Two hash policies exist and are kept under separate entry points:
// VerifyPackageHash is strict (a package with no expected hash is rejected)
// while VerifyResourceHash is lenient (a resource with no expected hash is not
// checked). Authenticity is limited to the "sha256:<digest>" signature form
// checked by VerifySignature, which binds the signature to the content but
// proves nothing about who produced it.
package integrity

import (
	"errors"
	"fmt"
)

var (
	// ErrIntegrity is wrapped by every error this package returns for a
	// verification failure (as opposed to an I/O failure while hashing).
	ErrIntegrity = errors.New("integrity check failed")

	// ErrMissingExpectedHash is returned by the strict hash check when the
	// package declares no sha256.
	ErrMissingExpectedHash = fmt.Errorf("%w: missing expected hash", ErrIntegrity)

	// ErrHashMismatch is wrapped by HashMismatchError.
	ErrHashMismatch = fmt.Errorf("%w: hash mismatch", ErrIntegrity)

	// ErrMissingSignature is returned when a package carries no signature.
	ErrMissingSignature = fmt.Errorf("%w: missing signature", ErrIntegrity)

	// ErrSignatureMismatch is returned when a signature does not match the
	// verified content hash.
	ErrSignatureMismatch = fmt.Errorf("%w: signature mismatch", ErrIntegrity)
)

// HashMismatchError reports a digest that differs from the declared one.
type HashMismatchError struct {
	// Path is the file that was hashed
	Path string

	// Expected is the declared digest, as given
	Expected string

	// Got is the computed lowercase hex digest
	Got string
}

func (e *HashMismatchError) Error() string {
	return fmt.Sprintf("hash mismatch for %s: expected %s, got %s", e.Path, e.Expected, e.Got)
}

func (e *HashMismatchError) Unwrap() error {
	return ErrHashMismatch
}
