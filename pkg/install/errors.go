package install

import (
	"errors"
	"fmt"
)

var (
	// ErrTransaction is wrapped by every failure that happened after the
	// previous installation was moved aside.
	ErrTransaction = errors.New("install transaction failed")

	// ErrRollbackFailed marks a transaction whose previous installation could
	// not be restored. The plugins directory needs manual attention.
	ErrRollbackFailed = errors.New("restoring previous installation failed")

	// ErrEmptyPackage is returned when the package download produced no bytes.
	ErrEmptyPackage = errors.New("Failed to download package")

	// ErrMissingManifestURL is returned for catalog entries with neither a
	// manifest nor a package URL.
	ErrMissingManifestURL = errors.New("Scene catalog entry is missing a manifest URL")

	// ErrEmptyManifest is returned when the manifest download produced no bytes.
	ErrEmptyManifest = errors.New("Failed to download scene package manifest")

	// ErrEmptyResource is wrapped by a ResourceTransferError when a resource
	// download produced no bytes.
	ErrEmptyResource = errors.New("empty resource payload")
)

// TransactionError reports a staging failure and the outcome of the rollback
// that followed it.
type TransactionError struct {
	Package     string
	Destination string
	BackupPath  string

	// StageErr is the error that aborted staging
	StageErr error

	// RestoreErr is set when putting the previous installation back failed
	RestoreErr error

	RestoreFailed bool
}

func (e *TransactionError) Error() string {
	if e.RestoreFailed {
		return fmt.Sprintf("failed to install %s: %v; restoring %s from %s failed: %v",
			e.Package, e.StageErr, e.Destination, e.BackupPath, e.RestoreErr)
	}
	return fmt.Sprintf("failed to install %s: %v (previous installation restored)", e.Package, e.StageErr)
}

func (e *TransactionError) Unwrap() []error {
	errs := []error{ErrTransaction, e.StageErr}
	if e.RestoreFailed {
		errs = append(errs, ErrRollbackFailed)
		if e.RestoreErr != nil {
			errs = append(errs, e.RestoreErr)
		}
	}
	return errs
}

// Fatal reports whether the destination was left in an unknown state.
func (e *TransactionError) Fatal() bool {
	return e.RestoreFailed
}

// IsFatal reports whether err is a transaction whose rollback failed. Every
// other install error leaves the previous installation in place.
func IsFatal(err error) bool {
	var txErr *TransactionError
	return errors.As(err, &txErr) && txErr.Fatal()
}

// ResourceTransferError reports a scene resource that could not be
// downloaded or written.
type ResourceTransferError struct {
	Path  string
	Write bool
	Err   error
}

func (e *ResourceTransferError) Error() string {
	if e.Write {
		return "failed to write resource file: " + e.Path
	}
	return "failed to download resource: " + e.Path
}

func (e *ResourceTransferError) Unwrap() error {
	return e.Err
}
