package packagetypes

import (
	"errors"

	"github.com/uniquestream/packagekit/pkg/integrity"
	"github.com/uniquestream/packagekit/pkg/storage"
)

// ValidateResources checks every declared resource under root, in manifest
// order, and stops at the first failure. For each entry the checks run
// path, containment, existence, size (when Size > 0) and hash (when SHA256
// is set, using the lenient policy).
func (m *Manifest) ValidateResources(root string) error {
	for _, res := range m.Resources {
		if err := validateResource(root, res); err != nil {
			return err
		}
	}
	return nil
}

func validateResource(root string, res ResourceEntry) error {
	if res.Path == "" {
		return &ResourceError{Reason: ReasonMissingPath}
	}

	full, err := storage.SafeJoin(root, res.Path)
	if err != nil {
		return &ResourceError{Path: res.Path, Reason: ReasonEscapesRoot, Err: err}
	}

	if !storage.FileExists(full) {
		return &ResourceError{Path: res.Path, Reason: ReasonMissingFile}
	}

	if res.Size > 0 {
		size, err := storage.GetFileSize(full)
		if err != nil {
			return &ResourceError{Path: res.Path, Reason: ReasonSizeMismatch, Err: err}
		}
		if uint64(size) != res.Size {
			return &ResourceError{Path: res.Path, Reason: ReasonSizeMismatch}
		}
	}

	if err := integrity.VerifyResourceHash(full, res.SHA256); err != nil {
		var cause error
		if !errors.Is(err, integrity.ErrHashMismatch) {
			cause = err
		}
		return &ResourceError{Path: res.Path, Reason: ReasonHashMismatch, Err: cause}
	}

	return nil
}
