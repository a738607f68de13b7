package packagetypes

import (
	"errors"
	"fmt"
)

// ErrManifest is wrapped by every manifest parsing failure.
var ErrManifest = errors.New("scene package manifest error")

// ManifestError is a manifest rejection with a fixed, user-facing message.
type ManifestError struct {
	Message string
}

func (e *ManifestError) Error() string {
	return e.Message
}

func (e *ManifestError) Unwrap() error {
	return ErrManifest
}

// Manifest rejections. Compare with errors.Is.
var (
	ErrInvalidManifestJSON   = &ManifestError{Message: "Invalid scene package manifest JSON"}
	ErrUnsupportedFormat     = &ManifestError{Message: "Unsupported scene package format version"}
	ErrMissingCollection     = &ManifestError{Message: "Scene package is missing a collection payload"}
	ErrMissingRequiredFields = &ManifestError{Message: "Scene package is missing required metadata fields"}
	ErrUnsafeIdentity        = &ManifestError{Message: "Scene package id or version is not a valid directory name"}
)

// Catalog listing failures.
var (
	ErrCatalog             = errors.New("scene catalog error")
	ErrInvalidCatalogJSON  = fmt.Errorf("%w: Unable to parse scene catalog response", ErrCatalog)
	ErrCatalogMissingField = fmt.Errorf("%w: Scene catalog response did not include packages", ErrCatalog)
)

// ErrResource is wrapped by every ResourceError.
var ErrResource = errors.New("scene package resource error")

// ResourceReason classifies a resource validation failure.
type ResourceReason int

const (
	ReasonMissingPath ResourceReason = iota
	ReasonEscapesRoot
	ReasonMissingFile
	ReasonSizeMismatch
	ReasonHashMismatch
)

// ResourceError names the resource that failed validation and why.
type ResourceError struct {
	Path   string
	Reason ResourceReason

	// Err is the underlying cause, if any (stat or hash failure)
	Err error
}

func (e *ResourceError) Error() string {
	switch e.Reason {
	case ReasonMissingPath:
		return "resource entry missing path"
	case ReasonEscapesRoot:
		return "resource path escapes package root: " + e.Path
	case ReasonMissingFile:
		return "missing resource file: " + e.Path
	case ReasonSizeMismatch:
		return "resource size mismatch: " + e.Path
	case ReasonHashMismatch:
		return "resource hash mismatch: " + e.Path
	default:
		return "invalid resource: " + e.Path
	}
}

func (e *ResourceError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrResource}
	}
	return []error{ErrResource, e.Err}
}
