package integrity

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// chunkSize bounds the memory used while hashing; files are never loaded whole.
const chunkSize = 32 * 1024

// DigestSize is the length of a hex encoded SHA-256 digest.
const DigestSize = sha256.Size * 2

// Digest returns the lowercase hex SHA-256 of the file at path.
func Digest(path string) (string, error) {
	if path == "" {
		return "", errors.New("path cannot be empty")
	}

	file, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open file for hashing: %w", err)
	}
	defer file.Close()

	return DigestReader(file)
}

// DigestReader returns the lowercase hex SHA-256 of everything read from r.
func DigestReader(r io.Reader) (string, error) {
	hasher := sha256.New()
	buf := make([]byte, chunkSize)
	if _, err := io.CopyBuffer(hasher, r, buf); err != nil {
		return "", fmt.Errorf("failed to compute hash: %w", err)
	}
	return hex.EncodeToString(hasher.Sum(nil)), nil
}

// VerifyPackageHash is the strict check used for whole packages: an empty
// expected hash is an error. On success it returns the computed digest so
// callers can feed it to VerifySignature without hashing twice.
func VerifyPackageHash(path, expected string) (string, error) {
	if strings.TrimSpace(expected) == "" {
		return "", ErrMissingExpectedHash
	}
	return verify(path, expected)
}

// VerifyResourceHash is the lenient check used for manifest resources: an
// empty expected hash means no check was requested.
func VerifyResourceHash(path, expected string) error {
	if strings.TrimSpace(expected) == "" {
		return nil
	}
	_, err := verify(path, expected)
	return err
}

func verify(path, expected string) (string, error) {
	got, err := Digest(path)
	if err != nil {
		return "", err
	}

	if !strings.EqualFold(got, strings.TrimSpace(expected)) {
		return "", &HashMismatchError{Path: path, Expected: expected, Got: got}
	}
	return got, nil
}

// IsValidHexDigest reports whether s is a 64 character hex string
// (either case).
func IsValidHexDigest(s string) bool {
	if len(s) != DigestSize {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil
}
