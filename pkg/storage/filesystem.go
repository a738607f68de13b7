// Package storage provides the filesystem primitives package installation is
// built on.
//
// Writes go through a temp file in the target directory followed by a rename,
// so a reader never observes a half-written payload, resource or ledger. Paths
// taken from remote manifests are confined to their install root with SafeJoin
// before anything touches the disk.
package storage

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// ErrPathEscapesRoot is returned by SafeJoin when a relative path would
// resolve outside its root.
var ErrPathEscapesRoot = errors.New("path escapes root directory")

// AtomicWriteFile writes data to path via temp file, fsync and rename.
// Either the complete file appears at path or the previous content (if any)
// stays in place.
//
// Parameters:
//   - path: destination file path (parent directories are created)
//   - data: bytes to write
//   - perm: file permissions (e.g., 0644)
func AtomicWriteFile(path string, data []byte, perm os.FileMode) error {
	if path == "" {
		return errors.New("path cannot be empty")
	}

	dir := filepath.Dir(path)
	if err := EnsureDir(dir, 0755); err != nil {
		return fmt.Errorf("failed to ensure parent directory: %w", err)
	}

	tmpFile, err := os.CreateTemp(dir, ".tmp-"+filepath.Base(path)+"-")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	committed := false
	defer func() {
		if !committed {
			tmpFile.Close()
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmpFile.Write(data); err != nil {
		return fmt.Errorf("failed to write to temp file: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Chmod(tmpPath, perm); err != nil {
		return fmt.Errorf("failed to set permissions: %w", err)
	}

	// Same directory, so the rename is atomic on POSIX filesystems
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	committed = true
	return nil
}

// EnsureDir creates a directory and any missing parents. It is a no-op when
// the directory already exists.
func EnsureDir(path string, perm os.FileMode) error {
	if path == "" {
		return errors.New("path cannot be empty")
	}

	if err := os.MkdirAll(path, perm); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", path, err)
	}

	return nil
}

// FileExists reports whether path exists and is not a directory.
func FileExists(path string) bool {
	if path == "" {
		return false
	}

	info, err := os.Stat(path)
	if err != nil {
		return false
	}

	return !info.IsDir()
}

// PathExists reports whether anything (file, directory or link) exists at
// path. Install destinations are checked with this rather than a directory check so a
// stray file at the destination is backed up instead of silently replaced.
func PathExists(path string) bool {
	if path == "" {
		return false
	}
	_, err := os.Lstat(path)
	return err == nil
}

// SafeRemoveAll removes a directory tree, returning nil if it is already gone.
func SafeRemoveAll(path string) error {
	if path == "" {
		return errors.New("path cannot be empty")
	}

	if err := os.RemoveAll(path); err != nil {
		return fmt.Errorf("failed to remove %s: %w", path, err)
	}

	return nil
}

// CopyFile copies src to dst through a temp file in dst's directory, replacing
// dst if it exists. The copy keeps the source permissions.
//
// Parameters:
//   - src: source file path
//   - dst: destination file path
func CopyFile(src, dst string) error {
	if src == "" {
		return errors.New("source path cannot be empty")
	}
	if dst == "" {
		return errors.New("destination path cannot be empty")
	}

	srcFile, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open source file: %w", err)
	}
	defer srcFile.Close()

	srcInfo, err := srcFile.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat source file: %w", err)
	}

	dstDir := filepath.Dir(dst)
	if err := EnsureDir(dstDir, 0755); err != nil {
		return fmt.Errorf("failed to ensure destination directory: %w", err)
	}

	tmpFile, err := os.CreateTemp(dstDir, ".tmp-"+filepath.Base(dst)+"-")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		tmpFile.Close()
		if !success {
			os.Remove(tmpPath)
		}
	}()

	bufWriter := bufio.NewWriter(tmpFile)
	if _, err := io.Copy(bufWriter, bufio.NewReader(srcFile)); err != nil {
		return fmt.Errorf("failed to copy data: %w", err)
	}
	if err := bufWriter.Flush(); err != nil {
		return fmt.Errorf("failed to flush buffer: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Chmod(tmpPath, srcInfo.Mode().Perm()); err != nil {
		return fmt.Errorf("failed to set permissions: %w", err)
	}
	if err := os.Rename(tmpPath, dst); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	success = true
	return nil
}

// GetFileSize returns the size of a regular file in bytes.
func GetFileSize(path string) (int64, error) {
	if path == "" {
		return 0, errors.New("path cannot be empty")
	}

	info, err := os.Stat(path)
	if err != nil {
		return 0, fmt.Errorf("failed to stat file: %w", err)
	}

	if info.IsDir() {
		return 0, fmt.Errorf("%s is a directory, not a file", path)
	}

	return info.Size(), nil
}

// SafeJoin joins a slash-separated relative path onto root and guarantees the
// result stays inside root. Absolute paths and paths climbing out with ".."
// fail with ErrPathEscapesRoot.
//
// Parameters:
//   - root: trusted base directory
//   - rel: untrusted relative path, e.g. from a downloaded manifest
func SafeJoin(root, rel string) (string, error) {
	if rel == "" {
		return "", errors.New("path cannot be empty")
	}

	native := filepath.FromSlash(rel)
	if filepath.IsAbs(native) || filepath.VolumeName(native) != "" || strings.HasPrefix(rel, "/") {
		return "", fmt.Errorf("%w: %s", ErrPathEscapesRoot, rel)
	}

	cleanRoot := filepath.Clean(root)
	joined := filepath.Join(cleanRoot, native)

	relToRoot, err := filepath.Rel(cleanRoot, joined)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrPathEscapesRoot, rel)
	}
	if relToRoot == ".." || strings.HasPrefix(relToRoot, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrPathEscapesRoot, rel)
	}

	return joined, nil
}
