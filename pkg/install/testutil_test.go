package install

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	packagetypes "github.com/uniquestream/packagekit/pkg/package"
)

var errNoRoute = errors.New("no such url")

// fakeFetcher serves canned responses keyed by URL.
type fakeFetcher struct {
	mu        sync.Mutex
	responses map[string][]byte
	errs      map[string]error
	calls     []string
	tokens    []string
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{
		responses: make(map[string][]byte),
		errs:      make(map[string]error),
	}
}

func (f *fakeFetcher) Fetch(ctx context.Context, url, bearerToken string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls = append(f.calls, url)
	f.tokens = append(f.tokens, bearerToken)

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err, ok := f.errs[url]; ok {
		return nil, err
	}
	data, ok := f.responses[url]
	if !ok {
		return nil, errNoRoute
	}
	return data, nil
}

func (f *fakeFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

// faultyFS fails chosen steps of a transaction.
type faultyFS struct {
	OSFS

	copyErr    error
	restoreErr error
	renames    [][2]string
}

func (f *faultyFS) Rename(oldpath, newpath string) error {
	f.renames = append(f.renames, [2]string{oldpath, newpath})
	if f.restoreErr != nil && strings.Contains(oldpath, ".backup-") {
		return f.restoreErr
	}
	return f.OSFS.Rename(oldpath, newpath)
}

func (f *faultyFS) CopyFile(src, dst string) error {
	if f.copyErr != nil {
		// Leave a partial file behind like an interrupted copy would.
		if err := os.WriteFile(dst, []byte("partial"), 0644); err != nil {
			return err
		}
		return f.copyErr
	}
	return f.OSFS.CopyFile(src, dst)
}

func sha256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

const pluginURL = "https://cdn.example.com/plugins/obs-ndi-4.14.1.pkg"

func pluginRequest(payload []byte) packagetypes.InstallRequest {
	digest := sha256Hex(payload)
	return packagetypes.InstallRequest{
		ID:         "obs-ndi",
		Name:       "NDI Plugin",
		Version:    "4.14.1",
		PackageURL: pluginURL,
		SHA256:     digest,
		Signature:  "sha256:" + digest,
	}
}

// snapshotTree maps every path under root to its content, or "<dir>".
func snapshotTree(t *testing.T, root string) map[string]string {
	t.Helper()

	out := make(map[string]string)
	if _, err := os.Stat(root); errors.Is(err, fs.ErrNotExist) {
		return out
	}
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		if d.IsDir() {
			out[rel] = "<dir>"
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		out[rel] = string(data)
		return nil
	})
	require.NoError(t, err)
	return out
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}
