package packagetypes

import (
	"errors"
	"fmt"

	"github.com/uniquestream/packagekit/pkg/value"
)

// InstallRequest is what is needed to fetch, verify and install a
// single-file plugin package.
type InstallRequest struct {
	ID            string `yaml:"id" json:"id"`
	Name          string `yaml:"name" json:"name"`
	Version       string `yaml:"version" json:"version"`
	Compatibility string `yaml:"compatibility" json:"compatibility"`
	PackageURL    string `yaml:"package_url" json:"package_url"`
	SHA256        string `yaml:"sha256" json:"sha256"`
	Signature     string `yaml:"signature" json:"signature"`
}

// ErrMissingPackageURL is returned for a request with no package URL.
var ErrMissingPackageURL = errors.New("Missing package URL")

// Validate checks the fields used to build install paths. Hash and signature
// are left to the integrity checks so their failures keep their own errors.
func (r *InstallRequest) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("install request: id is required")
	}
	if !IsPathSafeName(r.ID) {
		return fmt.Errorf("install request: id %q is not a valid directory name", r.ID)
	}
	if r.Version == "" {
		return fmt.Errorf("install request: version is required")
	}
	if !IsPathSafeName(r.Version) {
		return fmt.Errorf("install request: version %q is not a valid file name component", r.Version)
	}
	if r.PackageURL == "" {
		return ErrMissingPackageURL
	}
	return nil
}

// PackageFileName returns "<id>-<version>.pkg".
func (r *InstallRequest) PackageFileName() string {
	return r.ID + "-" + r.Version + ".pkg"
}

// ParsePluginCatalog decodes the portal's plugin listing, a bare JSON array of
// install requests. Non-object items are skipped.
func ParsePluginCatalog(data []byte) ([]InstallRequest, error) {
	doc, err := value.Parse(data)
	if err != nil || doc.Kind() != value.Array {
		return nil, fmt.Errorf("%w: Unable to parse plugin catalog response", ErrCatalog)
	}

	out := make([]InstallRequest, 0, doc.Len())
	for _, item := range doc.Items() {
		if !item.IsObject() {
			continue
		}
		out = append(out, InstallRequest{
			ID:            item.Field("id").StringOr(""),
			Name:          item.Field("name").StringOr(""),
			Version:       item.Field("version").StringOr(""),
			Compatibility: item.Field("compatibility").StringOr(""),
			PackageURL:    item.Field("package_url").StringOr(""),
			SHA256:        item.Field("sha256").StringOr(""),
			Signature:     item.Field("signature").StringOr(""),
		})
	}
	return out, nil
}

// isPathSafeName rejects values that would change the shape of the install
// path when used as a single path element.
func IsPathSafeName(s string) bool {
	if s == "." || s == ".." {
		return false
	}
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '/', '\\', 0:
			return false
		}
	}
	return true
}
