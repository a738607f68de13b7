package packagetypes

import (
	"strings"

	"github.com/uniquestream/packagekit/pkg/value"
	"github.com/uniquestream/packagekit/pkg/version"
)

// CatalogEntry is one row of the portal's scene catalog listing. It carries
// just enough to show the package and locate its manifest.
type CatalogEntry struct {
	ID             string `yaml:"id" json:"id"`
	Name           string `yaml:"name" json:"name"`
	Version        string `yaml:"version" json:"version"`
	Type           string `yaml:"type" json:"type"`
	Summary        string `yaml:"summary" json:"summary"`
	MinHostVersion string `yaml:"obs_min_version" json:"obs_min_version"`
	PreviewURL     string `yaml:"preview_url" json:"preview_url"`
	ManifestURL    string `yaml:"manifest_url" json:"manifest_url"`
	PackageURL     string `yaml:"package_url" json:"package_url"`
}

// DisplayType returns the entry type, defaulting to "scene".
func (e CatalogEntry) DisplayType() string {
	if e.Type == "" {
		return "scene"
	}
	return e.Type
}

// ManifestLocation returns the URL to fetch the manifest from: the manifest
// URL when set, otherwise the package URL.
func (e CatalogEntry) ManifestLocation() string {
	if e.ManifestURL != "" {
		return e.ManifestURL
	}
	return e.PackageURL
}

// ValidateCompatibility checks the listed minimum host version.
func (e CatalogEntry) ValidateCompatibility(hostVersion string) error {
	return version.CheckMinimum(hostVersion, e.MinHostVersion)
}

// Matches reports whether the entry's name, summary or type contains text,
// ignoring case. Empty text matches everything.
func (e CatalogEntry) Matches(text string) bool {
	needle := strings.ToLower(strings.TrimSpace(text))
	if needle == "" {
		return true
	}
	for _, field := range []string{e.Name, e.Summary, e.DisplayType()} {
		if strings.Contains(strings.ToLower(field), needle) {
			return true
		}
	}
	return false
}

// ParseCatalog decodes a {"packages": [...]} listing. Entries without an id
// are dropped; an empty listing is not an error.
func ParseCatalog(data []byte) ([]CatalogEntry, error) {
	doc, err := value.Parse(data)
	if err != nil || !doc.IsObject() {
		return nil, ErrInvalidCatalogJSON
	}

	packages := doc.Field("packages")
	if packages.Kind() != value.Array {
		return nil, ErrCatalogMissingField
	}

	entries := make([]CatalogEntry, 0, packages.Len())
	for _, item := range packages.Items() {
		entry := CatalogEntry{
			ID:             item.Field("id").StringOr(""),
			Name:           item.Field("name").StringOr(""),
			Version:        item.Field("version").StringOr(""),
			Type:           item.Field("type").StringOr(""),
			Summary:        item.Field("summary").StringOr(""),
			MinHostVersion: item.Field("obs_min_version").StringOr(""),
			PreviewURL:     item.Field("preview_url").StringOr(""),
			ManifestURL:    item.Field("manifest_url").StringOr(""),
			PackageURL:     item.Field("package_url").StringOr(""),
		}
		if entry.ID == "" {
			continue
		}
		entries = append(entries, entry)
	}

	return entries, nil
}
