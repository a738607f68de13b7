// Package packagetypes holds the documents exchanged with the package portal
// (scene manifests, catalog listings, plugin install requests) together with
// the decoding and validation rules applied to them.
package packagetypes

import (
	"encoding/json"
	"fmt"

	"github.com/uniquestream/packagekit/pkg/value"
	"github.com/uniquestream/packagekit/pkg/version"
)

// SupportedFormatVersion is the only manifest schema version accepted.
const SupportedFormatVersion = 1

// DefaultAssetRootToken is substituted in collection payloads for the
// directory holding a package's resources when the manifest names none.
const DefaultAssetRootToken = "${scene_assets}"

// Manifest describes an installable scene package.
type Manifest struct {
	FormatVersion int `yaml:"format_version" json:"format_version"`

	// ID is the stable installation key (e.g., "com.example.neon-overlay")
	ID string `yaml:"id" json:"id"`

	Name    string `yaml:"name" json:"name"`
	Version string `yaml:"version" json:"version"`

	// MinHostVersion is the minimum compatible host version; empty means no constraint
	MinHostVersion string `yaml:"obs_min_version" json:"obs_min_version"`

	Description     string `yaml:"description" json:"description"`
	PreviewImageURL string `yaml:"preview_image_url" json:"preview_image_url"`
	AssetRootToken  string `yaml:"asset_root_token" json:"asset_root_token"`

	// Collection is the serialized collection object, kept opaque
	Collection json.RawMessage `yaml:"-" json:"collection"`

	Resources []ResourceEntry `yaml:"resources" json:"resources"`
	Addons    []AddonRef      `yaml:"addons" json:"addons"`
}

// ResourceEntry is one file shipped with a scene package.
type ResourceEntry struct {
	// Path is relative to the package root (e.g., "textures/logo.png")
	Path string `yaml:"path" json:"path"`

	// URL is resolved against the manifest URL; empty means the file is not downloaded
	URL string `yaml:"url" json:"url"`

	// SHA256 is optional; empty skips the hash check
	SHA256 string `yaml:"sha256" json:"sha256"`

	// Size is optional; 0 skips the size check
	Size uint64 `yaml:"size" json:"size"`
}

// AddonRef names an add-on a scene package relies on. Descriptive only.
type AddonRef struct {
	ID   string `yaml:"id" json:"id"`
	Type string `yaml:"type" json:"type"`
}

// ParseManifest decodes a raw manifest document.
//
// Missing scalar fields decode as empty strings. A missing, zero or
// non-numeric format_version is read as SupportedFormatVersion. The returned
// manifest is non-nil only when err is nil.
func ParseManifest(data []byte) (*Manifest, error) {
	doc, err := value.Parse(data)
	if err != nil || !doc.IsObject() {
		return nil, ErrInvalidManifestJSON
	}

	format := int(doc.Field("format_version").Int64Or(0))
	if format == 0 {
		format = SupportedFormatVersion
	}
	if format != SupportedFormatVersion {
		return nil, ErrUnsupportedFormat
	}

	m := &Manifest{
		FormatVersion:  format,
		ID:             doc.Field("id").StringOr(""),
		Name:           doc.Field("name").StringOr(""),
		Version:        doc.Field("version").StringOr(""),
		MinHostVersion: doc.Field("obs_min_version").StringOr(""),
		Description:    doc.Field("description").StringOr(""),
		AssetRootToken: DefaultAssetRootToken,
	}

	if token := doc.Field("asset_root_token").StringOr(""); token != "" {
		m.AssetRootToken = token
	}
	m.PreviewImageURL = doc.Field("preview").Field("thumbnail").StringOr("")

	collection := doc.Field("collection")
	if !collection.IsObject() {
		return nil, ErrMissingCollection
	}
	raw, err := json.Marshal(collection)
	if err != nil {
		return nil, ErrMissingCollection
	}
	m.Collection = raw

	for _, item := range doc.Field("resources").Items() {
		size := item.Field("size").Int64Or(0)
		if size < 0 {
			size = 0
		}
		m.Resources = append(m.Resources, ResourceEntry{
			Path:   item.Field("path").StringOr(""),
			URL:    item.Field("url").StringOr(""),
			SHA256: item.Field("sha256").StringOr(""),
			Size:   uint64(size),
		})
	}

	for _, item := range doc.Field("addons").Items() {
		m.Addons = append(m.Addons, AddonRef{
			ID:   item.Field("id").StringOr(""),
			Type: item.Field("type").StringOr(""),
		})
	}

	if m.ID == "" || m.Name == "" {
		return nil, ErrMissingRequiredFields
	}
	// id and version name the install directory
	if !IsPathSafeName(m.ID) || !IsPathSafeName(m.Version) {
		return nil, ErrUnsafeIdentity
	}

	return m, nil
}

// ValidateCompatibility checks the manifest's minimum host version against
// the running host.
func (m *Manifest) ValidateCompatibility(hostVersion string) error {
	if err := version.CheckMinimum(hostVersion, m.MinHostVersion); err != nil {
		return fmt.Errorf("scene package %s: %w", m.ID, err)
	}
	return nil
}

// String returns a short human-readable identity.
func (m *Manifest) String() string {
	return fmt.Sprintf("%s@%s", m.ID, m.Version)
}
