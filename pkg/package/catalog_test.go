package packagetypes

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCatalog(t *testing.T) {
	doc := `{"packages":[
	  {"id":"com.example.neon","name":"Neon","version":"1.0","type":"","summary":"Glow","obs_min_version":"30.0",
	   "preview_url":"https://cdn/p.png","manifest_url":"https://cdn/neon/manifest.json","package_url":"https://cdn/neon.zip"},
	  {"id":"","name":"Nameless"},
	  {"name":"No id at all"},
	  {"id":"com.example.pack","name":"Pack","type":"addon"}
	]}`

	entries, err := ParseCatalog([]byte(doc))
	require.NoError(t, err)
	require.Len(t, entries, 2)

	neon := entries[0]
	assert.Equal(t, "com.example.neon", neon.ID)
	assert.Equal(t, "30.0", neon.MinHostVersion)
	assert.Equal(t, "https://cdn/neon/manifest.json", neon.ManifestLocation())
	assert.Equal(t, "scene", neon.DisplayType())
	assert.Equal(t, "addon", entries[1].DisplayType())
}

func TestParseCatalog_Errors(t *testing.T) {
	_, err := ParseCatalog([]byte(`not json`))
	assert.True(t, errors.Is(err, ErrInvalidCatalogJSON))
	assert.True(t, errors.Is(err, ErrCatalog))

	_, err = ParseCatalog([]byte(`{"items":[]}`))
	assert.True(t, errors.Is(err, ErrCatalogMissingField))

	entries, err := ParseCatalog([]byte(`{"packages":[]}`))
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestCatalogEntryManifestLocationFallback(t *testing.T) {
	e := CatalogEntry{PackageURL: "https://cdn/pkg.json"}
	assert.Equal(t, "https://cdn/pkg.json", e.ManifestLocation())
	assert.Equal(t, "", CatalogEntry{}.ManifestLocation())
}

func TestCatalogEntryMatches(t *testing.T) {
	e := CatalogEntry{Name: "Neon Overlay", Summary: "Glowing frames", Type: "addon"}

	assert.True(t, e.Matches(""))
	assert.True(t, e.Matches("neon"))
	assert.True(t, e.Matches("GLOW"))
	assert.True(t, e.Matches("addon"))
	assert.False(t, e.Matches("retro"))
	assert.True(t, CatalogEntry{Name: "x"}.Matches("scene"), "empty type matches as scene")
}

func TestParsePluginCatalog(t *testing.T) {
	doc := `[{"id":"com.example.tool","name":"Tool","version":"2.0.1","compatibility":"30.0",
	  "package_url":"https://cdn/tool.pkg","sha256":"aa","signature":"sha256:aa"}, 7]`

	reqs, err := ParsePluginCatalog([]byte(doc))
	require.NoError(t, err)
	require.Len(t, reqs, 1)
	assert.Equal(t, "com.example.tool-2.0.1.pkg", reqs[0].PackageFileName())
	assert.Equal(t, "sha256:aa", reqs[0].Signature)

	_, err = ParsePluginCatalog([]byte(`{"packages":[]}`))
	assert.True(t, errors.Is(err, ErrCatalog))
}

func TestInstallRequestValidate(t *testing.T) {
	valid := InstallRequest{ID: "com.example.tool", Version: "1.0.0", PackageURL: "https://cdn/tool.pkg"}
	require.NoError(t, valid.Validate())

	missingURL := valid
	missingURL.PackageURL = ""
	assert.True(t, errors.Is(missingURL.Validate(), ErrMissingPackageURL))

	for _, id := range []string{"", "..", "a/b", `a\b`} {
		bad := valid
		bad.ID = id
		assert.Error(t, bad.Validate(), "id %q", id)
	}

	badVersion := valid
	badVersion.Version = "../1"
	assert.Error(t, badVersion.Validate())
}
