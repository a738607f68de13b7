package catalog

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	packagetypes "github.com/uniquestream/packagekit/pkg/package"
	"github.com/uniquestream/packagekit/pkg/transport"
)

const catalogBody = `{
	"packages": [
		{"id": "studio", "name": "Studio Kit", "version": "1.2.0", "summary": "Talk show layout",
		 "obs_min_version": "30.0.0", "manifest_url": "https://cdn.example.com/studio/manifest.json"},
		{"id": "", "name": "No id"},
		{"id": "gaming", "name": "Gaming Overlay", "type": "overlay", "package_url": "https://cdn.example.com/gaming.json"}
	]
}`

func newPortal(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	f := transport.NewHTTPFetcher(
		transport.WithHTTPClient(srv.Client()),
		transport.WithBaseDelay(time.Millisecond),
		transport.WithMaxRetries(0),
	)
	t.Cleanup(func() { _ = f.Close() })

	api := DefaultAPIConfig()
	api.BaseURL = srv.URL + "/portal/api"
	return NewClient(api, f, nil), srv
}

func TestAPIConfigURLs(t *testing.T) {
	api := DefaultAPIConfig()
	assert.Equal(t, "http://localhost:8080/portal/api/scene-catalog/packages", api.PackagesURL())
	assert.Equal(t, "http://localhost:8080/portal/api/scene-catalog/packages/studio", api.PackageURL("studio"))
	assert.Equal(t, "http://localhost:8080/portal/api/plugins", api.PluginsURL("  "))
	assert.Equal(t, "http://localhost:8080/portal/api/plugins?query=ndi+output", api.PluginsURL(" ndi output "))
	assert.Equal(t, "http://localhost:8080/portal/api/auth/login", api.LoginURL())

	noPlaceholder := APIConfig{BaseURL: "https://p.example.com", PackageEndpoint: "/pkg"}
	assert.Equal(t, "https://p.example.com/pkg", noPlaceholder.PackageURL("x"))
}

func TestListParsesCatalog(t *testing.T) {
	client, _ := newPortal(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/portal/api/scene-catalog/packages", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		_, _ = io.WriteString(w, catalogBody)
	})

	entries, err := client.List(context.Background(), "tok")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "studio", entries[0].ID)
	assert.Equal(t, "scene", entries[0].DisplayType())
	assert.Equal(t, "https://cdn.example.com/gaming.json", entries[1].ManifestLocation())
}

func TestListErrors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr error
	}{
		{name: "empty body", status: http.StatusOK, body: "", wantErr: ErrEmptyResponse},
		{name: "not json", status: http.StatusOK, body: "<html>", wantErr: packagetypes.ErrInvalidCatalogJSON},
		{name: "no packages", status: http.StatusOK, body: `{"items": []}`, wantErr: packagetypes.ErrCatalogMissingField},
		{name: "not found", status: http.StatusNotFound, wantErr: transport.ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, _ := newPortal(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			})

			_, err := client.List(context.Background(), "")
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestFind(t *testing.T) {
	client, _ := newPortal(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, catalogBody)
	})

	entry, err := client.Find(context.Background(), "gaming", "")
	require.NoError(t, err)
	assert.Equal(t, "Gaming Overlay", entry.Name)

	_, err = client.Find(context.Background(), "missing", "")
	assert.ErrorIs(t, err, packagetypes.ErrCatalog)
}

func TestPlugins(t *testing.T) {
	client, _ := newPortal(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/portal/api/plugins", r.URL.Path)
		assert.Equal(t, "ndi", r.URL.Query().Get("query"))
		_, _ = io.WriteString(w, `[
			{"id": "obs-ndi", "name": "NDI", "version": "4.14.1", "package_url": "https://cdn.example.com/ndi.pkg",
			 "sha256": "abc", "signature": "sha256:abc"},
			"junk"
		]`)
	})

	plugins, err := client.Plugins(context.Background(), "ndi", "")
	require.NoError(t, err)
	require.Len(t, plugins, 1)
	assert.Equal(t, "obs-ndi", plugins[0].ID)
	assert.Equal(t, "sha256:abc", plugins[0].Signature)
}

func TestLogin(t *testing.T) {
	client, _ := newPortal(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/portal/api/auth/login", r.URL.Path)

		var creds map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&creds))
		assert.Equal(t, "alice", creds["username"])
		assert.Equal(t, "hunter2", creds["password"])

		_, _ = io.WriteString(w, `{"username": "alice", "role": "publisher", "access_token": "at", "refresh_token": "rt"}`)
	})

	s, err := client.Login(context.Background(), "alice", "hunter2")
	require.NoError(t, err)
	assert.True(t, s.Authenticated())
	assert.Equal(t, Session{Username: "alice", Role: "publisher", AccessToken: "at", RefreshToken: "rt"}, s)
}

func TestLoginFailures(t *testing.T) {
	t.Run("rejected", func(t *testing.T) {
		client, _ := newPortal(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
		})
		_, err := client.Login(context.Background(), "alice", "wrong")
		assert.ErrorIs(t, err, transport.ErrUnauthorized)
	})

	t.Run("not an object", func(t *testing.T) {
		client, _ := newPortal(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = io.WriteString(w, `["nope"]`)
		})
		_, err := client.Login(context.Background(), "alice", "pw")
		assert.ErrorIs(t, err, ErrLoginFailed)
	})
}

func TestFilter(t *testing.T) {
	entries := []packagetypes.CatalogEntry{
		{ID: "a", Name: "Studio Kit", Summary: "Talk show layout"},
		{ID: "b", Name: "Gaming", Type: "overlay"},
		{ID: "c", Name: "Podcast", Summary: "two-camera STUDIO"},
	}

	assert.Len(t, Filter(entries, ""), 3)
	assert.Equal(t, []string{"a", "c"}, ids(Filter(entries, "studio")))
	assert.Equal(t, []string{"b"}, ids(Filter(entries, "OVERLAY")))
	assert.Equal(t, []string{"a", "c"}, ids(Filter(entries, "scene")))
	assert.Empty(t, Filter(entries, "nothing"))
}

func ids(entries []packagetypes.CatalogEntry) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.ID)
	}
	return out
}
