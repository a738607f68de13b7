// Package catalog talks to the package portal: the scene catalog listing,
// the plugin listing and account login.
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/uniquestream/packagekit/pkg/logging"
	packagetypes "github.com/uniquestream/packagekit/pkg/package"
	"github.com/uniquestream/packagekit/pkg/value"
)

const (
	DefaultBaseURL          = "http://localhost:8080/portal/api"
	DefaultPackagesEndpoint = "/scene-catalog/packages"
	DefaultPackageEndpoint  = "/scene-catalog/packages/%1"

	// idPlaceholder is replaced by the package id in PackageEndpoint
	idPlaceholder = "%1"
)

var (
	// ErrEmptyResponse is returned when the catalog endpoint answers with no
	// body.
	ErrEmptyResponse = errors.New("Empty response from scene catalog")

	// ErrLoginFailed is returned when the portal accepts the login request
	// but answers with something other than a session object.
	ErrLoginFailed = errors.New("portal login failed")
)

// Transport is the HTTP surface the client needs. transport.HTTPFetcher
// implements it.
type Transport interface {
	Fetch(ctx context.Context, url, bearerToken string) ([]byte, error)
	PostJSON(ctx context.Context, url string, payload []byte, bearerToken string) ([]byte, error)
}

// APIConfig locates the portal endpoints.
type APIConfig struct {
	BaseURL          string `mapstructure:"base_url"`
	PackagesEndpoint string `mapstructure:"packages_endpoint"`
	PackageEndpoint  string `mapstructure:"package_endpoint"`
}

// DefaultAPIConfig returns the local development portal.
func DefaultAPIConfig() APIConfig {
	return APIConfig{
		BaseURL:          DefaultBaseURL,
		PackagesEndpoint: DefaultPackagesEndpoint,
		PackageEndpoint:  DefaultPackageEndpoint,
	}
}

// PackagesURL is the scene catalog listing.
func (c APIConfig) PackagesURL() string {
	return c.BaseURL + c.PackagesEndpoint
}

// PackageURL is the detail URL for one package. The first "%1" in
// PackageEndpoint is replaced by id.
func (c APIConfig) PackageURL(id string) string {
	return strings.Replace(c.BaseURL+c.PackageEndpoint, idPlaceholder, id, 1)
}

// PluginsURL is the plugin listing, filtered by query when it is not blank.
func (c APIConfig) PluginsURL(query string) string {
	u := c.BaseURL + "/plugins"
	if q := strings.TrimSpace(query); q != "" {
		u += "?query=" + url.QueryEscape(q)
	}
	return u
}

// LoginURL is the account login endpoint.
func (c APIConfig) LoginURL() string {
	return c.BaseURL + "/auth/login"
}

// Session is an authenticated portal account.
type Session struct {
	Username     string
	Role         string
	AccessToken  string
	RefreshToken string
}

// Authenticated reports whether the session carries an access token.
func (s Session) Authenticated() bool {
	return s.AccessToken != ""
}

// Client reads the portal.
type Client struct {
	api       APIConfig
	transport Transport
	logger    *zap.Logger
}

// NewClient creates a client. A nil logger disables logging.
func NewClient(api APIConfig, t Transport, logger *zap.Logger) *Client {
	return &Client{api: api, transport: t, logger: logging.OrNop(logger)}
}

// API returns the endpoint configuration.
func (c *Client) API() APIConfig {
	return c.api
}

// List fetches the scene catalog.
func (c *Client) List(ctx context.Context, bearerToken string) ([]packagetypes.CatalogEntry, error) {
	u := c.api.PackagesURL()
	data, err := c.transport.Fetch(ctx, u, bearerToken)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, ErrEmptyResponse
	}

	entries, err := packagetypes.ParseCatalog(data)
	if err != nil {
		return nil, err
	}
	c.logger.Debug("Scene catalog fetched", zap.String("url", u), zap.Int("packages", len(entries)))
	return entries, nil
}

// Find fetches the catalog and returns the entry with the given id.
func (c *Client) Find(ctx context.Context, id, bearerToken string) (packagetypes.CatalogEntry, error) {
	entries, err := c.List(ctx, bearerToken)
	if err != nil {
		return packagetypes.CatalogEntry{}, err
	}
	for _, e := range entries {
		if e.ID == id {
			return e, nil
		}
	}
	return packagetypes.CatalogEntry{}, fmt.Errorf("%w: no package with id %q", packagetypes.ErrCatalog, id)
}

// Plugins fetches the plugin listing.
func (c *Client) Plugins(ctx context.Context, query, bearerToken string) ([]packagetypes.InstallRequest, error) {
	data, err := c.transport.Fetch(ctx, c.api.PluginsURL(query), bearerToken)
	if err != nil {
		return nil, err
	}
	return packagetypes.ParsePluginCatalog(data)
}

// Login exchanges credentials for a session.
func (c *Client) Login(ctx context.Context, username, password string) (Session, error) {
	payload, err := json.Marshal(map[string]string{
		"username": username,
		"password": password,
	})
	if err != nil {
		return Session{}, err
	}

	data, err := c.transport.PostJSON(ctx, c.api.LoginURL(), payload, "")
	if err != nil {
		return Session{}, err
	}

	doc, err := value.Parse(data)
	if err != nil || !doc.IsObject() {
		return Session{}, ErrLoginFailed
	}

	s := Session{
		Username:     doc.Field("username").StringOr(""),
		Role:         doc.Field("role").StringOr(""),
		AccessToken:  doc.Field("access_token").StringOr(""),
		RefreshToken: doc.Field("refresh_token").StringOr(""),
	}
	c.logger.Info("Logged in to portal", zap.String("username", s.Username), zap.String("role", s.Role))
	return s, nil
}

// Filter returns the entries matching text, in order. Blank text returns
// every entry.
func Filter(entries []packagetypes.CatalogEntry, text string) []packagetypes.CatalogEntry {
	out := make([]packagetypes.CatalogEntry, 0, len(entries))
	for _, e := range entries {
		if e.Matches(text) {
			out = append(out, e)
		}
	}
	return out
}
