package install

import (
	"context"
	"fmt"
	"net/url"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/uniquestream/packagekit/pkg/ledger"
	"github.com/uniquestream/packagekit/pkg/logging"
	packagetypes "github.com/uniquestream/packagekit/pkg/package"
	"github.com/uniquestream/packagekit/pkg/storage"
)

// scenePackagesDir is the directory under the scenes root holding
// <id>/<version> package roots.
const scenePackagesDir = "scene-packages"

// SceneResult describes a downloaded scene package.
type SceneResult struct {
	Manifest *packagetypes.Manifest

	// Root is <scenesRoot>/scene-packages/<id>/<version>
	Root string

	// Written lists the resource paths downloaded, in manifest order
	Written []string
}

// SceneInstaller downloads scene packages listed in the catalog.
type SceneInstaller struct {
	fetcher     Fetcher
	scenesRoot  string
	hostVersion string

	now    func() time.Time
	ledger *ledger.Ledger
	stats  *Statistics
	logger *zap.Logger
}

// SceneOption configures a SceneInstaller.
type SceneOption func(*SceneInstaller)

// WithSceneLedger records completed scene downloads.
func WithSceneLedger(l *ledger.Ledger) SceneOption {
	return func(s *SceneInstaller) {
		s.ledger = l
	}
}

// WithSceneStatistics shares a statistics collector.
func WithSceneStatistics(st *Statistics) SceneOption {
	return func(s *SceneInstaller) {
		s.stats = st
	}
}

// WithSceneLogger sets the logger.
func WithSceneLogger(l *zap.Logger) SceneOption {
	return func(s *SceneInstaller) {
		s.logger = logging.OrNop(l)
	}
}

// NewSceneInstaller creates an installer writing under scenesRoot and
// accepting packages that run on hostVersion.
func NewSceneInstaller(fetcher Fetcher, scenesRoot, hostVersion string, opts ...SceneOption) *SceneInstaller {
	s := &SceneInstaller{
		fetcher:     fetcher,
		scenesRoot:  scenesRoot,
		hostVersion: hostVersion,
		now:         time.Now,
		stats:       NewStatistics(),
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Install fetches the manifest for entry, downloads its resources and
// validates the result.
//
// Resources are fetched one at a time and the first failure is returned.
// Files written before a failure stay on disk; a later install of the same
// version overwrites them.
func (s *SceneInstaller) Install(ctx context.Context, entry packagetypes.CatalogEntry, bearerToken string) (*SceneResult, error) {
	txnID := uuid.NewString()
	log := s.logger.With(
		zap.String("txn", txnID),
		zap.String("package_id", entry.ID),
		zap.String("version", entry.Version),
	)

	manifestURL := entry.ManifestLocation()
	if manifestURL == "" {
		return nil, ErrMissingManifestURL
	}

	log.Info("Downloading scene manifest", zap.String("url", manifestURL))
	data, err := s.fetcher.Fetch(ctx, manifestURL, bearerToken)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, ErrEmptyManifest
	}
	s.stats.addBytes(len(data))

	manifest, err := packagetypes.ParseManifest(data)
	if err != nil {
		return nil, err
	}
	if err := manifest.ValidateCompatibility(s.hostVersion); err != nil {
		return nil, err
	}

	root, err := s.packageRoot(manifest)
	if err != nil {
		return nil, err
	}
	if err := storage.EnsureDir(root, 0755); err != nil {
		return nil, err
	}

	base, err := resourceBase(manifestURL)
	if err != nil {
		return nil, fmt.Errorf("invalid manifest URL %q: %w", manifestURL, err)
	}

	result := &SceneResult{Manifest: manifest, Root: root}
	for _, res := range manifest.Resources {
		if res.URL == "" {
			continue
		}
		if err := s.fetchResource(ctx, base, root, res, bearerToken); err != nil {
			log.Warn("Scene resource failed", zap.String("resource", res.Path), zap.Error(err))
			return nil, err
		}
		result.Written = append(result.Written, res.Path)
	}

	if err := manifest.ValidateResources(root); err != nil {
		log.Warn("Scene package failed validation", zap.String("root", root), zap.Error(err))
		return nil, err
	}

	s.stats.addScene()
	log.Info("Scene package installed",
		zap.String("root", root),
		zap.Int("resources", len(result.Written)))

	s.record(manifest, root, txnID, log)
	return result, nil
}

func (s *SceneInstaller) packageRoot(m *packagetypes.Manifest) (string, error) {
	if m.ID == "" || !packagetypes.IsPathSafeName(m.ID) || !packagetypes.IsPathSafeName(m.Version) {
		return "", packagetypes.ErrUnsafeIdentity
	}
	rel := m.ID
	if m.Version != "" {
		rel = path.Join(m.ID, m.Version)
	}
	base := filepath.Join(s.scenesRoot, scenePackagesDir)
	root, err := storage.SafeJoin(base, rel)
	if err != nil {
		return "", fmt.Errorf("scene package %s: %w", m.ID, err)
	}
	if filepath.Clean(root) == filepath.Clean(base) {
		return "", packagetypes.ErrUnsafeIdentity
	}
	return root, nil
}

func (s *SceneInstaller) fetchResource(ctx context.Context, base *url.URL, root string, res packagetypes.ResourceEntry, bearerToken string) error {
	if res.Path == "" {
		return &packagetypes.ResourceError{Reason: packagetypes.ReasonMissingPath}
	}
	dest, err := storage.SafeJoin(root, res.Path)
	if err != nil {
		return &packagetypes.ResourceError{Path: res.Path, Reason: packagetypes.ReasonEscapesRoot, Err: err}
	}

	ref, err := url.Parse(res.URL)
	if err != nil {
		return &ResourceTransferError{Path: res.Path, Err: err}
	}
	data, err := s.fetcher.Fetch(ctx, base.ResolveReference(ref).String(), bearerToken)
	if err != nil {
		return &ResourceTransferError{Path: res.Path, Err: err}
	}
	if len(data) == 0 {
		return &ResourceTransferError{Path: res.Path, Err: ErrEmptyResource}
	}
	s.stats.addBytes(len(data))

	if err := storage.AtomicWriteFile(dest, data, 0644); err != nil {
		return &ResourceTransferError{Path: res.Path, Write: true, Err: err}
	}
	s.stats.addResource()
	return nil
}

// resourceBase returns the manifest URL's directory, which relative
// resource URLs resolve against.
func resourceBase(manifestURL string) (*url.URL, error) {
	u, err := url.Parse(manifestURL)
	if err != nil {
		return nil, err
	}
	dir := "/"
	if u.Path != "" {
		dir = path.Dir(u.Path)
	}
	if !strings.HasSuffix(dir, "/") {
		dir += "/"
	}
	base := *u
	base.Path = dir
	base.RawPath = ""
	base.RawQuery = ""
	base.Fragment = ""
	return &base, nil
}

func (s *SceneInstaller) record(m *packagetypes.Manifest, root, txnID string, log *zap.Logger) {
	if s.ledger == nil {
		return
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		log.Warn("Failed to record scene package", zap.Error(err))
		return
	}
	version := m.Version
	if version == "" {
		version = "unversioned"
	}
	entry := ledger.Entry{
		Kind:        ledger.KindScene,
		ID:          m.ID,
		Name:        m.Name,
		Version:     version,
		Path:        abs,
		Size:        int64(len(m.Resources)),
		InstalledAt: s.now().UTC(),
		Transaction: txnID,
	}
	if err := s.ledger.Record(entry); err != nil {
		log.Warn("Failed to record scene package", zap.Error(err))
	}
}
