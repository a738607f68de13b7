package install

import (
	"context"
	"errors"
	"sync"

	"github.com/uniquestream/packagekit/pkg/ledger"
	packagetypes "github.com/uniquestream/packagekit/pkg/package"
)

// ErrEmptyRequest is returned for a Request naming neither a plugin nor a
// scene.
var ErrEmptyRequest = errors.New("install request names no package")

// Request asks the Service to install one package. Exactly one of Plugin
// and Scene should be set.
type Request struct {
	Plugin *packagetypes.InstallRequest
	Scene  *packagetypes.CatalogEntry
	Token  string
}

// Result is the outcome of one Request.
type Result struct {
	Request Request

	// Transaction is set for plugin requests
	Transaction *Transaction

	// Scene is set for successful scene requests
	Scene *SceneResult

	Err error

	// Fatal reports a failed rollback
	Fatal bool
}

// View is a copy of what a front end shows: the catalog as last published,
// what is installed and the install counters.
type View struct {
	HostVersion string
	Entries     []packagetypes.CatalogEntry
	Plugins     []packagetypes.InstallRequest
	Installed   []ledger.Entry
	Stats       StatisticsSnapshot
}

// Service serializes installs for a front end. It never calls back into
// the caller; results flow out through return values and channels.
type Service struct {
	plugins     *PluginInstaller
	scenes      *SceneInstaller
	ledger      *ledger.Ledger
	hostVersion string

	mu      sync.RWMutex
	entries []packagetypes.CatalogEntry
	listing []packagetypes.InstallRequest
}

// NewService creates a Service. The ledger may be nil.
func NewService(plugins *PluginInstaller, scenes *SceneInstaller, l *ledger.Ledger, hostVersion string) *Service {
	return &Service{
		plugins:     plugins,
		scenes:      scenes,
		ledger:      l,
		hostVersion: hostVersion,
	}
}

// Publish replaces the catalog snapshot returned by View.
func (s *Service) Publish(entries []packagetypes.CatalogEntry, plugins []packagetypes.InstallRequest) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append([]packagetypes.CatalogEntry(nil), entries...)
	s.listing = append([]packagetypes.InstallRequest(nil), plugins...)
}

// View returns a snapshot the caller may keep and modify.
func (s *Service) View() View {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v := View{
		HostVersion: s.hostVersion,
		Entries:     append([]packagetypes.CatalogEntry(nil), s.entries...),
		Plugins:     append([]packagetypes.InstallRequest(nil), s.listing...),
	}
	if s.ledger != nil {
		v.Installed = s.ledger.List()
	}
	if s.plugins != nil {
		v.Stats = s.plugins.Statistics().Snapshot()
	}
	return v
}

// Submit runs one install and waits for it.
func (s *Service) Submit(ctx context.Context, req Request) Result {
	res := Result{Request: req}

	switch {
	case req.Plugin != nil:
		if s.plugins == nil {
			res.Err = errors.New("plugin installs are not configured")
			return res
		}
		res.Transaction, res.Err = s.plugins.Install(ctx, *req.Plugin, req.Token)
	case req.Scene != nil:
		if s.scenes == nil {
			res.Err = errors.New("scene installs are not configured")
			return res
		}
		res.Scene, res.Err = s.scenes.Install(ctx, *req.Scene, req.Token)
	default:
		res.Err = ErrEmptyRequest
	}

	res.Fatal = IsFatal(res.Err)
	return res
}

// Serve installs requests one at a time in arrival order until requests is
// closed or ctx is done. The returned channel is closed when Serve stops.
func (s *Service) Serve(ctx context.Context, requests <-chan Request) <-chan Result {
	out := make(chan Result)

	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case req, ok := <-requests:
				if !ok {
					return
				}
				res := s.Submit(ctx, req)
				select {
				case out <- res:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out
}
