package install

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uniquestream/packagekit/pkg/ledger"
	packagetypes "github.com/uniquestream/packagekit/pkg/package"
)

func newTestService(t *testing.T, opts ...PluginOption) (*Service, *fakeFetcher, string) {
	dir := t.TempDir()
	fetcher := newFakeFetcher()
	l := ledger.New(filepath.Join(dir, "installed.yaml"))
	pluginsRoot := filepath.Join(dir, "plugins")

	plugins := NewPluginInstaller(fetcher, pluginsRoot, filepath.Join(dir, "tmp"), append([]PluginOption{WithLedger(l)}, opts...)...)
	scenes := NewSceneInstaller(fetcher, filepath.Join(dir, "scenes"), "30.2.0", WithSceneLedger(l))
	return NewService(plugins, scenes, l, "30.2.0"), fetcher, pluginsRoot
}

func TestServiceSubmit(t *testing.T) {
	svc, fetcher, pluginsRoot := newTestService(t)
	payload := []byte("payload")
	fetcher.responses[pluginURL] = payload
	req := pluginRequest(payload)

	res := svc.Submit(context.Background(), Request{Plugin: &req})
	require.NoError(t, res.Err)
	assert.False(t, res.Fatal)
	require.NotNil(t, res.Transaction)
	assert.Equal(t, PhaseCommitted, res.Transaction.Phase)
	assert.FileExists(t, filepath.Join(pluginsRoot, "obs-ndi", "obs-ndi-4.14.1.pkg"))

	view := svc.View()
	require.Len(t, view.Installed, 1)
	assert.Equal(t, "obs-ndi", view.Installed[0].ID)
	assert.Equal(t, 1, view.Stats.Attempted)
	assert.Equal(t, 1, view.Stats.Committed)
	assert.Equal(t, int64(len(payload)), view.Stats.BytesDownloaded)
}

func TestServiceSubmitEmptyRequest(t *testing.T) {
	svc, _, _ := newTestService(t)
	res := svc.Submit(context.Background(), Request{})
	assert.ErrorIs(t, res.Err, ErrEmptyRequest)
}

func TestServiceReportsFatalResult(t *testing.T) {
	svc, fetcher, pluginsRoot := newTestService(t, WithFS(&faultyFS{
		copyErr:    errors.New("copy failed"),
		restoreErr: errors.New("rename failed"),
	}))
	writeFile(t, filepath.Join(pluginsRoot, "obs-ndi", "old.pkg"), "old")
	payload := []byte("payload")
	fetcher.responses[pluginURL] = payload
	req := pluginRequest(payload)

	res := svc.Submit(context.Background(), Request{Plugin: &req})
	assert.True(t, res.Fatal)
	assert.ErrorIs(t, res.Err, ErrRollbackFailed)
}

func TestServiceViewIsACopy(t *testing.T) {
	svc, _, _ := newTestService(t)
	entries := []packagetypes.CatalogEntry{{ID: "studio", Name: "Studio"}}
	svc.Publish(entries, nil)
	entries[0].Name = "changed by caller"

	view := svc.View()
	require.Len(t, view.Entries, 1)
	assert.Equal(t, "Studio", view.Entries[0].Name)
	assert.Equal(t, "30.2.0", view.HostVersion)

	view.Entries[0].Name = "changed by viewer"
	assert.Equal(t, "Studio", svc.View().Entries[0].Name)
}

func TestServeProcessesInArrivalOrder(t *testing.T) {
	svc, fetcher, _ := newTestService(t)
	payload := []byte("payload")
	fetcher.responses[pluginURL] = payload
	plugin := pluginRequest(payload)
	scene := packagetypes.CatalogEntry{ID: "studio"}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	requests := make(chan Request, 3)
	requests <- Request{Plugin: &plugin}
	requests <- Request{Scene: &scene}
	requests <- Request{}
	close(requests)

	var results []Result
	for res := range svc.Serve(ctx, requests) {
		results = append(results, res)
	}

	require.Len(t, results, 3)
	assert.NoError(t, results[0].Err)
	assert.ErrorIs(t, results[1].Err, ErrMissingManifestURL)
	assert.ErrorIs(t, results[2].Err, ErrEmptyRequest)
}

func TestServeStopsOnCancel(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx, cancel := context.WithCancel(context.Background())

	out := svc.Serve(ctx, make(chan Request))
	cancel()

	select {
	case _, ok := <-out:
		assert.False(t, ok)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not stop after cancel")
	}
}
