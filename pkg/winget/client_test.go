package winget

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"intuneget/pkg/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const firefoxManifest = `
PackageIdentifier: Mozilla.Firefox
PackageVersion: 128.0.1
InstallerType: exe
Scope: machine
Installers:
  - Architecture: x86
    InstallerUrl: https://download.example.com/firefox-x86.exe
    InstallerSha256: AAAA
  - Architecture: x64
    InstallerType: msi
    InstallerUrl: https://download.example.com/firefox-x64.msi
    InstallerSha256: BBBB
    ProductCode: "{1234}"
`

type catalogServer struct {
	*httptest.Server
	listings  atomic.Int32
	failFirst atomic.Int32
	authSeen  atomic.Value
	files     map[string]string
	hold      atomic.Pointer[chan struct{}]
}

func newCatalogServer(t *testing.T) *catalogServer {
	t.Helper()
	cs := &catalogServer{
		files: map[string]string{
			"/microsoft/winget-pkgs/master/manifests/m/Mozilla/Firefox/128.0.1/Mozilla.Firefox.installer.yaml": firefoxManifest,
		},
	}
	cs.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if cs.failFirst.Load() > 0 {
			cs.failFirst.Add(-1)
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}

		if strings.HasPrefix(r.URL.Path, "/repos/") {
			cs.listings.Add(1)
			cs.authSeen.Store(r.Header.Get("Authorization"))
			if hold := cs.hold.Load(); hold != nil {
				<-*hold
			}
			if r.URL.Path != "/repos/microsoft/winget-pkgs/contents/manifests/m/Mozilla/Firefox" {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			entries := []contentEntry{
				{Name: "127.0", Path: "manifests/m/Mozilla/Firefox/127.0", Type: "dir"},
				{Name: "128.0.1", Path: "manifests/m/Mozilla/Firefox/128.0.1", Type: "dir"},
				{Name: "99.0", Path: "manifests/m/Mozilla/Firefox/99.0", Type: "dir"},
				{Name: "ESR", Path: "manifests/m/Mozilla/Firefox/ESR", Type: "dir"},
				{Name: "1000.txt", Path: "manifests/m/Mozilla/Firefox/1000.txt", Type: "file"},
			}
			_ = json.NewEncoder(w).Encode(entries)
			return
		}

		body, ok := cs.files[r.URL.Path]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(cs.Close)
	return cs
}

func newTestClient(cs *catalogServer, opts ...Option) *Client {
	cfg := config.DefaultAutoUpdateConfig().Catalog
	cfg.APIBaseURL = cs.URL
	cfg.RawBaseURL = cs.URL
	cfg.GitHubToken = "ghp_test"
	cfg.RequestsPerSecond = 0
	opts = append([]Option{WithBackoffBase(time.Millisecond)}, opts...)
	return NewClient(cfg, opts...)
}

type memoryCache struct {
	mu    sync.Mutex
	items map[string][]byte
}

func (m *memoryCache) GetJSON(_ context.Context, key string, dest interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.items[key]
	if !ok {
		return errors.New("miss")
	}
	return json.Unmarshal(data, dest)
}

func (m *memoryCache) SetJSON(_ context.Context, key string, value interface{}, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	if m.items == nil {
		m.items = map[string][]byte{}
	}
	m.items[key] = data
	return nil
}

func TestManifestPath(t *testing.T) {
	assert.Equal(t, "m/Mozilla/Firefox", ManifestPath("Mozilla.Firefox"))
	assert.Equal(t, "m/Microsoft/VisualStudioCode/Insiders", ManifestPath("Microsoft.VisualStudioCode.Insiders"))
	assert.Equal(t, "", ManifestPath(""))
}

func TestListVersionsSortsNumericVersionFolders(t *testing.T) {
	cs := newCatalogServer(t)
	c := newTestClient(cs)

	versions, err := c.ListVersions(context.Background(), "Mozilla.Firefox")
	require.NoError(t, err)
	assert.Equal(t, []string{"99.0", "127.0", "128.0.1"}, versions)
	assert.Equal(t, "Bearer ghp_test", cs.authSeen.Load())
}

func TestLatestVersionSelectsArchitecture(t *testing.T) {
	cs := newCatalogServer(t)
	c := newTestClient(cs)

	pkg, err := c.LatestVersion(context.Background(), "Mozilla.Firefox", "x64")
	require.NoError(t, err)
	assert.Equal(t, "128.0.1", pkg.Version)
	assert.Equal(t, "x64", pkg.Architecture)
	assert.Equal(t, "msi", pkg.InstallerType, "installer-level type wins")
	assert.Equal(t, "BBBB", pkg.InstallerSHA256)
	assert.Equal(t, "machine", pkg.Scope)
	assert.Equal(t, "{1234}", pkg.ProductCode)

	pkg, err = c.LatestVersion(context.Background(), "Mozilla.Firefox", "arm64")
	require.NoError(t, err)
	assert.Equal(t, "x86", pkg.Architecture, "unknown architecture falls back to the first installer")
	assert.Equal(t, "exe", pkg.InstallerType)
}

func TestInstallerManifestFallsBackToAlternativeFileNames(t *testing.T) {
	cs := newCatalogServer(t)
	cs.files = map[string]string{
		"/microsoft/winget-pkgs/master/manifests/m/Mozilla/Firefox/128.0.1/Mozilla.Firefox.yaml": firefoxManifest,
	}
	c := newTestClient(cs)

	manifest, err := c.InstallerManifest(context.Background(), "Mozilla.Firefox", "128.0.1")
	require.NoError(t, err)
	assert.Len(t, manifest.Installers, 2)

	_, err = c.InstallerManifest(context.Background(), "Mozilla.Firefox", "127.0")
	assert.ErrorIs(t, err, ErrManifestNotFound)
}

func TestLatestVersionUnknownPackage(t *testing.T) {
	cs := newCatalogServer(t)
	c := newTestClient(cs)

	_, err := c.LatestVersion(context.Background(), "Nobody.Nothing", "x64")
	assert.ErrorIs(t, err, ErrPackageNotFound)

	_, err = c.LatestVersion(context.Background(), "", "x64")
	assert.ErrorIs(t, err, ErrPackageNotFound)
}

func TestRetriesServerErrors(t *testing.T) {
	cs := newCatalogServer(t)
	c := newTestClient(cs)

	cs.failFirst.Store(2)
	versions, err := c.ListVersions(context.Background(), "Mozilla.Firefox")
	require.NoError(t, err)
	assert.Len(t, versions, 3)

	cs.failFirst.Store(5)
	_, err = c.ListVersions(context.Background(), "Mozilla.Firefox")
	assert.Error(t, err)
}

func TestLatestVersionUsesCache(t *testing.T) {
	cs := newCatalogServer(t)
	cache := &memoryCache{}
	c := newTestClient(cs, WithCache(cache))

	first, err := c.LatestVersion(context.Background(), "Mozilla.Firefox", "x64")
	require.NoError(t, err)
	second, err := c.LatestVersion(context.Background(), "Mozilla.Firefox", "x64")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), cs.listings.Load())
	assert.Contains(t, cache.items, "winget:latest:mozilla.firefox:x64")
}

func TestConcurrentLookupsShareRequests(t *testing.T) {
	cs := newCatalogServer(t)
	hold := make(chan struct{})
	cs.hold.Store(&hold)
	c := newTestClient(cs)

	var wg sync.WaitGroup
	results := make([]*Package, 5)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			pkg, err := c.LatestVersion(context.Background(), "Mozilla.Firefox", "x64")
			assert.NoError(t, err)
			results[i] = pkg
		}(i)
	}

	require.Eventually(t, func() bool { return cs.listings.Load() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	close(hold)
	wg.Wait()

	assert.Equal(t, int32(1), cs.listings.Load())
	for _, pkg := range results {
		require.NotNil(t, pkg)
		assert.Equal(t, "128.0.1", pkg.Version)
	}
	assert.NotSame(t, results[0], results[1], "callers get their own copy")
}

func TestRequestThrottleHonoursContext(t *testing.T) {
	cs := newCatalogServer(t)
	cfg := config.DefaultAutoUpdateConfig().Catalog
	cfg.APIBaseURL = cs.URL
	cfg.RawBaseURL = cs.URL
	cfg.RequestsPerSecond = 0.01
	c := NewClient(cfg, WithBackoffBase(time.Millisecond))

	_, err := c.ListVersions(context.Background(), "Mozilla.Firefox")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = c.ListVersions(ctx, "Mozilla.Firefox")
	assert.Error(t, err)
	assert.Equal(t, int32(1), cs.listings.Load())
}
