package winget

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"regexp"
	"sort"
	"strings"
	"time"

	"intuneget/pkg/config"
	"intuneget/pkg/version"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"
	"gopkg.in/yaml.v3"
)

var versionFolder = regexp.MustCompile(`^\d`)

// Cache stores resolved packages; *database.Redis satisfies it
type Cache interface {
	GetJSON(ctx context.Context, key string, dest interface{}) error
	SetJSON(ctx context.Context, key string, value interface{}, expiration time.Duration) error
}

// Client resolves winget packages from the winget-pkgs manifest repository
type Client struct {
	httpClient  *http.Client
	apiBaseURL  string
	rawBaseURL  string
	repository  string
	branch      string
	token       string
	userAgent   string
	maxRetries  int
	backoffBase time.Duration
	cacheTTL    time.Duration
	cache       Cache
	limiter     *rate.Limiter
	flight      singleflight.Group
	tracer      trace.Tracer
}

// Option customizes a Client
type Option func(*Client)

// WithHTTPClient replaces the HTTP client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithCache enables result caching
func WithCache(cache Cache) Option {
	return func(c *Client) { c.cache = cache }
}

// WithBackoffBase sets the first retry delay
func WithBackoffBase(d time.Duration) Option {
	return func(c *Client) { c.backoffBase = d }
}

func NewClient(cfg config.CatalogConfig, opts ...Option) *Client {
	var transport http.RoundTripper = http.DefaultTransport
	if config.GetBoolEnv("ENABLE_TELEMETRY", false) {
		transport = otelhttp.NewTransport(http.DefaultTransport,
			otelhttp.WithSpanNameFormatter(func(operation string, r *http.Request) string {
				return fmt.Sprintf("HTTP %s %s", r.Method, r.URL.Host)
			}),
		)
	}

	c := &Client{
		httpClient: &http.Client{
			Timeout:   30 * time.Second,
			Transport: transport,
		},
		apiBaseURL:  strings.TrimRight(cfg.APIBaseURL, "/"),
		rawBaseURL:  strings.TrimRight(cfg.RawBaseURL, "/"),
		repository:  cfg.Repository,
		branch:      cfg.Branch,
		token:       cfg.GitHubToken,
		userAgent:   "intuneget/" + version.Version,
		maxRetries:  cfg.MaxRetries,
		backoffBase: time.Second,
		cacheTTL:    cfg.CacheTTL,
		tracer:      otel.Tracer("intuneget/winget"),
	}
	if cfg.RequestsPerSecond > 0 {
		burst := int(math.Ceil(cfg.RequestsPerSecond))
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ManifestPath maps a package id to its folder, e.g. "Mozilla.Firefox" -> "m/Mozilla/Firefox"
func ManifestPath(packageID string) string {
	if packageID == "" {
		return ""
	}
	return strings.ToLower(packageID[:1]) + "/" + strings.Join(strings.Split(packageID, "."), "/")
}

func cacheKey(packageID, architecture string) string {
	return fmt.Sprintf("winget:latest:%s:%s", strings.ToLower(packageID), strings.ToLower(architecture))
}

// LatestVersion resolves the highest published version of a package and the installer
// for the requested architecture. An empty architecture selects the first installer.
func (c *Client) LatestVersion(ctx context.Context, packageID, architecture string) (*Package, error) {
	ctx, span := c.tracer.Start(ctx, "winget.latest_version",
		trace.WithAttributes(
			attribute.String("winget.package_id", packageID),
			attribute.String("winget.architecture", architecture),
		),
	)
	defer span.End()

	if packageID == "" {
		return nil, fmt.Errorf("%w: empty package id", ErrPackageNotFound)
	}

	key := cacheKey(packageID, architecture)
	if c.cache != nil {
		var cached Package
		if err := c.cache.GetJSON(ctx, key, &cached); err == nil {
			span.SetAttributes(attribute.Bool("cache.hit", true))
			return &cached, nil
		}
	}

	// Concurrent lookups of the same package share one set of catalog requests.
	result, err, shared := c.flight.Do(key, func() (interface{}, error) {
		return c.resolve(ctx, packageID, architecture, key)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	pkg := *result.(*Package)
	span.SetAttributes(
		attribute.String("winget.version", pkg.Version),
		attribute.Bool("winget.shared", shared),
	)
	return &pkg, nil
}

func (c *Client) resolve(ctx context.Context, packageID, architecture, key string) (*Package, error) {
	versions, err := c.ListVersions(ctx, packageID)
	if err != nil {
		return nil, err
	}
	latest := versions[len(versions)-1]

	manifest, err := c.InstallerManifest(ctx, packageID, latest)
	if err != nil {
		return nil, err
	}

	pkg, err := selectInstaller(packageID, latest, manifest, architecture)
	if err != nil {
		return nil, err
	}

	if c.cache != nil && c.cacheTTL > 0 {
		if err := c.cache.SetJSON(ctx, key, pkg, c.cacheTTL); err != nil {
			slog.WarnContext(ctx, "Failed to cache catalog entry", slog.String("key", key), slog.String("error", err.Error()))
		}
	}
	return pkg, nil
}

// ListVersions returns the version folders of a package, oldest first
func (c *Client) ListVersions(ctx context.Context, packageID string) ([]string, error) {
	url := fmt.Sprintf("%s/repos/%s/contents/manifests/%s?ref=%s", c.apiBaseURL, c.repository, ManifestPath(packageID), c.branch)

	resp, err := c.doWithRetry(ctx, url, true)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%w: %s", ErrPackageNotFound, packageID)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("listing versions of %s: unexpected status %d", packageID, resp.StatusCode)
	}

	var entries []contentEntry
	if err := json.NewDecoder(resp.Body).Decode(&entries); err != nil {
		return nil, fmt.Errorf("failed to decode contents listing for %s: %w", packageID, err)
	}

	var versions []string
	for _, entry := range entries {
		if entry.Type == "dir" && versionFolder.MatchString(entry.Name) {
			versions = append(versions, entry.Name)
		}
	}
	if len(versions) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoVersions, packageID)
	}

	sort.SliceStable(versions, func(i, j int) bool {
		return CompareVersions(versions[i], versions[j]) < 0
	})
	return versions, nil
}

// InstallerManifest fetches and parses the installer manifest of one version
func (c *Client) InstallerManifest(ctx context.Context, packageID, ver string) (*InstallerManifest, error) {
	candidates := []string{
		packageID + ".installer.yaml",
		packageID + ".yaml",
		packageID + ".Installer.yaml",
	}

	for _, file := range candidates {
		url := fmt.Sprintf("%s/%s/%s/manifests/%s/%s/%s", c.rawBaseURL, c.repository, c.branch, ManifestPath(packageID), ver, file)

		resp, err := c.doWithRetry(ctx, url, false)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode == http.StatusNotFound {
			resp.Body.Close()
			continue
		}
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			return nil, fmt.Errorf("fetching %s: unexpected status %d", file, resp.StatusCode)
		}

		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", file, err)
		}

		var manifest InstallerManifest
		if err := yaml.Unmarshal(body, &manifest); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", file, err)
		}
		return &manifest, nil
	}

	return nil, fmt.Errorf("%w: %s %s", ErrManifestNotFound, packageID, ver)
}

func selectInstaller(packageID, folderVersion string, manifest *InstallerManifest, architecture string) (*Package, error) {
	if len(manifest.Installers) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoInstaller, packageID)
	}

	installer := manifest.Installers[0]
	for _, candidate := range manifest.Installers {
		if architecture != "" && strings.EqualFold(candidate.Architecture, architecture) {
			installer = candidate
			break
		}
	}

	pkg := &Package{
		ID:              packageID,
		Version:         manifest.PackageVersion,
		Architecture:    installer.Architecture,
		InstallerType:   firstNonEmpty(installer.InstallerType, manifest.InstallerType),
		InstallerURL:    installer.InstallerURL,
		InstallerSHA256: installer.InstallerSHA256,
		Scope:           firstNonEmpty(installer.Scope, manifest.Scope),
		ProductCode:     firstNonEmpty(installer.ProductCode, manifest.ProductCode),
	}
	if pkg.Version == "" {
		pkg.Version = folderVersion
	}
	return pkg, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
