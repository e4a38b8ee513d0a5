package version

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/abhishekdudeja804/floorspace-theme-updater/internal/cache"
	"github.com/abhishekdudeja804/floorspace-theme-updater/internal/remote"
)

// CacheKey is the cache entry holding RemoteInfo.
const CacheKey = "remote:info"

// RemoteInfo is the cached view of the latest release in the repository.
type RemoteInfo struct {
	Latest     string            `json:"latest"`
	Components map[string]string `json:"components"`
	FetchedAt  time.Time         `json:"fetched_at"`
}

// Status is the outcome of comparing the installed and latest versions.
type Status struct {
	Current         string `json:"current"`
	Latest          string `json:"latest"`
	UpdateAvailable bool   `json:"update_available"`
}

// Message returns the one-line summary shown after a check.
func (s Status) Message() string {
	if s.UpdateAvailable {
		return fmt.Sprintf("Update available: %s → %s", s.Current, s.Latest)
	}
	return fmt.Sprintf("Up to date: %s", s.Current)
}

// Resolver reads the installed version from disk and the latest version
// from the repository, caching the remote lookup.
type Resolver struct {
	fetcher     remote.Fetcher
	headerURL   string
	manifestURL string
	headerFile  string
	cache       cache.Cache
	clock       cache.Clock
	ttl         time.Duration
	logger      *zap.Logger
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithCache sets the cache used for RemoteInfo.
func WithCache(c cache.Cache) Option {
	return func(r *Resolver) { r.cache = c }
}

// WithClock sets the clock used to stamp RemoteInfo.
func WithClock(c cache.Clock) Option {
	return func(r *Resolver) { r.clock = c }
}

// WithTTL sets how long RemoteInfo stays cached.
func WithTTL(ttl time.Duration) Option {
	return func(r *Resolver) { r.ttl = ttl }
}

// WithManifestURL sets the URL of the component-version manifest.
func WithManifestURL(url string) Option {
	return func(r *Resolver) { r.manifestURL = url }
}

// WithHeaderFile sets the installation-relative header file name.
func WithHeaderFile(name string) Option {
	return func(r *Resolver) {
		if name != "" {
			r.headerFile = name
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(r *Resolver) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewResolver creates a Resolver that reads the remote header at headerURL.
func NewResolver(fetcher remote.Fetcher, headerURL string, opts ...Option) *Resolver {
	r := &Resolver{
		fetcher:    fetcher,
		headerURL:  headerURL,
		headerFile: "style.css",
		ttl:        5 * time.Minute,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.clock == nil {
		r.clock = cache.SystemClock{}
	}
	if r.cache == nil {
		r.cache = cache.NewMemory(r.clock)
	}
	return r
}

// Current returns the version declared by the installation at root.
func (r *Resolver) Current(root string) string {
	return ReadHeaderFile(filepath.Join(root, r.headerFile))
}

// Latest returns the latest version in the repository, or Default when it
// cannot be determined.
func (r *Resolver) Latest(ctx context.Context) string {
	return r.Remote(ctx).Latest
}

// Components returns the per-component versions of the latest release.
// The map is empty when the manifest is missing or malformed.
func (r *Resolver) Components(ctx context.Context) map[string]string {
	return r.Remote(ctx).Components
}

// Check compares the installation at root against the repository.
func (r *Resolver) Check(ctx context.Context, root string) Status {
	current := r.Current(root)
	latest := r.Latest(ctx)
	return Status{
		Current:         current,
		Latest:          latest,
		UpdateAvailable: NeedsUpdate(current, latest),
	}
}

// Remote returns the cached RemoteInfo, fetching it when stale. Only a
// successful header fetch is cached, so a transient failure is retried on
// the next call.
func (r *Resolver) Remote(ctx context.Context) RemoteInfo {
	var info RemoteInfo
	if cache.GetJSON(r.cache, CacheKey, &info) && info.Latest != "" {
		if info.Components == nil {
			info.Components = map[string]string{}
		}
		return info
	}

	latest, ok := r.fetchLatest(ctx)
	info = RemoteInfo{
		Latest:     latest,
		Components: r.fetchComponents(ctx),
		FetchedAt:  r.clock.Now(),
	}
	if ok {
		if err := cache.SetJSON(r.cache, CacheKey, info, r.ttl); err != nil {
			r.logger.Warn("failed to cache remote version", zap.Error(err))
		}
	}
	return info
}

// Cached returns the cached RemoteInfo without touching the network.
func (r *Resolver) Cached() (RemoteInfo, bool) {
	var info RemoteInfo
	if !cache.GetJSON(r.cache, CacheKey, &info) || info.Latest == "" {
		return RemoteInfo{}, false
	}
	return info, true
}

// Invalidate drops the cached RemoteInfo.
func (r *Resolver) Invalidate() error {
	return r.cache.Delete(CacheKey)
}

func (r *Resolver) fetchLatest(ctx context.Context) (string, bool) {
	body, err := r.fetcher.Get(ctx, r.headerURL)
	if err != nil {
		r.logger.Warn("failed to fetch remote header", zap.String("url", r.headerURL), zap.Error(err))
		return Default, false
	}
	v, ok := ParseHeader(body)
	if !ok {
		r.logger.Warn("remote header has no Version token", zap.String("url", r.headerURL))
		return Default, false
	}
	return v, true
}

func (r *Resolver) fetchComponents(ctx context.Context) map[string]string {
	out := map[string]string{}
	if r.manifestURL == "" {
		return out
	}

	body, err := r.fetcher.Get(ctx, r.manifestURL)
	if err != nil {
		r.logger.Debug("component manifest unavailable", zap.String("url", r.manifestURL), zap.Error(err))
		return out
	}
	return ParseManifest(body)
}

// ParseManifest decodes a versions.json manifest. Keys "status" and "note"
// (any case) are bookkeeping, not components, and are dropped. Non-string
// values are rendered with their JSON text.
func ParseManifest(body []byte) map[string]string {
	out := map[string]string{}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return out
	}

	for k, v := range raw {
		switch strings.ToLower(k) {
		case "status", "note":
			continue
		}
		var s string
		if err := json.Unmarshal(v, &s); err == nil {
			out[k] = s
			continue
		}
		out[k] = string(v)
	}
	return out
}
