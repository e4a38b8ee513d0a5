package changelog

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/abhishekdudeja804/floorspace-theme-updater/internal/cache"
	"github.com/abhishekdudeja804/floorspace-theme-updater/internal/remote"
)

// CacheKey is the cache entry holding the parsed entry list.
const CacheKey = "changelog:entries"

// ComponentSource reports per-component versions of the latest release.
type ComponentSource interface {
	Components(ctx context.Context) map[string]string
}

// Service fetches the remote changelog and keeps the parsed entries cached.
// None of its methods fail: fetch and parse problems degrade to the
// placeholder entry or the "no details" message and are logged.
type Service struct {
	fetcher    remote.Fetcher
	url        string
	cache      cache.Cache
	ttl        time.Duration
	components ComponentSource
	logger     *zap.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithCache sets the cache used for parsed entries.
func WithCache(c cache.Cache) Option {
	return func(s *Service) { s.cache = c }
}

// WithTTL sets how long parsed entries stay cached.
func WithTTL(ttl time.Duration) Option {
	return func(s *Service) { s.ttl = ttl }
}

// WithComponents sets the source used when a version has no section.
func WithComponents(src ComponentSource) Option {
	return func(s *Service) { s.components = src }
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewService creates a Service reading the changelog at url.
func NewService(fetcher remote.Fetcher, url string, opts ...Option) *Service {
	s := &Service{
		fetcher: fetcher,
		url:     url,
		ttl:     5 * time.Minute,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.cache == nil {
		s.cache = cache.NewMemory(nil)
	}
	return s
}

// Entries returns the parsed changelog, from cache when fresh.
func (s *Service) Entries(ctx context.Context) []Entry {
	var entries []Entry
	if cache.GetJSON(s.cache, CacheKey, &entries) && len(entries) > 0 {
		return entries
	}

	doc, ok := s.document(ctx)
	if !ok {
		entries = Fallback()
	} else {
		entries = Parse(doc)
		if entries[0].IsPlaceholder() {
			s.logger.Warn("no version entries found in changelog",
				zap.String("url", s.url),
				zap.String("expected", "## [1.0.0] - 2025-01-01"))
		} else {
			s.logger.Debug("parsed changelog", zap.Int("versions", len(entries)))
		}
	}

	if err := cache.SetJSON(s.cache, CacheKey, entries, s.ttl); err != nil {
		s.logger.Warn("failed to cache changelog", zap.Error(err))
	}
	return entries
}

// Refresh drops the cached entries and fetches them again.
func (s *Service) Refresh(ctx context.Context) []Entry {
	if err := s.cache.Delete(CacheKey); err != nil {
		s.logger.Warn("failed to clear changelog cache", zap.Error(err))
	}
	return s.Entries(ctx)
}

// Details renders the section for version as HTML. The document is fetched
// fresh so that details are never older than the entry list.
func (s *Service) Details(ctx context.Context, version string) string {
	doc, _ := s.document(ctx)
	return RenderSection(doc, version, s.componentVersions(ctx))
}

// Markdown returns the raw section body for version.
func (s *Service) Markdown(ctx context.Context, version string) (string, bool) {
	doc, ok := s.document(ctx)
	if !ok {
		return "", false
	}
	return Section(doc, version)
}

func (s *Service) componentVersions(ctx context.Context) map[string]string {
	if s.components == nil {
		return nil
	}
	return s.components.Components(ctx)
}

func (s *Service) document(ctx context.Context) (string, bool) {
	body, err := s.fetcher.Get(ctx, s.url)
	if err != nil {
		s.logger.Warn("failed to fetch changelog", zap.String("url", s.url), zap.Error(err))
		return "", false
	}
	doc := string(body)
	if strings.TrimSpace(doc) == "" {
		s.logger.Warn("changelog is empty", zap.String("url", s.url))
		return "", false
	}
	return doc, true
}
