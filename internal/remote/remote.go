// Package remote fetches documents and archives from the source repository.
package remote

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

// Default configuration values.
const (
	DefaultUserAgent = "themeupdater"
	DefaultTimeout   = 30 * time.Second
)

// maxDocumentSize bounds Get; archives go through Download instead.
var maxDocumentSize int64 = 10 << 20

// Fetcher retrieves remote content. Implementations must honour ctx.
type Fetcher interface {
	// Get returns the body of url. Any non-200 status is an error.
	Get(ctx context.Context, url string) ([]byte, error)
	// Download streams url into the file at dst and returns the number of
	// bytes written.
	Download(ctx context.Context, url, dst string) (int64, error)
}

// StatusError reports a non-200 response.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d from %s", e.StatusCode, e.URL)
}

// HTTPFetcher is a Fetcher over net/http.
type HTTPFetcher struct {
	httpClient *http.Client
	token      string
	userAgent  string
}

// Option configures an HTTPFetcher.
type Option func(*HTTPFetcher)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(f *HTTPFetcher) {
		f.httpClient = client
	}
}

// WithToken sends token in the Authorization header of every request.
func WithToken(token string) Option {
	return func(f *HTTPFetcher) {
		f.token = strings.TrimSpace(token)
	}
}

// WithUserAgent overrides the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(f *HTTPFetcher) {
		if ua != "" {
			f.userAgent = ua
		}
	}
}

// NewHTTPFetcher creates a fetcher. Document requests use DefaultTimeout
// unless a client is supplied; downloads are bounded by ctx only.
func NewHTTPFetcher(opts ...Option) *HTTPFetcher {
	f := &HTTPFetcher{
		httpClient: &http.Client{},
		userAgent:  DefaultUserAgent,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Get fetches a small document such as a header file or changelog.
func (f *HTTPFetcher) Get(ctx context.Context, url string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, DefaultTimeout)
	defer cancel()

	resp, err := f.do(ctx, url)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxDocumentSize+1))
	if err != nil {
		return nil, fmt.Errorf("read response from %s: %w", url, err)
	}
	if int64(len(body)) > maxDocumentSize {
		return nil, fmt.Errorf("response from %s exceeds %d bytes", url, maxDocumentSize)
	}
	return body, nil
}

// Download streams url into dst, creating or truncating it.
func (f *HTTPFetcher) Download(ctx context.Context, url, dst string) (int64, error) {
	resp, err := f.do(ctx, url)
	if err != nil {
		return 0, err
	}
	defer func() { _ = resp.Body.Close() }()

	out, err := os.Create(dst)
	if err != nil {
		return 0, fmt.Errorf("create %s: %w", dst, err)
	}

	n, err := io.Copy(out, resp.Body)
	if closeErr := out.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return n, fmt.Errorf("write %s: %w", dst, err)
	}
	return n, nil
}

func (f *HTTPFetcher) do(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	if f.token != "" {
		req.Header.Set("Authorization", "token "+f.token)
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request %s: %w", url, err)
	}
	if resp.StatusCode != http.StatusOK {
		_ = resp.Body.Close()
		return nil, &StatusError{URL: url, StatusCode: resp.StatusCode}
	}
	return resp, nil
}
