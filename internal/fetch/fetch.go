// Package fetch retrieves remote assets into a render's storage scope.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"regexp"
	"strings"
	"time"

	"github.com/maauso/audiogram-api/internal/domain"
	"github.com/maauso/audiogram-api/internal/storage"
)

// Static errors for fetch operations.
var (
	// ErrInvalidURL is returned when the asset URL cannot be parsed or has no host.
	ErrInvalidURL = errors.New("invalid asset URL")
	// ErrUnsupportedScheme is returned for schemes other than http, https and s3.
	ErrUnsupportedScheme = errors.New("unsupported URL scheme")
	// ErrAssetTooLarge is returned when an asset exceeds the configured size limit.
	ErrAssetTooLarge = errors.New("asset exceeds size limit")
	// ErrUnexpectedStatus is returned for non-2xx HTTP responses.
	ErrUnexpectedStatus = errors.New("unexpected HTTP status")
)

// Fetcher retrieves an asset into a scope.
type Fetcher interface {
	Fetch(ctx context.Context, scope *storage.Scope, ref domain.AssetReference) (storage.Asset, error)
}

// HTTPFetcher fetches http(s) URLs and, when an ObjectReader is configured, s3:// URLs.
type HTTPFetcher struct {
	httpClient  *http.Client
	objects     storage.ObjectReader
	maxRetries  int
	baseBackoff time.Duration
	maxBytes    int64
	logger      *slog.Logger
}

// Option is a function that configures an HTTPFetcher.
type Option func(*HTTPFetcher)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(f *HTTPFetcher) {
		f.httpClient = c
	}
}

// WithObjectReader enables s3:// URLs.
func WithObjectReader(r storage.ObjectReader) Option {
	return func(f *HTTPFetcher) {
		f.objects = r
	}
}

// WithMaxRetries sets the maximum number of retries for transient failures.
func WithMaxRetries(n int) Option {
	return func(f *HTTPFetcher) {
		if n >= 0 {
			f.maxRetries = n
		}
	}
}

// WithBaseBackoff sets the initial backoff duration for retries.
func WithBaseBackoff(d time.Duration) Option {
	return func(f *HTTPFetcher) {
		f.baseBackoff = d
	}
}

// WithMaxBytes limits the size of a single asset. Zero disables the limit.
func WithMaxBytes(n int64) Option {
	return func(f *HTTPFetcher) {
		f.maxBytes = n
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(f *HTTPFetcher) {
		if l != nil {
			f.logger = l
		}
	}
}

// NewHTTPFetcher creates a fetcher with 2 retries and a 500ms base backoff.
func NewHTTPFetcher(opts ...Option) *HTTPFetcher {
	f := &HTTPFetcher{
		httpClient:  &http.Client{Timeout: 60 * time.Second},
		maxRetries:  2,
		baseBackoff: 500 * time.Millisecond,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fetch retrieves ref.URL into a new file owned by scope.
// Every failure is a *domain.FetchError.
func (f *HTTPFetcher) Fetch(ctx context.Context, scope *storage.Scope, ref domain.AssetReference) (storage.Asset, error) {
	u, err := url.Parse(ref.URL)
	if err != nil || u.Host == "" {
		return storage.Asset{}, &domain.FetchError{URL: ref.URL, Err: ErrInvalidURL}
	}

	start := time.Now()
	var body io.ReadCloser
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
		body, err = f.openHTTPWithRetry(ctx, ref.URL)
	case "s3":
		body, err = f.openObject(ctx, u)
	default:
		err = fmt.Errorf("%w: %q", ErrUnsupportedScheme, u.Scheme)
	}
	if err != nil {
		return storage.Asset{}, toFetchError(ref.URL, err)
	}
	defer func() { _ = body.Close() }()

	var src io.Reader = body
	if f.maxBytes > 0 {
		src = io.LimitReader(body, f.maxBytes+1)
	}

	asset, err := scope.Save(ctx, ref.Kind, extensionOf(u.Path), src)
	if err != nil {
		return storage.Asset{}, toFetchError(ref.URL, fmt.Errorf("save asset: %w", err))
	}
	if f.maxBytes > 0 && asset.Size > f.maxBytes {
		return storage.Asset{}, &domain.FetchError{
			URL: ref.URL,
			Err: fmt.Errorf("%w: more than %d bytes", ErrAssetTooLarge, f.maxBytes),
		}
	}

	f.logger.Debug("asset fetched",
		slog.String("kind", string(ref.Kind)),
		slog.String("url", ref.URL),
		slog.Int64("bytes", asset.Size),
		slog.Duration("elapsed", time.Since(start)),
	)

	return asset, nil
}

func (f *HTTPFetcher) openObject(ctx context.Context, u *url.URL) (io.ReadCloser, error) {
	if f.objects == nil {
		return nil, storage.ErrS3NotConfigured
	}
	key := strings.TrimPrefix(u.Path, "/")
	if key == "" {
		return nil, fmt.Errorf("%w: missing object key", ErrInvalidURL)
	}
	return f.objects.Open(ctx, u.Host, key)
}

// openHTTPWithRetry opens the response body with exponential backoff retry.
func (f *HTTPFetcher) openHTTPWithRetry(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	var lastErr error
	backoff := f.baseBackoff

	for attempt := 0; attempt <= f.maxRetries; attempt++ {
		if attempt > 0 {
			f.logger.Debug("retrying asset fetch",
				slog.String("url", rawURL),
				slog.Int("attempt", attempt),
				slog.String("error", lastErr.Error()),
			)
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("context cancelled: %w", ctx.Err())
			case <-time.After(backoff):
				backoff *= 2
			}
		}

		body, err := f.openHTTP(ctx, rawURL)
		if err == nil {
			return body, nil
		}

		if !isRetryable(err) || ctx.Err() != nil {
			return nil, err
		}

		lastErr = err
	}

	return nil, fmt.Errorf("max retries exceeded: %w", lastErr)
}

// openHTTP performs a single GET and returns the body of a 2xx response.
func (f *HTTPFetcher) openHTTP(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, &retryableError{err: fmt.Errorf("request failed: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		_ = resp.Body.Close()

		statusErr := &statusError{code: resp.StatusCode}
		// 5xx and 429 are retryable, everything else is final
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			return nil, &retryableError{err: statusErr}
		}
		return nil, statusErr
	}

	if f.maxBytes > 0 && resp.ContentLength > f.maxBytes {
		_ = resp.Body.Close()
		return nil, fmt.Errorf("%w: content length %d", ErrAssetTooLarge, resp.ContentLength)
	}

	return resp.Body, nil
}

// statusError carries the HTTP status of a failed response.
type statusError struct {
	code int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("%s %d %s", ErrUnexpectedStatus, e.code, http.StatusText(e.code))
}

func (e *statusError) Unwrap() error {
	return ErrUnexpectedStatus
}

// retryableError wraps errors that should be retried.
type retryableError struct {
	err error
}

func (e *retryableError) Error() string {
	return e.err.Error()
}

func (e *retryableError) Unwrap() error {
	return e.err
}

// isRetryable returns true if the error should be retried.
func isRetryable(err error) bool {
	var re *retryableError
	return errors.As(err, &re)
}

func toFetchError(rawURL string, err error) *domain.FetchError {
	fe := &domain.FetchError{URL: rawURL, Err: err}
	var se *statusError
	if errors.As(err, &se) {
		fe.StatusCode = se.code
	}
	return fe
}

var extPattern = regexp.MustCompile(`^\.[a-zA-Z0-9]{1,5}$`)

// extensionOf returns the URL path extension when it looks like a real one.
func extensionOf(p string) string {
	ext := path.Ext(p)
	if !extPattern.MatchString(ext) {
		return ""
	}
	return ext
}
