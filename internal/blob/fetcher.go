// Package blob downloads uploaded documents from their storage URL.
package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/rs/zerolog"

	"transcripts/internal/logger"
)

var (
	ErrNotFound       = errors.New("blob not found")
	ErrTooLarge       = errors.New("blob exceeds size limit")
	ErrUnsupportedURL = errors.New("unsupported blob url")
	ErrFetchFailed    = errors.New("blob fetch failed")
)

// Object is a downloaded document.
type Object struct {
	Data        []byte
	ContentType string
	Filename    string
}

// Config controls fetching.
type Config struct {
	Timeout  time.Duration
	Attempts uint
	MaxBytes int64
	Delay    time.Duration
}

// DefaultConfig returns the fetch defaults.
func DefaultConfig() Config {
	return Config{
		Timeout:  30 * time.Second,
		Attempts: 3,
		MaxBytes: 20 << 20,
		Delay:    500 * time.Millisecond,
	}
}

// Fetcher reads documents over http(s), from file:// URLs and from local paths.
type Fetcher struct {
	client *http.Client
	cfg    Config
	logger zerolog.Logger
}

// NewFetcher creates a Fetcher with its own HTTP client.
func NewFetcher(cfg Config) *Fetcher {
	return NewFetcherWithClient(cfg, &http.Client{Timeout: cfg.Timeout})
}

// NewFetcherWithClient creates a Fetcher using client.
func NewFetcherWithClient(cfg Config, client *http.Client) *Fetcher {
	if cfg.Attempts == 0 {
		cfg.Attempts = 1
	}
	return &Fetcher{
		client: client,
		cfg:    cfg,
		logger: logger.WithComponent("blob"),
	}
}

// Fetch downloads the document at rawURL.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (*Object, error) {
	const op = "Fetch"

	if !strings.Contains(rawURL, "://") {
		return f.readFile(rawURL)
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %v", op, ErrUnsupportedURL, err)
	}

	switch strings.ToLower(u.Scheme) {
	case "http", "https":
		return f.fetchHTTP(ctx, u)
	case "file":
		return f.readFile(filepath.FromSlash(u.Path))
	}
	return nil, fmt.Errorf("%s: %w: scheme %q", op, ErrUnsupportedURL, u.Scheme)
}

func (f *Fetcher) readFile(name string) (*Object, error) {
	const op = "readFile"

	info, err := os.Stat(name)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w: %s", op, ErrNotFound, name)
		}
		return nil, fmt.Errorf("%s: %w: %v", op, ErrFetchFailed, err)
	}
	if f.cfg.MaxBytes > 0 && info.Size() > f.cfg.MaxBytes {
		return nil, fmt.Errorf("%s: %w: %d bytes", op, ErrTooLarge, info.Size())
	}

	data, err := os.ReadFile(name)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %v", op, ErrFetchFailed, err)
	}
	return &Object{Data: data, Filename: filepath.Base(name)}, nil
}

// retryableError marks a failure worth another attempt: network errors,
// 429 and 5xx responses.
type retryableError struct{ err error }

func (e retryableError) Error() string { return e.err.Error() }
func (e retryableError) Unwrap() error { return e.err }

func isRetryable(err error) bool {
	var r retryableError
	return errors.As(err, &r)
}

func (f *Fetcher) fetchHTTP(ctx context.Context, u *url.URL) (*Object, error) {
	const op = "fetchHTTP"
	log := f.logger.With().Str("host", u.Host).Logger()

	var obj *Object
	err := retry.Do(
		func() error {
			var err error
			obj, err = f.get(ctx, u)
			return err
		},
		retry.Context(ctx),
		retry.Attempts(f.cfg.Attempts),
		retry.Delay(f.cfg.Delay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(isRetryable),
		retry.OnRetry(func(n uint, err error) {
			log.Warn().Uint("attempt", n+1).Err(err).Msg("Document download failed, retrying")
		}),
	)
	if err != nil {
		if isRetryable(err) {
			return nil, fmt.Errorf("%s: %w: %w", op, ErrFetchFailed, err)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return obj, nil
}

func (f *Fetcher) get(ctx context.Context, u *url.URL) (*Object, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedURL, err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, retryableError{err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%w: %s", ErrNotFound, u.Redacted())
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, retryableError{fmt.Errorf("unexpected status %d", resp.StatusCode)}
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, fmt.Errorf("%w: unexpected status %d", ErrFetchFailed, resp.StatusCode)
	}

	if f.cfg.MaxBytes > 0 && resp.ContentLength > f.cfg.MaxBytes {
		return nil, fmt.Errorf("%w: %d bytes", ErrTooLarge, resp.ContentLength)
	}

	body := io.Reader(resp.Body)
	if f.cfg.MaxBytes > 0 {
		body = io.LimitReader(resp.Body, f.cfg.MaxBytes+1)
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, retryableError{err}
	}
	if f.cfg.MaxBytes > 0 && int64(len(data)) > f.cfg.MaxBytes {
		return nil, fmt.Errorf("%w: more than %d bytes", ErrTooLarge, f.cfg.MaxBytes)
	}

	return &Object{
		Data:        data,
		ContentType: resp.Header.Get("Content-Type"),
		Filename:    responseFilename(resp, u),
	}, nil
}

// responseFilename prefers Content-Disposition over the last path segment.
func responseFilename(resp *http.Response, u *url.URL) string {
	if cd := resp.Header.Get("Content-Disposition"); cd != "" {
		if _, params, err := mime.ParseMediaType(cd); err == nil && params["filename"] != "" {
			return params["filename"]
		}
	}
	name := path.Base(u.Path)
	if name == "/" || name == "." {
		return ""
	}
	return name
}
