package cddt

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"os"
	"strings"
	"time"
)

const (
	// DefaultFetchTimeout is the per-request timeout for remote tables.
	DefaultFetchTimeout = 30 * time.Second

	// DefaultMaxRetries is the default number of attempts.
	DefaultMaxRetries = 3

	defaultBaseBackoff = 500 * time.Millisecond

	// maxResponseBytes caps a remote table at 256 MB.
	maxResponseBytes = 256 << 20
)

// ErrResponseTooLarge is returned when a remote table exceeds the size limit.
// It is not retried.
var ErrResponseTooLarge = errors.New("response too large")

// FetchOption configures FetchBytes.
type FetchOption func(*fetchConfig)

type fetchConfig struct {
	timeout     time.Duration
	maxRetries  int
	baseBackoff time.Duration
	maxBytes    int64
	client      *http.Client
}

func defaultFetchConfig() fetchConfig {
	return fetchConfig{
		timeout:     DefaultFetchTimeout,
		maxRetries:  DefaultMaxRetries,
		baseBackoff: defaultBaseBackoff,
		maxBytes:    maxResponseBytes,
	}
}

// WithTimeout sets the HTTP request timeout.
func WithTimeout(d time.Duration) FetchOption {
	return func(c *fetchConfig) {
		c.timeout = d
	}
}

// WithMaxRetries sets the maximum number of attempts.
func WithMaxRetries(n int) FetchOption {
	return func(c *fetchConfig) {
		c.maxRetries = n
	}
}

// WithBaseBackoff sets the base delay for exponential backoff between attempts.
func WithBaseBackoff(d time.Duration) FetchOption {
	return func(c *fetchConfig) {
		c.baseBackoff = d
	}
}

// WithMaxBytes sets the largest response body accepted.
func WithMaxBytes(n int64) FetchOption {
	return func(c *fetchConfig) {
		c.maxBytes = n
	}
}

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) FetchOption {
	return func(c *fetchConfig) {
		c.client = client
	}
}

// IsRemotePath reports whether path is an http(s) URL
func IsRemotePath(path string) bool {
	return strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://")
}

// ReadSource returns the raw bytes of a table from disk or, for http(s)
// URLs, from the network.
func ReadSource(ctx context.Context, path string, opts ...FetchOption) ([]byte, error) {
	if IsRemotePath(path) {
		return FetchBytes(ctx, path, opts...)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading file: %w", err)
	}
	return data, nil
}

// FetchBytes downloads url, retrying transport errors and non-200 answers
// with exponential backoff.
func FetchBytes(ctx context.Context, url string, opts ...FetchOption) ([]byte, error) {
	if url == "" {
		return nil, fmt.Errorf("fetch table: URL is empty")
	}

	cfg := defaultFetchConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.maxRetries < 1 {
		cfg.maxRetries = 1
	}

	client := cfg.client
	if client == nil {
		client = &http.Client{Timeout: cfg.timeout}
	}

	var lastErr error
	for attempt := range cfg.maxRetries {
		if attempt > 0 {
			backoff := cfg.baseBackoff * time.Duration(math.Pow(2, float64(attempt-1)))
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("fetch table: %w", ctx.Err())
			case <-time.After(backoff):
			}
		}

		body, err := doFetch(ctx, client, url, cfg.maxBytes)
		if errors.Is(err, ErrResponseTooLarge) {
			return nil, fmt.Errorf("fetch table: %w", err)
		}
		if err != nil {
			Logf("fetch %s attempt %d/%d: %v", url, attempt+1, cfg.maxRetries, err)
			lastErr = err
			continue
		}
		return body, nil
	}

	return nil, fmt.Errorf("fetch table: all %d attempts failed: %w", cfg.maxRetries, lastErr)
}

func doFetch(ctx context.Context, client *http.Client, url string, maxBytes int64) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP GET %s: %w", url, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP GET %s: status %d", url, resp.StatusCode)
	}

	// One byte past the limit tells a full body from a cut one.
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("reading response from %s: %w", url, err)
	}
	if int64(len(body)) > maxBytes {
		return nil, fmt.Errorf("HTTP GET %s: %w: more than %d bytes", url, ErrResponseTooLarge, maxBytes)
	}
	return body, nil
}

// FetchTable downloads and loads a table. Decode errors are not retried.
func FetchTable(ctx context.Context, url string, opts LoadOptions, fetchOpts ...FetchOption) (*Table, error) {
	Logf("Fetching CDDT: %s", url)
	data, err := FetchBytes(ctx, url, fetchOpts...)
	if err != nil {
		return nil, err
	}
	return LoadTableBytes(data, opts)
}
