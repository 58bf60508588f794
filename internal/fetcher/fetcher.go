package fetcher

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/charmbracelet/log"
)

const (
	DefaultAttempts     = 3
	DefaultTimeout      = 30 * time.Second
	DefaultBackoff      = time.Second
	DefaultUserAgent    = "Mozilla/5.0"
	DefaultMaxBodyBytes = 64 << 20
)

var ErrHostBlocked = errors.New("fetcher: host is blocked")

// Result is the outcome of fetching one URL. Lines is empty, never nil, when
// every attempt failed.
type Result struct {
	Lines    []string
	Attempts int
	Failed   bool
	Err      error
}

type Fetcher struct {
	client       *http.Client
	attempts     int
	backoff      time.Duration
	userAgent    string
	maxBodyBytes int64
	isBlocked    func(rawURL string) bool
	sleep        func(ctx context.Context, d time.Duration) error
}

type Option func(*Fetcher)

func WithHTTPClient(c *http.Client) Option {
	return func(f *Fetcher) {
		if c != nil {
			clone := *c
			f.client = &clone
		}
	}
}

func WithTimeout(d time.Duration) Option {
	return func(f *Fetcher) {
		if d > 0 {
			f.client.Timeout = d
		}
	}
}

func WithAttempts(n int) Option {
	return func(f *Fetcher) {
		if n > 0 {
			f.attempts = n
		}
	}
}

func WithBackoff(d time.Duration) Option {
	return func(f *Fetcher) {
		if d >= 0 {
			f.backoff = d
		}
	}
}

func WithUserAgent(ua string) Option {
	return func(f *Fetcher) {
		if ua != "" {
			f.userAgent = ua
		}
	}
}

// WithMaxBodyBytes caps how much of a response body is read. Zero disables the cap.
func WithMaxBodyBytes(n int64) Option {
	return func(f *Fetcher) {
		if n >= 0 {
			f.maxBodyBytes = n
		}
	}
}

// WithBlocklist makes the fetcher refuse URLs for which blocked returns true.
func WithBlocklist(blocked func(rawURL string) bool) Option {
	return func(f *Fetcher) {
		f.isBlocked = blocked
	}
}

// WithSleep replaces the wait between attempts.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(f *Fetcher) {
		if sleep != nil {
			f.sleep = sleep
		}
	}
}

func New(opts ...Option) *Fetcher {
	f := &Fetcher{
		client:       &http.Client{Timeout: DefaultTimeout},
		attempts:     DefaultAttempts,
		backoff:      DefaultBackoff,
		userAgent:    DefaultUserAgent,
		maxBodyBytes: DefaultMaxBodyBytes,
		sleep:        sleepContext,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fetch downloads rawURL and returns its body split into lines. Failed
// attempts are logged and retried after the backoff; once all attempts are
// used up the result is empty and marked as failed instead of returning an
// error.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) Result {
	if ctx == nil {
		ctx = context.Background()
	}

	if f.isBlocked != nil && f.isBlocked(rawURL) {
		log.Warn("Feed host is blocked, skipping download", "url", rawURL)
		return Result{Lines: []string{}, Failed: true, Err: ErrHostBlocked}
	}

	var lastErr error
	for attempt := 1; attempt <= f.attempts; attempt++ {
		lines, err := f.fetchOnce(ctx, rawURL)
		if err == nil {
			return Result{Lines: lines, Attempts: attempt}
		}
		lastErr = err

		log.Warn("Error downloading feed",
			"url", rawURL,
			"attempt", fmt.Sprintf("%d/%d", attempt, f.attempts),
			"error", err,
		)

		if ctx.Err() != nil {
			return Result{Lines: []string{}, Attempts: attempt, Failed: true, Err: ctx.Err()}
		}

		if attempt < f.attempts {
			if err := f.sleep(ctx, f.backoff); err != nil {
				return Result{Lines: []string{}, Attempts: attempt, Failed: true, Err: err}
			}
		}
	}

	return Result{Lines: []string{}, Attempts: f.attempts, Failed: true, Err: lastErr}
}

func (f *Fetcher) fetchOnce(ctx context.Context, rawURL string) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var reader io.Reader = resp.Body
	if f.maxBodyBytes > 0 {
		reader = io.LimitReader(resp.Body, f.maxBodyBytes+1)
	}

	content, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if f.maxBodyBytes > 0 && int64(len(content)) > f.maxBodyBytes {
		log.Warn("Feed body exceeds size cap, truncating", "url", rawURL, "max_bytes", f.maxBodyBytes)
		content = truncateAtLineBreak(content, int(f.maxBodyBytes))
	}

	return SplitLines(Decode(content, resp.Header.Get("Content-Type"))), nil
}

// truncateAtLineBreak cuts content to at most limit bytes without splitting a
// line. A line that does not end within the limit is dropped entirely.
func truncateAtLineBreak(content []byte, limit int) []byte {
	if limit >= len(content) {
		return content
	}
	if isLineBreak(content[limit]) {
		return content[:limit]
	}
	return content[:bytes.LastIndexAny(content[:limit], lineBreakBytes)+1]
}

const lineBreakBytes = "\r\n\v\f\x1c\x1d\x1e"

func isLineBreak(b byte) bool {
	return strings.IndexByte(lineBreakBytes, b) >= 0
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
