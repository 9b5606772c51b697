// Package download fetches remote backup archives over HTTP(S) with
// retries, resumption and checksum validation.
package download

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"math/rand"
	"net/http"
	"os"
	"path"
	"strings"
	"time"

	"github.com/BadgerOps/siteport/internal/safety"
)

// ProgressFunc is called as bytes arrive. total is 0 when unknown.
type ProgressFunc func(downloaded, total int64)

// FetchOptions describes one archive download.
type FetchOptions struct {
	URL     string
	DestDir string
	// Name overrides the file name derived from the URL path.
	Name       string
	SHA256     string // hex, empty to skip validation
	Retries    int    // 0 defaults to 3
	OnProgress ProgressFunc
}

// Result describes a completed download.
type Result struct {
	Path     string
	Size     int64
	SHA256   string
	Resumed  bool
	Attempts int
	Duration time.Duration
}

// Client performs archive downloads.
type Client struct {
	httpClient  *http.Client
	logger      *slog.Logger
	userAgent   string
	backoffFunc func(attempt int) time.Duration
}

// NewClient creates a download client. A zero timeout leaves body reads
// unbounded; cancellation still applies through the context.
func NewClient(logger *slog.Logger, timeout time.Duration) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		httpClient:  safety.NewHTTPClient(timeout),
		logger:      logger,
		userAgent:   "siteport/1.0",
		backoffFunc: backoffDelay,
	}
}

// IsRemote reports whether arg looks like an HTTP(S) URL rather than a path.
func IsRemote(arg string) bool {
	return strings.HasPrefix(arg, "http://") || strings.HasPrefix(arg, "https://")
}

// FileName derives a safe local file name from the URL path.
func FileName(rawURL string) (string, error) {
	u, err := safety.ValidateHTTPURL(rawURL)
	if err != nil {
		return "", err
	}
	name := path.Base(u.Path)
	if name == "." || name == "/" || name == "" || name == ".." {
		return "archive.download", nil
	}
	if strings.ContainsAny(name, `\`+"\x00") {
		return "", fmt.Errorf("unsafe file name in URL: %q", name)
	}
	return name, nil
}

// Fetch downloads opts.URL into opts.DestDir, retrying transient failures
// with exponential backoff. Later attempts resume the partial file when the
// server supports ranges.
func (c *Client) Fetch(ctx context.Context, opts FetchOptions) (*Result, error) {
	if _, err := safety.ValidateHTTPURL(opts.URL); err != nil {
		return nil, err
	}
	name := opts.Name
	if name == "" {
		var err error
		if name, err = FileName(opts.URL); err != nil {
			return nil, err
		}
	}
	dest, err := safety.JoinMember(opts.DestDir, name)
	if err != nil {
		return nil, fmt.Errorf("download destination: %w", err)
	}
	if err := os.MkdirAll(opts.DestDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create directory %s: %w", opts.DestDir, err)
	}

	// A file left by an earlier run may belong to a different archive
	if err := os.Remove(dest); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("removing stale download: %w", err)
	}

	retries := opts.Retries
	if retries <= 0 {
		retries = 3
	}

	start := time.Now()
	var lastErr error
	for attempt := 1; attempt <= retries; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("download cancelled: %w", err)
		}

		var offset int64
		if fi, err := os.Stat(dest); err == nil {
			offset = fi.Size()
		}

		res, err := c.attempt(ctx, dest, opts, offset)
		if err == nil {
			res.Attempts = attempt
			res.Duration = time.Since(start)
			c.logger.Info("archive downloaded", "url", opts.URL, "path", dest, "size", res.Size, "attempts", attempt)
			return res, nil
		}

		lastErr = err
		c.logger.Warn("download attempt failed", "url", opts.URL, "attempt", attempt, "error", err)

		// Cancellation is final
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		if shouldNotRetry(err) {
			_ = os.Remove(dest)
			return nil, err
		}

		if attempt < retries {
			delay := c.backoffFunc(attempt)
			c.logger.Debug("retrying download", "url", opts.URL, "delay", delay)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, fmt.Errorf("download cancelled during retry: %w", ctx.Err())
			}
		}
	}

	return nil, fmt.Errorf("download failed after %d attempts: %w", retries, lastErr)
}

func (c *Client) attempt(ctx context.Context, dest string, opts FetchOptions, offset int64) (*Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, opts.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	if offset > 0 {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-", offset))
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusRequestedRangeNotSatisfiable && offset > 0 {
		// The partial file is already complete or stale; start over next attempt
		_ = os.Remove(dest)
		return nil, fmt.Errorf("server rejected resume at offset %d", offset)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := safety.ReadLimited(resp.Body, 4<<10)
		return nil, &HTTPError{StatusCode: resp.StatusCode, Status: resp.Status, Body: string(body)}
	}

	flags := os.O_CREATE | os.O_WRONLY
	resumed := resp.StatusCode == http.StatusPartialContent && offset > 0
	if resumed {
		flags |= os.O_APPEND
	} else {
		flags |= os.O_TRUNC
		offset = 0
	}

	file, err := os.OpenFile(dest, flags, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer func() { _ = file.Close() }()

	total := resp.ContentLength
	if total > 0 {
		total += offset
	} else {
		total = 0
	}

	var body io.Reader = resp.Body
	if opts.OnProgress != nil {
		body = &progressReader{reader: resp.Body, callback: opts.OnProgress, current: offset, total: total}
	}
	n, err := io.Copy(file, body)
	if err != nil {
		return nil, fmt.Errorf("failed to write to file: %w", err)
	}
	if err := file.Sync(); err != nil {
		return nil, fmt.Errorf("failed to sync file: %w", err)
	}

	sum, err := hashFile(dest)
	if err != nil {
		return nil, fmt.Errorf("failed to hash file: %w", err)
	}
	if opts.SHA256 != "" && !strings.EqualFold(sum, opts.SHA256) {
		_ = os.Remove(dest)
		return nil, &ChecksumError{Got: sum, Want: opts.SHA256}
	}

	return &Result{Path: dest, Size: offset + n, SHA256: sum, Resumed: resumed}, nil
}

func hashFile(p string) (string, error) {
	f, err := os.Open(p)
	if err != nil {
		return "", err
	}
	defer func() { _ = f.Close() }()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// backoffDelay doubles from one second per attempt plus up to 50% jitter.
func backoffDelay(attempt int) time.Duration {
	base := time.Duration(math.Pow(2, float64(attempt-1))) * time.Second
	return base + time.Duration(rand.Int63n(int64(base/2)))
}

// shouldNotRetry is true for 4xx responses other than 429 and for checksum
// mismatches.
func shouldNotRetry(err error) bool {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode >= 400 && httpErr.StatusCode < 500 && httpErr.StatusCode != http.StatusTooManyRequests
	}
	var sumErr *ChecksumError
	return errors.As(err, &sumErr)
}

// HTTPError represents an HTTP error response.
type HTTPError struct {
	StatusCode int
	Status     string
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("http error %d: %s", e.StatusCode, e.Status)
}

// ChecksumError reports a digest mismatch.
type ChecksumError struct {
	Got  string
	Want string
}

func (e *ChecksumError) Error() string {
	return fmt.Sprintf("checksum mismatch: got %s, expected %s", e.Got, e.Want)
}

type progressReader struct {
	reader   io.Reader
	callback ProgressFunc
	current  int64
	total    int64
}

func (pr *progressReader) Read(p []byte) (int, error) {
	n, err := pr.reader.Read(p)
	if n > 0 {
		pr.current += int64(n)
		pr.callback(pr.current, pr.total)
	}
	return n, err
}
