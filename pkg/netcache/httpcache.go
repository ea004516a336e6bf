package netcache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"
)

// ErrNotFound is matched by a StatusError for HTTP 404 and 410.
var ErrNotFound = errors.New("remote resource not found")

// StatusError reports a non-success HTTP status.
type StatusError struct {
	URL  string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: HTTP %d", e.URL, e.Code)
}

func (e *StatusError) Is(target error) bool {
	return target == ErrNotFound && (e.Code == http.StatusNotFound || e.Code == http.StatusGone)
}

// Cache provides a simple persistent HTTP cache with ETag/Last-Modified support.
type Cache struct {
	Dir    string
	Client *http.Client
	// Retries is the number of full fetch attempts on network errors or 5xx.
	Retries int
	// Backoff is the delay before the first retry; it doubles per attempt.
	Backoff time.Duration
}

// New returns a new Cache with a reasonable default HTTP client.
func New(dir string) *Cache {
	return &Cache{
		Dir:     dir,
		Client:  &http.Client{Timeout: 30 * time.Second},
		Retries: 3,
		Backoff: time.Second,
	}
}

type meta struct {
	URL          string `json:"url"`
	ETag         string `json:"etag,omitempty"`
	LastModified string `json:"last_modified,omitempty"`
	// DataFile is the basename of the cached payload file
	DataFile string `json:"data_file"`
}

// Get fetches the URL into the cache and returns a local file path.
// If the cache is valid, it is reused without downloading.
// Returns (path, fromCache, error).
func (c *Cache) Get(ctx context.Context, url string) (string, bool, error) {
	key := hash(url)
	mpath := filepath.Join(c.Dir, key+".json")
	var m meta
	var haveMeta bool
	if b, err := os.ReadFile(mpath); err == nil {
		_ = json.Unmarshal(b, &m)
		if m.URL == url && m.DataFile != "" && fileExists(filepath.Join(c.Dir, m.DataFile)) {
			haveMeta = true
		}
	}

	if haveMeta {
		path, fresh, err := c.revalidate(ctx, url, key, m)
		if err == nil {
			return path, !fresh, nil
		}
		if errors.Is(err, ErrNotFound) {
			return "", false, err
		}
		// Revalidation failed for another reason; serve the cached copy.
		slog.Warn("revalidation failed, using cached copy", "url", url, "err", err)
		return filepath.Join(c.Dir, m.DataFile), true, nil
	}

	var lastErr error
	retries := max(c.Retries, 1)
	for attempt := 0; attempt < retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return "", false, ctx.Err()
			case <-time.After(c.Backoff << (attempt - 1)):
			}
		}
		path, err := c.fetch(ctx, url, key, nil)
		if err == nil {
			return path, false, nil
		}
		lastErr = err
		var se *StatusError
		if errors.As(err, &se) && se.Code < 500 {
			break
		}
		slog.Debug("fetch failed", "url", url, "attempt", attempt+1, "err", err)
	}
	return "", false, lastErr
}

// revalidate issues a conditional GET. fresh reports whether a new body
// was downloaded.
func (c *Cache) revalidate(ctx context.Context, url, key string, m meta) (path string, fresh bool, err error) {
	headers := http.Header{}
	if m.ETag != "" {
		headers.Set("If-None-Match", m.ETag)
	}
	if m.LastModified != "" {
		headers.Set("If-Modified-Since", m.LastModified)
	}
	path, err = c.fetch(ctx, url, key, headers)
	if errors.Is(err, errNotModified) {
		return filepath.Join(c.Dir, m.DataFile), false, nil
	}
	if err != nil {
		return "", false, err
	}
	return path, true, nil
}

var errNotModified = errors.New("not modified")

func (c *Cache) fetch(ctx context.Context, url, key string, headers http.Header) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	for k, vs := range headers {
		req.Header[k] = vs
	}
	client := c.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	switch {
	case resp.StatusCode == http.StatusNotModified:
		return "", errNotModified
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return "", &StatusError{URL: url, Code: resp.StatusCode}
	}
	dataFile := key + ".data"
	path := filepath.Join(c.Dir, dataFile)
	if err := streamToFile(resp.Body, path, 0o644); err != nil {
		return "", err
	}
	nm := meta{
		URL:          url,
		ETag:         resp.Header.Get("ETag"),
		LastModified: resp.Header.Get("Last-Modified"),
		DataFile:     dataFile,
	}
	if err := writeMeta(filepath.Join(c.Dir, key+".json"), nm); err != nil {
		return "", err
	}
	slog.Debug("cached", "url", url, "path", path)
	return path, nil
}

func streamToFile(r io.Reader, dst string, mode os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	tmp := dst + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, mode)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, r); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, dst)
}

func writeMeta(path string, m meta) error {
	b, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func hash(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

func fileExists(p string) bool {
	st, err := os.Stat(p)
	return err == nil && !st.IsDir()
}
