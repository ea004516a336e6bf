package netcache

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path"
	"strings"

	"github.com/neurodesk/blockrender/pkg/dtl"
)

// Loader serves templates from a remote base URL through a Cache.
type Loader struct {
	BaseURL string
	Cache   *Cache
}

// NewLoader returns a Loader that caches downloads below cacheDir.
func NewLoader(baseURL, cacheDir string) *Loader {
	return &Loader{BaseURL: baseURL, Cache: New(cacheDir)}
}

// URL resolves a template name against the base URL.
func (l *Loader) URL(name string) (string, error) {
	base, err := url.Parse(l.BaseURL)
	if err != nil {
		return "", fmt.Errorf("invalid base url %q: %w", l.BaseURL, err)
	}
	clean := path.Clean("/" + name)
	if clean == "/" || strings.Contains(name, "..") {
		return "", &dtl.TemplateNotFoundError{Name: name}
	}
	base.Path = strings.TrimSuffix(base.Path, "/") + clean
	return base.String(), nil
}

func (l *Loader) Load(name string) (string, error) {
	return l.LoadContext(context.Background(), name)
}

// LoadContext fetches name, reusing the cached copy when the server reports
// it unchanged.
func (l *Loader) LoadContext(ctx context.Context, name string) (string, error) {
	u, err := l.URL(name)
	if err != nil {
		return "", err
	}
	p, _, err := l.Cache.Get(ctx, u)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return "", &dtl.TemplateNotFoundError{Name: name, Err: err}
		}
		return "", fmt.Errorf("loading %s: %w", name, err)
	}
	b, err := os.ReadFile(p)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
