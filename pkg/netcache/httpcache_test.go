package netcache

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"sync/atomic"
	"testing"

	"github.com/neurodesk/blockrender/pkg/dtl"
)

func newTemplateServer(t *testing.T) (*httptest.Server, *atomic.Int32, *atomic.Int32) {
	t.Helper()
	var full, notModified atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/tpl/base.html", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("If-None-Match") == `"v1"` {
			notModified.Add(1)
			w.WriteHeader(http.StatusNotModified)
			return
		}
		full.Add(1)
		w.Header().Set("ETag", `"v1"`)
		_, _ = w.Write([]byte("{% block title %}Remote{% endblock %}"))
	})
	mux.HandleFunc("/tpl/broken.html", func(w http.ResponseWriter, r *http.Request) {
		full.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, &full, &notModified
}

func TestCacheRevalidates(t *testing.T) {
	srv, full, notModified := newTemplateServer(t)
	c := New(t.TempDir())

	p1, fromCache, err := c.Get(context.Background(), srv.URL+"/tpl/base.html")
	if err != nil {
		t.Fatalf("first Get: %v", err)
	}
	if fromCache {
		t.Fatalf("first Get reported a cache hit")
	}

	p2, fromCache, err := c.Get(context.Background(), srv.URL+"/tpl/base.html")
	if err != nil {
		t.Fatalf("second Get: %v", err)
	}
	if !fromCache {
		t.Fatalf("second Get should be served from cache")
	}
	if p1 != p2 {
		t.Fatalf("paths differ: %q vs %q", p1, p2)
	}
	if full.Load() != 1 || notModified.Load() != 1 {
		t.Fatalf("full=%d notModified=%d, want 1 and 1", full.Load(), notModified.Load())
	}
	b, err := os.ReadFile(p2)
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != "{% block title %}Remote{% endblock %}" {
		t.Fatalf("cached body = %q", b)
	}
}

func TestCacheNotFoundIsNotRetried(t *testing.T) {
	srv, _, _ := newTemplateServer(t)
	c := New(t.TempDir())

	_, _, err := c.Get(context.Background(), srv.URL+"/tpl/missing.html")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	var se *StatusError
	if !errors.As(err, &se) || se.Code != http.StatusNotFound {
		t.Fatalf("expected StatusError 404, got %v", err)
	}
}

func TestCacheRetriesServerErrors(t *testing.T) {
	srv, full, _ := newTemplateServer(t)
	c := New(t.TempDir())
	c.Backoff = 0

	_, _, err := c.Get(context.Background(), srv.URL+"/tpl/broken.html")
	if err == nil {
		t.Fatal("expected error")
	}
	if errors.Is(err, ErrNotFound) {
		t.Fatalf("500 must not match ErrNotFound: %v", err)
	}
	if got := full.Load(); got != 3 {
		t.Fatalf("attempts = %d, want 3", got)
	}
}

func TestLoader(t *testing.T) {
	srv, _, _ := newTemplateServer(t)
	l := NewLoader(srv.URL+"/tpl/", t.TempDir())

	src, err := l.Load("base.html")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if src != "{% block title %}Remote{% endblock %}" {
		t.Fatalf("Load = %q", src)
	}

	_, err = l.Load("missing.html")
	if !errors.Is(err, dtl.ErrTemplateNotFound) {
		t.Fatalf("expected template not found, got %v", err)
	}

	if _, err := l.Load("../etc/passwd"); !errors.Is(err, dtl.ErrTemplateNotFound) {
		t.Fatalf("expected traversal to be rejected, got %v", err)
	}
}

func TestLoaderWithEngine(t *testing.T) {
	srv, _, _ := newTemplateServer(t)
	engine := dtl.NewEngine(dtl.ChainLoader{
		dtl.MemoryLoader{"page.html": `{% extends "base.html" %}{% block title %}Page{% endblock %}`},
		NewLoader(srv.URL+"/tpl", t.TempDir()),
	})
	out, err := engine.Render("page.html", nil)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if out != "Page" {
		t.Fatalf("Render = %q, want %q", out, "Page")
	}
}
