package config

import (
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestParse(t *testing.T) {
	src := `
template_dirs: [templates, shared]
autoescape: false
language: de
remote:
  base_url: https://cdn.example.com/templates/
  cache_dir: cache
pongo2:
  template_dirs: [legacy]
processors:
  builtin: [request]
  scripts:
    - name: site
      path: processors/site.star
`
	cfg, err := Parse(strings.NewReader(src))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	off := false
	want := &Config{
		TemplateDirs: []string{"templates", "shared"},
		Autoescape:   &off,
		Language:     "de",
		Remote:       &RemoteConfig{BaseURL: "https://cdn.example.com/templates/", CacheDir: "cache"},
		Pongo2:       &Pongo2Config{TemplateDirs: []string{"legacy"}},
		Processors: ProcessorConfig{
			Builtin: []string{"request"},
			Scripts: []ScriptConfig{{Name: "site", Path: "processors/site.star"}},
		},
	}
	if diff := cmp.Diff(want, cfg, cmpopts.IgnoreUnexported(Config{})); diff != "" {
		t.Fatalf("config mismatch (-want +got):\n%s", diff)
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{"unknown key", "template_dir: [x]\n", "template_dir"},
		{"bad language", "language: '!!'\n", "language"},
		{"bad builtin", "processors:\n  builtin: [csrf]\n", "processors.builtin must be one of [request], got csrf"},
		{"duplicate dirs", "template_dirs: [a, a]\n", "duplicate"},
		{"relative remote", "remote:\n  base_url: /x\n  cache_dir: c\n", "remote.base_url"},
		{"script without path", "processors:\n  scripts:\n    - name: x\n", "path"},
		{"empty pongo2", "pongo2:\n  template_dirs: []\n", "pongo2.template_dirs"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(strings.NewReader(tt.src))
			if err == nil {
				t.Fatalf("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}

func TestBuild(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "templates", "base.html"),
		`<title>{% block title %}Site{% endblock %}</title>{% block body %}{% endblock %}`)
	writeFile(t, filepath.Join(dir, "templates", "page.html"),
		`{% extends "base.html" %}{% block body %}{{ section }} by {{ user }}{% endblock %}`)
	writeFile(t, filepath.Join(dir, "legacy", "old.html"),
		`{% block note %}legacy {{ user }}{% endblock %}`)
	writeFile(t, filepath.Join(dir, "processors", "site.star"), `
def process(request):
    return {"section": request["path"].split("/")[1]}
`)
	writeFile(t, filepath.Join(dir, "renderblock.yaml"), `
template_dirs: [templates]
pongo2:
  template_dirs: [legacy]
processors:
  builtin: [request]
  scripts:
    - name: site
      path: processors/site.star
`)

	cfg, err := Load(filepath.Join(dir, "renderblock.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	setup, err := cfg.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	req := httptest.NewRequest("GET", "/docs/page", nil)
	out, err := setup.Renderer.RenderBlockToString([]string{"page.html"}, "body", map[string]any{"user": "ann"}, req)
	if err != nil {
		t.Fatalf("render body: %v", err)
	}
	if out != "docs by ann" {
		t.Fatalf("body = %q", out)
	}

	out, err = setup.Renderer.RenderBlockToString([]string{"page.html"}, "title", nil, nil)
	if err != nil {
		t.Fatalf("render title: %v", err)
	}
	if out != "Site" {
		t.Fatalf("title = %q", out)
	}

	out, err = setup.Renderer.RenderBlockToString([]string{"missing.html", "old.html"}, "note", map[string]any{"user": "bob"}, nil)
	if err != nil {
		t.Fatalf("render pongo2 block: %v", err)
	}
	if out != "legacy bob" {
		t.Fatalf("note = %q", out)
	}
}

func TestBuildChecksPaths(t *testing.T) {
	dir := t.TempDir()
	cfg, err := Parse(strings.NewReader("processors:\n  scripts:\n    - name: site\n      path: " + filepath.Join(dir, "nope.star") + "\n"))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if _, err := cfg.Build(); err == nil || !strings.Contains(err.Error(), "processor site") {
		t.Fatalf("expected missing script error, got %v", err)
	}

	cfg, err = Parse(strings.NewReader("pongo2:\n  template_dirs: [" + filepath.Join(dir, "absent") + "]\n"))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if _, err := cfg.Build(); err == nil || !strings.Contains(err.Error(), "pongo2.template_dirs[0]") {
		t.Fatalf("expected missing pongo2 dir error, got %v", err)
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"templates"}, cfg.TemplateDirs); diff != "" {
		t.Fatalf("template dirs (-want +got):\n%s", diff)
	}
}
