package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestLoadData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.yaml")
	if err := os.WriteFile(path, []byte("user: ann\nitems: [a, b]\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	got, err := loadData(path, []string{"count=3", "debug=true", "user=bob", "empty="})
	if err != nil {
		t.Fatalf("loadData: %v", err)
	}
	want := map[string]any{
		"user":  "bob",
		"items": []any{"a", "b"},
		"count": 3,
		"debug": true,
		"empty": "",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("data mismatch (-want +got):\n%s", diff)
	}

	if _, err := loadData("", []string{"novalue"}); err == nil {
		t.Fatal("expected error for --set without '='")
	}
}

func TestRenderCommand(t *testing.T) {
	dir := t.TempDir()
	files := map[string]string{
		"base.html": `<h1>{% block title %}Base{% endblock %}</h1>{% block content %}{% endblock %}`,
		"page.html": `{% extends "base.html" %}{% block content %}Hello {{ name }}{% endblock %}`,
	}
	for name, src := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(src), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"render", "--template-dir", dir, "--block", "content", "--set", "name=<b>", "missing.html", "page.html"})
	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("render: %v", err)
	}
	if got := out.String(); got != "Hello &lt;b&gt;" {
		t.Fatalf("render output = %q", got)
	}

	out.Reset()
	rootCmd.SetArgs([]string{"blocks", "--template-dir", dir, "missing.html", "page.html"})
	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("blocks: %v", err)
	}
	for _, want := range []string{"content", "page.html", "title", "base.html"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("blocks output missing %q:\n%s", want, out.String())
		}
	}
}
