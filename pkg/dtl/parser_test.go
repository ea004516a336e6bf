package dtl

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestParseTextAndOutput(t *testing.T) {
	doc, err := Parse("Hello {{ name }}!")
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	if len(doc.Nodes) != 3 {
		t.Fatalf("want 3 nodes, got %d", len(doc.Nodes))
	}
	if tn, ok := doc.Nodes[0].(*TextNode); !ok || tn.Text != "Hello " {
		t.Fatalf("node0 not Text('Hello '): %#v", doc.Nodes[0])
	}
	if on, ok := doc.Nodes[1].(*OutputNode); !ok || on.Expr.String() != "name" {
		t.Fatalf("node1 not Output(name): %#v", doc.Nodes[1])
	}
	if tn, ok := doc.Nodes[2].(*TextNode); !ok || tn.Text != "!" {
		t.Fatalf("node2 not Text('!'): %#v", doc.Nodes[2])
	}
}

func TestParseBlocks(t *testing.T) {
	doc, err := Parse(`{% extends "base.html" %}
{% block header %}H{% block logo %}L{% endblock logo %}{% endblock %}
{% block footer %}F{% endblock %}`)
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	var names []string
	for _, b := range collectBlocks(doc.Nodes) {
		names = append(names, b.Name)
	}
	if diff := cmp.Diff([]string{"header", "logo", "footer"}, names); diff != "" {
		t.Fatalf("blocks (-want +got):\n%s", diff)
	}
	if _, ok := doc.Nodes[0].(*ExtendsNode); !ok {
		t.Fatalf("node0 not Extends: %#v", doc.Nodes[0])
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{"duplicate block", "{% block a %}{% endblock %}{% block a %}{% endblock %}", "appears more than once"},
		{"extends not first", "{{ x }}{% extends 'base' %}", "must be the first tag"},
		{"extends twice", "{% extends 'a' %}{% extends 'b' %}", "must be the first tag"},
		{"extends nested", "{% if x %}{% extends 'a' %}{% endif %}", "must be the first tag"},
		{"unclosed block", "{% block a %}text", "unclosed tag"},
		{"mismatched endblock", "{% block a %}{% endblock b %}", "does not match"},
		{"unknown tag", "{% frobnicate %}", "invalid block tag"},
		{"unterminated output", "{{ name", "unterminated tag"},
		{"bad expression", "{{ a == }}", "invalid expression"},
		{"bad autoescape", "{% autoescape maybe %}{% endautoescape %}", "'on' or 'off'"},
		{"empty with", "{% with %}{% endwith %}", "at least one"},
		{"stray end", "{% endif %}", "invalid block tag"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseNamed("page.html", tt.src)
			if err == nil {
				t.Fatalf("expected error")
			}
			if !errors.Is(err, ErrTemplateSyntax) {
				t.Fatalf("error %v does not match ErrTemplateSyntax", err)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("error %q does not contain %q", err, tt.want)
			}
			var se *TemplateSyntaxError
			if !errors.As(err, &se) || se.Template != "page.html" {
				t.Fatalf("error not attributed to page.html: %#v", err)
			}
		})
	}
}

func TestSyntaxErrorLine(t *testing.T) {
	_, err := ParseNamed("x.html", "line1\nline2\n{% bogus %}")
	var se *TemplateSyntaxError
	if !errors.As(err, &se) {
		t.Fatalf("expected TemplateSyntaxError, got %v", err)
	}
	if se.Line != 3 {
		t.Fatalf("line = %d, want 3", se.Line)
	}
}

func TestParseIncludeAndWith(t *testing.T) {
	doc, err := Parse(`{% include "row.html" with a=1 b=name only %}{% with total=items|length x as y %}{{ total }}{% endwith %}`)
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	inc, ok := doc.Nodes[0].(*IncludeNode)
	if !ok {
		t.Fatalf("node0 not Include: %#v", doc.Nodes[0])
	}
	if !inc.Only || len(inc.With) != 2 || inc.With[1].Name != "b" {
		t.Fatalf("include parsed wrongly: %#v", inc)
	}
	with, ok := doc.Nodes[1].(*WithNode)
	if !ok {
		t.Fatalf("node1 not With: %#v", doc.Nodes[1])
	}
	var names []string
	for _, b := range with.Bindings {
		names = append(names, b.Name)
	}
	if diff := cmp.Diff([]string{"total", "y"}, names); diff != "" {
		t.Fatalf("with bindings (-want +got):\n%s", diff)
	}
}

func TestPretty(t *testing.T) {
	doc, err := ParseNamed("p.html", `{% extends "base.html" %}{% block content %}{% for x in items %}{{ x }}{% endfor %}{% endblock %}`)
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	out := Pretty(doc)
	for _, want := range []string{"Document(p.html)", `Extends("\"base.html\"")`, "Block(content)", "For(", `Output("x")`} {
		if !strings.Contains(out, want) {
			t.Errorf("Pretty output missing %q:\n%s", want, out)
		}
	}
}
