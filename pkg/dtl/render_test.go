package dtl

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"golang.org/x/text/language"
)

func render(t *testing.T, templates MemoryLoader, name string, data map[string]any) string {
	t.Helper()
	out, err := NewEngine(templates).Render(name, data)
	if err != nil {
		t.Fatalf("render %s: %v", name, err)
	}
	return out
}

func TestRenderSimple(t *testing.T) {
	templates := MemoryLoader{"t": `Hello {{ name|upper|default:"Anon" }}!`}
	if out := render(t, templates, "t", map[string]any{"name": "world"}); out != "Hello WORLD!" {
		t.Fatalf("got %q", out)
	}
	if out := render(t, templates, "t", nil); out != "Hello Anon!" {
		t.Fatalf("got %q", out)
	}
}

func TestIfElifElse(t *testing.T) {
	templates := MemoryLoader{"t": "{% if a %}A{% elif b and not c %}B{% else %}C{% endif %}"}
	tests := []struct {
		data map[string]any
		want string
	}{
		{map[string]any{"a": true}, "A"},
		{map[string]any{"b": true}, "B"},
		{map[string]any{"b": true, "c": true}, "C"},
		{nil, "C"},
	}
	for _, tt := range tests {
		if out := render(t, templates, "t", tt.data); out != tt.want {
			t.Errorf("data %v: got %q, want %q", tt.data, out, tt.want)
		}
	}
}

func TestForLoop(t *testing.T) {
	templates := MemoryLoader{
		"t":     "{% for x in items %}{{ forloop.counter }}:{{ x }}{% if not forloop.last %},{% endif %}{% empty %}none{% endfor %}",
		"rev":   "{% for x in items reversed %}{{ x }}{% endfor %}",
		"pairs": "{% for k, v in d.items %}{{ k }}={{ v }};{% endfor %}",
	}
	if out := render(t, templates, "t", map[string]any{"items": []string{"a", "b"}}); out != "1:a,2:b" {
		t.Fatalf("got %q", out)
	}
	if out := render(t, templates, "t", map[string]any{"items": []int{}}); out != "none" {
		t.Fatalf("empty got %q", out)
	}
	if out := render(t, templates, "rev", map[string]any{"items": []int{1, 2, 3}}); out != "321" {
		t.Fatalf("reversed got %q", out)
	}
	if out := render(t, templates, "pairs", map[string]any{"d": map[string]int{"b": 2, "a": 1}}); out != "a=1;b=2;" {
		t.Fatalf("pairs got %q", out)
	}
}

func TestSetWithAndScopes(t *testing.T) {
	templates := MemoryLoader{"t": `{% set greeting = "hi" %}{% with who=name|capfirst %}{{ greeting }} {{ who }}{% endwith %}[{{ who }}]`}
	if out := render(t, templates, "t", map[string]any{"name": "ann"}); out != "hi Ann[]" {
		t.Fatalf("got %q", out)
	}
}

func TestAutoescape(t *testing.T) {
	templates := MemoryLoader{
		"t": `{{ v }}|{{ v|safe }}|{% autoescape off %}{{ v }}{% endautoescape %}|{{ v|escape }}`,
	}
	want := "&lt;b&gt;|<b>|<b>|&lt;b&gt;"
	if out := render(t, templates, "t", map[string]any{"v": "<b>"}); out != want {
		t.Fatalf("got %q, want %q", out, want)
	}

	e := NewEngine(templates, WithAutoescape(false))
	out, err := e.Render("t", map[string]any{"v": "<b>"})
	if err != nil {
		t.Fatal(err)
	}
	if out != "<b>|<b>|<b>|&lt;b&gt;" {
		t.Fatalf("autoescape off got %q", out)
	}
}

func TestRawCommentsAndTrim(t *testing.T) {
	templates := MemoryLoader{"t": "A{# note #}B{% raw %}{{ not_parsed }}{% endraw %}C {%- comment %}x{% endcomment -%} D"}
	if out := render(t, templates, "t", nil); out != "AB{{ not_parsed }}CD" {
		t.Fatalf("got %q", out)
	}
}

func TestExtendsAndSuper(t *testing.T) {
	templates := MemoryLoader{
		"base.html":   `<title>{% block title %}Site{% endblock %}</title><main>{% block content %}base{% endblock %}</main>`,
		"middle.html": `{% extends "base.html" %}{% block content %}[{{ block.super }}] middle{% endblock %}`,
		"page.html":   `{% extends "middle.html" %}ignored{% block content %}{{ block.super }} page{% endblock %}`,
	}
	want := "<title>Site</title><main>[base] middle page</main>"
	if out := render(t, templates, "page.html", nil); out != want {
		t.Fatalf("got %q, want %q", out, want)
	}
}

func TestExtendsVariable(t *testing.T) {
	templates := MemoryLoader{
		"a.html":    `A:{% block x %}{% endblock %}`,
		"b.html":    `B:{% block x %}{% endblock %}`,
		"page.html": `{% extends layout %}{% block x %}page{% endblock %}`,
	}
	if out := render(t, templates, "page.html", map[string]any{"layout": "b.html"}); out != "B:page" {
		t.Fatalf("got %q", out)
	}
	_, err := NewEngine(templates).Render("page.html", nil)
	if !errors.Is(err, ErrTemplateSyntax) {
		t.Fatalf("expected syntax error for empty extends, got %v", err)
	}
}

func TestCircularExtends(t *testing.T) {
	templates := MemoryLoader{
		"a.html": `{% extends "b.html" %}`,
		"b.html": `{% extends "a.html" %}`,
	}
	_, err := NewEngine(templates).Render("a.html", nil)
	if !errors.Is(err, ErrTemplateSyntax) || !strings.Contains(err.Error(), "circular") {
		t.Fatalf("expected circular extends error, got %v", err)
	}
}

func TestInclude(t *testing.T) {
	templates := MemoryLoader{
		"row.html":  `<li>{{ item }}{{ extra }}</li>`,
		"list.html": `{% for item in items %}{% include "row.html" %}{% endfor %}|{% include "row.html" with item="x" only %}`,
	}
	out := render(t, templates, "list.html", map[string]any{"items": []string{"a"}, "extra": "!"})
	if out != "<li>a!</li>|<li>x</li>" {
		t.Fatalf("got %q", out)
	}
}

func TestIncludeHasOwnInheritance(t *testing.T) {
	templates := MemoryLoader{
		"card_base.html": `<card>{% block body %}card{% endblock %}</card>`,
		"card.html":      `{% extends "card_base.html" %}{% block body %}custom card{% endblock %}`,
		"page.html":      `{% block body %}page {% include "card.html" %}{% endblock %}`,
	}
	if out := render(t, templates, "page.html", nil); out != "page <card>custom card</card>" {
		t.Fatalf("got %q", out)
	}
}

func TestLoadLibraries(t *testing.T) {
	templates := MemoryLoader{
		"t":   `{% load humanize %}{{ n|intcomma }} {{ 2|ordinal }}`,
		"bad": `{{ n|intcomma }}`,
		"lib": `{% load nosuchlib %}`,
	}
	if out := render(t, templates, "t", map[string]any{"n": 1234567}); out != "1,234,567 2nd" {
		t.Fatalf("got %q", out)
	}
	e := NewEngine(templates)
	if _, err := e.GetTemplate("bad"); !errors.Is(err, ErrTemplateSyntax) {
		t.Fatalf("expected unknown filter to be a syntax error, got %v", err)
	}
	if _, err := e.GetTemplate("lib"); !errors.Is(err, ErrTemplateSyntax) {
		t.Fatalf("expected unknown library to be a syntax error, got %v", err)
	}

	de := NewEngine(templates, WithLanguage(language.German))
	out, err := de.Render("t", map[string]any{"n": 1234567})
	if err != nil {
		t.Fatal(err)
	}
	if out != "1.234.567 2nd" {
		t.Fatalf("german got %q", out)
	}
}

func TestFilters(t *testing.T) {
	tests := []struct {
		src  string
		data map[string]any
		want string
	}{
		{`{{ s|title }}`, map[string]any{"s": "hello world"}, "Hello World"},
		{`{{ s|striptags }}`, map[string]any{"s": "<p>a &amp; <b>b</b></p>"}, "a &amp; b"},
		{`{{ xs|join:", " }}`, map[string]any{"xs": []string{"a", "b"}}, "a, b"},
		{`{{ xs|length }}{{ xs|first }}{{ xs|last }}`, map[string]any{"xs": []int{4, 5, 6}}, "346"},
		{`{{ n|add:2 }}`, map[string]any{"n": 40}, "42"},
		{`{{ s|cut:" " }}`, map[string]any{"s": "a b c"}, "abc"},
		{`{{ v|default_if_none:"-" }}`, nil, "-"},
		{`{% load html %}{{ s|sanitize }}`, map[string]any{"s": `<a href="http://x" onclick="evil()">x</a><script>1</script>`}, `<a href="http://x" rel="nofollow">x</a>`},
	}
	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			if out := render(t, MemoryLoader{"t": tt.src}, "t", tt.data); out != tt.want {
				t.Fatalf("got %q, want %q", out, tt.want)
			}
		})
	}
}

func TestCustomFilter(t *testing.T) {
	shout := func(_ *Context, in Value, _ []Value) (Value, error) {
		return StringValue(strings.ToUpper(in.String()) + "!"), nil
	}
	e := NewEngine(MemoryLoader{"t": `{{ "hi"|shout }}`}, WithFilter("shout", shout))
	out, err := e.Render("t", nil)
	if err != nil {
		t.Fatal(err)
	}
	if out != "HI!" {
		t.Fatalf("got %q", out)
	}
}

func TestTemplateNotFound(t *testing.T) {
	e := NewEngine(MemoryLoader{"b": "B"})
	_, err := e.GetTemplate("missing")
	if !errors.Is(err, ErrTemplateNotFound) {
		t.Fatalf("expected ErrTemplateNotFound, got %v", err)
	}

	tpl, err := e.SelectTemplate([]string{"a", "b"})
	if err != nil || tpl.Name != "b" {
		t.Fatalf("SelectTemplate = %v, %v", tpl, err)
	}

	_, err = e.SelectTemplate([]string{"x", "y"})
	var nf *TemplateNotFoundError
	if !errors.As(err, &nf) || len(nf.Tried) != 2 {
		t.Fatalf("expected TemplateNotFoundError listing both names, got %v", err)
	}
	if !strings.Contains(err.Error(), "x, y") {
		t.Fatalf("error should list tried names: %v", err)
	}

	_, err = e.SelectTemplate(nil)
	if err == nil || err.Error() != "template not found: no template names given" {
		t.Fatalf("empty name list error = %v", err)
	}
}

func TestFilterArgumentCount(t *testing.T) {
	templates := MemoryLoader{"t": "x\n{{ a|cut }}"}
	_, err := NewEngine(templates).Render("t", map[string]any{"a": "abc"})
	if !errors.Is(err, ErrTemplateSyntax) {
		t.Fatalf("expected syntax error for missing filter argument, got %v", err)
	}
	var se *TemplateSyntaxError
	if !errors.As(err, &se) || se.Template != "t" || se.Line != 2 {
		t.Fatalf("error not attributed to t line 2: %#v", err)
	}
	if !strings.Contains(err.Error(), "filter cut") {
		t.Fatalf("error should name the filter: %v", err)
	}
}

func TestEngineCachesTemplates(t *testing.T) {
	e := NewEngine(MemoryLoader{"t": "x"})
	a, err := e.GetTemplate("t")
	if err != nil {
		t.Fatal(err)
	}
	b, err := e.GetTemplate("t")
	if err != nil {
		t.Fatal(err)
	}
	if a != b {
		t.Fatal("expected the cached template to be returned")
	}
}

func TestRequestContext(t *testing.T) {
	templates := MemoryLoader{"t": `{{ request.method }} {{ request.path }} {{ user }}`}
	tpl, err := NewEngine(templates).GetTemplate("t")
	if err != nil {
		t.Fatal(err)
	}
	req := httptest.NewRequest("GET", "/docs?x=1", nil)
	override := func(*http.Request) (map[string]any, error) {
		return map[string]any{"user": "from-processor"}, nil
	}
	ctx, err := NewRequestContext(req, map[string]any{"user": "caller"}, RequestProcessor, override)
	if err != nil {
		t.Fatal(err)
	}
	out, err := tpl.Render(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if out != "GET /docs caller" {
		t.Fatalf("got %q", out)
	}
}
