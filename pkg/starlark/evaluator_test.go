package starlark

import (
	"net/http/httptest"
	"testing"

	"go.starlark.net/starlark"

	"github.com/neurodesk/blockrender/pkg/dtl"
)

func TestConvertToStarlark(t *testing.T) {
	tests := []struct {
		name     string
		input    dtl.Value
		expected starlark.Value
	}{
		{
			name:     "string value",
			input:    dtl.StringValue("hello"),
			expected: starlark.String("hello"),
		},
		{
			name:     "safe string",
			input:    dtl.SafeString("<b>"),
			expected: starlark.String("<b>"),
		},
		{
			name:     "int value",
			input:    dtl.IntValue(42),
			expected: starlark.MakeInt64(42),
		},
		{
			name:     "float value",
			input:    dtl.FloatValue(3.14),
			expected: starlark.Float(3.14),
		},
		{
			name:     "bool value true",
			input:    dtl.BoolValue(true),
			expected: starlark.Bool(true),
		},
		{
			name:     "none value",
			input:    dtl.NoneValue{},
			expected: starlark.None,
		},
		{
			name:     "nil value",
			input:    nil,
			expected: starlark.None,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := ConvertToStarlark(tt.input)
			if result.String() != tt.expected.String() {
				t.Errorf("ConvertToStarlark() = %v, want %v", result, tt.expected)
			}
		})
	}
}

func TestConvertFromStarlark(t *testing.T) {
	tests := []struct {
		name     string
		input    starlark.Value
		expected string
	}{
		{name: "string value", input: starlark.String("hello"), expected: "hello"},
		{name: "int value", input: starlark.MakeInt64(42), expected: "42"},
		{name: "float value", input: starlark.Float(3.14), expected: "3.14"},
		{name: "bool value true", input: starlark.Bool(true), expected: "True"},
		{name: "none value", input: starlark.None, expected: ""},
		{name: "tuple", input: starlark.Tuple{starlark.String("a"), starlark.String("b")}, expected: "a b"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := ConvertFromStarlark(tt.input)
			if result.String() != tt.expected {
				t.Errorf("ConvertFromStarlark() = %v, want %v", result.String(), tt.expected)
			}
		})
	}
}

func TestDictConversion(t *testing.T) {
	in := dtl.DictValue{
		"key1": dtl.StringValue("value1"),
		"key2": dtl.IntValue(42),
	}

	dict, ok := ConvertToStarlark(in).(*starlark.Dict)
	if !ok {
		t.Fatalf("Expected starlark.Dict, got %T", ConvertToStarlark(in))
	}
	if dict.Len() != 2 {
		t.Errorf("Expected dict length 2, got %d", dict.Len())
	}

	back, ok := ConvertFromStarlark(dict).(dtl.DictValue)
	if !ok {
		t.Fatalf("Expected dtl.DictValue, got %T", ConvertFromStarlark(dict))
	}
	if back["key1"].String() != "value1" {
		t.Errorf("Expected key1='value1', got %v", back["key1"].String())
	}
}

func TestEvaluatorWithGlobals(t *testing.T) {
	eval := NewEvaluator()
	eval.SetGlobal("test_var", dtl.StringValue("hello"))

	result, err := eval.Eval("test_var + ' world'")
	if err != nil {
		t.Fatalf("Eval error: %v", err)
	}
	if result.String() != "hello world" {
		t.Errorf("Expected 'hello world', got %v", result.String())
	}
}

func TestEvaluatorContext(t *testing.T) {
	eval := NewEvaluator()
	eval.LoadContext(dtl.NewContext(map[string]any{"site": "docs", "debug": true}))

	script := `
def title():
    if debug:
        return site + " (debug)"
    return site

heading = title()
_private = 1
`
	if _, err := eval.ExecString(script); err != nil {
		t.Fatalf("ExecString error: %v", err)
	}

	result, ok := eval.GetGlobal("heading")
	if !ok {
		t.Fatal("Expected 'heading' to be set")
	}
	if result.String() != "docs (debug)" {
		t.Errorf("Expected %q, got %q", "docs (debug)", result.String())
	}

	exported := eval.Export()
	if _, ok := exported["heading"]; !ok {
		t.Error("Expected 'heading' to be exported")
	}
	if _, ok := exported["_private"]; ok {
		t.Error("Expected '_private' to stay unexported")
	}
	if _, ok := exported["title"]; ok {
		t.Error("Expected functions to stay unexported")
	}
}

func TestCallableConversion(t *testing.T) {
	eval := NewEvaluator()
	if _, err := eval.ExecString("def shout(s):\n    return s.upper() + '!'\n"); err != nil {
		t.Fatalf("ExecString error: %v", err)
	}
	v, ok := eval.GetGlobal("shout")
	if !ok {
		t.Fatal("Expected 'shout' to be set")
	}
	fn, ok := v.(dtl.CallableValue)
	if !ok {
		t.Fatalf("Expected dtl.CallableValue, got %T", v)
	}
	out, err := fn.Fn([]dtl.Value{dtl.StringValue("hi")})
	if err != nil {
		t.Fatalf("call error: %v", err)
	}
	if out.String() != "HI!" {
		t.Errorf("Expected 'HI!', got %q", out.String())
	}
}

func TestLoadProcessor(t *testing.T) {
	script := `
def process(request):
    return {
        "section": request["path"].split("/")[1],
        "lang": request["query"].get("lang", "en"),
        "agent": request["headers"].get("User-Agent", ""),
    }
`
	proc, err := LoadProcessor("site.star", script)
	if err != nil {
		t.Fatalf("LoadProcessor error: %v", err)
	}

	req := httptest.NewRequest("GET", "/docs/intro?lang=de", nil)
	req.Header.Set("User-Agent", "tester")
	vars, err := proc(req)
	if err != nil {
		t.Fatalf("processor error: %v", err)
	}
	want := map[string]string{"section": "docs", "lang": "de", "agent": "tester"}
	for k, v := range want {
		got, ok := vars[k].(dtl.Value)
		if !ok || got.String() != v {
			t.Errorf("vars[%q] = %v, want %q", k, vars[k], v)
		}
	}
}

func TestLoadProcessorErrors(t *testing.T) {
	if _, err := LoadProcessor("empty.star", "x = 1\n"); err == nil {
		t.Fatal("expected error for script without process")
	}

	proc, err := LoadProcessor("bad.star", "def process(request):\n    return 1\n")
	if err != nil {
		t.Fatalf("LoadProcessor error: %v", err)
	}
	if _, err := proc(httptest.NewRequest("GET", "/", nil)); err == nil {
		t.Fatal("expected error for non-dict result")
	}
}
