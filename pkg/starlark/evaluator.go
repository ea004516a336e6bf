package starlark

import (
	"fmt"
	"html"
	"log/slog"
	"strings"

	"go.starlark.net/starlark"

	"github.com/neurodesk/blockrender/pkg/dtl"
)

// Evaluator provides Starlark evaluation with access to the template value
// system. An Evaluator is not safe for concurrent use.
type Evaluator struct {
	thread   *starlark.Thread
	builtins starlark.StringDict
	globals  starlark.StringDict
}

// NewEvaluator creates a new Starlark evaluator
func NewEvaluator() *Evaluator {
	return &Evaluator{
		thread:   newThread("blockrender"),
		builtins: CreateBuiltins(),
		globals:  make(starlark.StringDict),
	}
}

func newThread(name string) *starlark.Thread {
	return &starlark.Thread{
		Name: name,
		Print: func(thread *starlark.Thread, msg string) {
			slog.Info("starlark", "thread", thread.Name, "msg", msg)
		},
	}
}

// SetGlobal sets a global variable in the Starlark environment
func (e *Evaluator) SetGlobal(name string, value dtl.Value) {
	e.globals[name] = ConvertToStarlark(value)
}

func (e *Evaluator) predeclared() starlark.StringDict {
	predeclared := make(starlark.StringDict, len(e.builtins)+len(e.globals))
	for k, v := range e.builtins {
		predeclared[k] = v
	}
	for k, v := range e.globals {
		predeclared[k] = v
	}
	return predeclared
}

// Eval evaluates a Starlark expression and returns the result as a template Value
func (e *Evaluator) Eval(expr string) (dtl.Value, error) {
	val, err := starlark.Eval(e.thread, "<eval>", expr, e.predeclared())
	if err != nil {
		return nil, fmt.Errorf("starlark evaluation error: %w", err)
	}
	return ConvertFromStarlark(val), nil
}

// ExecFile executes a Starlark file and returns the globals it defined.
// src may be nil (read filename), a string or a []byte.
func (e *Evaluator) ExecFile(filename string, src any) (starlark.StringDict, error) {
	globals, err := starlark.ExecFile(e.thread, filename, src, e.predeclared())
	if err != nil {
		return nil, fmt.Errorf("starlark execution error: %w", err)
	}
	for k, v := range globals {
		e.globals[k] = v
	}
	return globals, nil
}

// ExecString executes a Starlark script from a string
func (e *Evaluator) ExecString(script string) (starlark.StringDict, error) {
	return e.ExecFile("<script>", script)
}

// GetGlobal retrieves a global variable as a template Value
func (e *Evaluator) GetGlobal(name string) (dtl.Value, bool) {
	if val, ok := e.globals[name]; ok {
		return ConvertFromStarlark(val), true
	}
	return nil, false
}

// LoadContext copies every variable visible in ctx into the globals.
func (e *Evaluator) LoadContext(ctx *dtl.Context) {
	for key, value := range ctx.Flatten() {
		e.SetGlobal(key, value)
	}
}

// Export returns the exportable globals as template variables. Names
// starting with an underscore and functions are skipped.
func (e *Evaluator) Export() map[string]dtl.Value {
	out := make(map[string]dtl.Value)
	for key, value := range e.globals {
		if strings.HasPrefix(key, "_") {
			continue
		}
		if _, ok := value.(starlark.Callable); ok {
			continue
		}
		out[key] = ConvertFromStarlark(value)
	}
	return out
}

// CreateBuiltins creates the Starlark built-in functions available to
// scripts.
func CreateBuiltins() starlark.StringDict {
	return starlark.StringDict{
		"escape": starlark.NewBuiltin("escape", func(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			var s string
			if err := starlark.UnpackPositionalArgs(fn.Name(), args, kwargs, 1, &s); err != nil {
				return nil, err
			}
			return starlark.String(html.EscapeString(s)), nil
		}),
	}
}
