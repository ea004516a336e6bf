package dtl

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrTemplateNotFound is matched by every TemplateNotFoundError.
	ErrTemplateNotFound = errors.New("template not found")
	// ErrTemplateSyntax is matched by every TemplateSyntaxError.
	ErrTemplateSyntax = errors.New("template syntax error")
)

// TemplateNotFoundError reports that no loader could produce a template.
// Tried lists every name attempted, in order, when several were given.
type TemplateNotFoundError struct {
	Name  string
	Tried []string
	Err   error
}

func (e *TemplateNotFoundError) Error() string {
	var b strings.Builder
	b.WriteString("template not found")
	switch {
	case len(e.Tried) > 1:
		b.WriteString(": ")
		b.WriteString(strings.Join(e.Tried, ", "))
	case e.Name != "":
		b.WriteString(": ")
		b.WriteString(e.Name)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *TemplateNotFoundError) Unwrap() error { return e.Err }

func (e *TemplateNotFoundError) Is(target error) bool { return target == ErrTemplateNotFound }

// TemplateSyntaxError reports malformed template source or an invalid
// construct found while compiling or rendering it.
type TemplateSyntaxError struct {
	Template string
	Line     int
	Message  string
	Err      error
}

func (e *TemplateSyntaxError) Error() string {
	var b strings.Builder
	b.WriteString("template syntax error")
	if e.Template != "" {
		fmt.Fprintf(&b, " in %s", e.Template)
	}
	if e.Line > 0 {
		fmt.Fprintf(&b, " line %d", e.Line)
	}
	b.WriteString(": ")
	b.WriteString(e.Message)
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *TemplateSyntaxError) Unwrap() error { return e.Err }

func (e *TemplateSyntaxError) Is(target error) bool { return target == ErrTemplateSyntax }

func syntaxErrorf(template string, line int, format string, args ...any) *TemplateSyntaxError {
	return &TemplateSyntaxError{Template: template, Line: line, Message: fmt.Sprintf(format, args...)}
}
