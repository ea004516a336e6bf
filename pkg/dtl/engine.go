package dtl

import (
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"sync"

	"golang.org/x/text/language"
)

// Engine loads, compiles and caches templates. It is safe for concurrent use.
type Engine struct {
	Loader     Loader
	Filters    Filters
	Libraries  map[string]Filters
	Autoescape bool
	Language   language.Tag

	evaluator *Evaluator

	mu    sync.RWMutex
	cache map[string]*Template
}

// Option configures an Engine.
type Option func(*Engine)

// WithAutoescape sets the default autoescape mode of new contexts.
func WithAutoescape(on bool) Option {
	return func(e *Engine) { e.Autoescape = on }
}

// WithLanguage sets the default language of new contexts.
func WithLanguage(tag language.Tag) Option {
	return func(e *Engine) { e.Language = tag }
}

// WithFilter registers a filter available to every template.
func WithFilter(name string, fn FilterFunc) Option {
	return func(e *Engine) { e.Filters[name] = fn }
}

// WithLibrary registers a filter library loadable with {% load name %}.
func WithLibrary(name string, filters Filters) Option {
	return func(e *Engine) { e.Libraries[name] = filters }
}

func NewEngine(loader Loader, opts ...Option) *Engine {
	e := &Engine{
		Loader:     loader,
		Filters:    DefaultFilters(),
		Libraries:  DefaultLibraries(),
		Autoescape: true,
		Language:   language.Und,
		cache:      map[string]*Template{},
	}
	for _, opt := range opts {
		opt(e)
	}
	e.evaluator = &Evaluator{Filters: e.Filters}
	return e
}

// GetTemplate returns the compiled template called name, loading and
// compiling it on first use.
func (e *Engine) GetTemplate(name string) (*Template, error) {
	e.mu.RLock()
	t, ok := e.cache[name]
	e.mu.RUnlock()
	if ok {
		return t, nil
	}
	if e.Loader == nil {
		return nil, &TemplateNotFoundError{Name: name, Err: errors.New("no loader configured")}
	}
	src, err := e.Loader.Load(name)
	if err != nil {
		if errors.Is(err, ErrTemplateNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("loading template %s: %w", name, err)
	}
	t, err = e.Compile(name, src)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	if existing, ok := e.cache[name]; ok {
		t = existing
	} else {
		e.cache[name] = t
	}
	e.mu.Unlock()
	slog.Debug("compiled template", "name", name)
	return t, nil
}

// SelectTemplate returns the first of names that can be loaded. Errors
// other than a missing template stop the search.
func (e *Engine) SelectTemplate(names []string) (*Template, error) {
	if len(names) == 0 {
		return nil, &TemplateNotFoundError{Err: errors.New("no template names given")}
	}
	for _, name := range names {
		t, err := e.GetTemplate(name)
		if err == nil {
			return t, nil
		}
		if !errors.Is(err, ErrTemplateNotFound) {
			return nil, err
		}
	}
	return nil, &TemplateNotFoundError{Name: names[0], Tried: names}
}

// Compile parses src and binds its filters, including those of libraries
// named by {% load %}. An unknown filter or library is a syntax error.
func (e *Engine) Compile(name, src string) (*Template, error) {
	doc, err := ParseNamed(name, src)
	if err != nil {
		return nil, err
	}
	available := maps.Clone(e.Filters)
	err = Walk(VisitorFunc(func(n Node) error {
		load, ok := n.(*LoadNode)
		if !ok {
			return nil
		}
		for _, lib := range load.Libraries {
			filters, ok := e.Libraries[lib]
			if !ok {
				return syntaxErrorf(name, 0, "%q is not a registered library", lib)
			}
			maps.Copy(available, filters)
		}
		return nil
	}), doc)
	if err != nil {
		return nil, err
	}
	err = Walk(VisitorFunc(func(n Node) error {
		for _, x := range exprs(n) {
			err := walkExpr(x.root, func(en exprNode) error {
				f, ok := en.(*filterExpr)
				if !ok {
					return nil
				}
				if f.fn = available[f.name]; f.fn == nil {
					return syntaxErrorf(name, x.Line, "invalid filter: %q", f.name)
				}
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	}), doc)
	if err != nil {
		return nil, err
	}
	return &Template{Name: name, Source: src, Root: doc, engine: e}, nil
}

// NewContext returns a context carrying the engine's defaults.
func (e *Engine) NewContext(data map[string]any) *Context {
	c := NewContext(data)
	c.Autoescape = e.Autoescape
	c.Language = e.Language
	return c
}

// Render renders the template called name with data.
func (e *Engine) Render(name string, data map[string]any) (string, error) {
	t, err := e.GetTemplate(name)
	if err != nil {
		return "", err
	}
	return t.Render(e.NewContext(data))
}
