package dtl

import (
	"fmt"
	"net/http"

	"golang.org/x/text/language"
)

// Context is the variable stack a template renders against, together with
// the ambient render state: autoescaping, language, the originating
// request and the template it is bound to.
type Context struct {
	Autoescape bool
	Language   language.Tag
	Request    *http.Request

	scopes   []map[string]Value
	template *Template
	render   *RenderContext
}

// NewContext creates a context holding data in a single scope.
func NewContext(data map[string]any) *Context {
	c := &Context{Autoescape: true, Language: language.Und}
	c.scopes = []map[string]Value{toScope(data)}
	return c
}

func toScope(data map[string]any) map[string]Value {
	scope := make(map[string]Value, len(data))
	for k, v := range data {
		scope[k] = FromGo(v)
	}
	return scope
}

// ContextProcessor derives template variables from an HTTP request.
type ContextProcessor func(req *http.Request) (map[string]any, error)

// NewRequestContext creates a context for data and req. Processor output
// sits beneath data, so explicitly passed variables win.
func NewRequestContext(req *http.Request, data map[string]any, processors ...ContextProcessor) (*Context, error) {
	c := NewContext(data)
	if err := c.BindRequest(req, processors...); err != nil {
		return nil, err
	}
	return c, nil
}

// BindRequest attaches req and runs processors, inserting their combined
// output below every existing scope.
func (c *Context) BindRequest(req *http.Request, processors ...ContextProcessor) error {
	c.Request = req
	if req == nil {
		return nil
	}
	merged := map[string]Value{}
	for i, proc := range processors {
		vars, err := proc(req)
		if err != nil {
			return fmt.Errorf("context processor %d: %w", i, err)
		}
		for k, v := range vars {
			merged[k] = FromGo(v)
		}
	}
	c.scopes = append([]map[string]Value{merged}, c.scopes...)
	return nil
}

// RequestProcessor exposes the request itself as the "request" variable.
func RequestProcessor(req *http.Request) (map[string]any, error) {
	query := DictValue{}
	for k, vs := range req.URL.Query() {
		if len(vs) > 0 {
			query[k] = StringValue(vs[0])
		}
	}
	headers := DictValue{}
	for k, vs := range req.Header {
		if len(vs) > 0 {
			headers[http.CanonicalHeaderKey(k)] = StringValue(vs[0])
		}
	}
	return map[string]any{
		"request": DictValue{
			"method":      StringValue(req.Method),
			"path":        StringValue(req.URL.Path),
			"host":        StringValue(req.Host),
			"query":       query,
			"headers":     headers,
			"remote_addr": StringValue(req.RemoteAddr),
		},
	}, nil
}

// New returns a context sharing ambient state and the render context but
// holding only vars.
func (c *Context) New(vars map[string]Value) *Context {
	n := *c
	if vars == nil {
		vars = map[string]Value{}
	}
	n.scopes = []map[string]Value{vars}
	n.render = c.RenderContext()
	return &n
}

// Push adds a scope on top of the stack.
func (c *Context) Push(vars map[string]Value) {
	if vars == nil {
		vars = map[string]Value{}
	}
	c.scopes = append(c.scopes, vars)
}

// Pop removes the top scope. The base scope is never removed.
func (c *Context) Pop() {
	if len(c.scopes) > 1 {
		c.scopes = c.scopes[:len(c.scopes)-1]
	}
}

// Depth returns the number of scopes on the stack.
func (c *Context) Depth() int { return len(c.scopes) }

// Get resolves name from the innermost scope outwards.
func (c *Context) Get(name string) (Value, bool) {
	for i := len(c.scopes) - 1; i >= 0; i-- {
		if v, ok := c.scopes[i][name]; ok {
			return v, true
		}
	}
	return nil, false
}

// Set assigns name in the innermost scope.
func (c *Context) Set(name string, v Value) {
	c.scopes[len(c.scopes)-1][name] = v
}

// Flatten merges every scope into one map, inner scopes winning.
func (c *Context) Flatten() map[string]Value {
	out := map[string]Value{}
	for _, s := range c.scopes {
		for k, v := range s {
			out[k] = v
		}
	}
	return out
}

// Template returns the template the context is bound to, if any.
func (c *Context) Template() *Template { return c.template }

// BindTemplate binds the context to t until the returned func is called.
func (c *Context) BindTemplate(t *Template) (restore func()) {
	prev := c.template
	c.template = t
	return func() { c.template = prev }
}

// RenderContext returns the render state stack, creating it on first use.
func (c *Context) RenderContext() *RenderContext {
	if c.render == nil {
		c.render = &RenderContext{}
	}
	return c.render
}
