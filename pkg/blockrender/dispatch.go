package blockrender

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/neurodesk/blockrender/pkg/dtl"
)

// RenderHook observes every successful block render.
type RenderHook func(tpl Template, ctx *dtl.Context)

// Renderer resolves templates through its backends and renders single
// blocks from them. It is safe for concurrent use once configured.
type Renderer struct {
	backends   []Backend
	processors []dtl.ContextProcessor
	hook       RenderHook
	logger     *slog.Logger
}

type Option func(*Renderer)

// WithBackend appends a backend. Backends are consulted in order.
func WithBackend(b Backend) Option {
	return func(r *Renderer) { r.backends = append(r.backends, b) }
}

// WithContextProcessors sets the processors run for request-aware renders.
func WithContextProcessors(procs ...dtl.ContextProcessor) Option {
	return func(r *Renderer) { r.processors = append(r.processors, procs...) }
}

// WithRenderHook installs h, called once after each successful render.
func WithRenderHook(h RenderHook) Option {
	return func(r *Renderer) { r.hook = h }
}

func WithLogger(l *slog.Logger) Option {
	return func(r *Renderer) { r.logger = l }
}

func New(opts ...Option) *Renderer {
	r := &Renderer{
		hook:   func(Template, *dtl.Context) {},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// GetTemplate returns the first of names any backend can load. Each name
// is tried against every backend before moving to the next name.
func (r *Renderer) GetTemplate(names ...string) (Template, error) {
	if len(names) == 0 {
		return nil, &dtl.TemplateNotFoundError{Err: errors.New("no template names given")}
	}
	for _, name := range names {
		for _, b := range r.backends {
			t, err := b.GetTemplate(name)
			if err == nil {
				r.logger.Debug("resolved template", "name", name, "backend", b.Name())
				return t, nil
			}
			if !errors.Is(err, dtl.ErrTemplateNotFound) {
				return nil, err
			}
		}
	}
	return nil, &dtl.TemplateNotFoundError{Name: names[0], Tried: names}
}

// RenderBlockToString renders block from the first loadable template of
// names. data may be nil, a map[string]any or a *dtl.Context; with a
// non-nil req the context processors contribute variables beneath data.
func (r *Renderer) RenderBlockToString(names []string, block string, data any, req *http.Request) (string, error) {
	resp, err := r.RenderBlock(names, block, data, req)
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}

// RenderBlock is RenderBlockToString returning a Response that keeps the
// template and context used.
func (r *Renderer) RenderBlock(names []string, block string, data any, req *http.Request) (*Response, error) {
	tpl, err := r.GetTemplate(names...)
	if err != nil {
		return nil, err
	}

	var render func(*dtl.Context) (string, error)
	switch t := tpl.(type) {
	case *dtl.Template:
		render = func(ctx *dtl.Context) (string, error) { return RenderTemplateBlock(t, block, ctx) }
	case *PongoTemplate:
		render = func(ctx *dtl.Context) (string, error) { return renderPongoBlock(t, block, ctx) }
	default:
		return nil, &UnsupportedEngineError{Engine: fmt.Sprintf("%T", tpl)}
	}

	ctx, err := r.newContext(tpl, data, req)
	if err != nil {
		return nil, err
	}
	out, err := render(ctx)
	if err != nil {
		return nil, err
	}
	r.logger.Debug("rendered block", "template", tpl.TemplateName(), "block", block, "bytes", len(out))
	r.hook(tpl, ctx)
	return &Response{Content: out, Template: tpl, Context: ctx}, nil
}

func (r *Renderer) newContext(tpl Template, data any, req *http.Request) (*dtl.Context, error) {
	var ctx *dtl.Context
	switch d := data.(type) {
	case nil:
		ctx = contextFor(tpl, nil)
	case map[string]any:
		ctx = contextFor(tpl, d)
	case *dtl.Context:
		if req == nil || d.Request != nil {
			return d, nil
		}
		ctx = d
	default:
		return nil, fmt.Errorf("unsupported context type %T", data)
	}
	if req != nil {
		if err := ctx.BindRequest(req, r.processors...); err != nil {
			return nil, err
		}
	}
	return ctx, nil
}

func contextFor(tpl Template, data map[string]any) *dtl.Context {
	if t, ok := tpl.(*dtl.Template); ok && t.Engine() != nil {
		return t.Engine().NewContext(data)
	}
	return dtl.NewContext(data)
}

// RenderBlockToString renders block with a renderer backed by engine alone,
// exposing the request as the "request" variable.
func RenderBlockToString(engine *dtl.Engine, names []string, block string, data any, req *http.Request) (string, error) {
	r := New(WithBackend(NewEngineBackend(engine)), WithContextProcessors(dtl.RequestProcessor))
	return r.RenderBlockToString(names, block, data, req)
}

// Response is a rendered block with the template and context it came from.
type Response struct {
	Content  string
	Template Template
	Context  *dtl.Context
}

func (r *Response) String() string { return r.Content }

func (r *Response) WriteTo(w io.Writer) (int64, error) {
	n, err := io.WriteString(w, r.Content)
	return int64(n), err
}

// ServeHTTP writes the block as an HTML fragment.
func (r *Response) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if _, err := r.WriteTo(w); err != nil {
		slog.Error("writing block response", "template", r.Template.TemplateName(), "err", err)
	}
}
