package dtl

import (
	"bytes"
	"fmt"
	"html"
)

// maxRenderDepth bounds nested template renders (includes of includes).
const maxRenderDepth = 64

type Renderer struct {
	Engine    *Engine
	Evaluator *Evaluator
}

func NewRenderer(engine *Engine) *Renderer {
	r := &Renderer{Engine: engine, Evaluator: NewEvaluator()}
	if engine != nil {
		r.Evaluator = engine.evaluator
	}
	return r
}

// Render renders t in full.
func (r *Renderer) Render(t *Template, ctx *Context) (string, error) {
	var buf bytes.Buffer
	if err := r.RenderTemplate(&buf, t, ctx); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// RenderTemplate renders t in a fresh render state, so inheritance inside
// t does not see the blocks of an enclosing render.
func (r *Renderer) RenderTemplate(buf *bytes.Buffer, t *Template, ctx *Context) error {
	rc := ctx.RenderContext()
	if rc.Depth() >= maxRenderDepth {
		return syntaxErrorf(t.Name, 0, "maximum template nesting depth %d exceeded", maxRenderDepth)
	}
	pop := rc.Push(t)
	defer pop()
	if ctx.Template() == nil {
		restore := ctx.BindTemplate(t)
		defer restore()
	}
	return r.renderRoot(buf, t, ctx)
}

func (r *Renderer) renderRoot(buf *bytes.Buffer, t *Template, ctx *Context) error {
	if err := ctx.RenderContext().visit(t); err != nil {
		return err
	}
	if t.Extends() == nil {
		return r.RenderNodes(buf, t.Root.Nodes, ctx)
	}
	parent, err := t.Parent(ctx)
	if err != nil {
		return err
	}
	rc := ctx.RenderContext()
	bc := rc.BlockContext()
	if bc == nil {
		bc = NewBlockContext()
		rc.SetBlockContext(bc)
	}
	bc.Add(t.Blocks())
	if parent.Extends() == nil {
		bc.Add(parent.Blocks())
	}
	// Content of an extending template outside its blocks is not rendered.
	return r.renderRoot(buf, parent, ctx)
}

// RenderNodes renders nodes in order into buf.
func (r *Renderer) RenderNodes(buf *bytes.Buffer, nodes []Node, ctx *Context) error {
	for _, n := range nodes {
		if err := r.renderNode(buf, n, ctx); err != nil {
			return err
		}
	}
	return nil
}

func (r *Renderer) renderNode(buf *bytes.Buffer, n Node, ctx *Context) error {
	switch t := n.(type) {
	case *TextNode:
		buf.WriteString(t.Text)
	case *RawNode:
		buf.WriteString(t.Text)
	case *OutputNode:
		v, err := r.Evaluator.Eval(t.Expr, ctx)
		if err != nil {
			return err
		}
		r.writeValue(buf, v, ctx)
	case *SetNode, *LoadNode:
		if _, err := r.Enter(n, ctx); err != nil {
			return err
		}
	case *WithNode, *AutoescapeNode:
		leave, err := r.Enter(n, ctx)
		if err != nil {
			return err
		}
		defer leave()
		return r.RenderNodes(buf, Children(n), ctx)
	case *IfNode:
		return r.renderIf(buf, t, ctx)
	case *ForNode:
		return r.renderFor(buf, t, ctx)
	case *BlockNode:
		return r.RenderBlock(buf, t, ctx)
	case *ExtendsNode:
		// Handled by renderRoot.
	case *IncludeNode:
		return r.renderInclude(buf, t, ctx)
	default:
		return fmt.Errorf("unhandled node type: %T", n)
	}
	return nil
}

func (r *Renderer) writeValue(buf *bytes.Buffer, v Value, ctx *Context) {
	if ctx.Autoescape && !isSafe(v) {
		buf.WriteString(html.EscapeString(v.String()))
		return
	}
	buf.WriteString(v.String())
}

// Enter applies the scoping effect of a set, with, autoescape or load node
// to ctx without rendering any body. For an if node it runs the set
// statements of the branch that would render. The returned func undoes
// scopes; assignments stay in the scope they were made in.
func (r *Renderer) Enter(n Node, ctx *Context) (leave func(), err error) {
	switch t := n.(type) {
	case *SetNode:
		v, err := r.Evaluator.Eval(t.Expr, ctx)
		if err != nil {
			return nil, err
		}
		ctx.Set(t.Name, v)
		return func() {}, nil
	case *WithNode:
		vars, err := r.evalBindings(t.Bindings, ctx)
		if err != nil {
			return nil, err
		}
		ctx.Push(vars)
		return ctx.Pop, nil
	case *AutoescapeNode:
		prev := ctx.Autoescape
		ctx.Autoescape = t.On
		return func() { ctx.Autoescape = prev }, nil
	case *LoadNode:
		// Libraries are bound when the template is compiled.
		return func() {}, nil
	case *IfNode:
		// Only the assignments of the taken branch are replayed.
		body, err := r.branch(t, ctx)
		if err != nil {
			return nil, err
		}
		for _, c := range body {
			switch c.(type) {
			case *SetNode, *IfNode:
				if _, err := r.Enter(c, ctx); err != nil {
					return nil, err
				}
			}
		}
		return func() {}, nil
	}
	return nil, fmt.Errorf("node %T does not scope variables", n)
}

func (r *Renderer) evalBindings(bindings []Binding, ctx *Context) (map[string]Value, error) {
	vars := make(map[string]Value, len(bindings))
	for _, b := range bindings {
		v, err := r.Evaluator.Eval(b.Expr, ctx)
		if err != nil {
			return nil, err
		}
		vars[b.Name] = v
	}
	return vars, nil
}

func (r *Renderer) renderIf(buf *bytes.Buffer, n *IfNode, ctx *Context) error {
	body, err := r.branch(n, ctx)
	if err != nil {
		return err
	}
	return r.RenderNodes(buf, body, ctx)
}

// branch returns the body of the first branch of n whose condition holds.
func (r *Renderer) branch(n *IfNode, ctx *Context) ([]Node, error) {
	ok, err := r.Evaluator.Truthy(n.Cond, ctx)
	if err != nil {
		return nil, err
	}
	if ok {
		return n.Then, nil
	}
	for _, e := range n.Elifs {
		ok, err := r.Evaluator.Truthy(e.Cond, ctx)
		if err != nil {
			return nil, err
		}
		if ok {
			return e.Body, nil
		}
	}
	return n.Else, nil
}

func (r *Renderer) renderFor(buf *bytes.Buffer, n *ForNode, ctx *Context) error {
	v, err := r.Evaluator.Eval(n.Iterable, ctx)
	if err != nil {
		return err
	}
	items, err := iterateValue(v)
	if err != nil {
		return err
	}
	if len(items) == 0 {
		return r.RenderNodes(buf, n.Else, ctx)
	}
	if n.Reversed {
		for i, j := 0, len(items)-1; i < j; i, j = i+1, j-1 {
			items[i], items[j] = items[j], items[i]
		}
	}
	parent, _ := ctx.Get("forloop")
	if parent == nil {
		parent = NoneValue{}
	}
	ctx.Push(nil)
	defer ctx.Pop()
	for i, it := range items {
		if len(n.Targets) == 1 {
			ctx.Set(n.Targets[0], it)
		} else {
			parts, _ := it.(ListValue)
			for j, name := range n.Targets {
				var v Value = NoneValue{}
				if j < len(parts) {
					v = parts[j]
				}
				ctx.Set(name, v)
			}
		}
		loop := DictValue{
			"counter":     IntValue(i + 1),
			"counter0":    IntValue(i),
			"revcounter":  IntValue(len(items) - i),
			"revcounter0": IntValue(len(items) - i - 1),
			"first":       BoolValue(i == 0),
			"last":        BoolValue(i == len(items)-1),
			"length":      IntValue(len(items)),
			"index":       IntValue(i + 1),
			"index0":      IntValue(i),
			"parentloop":  parent,
		}
		ctx.Set("forloop", loop)
		ctx.Set("loop", loop)
		if err := r.RenderNodes(buf, n.Body, ctx); err != nil {
			return err
		}
	}
	return nil
}

// RenderBlock renders the most-derived definition of n's name from the
// active block context, or n itself when there is none. While it renders,
// "block" is bound to a value whose super attribute renders the next
// definition in the chain.
func (r *Renderer) RenderBlock(buf *bytes.Buffer, n *BlockNode, ctx *Context) error {
	ctx.Push(nil)
	defer ctx.Pop()
	bc := ctx.RenderContext().BlockContext()
	if bc == nil {
		ctx.Set("block", &BlockValue{Node: n, renderer: r, ctx: ctx})
		return r.RenderNodes(buf, n.Body, ctx)
	}
	pushed := bc.Pop(n.Name)
	block := pushed
	if block == nil {
		block = n
	}
	ctx.Set("block", &BlockValue{Node: block, renderer: r, ctx: ctx})
	err := r.RenderNodes(buf, block.Body, ctx)
	if pushed != nil {
		bc.Push(n.Name, pushed)
	}
	return err
}

func (r *Renderer) renderInclude(buf *bytes.Buffer, n *IncludeNode, ctx *Context) error {
	v, err := r.Evaluator.Eval(n.Template, ctx)
	if err != nil {
		return err
	}
	t, ok := v.(*Template)
	if !ok {
		if r.Engine == nil {
			return fmt.Errorf("include %q requires an engine", v)
		}
		if t, err = r.Engine.GetTemplate(v.String()); err != nil {
			return err
		}
	}
	vars, err := r.evalBindings(n.With, ctx)
	if err != nil {
		return err
	}
	if n.Only {
		return r.RenderTemplate(buf, t, ctx.New(vars))
	}
	ctx.Push(vars)
	defer ctx.Pop()
	return r.RenderTemplate(buf, t, ctx)
}

// BlockValue is bound to "block" while a block renders.
type BlockValue struct {
	Node *BlockNode

	renderer *Renderer
	ctx      *Context
}

func (b *BlockValue) String() string { return b.Node.Name }
func (b *BlockValue) Truth() bool    { return true }

func (b *BlockValue) Attr(name string) (Value, error) {
	switch name {
	case "name":
		return StringValue(b.Node.Name), nil
	case "super":
		return b.Super()
	}
	return NoneValue{}, nil
}

// Super renders the next less-derived definition of the block. It is empty
// when there is none.
func (b *BlockValue) Super() (Value, error) {
	bc := b.ctx.RenderContext().BlockContext()
	if bc == nil || bc.Get(b.Node.Name) == nil {
		return SafeString(""), nil
	}
	var buf bytes.Buffer
	if err := b.renderer.RenderBlock(&buf, b.Node, b.ctx); err != nil {
		return nil, err
	}
	return SafeString(buf.String()), nil
}
