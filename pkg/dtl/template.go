package dtl

import "fmt"

// Template is a compiled template. It is immutable once compiled and may be
// rendered concurrently.
type Template struct {
	Name   string
	Source string
	Root   *Document

	engine *Engine
}

// String implements Value so templates can be passed to extends/include.
func (t *Template) String() string { return t.Name }
func (t *Template) Truth() bool    { return true }

// TemplateName returns the name the template was loaded under.
func (t *Template) TemplateName() string { return t.Name }

// Engine returns the engine that compiled the template.
func (t *Template) Engine() *Engine { return t.engine }

// Extends returns the template's extends tag, or nil.
func (t *Template) Extends() *ExtendsNode {
	for _, n := range t.Root.Nodes {
		switch n := n.(type) {
		case *TextNode:
			continue
		case *ExtendsNode:
			return n
		}
		return nil
	}
	return nil
}

// Blocks returns every block defined in the template, nested blocks
// included, in source order.
func (t *Template) Blocks() []*BlockNode {
	return collectBlocks(t.Root.Nodes)
}

// Parent resolves the extends tag against ctx. It evaluates the parent
// expression but renders nothing. A template without extends has no parent.
func (t *Template) Parent(ctx *Context) (*Template, error) {
	ext := t.Extends()
	if ext == nil {
		return nil, nil
	}
	if ctx == nil {
		ctx = NewContext(nil)
	}
	v, err := t.evaluator().Eval(ext.Parent, ctx)
	if err != nil {
		return nil, err
	}
	if p, ok := v.(*Template); ok {
		return p, nil
	}
	name := v.String()
	if name == "" {
		return nil, syntaxErrorf(t.Name, ext.Parent.Line, "invalid template name in extends: %s evaluated to an empty value", ext.Parent)
	}
	if t.engine == nil {
		return nil, fmt.Errorf("extends %q: template %q has no engine", name, t.Name)
	}
	return t.engine.GetTemplate(name)
}

// Render renders the whole template.
func (t *Template) Render(ctx *Context) (string, error) {
	return NewRenderer(t.engine).Render(t, ctx)
}

func (t *Template) evaluator() *Evaluator {
	if t.engine != nil {
		return t.engine.evaluator
	}
	return NewEvaluator()
}
