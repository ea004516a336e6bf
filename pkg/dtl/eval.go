package dtl

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Evaluator evaluates compiled expressions. Filters serves expressions
// whose filters were not bound when the template was compiled.
type Evaluator struct {
	Filters Filters
}

func NewEvaluator() *Evaluator { return &Evaluator{Filters: DefaultFilters()} }

// Eval evaluates x against ctx. Undefined names evaluate to NoneValue.
func (e *Evaluator) Eval(x *Expr, ctx *Context) (Value, error) {
	if x == nil || x.root == nil {
		return NoneValue{}, nil
	}
	return e.eval(x, x.root, ctx)
}

// Truthy evaluates x and returns its truthiness.
func (e *Evaluator) Truthy(x *Expr, ctx *Context) (bool, error) {
	v, err := e.Eval(x, ctx)
	if err != nil {
		return false, err
	}
	return v.Truth(), nil
}

func (e *Evaluator) eval(x *Expr, n exprNode, ctx *Context) (Value, error) {
	switch t := n.(type) {
	case *literalExpr:
		return t.val, nil
	case *nameExpr:
		if v, ok := ctx.Get(t.name); ok {
			return v, nil
		}
		return NoneValue{}, nil
	case *attrExpr:
		obj, err := e.eval(x, t.obj, ctx)
		if err != nil {
			return nil, err
		}
		return lookupAttr(obj, t.name)
	case *indexExpr:
		obj, err := e.eval(x, t.obj, ctx)
		if err != nil {
			return nil, err
		}
		idx, err := e.eval(x, t.index, ctx)
		if err != nil {
			return nil, err
		}
		return lookupAttr(obj, idx.String())
	case *callExpr:
		fn, err := e.eval(x, t.fn, ctx)
		if err != nil {
			return nil, err
		}
		c, ok := fn.(CallableValue)
		if !ok {
			return nil, fmt.Errorf("%s: value is not callable", x.Source)
		}
		args, err := e.evalAll(x, t.args, ctx)
		if err != nil {
			return nil, err
		}
		return c.Fn(args)
	case *listExpr:
		items, err := e.evalAll(x, t.items, ctx)
		if err != nil {
			return nil, err
		}
		return ListValue(items), nil
	case *notExpr:
		v, err := e.eval(x, t.x, ctx)
		if err != nil {
			return nil, err
		}
		return BoolValue(!v.Truth()), nil
	case *negExpr:
		v, err := e.eval(x, t.x, ctx)
		if err != nil {
			return nil, err
		}
		switch n := v.(type) {
		case IntValue:
			return -n, nil
		case FloatValue:
			return -n, nil
		}
		return nil, fmt.Errorf("%s: cannot negate %T", x.Source, v)
	case *binaryExpr:
		return e.evalBinary(x, t, ctx)
	case *filterExpr:
		in, err := e.eval(x, t.in, ctx)
		if err != nil {
			return nil, err
		}
		args, err := e.evalAll(x, t.args, ctx)
		if err != nil {
			return nil, err
		}
		fn := t.fn
		if fn == nil {
			fn = e.Filters[t.name]
		}
		if fn == nil {
			return nil, syntaxErrorf(ctx.templateName(), x.Line, "invalid filter: %q", t.name)
		}
		out, err := fn(ctx, in, args)
		if errors.Is(err, errArgCount) {
			return nil, &TemplateSyntaxError{Template: ctx.templateName(), Line: x.Line, Message: "filter " + t.name, Err: err}
		}
		if err != nil {
			return nil, fmt.Errorf("filter %s: %w", t.name, err)
		}
		return out, nil
	}
	return nil, fmt.Errorf("unhandled expression node %T", n)
}

func (e *Evaluator) evalAll(x *Expr, nodes []exprNode, ctx *Context) ([]Value, error) {
	out := make([]Value, 0, len(nodes))
	for _, n := range nodes {
		v, err := e.eval(x, n, ctx)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func (e *Evaluator) evalBinary(x *Expr, b *binaryExpr, ctx *Context) (Value, error) {
	l, err := e.eval(x, b.l, ctx)
	if err != nil {
		return nil, err
	}
	switch b.op {
	case "and":
		if !l.Truth() {
			return l, nil
		}
		return e.eval(x, b.r, ctx)
	case "or":
		if l.Truth() {
			return l, nil
		}
		return e.eval(x, b.r, ctx)
	}
	r, err := e.eval(x, b.r, ctx)
	if err != nil {
		return nil, err
	}
	switch b.op {
	case "==":
		return BoolValue(equal(l, r)), nil
	case "!=":
		return BoolValue(!equal(l, r)), nil
	case "in":
		return BoolValue(contains(r, l)), nil
	case "not in":
		return BoolValue(!contains(r, l)), nil
	}
	c, ok := compare(l, r)
	if !ok {
		return BoolValue(false), nil
	}
	switch b.op {
	case "<":
		return BoolValue(c < 0), nil
	case ">":
		return BoolValue(c > 0), nil
	case "<=":
		return BoolValue(c <= 0), nil
	case ">=":
		return BoolValue(c >= 0), nil
	}
	return nil, fmt.Errorf("%s: unknown operator %q", x.Source, b.op)
}

// lookupAttr resolves obj.name or obj[name].
func lookupAttr(obj Value, name string) (Value, error) {
	switch t := obj.(type) {
	case AttrGetter:
		return t.Attr(name)
	case LookupHook:
		if v, ok := t.OnLookup(name); ok {
			return v, nil
		}
		return NoneValue{}, nil
	case DictValue:
		if v, ok := t[name]; ok {
			return v, nil
		}
		for k, v := range t {
			if strings.EqualFold(k, name) {
				return v, nil
			}
		}
		switch name {
		case "items":
			pairs := make(ListValue, 0, len(t))
			for _, k := range t.Keys() {
				pairs = append(pairs, ListValue{StringValue(k), t[k]})
			}
			return pairs, nil
		case "keys":
			keys := make(ListValue, 0, len(t))
			for _, k := range t.Keys() {
				keys = append(keys, StringValue(k))
			}
			return keys, nil
		}
	case ListValue:
		if i, err := strconv.Atoi(name); err == nil {
			if i < 0 {
				i += len(t)
			}
			if i >= 0 && i < len(t) {
				return t[i], nil
			}
		}
	}
	return NoneValue{}, nil
}

func equal(a, b Value) bool {
	an, _, aok := toNumber(a)
	bn, _, bok := toNumber(b)
	if aok && bok {
		return an == bn
	}
	if _, ok := a.(NoneValue); ok {
		_, ok2 := b.(NoneValue)
		return ok2
	}
	if _, ok := b.(NoneValue); ok {
		return false
	}
	return a.String() == b.String()
}

func compare(a, b Value) (int, bool) {
	an, _, aok := toNumber(a)
	bn, _, bok := toNumber(b)
	if aok && bok {
		switch {
		case an < bn:
			return -1, true
		case an > bn:
			return 1, true
		}
		return 0, true
	}
	if aok || bok {
		return 0, false
	}
	return strings.Compare(a.String(), b.String()), true
}

func contains(container, item Value) bool {
	switch t := container.(type) {
	case ListValue:
		for _, v := range t {
			if equal(v, item) {
				return true
			}
		}
		return false
	case DictValue:
		_, ok := t[item.String()]
		return ok
	case StringValue, SafeString:
		return strings.Contains(t.String(), item.String())
	}
	return false
}

func (c *Context) templateName() string {
	if c.render != nil {
		if t := c.render.Template(); t != nil {
			return t.Name
		}
	}
	if c.template != nil {
		return c.template.Name
	}
	return ""
}
