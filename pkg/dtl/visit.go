package dtl

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
)

type Visitor interface {
	Visit(n Node) error
}

// VisitorFunc adapts a function to Visitor.
type VisitorFunc func(n Node) error

func (f VisitorFunc) Visit(n Node) error { return f(n) }

// SkipChildren may be returned by a Visitor to prune the walk below a node.
var SkipChildren = errors.New("skip children")

func Walk(v Visitor, n Node) error {
	if err := v.Visit(n); err != nil {
		if err == SkipChildren {
			return nil
		}
		return err
	}
	for _, c := range Children(n) {
		if err := Walk(v, c); err != nil {
			return err
		}
	}
	return nil
}

// Children returns the nodes nested directly inside n, in source order.
func Children(n Node) []Node {
	switch t := n.(type) {
	case *Document:
		return t.Nodes
	case *IfNode:
		out := append([]Node(nil), t.Then...)
		for _, e := range t.Elifs {
			out = append(out, e.Body...)
		}
		return append(out, t.Else...)
	case *ForNode:
		return append(append([]Node(nil), t.Body...), t.Else...)
	case *BlockNode:
		return t.Body
	case *WithNode:
		return t.Body
	case *AutoescapeNode:
		return t.Body
	}
	return nil
}

// exprs returns the expressions owned directly by n.
func exprs(n Node) []*Expr {
	switch t := n.(type) {
	case *OutputNode:
		return []*Expr{t.Expr}
	case *SetNode:
		return []*Expr{t.Expr}
	case *IfNode:
		out := []*Expr{t.Cond}
		for _, e := range t.Elifs {
			out = append(out, e.Cond)
		}
		return out
	case *ForNode:
		return []*Expr{t.Iterable}
	case *ExtendsNode:
		return []*Expr{t.Parent}
	case *IncludeNode:
		out := []*Expr{t.Template}
		for _, b := range t.With {
			out = append(out, b.Expr)
		}
		return out
	case *WithNode:
		out := make([]*Expr, 0, len(t.Bindings))
		for _, b := range t.Bindings {
			out = append(out, b.Expr)
		}
		return out
	}
	return nil
}

// collectBlocks returns every block in nodes, nested ones included, in
// source order.
func collectBlocks(nodes []Node) []*BlockNode {
	var out []*BlockNode
	for _, n := range nodes {
		_ = Walk(VisitorFunc(func(n Node) error {
			if b, ok := n.(*BlockNode); ok {
				out = append(out, b)
			}
			return nil
		}), n)
	}
	return out
}

// Pretty returns a line-oriented string representation of the AST.
func Pretty(doc *Document) string {
	var buf bytes.Buffer
	ppNode(&buf, 0, doc)
	return buf.String()
}

func ppNode(buf *bytes.Buffer, indent int, n Node) {
	ind := strings.Repeat(" ", indent)
	body := func(nodes []Node) {
		for _, c := range nodes {
			ppNode(buf, indent+2, c)
		}
	}
	switch t := n.(type) {
	case *Document:
		fmt.Fprintf(buf, "%sDocument(%s)\n", ind, t.Name)
		body(t.Nodes)
	case *TextNode:
		fmt.Fprintf(buf, "%sText(%q)\n", ind, t.Text)
	case *OutputNode:
		fmt.Fprintf(buf, "%sOutput(%q)\n", ind, t.Expr)
	case *SetNode:
		fmt.Fprintf(buf, "%sSet(%s = %q)\n", ind, t.Name, t.Expr)
	case *IfNode:
		fmt.Fprintf(buf, "%sIf(%q)\n", ind, t.Cond)
		body(t.Then)
		for _, e := range t.Elifs {
			fmt.Fprintf(buf, "%sElif(%q)\n", ind, e.Cond)
			body(e.Body)
		}
		if len(t.Else) > 0 {
			fmt.Fprintf(buf, "%sElse\n", ind)
			body(t.Else)
		}
	case *ForNode:
		fmt.Fprintf(buf, "%sFor(%s)\n", ind, t)
		body(t.Body)
		if len(t.Else) > 0 {
			fmt.Fprintf(buf, "%sEmpty\n", ind)
			body(t.Else)
		}
	case *RawNode:
		fmt.Fprintf(buf, "%sRaw(%q)\n", ind, t.Text)
	case *BlockNode:
		fmt.Fprintf(buf, "%sBlock(%s)\n", ind, t.Name)
		body(t.Body)
	case *ExtendsNode:
		fmt.Fprintf(buf, "%sExtends(%q)\n", ind, t.Parent)
	case *IncludeNode:
		fmt.Fprintf(buf, "%sInclude(%q", ind, t.Template)
		for _, b := range t.With {
			fmt.Fprintf(buf, " %s=%q", b.Name, b.Expr)
		}
		if t.Only {
			buf.WriteString(" only")
		}
		buf.WriteString(")\n")
	case *WithNode:
		fmt.Fprintf(buf, "%sWith(", ind)
		for i, b := range t.Bindings {
			if i > 0 {
				buf.WriteByte(' ')
			}
			fmt.Fprintf(buf, "%s=%q", b.Name, b.Expr)
		}
		buf.WriteString(")\n")
		body(t.Body)
	case *AutoescapeNode:
		fmt.Fprintf(buf, "%sAutoescape(%t)\n", ind, t.On)
		body(t.Body)
	case *LoadNode:
		fmt.Fprintf(buf, "%sLoad(%s)\n", ind, strings.Join(t.Libraries, " "))
	}
}
