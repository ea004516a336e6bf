package blockrender

import (
	"github.com/neurodesk/blockrender/pkg/dtl"
)

// Located is a block found in an inheritance chain, together with
// everything needed to render it on its own.
type Located struct {
	Name string
	// Block is the most-derived definition of Name.
	Block *dtl.BlockNode
	// Template owns Block.
	Template *dtl.Template
	// Origin is the template the search started from.
	Origin *dtl.Template
	// Chain lists Origin and its ancestors, most-derived first.
	Chain []*dtl.Template
	// Blocks holds every block definition of the chain.
	Blocks *dtl.BlockContext
	// Ambient lists the with, autoescape, set and load nodes that surround
	// the block where a full render reaches it, outermost first. An if
	// whose branches assign variables before the block is listed too.
	Ambient []dtl.Node
}

// BlockInfo describes a block name resolvable from a template.
type BlockInfo struct {
	Name        string
	Template    string
	Definitions int
}

type definition struct {
	node     *dtl.BlockNode
	template *dtl.Template
	path     []dtl.Node
	// shadowed marks a definition nested in a block that a more-derived
	// template overrides.
	shadowed bool
}

type registry struct {
	defs  map[string][]*definition // most-derived first
	order []string
}

// Locate finds the block called name in tpl or any of its ancestors. The
// most-derived definition wins. Extends expressions are evaluated against
// ctx, but nothing is rendered.
func Locate(tpl *dtl.Template, name string, ctx *dtl.Context) (*Located, error) {
	reg, chain, err := scan(tpl, ctx)
	if err != nil {
		return nil, err
	}
	defs := reg.defs[name]
	if len(defs) == 0 {
		return nil, &BlockNotFoundError{Block: name, Template: tpl.Name}
	}
	bc := dtl.NewBlockContext()
	for _, t := range chain {
		bc.Add(t.Blocks())
	}
	return &Located{
		Name:     name,
		Block:    defs[0].node,
		Template: defs[0].template,
		Origin:   tpl,
		Chain:    chain,
		Blocks:   bc,
		Ambient:  reg.ambient(name, map[string]bool{}),
	}, nil
}

// Blocks lists the block names resolvable from tpl in discovery order.
func Blocks(tpl *dtl.Template, ctx *dtl.Context) ([]BlockInfo, error) {
	reg, _, err := scan(tpl, ctx)
	if err != nil {
		return nil, err
	}
	out := make([]BlockInfo, 0, len(reg.order))
	for _, name := range reg.order {
		defs := reg.defs[name]
		out = append(out, BlockInfo{Name: name, Template: defs[0].template.Name, Definitions: len(defs)})
	}
	return out, nil
}

func scan(tpl *dtl.Template, ctx *dtl.Context) (*registry, []*dtl.Template, error) {
	reg := &registry{defs: map[string][]*definition{}}
	var chain []*dtl.Template
	seen := map[*dtl.Template]bool{}
	for cur := tpl; cur != nil; {
		if seen[cur] {
			return nil, nil, &dtl.TemplateSyntaxError{Template: cur.Name, Message: "circular extends"}
		}
		seen[cur] = true
		chain = append(chain, cur)
		reg.scanNodes(cur, cur.Root.Nodes, nil, false, cur.Extends() != nil)
		parent, err := cur.Parent(ctx)
		if err != nil {
			return nil, nil, err
		}
		cur = parent
	}
	return reg, chain, nil
}

// scanNodes records the blocks found in nodes. path holds the ambient
// nodes and enclosing blocks leading to nodes. inert is set for content of
// an extending template outside its blocks, which never renders.
func (r *registry) scanNodes(t *dtl.Template, nodes []dtl.Node, path []dtl.Node, shadowed, inert bool) {
	var prefix []dtl.Node
	for _, n := range nodes {
		switch n := n.(type) {
		case *dtl.BlockNode:
			here := join(path, prefix)
			overridden := len(r.defs[n.Name]) > 0
			r.add(&definition{node: n, template: t, path: here, shadowed: shadowed})
			r.scanNodes(t, n.Body, join(here, []dtl.Node{n}), shadowed || overridden, false)
		case *dtl.SetNode, *dtl.LoadNode:
			if !inert {
				prefix = append(prefix, n)
			}
		case *dtl.WithNode, *dtl.AutoescapeNode:
			inner := join(path, prefix)
			if !inert {
				inner = append(inner, n)
			}
			r.scanNodes(t, dtl.Children(n), inner, shadowed, inert)
		case *dtl.IfNode:
			r.scanNodes(t, dtl.Children(n), join(path, prefix), shadowed, inert)
			// Assignments in an if leak into the enclosing scope, so the
			// blocks that follow see them.
			if !inert && assigns(n) {
				prefix = append(prefix, n)
			}
		case *dtl.ForNode:
			r.scanNodes(t, dtl.Children(n), join(path, prefix), shadowed, inert)
		}
	}
}

// assigns reports whether a set statement runs directly in one of the
// branches of n, or in an if nested there.
func assigns(n *dtl.IfNode) bool {
	for _, c := range dtl.Children(n) {
		switch c := c.(type) {
		case *dtl.SetNode:
			return true
		case *dtl.IfNode:
			if assigns(c) {
				return true
			}
		}
	}
	return false
}

func (r *registry) add(d *definition) {
	name := d.node.Name
	if _, ok := r.defs[name]; !ok {
		r.order = append(r.order, name)
	}
	r.defs[name] = append(r.defs[name], d)
}

// ambient returns the scoping nodes around the place a full render reaches
// name: the least-derived definition that is not shadowed, entered through
// the placement of its enclosing block.
func (r *registry) ambient(name string, visiting map[string]bool) []dtl.Node {
	defs := r.defs[name]
	place := defs[len(defs)-1]
	for i := len(defs) - 1; i >= 0; i-- {
		if !defs[i].shadowed {
			place = defs[i]
			break
		}
	}
	visiting[name] = true
	enclosing := -1
	for i, n := range place.path {
		if _, ok := n.(*dtl.BlockNode); ok {
			enclosing = i
		}
	}
	if enclosing < 0 {
		return withoutBlocks(place.path)
	}
	outer := place.path[enclosing].(*dtl.BlockNode)
	if visiting[outer.Name] {
		return withoutBlocks(place.path)
	}
	return join(r.ambient(outer.Name, visiting), withoutBlocks(place.path[enclosing+1:]))
}

func join(a, b []dtl.Node) []dtl.Node {
	out := make([]dtl.Node, 0, len(a)+len(b))
	out = append(out, a...)
	return append(out, b...)
}

func withoutBlocks(nodes []dtl.Node) []dtl.Node {
	out := make([]dtl.Node, 0, len(nodes))
	for _, n := range nodes {
		if _, ok := n.(*dtl.BlockNode); !ok {
			out = append(out, n)
		}
	}
	return out
}
