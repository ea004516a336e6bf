package dtl

// BlockContext tracks, per block name, the definitions collected along an
// inheritance chain. Definitions are stored least-derived first so the
// most-derived one is at the end and is taken first.
type BlockContext struct {
	blocks map[string][]*BlockNode
}

// NewBlockContext returns an empty block context.
func NewBlockContext() *BlockContext {
	return &BlockContext{blocks: map[string][]*BlockNode{}}
}

// Add registers definitions from a template that is less derived than
// every template added so far.
func (bc *BlockContext) Add(blocks []*BlockNode) {
	for _, b := range blocks {
		bc.blocks[b.Name] = append([]*BlockNode{b}, bc.blocks[b.Name]...)
	}
}

// Pop removes and returns the most-derived remaining definition of name.
func (bc *BlockContext) Pop(name string) *BlockNode {
	defs := bc.blocks[name]
	if len(defs) == 0 {
		return nil
	}
	b := defs[len(defs)-1]
	bc.blocks[name] = defs[:len(defs)-1]
	return b
}

// Push puts a definition back as the most-derived one.
func (bc *BlockContext) Push(name string, b *BlockNode) {
	bc.blocks[name] = append(bc.blocks[name], b)
}

// Get returns the most-derived remaining definition of name.
func (bc *BlockContext) Get(name string) *BlockNode {
	defs := bc.blocks[name]
	if len(defs) == 0 {
		return nil
	}
	return defs[len(defs)-1]
}

// Definitions returns the definitions of name, most-derived first.
func (bc *BlockContext) Definitions(name string) []*BlockNode {
	defs := bc.blocks[name]
	out := make([]*BlockNode, len(defs))
	for i, b := range defs {
		out[len(defs)-1-i] = b
	}
	return out
}

// Clone returns an independent copy.
func (bc *BlockContext) Clone() *BlockContext {
	out := NewBlockContext()
	for name, defs := range bc.blocks {
		out.blocks[name] = append([]*BlockNode(nil), defs...)
	}
	return out
}

// RenderContext is a stack of per-template render states. Every template
// render pushes a state; included templates get a fresh state so their
// inheritance does not leak into the includer.
type RenderContext struct {
	states []*renderState
}

type renderState struct {
	template *Template
	blocks   *BlockContext
	chain    []*Template
}

// Push starts a render state for t and returns the function that ends it.
func (rc *RenderContext) Push(t *Template) (pop func()) {
	rc.states = append(rc.states, &renderState{template: t})
	n := len(rc.states)
	return func() { rc.states = rc.states[:n-1] }
}

func (rc *RenderContext) top() *renderState {
	if len(rc.states) == 0 {
		return nil
	}
	return rc.states[len(rc.states)-1]
}

// Depth returns the number of active render states.
func (rc *RenderContext) Depth() int { return len(rc.states) }

// Template returns the template of the current state.
func (rc *RenderContext) Template() *Template {
	if s := rc.top(); s != nil {
		return s.template
	}
	return nil
}

// BlockContext returns the block context of the current state, or nil.
func (rc *RenderContext) BlockContext() *BlockContext {
	if s := rc.top(); s != nil {
		return s.blocks
	}
	return nil
}

// SetBlockContext installs bc in the current state.
func (rc *RenderContext) SetBlockContext(bc *BlockContext) {
	if s := rc.top(); s != nil {
		s.blocks = bc
	}
}

// visit appends t to the chain of the current state, failing when t is
// already part of it.
func (rc *RenderContext) visit(t *Template) error {
	s := rc.top()
	if s == nil {
		return nil
	}
	for _, seen := range s.chain {
		if seen == t {
			return syntaxErrorf(t.Name, 0, "circular extends")
		}
	}
	s.chain = append(s.chain, t)
	return nil
}
