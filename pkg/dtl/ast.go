package dtl

// Node is any AST node in a parsed template.
type Node interface {
	node()
}

// Document is the root node produced by Parse.
type Document struct {
	Name  string
	Nodes []Node
}

func (*Document) node() {}

// TextNode represents literal text between tags.
type TextNode struct {
	Text string
}

func (*TextNode) node() {}

// OutputNode represents a variable/output expression: {{ expr }}
type OutputNode struct {
	Expr *Expr
}

func (*OutputNode) node() {}

// SetNode represents a simple assignment: {% set name = expr %}
type SetNode struct {
	Name string
	Expr *Expr
}

func (*SetNode) node() {}

// IfNode represents an if/elif/else block.
type IfNode struct {
	Cond  *Expr
	Then  []Node
	Elifs []ElifBranch
	Else  []Node
}

func (*IfNode) node() {}

// ElifBranch is a single elif condition with its body.
type ElifBranch struct {
	Cond *Expr
	Body []Node
}

// ForNode represents a for loop: {% for a, b in iterable [reversed] %}.
// Else holds the {% empty %} or {% else %} branch.
type ForNode struct {
	Targets  []string
	Iterable *Expr
	Reversed bool
	Body     []Node
	Else     []Node
}

func (*ForNode) node() {}

// RawNode represents a raw block where delimiters are not parsed.
// It is produced by {% raw %} and {% verbatim %}.
type RawNode struct {
	Text string
}

func (*RawNode) node() {}

// BlockNode represents a named block for template inheritance.
type BlockNode struct {
	Name string
	Line int
	Body []Node
}

func (*BlockNode) node() {}

// ExtendsNode declares that this template extends a parent template.
// Parent is usually a string literal but may be any expression that
// evaluates to a template name or a *Template.
type ExtendsNode struct {
	Parent *Expr
}

func (*ExtendsNode) node() {}

// IncludeNode renders another template in place.
type IncludeNode struct {
	Template *Expr
	With     []Binding
	Only     bool
}

func (*IncludeNode) node() {}

// Binding is a name=expr pair used by with and include.
type Binding struct {
	Name string
	Expr *Expr
}

// WithNode binds variables for the duration of its body.
type WithNode struct {
	Bindings []Binding
	Body     []Node
}

func (*WithNode) node() {}

// AutoescapeNode switches HTML escaping on or off for its body.
type AutoescapeNode struct {
	On   bool
	Body []Node
}

func (*AutoescapeNode) node() {}

// LoadNode makes filter libraries available to the template.
type LoadNode struct {
	Libraries []string
}

func (*LoadNode) node() {}
