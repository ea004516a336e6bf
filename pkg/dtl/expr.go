package dtl

import (
	"fmt"
	"strconv"
	"strings"
)

// Expr is a compiled expression. Source keeps the original text for
// diagnostics and pretty printing.
type Expr struct {
	Source string
	Line   int
	root   exprNode
}

func (x *Expr) String() string { return x.Source }

// exprNode is a node of the expression tree.
type exprNode interface {
	exprNode()
}

type (
	literalExpr struct{ val Value }
	nameExpr    struct{ name string }
	attrExpr    struct {
		obj  exprNode
		name string
	}
	indexExpr struct{ obj, index exprNode }
	callExpr  struct {
		fn   exprNode
		args []exprNode
	}
	listExpr   struct{ items []exprNode }
	notExpr    struct{ x exprNode }
	negExpr    struct{ x exprNode }
	binaryExpr struct {
		op   string
		l, r exprNode
	}
	filterExpr struct {
		in   exprNode
		name string
		args []exprNode
		fn   FilterFunc // bound at compile time when an engine is available
	}
)

func (*literalExpr) exprNode() {}
func (*nameExpr) exprNode()    {}
func (*attrExpr) exprNode()    {}
func (*indexExpr) exprNode()   {}
func (*callExpr) exprNode()    {}
func (*listExpr) exprNode()    {}
func (*notExpr) exprNode()     {}
func (*negExpr) exprNode()     {}
func (*binaryExpr) exprNode()  {}
func (*filterExpr) exprNode()  {}

type exprTokKind int

const (
	etEOF exprTokKind = iota
	etName
	etNumber
	etString
	etOp
)

type exprToken struct {
	kind exprTokKind
	val  string
}

func tokenizeExpr(s string) ([]exprToken, error) {
	var toks []exprToken
	i := 0
	for i < len(s) {
		c := s[i]
		switch {
		case isSpace(c):
			i++
		case c == '"' || c == '\'':
			j := i + 1
			var b strings.Builder
			for j < len(s) && s[j] != c {
				if s[j] == '\\' && j+1 < len(s) {
					j++
				}
				b.WriteByte(s[j])
				j++
			}
			if j >= len(s) {
				return nil, fmt.Errorf("unterminated string literal in %q", s)
			}
			toks = append(toks, exprToken{kind: etString, val: b.String()})
			i = j + 1
		case isDigit(c):
			j := i
			for j < len(s) && (isDigit(s[j]) || (s[j] == '.' && j+1 < len(s) && isDigit(s[j+1]))) {
				j++
			}
			toks = append(toks, exprToken{kind: etNumber, val: s[i:j]})
			i = j
		case isNameStart(c):
			j := i
			for j < len(s) && isNameChar(s[j]) {
				j++
			}
			toks = append(toks, exprToken{kind: etName, val: s[i:j]})
			i = j
		default:
			if i+1 < len(s) {
				switch s[i : i+2] {
				case "==", "!=", "<=", ">=":
					toks = append(toks, exprToken{kind: etOp, val: s[i : i+2]})
					i += 2
					continue
				}
			}
			if strings.IndexByte("<>|:,.()[]=-", c) < 0 {
				return nil, fmt.Errorf("unexpected character %q in %q", c, s)
			}
			toks = append(toks, exprToken{kind: etOp, val: string(c)})
			i++
		}
	}
	return toks, nil
}

func isDigit(c byte) bool     { return c >= '0' && c <= '9' }
func isNameStart(c byte) bool { return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') }
func isNameChar(c byte) bool  { return isNameStart(c) || isDigit(c) }

// exprParser is a recursive descent parser over expression tokens:
//
//	or         = and { "or" and }
//	and        = not { "and" not }
//	not        = "not" not | comparison
//	comparison = filtered [ ("=="|"!="|"<"|">"|"<="|">="|"in"|"not in") filtered ]
//	filtered   = unary { "|" name [ ":" postfix | "(" args ")" ] }
//	unary      = "-" unary | postfix
//	postfix    = primary { "." name | "[" or "]" | "(" args ")" }
type exprParser struct {
	src  string
	toks []exprToken
	pos  int
}

func newExprParser(src string) (*exprParser, error) {
	toks, err := tokenizeExpr(src)
	if err != nil {
		return nil, err
	}
	return &exprParser{src: src, toks: toks}, nil
}

// compileExpr parses a complete expression.
func compileExpr(src string, line int) (*Expr, error) {
	p, err := newExprParser(src)
	if err != nil {
		return nil, err
	}
	if p.done() {
		return nil, fmt.Errorf("empty expression")
	}
	root, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if !p.done() {
		return nil, fmt.Errorf("unexpected %q in expression %q", p.peek().val, src)
	}
	return &Expr{Source: strings.TrimSpace(src), Line: line, root: root}, nil
}

func (p *exprParser) peek() exprToken {
	if p.pos >= len(p.toks) {
		return exprToken{kind: etEOF}
	}
	return p.toks[p.pos]
}

func (p *exprParser) peekAt(off int) exprToken {
	if p.pos+off >= len(p.toks) {
		return exprToken{kind: etEOF}
	}
	return p.toks[p.pos+off]
}

func (p *exprParser) next() exprToken {
	t := p.peek()
	if p.pos < len(p.toks) {
		p.pos++
	}
	return t
}

func (p *exprParser) done() bool { return p.pos >= len(p.toks) }

func (p *exprParser) isOp(val string) bool {
	t := p.peek()
	return t.kind == etOp && t.val == val
}

func (p *exprParser) isKeyword(val string) bool {
	t := p.peek()
	return t.kind == etName && t.val == val
}

func (p *exprParser) expectOp(val string) error {
	if !p.isOp(val) {
		return fmt.Errorf("expected %q in expression %q", val, p.src)
	}
	p.pos++
	return nil
}

func (p *exprParser) expectName() (string, error) {
	t := p.next()
	if t.kind != etName {
		return "", fmt.Errorf("expected a name in expression %q", p.src)
	}
	return t.val, nil
}

// sub wraps a parsed node into an Expr; source text is approximate for
// sub-expressions parsed out of a larger tag.
func (p *exprParser) sub(n exprNode, line int) *Expr {
	return &Expr{Source: strings.TrimSpace(p.src), Line: line, root: n}
}

func (p *exprParser) parseOr() (exprNode, error) {
	l, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.isKeyword("or") {
		p.pos++
		r, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		l = &binaryExpr{op: "or", l: l, r: r}
	}
	return l, nil
}

func (p *exprParser) parseAnd() (exprNode, error) {
	l, err := p.parseNot()
	if err != nil {
		return nil, err
	}
	for p.isKeyword("and") {
		p.pos++
		r, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		l = &binaryExpr{op: "and", l: l, r: r}
	}
	return l, nil
}

func (p *exprParser) parseNot() (exprNode, error) {
	if p.isKeyword("not") {
		p.pos++
		x, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		return &notExpr{x: x}, nil
	}
	return p.parseComparison()
}

func (p *exprParser) parseComparison() (exprNode, error) {
	l, err := p.parseFiltered()
	if err != nil {
		return nil, err
	}
	var op string
	t := p.peek()
	switch {
	case t.kind == etOp && (t.val == "==" || t.val == "!=" || t.val == "<" || t.val == ">" || t.val == "<=" || t.val == ">="):
		op = t.val
		p.pos++
	case t.kind == etName && t.val == "in":
		op = "in"
		p.pos++
	case t.kind == etName && t.val == "not" && p.peekAt(1).kind == etName && p.peekAt(1).val == "in":
		op = "not in"
		p.pos += 2
	default:
		return l, nil
	}
	r, err := p.parseFiltered()
	if err != nil {
		return nil, err
	}
	return &binaryExpr{op: op, l: l, r: r}, nil
}

func (p *exprParser) parseFiltered() (exprNode, error) {
	x, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for p.isOp("|") {
		p.pos++
		name, err := p.expectName()
		if err != nil {
			return nil, err
		}
		f := &filterExpr{in: x, name: name}
		switch {
		case p.isOp(":"):
			p.pos++
			arg, err := p.parseUnary()
			if err != nil {
				return nil, err
			}
			f.args = []exprNode{arg}
		case p.isOp("("):
			p.pos++
			f.args, err = p.parseArgs(")")
			if err != nil {
				return nil, err
			}
		}
		x = f
	}
	return x, nil
}

func (p *exprParser) parseUnary() (exprNode, error) {
	if p.isOp("-") {
		p.pos++
		x, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &negExpr{x: x}, nil
	}
	return p.parsePostfix()
}

func (p *exprParser) parsePostfix() (exprNode, error) {
	x, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	for {
		switch {
		case p.isOp("."):
			p.pos++
			t := p.next()
			if t.kind != etName && t.kind != etNumber {
				return nil, fmt.Errorf("expected attribute after '.' in %q", p.src)
			}
			x = &attrExpr{obj: x, name: t.val}
		case p.isOp("["):
			p.pos++
			idx, err := p.parseOr()
			if err != nil {
				return nil, err
			}
			if err := p.expectOp("]"); err != nil {
				return nil, err
			}
			x = &indexExpr{obj: x, index: idx}
		case p.isOp("("):
			p.pos++
			args, err := p.parseArgs(")")
			if err != nil {
				return nil, err
			}
			x = &callExpr{fn: x, args: args}
		default:
			return x, nil
		}
	}
}

func (p *exprParser) parseArgs(closing string) ([]exprNode, error) {
	var args []exprNode
	for !p.isOp(closing) {
		if p.done() {
			return nil, fmt.Errorf("expected %q in expression %q", closing, p.src)
		}
		a, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		args = append(args, a)
		if p.isOp(",") {
			p.pos++
			continue
		}
		if !p.isOp(closing) {
			return nil, fmt.Errorf("expected ',' or %q in expression %q", closing, p.src)
		}
	}
	p.pos++
	return args, nil
}

func (p *exprParser) parsePrimary() (exprNode, error) {
	t := p.next()
	switch t.kind {
	case etString:
		return &literalExpr{val: StringValue(t.val)}, nil
	case etNumber:
		if strings.Contains(t.val, ".") {
			f, err := strconv.ParseFloat(t.val, 64)
			if err != nil {
				return nil, err
			}
			return &literalExpr{val: FloatValue(f)}, nil
		}
		n, err := strconv.ParseInt(t.val, 10, 64)
		if err != nil {
			return nil, err
		}
		return &literalExpr{val: IntValue(n)}, nil
	case etName:
		switch t.val {
		case "true", "True":
			return &literalExpr{val: BoolValue(true)}, nil
		case "false", "False":
			return &literalExpr{val: BoolValue(false)}, nil
		case "none", "None", "nil":
			return &literalExpr{val: NoneValue{}}, nil
		}
		return &nameExpr{name: t.val}, nil
	case etOp:
		switch t.val {
		case "(":
			x, err := p.parseOr()
			if err != nil {
				return nil, err
			}
			if err := p.expectOp(")"); err != nil {
				return nil, err
			}
			return x, nil
		case "[":
			items, err := p.parseArgs("]")
			if err != nil {
				return nil, err
			}
			return &listExpr{items: items}, nil
		}
		return nil, fmt.Errorf("unexpected %q in expression %q", t.val, p.src)
	}
	return nil, fmt.Errorf("unexpected end of expression %q", p.src)
}

// parseBindings parses name=expr pairs, and the legacy "expr as name" form
// when allowLegacy is set, until the tokens run out or stop is seen.
func (p *exprParser) parseBindings(line int, allowLegacy bool, stop string) ([]Binding, error) {
	var out []Binding
	for !p.done() && !p.isKeyword(stop) {
		if p.peek().kind == etName && p.peekAt(1).kind == etOp && p.peekAt(1).val == "=" {
			name := p.next().val
			p.pos++
			x, err := p.parseOr()
			if err != nil {
				return nil, err
			}
			out = append(out, Binding{Name: name, Expr: p.sub(x, line)})
			continue
		}
		if !allowLegacy {
			return nil, fmt.Errorf("expected name=value in %q", p.src)
		}
		x, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if !p.isKeyword("as") {
			return nil, fmt.Errorf("expected 'as' in %q", p.src)
		}
		p.pos++
		name, err := p.expectName()
		if err != nil {
			return nil, err
		}
		out = append(out, Binding{Name: name, Expr: p.sub(x, line)})
	}
	return out, nil
}

// walkExpr calls fn for every node of the expression tree.
func walkExpr(n exprNode, fn func(exprNode) error) error {
	if n == nil {
		return nil
	}
	if err := fn(n); err != nil {
		return err
	}
	switch t := n.(type) {
	case *attrExpr:
		return walkExpr(t.obj, fn)
	case *indexExpr:
		if err := walkExpr(t.obj, fn); err != nil {
			return err
		}
		return walkExpr(t.index, fn)
	case *callExpr:
		if err := walkExpr(t.fn, fn); err != nil {
			return err
		}
		for _, a := range t.args {
			if err := walkExpr(a, fn); err != nil {
				return err
			}
		}
	case *listExpr:
		for _, a := range t.items {
			if err := walkExpr(a, fn); err != nil {
				return err
			}
		}
	case *notExpr:
		return walkExpr(t.x, fn)
	case *negExpr:
		return walkExpr(t.x, fn)
	case *binaryExpr:
		if err := walkExpr(t.l, fn); err != nil {
			return err
		}
		return walkExpr(t.r, fn)
	case *filterExpr:
		if err := walkExpr(t.in, fn); err != nil {
			return err
		}
		for _, a := range t.args {
			if err := walkExpr(a, fn); err != nil {
				return err
			}
		}
	}
	return nil
}
