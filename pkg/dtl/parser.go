package dtl

import (
	"fmt"
	"strings"
)

// Parse parses a template string into a Document AST.
func Parse(src string) (*Document, error) {
	return ParseNamed("", src)
}

// ParseNamed parses src and attributes errors to the template name.
// It recognizes text, output expressions, comments and the statements
// if/elif/else, for/empty, set, with, autoescape, load, block, extends,
// include, raw/verbatim and comment. Expressions are compiled here, so an
// invalid expression is reported at parse time.
func ParseNamed(name, src string) (*Document, error) {
	p := &parser{name: name, l: newLexer([]byte(src)), blocks: map[string]bool{}}
	nodes, endTag, _, err := p.parseNodes(nil, true)
	if err != nil {
		return nil, err
	}
	if endTag != "" {
		return nil, p.errorf(p.l.n, "unexpected {%% %s %%}", endTag)
	}
	return &Document{Name: name, Nodes: nodes}, nil
}

type parser struct {
	name       string
	l          *lexer
	blocks     map[string]bool
	sawExtends bool
}

func (p *parser) errorf(pos int, format string, args ...any) *TemplateSyntaxError {
	return syntaxErrorf(p.name, p.l.line(pos), format, args...)
}

func (p *parser) compile(src string, pos int) (*Expr, error) {
	x, err := compileExpr(src, p.l.line(pos))
	if err != nil {
		return nil, &TemplateSyntaxError{Template: p.name, Line: p.l.line(pos), Message: "invalid expression", Err: err}
	}
	return x, nil
}

// parseNodes parses until an ending statement with a name in `until` is
// encountered. If `until` is empty, parses to EOF.
func (p *parser) parseNodes(until map[string]bool, top bool) (nodes []Node, endTag, endArgs string, err error) {
	for {
		tok := p.l.nextTokenOutside()
		switch tok.kind {
		case tokEOF:
			if len(until) > 0 {
				return nil, "", "", p.errorf(tok.pos, "unclosed tag, expected one of %s", tagList(until))
			}
			return nodes, "", "", nil
		case tokText:
			if tok.val != "" {
				nodes = append(nodes, &TextNode{Text: tok.val})
			}
		case tokVarStart:
			src, err := p.readUntil(tokVarEnd, tok.pos)
			if err != nil {
				return nil, "", "", err
			}
			x, err := p.compile(src, tok.pos)
			if err != nil {
				return nil, "", "", err
			}
			nodes = append(nodes, &OutputNode{Expr: x})
		case tokCommStart:
			if _, err := p.readUntil(tokCommEnd, tok.pos); err != nil {
				return nil, "", "", err
			}
		case tokStmtStart:
			stmt, err := p.readUntil(tokStmtEnd, tok.pos)
			if err != nil {
				return nil, "", "", err
			}
			name, args := splitNameArgs(stmt)
			if until[name] {
				return nodes, name, args, nil
			}
			n, err := p.parseStatement(name, args, tok.pos, top, nodes)
			if err != nil {
				return nil, "", "", err
			}
			if n != nil {
				nodes = append(nodes, n)
			}
		default:
			return nil, "", "", p.errorf(tok.pos, "unexpected token outside tags")
		}
	}
}

func (p *parser) parseStatement(name, args string, pos int, top bool, preceding []Node) (Node, error) {
	switch name {
	case "raw", "verbatim":
		text, err := p.readRawUntil("end"+name, pos)
		if err != nil {
			return nil, err
		}
		return &RawNode{Text: text}, nil
	case "comment":
		_, err := p.readRawUntil("endcomment", pos)
		return nil, err
	case "block":
		return p.parseBlock(args, pos)
	case "extends":
		if !top || p.sawExtends || hasNonText(preceding) {
			return nil, p.errorf(pos, "{%% extends %%} must be the first tag in the template")
		}
		p.sawExtends = true
		x, err := p.compile(args, pos)
		if err != nil {
			return nil, err
		}
		return &ExtendsNode{Parent: x}, nil
	case "include":
		return p.parseInclude(args, pos)
	case "set":
		return p.parseSet(args, pos)
	case "if":
		return p.parseIf(args, pos)
	case "for":
		return p.parseFor(args, pos)
	case "with":
		return p.parseWith(args, pos)
	case "autoescape":
		return p.parseAutoescape(args, pos)
	case "load":
		libs := strings.Fields(args)
		if len(libs) == 0 {
			return nil, p.errorf(pos, "load requires at least one library name")
		}
		return &LoadNode{Libraries: libs}, nil
	case "":
		return nil, p.errorf(pos, "empty statement")
	}
	return nil, p.errorf(pos, "invalid block tag %q", name)
}

func hasNonText(nodes []Node) bool {
	for _, n := range nodes {
		if _, ok := n.(*TextNode); !ok {
			return true
		}
	}
	return false
}

func tagList(until map[string]bool) string {
	var names []string
	for n := range until {
		names = append(names, n)
	}
	return strings.Join(sortedStrings(names), ", ")
}

func (p *parser) readUntil(close tokenKind, pos int) (string, error) {
	var b strings.Builder
	for {
		t := p.l.nextTokenInside(close)
		switch t.kind {
		case tokContent:
			b.WriteString(t.val)
		case close:
			return strings.TrimSpace(b.String()), nil
		case tokEOF:
			return "", p.errorf(pos, "unterminated tag")
		default:
			return "", p.errorf(t.pos, "unexpected token inside tag")
		}
	}
}

func splitNameArgs(stmt string) (name, args string) {
	s := strings.TrimSpace(stmt)
	i := 0
	for i < len(s) && !isSpace(s[i]) {
		i++
	}
	return s[:i], strings.TrimSpace(s[i:])
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r'
}

// readRawUntil returns the source between the current position and the
// statement named end, without interpreting any tag in between.
func (p *parser) readRawUntil(end string, pos int) (string, error) {
	l := p.l
	if l.trimNext {
		for l.i < l.n && isSpace(l.src[l.i]) {
			l.i++
		}
		l.trimNext = false
	}
	start := l.i
	for l.i < l.n {
		if l.startsWith("{%") {
			tagStart := l.i
			l.i += 2
			trim := l.i < l.n && l.src[l.i] == '-'
			if trim {
				l.i++
			}
			stmt, err := p.readUntil(tokStmtEnd, tagStart)
			if err != nil {
				return "", err
			}
			if name, _ := splitNameArgs(stmt); name == end {
				text := string(l.src[start:tagStart])
				if trim {
					text = strings.TrimRight(text, " \t\r\n")
				}
				return text, nil
			}
			l.trimNext = false
			continue
		}
		l.i++
	}
	return "", p.errorf(pos, "unclosed tag, expected {%% %s %%}", end)
}

func (p *parser) parseSet(args string, pos int) (*SetNode, error) {
	i := strings.IndexByte(args, '=')
	if i < 0 {
		return nil, p.errorf(pos, "invalid set statement, expected '=': %q", args)
	}
	name := strings.TrimSpace(args[:i])
	src := strings.TrimSpace(args[i+1:])
	if name == "" || src == "" {
		return nil, p.errorf(pos, "invalid set statement, name or expr empty")
	}
	x, err := p.compile(src, pos)
	if err != nil {
		return nil, err
	}
	return &SetNode{Name: name, Expr: x}, nil
}

func (p *parser) parseIf(cond string, pos int) (*IfNode, error) {
	x, err := p.compile(cond, pos)
	if err != nil {
		return nil, err
	}
	n := &IfNode{Cond: x}
	ends := map[string]bool{"elif": true, "else": true, "endif": true}
	body, endTag, endArgs, err := p.parseNodes(ends, false)
	if err != nil {
		return nil, err
	}
	n.Then = body
	for endTag == "elif" {
		cx, err := p.compile(endArgs, pos)
		if err != nil {
			return nil, err
		}
		branch := ElifBranch{Cond: cx}
		branch.Body, endTag, endArgs, err = p.parseNodes(ends, false)
		if err != nil {
			return nil, err
		}
		n.Elifs = append(n.Elifs, branch)
	}
	if endTag == "else" {
		n.Else, _, _, err = p.parseNodes(map[string]bool{"endif": true}, false)
		if err != nil {
			return nil, err
		}
	}
	return n, nil
}

func (p *parser) parseFor(args string, pos int) (*ForNode, error) {
	parts := strings.SplitN(args, " in ", 2)
	if len(parts) != 2 {
		return nil, p.errorf(pos, "invalid for statement, expected 'target in iterable': %q", args)
	}
	n := &ForNode{}
	for _, t := range strings.Split(parts[0], ",") {
		t = strings.TrimSpace(t)
		if t == "" {
			return nil, p.errorf(pos, "invalid for statement, empty target")
		}
		n.Targets = append(n.Targets, t)
	}
	iterable := strings.TrimSpace(parts[1])
	if rest, ok := strings.CutSuffix(iterable, " reversed"); ok {
		n.Reversed = true
		iterable = strings.TrimSpace(rest)
	}
	x, err := p.compile(iterable, pos)
	if err != nil {
		return nil, err
	}
	n.Iterable = x
	body, endTag, _, err := p.parseNodes(map[string]bool{"empty": true, "else": true, "endfor": true}, false)
	if err != nil {
		return nil, err
	}
	n.Body = body
	if endTag != "endfor" {
		n.Else, _, _, err = p.parseNodes(map[string]bool{"endfor": true}, false)
		if err != nil {
			return nil, err
		}
	}
	return n, nil
}

func (p *parser) parseBlock(args string, pos int) (*BlockNode, error) {
	name := strings.TrimSpace(args)
	if name == "" || strings.ContainsAny(name, " \t") {
		return nil, p.errorf(pos, "block requires exactly one name")
	}
	if p.blocks[name] {
		return nil, p.errorf(pos, "block %q appears more than once", name)
	}
	p.blocks[name] = true
	body, _, endArgs, err := p.parseNodes(map[string]bool{"endblock": true}, false)
	if err != nil {
		return nil, err
	}
	if endName := strings.TrimSpace(endArgs); endName != "" && endName != name {
		return nil, p.errorf(pos, "endblock name %q does not match block name %q", endName, name)
	}
	return &BlockNode{Name: name, Line: p.l.line(pos), Body: body}, nil
}

func (p *parser) parseInclude(args string, pos int) (*IncludeNode, error) {
	ep, err := newExprParser(args)
	if err != nil {
		return nil, p.errorf(pos, "invalid include: %v", err)
	}
	line := p.l.line(pos)
	tx, err := ep.parseFiltered()
	if err != nil {
		return nil, p.errorf(pos, "invalid include: %v", err)
	}
	n := &IncludeNode{Template: ep.sub(tx, line)}
	if ep.isKeyword("with") {
		ep.pos++
		n.With, err = ep.parseBindings(line, false, "only")
		if err != nil {
			return nil, p.errorf(pos, "invalid include: %v", err)
		}
	}
	if ep.isKeyword("only") {
		ep.pos++
		n.Only = true
	}
	if !ep.done() {
		return nil, p.errorf(pos, "unexpected %q in include", ep.peek().val)
	}
	return n, nil
}

func (p *parser) parseWith(args string, pos int) (*WithNode, error) {
	ep, err := newExprParser(args)
	if err != nil {
		return nil, p.errorf(pos, "invalid with: %v", err)
	}
	bindings, err := ep.parseBindings(p.l.line(pos), true, "")
	if err != nil {
		return nil, p.errorf(pos, "invalid with: %v", err)
	}
	if len(bindings) == 0 {
		return nil, p.errorf(pos, "with expects at least one variable assignment")
	}
	body, _, _, err := p.parseNodes(map[string]bool{"endwith": true}, false)
	if err != nil {
		return nil, err
	}
	return &WithNode{Bindings: bindings, Body: body}, nil
}

func (p *parser) parseAutoescape(args string, pos int) (*AutoescapeNode, error) {
	var on bool
	switch strings.TrimSpace(args) {
	case "on", "true":
		on = true
	case "off", "false":
	default:
		return nil, p.errorf(pos, "autoescape argument should be 'on' or 'off'")
	}
	body, _, _, err := p.parseNodes(map[string]bool{"endautoescape": true}, false)
	if err != nil {
		return nil, err
	}
	return &AutoescapeNode{On: on, Body: body}, nil
}

func (n *ForNode) String() string {
	return fmt.Sprintf("%s in %s", strings.Join(n.Targets, ", "), n.Iterable.Source)
}
