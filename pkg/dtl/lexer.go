package dtl

import (
	"sort"
	"strings"
)

// The lexer scans template source and yields tokens for text and the three
// delimiter forms: variables {{ }}, statements {% %}, and comments {# #}.
// A '-' just inside a delimiter strips the whitespace on that side.

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokText
	tokVarStart  // {{ or {{-
	tokVarEnd    // }} or -}}
	tokStmtStart // {% or {%-
	tokStmtEnd   // %} or -%}
	tokCommStart // {# or {#-
	tokCommEnd   // #} or -#}
	tokContent   // content inside a tag (parser requests it)
)

type token struct {
	kind tokenKind
	val  string
	pos  int // byte offset in source
}

type lexer struct {
	src      []byte
	i        int
	n        int
	trimNext bool
	lines    []int // offsets of '\n'
}

func newLexer(src []byte) *lexer {
	l := &lexer{src: src, n: len(src)}
	for i, b := range src {
		if b == '\n' {
			l.lines = append(l.lines, i)
		}
	}
	return l
}

// line returns the 1-based line number of a byte offset.
func (l *lexer) line(pos int) int {
	return sort.SearchInts(l.lines, pos) + 1
}

func (l *lexer) startsWith(s string) bool {
	return l.i+len(s) <= l.n && string(l.src[l.i:l.i+len(s)]) == s
}

// text builds a text token, applying pending and upcoming whitespace trims.
func (l *lexer) text(start, end int, trimRight bool) token {
	s := string(l.src[start:end])
	if l.trimNext {
		s = strings.TrimLeft(s, " \t\r\n")
		l.trimNext = false
	}
	if trimRight {
		s = strings.TrimRight(s, " \t\r\n")
	}
	return token{kind: tokText, val: s, pos: start}
}

// nextTokenOutside scans in normal text context and emits either a text token
// up to the next opening delimiter, or an opening delimiter token, or EOF.
func (l *lexer) nextTokenOutside() token {
	if l.i >= l.n {
		return token{kind: tokEOF, pos: l.i}
	}
	start := l.i
	for l.i < l.n {
		if l.i+2 <= l.n {
			var kind tokenKind
			switch string(l.src[l.i : l.i+2]) {
			case "{{":
				kind = tokVarStart
			case "{%":
				kind = tokStmtStart
			case "{#":
				kind = tokCommStart
			}
			if kind != tokEOF {
				trim := l.i+2 < l.n && l.src[l.i+2] == '-'
				if l.i > start {
					return l.text(start, l.i, trim)
				}
				l.trimNext = false
				l.i += 2
				if trim {
					l.i++
				}
				return token{kind: kind, pos: start}
			}
		}
		l.i++
	}
	return l.text(start, l.n, false)
}

// nextTokenInside scans inside a tag of the given closing kind, returning
// either tokContent chunks or the appropriate closing token.
func (l *lexer) nextTokenInside(close tokenKind) token {
	if l.i >= l.n {
		return token{kind: tokEOF, pos: l.i}
	}
	var delim string
	switch close {
	case tokVarEnd:
		delim = "}}"
	case tokStmtEnd:
		delim = "%}"
	case tokCommEnd:
		delim = "#}"
	}
	start := l.i
	inStr := byte(0)
	for l.i < l.n {
		c := l.src[l.i]
		// Quoted strings may contain closing delimiters; comments have no strings.
		if close != tokCommEnd {
			if inStr != 0 {
				if c == inStr {
					inStr = 0
				}
				l.i++
				continue
			}
			if c == '"' || c == '\'' {
				inStr = c
				l.i++
				continue
			}
		}
		trim := l.startsWith("-" + delim)
		if trim || l.startsWith(delim) {
			if l.i > start {
				return token{kind: tokContent, val: string(l.src[start:l.i]), pos: start}
			}
			l.i += len(delim)
			if trim {
				l.i++
				l.trimNext = true
			}
			return token{kind: close, pos: start}
		}
		l.i++
	}
	// Unterminated tag; return remaining content then EOF.
	return token{kind: tokContent, val: string(l.src[start:l.n]), pos: start}
}
