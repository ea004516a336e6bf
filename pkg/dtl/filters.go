package dtl

import (
	"errors"
	"fmt"
	"html"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// FilterFunc transforms in using optional arguments. The context gives
// access to ambient state such as the active language.
type FilterFunc func(ctx *Context, in Value, args []Value) (Value, error)

// Filters is a registry of filter functions.
type Filters map[string]FilterFunc

var (
	strictPolicy = bluemonday.StrictPolicy()
	ugcPolicy    = bluemonday.UGCPolicy()
)

// DefaultFilters provides the filters available to every template.
func DefaultFilters() Filters {
	return Filters{
		"upper": stringFilter(strings.ToUpper),
		"lower": stringFilter(strings.ToLower),
		"trim":  stringFilter(strings.TrimSpace),
		"capfirst": stringFilter(func(s string) string {
			r, size := utf8.DecodeRuneInString(s)
			if size == 0 {
				return s
			}
			return string(unicode.ToUpper(r)) + s[size:]
		}),
		"title": func(ctx *Context, in Value, _ []Value) (Value, error) {
			return StringValue(cases.Title(ctx.Language).String(in.String())), nil
		},
		"striptags": func(_ *Context, in Value, _ []Value) (Value, error) {
			return StringValue(html.UnescapeString(strictPolicy.Sanitize(in.String()))), nil
		},
		"escape": func(_ *Context, in Value, _ []Value) (Value, error) {
			if isSafe(in) {
				return in, nil
			}
			return SafeString(html.EscapeString(in.String())), nil
		},
		"safe": func(_ *Context, in Value, _ []Value) (Value, error) {
			return SafeString(in.String()), nil
		},
		"default": func(_ *Context, in Value, args []Value) (Value, error) {
			if err := wantArgs(args, 1); err != nil {
				return nil, err
			}
			if in.Truth() {
				return in, nil
			}
			return args[0], nil
		},
		"default_if_none": func(_ *Context, in Value, args []Value) (Value, error) {
			if err := wantArgs(args, 1); err != nil {
				return nil, err
			}
			if _, ok := in.(NoneValue); ok {
				return args[0], nil
			}
			return in, nil
		},
		"join": func(_ *Context, in Value, args []Value) (Value, error) {
			sep := ","
			if len(args) > 0 {
				sep = args[0].String()
			}
			items, err := iterateValue(in)
			if err != nil {
				return StringValue(in.String()), nil
			}
			parts := make([]string, len(items))
			for i, it := range items {
				parts[i] = it.String()
			}
			return StringValue(strings.Join(parts, sep)), nil
		},
		"length": func(_ *Context, in Value, _ []Value) (Value, error) {
			switch t := in.(type) {
			case ListValue:
				return IntValue(len(t)), nil
			case DictValue:
				return IntValue(len(t)), nil
			case StringValue, SafeString:
				return IntValue(utf8.RuneCountInString(t.String())), nil
			}
			return IntValue(0), nil
		},
		"first": func(_ *Context, in Value, _ []Value) (Value, error) {
			items, err := iterateValue(in)
			if err != nil || len(items) == 0 {
				return NoneValue{}, nil
			}
			return items[0], nil
		},
		"last": func(_ *Context, in Value, _ []Value) (Value, error) {
			items, err := iterateValue(in)
			if err != nil || len(items) == 0 {
				return NoneValue{}, nil
			}
			return items[len(items)-1], nil
		},
		"add": func(_ *Context, in Value, args []Value) (Value, error) {
			if err := wantArgs(args, 1); err != nil {
				return nil, err
			}
			_, inFloat := in.(FloatValue)
			_, argFloat := args[0].(FloatValue)
			if a, ok := toInt(in); ok && !inFloat && !argFloat {
				if b, ok := toInt(args[0]); ok {
					return IntValue(a + b), nil
				}
			}
			if a, ok := in.(ListValue); ok {
				if b, ok := args[0].(ListValue); ok {
					return append(append(ListValue{}, a...), b...), nil
				}
			}
			an, _, aok := toNumber(in)
			bn, _, bok := toNumber(args[0])
			if aok && bok {
				return FloatValue(an + bn), nil
			}
			return StringValue(in.String() + args[0].String()), nil
		},
		"cut": func(_ *Context, in Value, args []Value) (Value, error) {
			if err := wantArgs(args, 1); err != nil {
				return nil, err
			}
			return StringValue(strings.ReplaceAll(in.String(), args[0].String(), "")), nil
		},
	}
}

// errArgCount marks a filter called with the wrong number of arguments.
var errArgCount = errors.New("wrong number of arguments")

func wantArgs(args []Value, n int) error {
	if len(args) != n {
		return fmt.Errorf("%w: requires %d, got %d", errArgCount, n, len(args))
	}
	return nil
}

func stringFilter(fn func(string) string) FilterFunc {
	return func(_ *Context, in Value, _ []Value) (Value, error) {
		return StringValue(fn(in.String())), nil
	}
}

// HumanizeFilters is the "humanize" library: locale aware number formatting.
func HumanizeFilters() Filters {
	return Filters{
		"intcomma": func(ctx *Context, in Value, _ []Value) (Value, error) {
			tag := ctx.Language
			if tag == language.Und {
				tag = language.English
			}
			p := message.NewPrinter(tag)
			switch t := in.(type) {
			case IntValue:
				return StringValue(p.Sprintf("%d", int64(t))), nil
			case FloatValue:
				return StringValue(p.Sprintf("%.2f", float64(t))), nil
			}
			if n, ok := toInt(in); ok {
				return StringValue(p.Sprintf("%d", n)), nil
			}
			return in, nil
		},
		"ordinal": func(_ *Context, in Value, _ []Value) (Value, error) {
			n, ok := toInt(in)
			if !ok {
				return in, nil
			}
			suffix := "th"
			if n%100 < 11 || n%100 > 13 {
				switch n % 10 {
				case 1:
					suffix = "st"
				case 2:
					suffix = "nd"
				case 3:
					suffix = "rd"
				}
			}
			return StringValue(fmt.Sprintf("%d%s", n, suffix)), nil
		},
	}
}

// HTMLFilters is the "html" library: user generated content sanitising.
func HTMLFilters() Filters {
	return Filters{
		"sanitize": func(_ *Context, in Value, _ []Value) (Value, error) {
			return SafeString(ugcPolicy.Sanitize(in.String())), nil
		},
	}
}

// DefaultLibraries returns the libraries loadable with {% load %}.
func DefaultLibraries() map[string]Filters {
	return map[string]Filters{
		"humanize": HumanizeFilters(),
		"html":     HTMLFilters(),
	}
}
