package dtl

import (
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"
)

// Value is an abstract value used by the evaluator, inspired by Starlark.
// It defines string conversion and truthiness semantics.
type Value interface {
	String() string
	Truth() bool
}

// LookupHook can be optionally implemented by Value containers to resolve
// attribute/key lookups performed by the evaluator.
type LookupHook interface {
	OnLookup(key string) (Value, bool)
}

// AttrGetter is implemented by values whose attributes are computed and
// may fail, such as block.super.
type AttrGetter interface {
	Attr(name string) (Value, error)
}

// CallableValue wraps a callable function that can be invoked from templates.
type CallableValue struct {
	Fn func(args []Value) (Value, error)
}

func (c CallableValue) String() string { return "<function>" }
func (c CallableValue) Truth() bool    { return true }

// NoneValue represents the absence of a value.
type NoneValue struct{}

func (NoneValue) String() string { return "" }
func (NoneValue) Truth() bool    { return false }

// BoolValue wraps a boolean.
type BoolValue bool

func (b BoolValue) String() string {
	if b {
		return "True"
	}
	return "False"
}
func (b BoolValue) Truth() bool { return bool(b) }

// IntValue wraps an integer (64-bit).
type IntValue int64

func (i IntValue) String() string { return strconv.FormatInt(int64(i), 10) }
func (i IntValue) Truth() bool    { return int64(i) != 0 }

// FloatValue wraps a float (64-bit).
type FloatValue float64

func (f FloatValue) String() string { return strconv.FormatFloat(float64(f), 'f', -1, 64) }
func (f FloatValue) Truth() bool    { return float64(f) != 0 }

// StringValue wraps a string.
type StringValue string

func (s StringValue) String() string { return string(s) }
func (s StringValue) Truth() bool    { return len(string(s)) > 0 }

// SafeString is a string that is never HTML escaped on output.
type SafeString string

func (s SafeString) String() string { return string(s) }
func (s SafeString) Truth() bool    { return len(string(s)) > 0 }

// ListValue wraps a list of values.
type ListValue []Value

func (l ListValue) String() string {
	parts := make([]string, len(l))
	for i, v := range l {
		parts[i] = v.String()
	}
	return strings.Join(parts, " ")
}
func (l ListValue) Truth() bool { return len(l) > 0 }

// DictValue wraps a string-keyed dictionary of values.
type DictValue map[string]Value

func (d DictValue) String() string { return "{...}" }
func (d DictValue) Truth() bool    { return len(d) > 0 }

// Keys returns the dictionary keys in sorted order.
func (d DictValue) Keys() []string {
	keys := make([]string, 0, len(d))
	for k := range d {
		keys = append(keys, k)
	}
	return sortedStrings(keys)
}

func sortedStrings(s []string) []string {
	sort.Strings(s)
	return s
}

// FromGo converts a Go value to a Value. Structs become dictionaries of
// their exported fields.
func FromGo(v any) Value {
	if v == nil {
		return NoneValue{}
	}
	switch t := v.(type) {
	case Value:
		return t
	case string:
		return StringValue(t)
	case bool:
		return BoolValue(t)
	case int:
		return IntValue(int64(t))
	case int32:
		return IntValue(int64(t))
	case int64:
		return IntValue(t)
	case uint:
		return IntValue(int64(t))
	case uint32:
		return IntValue(int64(t))
	case uint64:
		return IntValue(int64(t))
	case float32:
		return FloatValue(float64(t))
	case float64:
		return FloatValue(t)
	case []byte:
		return StringValue(string(t))
	case fmt.Stringer:
		return StringValue(t.String())
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		n := rv.Len()
		out := make(ListValue, 0, n)
		for i := 0; i < n; i++ {
			out = append(out, FromGo(rv.Index(i).Interface()))
		}
		return out
	case reflect.Map:
		if rv.Type().Key().Kind() == reflect.String {
			out := DictValue{}
			it := rv.MapRange()
			for it.Next() {
				out[it.Key().String()] = FromGo(it.Value().Interface())
			}
			return out
		}
	case reflect.Struct:
		out := DictValue{}
		rt := rv.Type()
		for i := 0; i < rt.NumField(); i++ {
			if f := rt.Field(i); f.IsExported() {
				out[f.Name] = FromGo(rv.Field(i).Interface())
			}
		}
		return out
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return NoneValue{}
		}
		return FromGo(rv.Elem().Interface())
	case reflect.Int8, reflect.Int16:
		return IntValue(rv.Int())
	case reflect.Uint8, reflect.Uint16:
		return IntValue(int64(rv.Uint()))
	}
	return StringValue(fmt.Sprintf("%v", v))
}

// ToGo converts a Value back into plain Go data.
func ToGo(v Value) any {
	switch t := v.(type) {
	case nil, NoneValue:
		return nil
	case BoolValue:
		return bool(t)
	case IntValue:
		return int(t)
	case FloatValue:
		return float64(t)
	case StringValue:
		return string(t)
	case SafeString:
		return string(t)
	case ListValue:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = ToGo(e)
		}
		return out
	case DictValue:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = ToGo(e)
		}
		return out
	}
	return v
}

// iterateValue converts a Value into a []Value for iteration semantics.
// Dictionaries iterate over their sorted keys.
func iterateValue(v Value) ([]Value, error) {
	switch t := v.(type) {
	case NoneValue:
		return nil, nil
	case StringValue, SafeString:
		s := t.String()
		var out []Value
		for len(s) > 0 {
			r, size := utf8.DecodeRuneInString(s)
			s = s[size:]
			out = append(out, StringValue(string(r)))
		}
		return out, nil
	case ListValue:
		out := make([]Value, len(t))
		copy(out, t)
		return out, nil
	case DictValue:
		keys := t.Keys()
		out := make([]Value, len(keys))
		for i, k := range keys {
			out[i] = StringValue(k)
		}
		return out, nil
	}
	return nil, fmt.Errorf("not iterable: %T", v)
}

func isSafe(v Value) bool {
	_, ok := v.(SafeString)
	return ok
}

func toNumber(v Value) (float64, bool, bool) {
	switch t := v.(type) {
	case IntValue:
		return float64(t), true, true
	case FloatValue:
		return float64(t), false, true
	case BoolValue:
		if t {
			return 1, true, true
		}
		return 0, true, true
	}
	return 0, false, false
}

func toInt(v Value) (int64, bool) {
	switch t := v.(type) {
	case IntValue:
		return int64(t), true
	case FloatValue:
		return int64(t), true
	case StringValue, SafeString:
		n, err := strconv.ParseInt(strings.TrimSpace(t.String()), 10, 64)
		return n, err == nil
	}
	return 0, false
}
