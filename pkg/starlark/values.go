package starlark

import (
	"fmt"

	"go.starlark.net/starlark"

	"github.com/neurodesk/blockrender/pkg/dtl"
)

// ConvertToStarlark converts a template Value to a Starlark value
func ConvertToStarlark(val dtl.Value) starlark.Value {
	if val == nil {
		return starlark.None
	}

	switch v := val.(type) {
	case dtl.StringValue:
		return starlark.String(string(v))
	case dtl.SafeString:
		return starlark.String(string(v))
	case dtl.IntValue:
		return starlark.MakeInt64(int64(v))
	case dtl.FloatValue:
		return starlark.Float(float64(v))
	case dtl.BoolValue:
		return starlark.Bool(bool(v))
	case dtl.ListValue:
		items := make([]starlark.Value, len(v))
		for i, item := range v {
			items[i] = ConvertToStarlark(item)
		}
		return starlark.NewList(items)
	case dtl.DictValue:
		dict := starlark.NewDict(len(v))
		for _, key := range v.Keys() {
			_ = dict.SetKey(starlark.String(key), ConvertToStarlark(v[key]))
		}
		return dict
	case dtl.NoneValue:
		return starlark.None
	default:
		return starlark.String(val.String())
	}
}

// ConvertFromStarlark converts a Starlark value to a template Value.
// Callables become template functions running on their own thread.
func ConvertFromStarlark(val starlark.Value) dtl.Value {
	if val == nil || val == starlark.None {
		return dtl.NoneValue{}
	}

	switch v := val.(type) {
	case starlark.String:
		return dtl.StringValue(string(v))
	case starlark.Int:
		if i, ok := v.Int64(); ok {
			return dtl.IntValue(i)
		}
		// For very large integers, convert to string
		return dtl.StringValue(v.String())
	case starlark.Float:
		return dtl.FloatValue(float64(v))
	case starlark.Bool:
		return dtl.BoolValue(bool(v))
	case *starlark.List:
		items := make(dtl.ListValue, v.Len())
		for i := 0; i < v.Len(); i++ {
			items[i] = ConvertFromStarlark(v.Index(i))
		}
		return items
	case starlark.Tuple:
		items := make(dtl.ListValue, len(v))
		for i, item := range v {
			items[i] = ConvertFromStarlark(item)
		}
		return items
	case *starlark.Dict:
		dict := make(dtl.DictValue)
		for _, item := range v.Items() {
			if keyStr, ok := item[0].(starlark.String); ok {
				dict[string(keyStr)] = ConvertFromStarlark(item[1])
			} else {
				dict[item[0].String()] = ConvertFromStarlark(item[1])
			}
		}
		return dict
	case starlark.Callable:
		return dtl.CallableValue{Fn: func(args []dtl.Value) (dtl.Value, error) {
			sargs := make(starlark.Tuple, len(args))
			for i, a := range args {
				sargs[i] = ConvertToStarlark(a)
			}
			thread := newThread(v.Name())
			out, err := starlark.Call(thread, v, sargs, nil)
			if err != nil {
				return nil, fmt.Errorf("calling %s: %w", v.Name(), err)
			}
			return ConvertFromStarlark(out), nil
		}}
	default:
		return dtl.StringValue(val.String())
	}
}
