package starlark

import (
	"fmt"
	"net/http"

	"go.starlark.net/starlark"

	"github.com/neurodesk/blockrender/pkg/dtl"
)

// LoadProcessor executes a script that defines process(request) and
// returns it as a context processor. The request is passed as a dict with
// the keys method, path, host, query, headers and remote_addr; process
// must return a dict whose string keys become template variables.
//
// The script's globals are frozen after loading, so the processor may run
// concurrently.
func LoadProcessor(filename string, src any) (dtl.ContextProcessor, error) {
	e := NewEvaluator()
	globals, err := e.ExecFile(filename, src)
	if err != nil {
		return nil, err
	}
	fn, ok := globals["process"].(starlark.Callable)
	if !ok {
		return nil, fmt.Errorf("%s: script must define process(request)", filename)
	}
	globals.Freeze()

	return func(req *http.Request) (map[string]any, error) {
		reqVars, err := dtl.RequestProcessor(req)
		if err != nil {
			return nil, err
		}
		arg := ConvertToStarlark(dtl.FromGo(reqVars["request"]))
		out, err := starlark.Call(newThread(filename), fn, starlark.Tuple{arg}, nil)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", filename, err)
		}
		dict, ok := out.(*starlark.Dict)
		if !ok {
			return nil, fmt.Errorf("%s: process must return a dict, got %s", filename, out.Type())
		}
		vars := make(map[string]any, dict.Len())
		for _, item := range dict.Items() {
			key, ok := item[0].(starlark.String)
			if !ok {
				return nil, fmt.Errorf("%s: process returned non-string key %s", filename, item[0])
			}
			vars[string(key)] = ConvertFromStarlark(item[1])
		}
		return vars, nil
	}, nil
}
