package blockrender

import (
	"bytes"

	"github.com/neurodesk/blockrender/pkg/dtl"
)

// RenderBlock renders a located block in isolation. The render state of
// ctx is extended for the duration of the call and restored afterwards,
// so the same context can be rendered again with identical output.
func RenderBlock(loc *Located, ctx *dtl.Context) (string, error) {
	rc := ctx.RenderContext()
	pop := rc.Push(loc.Origin)
	defer pop()
	rc.SetBlockContext(loc.Blocks.Clone())

	if ctx.Template() == nil {
		restore := ctx.BindTemplate(loc.Origin)
		defer restore()
	}

	ctx.Push(nil)
	defer ctx.Pop()

	r := dtl.NewRenderer(loc.Origin.Engine())
	for _, n := range loc.Ambient {
		leave, err := r.Enter(n, ctx)
		if err != nil {
			return "", err
		}
		defer leave()
	}

	var buf bytes.Buffer
	if err := r.RenderBlock(&buf, loc.Block, ctx); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// RenderTemplateBlock locates name in tpl and renders it.
func RenderTemplateBlock(tpl *dtl.Template, name string, ctx *dtl.Context) (string, error) {
	loc, err := Locate(tpl, name, ctx)
	if err != nil {
		return "", err
	}
	return RenderBlock(loc, ctx)
}
