package blockrender

import (
	"errors"
	"fmt"

	"github.com/flosch/pongo2/v6"

	"github.com/neurodesk/blockrender/pkg/dtl"
)

// PongoBackend serves templates from a pongo2 template set.
type PongoBackend struct {
	Set *pongo2.TemplateSet
}

func NewPongoBackend(set *pongo2.TemplateSet) *PongoBackend {
	return &PongoBackend{Set: set}
}

// NewPongoDirBackend builds a template set searching dirs in order.
func NewPongoDirBackend(dirs ...string) (*PongoBackend, error) {
	if len(dirs) == 0 {
		return nil, errors.New("pongo2 backend requires at least one template directory")
	}
	loaders := make([]pongo2.TemplateLoader, 0, len(dirs))
	for _, dir := range dirs {
		l, err := pongo2.NewLocalFileSystemLoader(dir)
		if err != nil {
			return nil, fmt.Errorf("pongo2 loader for %s: %w", dir, err)
		}
		loaders = append(loaders, l)
	}
	return &PongoBackend{Set: pongo2.NewSet("blockrender", loaders...)}, nil
}

func (b *PongoBackend) Name() string { return "pongo2" }

func (b *PongoBackend) GetTemplate(name string) (Template, error) {
	tpl, err := b.Set.FromCache(name)
	if err != nil {
		return nil, pongoError(name, err)
	}
	return &PongoTemplate{Name: name, Template: tpl}, nil
}

// pongoError maps pongo2 load and compile errors onto the dtl error
// taxonomy.
func pongoError(name string, err error) error {
	var perr *pongo2.Error
	if !errors.As(err, &perr) {
		return err
	}
	if perr.Sender == "fromfile" {
		return &dtl.TemplateNotFoundError{Name: name, Err: err}
	}
	msg := err.Error()
	if perr.OrigError != nil {
		msg = perr.OrigError.Error()
	}
	return &dtl.TemplateSyntaxError{Template: name, Line: perr.Line, Message: msg, Err: err}
}

// PongoTemplate is a compiled pongo2 template.
type PongoTemplate struct {
	Name     string
	Template *pongo2.Template
}

func (t *PongoTemplate) TemplateName() string { return t.Name }

// renderPongoBlock renders a block declared directly in t. Blocks that only
// an ancestor declares are not found.
func renderPongoBlock(t *PongoTemplate, name string, ctx *dtl.Context) (string, error) {
	data := pongo2.Context{}
	for k, v := range ctx.Flatten() {
		data[k] = dtl.ToGo(v)
	}
	out, err := t.Template.ExecuteBlocks(data, []string{name})
	if err != nil {
		return "", fmt.Errorf("rendering block %s of %s: %w", name, t.Name, err)
	}
	s, ok := out[name]
	if !ok {
		return "", &BlockNotFoundError{Block: name, Template: t.Name}
	}
	return s, nil
}
