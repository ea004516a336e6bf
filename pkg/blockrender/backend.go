package blockrender

import (
	"github.com/neurodesk/blockrender/pkg/dtl"
)

// Template is a template resolved by a Backend. Its concrete type selects
// how blocks are rendered: *dtl.Template gets full inheritance support,
// *PongoTemplate direct block lookup; any other type is unsupported.
type Template interface {
	TemplateName() string
}

// Backend resolves template names to templates. A missing template must be
// reported with an error matching dtl.ErrTemplateNotFound so the next
// backend or name can be tried.
type Backend interface {
	Name() string
	GetTemplate(name string) (Template, error)
}

// EngineBackend serves templates from a dtl engine.
type EngineBackend struct {
	Engine *dtl.Engine
}

func NewEngineBackend(engine *dtl.Engine) *EngineBackend {
	return &EngineBackend{Engine: engine}
}

func (b *EngineBackend) Name() string { return "dtl" }

func (b *EngineBackend) GetTemplate(name string) (Template, error) {
	t, err := b.Engine.GetTemplate(name)
	if err != nil {
		return nil, err
	}
	return t, nil
}
