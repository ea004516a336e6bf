package blockrender

import (
	"errors"
	"fmt"
)

var (
	// ErrBlockNotFound is matched by every BlockNotFoundError.
	ErrBlockNotFound = errors.New("block not found")
	// ErrUnsupportedEngine is matched by every UnsupportedEngineError.
	ErrUnsupportedEngine = errors.New("unsupported template engine")
)

// BlockNotFoundError reports that no template in an inheritance chain
// defines the requested block.
type BlockNotFoundError struct {
	Block    string
	Template string
}

func (e *BlockNotFoundError) Error() string {
	return fmt.Sprintf("block with name %q does not exist in template %q", e.Block, e.Template)
}

func (e *BlockNotFoundError) Is(target error) bool { return target == ErrBlockNotFound }

// UnsupportedEngineError reports a template produced by an engine that
// cannot render single blocks.
type UnsupportedEngineError struct {
	Engine string
}

func (e *UnsupportedEngineError) Error() string {
	return fmt.Sprintf("can only render blocks from dtl or pongo2 templates, got %s", e.Engine)
}

func (e *UnsupportedEngineError) Is(target error) bool { return target == ErrUnsupportedEngine }
