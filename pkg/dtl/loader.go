package dtl

import (
	"errors"
	"io/fs"
	"os"
	"path"
	"strings"
)

type Loader interface {
	Load(name string) (string, error)
}

type MemoryLoader map[string]string

func (m MemoryLoader) Load(name string) (string, error) {
	if s, ok := m[name]; ok {
		return s, nil
	}
	return "", &TemplateNotFoundError{Name: name}
}

// FSLoader loads templates from a file system.
type FSLoader struct {
	FS fs.FS
}

func NewFSLoader(fsys fs.FS) *FSLoader { return &FSLoader{FS: fsys} }

// NewDirLoader loads templates below dir.
func NewDirLoader(dir string) *FSLoader { return &FSLoader{FS: os.DirFS(dir)} }

func (l *FSLoader) Load(name string) (string, error) {
	p := path.Clean(strings.TrimPrefix(name, "/"))
	if !fs.ValidPath(p) {
		return "", &TemplateNotFoundError{Name: name, Err: fs.ErrInvalid}
	}
	b, err := fs.ReadFile(l.FS, p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", &TemplateNotFoundError{Name: name, Err: err}
		}
		return "", err
	}
	return string(b), nil
}

// ChainLoader tries each loader in order. The first one that has the
// template wins; errors other than a missing template stop the search.
type ChainLoader []Loader

func (c ChainLoader) Load(name string) (string, error) {
	for _, l := range c {
		src, err := l.Load(name)
		if err == nil {
			return src, nil
		}
		if !errors.Is(err, ErrTemplateNotFound) {
			return "", err
		}
	}
	return "", &TemplateNotFoundError{Name: name}
}
