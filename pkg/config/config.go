package config

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"slices"

	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"

	"github.com/neurodesk/blockrender/pkg/blockrender"
	"github.com/neurodesk/blockrender/pkg/dtl"
	"github.com/neurodesk/blockrender/pkg/netcache"
	"github.com/neurodesk/blockrender/pkg/starlark"
	v "github.com/neurodesk/blockrender/pkg/validator"
)

// BuiltinProcessors maps the names accepted in processors.builtin.
var BuiltinProcessors = map[string]dtl.ContextProcessor{
	"request": dtl.RequestProcessor,
}

type Config struct {
	TemplateDirs []string        `yaml:"template_dirs,omitempty"`
	Autoescape   *bool           `yaml:"autoescape,omitempty"`
	Language     string          `yaml:"language,omitempty"`
	Remote       *RemoteConfig   `yaml:"remote,omitempty"`
	Pongo2       *Pongo2Config   `yaml:"pongo2,omitempty"`
	Processors   ProcessorConfig `yaml:"processors,omitempty"`

	// dir is the directory relative paths are resolved against.
	dir string
}

type RemoteConfig struct {
	BaseURL  string `yaml:"base_url"`
	CacheDir string `yaml:"cache_dir"`
}

type Pongo2Config struct {
	TemplateDirs []string `yaml:"template_dirs"`
}

type ProcessorConfig struct {
	Builtin []string       `yaml:"builtin,omitempty"`
	Scripts []ScriptConfig `yaml:"scripts,omitempty"`
}

type ScriptConfig struct {
	Name string `yaml:"name"`
	Path string `yaml:"path"`
}

func (s ScriptConfig) Validate() error {
	return v.All(
		v.NotEmpty(s.Name, "name"),
		v.NotEmpty(s.Path, "path"),
	)
}

func (r *RemoteConfig) Validate() error {
	if r == nil {
		return nil
	}
	return v.All(
		v.NotEmpty(r.BaseURL, "remote.base_url"),
		v.HTTPURL(r.BaseURL, "remote.base_url"),
		v.NotEmpty(r.CacheDir, "remote.cache_dir"),
	)
}

func (p *Pongo2Config) Validate() error {
	if p == nil {
		return nil
	}
	return v.All(
		func() error {
			if len(p.TemplateDirs) == 0 {
				return fmt.Errorf("pongo2.template_dirs must not be empty")
			}
			return nil
		}(),
		v.NoDuplicates(p.TemplateDirs, "pongo2.template_dirs"),
	)
}

// Default returns the configuration used when no file is given: templates
// are read from ./templates with autoescaping on.
func Default() *Config {
	return &Config{TemplateDirs: []string{"templates"}, dir: "."}
}

// Load reads and validates the YAML file at path. Unknown keys are errors.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	cfg, err := Parse(bytes.NewReader(b))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	cfg.dir = filepath.Dir(path)
	return cfg, nil
}

// Parse decodes and validates a configuration. Relative paths resolve
// against the working directory.
func Parse(r io.Reader) (*Config, error) {
	cfg := &Config{dir: "."}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && err != io.EOF {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	names := make([]string, len(c.Processors.Scripts))
	for i, s := range c.Processors.Scripts {
		names[i] = s.Name
	}
	return v.All(
		v.NoDuplicates(c.TemplateDirs, "template_dirs"),
		v.Map(c.TemplateDirs, v.HasNoTemplateTags, "template_dirs"),
		func() error {
			if c.Language == "" {
				return nil
			}
			if _, err := language.Parse(c.Language); err != nil {
				return fmt.Errorf("language: %w", err)
			}
			return nil
		}(),
		c.Remote.Validate(),
		c.Pongo2.Validate(),
		v.SliceHasElements(c.Processors.Builtin, builtinNames(), "processors.builtin"),
		v.NoDuplicates(c.Processors.Builtin, "processors.builtin"),
		v.Each(c.Processors.Scripts, "processors.scripts"),
		v.NoDuplicates(names, "processors.scripts names"),
	)
}

func builtinNames() []string {
	return slices.Sorted(maps.Keys(BuiltinProcessors))
}

func (c *Config) resolve(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.dir, p)
}

// Setup is a configured set of engines and the renderer dispatching
// between them.
type Setup struct {
	Engine   *dtl.Engine
	Pongo    *blockrender.PongoBackend
	Renderer *blockrender.Renderer
}

// Build constructs the engines, loaders, processors and renderer described
// by c. Extra renderer options are applied last.
func (c *Config) Build(opts ...blockrender.Option) (*Setup, error) {
	var loaders dtl.ChainLoader
	for _, dir := range c.TemplateDirs {
		loaders = append(loaders, dtl.NewDirLoader(c.resolve(dir)))
	}
	if c.Remote != nil {
		loaders = append(loaders, netcache.NewLoader(c.Remote.BaseURL, c.resolve(c.Remote.CacheDir)))
	}

	var engineOpts []dtl.Option
	if c.Autoescape != nil {
		engineOpts = append(engineOpts, dtl.WithAutoescape(*c.Autoescape))
	}
	if c.Language != "" {
		tag, err := language.Parse(c.Language)
		if err != nil {
			return nil, fmt.Errorf("language: %w", err)
		}
		engineOpts = append(engineOpts, dtl.WithLanguage(tag))
	}
	s := &Setup{Engine: dtl.NewEngine(loaders, engineOpts...)}

	ropts := []blockrender.Option{blockrender.WithBackend(blockrender.NewEngineBackend(s.Engine))}
	if c.Pongo2 != nil {
		dirs := make([]string, len(c.Pongo2.TemplateDirs))
		for i, d := range c.Pongo2.TemplateDirs {
			dirs[i] = c.resolve(d)
			if err := v.IsDir(dirs[i], fmt.Sprintf("pongo2.template_dirs[%d]", i)); err != nil {
				return nil, err
			}
		}
		pb, err := blockrender.NewPongoDirBackend(dirs...)
		if err != nil {
			return nil, fmt.Errorf("pongo2: %w", err)
		}
		s.Pongo = pb
		ropts = append(ropts, blockrender.WithBackend(pb))
	}

	for _, name := range c.Processors.Builtin {
		ropts = append(ropts, blockrender.WithContextProcessors(BuiltinProcessors[name]))
	}
	for _, script := range c.Processors.Scripts {
		path := c.resolve(script.Path)
		if err := v.IsFile(path, "processor "+script.Name); err != nil {
			return nil, err
		}
		proc, err := starlark.LoadProcessor(path, nil)
		if err != nil {
			return nil, fmt.Errorf("processor %s: %w", script.Name, err)
		}
		slog.Debug("loaded context processor", "name", script.Name, "path", script.Path)
		ropts = append(ropts, blockrender.WithContextProcessors(proc))
	}

	s.Renderer = blockrender.New(append(ropts, opts...)...)
	return s, nil
}
