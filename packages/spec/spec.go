package spec

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/abdul-hamid-achik/hitfetch/packages/core/env"
	"github.com/abdul-hamid-achik/hitfetch/packages/http"
	"github.com/pkg/errors"
	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

// File is a declarative request description as written on disk.
type File struct {
	URL     string            `yaml:"url" json:"url"`
	Query   map[string]string `yaml:"query,omitempty" json:"query,omitempty"`
	Headers map[string]string `yaml:"headers,omitempty" json:"headers,omitempty"`

	Auth          string `yaml:"auth,omitempty" json:"auth,omitempty"`
	Authorization string `yaml:"authorization,omitempty" json:"authorization,omitempty"`
	UserAgent     string `yaml:"userAgent,omitempty" json:"userAgent,omitempty"`
	Referer       string `yaml:"referer,omitempty" json:"referer,omitempty"`
	Referrer      string `yaml:"referrer,omitempty" json:"referrer,omitempty"`

	JSON bool `yaml:"json,omitempty" json:"json,omitempty"`
	Text bool `yaml:"text,omitempty" json:"text,omitempty"`

	Body any    `yaml:"body,omitempty" json:"body,omitempty"`
	Form []Part `yaml:"form,omitempty" json:"form,omitempty"`

	Compression bool   `yaml:"compression,omitempty" json:"compression,omitempty"`
	Destination string `yaml:"destination,omitempty" json:"destination,omitempty"`

	// Loosely typed so that fractional, NaN and infinite values reach the
	// integer checks instead of failing to decode.
	Timeout any `yaml:"timeout,omitempty" json:"timeout,omitempty"`
	MaxSize any `yaml:"maxSize,omitempty" json:"maxSize,omitempty"`

	Environments map[string]map[string]any `yaml:"environments,omitempty" json:"environments,omitempty"`

	// Path is the file the description was read from, if any.
	Path string `yaml:"-" json:"-"`
}

// Part is one multipart field. Exactly one of Data and File should be set;
// File is read relative to the request file and must stay inside its directory.
type Part struct {
	Name     string `yaml:"name" json:"name"`
	Filename string `yaml:"filename,omitempty" json:"filename,omitempty"`
	Data     any    `yaml:"data,omitempty" json:"data,omitempty"`
	File     string `yaml:"file,omitempty" json:"file,omitempty"`
}

// Load reads a .yaml, .yml or .json request file. JSON files may contain
// comments and trailing commas.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "reading request file")
	}

	var f *File
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".jsonc":
		f, err = ParseJSON(data)
	default:
		f, err = ParseYAML(data)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "parsing %s", path)
	}
	f.Path = path
	return f, nil
}

func ParseYAML(data []byte) (*File, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, err
	}
	return &f, nil
}

func ParseJSON(data []byte) (*File, error) {
	var f File
	if err := json.Unmarshal(jsonc.ToJSON(data), &f); err != nil {
		return nil, err
	}
	return &f, nil
}

// Encode renders f as YAML.
func (f *File) Encode() ([]byte, error) {
	return yaml.Marshal(f)
}

// Variables returns the variables of the named environment declared in the file.
func (f *File) Variables(envName string) map[string]any {
	if envName == "" {
		return nil
	}
	return env.LoadEnvironment(envName, f.Environments).Variables
}

// Build interpolates placeholders with r and converts the description into a
// request config. Numeric shapes, form files and every other check are left to
// http.Validate so a file reports the same first error as an equivalent config.
func (f *File) Build(r *env.Resolver) http.RequestConfig {
	if r == nil {
		r = env.NewResolver()
	}

	cfg := http.RequestConfig{
		URL:           r.Resolve(f.URL),
		Query:         r.ResolveAll(f.Query),
		Headers:       r.ResolveAll(f.Headers),
		Auth:          r.Resolve(f.Auth),
		Authorization: r.Resolve(f.Authorization),
		UserAgent:     r.Resolve(f.UserAgent),
		Referer:       r.Resolve(f.Referer),
		Referrer:      r.Resolve(f.Referrer),
		JSON:          f.JSON,
		Text:          f.Text,
		Body:          r.ResolveValue(f.Body),
		Compression:   f.Compression,
		Destination:   r.Resolve(f.Destination),
		RawTimeout:    f.Timeout,
		RawMaxSize:    f.MaxSize,
	}

	for _, p := range f.Form {
		cfg.Form = append(cfg.Form, f.buildPart(p, r))
	}
	return cfg
}

func (f *File) baseDir() string {
	if f.Path == "" {
		return "."
	}
	return filepath.Dir(f.Path)
}

func (f *File) buildPart(p Part, r *env.Resolver) http.FormPart {
	part := http.FormPart{
		Name:     r.Resolve(p.Name),
		Filename: r.Resolve(p.Filename),
		Data:     r.ResolveValue(p.Data),
	}
	if p.File == "" {
		return part
	}

	base := f.baseDir()
	path := r.Resolve(p.File)
	if !filepath.IsAbs(path) {
		path = filepath.Join(base, path)
	}
	if part.Filename == "" {
		part.Filename = filepath.Base(path)
	}
	part.Load = func() ([]byte, error) {
		if err := http.ValidatePathWithinBase(path, base); err != nil {
			return nil, err
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrap(err, "reading form file")
		}
		return data, nil
	}
	return part
}
