// Package schema checks decoded JSON outcomes against a JSON Schema document.
package schema

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/abdul-hamid-achik/hitfetch/packages/http"
	"github.com/pkg/errors"
	"github.com/xeipuuv/gojsonschema"
)

// Result lists schema violations; it is valid when Errors is empty.
type Result struct {
	Errors []string
}

func (r *Result) Valid() bool {
	return len(r.Errors) == 0
}

func (r *Result) String() string {
	if r.Valid() {
		return "valid"
	}
	return "schema validation failed: " + strings.Join(r.Errors, "; ")
}

// Schema is a compiled JSON Schema, reusable across outcomes.
type Schema struct {
	schema *gojsonschema.Schema
	source string
}

// Compile parses a schema document.
func Compile(data []byte) (*Schema, error) {
	s, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(data))
	if err != nil {
		return nil, errors.Wrap(err, "compiling schema")
	}
	return &Schema{schema: s}, nil
}

// Load reads and compiles a schema file. Relative paths are resolved against
// baseDir and must not leave it.
func Load(path, baseDir string) (*Schema, error) {
	if !filepath.IsAbs(path) && baseDir != "" {
		path = filepath.Join(baseDir, path)
	}
	if err := http.ValidatePathWithinBase(path, baseDir); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read schema file")
	}
	s, err := Compile(data)
	if err != nil {
		return nil, errors.Wrapf(err, "%s", path)
	}
	s.source = path
	return s, nil
}

// Check validates raw JSON bytes.
func (s *Schema) Check(document []byte) (*Result, error) {
	res, err := s.schema.Validate(gojsonschema.NewBytesLoader(document))
	if err != nil {
		return nil, errors.Wrap(err, "schema validation error")
	}

	out := &Result{}
	for _, desc := range res.Errors() {
		out.Errors = append(out.Errors, desc.String())
	}
	return out, nil
}

// CheckOutcome validates the body of a JSON outcome.
func (s *Schema) CheckOutcome(o *http.Outcome) (*Result, error) {
	if o.Kind != http.OutcomeJSON {
		return nil, fmt.Errorf("expected a JSON outcome, got %s", o.Kind)
	}
	return s.Check(o.Raw)
}
