// Package openapi converts the operations of an OpenAPI 3 document into
// request files.
package openapi

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/pkg/errors"

	"github.com/abdul-hamid-achik/hitfetch/packages/http"
	"github.com/abdul-hamid-achik/hitfetch/packages/spec"
)

// maxDocumentSize bounds documents fetched over HTTP.
const maxDocumentSize = 32 << 20

// Converter converts OpenAPI specs to request files
type Converter struct {
	baseURL     string
	includeTags []string
	excludeTags []string
	includeOnly []string // specific operation IDs
	client      *http.Client
}

// Option is a functional option for Converter
type Option func(*Converter)

// WithBaseURL sets a custom base URL, overriding the one from spec
func WithBaseURL(url string) Option {
	return func(c *Converter) {
		c.baseURL = url
	}
}

// WithTags filters operations by tags
func WithTags(tags []string) Option {
	return func(c *Converter) {
		c.includeTags = tags
	}
}

// WithExcludeTags excludes operations with these tags
func WithExcludeTags(tags []string) Option {
	return func(c *Converter) {
		c.excludeTags = tags
	}
}

// WithOperations filters to specific operation IDs
func WithOperations(ops []string) Option {
	return func(c *Converter) {
		c.includeOnly = ops
	}
}

// WithClient fetches remote documents through client.
func WithClient(client *http.Client) Option {
	return func(c *Converter) {
		c.client = client
	}
}

func NewConverter(opts ...Option) *Converter {
	c := &Converter{}
	for _, opt := range opts {
		opt(c)
	}
	if c.client == nil {
		c.client = http.NewClient()
	}
	return c
}

// Request is one converted operation.
type Request struct {
	Name string
	File *spec.File
}

// Result holds the converted operations and notes about what was skipped.
type Result struct {
	Title    string
	Version  string
	Requests []Request
	Warnings []string
}

// Load reads a document from a file path or an http(s) URL.
func (c *Converter) Load(ctx context.Context, location string) (*openapi3.T, error) {
	loader := openapi3.NewLoader()
	loader.Context = ctx
	loader.IsExternalRefsAllowed = true

	if !strings.HasPrefix(location, "http://") && !strings.HasPrefix(location, "https://") {
		doc, err := loader.LoadFromFile(location)
		return doc, errors.Wrap(err, "failed to load OpenAPI spec")
	}

	req := http.NewRequestConfig(location).
		SetHeader("Accept", "application/json, application/yaml;q=0.9, */*;q=0.8").
		SetMaxSize(maxDocumentSize)
	req.Compression = true

	outcome, err := c.client.Do(ctx, *req)
	if err != nil {
		return nil, errors.Wrapf(err, "fetching %s", location)
	}
	loc, err := url.Parse(outcome.URL)
	if err != nil {
		return nil, err
	}
	doc, err := loader.LoadFromDataWithPath(outcome.Raw, loc)
	return doc, errors.Wrap(err, "failed to load OpenAPI spec")
}

// ConvertFile loads and converts a document.
func (c *Converter) ConvertFile(ctx context.Context, location string) (*Result, error) {
	doc, err := c.Load(ctx, location)
	if err != nil {
		return nil, err
	}
	return c.Convert(ctx, doc), nil
}

// Convert turns every GET and POST operation into a request file. Other
// methods cannot be expressed and are reported as warnings.
func (c *Converter) Convert(ctx context.Context, doc *openapi3.T) *Result {
	result := &Result{}
	if err := doc.Validate(ctx); err != nil {
		result.Warnings = append(result.Warnings, fmt.Sprintf("OpenAPI spec validation: %v", err))
	}
	if doc.Info != nil {
		result.Title = doc.Info.Title
		result.Version = doc.Info.Version
	}

	baseURL := c.baseURL
	if baseURL == "" {
		baseURL = c.getBaseURL(doc)
	}
	baseURL = strings.TrimSuffix(baseURL, "/")

	if doc.Paths == nil {
		return result
	}

	paths := make([]string, 0, doc.Paths.Len())
	for path := range doc.Paths.Map() {
		paths = append(paths, path)
	}
	sort.Strings(paths)

	seen := make(map[string]int)
	for _, path := range paths {
		pathItem := doc.Paths.Value(path)
		if pathItem == nil {
			continue
		}

		for _, method := range []string{"GET", "POST", "PUT", "PATCH", "DELETE", "HEAD", "OPTIONS"} {
			op := pathItem.GetOperation(method)
			if op == nil || !c.shouldInclude(op) {
				continue
			}
			if method != "GET" && method != "POST" {
				result.Warnings = append(result.Warnings, fmt.Sprintf("skipped %s %s: only GET and POST requests can be described", method, path))
				continue
			}

			name := operationName(path, method, op)
			if n := seen[name]; n > 0 {
				seen[name]++
				name = fmt.Sprintf("%s_%d", name, n+1)
			} else {
				seen[name] = 1
			}

			f, warnings := c.convertOperation(baseURL, path, method, op, pathItem.Parameters)
			result.Requests = append(result.Requests, Request{Name: name, File: f})
			result.Warnings = append(result.Warnings, warnings...)
		}
	}

	return result
}

func (c *Converter) getBaseURL(doc *openapi3.T) string {
	if len(doc.Servers) > 0 && doc.Servers[0].URL != "" {
		return doc.Servers[0].URL
	}
	return "http://localhost:3000"
}

func (c *Converter) shouldInclude(op *openapi3.Operation) bool {
	if len(c.includeOnly) > 0 && !contains(c.includeOnly, op.OperationID) {
		return false
	}

	if len(c.includeTags) > 0 {
		found := false
		for _, tag := range op.Tags {
			if contains(c.includeTags, tag) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}

	for _, tag := range op.Tags {
		if contains(c.excludeTags, tag) {
			return false
		}
	}

	return true
}

func (c *Converter) convertOperation(baseURL, path, method string, op *openapi3.Operation, pathParams openapi3.Parameters) (*spec.File, []string) {
	var warnings []string
	f := &spec.File{}

	allParams := append(append(openapi3.Parameters{}, pathParams...), op.Parameters...)
	vars := make(map[string]any)
	for _, paramRef := range allParams {
		if paramRef == nil || paramRef.Value == nil {
			continue
		}
		param := paramRef.Value
		switch param.In {
		case openapi3.ParameterInPath:
			path = strings.ReplaceAll(path, "{"+param.Name+"}", "{{"+param.Name+"}}")
			vars[param.Name] = getParamExample(param)
		case openapi3.ParameterInQuery:
			if f.Query == nil {
				f.Query = make(map[string]string)
			}
			f.Query[param.Name] = getParamExample(param)
		case openapi3.ParameterInHeader:
			if f.Headers == nil {
				f.Headers = make(map[string]string)
			}
			f.Headers[param.Name] = getParamExample(param)
		}
	}
	f.URL = baseURL + path
	if len(vars) > 0 {
		f.Environments = map[string]map[string]any{"default": vars}
	}

	if method == "POST" {
		body, ok := requestBody(op.RequestBody)
		if !ok {
			warnings = append(warnings, fmt.Sprintf("%s %s has no JSON request body, an empty object is sent", method, path))
			body = map[string]any{}
		}
		f.Body = body
	}

	f.JSON = respondsWithJSON(op)
	return f, warnings
}

func operationName(path, method string, op *openapi3.Operation) string {
	if op.OperationID != "" {
		return sanitizeName(op.OperationID)
	}
	return sanitizeName(strings.ToLower(method) + "_" + path)
}

func requestBody(ref *openapi3.RequestBodyRef) (any, bool) {
	if ref == nil || ref.Value == nil {
		return nil, false
	}
	for contentType, mediaType := range ref.Value.Content {
		if !strings.Contains(contentType, "json") {
			continue
		}
		if mediaType.Example != nil {
			return mediaType.Example, true
		}
		if mediaType.Schema != nil {
			return exampleValue(mediaType.Schema.Value, 0), true
		}
	}
	return nil, false
}

func respondsWithJSON(op *openapi3.Operation) bool {
	if op.Responses == nil {
		return false
	}
	for code, respRef := range op.Responses.Map() {
		if !strings.HasPrefix(code, "2") || respRef == nil || respRef.Value == nil {
			continue
		}
		for contentType := range respRef.Value.Content {
			if strings.Contains(contentType, "json") {
				return true
			}
		}
	}
	return false
}

func getParamExample(param *openapi3.Parameter) string {
	if param.Example != nil {
		return fmt.Sprintf("%v", param.Example)
	}
	if param.Schema != nil && param.Schema.Value != nil {
		v := exampleValue(param.Schema.Value, 0)
		if _, composite := v.(map[string]any); !composite && v != nil {
			return fmt.Sprintf("%v", v)
		}
	}
	return "{{" + param.Name + "}}"
}

// exampleValue builds a JSON value that satisfies the shape of schema.
func exampleValue(schema *openapi3.Schema, depth int) any {
	if schema == nil || depth > 5 {
		return nil
	}
	if schema.Example != nil {
		return schema.Example
	}
	if len(schema.Enum) > 0 {
		return schema.Enum[0]
	}

	types := schema.Type.Slice()
	if len(types) == 0 {
		if len(schema.Properties) > 0 {
			types = []string{openapi3.TypeObject}
		} else {
			return nil
		}
	}

	switch types[0] {
	case openapi3.TypeString:
		switch schema.Format {
		case "date":
			return "2024-01-01"
		case "date-time":
			return "2024-01-01T00:00:00Z"
		case "email":
			return "user@example.com"
		case "uuid":
			return "{{uuid()}}"
		}
		return "example"
	case openapi3.TypeInteger:
		if schema.Min != nil {
			return int64(*schema.Min)
		}
		return 1
	case openapi3.TypeNumber:
		if schema.Min != nil {
			return *schema.Min
		}
		return 1.5
	case openapi3.TypeBoolean:
		return true
	case openapi3.TypeArray:
		if schema.Items != nil && schema.Items.Value != nil {
			return []any{exampleValue(schema.Items.Value, depth+1)}
		}
		return []any{}
	case openapi3.TypeObject:
		obj := make(map[string]any, len(schema.Properties))
		for name, prop := range schema.Properties {
			if prop != nil {
				obj[name] = exampleValue(prop.Value, depth+1)
			}
		}
		return obj
	}
	return nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func sanitizeName(name string) string {
	result := strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			return r
		}
		return '_'
	}, name)

	for strings.Contains(result, "__") {
		result = strings.ReplaceAll(result, "__", "_")
	}
	return strings.Trim(result, "_")
}
