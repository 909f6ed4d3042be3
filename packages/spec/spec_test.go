package spec

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/abdul-hamid-achik/hitfetch/packages/core/env"
	"github.com/abdul-hamid-achik/hitfetch/packages/http"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const yamlRequest = `
url: "https://{{host}}/users"
query:
  page: "{{page}}"
headers:
  X-Token: "{{$HITFETCH_SPEC_TOKEN}}"
json: true
body:
  name: "{{user}}"
  roles: [admin, "{{role}}"]
  active: true
timeout: 2500
maxSize: 1048576
environments:
  dev:
    host: localhost:8080
  prod:
    host: api.example.com
`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadYAML(t *testing.T) {
	t.Setenv("HITFETCH_SPEC_TOKEN", "tok")
	path := writeFile(t, t.TempDir(), "users.yaml", yamlRequest)

	f, err := Load(path)
	require.NoError(t, err)

	r := env.NewResolver()
	r.SetVariables(f.Variables("prod"))
	r.SetVariables(map[string]any{"page": 2, "user": "ada", "role": "ops"})

	cfg := f.Build(r)

	assert.Equal(t, "https://api.example.com/users", cfg.URL)
	assert.Equal(t, map[string]string{"page": "2"}, cfg.Query)
	assert.Equal(t, "tok", cfg.Headers["X-Token"])
	assert.True(t, cfg.JSON)
	assert.Equal(t, map[string]any{"name": "ada", "roles": []any{"admin", "ops"}, "active": true}, cfg.Body)

	plan, err := http.Validate(cfg)
	require.NoError(t, err)
	assert.Equal(t, "POST", plan.Method)
	assert.Equal(t, 2500*time.Millisecond, plan.Timeout)
	assert.Equal(t, int64(1048576), plan.MaxSize)
}

func TestLoadJSONWithComments(t *testing.T) {
	path := writeFile(t, t.TempDir(), "get.json", `{
		// fetch the status page
		"url": "http://status.example.com/",
		"text": true,
		"timeout": 1000.0,
	}`)

	f, err := Load(path)
	require.NoError(t, err)

	cfg := f.Build(nil)
	assert.Equal(t, "http://status.example.com/", cfg.URL)
	assert.True(t, cfg.Text)

	plan, err := http.Validate(cfg)
	require.NoError(t, err)
	assert.Equal(t, time.Second, plan.Timeout)
	assert.Equal(t, int64(-1), plan.MaxSize)
}

func TestBuild_NumericChecks(t *testing.T) {
	tests := []struct {
		name  string
		yaml  string
		field string
	}{
		{"fractional timeout", "url: http://x/\ntimeout: 1.5", "timeout"},
		{"NaN timeout", "url: http://x/\ntimeout: .nan", "timeout"},
		{"infinite maxSize", "url: http://x/\nmaxSize: .inf", "maxSize"},
		{"negative maxSize", "url: http://x/\nmaxSize: -1", "maxSize"},
		{"string timeout", "url: http://x/\ntimeout: soon", "timeout"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := ParseYAML([]byte(tt.yaml))
			require.NoError(t, err)

			_, err = http.Validate(f.Build(nil))
			require.Error(t, err)
			assert.ErrorIs(t, err, &http.Error{Kind: http.KindInvalidConfig, Field: tt.field})
		})
	}
}

func TestBuild_FormFiles(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "avatar.png", "\x89PNG")
	path := writeFile(t, dir, "upload.yaml", `
url: http://uploads.example.com/
form:
  - name: title
    data: hello
  - name: avatar
    file: avatar.png
  - name: meta
    data: {size: 4}
`)

	f, err := Load(path)
	require.NoError(t, err)
	cfg := f.Build(nil)

	require.Len(t, cfg.Form, 3)
	assert.Equal(t, http.FormPart{Name: "title", Data: "hello"}, cfg.Form[0])
	assert.Equal(t, "avatar.png", cfg.Form[1].Filename)
	assert.Nil(t, cfg.Form[1].Data)
	require.NotNil(t, cfg.Form[1].Load)
	data, err := cfg.Form[1].Load()
	require.NoError(t, err)
	assert.Equal(t, []byte("\x89PNG"), data)
	assert.Equal(t, map[string]any{"size": 4}, cfg.Form[2].Data)

	_, err = http.Validate(cfg)
	assert.NoError(t, err)
}

func TestBuild_FormFileTraversal(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "upload.yaml", `
url: http://uploads.example.com/
form:
  - name: secret
    file: ../../etc/passwd
`)

	f, err := Load(path)
	require.NoError(t, err)
	_, err = http.Validate(f.Build(nil))
	require.Error(t, err)
	assert.ErrorIs(t, err, &http.Error{Kind: http.KindInvalidConfig, Field: "form.file"})
	assert.Contains(t, err.Error(), "path traversal")
}

func TestEncode(t *testing.T) {
	f := &File{URL: "http://example.com/", JSON: true, Timeout: 100}
	data, err := f.Encode()
	require.NoError(t, err)

	back, err := ParseYAML(data)
	require.NoError(t, err)
	assert.Equal(t, f.URL, back.URL)
	assert.True(t, back.JSON)
}

func TestBuild_ValidationOrder(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name string
		yaml string
		want *http.Error
	}{
		{
			name: "scheme first",
			yaml: "url: ftp://example.test/x\njson: true\ntext: true\ntimeout: 1.5\nmaxSize: .nan",
			want: http.ErrInvalidURLScheme,
		},
		{
			name: "json/text before timeout",
			yaml: "url: http://example.test/x\njson: true\ntext: true\ntimeout: 1.5",
			want: &http.Error{Kind: http.KindConflictingOptions, Field: "json"},
		},
		{
			name: "missing form file before timeout",
			yaml: "url: http://example.test/x\ntimeout: 1.5\nform:\n  - name: doc\n    file: missing.txt",
			want: &http.Error{Kind: http.KindInvalidConfig, Field: "form.file"},
		},
		{
			name: "data and file before timeout",
			yaml: "url: http://example.test/x\ntimeout: .inf\nform:\n  - name: doc\n    data: x\n    file: doc.txt",
			want: &http.Error{Kind: http.KindConflictingOptions, Field: "form.data"},
		},
		{
			name: "timeout before maxSize",
			yaml: "url: http://example.test/x\ntimeout: -5\nmaxSize: 0.5",
			want: &http.Error{Kind: http.KindInvalidConfig, Field: "timeout"},
		},
	}

	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, dir, fmt.Sprintf("req%d.yaml", i), tt.yaml)
			f, err := Load(path)
			require.NoError(t, err)

			_, err = http.Validate(f.Build(nil))
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want, "got %v", err)
		})
	}
}
