package curl

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/abdul-hamid-achik/hitfetch/packages/spec"
)

func TestParse_SimpleGet(t *testing.T) {
	parsed, err := Parse(`curl https://api.example.com/users`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if parsed.Method != "GET" {
		t.Errorf("expected method GET, got %s", parsed.Method)
	}
	if parsed.URL != "https://api.example.com/users" {
		t.Errorf("expected URL https://api.example.com/users, got %s", parsed.URL)
	}
}

func TestParse_PostWithData(t *testing.T) {
	parsed, err := Parse(`curl -X POST https://api.example.com/users -d '{"name":"John"}'`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if parsed.Method != "POST" {
		t.Errorf("expected method POST, got %s", parsed.Method)
	}
	if parsed.Body != `{"name":"John"}` {
		t.Errorf("expected body {\"name\":\"John\"}, got %s", parsed.Body)
	}
}

func TestParse_WithHeaders(t *testing.T) {
	parsed, err := Parse(`curl -H "Content-Type: application/json" -H "Authorization: Bearer token123" https://api.example.com/users`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if parsed.Headers["Content-Type"] != "application/json" {
		t.Errorf("expected Content-Type: application/json, got %s", parsed.Headers["Content-Type"])
	}
	if parsed.Headers["Authorization"] != "Bearer token123" {
		t.Errorf("expected Authorization: Bearer token123, got %s", parsed.Headers["Authorization"])
	}
}

func TestParse_ImplicitPost(t *testing.T) {
	parsed, err := Parse(`curl -F "file=@report.csv" https://api.example.com/upload`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if parsed.Method != "POST" {
		t.Errorf("expected implicit POST method, got %s", parsed.Method)
	}
}

func TestParse_Limits(t *testing.T) {
	parsed, err := Parse(`curl -k --compressed -m 2.5 --max-filesize 1048576 -o out.bin https://cdn.example.com/a.bin`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !parsed.Insecure || !parsed.Compressed {
		t.Error("expected Insecure and Compressed to be true")
	}
	if parsed.MaxTime != 2.5 {
		t.Errorf("expected max time 2.5, got %v", parsed.MaxTime)
	}
	if parsed.MaxFilesize != 1048576 {
		t.Errorf("expected max filesize 1048576, got %d", parsed.MaxFilesize)
	}
	if parsed.Output != "out.bin" {
		t.Errorf("expected output out.bin, got %s", parsed.Output)
	}
}

func TestParse_Errors(t *testing.T) {
	for _, cmd := range []string{
		`curl`,
		`curl -H`,
		`curl -X GET`,
		`curl -m soon https://example.com`,
	} {
		if _, err := Parse(cmd); err == nil {
			t.Errorf("Parse(%q): expected error", cmd)
		}
	}
}

func TestToFile(t *testing.T) {
	parsed := &ParsedCurl{
		Method: "POST",
		URL:    "https://api.example.com/users",
		Headers: map[string]string{
			"Content-Type": "application/json",
			"X-Trace":      "abc",
		},
		Body:        `{"name":"John"}`,
		BasicAuth:   "admin:secret",
		Compressed:  true,
		MaxTime:     1.5,
		MaxFilesize: 10,
		Name:        "post_users",
	}

	r := ToFile(parsed)
	f := r.File

	if len(r.Warnings) != 0 {
		t.Errorf("unexpected warnings: %v", r.Warnings)
	}
	if !reflect.DeepEqual(f.Headers, map[string]string{"X-Trace": "abc"}) {
		t.Errorf("unexpected headers: %v", f.Headers)
	}
	if !reflect.DeepEqual(f.Body, map[string]any{"name": "John"}) {
		t.Errorf("unexpected body: %#v", f.Body)
	}
	if f.Auth != "Basic YWRtaW46c2VjcmV0" {
		t.Errorf("unexpected auth: %s", f.Auth)
	}
	if !f.Compression {
		t.Error("expected compression")
	}
	if f.Timeout != int64(1500) || f.MaxSize != int64(10) {
		t.Errorf("unexpected limits: timeout=%v maxSize=%v", f.Timeout, f.MaxSize)
	}
}

func TestToFile_Warnings(t *testing.T) {
	r := ToFile(&ParsedCurl{
		Method:   "DELETE",
		URL:      "https://api.example.com/users/1",
		Body:     "name=John",
		Insecure: true,
	})

	want := []string{
		"request body is not JSON and was dropped",
		"method DELETE cannot be expressed, the request will use GET",
		"--insecure is a client setting, pass -k to hitfetch instead",
	}
	if !reflect.DeepEqual(r.Warnings, want) {
		t.Errorf("got warnings %q, want %q", r.Warnings, want)
	}
}

func TestToFile_Form(t *testing.T) {
	r := ToFile(&ParsedCurl{
		Method: "POST",
		URL:    "https://api.example.com/upload",
		Form:   []string{"note=hello", "file=@report.csv"},
	})

	want := []spec.Part{{Name: "note", Data: "hello"}, {Name: "file", File: "report.csv"}}
	if !reflect.DeepEqual(r.File.Form, want) {
		t.Errorf("got form %#v, want %#v", r.File.Form, want)
	}
}

func TestConvertFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "requests.sh")
	content := "# health\ncurl https://api.example.com/health\n\ncurl -X POST \\\n  -d '{\"a\":1}' \\\n  https://api.example.com/items\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	results, err := ConvertFile(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].Name != "get_health" || results[1].Name != "post_items" {
		t.Errorf("unexpected names %s, %s", results[0].Name, results[1].Name)
	}
	if !strings.HasSuffix(results[1].File.URL, "/items") {
		t.Errorf("unexpected url %s", results[1].File.URL)
	}
}

func TestTokenize(t *testing.T) {
	tests := []struct {
		input    string
		expected []string
	}{
		{
			input:    `-X POST -d "hello world"`,
			expected: []string{"-X", "POST", "-d", "hello world"},
		},
		{
			input:    `-H 'Content-Type: application/json'`,
			expected: []string{"-H", "Content-Type: application/json"},
		},
		{
			input:    `-d '{"key": "value"}'`,
			expected: []string{"-d", `{"key": "value"}`},
		},
		{
			input:    `-d 'a\b'`,
			expected: []string{"-d", `a\b`},
		},
	}

	for _, tt := range tests {
		tokens := tokenize(tt.input)
		if !reflect.DeepEqual(tokens, tt.expected) {
			t.Errorf("tokenize(%q): got %q, expected %q", tt.input, tokens, tt.expected)
		}
	}
}

func TestGenerateName(t *testing.T) {
	tests := []struct {
		url    string
		method string
		expect string
	}{
		{"https://api.example.com/users", "GET", "get_users"},
		{"https://api.example.com/users/123", "GET", "get_users_123"},
		{"https://api.example.com/", "POST", "post_root"},
		{"https://api.example.com/api/v1/user-profile", "PUT", "put_api_v1_user_profile"},
	}

	for _, tt := range tests {
		result := generateName(tt.url, tt.method)
		if result != tt.expect {
			t.Errorf("generateName(%q, %q): got %q, expected %q", tt.url, tt.method, result, tt.expect)
		}
	}
}
