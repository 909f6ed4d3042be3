package env

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestResolverResolve(t *testing.T) {
	t.Setenv("HITFETCH_TOKEN", "s3cret")

	r := NewResolver()
	r.now = func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) }
	r.SetVariables(map[string]any{"host": "api.example.com", "port": 8080})

	tests := []struct {
		input    string
		expected string
	}{
		{"hello world", "hello world"},
		{"https://{{host}}:{{port}}/v1", "https://api.example.com:8080/v1"},
		{"{{ host }}", "api.example.com"},
		{"Bearer {{$HITFETCH_TOKEN}}", "Bearer s3cret"},
		{"{{missing}}", "{{missing}}"},
		{"{{$HITFETCH_UNSET_VAR}}", "{{$HITFETCH_UNSET_VAR}}"},
		{"{{timestamp()}}", "1714564800"},
		{"{{now()}}", "2024-05-01T12:00:00Z"},
		{"{{unknown()}}", "{{unknown()}}"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, r.Resolve(tt.input))
		})
	}

	assert.Len(t, r.Resolve("{{uuid()}}"), 36)
}

func TestResolverWarnings(t *testing.T) {
	r := NewResolver()
	var warnings []string
	r.SetWarnFunc(func(format string, args ...any) {
		warnings = append(warnings, fmt.Sprintf(format, args...))
	})

	r.Resolve("{{a}} {{b}}")
	assert.Equal(t, []string{"unresolved variable: a", "unresolved variable: b"}, warnings)
}

func TestResolverUnresolvedVariables(t *testing.T) {
	r := NewResolver()
	r.SetVariable("foo", "hello")

	assert.Empty(t, r.UnresolvedVariables("{{foo}}"))
	assert.Equal(t, []string{"bar"}, r.UnresolvedVariables("{{foo}} and {{bar}}"))
	assert.Empty(t, r.UnresolvedVariables("no placeholders"))
}

func TestResolverResolveValue(t *testing.T) {
	r := NewResolver()
	r.SetVariable("name", "ada")

	got := r.ResolveValue(map[string]any{
		"user":  "{{name}}",
		"tags":  []any{"{{name}}", 1},
		"count": 3,
	})
	assert.Equal(t, map[string]any{
		"user":  "ada",
		"tags":  []any{"ada", 1},
		"count": 3,
	}, got)
}

func TestResolverResolveAll(t *testing.T) {
	r := NewResolver()
	r.SetVariable("v", "1")
	assert.Equal(t, map[string]string{"X-Version": "1"}, r.ResolveAll(map[string]string{"X-Version": "{{v}}"}))
	assert.Nil(t, r.ResolveAll(nil))
}

func TestResolverClone(t *testing.T) {
	r := NewResolver()
	r.SetVariable("a", 1)
	clone := r.Clone()
	clone.SetVariable("b", 2)

	assert.True(t, clone.HasVariable("a"))
	assert.False(t, r.HasVariable("b"))
}

func TestLoadEnvironment(t *testing.T) {
	declared := map[string]map[string]any{
		"dev":  {"host": "localhost"},
		"prod": {"host": "api.example.com"},
	}

	assert.Equal(t, "api.example.com", LoadEnvironment("prod", declared).Variables["host"])
	assert.Empty(t, LoadEnvironment("staging", declared).Variables)
}

func TestLoadSystemEnv(t *testing.T) {
	t.Setenv("HITFETCH_VAR_REGION", "eu")
	vars := LoadSystemEnv("HITFETCH_VAR_")
	assert.Equal(t, "eu", vars["REGION"])
}

func TestMergeVariables(t *testing.T) {
	merged := MergeVariables(map[string]any{"a": 1, "b": 1}, StringVariables(map[string]string{"b": "2"}))
	assert.Equal(t, map[string]any{"a": 1, "b": "2"}, merged)
}
