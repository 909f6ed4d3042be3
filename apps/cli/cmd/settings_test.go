package cmd

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abdul-hamid-achik/hitfetch/packages/core/config"
	"github.com/abdul-hamid-achik/hitfetch/packages/http"
	"github.com/abdul-hamid-achik/hitfetch/packages/spec"
)

func TestParseMillis(t *testing.T) {
	tests := []struct {
		in      string
		want    int64
		wantErr bool
	}{
		{"250", 250, false},
		{"1.5s", 1500, false},
		{"2m", 120000, false},
		{"soon", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseMillis(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRequestFlagsApply(t *testing.T) {
	rf := requestFlags{
		headers: []string{"X-Trace: abc ", "Accept:text/plain"},
		query:   []string{"q=a=b"},
		form:    []string{"note=hi", "upload=@data.bin"},
		timeout: "2s",
		maxSize: -1,
	}
	f := &spec.File{URL: "http://example.com", Headers: map[string]string{"Accept": "application/json"}}
	cfg := config.DefaultConfig()
	cfg.MaxSize = 1024

	require.NoError(t, rf.apply(f, cfg))

	assert.Equal(t, map[string]string{"X-Trace": "abc", "Accept": "text/plain"}, f.Headers)
	assert.Equal(t, map[string]string{"q": "a=b"}, f.Query)
	assert.Equal(t, []spec.Part{{Name: "note", Data: "hi"}, {Name: "upload", File: "data.bin"}}, f.Form)
	assert.Equal(t, int64(2000), f.Timeout)
	assert.Equal(t, int64(1024), f.MaxSize)
	assert.True(t, f.Compression)
}

func TestRequestFlagsApply_FileWinsOverConfig(t *testing.T) {
	f := &spec.File{URL: "http://example.com", Timeout: 100}
	rf := requestFlags{maxSize: -1, noCompress: true}

	require.NoError(t, rf.apply(f, config.DefaultConfig()))
	assert.Equal(t, 100, f.Timeout)
	assert.False(t, f.Compression)
}

func TestRequestFlagsApply_Errors(t *testing.T) {
	tests := []struct {
		name string
		rf   requestFlags
	}{
		{"header without colon", requestFlags{headers: []string{"broken"}, maxSize: -1}},
		{"query without equals", requestFlags{query: []string{"q"}, maxSize: -1}},
		{"form without equals", requestFlags{form: []string{"f"}, maxSize: -1}},
		{"invalid json body", requestFlags{data: "{", maxSize: -1}},
		{"invalid timeout", requestFlags{timeout: "later", maxSize: -1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.rf.apply(&spec.File{URL: "http://example.com"}, config.DefaultConfig())
			require.Error(t, err)
			assert.Equal(t, ExitUsageError, exitCodeFor(err))
		})
	}
}

func TestExitCodeFor(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, ExitSuccess},
		{"explicit", exitWith(ExitParseError, errors.New("bad yaml")), ExitParseError},
		{"invalid config", &http.Error{Kind: http.KindInvalidConfig}, ExitConfigError},
		{"dns", &http.Error{Kind: http.KindDNSResolutionFailed}, ExitNetworkError},
		{"timeout", &http.Error{Kind: http.KindResponseTimeout}, ExitNetworkError},
		{"status", &http.Error{Kind: http.KindUnexpectedStatus, StatusCode: 500}, ExitRequestFailure},
		{"plain", errors.New("boom"), ExitUsageError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, exitCodeFor(tt.err))
		})
	}
}
