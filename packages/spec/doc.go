// Package spec reads declarative request files (YAML, or JSON with comments)
// and turns them into http.RequestConfig values after {{variable}}
// interpolation.
package spec
