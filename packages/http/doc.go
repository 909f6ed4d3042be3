// Package http performs single HTTP/1.1 exchanges described by a RequestConfig.
//
// A config is validated into a Plan before anything touches the network.
// The target host is resolved through the dns package cache, the request is
// written on a fresh connection, and the response body flows through a
// pipeline:
//   - byte counting, progress reporting and the maxSize limit
//   - optional brotli, gzip or deflate decompression
//   - a destination file, or a buffer decoded as JSON, text or raw bytes
//
// Redirects (301, 302, 307, 308) are followed up to a fixed limit and the
// request timeout is a single deadline for the whole chain.
package http
