package http

import (
	"bufio"
	"compress/flate"
	"compress/gzip"
	"compress/zlib"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	neturl "net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/andybalholm/brotli"
)

var errBodyTooLarge = errors.New("body exceeds maxSize")

func destinationStatus(code int) bool {
	return code == http.StatusOK || code == http.StatusCreated || code == http.StatusNoContent
}

func redirectStatus(code int) bool {
	switch code {
	case http.StatusMovedPermanently, http.StatusFound, http.StatusTemporaryRedirect, http.StatusPermanentRedirect:
		return true
	}
	return false
}

// declaredLength parses Content-Length; absent or invalid values yield -1.
func declaredLength(h http.Header) int64 {
	v := h.Get("Content-Length")
	if v == "" {
		return -1
	}
	n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
	if err != nil || n < 0 {
		return -1
	}
	return n
}

// countingReader counts raw body bytes, reports progress and enforces maxSize.
type countingReader struct {
	r          io.Reader
	received   int64
	total      int64
	limit      int64
	onProgress ProgressFunc
	err        error
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	if n > 0 {
		c.received += int64(n)
		if c.onProgress != nil && c.total >= 0 {
			c.onProgress(n, c.received, c.total)
		}
		if c.limit >= 0 && c.received > c.limit {
			c.err = errBodyTooLarge
			return n, errBodyTooLarge
		}
	}
	if err != nil && err != io.EOF {
		c.err = err
	}
	return n, err
}

// lazyReader defers decoder construction to the first Read, since gzip and
// zlib readers consume the stream header when created.
type lazyReader struct {
	src  io.Reader
	open func(io.Reader) (io.Reader, error)
	r    io.Reader
}

func (l *lazyReader) Read(p []byte) (int, error) {
	if l.r == nil {
		r, err := l.open(l.src)
		if err != nil {
			return 0, err
		}
		l.r = r
	}
	return l.r.Read(p)
}

// decodeStage wraps r in the decompressor named by the content-encoding.
// Unknown encodings pass through.
func decodeStage(encoding string, r io.Reader) io.Reader {
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "br":
		return brotli.NewReader(r)
	case "gzip", "x-gzip":
		return &lazyReader{src: r, open: func(r io.Reader) (io.Reader, error) {
			return gzip.NewReader(r)
		}}
	case "deflate":
		return &lazyReader{src: r, open: openDeflate}
	default:
		return r
	}
}

// openDeflate accepts both zlib-wrapped and raw deflate streams.
func openDeflate(r io.Reader) (io.Reader, error) {
	br := bufio.NewReader(r)
	hdr, err := br.Peek(2)
	if len(hdr) == 0 && err != nil {
		return nil, err
	}
	if len(hdr) == 2 && hdr[0]&0x0f == 8 && (uint16(hdr[0])<<8|uint16(hdr[1]))%31 == 0 {
		return zlib.NewReader(br)
	}
	return flate.NewReader(br), nil
}

type writeError struct {
	err error
}

func (e *writeError) Error() string { return "writing destination: " + e.err.Error() }
func (e *writeError) Unwrap() error { return e.err }

type fileWriter struct {
	f *os.File
}

func (w fileWriter) Write(p []byte) (int, error) {
	n, err := w.f.Write(p)
	if err != nil {
		return n, &writeError{err: err}
	}
	return n, nil
}

// writeDestination streams r into path. The parent directory is created, any
// existing file replaced, and a partial file removed on failure.
func writeDestination(path string, r io.Reader) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return &writeError{err: err}
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return &writeError{err: err}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return &writeError{err: err}
	}

	_, err = io.Copy(fileWriter{f: f}, r)
	if cerr := f.Close(); err == nil && cerr != nil {
		err = &writeError{err: cerr}
	}
	if err != nil {
		_ = os.Remove(path)
	}
	return err
}

// hop is the result of one exchange: an outcome, or the next URL to follow.
type hop struct {
	outcome *Outcome
	next    *neturl.URL
}

// receive runs the response pipeline for one exchange.
func (c *Client) receive(ctx context.Context, plan *Plan, resp *http.Response) (hop, error) {
	defer resp.Body.Close()

	code := resp.StatusCode
	declared := declaredLength(resp.Header)
	if plan.MaxSize >= 0 && declared > plan.MaxSize {
		return hop{}, &Error{
			Kind:       KindMaxSizeExceeded,
			StatusCode: code,
			Message:    fmt.Sprintf("declared %d bytes, limit is %d", declared, plan.MaxSize),
		}
	}

	counter := &countingReader{r: resp.Body, total: declared, limit: plan.MaxSize, onProgress: plan.OnProgress}
	var body io.Reader = counter
	if plan.Compression {
		body = decodeStage(resp.Header.Get("Content-Encoding"), counter)
	}

	outcome := &Outcome{StatusCode: code, Headers: resp.Header, URL: plan.URL.String()}

	if plan.Destination != "" && destinationStatus(code) {
		if err := writeDestination(plan.Destination, body); err != nil {
			return hop{}, streamError(ctx, plan, code, counter, err, nil)
		}
		outcome.Received = counter.received
		if declared >= 0 && counter.received != declared {
			_ = os.Remove(plan.Destination)
			return hop{}, lengthMismatch(code, declared, counter.received, nil)
		}
		outcome.Kind = OutcomeNone
		return hop{outcome: outcome}, nil
	}

	data, err := io.ReadAll(body)
	if err != nil {
		return hop{}, streamError(ctx, plan, code, counter, err, data)
	}
	outcome.Raw = data
	outcome.Received = counter.received

	var failure *Error
	if declared >= 0 && counter.received != declared {
		failure = lengthMismatch(code, declared, counter.received, data)
	}
	switch {
	case destinationStatus(code):
	case redirectStatus(code):
		if failure != nil {
			break
		}
		loc := resp.Header.Get("Location")
		if loc == "" {
			failure = &Error{Kind: KindUnexpectedStatusWithoutLocation, StatusCode: code, Partial: data}
			break
		}
		next, err := plan.URL.Parse(loc)
		if err != nil {
			failure = &Error{Kind: KindUnexpectedStatusWithoutLocation, StatusCode: code, Message: "unusable Location " + strconv.Quote(loc), Partial: data, Err: err}
			break
		}
		return hop{next: next}, nil
	default:
		if failure == nil {
			failure = &Error{Kind: KindUnexpectedStatus, StatusCode: code, Partial: data}
		}
	}
	if failure != nil {
		return hop{}, failure
	}

	if err := decodeBody(plan.Decode, resp.Header.Get("Content-Type"), outcome); err != nil {
		return hop{}, err
	}
	return hop{outcome: outcome}, nil
}

// decodeBody fills the outcome value from its raw bytes.
func decodeBody(mode DecodeMode, contentType string, outcome *Outcome) error {
	ct := strings.ToLower(contentType)
	data := outcome.Raw

	switch {
	case mode == DecodeJSON && strings.Contains(ct, "application/json"):
		var v any
		if len(data) > 0 {
			if err := json.Unmarshal(data, &v); err != nil {
				return &Error{Kind: KindDecodeFailure, StatusCode: outcome.StatusCode, Partial: string(data), Err: err}
			}
		}
		outcome.Kind = OutcomeJSON
		outcome.JSON = v
	case mode == DecodeText && strings.HasPrefix(ct, "text/"):
		if !utf8.Valid(data) {
			return &Error{
				Kind:       KindDecodeFailure,
				StatusCode: outcome.StatusCode,
				Message:    "body is not valid UTF-8",
				Partial:    strings.ToValidUTF8(string(data), "�"),
			}
		}
		outcome.Kind = OutcomeText
		outcome.Text = string(data)
	default:
		outcome.Kind = OutcomeRaw
	}
	return nil
}

func lengthMismatch(code int, declared, received int64, partial []byte) *Error {
	e := &Error{
		Kind:       KindContentLengthMismatch,
		StatusCode: code,
		Message:    fmt.Sprintf("declared %d bytes, received %d", declared, received),
	}
	if partial != nil {
		e.Partial = partial
	}
	return e
}

// streamError classifies a failure while reading the body.
func streamError(ctx context.Context, plan *Plan, code int, counter *countingReader, err error, partial []byte) *Error {
	var we *writeError
	var e *Error
	switch {
	case errors.Is(err, errBodyTooLarge):
		e = &Error{Kind: KindMaxSizeExceeded, Message: fmt.Sprintf("received more than %d bytes", plan.MaxSize)}
	case errors.As(err, &we):
		e = &Error{Kind: KindFileWriteFailed, Field: "destination", Err: we.err}
	case ctx.Err() != nil:
		e = responsePhaseError(ctx, err)
	case errors.Is(counter.err, io.ErrUnexpectedEOF) && counter.total >= 0:
		e = lengthMismatch(code, counter.total, counter.received, nil)
	case counter.err == nil && plan.Compression:
		e = &Error{Kind: KindDecodeFailure, Message: "decompressing body", Err: err}
	default:
		e = &Error{Kind: KindConnectionError, Err: err}
	}
	if e.StatusCode == 0 {
		e.StatusCode = code
	}
	if len(partial) > 0 {
		e.Partial = partial
	}
	return e
}
