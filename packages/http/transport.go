package http

import (
	"context"
	"crypto/tls"
	"errors"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/abdul-hamid-achik/hitfetch/packages/dns"
	pkgerrors "github.com/pkg/errors"
)

// dispatch resolves the target host through the DNS cache, opens a connection
// to the resolved address and writes the request. The returned response body
// is the raw network stream.
func (c *Client) dispatch(ctx context.Context, plan *Plan) (*http.Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, requestPhaseError(ctx, err)
	}

	host := plan.URL.Hostname()
	entry, err := c.dns.Resolve(ctx, host)
	if err != nil {
		if ctx.Err() != nil {
			return nil, requestPhaseError(ctx, err)
		}
		return nil, &Error{Kind: KindDNSResolutionFailed, Message: host, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, plan.Method, plan.URL.String(), plan.Body())
	if err != nil {
		return nil, &Error{Kind: KindInvalidConfig, Field: "url", Err: err}
	}
	req.Header = plan.Header.Clone()
	for k, v := range c.defaultHeaders {
		if req.Header.Get(k) == "" {
			req.Header.Set(k, v)
		}
	}
	req.Header.Del("Content-Length")
	req.ContentLength = plan.ContentLength()

	transport := c.transportFor(entry)
	resp, err := transport.RoundTrip(req)
	if err != nil {
		transport.CloseIdleConnections()
		if ctx.Err() != nil {
			return nil, requestPhaseError(ctx, err)
		}
		return nil, &Error{Kind: KindConnectionError, Err: pkgerrors.Wrapf(err, "%s %s", plan.Method, plan.URL.Redacted())}
	}
	resp.Body = &closingBody{ReadCloser: resp.Body, transport: transport}
	return resp, nil
}

// transportFor builds a single-use transport that dials the resolved address.
// Keep-alive and HTTP/2 are disabled; decompression happens in the pipeline.
func (c *Client) transportFor(entry dns.Entry) *http.Transport {
	dialer := &net.Dialer{Timeout: c.dialTimeout}
	return &http.Transport{
		DialContext: func(ctx context.Context, _, addr string) (net.Conn, error) {
			_, port, err := net.SplitHostPort(addr)
			if err != nil {
				return nil, err
			}
			target := net.JoinHostPort(entry.Addr.String(), port)
			c.logger.WithField("addr", target).Debug("dialing")
			return dialer.DialContext(ctx, entry.Family.Network(), target)
		},
		TLSClientConfig:     c.tlsConfig.Clone(),
		TLSHandshakeTimeout: 10 * time.Second,
		TLSNextProto:        make(map[string]func(string, *tls.Conn) http.RoundTripper),
		DisableKeepAlives:   true,
		DisableCompression:  true,
		ForceAttemptHTTP2:   false,
	}
}

// closingBody releases the single-use transport with the body.
type closingBody struct {
	io.ReadCloser
	transport *http.Transport
}

func (b *closingBody) Close() error {
	err := b.ReadCloser.Close()
	b.transport.CloseIdleConnections()
	return err
}

func requestPhaseError(ctx context.Context, err error) *Error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return &Error{Kind: KindRequestTimeout, Err: err}
	}
	return &Error{Kind: KindConnectionError, Err: err}
}

func responsePhaseError(ctx context.Context, err error) *Error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return &Error{Kind: KindResponseTimeout, Err: err}
	}
	return &Error{Kind: KindConnectionError, Err: err}
}
