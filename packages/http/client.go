package http

import (
	"context"
	"crypto/tls"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/abdul-hamid-achik/hitfetch/packages/dns"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const (
	// DefaultMaxRedirects is the maximum number of redirects to follow
	DefaultMaxRedirects = 20
	// DefaultDialTimeout bounds one TCP connect when no request timeout is set
	DefaultDialTimeout = 30 * time.Second
)

type Client struct {
	dns            *dns.Cache
	logger         logrus.FieldLogger
	maxRedirects   int
	dialTimeout    time.Duration
	tlsConfig      *tls.Config
	defaultHeaders map[string]string
}

type ClientOption func(*Client)

func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		maxRedirects:   DefaultMaxRedirects,
		dialTimeout:    DefaultDialTimeout,
		defaultHeaders: make(map[string]string),
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.logger == nil {
		l := logrus.New()
		l.SetLevel(logrus.WarnLevel)
		c.logger = l
	}
	if c.dns == nil {
		c.dns = dns.Default()
	}
	return c
}

// WithDNSCache replaces the process-wide cache.
func WithDNSCache(cache *dns.Cache) ClientOption {
	return func(c *Client) {
		c.dns = cache
	}
}

func WithLogger(l logrus.FieldLogger) ClientOption {
	return func(c *Client) {
		c.logger = l
	}
}

func WithMaxRedirects(max int) ClientOption {
	return func(c *Client) {
		c.maxRedirects = max
	}
}

// WithTLSConfig sets the TLS configuration used for https targets. The server
// name is still taken from the URL host, not the resolved address.
func WithTLSConfig(cfg *tls.Config) ClientOption {
	return func(c *Client) {
		c.tlsConfig = cfg
	}
}

// WithInsecureSkipVerify disables certificate validation
func WithInsecureSkipVerify() ClientOption {
	return func(c *Client) {
		if c.tlsConfig == nil {
			c.tlsConfig = &tls.Config{}
		}
		c.tlsConfig.InsecureSkipVerify = true
	}
}

func WithDialTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.dialTimeout = d
	}
}

// WithDefaultHeader adds a header sent when the request does not set it.
func WithDefaultHeader(key, value string) ClientOption {
	return func(c *Client) {
		c.defaultHeaders[key] = value
	}
}

// WithDefaultHeaders sets multiple default headers for all requests
func WithDefaultHeaders(headers map[string]string) ClientOption {
	return func(c *Client) {
		for k, v := range headers {
			c.defaultHeaders[k] = v
		}
	}
}

// DNS returns the cache the client resolves through.
func (c *Client) DNS() *dns.Cache {
	return c.dns
}

// Do validates cfg, performs the exchange and follows redirects. The request
// timeout, when set, is one deadline covering every hop.
func (c *Client) Do(ctx context.Context, cfg RequestConfig) (*Outcome, error) {
	plan, err := Validate(cfg)
	if err != nil {
		return nil, err
	}

	if plan.HasTimeout {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, plan.Timeout)
		defer cancel()
	}

	log := c.logger.WithFields(logrus.Fields{
		"request_id": uuid.NewString(),
		"method":     plan.Method,
	})

	start := time.Now()
	outcome, err := c.follow(ctx, plan, 0, log)
	elapsed := time.Since(start)
	if err != nil {
		log.WithError(err).WithField("duration", elapsed).Debug("request failed")
		return nil, err
	}

	outcome.Duration = elapsed
	log.WithFields(logrus.Fields{
		"status":   outcome.StatusCode,
		"received": outcome.Received,
		"duration": elapsed,
	}).Debug("request done")
	return outcome, nil
}

func (c *Client) follow(ctx context.Context, plan *Plan, redirects int, log logrus.FieldLogger) (*Outcome, error) {
	log.WithField("url", plan.URL.Redacted()).Debug("sending request")

	resp, err := c.dispatch(ctx, plan)
	if err != nil {
		return nil, err
	}
	code := resp.StatusCode

	h, err := c.receive(ctx, plan, resp)
	if err != nil {
		return nil, err
	}
	if h.next == nil {
		h.outcome.Redirects = redirects
		return h.outcome, nil
	}

	if redirects >= c.maxRedirects {
		return nil, &Error{
			Kind:       KindTooManyRedirects,
			StatusCode: code,
			Message:    fmt.Sprintf("stopped after %d redirects at %s", redirects, h.next.Redacted()),
		}
	}

	cfg := plan.config
	cfg.URL = h.next.String()
	if h.next.RawQuery != "" {
		cfg.Query = nil
	}
	next, err := Validate(cfg)
	if err != nil {
		return nil, err
	}

	log.WithFields(logrus.Fields{"status": code, "location": h.next.Redacted()}).Debug("following redirect")
	return c.follow(ctx, next, redirects+1, log)
}

var (
	defaultClientOnce sync.Once
	defaultClient     *Client
)

// Request performs cfg with a client backed by the process-wide DNS cache.
func Request(ctx context.Context, cfg RequestConfig) (*Outcome, error) {
	defaultClientOnce.Do(func() {
		defaultClient = NewClient()
	})
	return defaultClient.Do(ctx, cfg)
}

// ValidatePathWithinBase checks that the resolved path stays within the base directory
// to prevent path traversal attacks
func ValidatePathWithinBase(path, baseDir string) error {
	if baseDir == "" {
		return nil
	}

	cleanBase, err := filepath.Abs(baseDir)
	if err != nil {
		return fmt.Errorf("failed to resolve base directory: %v", err)
	}

	cleanPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve path: %v", err)
	}

	if !strings.HasPrefix(cleanPath, cleanBase+string(filepath.Separator)) && cleanPath != cleanBase {
		return fmt.Errorf("path traversal detected: %s is outside allowed directory %s", path, baseDir)
	}

	return nil
}
