package hostfuncs

import (
	"bytes"
	"context"
	stdErrors "errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/reglet-dev/glass/domain/errors"
	"github.com/reglet-dev/glass/domain/ports"
)

// Outbound client defaults.
const (
	DefaultMaxBodySize    = 10 << 20
	DefaultRequestTimeout = 30 * time.Second
	DefaultMaxRedirects   = 10
)

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithRequestTimeout bounds a request including reading its body.
func WithRequestTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		if d > 0 {
			c.client.Timeout = d
		}
	}
}

// WithMaxRedirects limits followed redirects. Zero returns redirect
// responses to the guest unchanged.
func WithMaxRedirects(n int) ClientOption {
	return func(c *Client) {
		if n >= 0 {
			c.maxRedirects = n
		}
	}
}

// WithMaxBodySize caps the response body kept for the guest. The rest is discarded.
func WithMaxBodySize(n int64) ClientOption {
	return func(c *Client) {
		if n > 0 {
			c.maxBodySize = n
		}
	}
}

// WithRedirectCheck vets every redirect target before it is followed.
func WithRedirectCheck(check func(*url.URL) error) ClientOption {
	return func(c *Client) {
		c.redirectCheck = check
	}
}

// Client is the default ports.HTTPClient, backed by net/http.
type Client struct {
	client        *http.Client
	redirectCheck func(*url.URL) error
	maxBodySize   int64
	maxRedirects  int
}

var _ ports.HTTPClient = (*Client)(nil)

// NewClient creates an outbound client.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		client: &http.Client{
			Timeout: DefaultRequestTimeout,
			Transport: &http.Transport{
				Proxy:                 http.ProxyFromEnvironment,
				ForceAttemptHTTP2:     true,
				MaxIdleConns:          10,
				IdleConnTimeout:       90 * time.Second,
				TLSHandshakeTimeout:   10 * time.Second,
				ExpectContinueTimeout: time.Second,
			},
		},
		maxBodySize:  DefaultMaxBodySize,
		maxRedirects: DefaultMaxRedirects,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.client.CheckRedirect = c.checkRedirect
	return c
}

func (c *Client) checkRedirect(req *http.Request, via []*http.Request) error {
	if c.maxRedirects == 0 {
		return http.ErrUseLastResponse
	}
	if len(via) >= c.maxRedirects {
		return fmt.Errorf("stopped after %d redirects", c.maxRedirects)
	}
	if c.redirectCheck != nil {
		return c.redirectCheck(req.URL)
	}
	return nil
}

// Do implements ports.HTTPClient. The method name is upper-cased.
func (c *Client) Do(ctx context.Context, req ports.HTTPRequest) (*ports.HTTPResponse, error) {
	var body io.Reader
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, strings.ToUpper(req.Method), req.URL, body)
	if err != nil {
		return nil, &errors.NetworkError{Operation: "http_request", Target: req.URL, Err: err}
	}
	for name, values := range req.Headers {
		for _, v := range values {
			httpReq.Header.Add(name, v)
		}
	}

	start := time.Now()
	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, classifyHTTPError(ctx, err, req.URL, time.Since(start))
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBodySize+1))
	if err != nil {
		return nil, &errors.NetworkError{Operation: "read_body", Target: req.URL, Err: err}
	}
	truncated := int64(len(data)) > c.maxBodySize
	if truncated {
		data = data[:c.maxBodySize]
		Logger().Warn("outbound response body truncated",
			zap.String("url", req.URL), zap.Int64("limit", c.maxBodySize))
	}

	return &ports.HTTPResponse{
		StatusCode: resp.StatusCode,
		Headers:    resp.Header,
		Body:       data,
		Truncated:  truncated,
	}, nil
}

// classifyHTTPError maps a transport failure to a domain error. Policy
// rejections raised by the redirect check are passed through.
func classifyHTTPError(ctx context.Context, err error, target string, elapsed time.Duration) error {
	var policyErr *errors.PolicyError
	if stdErrors.As(err, &policyErr) {
		return policyErr
	}
	var timeout interface{ Timeout() bool }
	if stdErrors.Is(err, context.DeadlineExceeded) || stdErrors.Is(ctx.Err(), context.DeadlineExceeded) ||
		(stdErrors.As(err, &timeout) && timeout.Timeout()) {
		return &errors.TimeoutError{Operation: "http_request", Duration: elapsed}
	}
	return &errors.NetworkError{Operation: "http_request", Target: target, Err: err}
}
