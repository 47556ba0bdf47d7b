// Package transport sends conversion envelopes to a hepdata-converter-ws server.
package transport

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/hashicorp/go-cleanhttp"
	"github.com/samber/lo"
	"go.uber.org/zap"
)

const (
	ConvertRoute   = "convert"
	DefaultTimeout = 600 * time.Second

	userAgent = "hepdata-converter-ws-client/0.1.0"
)

var (
	defaultHeaders = map[string]string{
		"User-Agent": userAgent,
	}

	// requestHeaders always win over user supplied headers.
	requestHeaders = map[string]string{
		"Content-Type": "application/json",
		"Accept":       "application/x-gzip",
	}
)

// UserAgent is sent with every request unless overridden by Config.Headers.
func UserAgent() string {
	return userAgent
}

type Config struct {
	BaseURL  string
	Headers  map[string]string
	Insecure bool
}

type Client struct {
	convertURL string
	httpClient *http.Client
	headers    map[string]string
	logger     *zap.Logger
}

type ClientOption func(*Client)

func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

func WithLogger(logger *zap.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

func NewClient(cfg Config, opts ...ClientOption) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base_url is required")
	}

	parsedURL, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse base_url '%s': %w", cfg.BaseURL, err)
	}

	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return nil, fmt.Errorf("base_url must use http or https scheme, got: %s", parsedURL.Scheme)
	}

	client := &Client{
		convertURL: parsedURL.JoinPath(ConvertRoute).String(),
		headers:    lo.Assign(defaultHeaders, canonicalHeaders(cfg.Headers), requestHeaders),
		logger:     zap.NewNop(),
	}

	for _, opt := range opts {
		opt(client)
	}

	if client.httpClient == nil {
		transport := cleanhttp.DefaultPooledTransport()
		if cfg.Insecure {
			if transport.TLSClientConfig == nil {
				transport.TLSClientConfig = &tls.Config{}
			}

			transport.TLSClientConfig.InsecureSkipVerify = true
		}

		// Timeouts are applied per request through the context.
		client.httpClient = &http.Client{Transport: transport}
	}

	return client, nil
}

func canonicalHeaders(headers map[string]string) map[string]string {
	return lo.MapKeys(headers, func(_ string, k string) string {
		return http.CanonicalHeaderKey(k)
	})
}

// URL returns the endpoint conversion requests are sent to.
func (c *Client) URL() string {
	return c.convertURL
}

// Send issues a GET to the convert route with the envelope as JSON body and returns the raw response body.
// Any failure of the HTTP exchange, including a non-2xx status, is a *TransportError.
func (c *Client) Send(ctx context.Context, envelope Envelope, timeout time.Duration) ([]byte, error) {
	body, err := json.Marshal(envelope)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request envelope: %w", err)
	}

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.convertURL, bytes.NewReader(body))
	if err != nil {
		return nil, &TransportError{URL: c.convertURL, Err: fmt.Errorf("failed to create request: %w", err)}
	}

	for k, v := range c.headers {
		req.Header.Set(k, v)
	}

	c.logger.Debug("sending conversion request",
		zap.String("url", c.convertURL),
		zap.Int("body_bytes", len(body)),
		zap.Duration("timeout", timeout),
	)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &TransportError{URL: c.convertURL, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, &TransportError{URL: c.convertURL, Err: &StatusError{StatusCode: resp.StatusCode, Body: string(snippet)}}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{URL: c.convertURL, Err: fmt.Errorf("failed to read response body: %w", err)}
	}

	c.logger.Debug("received conversion response",
		zap.Int("status", resp.StatusCode),
		zap.String("content_type", resp.Header.Get("Content-Type")),
		zap.Int("body_bytes", len(data)),
	)

	return data, nil
}
