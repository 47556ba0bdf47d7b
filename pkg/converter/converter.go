// Package converter submits conversion jobs to a hepdata-converter-ws server.
//
// A conversion packs the input into a gzip tar archive, sends it with the job
// options to the server's /convert route, and materializes the response:
//
//	c, err := converter.New("http://localhost:5000", converter.WithLogger(logger))
//	if err != nil {
//		return err
//	}
//	res, err := c.Convert(ctx, converter.FromPath("submission/"), converter.ToPath("out/"),
//		converter.WithOptions(converter.Options{"output_format": "root"}))
//
// Caller misuse is reported as a *PreconditionError before any request is made and
// HTTP failures as a *TransportError. A server that answers with a diagnostic
// instead of an archive is not an error: Result.Valid is false.
package converter

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/hepdata/hepdata-converter-ws-client/internal/archive"
	"github.com/hepdata/hepdata-converter-ws-client/internal/transport"
	"github.com/spf13/afero"
	"go.uber.org/zap"
)

// DefaultTimeout bounds the HTTP exchange of a conversion.
const DefaultTimeout = transport.DefaultTimeout

// Client converts inputs against one server. It keeps no per-call state and is
// safe for concurrent use.
type Client struct {
	transport *transport.Client
	fs        afero.Fs
	logger    *zap.Logger
}

type clientConfig struct {
	httpClient *http.Client
	logger     *zap.Logger
	fs         afero.Fs
	headers    map[string]string
	insecure   bool
}

type Option func(*clientConfig)

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *clientConfig) {
		c.httpClient = httpClient
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(c *clientConfig) {
		c.logger = logger
	}
}

// WithFs sets the filesystem inputs are read from and outputs written to.
// Defaults to the OS filesystem.
func WithFs(fs afero.Fs) Option {
	return func(c *clientConfig) {
		c.fs = fs
	}
}

// WithHeaders adds static headers to every request.
func WithHeaders(headers map[string]string) Option {
	return func(c *clientConfig) {
		c.headers = headers
	}
}

// WithInsecure disables TLS certificate verification.
func WithInsecure(insecure bool) Option {
	return func(c *clientConfig) {
		c.insecure = insecure
	}
}

// New creates a client for the server rooted at url, e.g. http://localhost:5000.
func New(url string, opts ...Option) (*Client, error) {
	cfg := clientConfig{
		logger: zap.NewNop(),
		fs:     afero.NewOsFs(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	transportOpts := []transport.ClientOption{transport.WithLogger(cfg.logger.Named("transport"))}
	if cfg.httpClient != nil {
		transportOpts = append(transportOpts, transport.WithHTTPClient(cfg.httpClient))
	}

	tc, err := transport.NewClient(transport.Config{
		BaseURL:  url,
		Headers:  cfg.headers,
		Insecure: cfg.insecure,
	}, transportOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create transport: %w", err)
	}

	return &Client{
		transport: tc,
		fs:        cfg.fs,
		logger:    cfg.logger,
	}, nil
}

// URL returns the endpoint conversion requests are sent to.
func (c *Client) URL() string {
	return c.transport.URL()
}

type request struct {
	options Options
	id      any
	extract bool
	timeout time.Duration
}

type ConvertOption func(*request)

// WithOptions sets the options passed through to the converter.
func WithOptions(options Options) ConvertOption {
	return func(r *request) {
		r.options = options
	}
}

// WithID sets the cache key sent to the server. Calls with equal ids and output
// types may be served the same cached result. A nil id or an empty string is not
// sent; any other value, including 0, is.
func WithID(id any) ConvertOption {
	return func(r *request) {
		if s, ok := id.(string); ok && s == "" {
			id = nil
		}
		r.id = id
	}
}

// WithExtract toggles extraction of the response into a PathOutput. Defaults to true;
// ignored without an output.
func WithExtract(extract bool) ConvertOption {
	return func(r *request) {
		r.extract = extract
	}
}

// WithTimeout bounds the HTTP exchange. Defaults to DefaultTimeout.
func WithTimeout(timeout time.Duration) ConvertOption {
	return func(r *request) {
		r.timeout = timeout
	}
}

// Convert sends input to the server and materializes the response into output.
func (c *Client) Convert(ctx context.Context, input Input, output Output, opts ...ConvertOption) (Result, error) {
	req := request{
		extract: true,
		timeout: DefaultTimeout,
	}
	for _, opt := range opts {
		opt(&req)
	}

	extract, err := checkOutput(output, req.extract)
	if err != nil {
		return Result{}, err
	}

	entryName := req.options.ArchiveName()
	data, err := Pack(ctx, c.fs, input, entryName, string(archive.CompressionGzip))
	if err != nil {
		return Result{}, err
	}

	c.logger.Debug("packed input",
		zap.String("entry_name", entryName),
		zap.Int("archive_bytes", len(data)),
	)

	body, err := c.transport.Send(ctx, transport.Envelope{
		Input:   data,
		Options: req.options,
		ID:      req.id,
	}, req.timeout)
	if err != nil {
		var transportErr *TransportError
		if errors.As(err, &transportErr) {
			return Result{}, err
		}
		return Result{}, newPreconditionError(ErrInvalidOptions, "", err)
	}

	return c.Resolve(ctx, body, output, extract)
}

// Convert is a one-shot conversion with a default client.
func Convert(ctx context.Context, url string, input Input, output Output, opts ...ConvertOption) (Result, error) {
	c, err := New(url)
	if err != nil {
		return Result{}, err
	}
	return c.Convert(ctx, input, output, opts...)
}
