package runner

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-yaml"
	v1 "github.com/hepdata/hepdata-converter-ws-client/apis/v1"
	"github.com/hepdata/hepdata-converter-ws-client/internal/sinks"
	"github.com/hepdata/hepdata-converter-ws-client/pkg/converter"
	"github.com/spf13/afero"
	"go.uber.org/zap"
)

type Runner struct {
	logger      *zap.Logger
	job         v1.ConvertJob
	client      *converter.Client
	target      target
	convertOpts []converter.ConvertOption
}

var (
	defaultValidator = validator.New(validator.WithRequiredStructEnabled())
)

// ParseConvertJob parses a YAML or JSON job file and validates it against the rules
// declared on the v1.ConvertJob struct. Templates are not expanded.
func ParseConvertJob(data []byte) (v1.ConvertJob, error) {
	var job v1.ConvertJob
	if err := yaml.Unmarshal(data, &job); err != nil {
		return v1.ConvertJob{}, fmt.Errorf("failed to unmarshal job data: %w", err)
	}

	if err := defaultValidator.Struct(job); err != nil {
		return v1.ConvertJob{}, fmt.Errorf("failed to validate job: %w", err)
	}

	return job, nil
}

type settings struct {
	fs         afero.Fs
	stdout     io.Writer
	httpClient *http.Client
	uploader   sinks.S3Uploader
}

type Option func(*settings)

// WithFs sets the filesystem the input is read from and filesystem sinks write to.
func WithFs(fs afero.Fs) Option {
	return func(s *settings) {
		s.fs = fs
	}
}

// WithStdout sets the writer used by the stdout sink.
func WithStdout(w io.Writer) Option {
	return func(s *settings) {
		s.stdout = w
	}
}

func WithHTTPClient(httpClient *http.Client) Option {
	return func(s *settings) {
		s.httpClient = httpClient
	}
}

// WithS3Uploader replaces the uploader built from the job's S3 configuration.
func WithS3Uploader(uploader sinks.S3Uploader) Option {
	return func(s *settings) {
		s.uploader = uploader
	}
}

// New builds a runner for an already expanded job.
func New(ctx context.Context, logger *zap.Logger, job v1.ConvertJob, opts ...Option) (*Runner, error) {
	logger.Info("creating runner", zap.String("job_name", job.Metadata.Name))

	s := settings{
		fs:     afero.NewOsFs(),
		stdout: os.Stdout,
	}
	for _, opt := range opts {
		opt(&s)
	}

	server := job.Spec.Server
	clientOpts := []converter.Option{
		converter.WithLogger(logger.Named("converter")),
		converter.WithFs(s.fs),
		converter.WithHeaders(server.Headers),
		converter.WithInsecure(server.Insecure),
	}
	if s.httpClient != nil {
		clientOpts = append(clientOpts, converter.WithHTTPClient(s.httpClient))
	}

	client, err := converter.New(server.URL, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create converter client: %w", err)
	}

	target, err := buildTarget(ctx, job, s)
	if err != nil {
		return nil, fmt.Errorf("failed to build sink: %w", err)
	}

	convertOpts := []converter.ConvertOption{
		converter.WithOptions(converter.Options(job.Spec.Options)),
		converter.WithID(job.Spec.ID),
		converter.WithExtract(target.extract),
	}
	if server.Timeout != nil {
		convertOpts = append(convertOpts, converter.WithTimeout(time.Duration(*server.Timeout)*time.Second))
	}

	logger.Debug("runner ready",
		zap.String("url", client.URL()),
		zap.String("sink", target.name),
		zap.Bool("extract", target.extract),
	)

	return &Runner{
		logger:      logger,
		job:         job,
		client:      client,
		target:      target,
		convertOpts: convertOpts,
	}, nil
}

// Run performs the conversion and delivers the result to the job's sink. A server
// answer that is not an archive is reported through Result.Valid, not as an error,
// and is never uploaded.
func (r *Runner) Run(ctx context.Context) (converter.Result, error) {
	input := r.job.Spec.Input.Path
	logger := r.logger.With(zap.String("input", input), zap.String("sink", r.target.name))

	result, err := r.client.Convert(ctx, converter.FromPath(input), r.target.output, r.convertOpts...)
	if err != nil {
		return converter.Result{}, fmt.Errorf("failed to convert %s: %w", input, err)
	}

	if !result.Valid {
		logger.Warn("server did not return an archive")
		return result, nil
	}

	if r.target.s3 != nil {
		if err := r.target.s3.Write(ctx, r.target.key, bytes.NewReader(result.Data)); err != nil {
			return converter.Result{}, fmt.Errorf("failed to write result: %w", err)
		}
		logger.Info("uploaded result", zap.String("key", r.target.s3.Key(r.target.key)))
	}

	logger.Info("conversion finished")

	return result, nil
}
