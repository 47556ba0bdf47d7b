package runner

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	v1 "github.com/hepdata/hepdata-converter-ws-client/apis/v1"
	"github.com/hepdata/hepdata-converter-ws-client/internal/sinks"
	"github.com/hepdata/hepdata-converter-ws-client/pkg/converter"
	"github.com/samber/lo"
)

// ISO8601Basic is a URL-safe timestamp format without colons.
const ISO8601Basic = "20060102T150405Z"

// target is where a job's result goes. Exactly one of output and s3 is set.
type target struct {
	name    string
	output  converter.Output
	extract bool
	s3      *sinks.S3Sink
	key     string
}

// buildTarget resolves the job's sink.
//
// Default behavior:
//   - No output spec: stdout sink
//   - No sink specified: stdout sink
//   - Explicit stdout sink: stdout sink
//   - Explicit filesystem sink: extracted into the path unless extract is false
//   - Explicit S3 sink: raw archive uploaded once the conversion succeeded
//
// Extraction is only possible into a filesystem sink.
func buildTarget(ctx context.Context, job v1.ConvertJob, s settings) (target, error) {
	output := job.Spec.Output

	var extract *bool
	if output != nil {
		extract = output.Extract
	}

	if output == nil || output.Sink == nil || output.Sink.Stdout != nil {
		if lo.FromPtr(extract) {
			return target{}, fmt.Errorf("stdout sink cannot be used with extract")
		}
		return target{name: "stdout", output: converter.ToWriter(s.stdout)}, nil
	}

	if output.Sink.Filesystem != nil {
		path := output.Sink.Filesystem.Path
		return target{
			name:    fmt.Sprintf("filesystem(%s)", path),
			output:  converter.ToPath(path),
			extract: lo.FromPtrOr(extract, true),
		}, nil
	}

	if output.Sink.S3 != nil {
		if lo.FromPtr(extract) {
			return target{}, fmt.Errorf("s3 sink cannot be used with extract")
		}

		sink, err := buildS3Sink(ctx, output.Sink.S3, s.uploader)
		if err != nil {
			return target{}, err
		}

		return target{
			name: sink.Name(),
			s3:   sink,
			key:  lo.FromPtrOr(output.Sink.S3.Key, job.Metadata.Name+".tar.gz"),
		}, nil
	}

	return target{}, fmt.Errorf("invalid sink configuration: no sink type specified")
}

func buildS3Sink(ctx context.Context, spec *v1.S3SinkSpec, uploader sinks.S3Uploader) (*sinks.S3Sink, error) {
	prefix := lo.FromPtr(spec.Prefix)

	if uploader != nil {
		return sinks.NewS3SinkWithUploader(spec.Bucket, prefix, uploader), nil
	}

	cfg := sinks.S3Config{
		Bucket:         spec.Bucket,
		Region:         lo.FromPtr(spec.Region),
		Endpoint:       lo.FromPtr(spec.Endpoint),
		Prefix:         prefix,
		ForcePathStyle: spec.ForcePathStyle,
	}

	if spec.Credentials != nil {
		cfg.AccessKeyID = spec.Credentials.AccessKeyID
		cfg.SecretAccessKey = spec.Credentials.SecretAccessKey
	}

	return sinks.NewS3Sink(ctx, cfg)
}

// BuildVariables creates the variables map for expansion.
// It includes built-in variables and reads allowed environment variables.
// If a variable is not set, an error is returned.
func BuildVariables(job v1.ConvertJob, allowedEnv []string) (map[string]string, error) {
	date := time.Now().UTC()
	variables := map[string]string{
		"JOB_NAME":         job.Metadata.Name,
		"JOB_DATE_ISO8601": date.Format(ISO8601Basic),
		"JOB_DATE_RFC3339": date.Format(time.RFC3339),
	}

	var errs error
	for _, envName := range allowedEnv {
		val, ok := os.LookupEnv(envName)
		if !ok {
			errs = errors.Join(errs, fmt.Errorf("environment variable %q is not set", envName))
			continue
		}
		variables[envName] = val
	}

	if errs != nil {
		return nil, errs
	}

	return variables, nil
}
