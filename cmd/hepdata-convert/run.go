package main

import (
	"context"
	"fmt"

	v1 "github.com/hepdata/hepdata-converter-ws-client/apis/v1"
	"github.com/hepdata/hepdata-converter-ws-client/internal/runner"
	"github.com/urfave/cli/v3"
	"go.uber.org/zap"
)

var runCommand = &cli.Command{
	Name:  "run",
	Usage: "Run a conversion job file",
	Flags: []cli.Flag{
		&cli.StringSliceFlag{
			Name:  "allowed-env",
			Usage: "Environment variables allowed in job configuration (can be repeated)",
		},
		&cli.BoolFlag{
			Name:  "force",
			Usage: "Write to stdout even when it is a terminal",
		},
	},
	Arguments: []cli.Argument{
		&cli.StringArg{
			Name:      "job",
			UsageText: "The job file to run, - for stdin",
		},
	},
	Action: func(ctx context.Context, command *cli.Command) error {
		logger := getLogger(ctx)

		jobFilename := command.StringArg("job")
		if jobFilename == "" {
			return fmt.Errorf("no job file provided")
		}

		job, err := loadJob(jobFilename, command.StringSlice("allowed-env"))
		if err != nil {
			return err
		}

		if writesToStdout(job) {
			if err := checkBinaryStdout(ctx, command.Bool("force")); err != nil {
				return err
			}
		}

		r, err := runner.New(ctx, logger.Named("runner"), job)
		if err != nil {
			return fmt.Errorf("failed to create runner: %w", err)
		}

		result, err := r.Run(ctx)
		if err != nil {
			return fmt.Errorf("failed to run job: %w", err)
		}

		if !result.Valid {
			return errInvalidResult
		}

		logger.Debug("job finished", zap.String("job_name", job.Metadata.Name))
		return nil
	},
}

// loadJob parses, validates and expands a job file.
func loadJob(filename string, allowedEnv []string) (v1.ConvertJob, error) {
	data, err := readJobFile(filename)
	if err != nil {
		return v1.ConvertJob{}, fmt.Errorf("failed to read job file '%s': %w", filename, err)
	}

	job, err := runner.ParseConvertJob(data)
	if err != nil {
		return v1.ConvertJob{}, formatValidationError(err)
	}

	variables, err := runner.BuildVariables(job, allowedEnv)
	if err != nil {
		return v1.ConvertJob{}, fmt.Errorf("failed to build variables: %w", err)
	}

	if err := runner.ExpandTemplates(&job, variables); err != nil {
		return v1.ConvertJob{}, fmt.Errorf("failed to expand templates: %w", err)
	}

	return job, nil
}

func writesToStdout(job v1.ConvertJob) bool {
	output := job.Spec.Output
	return output == nil || output.Sink == nil || output.Sink.Stdout != nil
}
