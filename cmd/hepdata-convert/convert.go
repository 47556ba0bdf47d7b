package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/hepdata/hepdata-converter-ws-client/pkg/converter"
	"github.com/urfave/cli/v3"
	"go.uber.org/zap"
)

var errInvalidResult = errors.New("server did not return an archive")

var convertCommand = &cli.Command{
	Name:  "convert",
	Usage: "Convert a file or directory",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:     "url",
			Aliases:  []string{"u"},
			Usage:    "Base URL of the hepdata-converter-ws server",
			Sources:  cli.EnvVars("HEPDATA_CONVERTER_URL"),
			Required: true,
		},
		&cli.StringFlag{
			Name:     "input",
			Aliases:  []string{"i"},
			Usage:    "File or directory to convert, - for stdin (stdin must be a regular file)",
			Required: true,
		},
		&cli.StringFlag{
			Name:    "output",
			Aliases: []string{"o"},
			Usage:   "Destination path, - for stdout",
			Value:   "-",
		},
		&cli.StringSliceFlag{
			Name:  "option",
			Usage: "Converter option as key=value (can be repeated)",
		},
		&cli.StringFlag{
			Name:  "options-file",
			Usage: "YAML or JSON file with converter options",
		},
		&cli.StringFlag{
			Name:  "id",
			Usage: "Cache key sent to the server",
		},
		&cli.BoolFlag{
			Name:  "extract",
			Usage: "Extract the result archive into --output (default: true for paths)",
		},
		&cli.DurationFlag{
			Name:  "timeout",
			Usage: "Timeout for the HTTP exchange",
			Value: converter.DefaultTimeout,
		},
		&cli.StringSliceFlag{
			Name:  "header",
			Usage: "Extra request header as 'Name: value' (can be repeated)",
		},
		&cli.BoolFlag{
			Name:  "insecure",
			Usage: "Skip TLS certificate verification",
		},
		&cli.BoolFlag{
			Name:  "force",
			Usage: "Write to stdout even when it is a terminal",
		},
	},
	Action: func(ctx context.Context, command *cli.Command) error {
		logger := getLogger(ctx)

		var optionsFile []byte
		if name := command.String("options-file"); name != "" {
			data, err := os.ReadFile(name)
			if err != nil {
				return fmt.Errorf("failed to read options file '%s': %w", name, err)
			}
			optionsFile = data
		}

		options, err := parseOptions(optionsFile, command.StringSlice("option"))
		if err != nil {
			return err
		}

		headers, err := parseHeaders(command.StringSlice("header"))
		if err != nil {
			return err
		}

		input := converter.FromPath(command.String("input"))
		if command.String("input") == "-" {
			input = converter.FromReader(os.Stdin)
		}

		output := command.String("output")
		toStdout := output == "-" || output == ""

		var target converter.Output
		extract := command.Bool("extract")
		if toStdout {
			if err := checkBinaryStdout(ctx, command.Bool("force")); err != nil {
				return err
			}
			target = converter.ToWriter(os.Stdout)
		} else {
			target = converter.ToPath(output)
			if !command.IsSet("extract") {
				extract = true
			}
		}

		client, err := converter.New(command.String("url"),
			converter.WithLogger(logger.Named("converter")),
			converter.WithHeaders(headers),
			converter.WithInsecure(command.Bool("insecure")),
		)
		if err != nil {
			return fmt.Errorf("failed to create client: %w", err)
		}

		logger = logger.With(zap.String("url", client.URL()), zap.String("output", output))
		logger.Debug("converting", zap.Any("options", options), zap.Bool("extract", extract))

		start := time.Now()
		result, err := client.Convert(ctx, input, target,
			converter.WithOptions(options),
			converter.WithID(command.String("id")),
			converter.WithExtract(extract),
			converter.WithTimeout(command.Duration("timeout")),
		)
		if err != nil {
			return fmt.Errorf("failed to convert: %w", err)
		}

		if !result.Valid {
			return errInvalidResult
		}

		logger.Info("conversion finished", zap.Duration("duration", time.Since(start)))
		return nil
	},
}
