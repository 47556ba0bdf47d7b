package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/hepdata/hepdata-converter-ws-client/pkg/converter"
	"github.com/spf13/afero"
	"github.com/urfave/cli/v3"
	"go.uber.org/zap"
)

var packCommand = &cli.Command{
	Name:  "pack",
	Usage: "Build the archive a conversion would send, without sending it",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:     "input",
			Aliases:  []string{"i"},
			Usage:    "File or directory to pack",
			Required: true,
		},
		&cli.StringFlag{
			Name:    "output",
			Aliases: []string{"o"},
			Usage:   "Destination path, - for stdout (default: <name><extension>)",
		},
		&cli.StringFlag{
			Name:  "name",
			Usage: "Name of the input inside the archive",
			Value: converter.DefaultArchiveName,
		},
		&cli.StringFlag{
			Name:  "compression",
			Usage: "Archive compression (gzip, zstd, none); the server only accepts gzip",
			Value: "gzip",
		},
		&cli.BoolFlag{
			Name:  "force",
			Usage: "Write to stdout even when it is a terminal",
		},
	},
	Action: func(ctx context.Context, command *cli.Command) error {
		logger := getLogger(ctx)
		fs := afero.NewOsFs()

		output, err := packDestination(command.String("output"), command.String("name"), command.String("compression"))
		if err != nil {
			return err
		}

		toStdout := output == "-"
		if toStdout {
			if err := checkBinaryStdout(ctx, command.Bool("force")); err != nil {
				return err
			}
		}

		data, err := converter.Pack(ctx, fs, converter.FromPath(command.String("input")),
			command.String("name"), command.String("compression"))
		if err != nil {
			return fmt.Errorf("failed to pack: %w", err)
		}

		if toStdout {
			if _, err := os.Stdout.Write(data); err != nil {
				return fmt.Errorf("failed to write archive: %w", err)
			}
		} else if err := afero.WriteFile(fs, output, data, 0o644); err != nil {
			return fmt.Errorf("failed to write archive: %w", err)
		}

		logger.Info("packed input",
			zap.String("input", command.String("input")),
			zap.String("output", output),
			zap.String("compression", command.String("compression")),
			zap.Int("bytes", len(data)),
		)
		return nil
	},
}

// packDestination resolves the pack output. Without an explicit output the
// archive is written to <name><extension> in the working directory.
func packDestination(output, name, compression string) (string, error) {
	if output != "" {
		return output, nil
	}

	ext, err := converter.ArchiveExtension(compression)
	if err != nil {
		return "", err
	}

	base := filepath.Base(name)
	if base == "." || base == string(filepath.Separator) {
		base = converter.DefaultArchiveName
	}
	return base + ext, nil
}
