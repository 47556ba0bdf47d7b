package converter

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"

	"github.com/hepdata/hepdata-converter-ws-client/internal/archive"
	"github.com/spf13/afero"
	"go.uber.org/zap"
)

// checkOutput validates the output shape and returns the effective extract flag.
func checkOutput(output Output, extract bool) (bool, error) {
	switch out := output.(type) {
	case nil:
		return false, nil
	case PathOutput:
		if out.Path == "" {
			return false, newPreconditionError(ErrInvalidOutput, "empty path", nil)
		}
		return extract, nil
	case WriterOutput:
		if out.Writer == nil {
			return false, newPreconditionError(ErrInvalidOutput, "nil writer", nil)
		}
		if extract {
			return false, newPreconditionError(ErrInvalidCombination, "cannot extract into a stream", nil)
		}
		return false, nil
	default:
		return false, newPreconditionError(ErrInvalidOutput, fmt.Sprintf("%T", output), nil)
	}
}

// Resolve materializes a response body according to output and extract.
//
// With a nil output the body is returned in Result.Data and nothing else happens.
// With a PathOutput and extract, a valid archive has its single top-level entry moved
// to the path; an invalid one leaves the filesystem untouched. Otherwise the body is
// written verbatim. Result.Valid always reports whether body was an archive.
func (c *Client) Resolve(ctx context.Context, body []byte, output Output, extract bool) (Result, error) {
	extract, err := checkOutput(output, extract)
	if err != nil {
		return Result{}, err
	}

	validationErr := archive.Validate(body, archive.CompressionGzip)
	valid := validationErr == nil
	if !valid {
		c.logger.Warn("server returned a non-archive payload",
			zap.Int("body_bytes", len(body)),
			zap.NamedError("reason", validationErr),
		)
	}

	switch out := output.(type) {
	case nil:
		return Result{Data: body, Valid: valid}, nil
	case PathOutput:
		if !extract {
			if err := writeFile(c.fs, out.Path, body); err != nil {
				return Result{}, err
			}
			break
		}

		if !valid {
			return Result{Valid: false}, nil
		}

		if err := c.extractTo(ctx, body, out.Path); err != nil {
			return Result{}, err
		}
		c.logger.Debug("extracted response", zap.String("path", out.Path))
	case WriterOutput:
		if _, err := io.Copy(out.Writer, bytes.NewReader(body)); err != nil {
			return Result{}, fmt.Errorf("failed to write response to output stream: %w", err)
		}
	}

	return Result{Valid: valid}, nil
}

// extractTo unpacks body into a temporary directory next to target and moves the
// archive's single top-level entry onto target. The temporary directory is removed
// on every path out of this function, and so are any parent directories it created
// when it fails.
func (c *Client) extractTo(ctx context.Context, body []byte, target string) (err error) {
	parent := filepath.Dir(target)
	created := topMissingDir(c.fs, parent)
	if err := c.fs.MkdirAll(parent, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", parent, err)
	}
	if created != "" {
		defer func() {
			if err == nil {
				return
			}
			if rmErr := c.fs.RemoveAll(created); rmErr != nil {
				err = errors.Join(err, fmt.Errorf("failed to remove directory %s: %w", created, rmErr))
			}
		}()
	}

	tmpDir, err := afero.TempDir(c.fs, parent, ".hdc-")
	if err != nil {
		return fmt.Errorf("failed to create temporary directory: %w", err)
	}
	defer func() {
		if rmErr := c.fs.RemoveAll(tmpDir); rmErr != nil {
			err = errors.Join(err, fmt.Errorf("failed to remove temporary directory %s: %w", tmpDir, rmErr))
		}
	}()

	if err := archive.Extract(ctx, c.fs, body, archive.CompressionGzip, tmpDir); err != nil {
		return fmt.Errorf("failed to extract response: %w", err)
	}

	entries, err := afero.ReadDir(c.fs, tmpDir)
	if err != nil {
		return fmt.Errorf("failed to list extracted response: %w", err)
	}
	if len(entries) != 1 {
		return fmt.Errorf("expected a single top-level entry in response archive, found %d", len(entries))
	}

	if err := replace(c.fs, filepath.Join(tmpDir, entries[0].Name()), target); err != nil {
		return fmt.Errorf("failed to move response to %s: %w", target, err)
	}

	return nil
}

// topMissingDir returns the outermost ancestor of dir, dir included, that does not
// exist yet, or "" when dir exists.
func topMissingDir(fsys afero.Fs, dir string) string {
	var missing string
	for {
		if ok, err := afero.Exists(fsys, dir); ok || err != nil {
			return missing
		}
		missing = dir

		up := filepath.Dir(dir)
		if up == dir {
			return missing
		}
		dir = up
	}
}

// replace renames src onto dst, removing an existing dst the rename cannot overwrite.
func replace(fsys afero.Fs, src, dst string) error {
	renameErr := fsys.Rename(src, dst)
	if renameErr == nil {
		return nil
	}

	if _, err := fsys.Stat(dst); err != nil {
		return renameErr
	}

	if err := fsys.RemoveAll(dst); err != nil {
		return fmt.Errorf("failed to remove existing %s: %w", dst, err)
	}

	return fsys.Rename(src, dst)
}

func writeFile(fsys afero.Fs, path string, data []byte) (err error) {
	// Ensure parent directories exist
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := fsys.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	f, err := fsys.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer func() {
		err = errors.Join(err, f.Close())
	}()

	if _, err = f.Write(data); err != nil {
		return fmt.Errorf("failed to write to file: %w", err)
	}

	return nil
}
