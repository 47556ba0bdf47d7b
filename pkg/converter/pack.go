package converter

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"

	"github.com/hepdata/hepdata-converter-ws-client/internal/archive"
	"github.com/spf13/afero"
)

// Pack archives input under entryName and returns the compressed archive.
// Compression is "gzip" (the default when empty), "zstd" or "none"; the
// conversion service only accepts gzip.
func Pack(ctx context.Context, fsys afero.Fs, input Input, entryName, compression string) ([]byte, error) {
	archiver, err := archive.NewTarArchiver(compression)
	if err != nil {
		return nil, err
	}

	switch in := input.(type) {
	case PathInput:
		if err := packPath(ctx, fsys, archiver, in, entryName); err != nil {
			return nil, err
		}
	case ReaderInput:
		if err := packReader(ctx, archiver, in, entryName); err != nil {
			return nil, err
		}
	default:
		return nil, newPreconditionError(ErrInvalidInput, fmt.Sprintf("%T", input), nil)
	}

	data, err := archiver.Close()
	if err != nil {
		return nil, fmt.Errorf("failed to finalize archive: %w", err)
	}

	return data, nil
}

// ArchiveExtension returns the file extension of archives Pack builds with the
// given compression, e.g. ".tar.gz" for gzip.
func ArchiveExtension(compression string) (string, error) {
	c, err := archive.ParseCompression(compression)
	if err != nil {
		return "", err
	}
	return c.Extension(), nil
}

func packPath(ctx context.Context, fsys afero.Fs, archiver *archive.TarArchiver, in PathInput, entryName string) error {
	if in.Path == "" {
		return newPreconditionError(ErrNotFound, "empty path", nil)
	}

	if _, err := fsys.Stat(in.Path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return newPreconditionError(ErrNotFound, in.Path, nil)
		}
		return fmt.Errorf("failed to stat input %s: %w", in.Path, err)
	}

	if err := archiver.AddPath(ctx, fsys, in.Path, entryName); err != nil {
		return fmt.Errorf("failed to archive %s: %w", in.Path, err)
	}

	return nil
}

func packReader(ctx context.Context, archiver *archive.TarArchiver, in ReaderInput, entryName string) error {
	if in.Reader == nil {
		return newPreconditionError(ErrInvalidInput, "nil reader", nil)
	}

	seeker, ok := in.Reader.(io.Seeker)
	if !ok {
		return newPreconditionError(ErrUnseekable, fmt.Sprintf("%T", in.Reader), nil)
	}

	size, start, err := rewind(seeker)
	if err != nil {
		return newPreconditionError(ErrUnseekable, "failed to measure stream", err)
	}

	err = archiver.AddFile(ctx, entryName, in.Reader, size)
	if _, seekErr := seeker.Seek(start, io.SeekStart); seekErr != nil {
		err = errors.Join(err, fmt.Errorf("failed to restore stream position: %w", seekErr))
	}
	if err != nil {
		return fmt.Errorf("failed to archive input stream: %w", err)
	}

	return nil
}

// rewind seeks s to its start and returns the total length of the stream along
// with the position it was at, so the caller can put it back.
func rewind(s io.Seeker) (size, start int64, err error) {
	start, err = s.Seek(0, io.SeekCurrent)
	if err != nil {
		return 0, 0, err
	}

	size, err = s.Seek(0, io.SeekEnd)
	if err == nil {
		_, err = s.Seek(0, io.SeekStart)
	}
	if err != nil {
		_, _ = s.Seek(start, io.SeekStart)
		return 0, 0, err
	}

	return size, start, nil
}
