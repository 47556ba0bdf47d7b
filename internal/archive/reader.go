package archive

import (
	"archive/tar"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/spf13/afero"
)

var (
	// ErrEmptyArchive is returned by Validate for a well-formed archive without entries.
	ErrEmptyArchive = errors.New("archive has no entries")

	// ErrUnsafePath is returned by Extract for entries that would land outside the target directory.
	ErrUnsafePath = errors.New("archive entry escapes extraction directory")
)

func newDecompressor(r io.Reader, compression Compression) (io.ReadCloser, error) {
	switch compression {
	case CompressionGzip, "":
		gr, err := gzip.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("failed to open gzip stream: %w", err)
		}
		return gr, nil
	case CompressionZstd:
		zr, err := zstd.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("failed to open zstd stream: %w", err)
		}
		return zr.IOReadCloser(), nil
	case CompressionNone:
		return io.NopCloser(r), nil
	default:
		return nil, fmt.Errorf("unsupported compression type: %s", compression)
	}
}

// Validate reports whether data is a well-formed tar archive with at least one
// entry. It reads every header and body but writes nothing.
func Validate(data []byte, compression Compression) error {
	rc, err := newDecompressor(bytes.NewReader(data), compression)
	if err != nil {
		return err
	}
	defer func() { _ = rc.Close() }()

	tr := tar.NewReader(rc)
	entries := 0
	for {
		_, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("invalid tar entry %d: %w", entries, err)
		}
		if _, err := io.Copy(io.Discard, tr); err != nil {
			return fmt.Errorf("invalid tar content for entry %d: %w", entries, err)
		}
		entries++
	}

	if entries == 0 {
		return ErrEmptyArchive
	}

	return nil
}

// Extract unpacks data into dir. Directories, regular files and symlinks are
// materialized; other entry types are skipped.
func Extract(ctx context.Context, fsys afero.Fs, data []byte, compression Compression, dir string) error {
	rc, err := newDecompressor(bytes.NewReader(data), compression)
	if err != nil {
		return err
	}
	defer func() { _ = rc.Close() }()

	tr := tar.NewReader(rc)
	for {
		header, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read tar entry: %w", err)
		}

		if err := ctx.Err(); err != nil {
			return fmt.Errorf("context cancelled: %w", err)
		}

		target, err := safeJoin(dir, header.Name)
		if err != nil {
			return err
		}

		switch header.Typeflag {
		case tar.TypeDir:
			if err := fsys.MkdirAll(target, header.FileInfo().Mode().Perm()|0700); err != nil {
				return fmt.Errorf("failed to create directory %s: %w", target, err)
			}
		case tar.TypeReg:
			if err := extractFile(fsys, target, header, tr); err != nil {
				return err
			}
		case tar.TypeSymlink:
			if err := extractSymlink(fsys, dir, target, header.Linkname); err != nil {
				return err
			}
		}
	}
}

func extractFile(fsys afero.Fs, target string, header *tar.Header, r io.Reader) (err error) {
	if err := fsys.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", filepath.Dir(target), err)
	}

	f, err := fsys.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, header.FileInfo().Mode().Perm())
	if err != nil {
		return fmt.Errorf("failed to create file %s: %w", target, err)
	}
	defer func() {
		err = errors.Join(err, f.Close())
	}()

	if _, err = io.Copy(f, r); err != nil {
		return fmt.Errorf("failed to write file %s: %w", target, err)
	}

	return nil
}

func extractSymlink(fsys afero.Fs, root, target, linkname string) error {
	if filepath.IsAbs(linkname) {
		return fmt.Errorf("%w: symlink %s -> %s", ErrUnsafePath, target, linkname)
	}

	resolved := filepath.Join(filepath.Dir(target), filepath.FromSlash(linkname))
	if !within(root, resolved) {
		return fmt.Errorf("%w: symlink %s -> %s", ErrUnsafePath, target, linkname)
	}

	linker, ok := fsys.(afero.Linker)
	if !ok {
		return fmt.Errorf("cannot create symlink %s on %s", target, fsys.Name())
	}

	if err := fsys.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", filepath.Dir(target), err)
	}

	if err := linker.SymlinkIfPossible(linkname, target); err != nil {
		return fmt.Errorf("failed to create symlink %s: %w", target, err)
	}

	return nil
}

func safeJoin(root, name string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(name))
	if filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrUnsafePath, name)
	}
	return filepath.Join(root, clean), nil
}

func within(root, p string) bool {
	rel, err := filepath.Rel(root, p)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
