// Package archive builds and reads the tar archives exchanged with the conversion service.
package archive

import (
	"archive/tar"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/spf13/afero"
)

// Compression defines supported compression algorithms.
type Compression string

const (
	CompressionGzip Compression = "gzip"
	CompressionZstd Compression = "zstd"
	CompressionNone Compression = "none"
)

// ParseCompression validates a compression name. Empty defaults to gzip.
func ParseCompression(s string) (Compression, error) {
	switch c := Compression(s); c {
	case "":
		return CompressionGzip, nil
	case CompressionGzip, CompressionZstd, CompressionNone:
		return c, nil
	default:
		return "", fmt.Errorf("unsupported compression type: %s", s)
	}
}

// Extension returns the file extension for archives using this compression.
func (c Compression) Extension() string {
	switch c {
	case CompressionGzip:
		return ".tar.gz"
	case CompressionZstd:
		return ".tar.zst"
	default:
		return ".tar"
	}
}

// TarArchiver creates tar archives in memory with optional compression.
type TarArchiver struct {
	buf        *bytes.Buffer
	compressor io.WriteCloser
	tarWriter  *tar.Writer
	closed     bool
}

// NewTarArchiver creates a new tar archiver with the specified compression.
// Supported compression types: "gzip", "zstd", "none".
// If compression is empty, defaults to "gzip".
func NewTarArchiver(compression string) (*TarArchiver, error) {
	ct, err := ParseCompression(compression)
	if err != nil {
		return nil, err
	}

	buf := new(bytes.Buffer)
	var compressor io.WriteCloser

	switch ct {
	case CompressionGzip:
		compressor = gzip.NewWriter(buf)
	case CompressionZstd:
		compressor, err = zstd.NewWriter(buf)
		if err != nil {
			return nil, fmt.Errorf("failed to create zstd writer: %w", err)
		}
	case CompressionNone:
		compressor = &nopWriteCloser{buf}
	}

	return &TarArchiver{
		buf:        buf,
		compressor: compressor,
		tarWriter:  tar.NewWriter(compressor),
	}, nil
}

// AddFile adds a regular file entry of the declared size, reading exactly size bytes from data.
func (a *TarArchiver) AddFile(ctx context.Context, name string, data io.Reader, size int64) error {
	if a.closed {
		return fmt.Errorf("archiver is closed")
	}

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context cancelled: %w", err)
	}

	header := &tar.Header{
		Typeflag: tar.TypeReg,
		Name:     name,
		Mode:     0644,
		Size:     size,
		ModTime:  time.Now(),
	}

	if err := a.tarWriter.WriteHeader(header); err != nil {
		return fmt.Errorf("failed to write tar header: %w", err)
	}

	n, err := io.CopyN(a.tarWriter, data, size)
	if err != nil {
		return fmt.Errorf("failed to write tar content for %s (%d of %d bytes): %w", name, n, size, err)
	}

	return nil
}

// AddPath adds the file or directory at src under name. Directories are walked
// recursively and their entries are stored as name/<relative path>.
func (a *TarArchiver) AddPath(ctx context.Context, fsys afero.Fs, src, name string) error {
	if a.closed {
		return fmt.Errorf("archiver is closed")
	}

	return afero.Walk(fsys, src, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return fmt.Errorf("failed to walk %s: %w", p, err)
		}

		if err := ctx.Err(); err != nil {
			return fmt.Errorf("context cancelled: %w", err)
		}

		rel, err := filepath.Rel(src, p)
		if err != nil {
			return fmt.Errorf("failed to compute relative path of %s: %w", p, err)
		}

		entry := name
		if rel != "." {
			entry = path.Join(name, filepath.ToSlash(rel))
		}

		return a.addEntry(fsys, p, entry, info)
	})
}

func (a *TarArchiver) addEntry(fsys afero.Fs, p, entry string, info os.FileInfo) error {
	var link string
	if info.Mode()&os.ModeSymlink != 0 {
		reader, ok := fsys.(afero.LinkReader)
		if !ok {
			return fmt.Errorf("cannot read symlink %s on %s", p, fsys.Name())
		}

		var err error
		if link, err = reader.ReadlinkIfPossible(p); err != nil {
			return fmt.Errorf("failed to read symlink %s: %w", p, err)
		}
	}

	header, err := tar.FileInfoHeader(info, link)
	if err != nil {
		return fmt.Errorf("failed to build tar header for %s: %w", p, err)
	}

	header.Name = entry
	if info.IsDir() {
		header.Name += "/"
	}

	if err := a.tarWriter.WriteHeader(header); err != nil {
		return fmt.Errorf("failed to write tar header: %w", err)
	}

	if !info.Mode().IsRegular() {
		return nil
	}

	f, err := fsys.Open(p)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", p, err)
	}
	defer func() { _ = f.Close() }()

	if _, err := io.Copy(a.tarWriter, f); err != nil {
		return fmt.Errorf("failed to write tar content for %s: %w", p, err)
	}

	return nil
}

// Close finalizes the tar archive and returns the complete archive data.
func (a *TarArchiver) Close() ([]byte, error) {
	if a.closed {
		return nil, fmt.Errorf("archiver already closed")
	}
	a.closed = true

	// Close tar writer first
	if err := a.tarWriter.Close(); err != nil {
		return nil, fmt.Errorf("failed to close tar writer: %w", err)
	}

	if err := a.compressor.Close(); err != nil {
		return nil, fmt.Errorf("failed to close compressor: %w", err)
	}

	return a.buf.Bytes(), nil
}

// nopWriteCloser wraps a Writer to provide a no-op Close method.
type nopWriteCloser struct {
	io.Writer
}

func (n *nopWriteCloser) Close() error {
	return nil
}
