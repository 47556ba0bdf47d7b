package converter

import "io"

// DefaultArchiveName is the name of the packed input inside the request archive.
const DefaultArchiveName = "hepdata-converter-ws-data"

// Options are passed through to the converter service. The "filename" key also
// renames the packed input inside the request archive.
type Options map[string]any

// ArchiveName returns the "filename" option, or DefaultArchiveName when unset.
func (o Options) ArchiveName() string {
	if name, ok := o["filename"].(string); ok && name != "" {
		return name
	}
	return DefaultArchiveName
}

// Input is what gets converted: a PathInput or a ReaderInput.
type Input interface {
	isInput()
}

// PathInput is a file or directory on the client filesystem. It is only read.
type PathInput struct {
	Path string
}

// ReaderInput is a stream holding the content of a single file. The reader must
// also implement io.Seeker: the whole stream is packed from offset 0 whatever its
// current position, and that position is restored afterwards.
type ReaderInput struct {
	Reader io.Reader
}

func (PathInput) isInput()   {}
func (ReaderInput) isInput() {}

func FromPath(path string) Input {
	return PathInput{Path: path}
}

func FromReader(r io.Reader) Input {
	return ReaderInput{Reader: r}
}

// Output is where the response goes: a PathOutput, a WriterOutput, or nil to get
// the raw response back in Result.Data.
type Output interface {
	isOutput()
}

// PathOutput receives either the raw response or, when extracting, the single
// top-level entry of the response archive.
type PathOutput struct {
	Path string
}

// WriterOutput receives the raw response. It cannot be combined with extraction.
type WriterOutput struct {
	Writer io.Writer
}

func (PathOutput) isOutput()   {}
func (WriterOutput) isOutput() {}

func ToPath(path string) Output {
	return PathOutput{Path: path}
}

func ToWriter(w io.Writer) Output {
	return WriterOutput{Writer: w}
}

// Result is the outcome of a conversion that reached the server.
type Result struct {
	// Data is the raw response body. It is only set when no Output was given.
	Data []byte
	// Valid is false when the server answered with something other than an
	// archive, which usually means the conversion failed on the server side.
	Valid bool
}
