package converter

import (
	"bytes"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/hepdata/hepdata-converter-ws-client/internal/archive"
	"github.com/hepdata/hepdata-converter-ws-client/internal/testserver"
	"github.com/hepdata/hepdata-converter-ws-client/internal/transport"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

var errorPayload = []byte("Exception: unknown input format 'foo'")

// renameFailFs injects a failure into the final move of an extraction.
type renameFailFs struct {
	afero.Fs
}

func (renameFailFs) Rename(string, string) error {
	return errors.New("injected rename failure")
}

func newTestClient(t *testing.T, srv *testserver.Server, opts ...Option) *Client {
	t.Helper()
	opts = append([]Option{
		WithHTTPClient(srv.Client()),
		WithLogger(zaptest.NewLogger(t)),
	}, opts...)
	c, err := New(srv.URL, opts...)
	require.NoError(t, err)
	return c
}

// writeSubmission creates a small submission directory and returns its path.
func writeSubmission(t *testing.T) string {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "submission")
	files := map[string]string{
		"submission.yaml":    "---\nadditional_resources: []\n",
		"data1.yaml":         "independent_variables: []\n",
		"extra/notes/readme": "notes",
	}
	for name, content := range files {
		p := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0644))
	}
	return dir
}

// assertNoTempDirs fails if an extraction temp directory was left in dir.
func assertNoTempDirs(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, e := range entries {
		assert.False(t, strings.HasPrefix(e.Name(), ".hdc-"), "temporary directory %s left behind", e.Name())
	}
}

func TestConvert_NoOutputReturnsRawBytes(t *testing.T) {
	base := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(base, "/in.yaml", []byte("data"), 0644))
	// Writes fail on a read-only filesystem, proving nothing is materialized.
	fs := afero.NewReadOnlyFs(base)

	tests := []struct {
		name      string
		responder testserver.Responder
		extract   bool
		wantValid bool
	}{
		{name: "archive response", responder: testserver.Echo(), extract: true, wantValid: true},
		{name: "archive response without extract", responder: testserver.Echo(), extract: false, wantValid: true},
		{name: "error payload", responder: testserver.Fixed(http.StatusOK, errorPayload), extract: true, wantValid: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := testserver.New(t, tt.responder)
			c := newTestClient(t, srv, WithFs(fs))

			res, err := c.Convert(t.Context(), FromPath("/in.yaml"), nil, WithExtract(tt.extract))
			require.NoError(t, err)
			assert.Equal(t, tt.wantValid, res.Valid)
			require.Len(t, srv.Requests(), 1)
			if tt.wantValid {
				assert.Equal(t, srv.Requests()[0].Input, res.Data)
			} else {
				assert.Equal(t, errorPayload, res.Data)
			}
		})
	}
}

func TestConvert_StreamOutputWithExtractFailsBeforeRequest(t *testing.T) {
	srv := testserver.New(t, testserver.Echo())
	c := newTestClient(t, srv)

	var out bytes.Buffer
	_, err := c.Convert(t.Context(), FromReader(strings.NewReader("data")), ToWriter(&out), WithExtract(true))

	require.ErrorIs(t, err, ErrInvalidCombination)
	assert.Empty(t, srv.Requests())
	assert.Zero(t, out.Len())
}

func TestConvert_StreamOutput(t *testing.T) {
	srv := testserver.New(t, testserver.Echo())
	c := newTestClient(t, srv)

	var out bytes.Buffer
	res, err := c.Convert(t.Context(), FromReader(strings.NewReader("data")), ToWriter(&out), WithExtract(false))
	require.NoError(t, err)

	assert.True(t, res.Valid)
	assert.Nil(t, res.Data)
	assert.Equal(t, srv.Requests()[0].Input, out.Bytes())
}

func TestConvert_InvalidArgumentsFailBeforeRequest(t *testing.T) {
	tests := []struct {
		name    string
		input   Input
		output  Output
		wantErr error
	}{
		{name: "nil input", input: nil, wantErr: ErrInvalidInput},
		{name: "missing input path", input: FromPath("/nope/nothing"), wantErr: ErrNotFound},
		{name: "unseekable input", input: FromReader(&bytes.Buffer{}), wantErr: ErrUnseekable},
		{name: "empty output path", input: FromReader(strings.NewReader("x")), output: ToPath(""), wantErr: ErrInvalidOutput},
		{name: "nil output writer", input: FromReader(strings.NewReader("x")), output: ToWriter(nil), wantErr: ErrInvalidOutput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := testserver.New(t, testserver.Echo())
			c := newTestClient(t, srv)

			_, err := c.Convert(t.Context(), tt.input, tt.output)
			require.ErrorIs(t, err, tt.wantErr)
			assert.Empty(t, srv.Requests())
		})
	}
}

func TestConvert_UnencodableOptions(t *testing.T) {
	srv := testserver.New(t, testserver.Echo())
	c := newTestClient(t, srv)

	_, err := c.Convert(t.Context(), FromReader(strings.NewReader("x")), nil,
		WithOptions(Options{"callback": func() {}}))
	require.ErrorIs(t, err, ErrInvalidOptions)
	assert.Empty(t, srv.Requests())
}

func TestConvert_ServerErrorIsTransportError(t *testing.T) {
	srv := testserver.New(t, testserver.Fixed(http.StatusInternalServerError, []byte("Internal Server Error")))
	c := newTestClient(t, srv)

	outDir := t.TempDir()
	target := filepath.Join(outDir, "converted")

	_, err := c.Convert(t.Context(), FromPath(writeSubmission(t)), ToPath(target))

	var transportErr *TransportError
	require.ErrorAs(t, err, &transportErr)
	assert.Contains(t, err.Error(), srv.URL)

	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusInternalServerError, statusErr.StatusCode)

	assert.NoFileExists(t, target)
	assert.NoDirExists(t, target)
	assertNoTempDirs(t, outDir)
}

func TestConvert_ErrorPayloadWrittenVerbatimWithoutExtract(t *testing.T) {
	srv := testserver.New(t, testserver.Fixed(http.StatusOK, errorPayload))
	c := newTestClient(t, srv)

	target := filepath.Join(t.TempDir(), "nested", "out.tar.gz")
	res, err := c.Convert(t.Context(), FromPath(writeSubmission(t)), ToPath(target), WithExtract(false))
	require.NoError(t, err)
	assert.False(t, res.Valid)

	content, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, errorPayload, content)
}

func TestConvert_ArchiveWrittenVerbatimWithoutExtract(t *testing.T) {
	srv := testserver.New(t, testserver.Echo())
	c := newTestClient(t, srv)

	target := filepath.Join(t.TempDir(), "out.tar.gz")
	res, err := c.Convert(t.Context(), FromPath(writeSubmission(t)), ToPath(target), WithExtract(false))
	require.NoError(t, err)
	assert.True(t, res.Valid)

	content, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, srv.Requests()[0].Input, content)
}

func TestConvert_ErrorPayloadWithExtractWritesNothing(t *testing.T) {
	srv := testserver.New(t, testserver.Fixed(http.StatusOK, errorPayload))
	c := newTestClient(t, srv)

	outDir := t.TempDir()
	target := filepath.Join(outDir, "converted")
	res, err := c.Convert(t.Context(), FromPath(writeSubmission(t)), ToPath(target))
	require.NoError(t, err)
	assert.False(t, res.Valid)

	entries, err := os.ReadDir(outDir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestConvert_ExtractDirectoryRoundTrip(t *testing.T) {
	srv := testserver.New(t, testserver.Echo())
	c := newTestClient(t, srv)

	input := writeSubmission(t)
	outDir := t.TempDir()
	target := filepath.Join(outDir, "converted")

	res, err := c.Convert(t.Context(), FromPath(input), ToPath(target))
	require.NoError(t, err)
	assert.True(t, res.Valid)
	assert.Nil(t, res.Data)

	err = filepath.WalkDir(input, func(p string, d os.DirEntry, err error) error {
		require.NoError(t, err)
		rel, err := filepath.Rel(input, p)
		require.NoError(t, err)
		got := filepath.Join(target, rel)
		if d.IsDir() {
			assert.DirExists(t, got)
			return nil
		}
		want, err := os.ReadFile(p)
		require.NoError(t, err)
		gotContent, err := os.ReadFile(got)
		require.NoError(t, err)
		assert.Equal(t, want, gotContent, "content of %s", rel)
		return nil
	})
	require.NoError(t, err)

	assertNoTempDirs(t, outDir)
}

func TestConvert_ExtractSingleFile(t *testing.T) {
	srv := testserver.New(t, testserver.Echo())
	c := newTestClient(t, srv)

	target := filepath.Join(t.TempDir(), "table.yaml")
	res, err := c.Convert(t.Context(), FromReader(strings.NewReader("table content")), ToPath(target),
		WithOptions(Options{"filename": "table.yaml"}))
	require.NoError(t, err)
	assert.True(t, res.Valid)

	content, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, "table content", string(content))
}

func TestConvert_ExtractReplacesExistingTarget(t *testing.T) {
	srv := testserver.New(t, testserver.Echo())
	c := newTestClient(t, srv)

	outDir := t.TempDir()
	target := filepath.Join(outDir, "converted")
	require.NoError(t, os.MkdirAll(filepath.Join(target, "stale"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(target, "stale", "old.txt"), []byte("old"), 0644))

	res, err := c.Convert(t.Context(), FromPath(writeSubmission(t)), ToPath(target))
	require.NoError(t, err)
	assert.True(t, res.Valid)

	assert.NoDirExists(t, filepath.Join(target, "stale"))
	assert.FileExists(t, filepath.Join(target, "submission.yaml"))
	assertNoTempDirs(t, outDir)
}

func TestConvert_MoveFailureStillRemovesTempDir(t *testing.T) {
	srv := testserver.New(t, testserver.Echo())
	c := newTestClient(t, srv, WithFs(renameFailFs{afero.NewOsFs()}))

	outDir := t.TempDir()
	target := filepath.Join(outDir, "converted")

	_, err := c.Convert(t.Context(), FromPath(writeSubmission(t)), ToPath(target))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "injected rename failure")

	assert.NoDirExists(t, target)
	assertNoTempDirs(t, outDir)
}

func TestConvert_MultipleTopLevelEntriesIsAnError(t *testing.T) {
	archiver, err := archive.NewTarArchiver("gzip")
	require.NoError(t, err)
	require.NoError(t, archiver.AddFile(t.Context(), "a.yaml", strings.NewReader("a"), 1))
	require.NoError(t, archiver.AddFile(t.Context(), "b.yaml", strings.NewReader("b"), 1))
	body, err := archiver.Close()
	require.NoError(t, err)

	srv := testserver.New(t, testserver.Fixed(http.StatusOK, body))
	c := newTestClient(t, srv)

	outDir := t.TempDir()
	_, err = c.Convert(t.Context(), FromReader(strings.NewReader("x")), ToPath(filepath.Join(outDir, "out")))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "found 2")
	assertNoTempDirs(t, outDir)
}

func TestConvert_FailedExtractRemovesCreatedParents(t *testing.T) {
	archiver, err := archive.NewTarArchiver("gzip")
	require.NoError(t, err)
	require.NoError(t, archiver.AddFile(t.Context(), "a.yaml", strings.NewReader("a"), 1))
	require.NoError(t, archiver.AddFile(t.Context(), "b.yaml", strings.NewReader("b"), 1))
	twoEntries, err := archiver.Close()
	require.NoError(t, err)

	tests := []struct {
		name        string
		responder   testserver.Responder
		fs          afero.Fs
		errContains string
	}{
		{
			name:        "move fails",
			responder:   testserver.Echo(),
			fs:          renameFailFs{afero.NewOsFs()},
			errContains: "injected rename failure",
		},
		{
			name:        "several top-level entries",
			responder:   testserver.Fixed(http.StatusOK, twoEntries),
			fs:          afero.NewOsFs(),
			errContains: "found 2",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := testserver.New(t, tt.responder)
			c := newTestClient(t, srv, WithFs(tt.fs))

			outDir := t.TempDir()
			existing := filepath.Join(outDir, "existing")
			require.NoError(t, os.Mkdir(existing, 0755))
			target := filepath.Join(existing, "new", "deep", "out")

			_, err := c.Convert(t.Context(), FromPath(writeSubmission(t)), ToPath(target))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errContains)

			assert.NoDirExists(t, filepath.Join(existing, "new"))
			assert.DirExists(t, existing)
			assertNoTempDirs(t, existing)
		})
	}
}

func TestConvert_ExtractKeepsCreatedParents(t *testing.T) {
	srv := testserver.New(t, testserver.Echo())
	c := newTestClient(t, srv)

	target := filepath.Join(t.TempDir(), "new", "deep", "out")
	_, err := c.Convert(t.Context(), FromPath(writeSubmission(t)), ToPath(target))
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(target, "submission.yaml"))
}

func TestTopMissingDir(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, fs.MkdirAll("/data/out", 0755))

	tests := []struct {
		dir  string
		want string
	}{
		{dir: "/data/out", want: ""},
		{dir: "/data/out/a", want: "/data/out/a"},
		{dir: "/data/out/a/b/c", want: "/data/out/a"},
		{dir: "/other/x", want: "/other"},
	}

	for _, tt := range tests {
		t.Run(tt.dir, func(t *testing.T) {
			assert.Equal(t, filepath.FromSlash(tt.want), topMissingDir(fs, filepath.FromSlash(tt.dir)))
		})
	}
}

func TestConvert_Envelope(t *testing.T) {
	tests := []struct {
		name      string
		opts      []ConvertOption
		wantID    any
		wantEntry string
		wantOpts  map[string]any
	}{
		{
			name:      "defaults",
			wantID:    nil,
			wantEntry: DefaultArchiveName,
		},
		{
			name:      "filename option renames entry and is passed through",
			opts:      []ConvertOption{WithOptions(Options{"filename": "ins1234.yaml", "output_format": "root"})},
			wantEntry: "ins1234.yaml",
			wantOpts:  map[string]any{"filename": "ins1234.yaml", "output_format": "root"},
		},
		{
			name:      "zero id is sent",
			opts:      []ConvertOption{WithID(0)},
			wantID:    float64(0),
			wantEntry: DefaultArchiveName,
		},
		{
			name:      "empty string id is omitted",
			opts:      []ConvertOption{WithID("")},
			wantID:    nil,
			wantEntry: DefaultArchiveName,
		},
		{
			name:      "string id",
			opts:      []ConvertOption{WithID("ins1234")},
			wantID:    "ins1234",
			wantEntry: DefaultArchiveName,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := testserver.New(t, testserver.Echo())
			c := newTestClient(t, srv)

			_, err := c.Convert(t.Context(), FromReader(strings.NewReader("payload")), nil, tt.opts...)
			require.NoError(t, err)

			require.Len(t, srv.Requests(), 1)
			env := srv.Requests()[0]
			assert.Equal(t, tt.wantID, env.ID)
			if tt.wantOpts == nil {
				assert.Empty(t, env.Options)
			} else {
				assert.Equal(t, tt.wantOpts, env.Options)
			}

			entries := readEntries(t, env.Input)
			require.Contains(t, entries, tt.wantEntry)
			assert.Equal(t, "payload", entries[tt.wantEntry].content)
		})
	}
}

func TestConvert_Timeout(t *testing.T) {
	srv := testserver.New(t, func(env transport.Envelope) (int, []byte) {
		time.Sleep(500 * time.Millisecond)
		return http.StatusOK, env.Input
	})
	c := newTestClient(t, srv)

	_, err := c.Convert(t.Context(), FromReader(strings.NewReader("x")), nil, WithTimeout(20*time.Millisecond))

	var transportErr *TransportError
	require.ErrorAs(t, err, &transportErr)
}

func TestConvert_OneShot(t *testing.T) {
	srv := testserver.New(t, testserver.Echo())

	res, err := Convert(t.Context(), srv.URL, FromReader(strings.NewReader("x")), nil)
	require.NoError(t, err)
	assert.True(t, res.Valid)
	assert.NotEmpty(t, res.Data)
}

func TestResolve_CheckOutput(t *testing.T) {
	var buf bytes.Buffer

	tests := []struct {
		name        string
		output      Output
		extract     bool
		wantExtract bool
		wantErr     error
	}{
		{name: "nil output forces extract off", output: nil, extract: true, wantExtract: false},
		{name: "path keeps extract", output: ToPath("/out"), extract: true, wantExtract: true},
		{name: "path without extract", output: ToPath("/out"), extract: false, wantExtract: false},
		{name: "writer without extract", output: ToWriter(&buf), extract: false, wantExtract: false},
		{name: "writer with extract", output: ToWriter(&buf), extract: true, wantErr: ErrInvalidCombination},
		{name: "empty path", output: ToPath(""), wantErr: ErrInvalidOutput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			extract, err := checkOutput(tt.output, tt.extract)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantExtract, extract)
		})
	}
}
