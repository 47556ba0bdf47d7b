package schemadoc

import (
	"encoding/json"
	"go/ast"
	"go/parser"
	"go/token"
	"path/filepath"
	"testing"

	"github.com/samber/lo"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const jobFile = "../../apis/v1/job.go"

func parseJobFile(t *testing.T) *ast.File {
	t.Helper()
	file, err := parser.ParseFile(token.NewFileSet(), jobFile, nil, parser.ParseComments)
	require.NoError(t, err)
	return file
}

func jobSchemas(t *testing.T) map[string]Schema {
	t.Helper()
	gen := NewGenerator(JobTargets)
	gen.AddFiles(parseJobFile(t))

	schemas, missing := gen.Schemas()
	require.Empty(t, missing)
	require.Len(t, schemas, len(JobTargets))
	return schemas
}

func field(t *testing.T, s Schema, name string) Field {
	t.Helper()
	f, ok := lo.Find(s.Fields, func(f Field) bool { return f.Name == name })
	require.True(t, ok, "field %s not found in %s", name, s.Name)
	return f
}

func TestGenerator_JobSchemas(t *testing.T) {
	schemas := jobSchemas(t)

	tests := []struct {
		file  string
		field string
		want  Field
	}{
		{
			file:  "convert-job.json",
			field: "Kind",
			want: Field{
				Name: "Kind", YAMLKey: "kind", Type: "string",
				Required: true, Enum: []string{"ConvertJob"},
			},
		},
		{
			file:  "convert-job.json",
			field: "Spec",
			want:  Field{Name: "Spec", YAMLKey: "spec", Type: "ConvertJobSpec", Ref: lo.ToPtr("ConvertJobSpec")},
		},
		{
			file:  "server-spec.json",
			field: "URL",
			want: Field{
				Name: "URL", YAMLKey: "url", Type: "string", Required: true, Template: true,
				Description: "URL is the base URL of the server; requests go to {url}/convert.",
			},
		},
		{
			file:  "server-spec.json",
			field: "Timeout",
			want: Field{
				Name: "Timeout", YAMLKey: "timeout", Type: "int",
				Description: `Timeout in seconds for the HTTP exchange. Default: "600"`,
				Default:     lo.ToPtr("600"),
			},
		},
		{
			file:  "server-spec.json",
			field: "Headers",
			want: Field{
				Name: "Headers", YAMLKey: "headers", Type: "map[string]string", Template: true,
				Description: "Headers are added to every request.",
			},
		},
		{
			file:  "convert-job-spec.json",
			field: "Output",
			want: Field{
				Name: "Output", YAMLKey: "output", Type: "OutputSpec", Ref: lo.ToPtr("OutputSpec"),
				Description: "Output configures where the result goes (default: stdout).",
			},
		},
		{
			file:  "s3-sink-spec.json",
			field: "Key",
			want: Field{
				Name: "Key", YAMLKey: "key", Type: "string", Template: true,
				Description: `Key of the uploaded object. Defaults to "$JOB_NAME.tar.gz"`,
				Default:     lo.ToPtr("$JOB_NAME.tar.gz"),
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.file+"/"+tt.field, func(t *testing.T) {
			s, ok := schemas[tt.file]
			require.True(t, ok)
			assert.Equal(t, tt.want, field(t, s, tt.field))
		})
	}
}

func TestGenerator_StructDocs(t *testing.T) {
	schemas := jobSchemas(t)

	job := schemas["convert-job.json"]
	assert.Equal(t, "ConvertJob", job.Name)
	assert.Equal(t, "ConvertJob describes one conversion against a hepdata-converter-ws server.", job.Description)
	assert.Equal(t, []string{"Kind", "Metadata", "Spec"}, lo.Map(job.Fields, func(f Field, _ int) string { return f.Name }))

	stdout := schemas["stdout-sink-spec.json"]
	assert.NotNil(t, stdout.Fields)
	assert.Empty(t, stdout.Fields)

	assert.Empty(t, schemas["metadata.json"].Description)
}

func TestGenerator_MissingTargets(t *testing.T) {
	gen := NewGenerator(map[string]string{
		"ServerSpec": "server-spec.json",
		"Zeta":       "zeta.json",
		"Alpha":      "alpha.json",
	})
	gen.AddFiles(parseJobFile(t))

	schemas, missing := gen.Schemas()
	assert.Equal(t, []string{"Alpha", "Zeta"}, missing)
	assert.Equal(t, []string{"server-spec.json"}, lo.Keys(schemas))

	// ServerSpec is not a target here, so nothing refers to it
	gen = NewGenerator(map[string]string{"ConvertJobSpec": "spec.json"})
	gen.AddFiles(parseJobFile(t))
	schemas, _ = gen.Schemas()
	assert.Nil(t, field(t, schemas["spec.json"], "Server").Ref)
}

func TestWrite(t *testing.T) {
	fs := afero.NewMemMapFs()
	dir := filepath.Join("docs", "schemas")

	written, err := Write(fs, dir, jobSchemas(t))
	require.NoError(t, err)
	require.Len(t, written, len(JobTargets))
	assert.IsIncreasing(t, written)

	data, err := afero.ReadFile(fs, filepath.Join(dir, "server-spec.json"))
	require.NoError(t, err)
	assert.Equal(t, byte('\n'), data[len(data)-1])

	var got Schema
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, "ServerSpec", got.Name)
	assert.Equal(t, "600", lo.FromPtr(field(t, got, "Timeout").Default))
}

func TestWrite_ReadOnly(t *testing.T) {
	fs := afero.NewReadOnlyFs(afero.NewMemMapFs())

	_, err := Write(fs, "docs", jobSchemas(t))
	require.Error(t, err)
}

func TestGenerator_Load(t *testing.T) {
	if testing.Short() {
		t.Skip("loads packages through the go command")
	}

	gen := NewGenerator(JobTargets)
	require.NoError(t, gen.Load("../..", "./apis/v1"))

	schemas, missing := gen.Schemas()
	require.Empty(t, missing)
	assert.Equal(t, jobSchemas(t), schemas)
}
