// Package schemadoc derives JSON field documentation from the job API structs,
// reading their doc comments and their yaml, validate and template tags.
package schemadoc

import (
	"encoding/json"
	"fmt"
	"go/ast"
	"go/token"
	"path/filepath"
	"reflect"
	"regexp"
	"slices"
	"strings"

	"github.com/samber/lo"
	"github.com/spf13/afero"
	"golang.org/x/tools/go/packages"
)

// Schema documents one struct.
type Schema struct {
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Fields      []Field `json:"fields"`
}

// Field documents one exported struct field.
type Field struct {
	Name        string   `json:"name"`
	YAMLKey     string   `json:"yamlKey"`
	Type        string   `json:"type"`
	Required    bool     `json:"required"`
	Template    bool     `json:"template"`
	Description string   `json:"description"`
	Enum        []string `json:"enum"`
	Ref         *string  `json:"ref"`
	Default     *string  `json:"default"`
}

// JobTargets maps the apis/v1 job structs to their output file names.
var JobTargets = map[string]string{
	"ConvertJob":         "convert-job.json",
	"Metadata":           "metadata.json",
	"ConvertJobSpec":     "convert-job-spec.json",
	"ServerSpec":         "server-spec.json",
	"InputSpec":          "input-spec.json",
	"OutputSpec":         "output-spec.json",
	"SinkSpec":           "sink-spec.json",
	"StdoutSinkSpec":     "stdout-sink-spec.json",
	"FilesystemSinkSpec": "filesystem-sink-spec.json",
	"S3SinkSpec":         "s3-sink-spec.json",
	"S3Credentials":      "s3-credentials.json",
}

// Matches `Default: "600"`, `Defaults to "$JOB_NAME.tar.gz"` and `Default is $VAR`.
var defaultPattern = regexp.MustCompile(`[Dd]efaults?(?: is|:| to)[:\s]+(?:["']([^"']+)["']|(\$\w+))`)

type structDecl struct {
	doc  string
	node *ast.StructType
}

// Generator turns struct declarations into schemas. Fields pointing at another
// target struct get a Ref to it.
type Generator struct {
	targets map[string]string
	structs map[string]structDecl
}

// NewGenerator returns a generator for the given struct name to file name map.
func NewGenerator(targets map[string]string) *Generator {
	return &Generator{
		targets: targets,
		structs: make(map[string]structDecl),
	}
}

// Load parses the package matching pattern, resolved from dir, and adds its files.
func (g *Generator) Load(dir, pattern string) error {
	pkgs, err := packages.Load(&packages.Config{
		Mode: packages.NeedName | packages.NeedFiles | packages.NeedSyntax,
		Dir:  dir,
	}, pattern)
	if err != nil {
		return fmt.Errorf("failed to load %s: %w", pattern, err)
	}
	if len(pkgs) == 0 {
		return fmt.Errorf("no packages match %s", pattern)
	}

	for _, pkg := range pkgs {
		if len(pkg.Errors) > 0 {
			return fmt.Errorf("package %s has errors: %v", pkg.PkgPath, pkg.Errors[0])
		}
		g.AddFiles(pkg.Syntax...)
	}
	return nil
}

// AddFiles records the struct type declarations of files.
func (g *Generator) AddFiles(files ...*ast.File) {
	for _, file := range files {
		for _, decl := range file.Decls {
			gen, ok := decl.(*ast.GenDecl)
			if !ok || gen.Tok != token.TYPE {
				continue
			}
			for _, spec := range gen.Specs {
				ts, ok := spec.(*ast.TypeSpec)
				if !ok {
					continue
				}
				st, ok := ts.Type.(*ast.StructType)
				if !ok {
					continue
				}

				doc := ts.Doc
				if doc == nil && len(gen.Specs) == 1 {
					doc = gen.Doc
				}
				g.structs[ts.Name.Name] = structDecl{doc: docText(doc), node: st}
			}
		}
	}
}

// Schemas builds a schema for every target found, keyed by output file name.
// Missing targets are returned by name in sorted order.
func (g *Generator) Schemas() (map[string]Schema, []string) {
	schemas := make(map[string]Schema, len(g.targets))
	var missing []string

	for name, file := range g.targets {
		decl, ok := g.structs[name]
		if !ok {
			missing = append(missing, name)
			continue
		}
		schemas[file] = g.schema(name, decl)
	}

	slices.Sort(missing)
	return schemas, missing
}

// Write stores schemas as indented JSON files under dir and returns the paths written.
func Write(fs afero.Fs, dir string, schemas map[string]Schema) ([]string, error) {
	if err := fs.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", dir, err)
	}

	files := lo.Keys(schemas)
	slices.Sort(files)

	written := make([]string, 0, len(files))
	for _, file := range files {
		data, err := json.MarshalIndent(schemas[file], "", "  ")
		if err != nil {
			return written, fmt.Errorf("failed to marshal %s: %w", file, err)
		}

		path := filepath.Join(dir, file)
		if err := afero.WriteFile(fs, path, append(data, '\n'), 0o644); err != nil {
			return written, fmt.Errorf("failed to write %s: %w", path, err)
		}
		written = append(written, path)
	}
	return written, nil
}

func (g *Generator) schema(name string, decl structDecl) Schema {
	s := Schema{Name: name, Description: decl.doc, Fields: []Field{}}

	for _, field := range decl.node.Fields.List {
		// embedded fields are skipped
		if len(field.Names) == 0 || !field.Names[0].IsExported() {
			continue
		}

		f := Field{Name: field.Names[0].Name}
		f.Type, f.Ref = g.typeOf(field.Type)

		if field.Tag != nil {
			tag := reflect.StructTag(strings.Trim(field.Tag.Value, "`"))
			f.YAMLKey, _, _ = strings.Cut(tag.Get("yaml"), ",")
			f.Required, f.Enum = validateRules(tag.Get("validate"))
			_, f.Template = tag.Lookup("template")
		}

		doc := field.Doc
		if doc == nil {
			doc = field.Comment
		}
		if doc != nil {
			f.Description = docText(doc)
			f.Default = defaultOf(doc.Text())
		}

		s.Fields = append(s.Fields, f)
	}
	return s
}

func (g *Generator) typeOf(expr ast.Expr) (string, *string) {
	switch t := expr.(type) {
	case *ast.Ident:
		if _, ok := g.targets[t.Name]; ok {
			return t.Name, lo.ToPtr(t.Name)
		}
		return t.Name, nil
	case *ast.StarExpr:
		return g.typeOf(t.X)
	case *ast.ArrayType:
		elem, _ := g.typeOf(t.Elt)
		return "[]" + elem, nil
	case *ast.MapType:
		key, _ := g.typeOf(t.Key)
		val, _ := g.typeOf(t.Value)
		return "map[" + key + "]" + val, nil
	case *ast.SelectorExpr:
		if pkg, ok := t.X.(*ast.Ident); ok {
			return pkg.Name + "." + t.Sel.Name, nil
		}
		return t.Sel.Name, nil
	case *ast.InterfaceType:
		return "any", nil
	default:
		return "unknown", nil
	}
}

func validateRules(rules string) (required bool, enum []string) {
	for _, rule := range strings.Split(rules, ",") {
		switch {
		case rule == "required":
			required = true
		case strings.HasPrefix(rule, "oneof="):
			enum = strings.Fields(strings.TrimPrefix(rule, "oneof="))
		}
	}
	return required, enum
}

func defaultOf(text string) *string {
	m := defaultPattern.FindStringSubmatch(text)
	if m == nil {
		return nil
	}
	val := strings.TrimSpace(lo.Ternary(m[1] != "", m[1], m[2]))
	if val == "" {
		return nil
	}
	return &val
}

func docText(cg *ast.CommentGroup) string {
	if cg == nil {
		return ""
	}
	lines := strings.Split(strings.TrimSpace(cg.Text()), "\n")
	return strings.Join(lo.Map(lines, func(l string, _ int) string {
		return strings.TrimSpace(l)
	}), "\n")
}
