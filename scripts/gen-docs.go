//go:build ignore

// gen-docs writes JSON schema documentation for the apis/v1 job types to docs/schemas/.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/hepdata/hepdata-converter-ws-client/internal/schemadoc"
	"github.com/spf13/afero"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "gen-docs: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	root, err := findProjectRoot()
	if err != nil {
		return err
	}

	gen := schemadoc.NewGenerator(schemadoc.JobTargets)
	if err := gen.Load(root, "./apis/v1"); err != nil {
		return err
	}

	schemas, missing := gen.Schemas()
	for _, name := range missing {
		fmt.Fprintf(os.Stderr, "Warning: struct %s not found\n", name)
	}

	written, err := schemadoc.Write(afero.NewOsFs(), filepath.Join(root, "docs", "schemas"), schemas)
	for _, path := range written {
		fmt.Printf("Generated %s\n", path)
	}
	return err
}

func findProjectRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("go.mod not found")
		}
		dir = parent
	}
}
