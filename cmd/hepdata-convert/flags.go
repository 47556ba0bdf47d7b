package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/goccy/go-yaml"
)

// parseOptions merges an optional YAML/JSON options file with key=value pairs.
// Pair values are decoded as YAML scalars so that numbers and booleans keep their
// type; pairs override keys from the file.
func parseOptions(file []byte, pairs []string) (map[string]any, error) {
	options := map[string]any{}

	if len(file) > 0 {
		if err := yaml.Unmarshal(file, &options); err != nil {
			return nil, fmt.Errorf("failed to parse options file: %w", err)
		}
	}

	for _, pair := range pairs {
		key, raw, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid option %q: expected key=value", pair)
		}

		var value any
		if err := yaml.Unmarshal([]byte(raw), &value); err != nil || value == nil {
			value = raw
		}
		if _, isMap := value.(map[string]any); isMap {
			value = raw
		}
		options[key] = value
	}

	return options, nil
}

// parseHeaders accepts "Name: value" or "Name=value".
func parseHeaders(values []string) (map[string]string, error) {
	headers := make(map[string]string, len(values))
	for _, v := range values {
		i := strings.IndexAny(v, ":=")
		if i <= 0 || strings.TrimSpace(v[:i]) == "" {
			return nil, fmt.Errorf("invalid header %q: expected 'Name: value'", v)
		}
		headers[strings.TrimSpace(v[:i])] = strings.TrimSpace(v[i+1:])
	}
	return headers, nil
}

// readJobFile reads a job definition from a file, or from stdin when filename is "-".
func readJobFile(filename string) ([]byte, error) {
	if filename == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(filename)
}
