// Package serializer writes engine output in the operator's chosen
// format.
package serializer

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// Format is an output encoding selected with --format.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
)

// StdoutPath is the special output path meaning stdout.
const StdoutPath = "-"

// IsUnknown reports whether f is not a supported format.
func (f Format) IsUnknown() bool {
	switch f {
	case FormatYAML, FormatJSON:
		return false
	}
	return true
}

// Writer serializes values to a destination in a fixed format.
type Writer struct {
	format Format
	out    io.Writer
}

// NewWriter creates a Writer targeting the given destination.
func NewWriter(format Format, out io.Writer) *Writer {
	return &Writer{format: format, out: out}
}

// NewStdoutWriter creates a Writer targeting stdout.
func NewStdoutWriter(format Format) *Writer {
	return NewWriter(format, os.Stdout)
}

// NewFileWriterOrStdout creates a Writer targeting the given file path,
// or stdout when the path is empty or "-".
func NewFileWriterOrStdout(format Format, path string) (*Writer, func() error, error) {
	if path == "" || path == StdoutPath {
		return NewStdoutWriter(format), func() error { return nil }, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open output file: %w", err)
	}
	return NewWriter(format, f), f.Close, nil
}

// Serialize encodes one value in the writer's format.
func (w *Writer) Serialize(v any) error {
	switch w.format {
	case FormatJSON:
		data, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to serialize to json: %w", err)
		}
		_, err = fmt.Fprintln(w.out, string(data))
		return err

	case FormatYAML:
		enc := yaml.NewEncoder(w.out)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return fmt.Errorf("failed to serialize to yaml: %w", err)
		}
		return enc.Close()
	}

	return fmt.Errorf("unknown output format: %q", w.format)
}
