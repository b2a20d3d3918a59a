package table

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// Format is an output file format.
type Format string

const (
	FormatXLSX Format = "xlsx"
	FormatCSV  Format = "csv"
	FormatJSON Format = "json"
)

// DefaultPrefix is the file name prefix used when none is configured.
const DefaultPrefix = "promptgrid"

// ErrUnknownFormat is returned for unsupported output formats.
var ErrUnknownFormat = errors.New("unknown output format")

// ParseFormat parses a format name, case-insensitively.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatXLSX, FormatCSV, FormatJSON:
		return f, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownFormat, s)
	}
}

// Writer encodes a table to a stream.
type Writer interface {
	Write(w io.Writer, t *Table) error
}

// WriterFor returns the encoder for f.
func WriterFor(f Format) (Writer, error) {
	switch f {
	case FormatXLSX:
		return XLSXWriter{}, nil
	case FormatCSV:
		return CSVWriter{}, nil
	case FormatJSON:
		return JSONWriter{Indent: true}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, f)
	}
}

// FileName returns <dir>/<prefix>_<unix-seconds>.<format>.
func FileName(dir, prefix string, f Format, now time.Time) string {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return filepath.Join(dir, fmt.Sprintf("%s_%d.%s", prefix, now.Unix(), f))
}

// WriteFile writes t to a new timestamped file under dir and returns its
// path. An existing file is never overwritten.
func WriteFile(t *Table, dir, prefix string, f Format, now time.Time) (string, error) {
	enc, err := WriterFor(f)
	if err != nil {
		return "", err
	}

	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}

	path := FileName(dir, prefix, f, now)
	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", fmt.Errorf("create output file: %w", err)
	}

	if err := enc.Write(file, t); err != nil {
		file.Close()
		os.Remove(path)
		return "", fmt.Errorf("write %s: %w", f, err)
	}
	if err := file.Close(); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("close output file: %w", err)
	}

	log.Info().
		Str("component", "table").
		Str("path", path).
		Str("format", string(f)).
		Int("rows", len(t.elements)).
		Int("columns", len(t.columns)).
		Msg("Result table written")

	return path, nil
}
