// Package export serializes record slices to CSV or JSON for download.
package export

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	json "github.com/goccy/go-json"

	"github.com/mesh-intelligence/courtside/internal/coerce"
	"github.com/mesh-intelligence/courtside/pkg/types"
)

// Format selects the serialization.
type Format string

// Supported formats.
const (
	CSV  Format = "csv"
	JSON Format = "json"
)

// ErrUnknownFormat is returned for formats other than csv and json.
var ErrUnknownFormat = errors.New("unknown export format")

// ParseFormat accepts "csv" or "json" in any case.
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(s))) {
	case CSV:
		return CSV, nil
	case JSON:
		return JSON, nil
	}
	return "", fmt.Errorf("%w: %q (expected csv or json)", ErrUnknownFormat, s)
}

// Extension returns the file extension without a dot.
func (f Format) Extension() string {
	return string(f)
}

// Write serializes records to w. Records are read, never modified.
func Write(w io.Writer, records []types.Record, format Format) error {
	switch format {
	case JSON:
		return writeJSON(w, records)
	case CSV:
		return writeCSV(w, records)
	}
	return fmt.Errorf("%w: %q", ErrUnknownFormat, string(format))
}

func writeJSON(w io.Writer, records []types.Record) error {
	if records == nil {
		records = []types.Record{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(records); err != nil {
		return fmt.Errorf("encoding json export: %w", err)
	}
	return nil
}

func writeCSV(w io.Writer, records []types.Record) error {
	header := Columns(records)
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("writing csv header: %w", err)
	}
	row := make([]string, len(header))
	for _, r := range records {
		for i, key := range header {
			cell, err := cellValue(r[key])
			if err != nil {
				return fmt.Errorf("column %s of record %s: %w", key, r.ID(), err)
			}
			row[i] = cell
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("writing csv row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// Columns returns the union of keys across records: id first when present,
// then the rest sorted.
func Columns(records []types.Record) []string {
	seen := make(map[string]struct{})
	for _, r := range records {
		for k := range r {
			seen[k] = struct{}{}
		}
	}
	cols := make([]string, 0, len(seen))
	_, hasID := seen[types.IDField]
	for k := range seen {
		if k != types.IDField {
			cols = append(cols, k)
		}
	}
	sort.Strings(cols)
	if hasID {
		cols = append([]string{types.IDField}, cols...)
	}
	return cols
}

func cellValue(v any) (string, error) {
	switch v.(type) {
	case map[string]any, []any, types.Record, []types.Record:
		b, err := json.Marshal(v)
		if err != nil {
			return "", err
		}
		return string(b), nil
	}
	return coerce.String(v), nil
}
