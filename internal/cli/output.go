package cli

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	json "github.com/goccy/go-json"

	"github.com/mesh-intelligence/courtside/internal/coerce"
	"github.com/mesh-intelligence/courtside/pkg/types"
)

var headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
var cellStyle = lipgloss.NewStyle().Padding(0, 1)

func printJSON(w io.Writer, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return sysErrorf("encode output: %w", err)
	}
	_, err = fmt.Fprintln(w, string(b))
	return err
}

// printTable renders records as a bordered table with the given columns.
func printTable(w io.Writer, columns []string, records []types.Record) error {
	rows := make([][]string, len(records))
	for i, r := range records {
		row := make([]string, len(columns))
		for j, col := range columns {
			row[j] = cellText(r[col])
		}
		rows[i] = row
	}
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers(columns...).
		Rows(rows...).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})
	_, err := fmt.Fprintln(w, t.Render())
	return err
}

func cellText(v any) string {
	switch v.(type) {
	case map[string]any, []any:
		b, err := json.Marshal(v)
		if err == nil {
			return string(b)
		}
	}
	return coerce.String(v)
}

// printRecord prints a single record as sorted key: value lines.
func printRecord(w io.Writer, rec types.Record) {
	keys := make([]string, 0, len(rec))
	for k := range rec {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(w, "%s: %s\n", k, cellText(rec[k]))
	}
}

// parseSets turns --set key=value flags into values. A value that parses as
// JSON keeps its JSON type, anything else is kept as a string. The keys are
// returned in flag order.
func parseSets(sets []string) (types.Values, []string, error) {
	values := make(types.Values, len(sets))
	order := make([]string, 0, len(sets))
	for _, s := range sets {
		key, raw, ok := strings.Cut(s, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, nil, userErrorf("invalid --set %q (expected field=value)", s)
		}
		if _, seen := values[key]; !seen {
			order = append(order, key)
		}
		values[key] = parseValue(raw)
	}
	return values, order, nil
}

func parseValue(raw string) any {
	var parsed any
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return raw
	}
	return parsed
}

// printValidation writes one line per failing field, sorted by field name.
func printValidation(w io.Writer, errs map[string]string) {
	fields := make([]string, 0, len(errs))
	for f := range errs {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	for _, f := range fields {
		fmt.Fprintf(w, "  %s: %s\n", f, errs[f])
	}
}
