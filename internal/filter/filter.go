// Package filter derives a searched and filtered view of a record slice from a
// declarative configuration. The source slice is never modified.
package filter

import (
	"fmt"
	"reflect"
	"strings"

	"golang.org/x/text/cases"

	"github.com/mesh-intelligence/courtside/internal/coerce"
	"github.com/mesh-intelligence/courtside/pkg/types"
)

// All is the selection that imposes no constraint.
const All = "all"

// MatchFunc reports whether record passes the filter for the selected value.
type MatchFunc func(record types.Record, value any) bool

// KeyConfig describes one filter axis. A nil Default means All.
type KeyConfig struct {
	Default any
	Match   MatchFunc
}

// Config lists the fields free-text search looks at and the configured
// filter keys.
type Config struct {
	SearchFields []string
	Keys         map[string]KeyConfig
}

// Engine holds a source slice, a search term and the current selections.
// It is not safe for concurrent use.
type Engine struct {
	cfg        Config
	data       []types.Record
	searchTerm string
	filters    map[string]any
	fold       cases.Caser
}

// New creates an engine over data with every configured key set to its
// default.
func New(data []types.Record, cfg Config) *Engine {
	e := &Engine{
		cfg:  cfg,
		data: data,
		fold: cases.Fold(),
	}
	e.filters = e.defaults()
	return e
}

func (e *Engine) defaults() map[string]any {
	out := make(map[string]any, len(e.cfg.Keys))
	for key, kc := range e.cfg.Keys {
		out[key] = defaultOf(kc)
	}
	return out
}

func defaultOf(kc KeyConfig) any {
	if kc.Default == nil {
		return All
	}
	return kc.Default
}

// SetData replaces the source slice.
func (e *Engine) SetData(data []types.Record) {
	e.data = data
}

// SetSearchTerm sets the free-text term. An empty term matches everything.
func (e *Engine) SetSearchTerm(term string) {
	e.searchTerm = term
}

// SearchTerm returns the current free-text term.
func (e *Engine) SearchTerm() string {
	return e.searchTerm
}

// UpdateFilter sets the selection for one key.
func (e *Engine) UpdateFilter(key string, value any) {
	e.filters[key] = value
}

// UpdateFilters merges selections into the current ones.
func (e *Engine) UpdateFilters(selections map[string]any) {
	for k, v := range selections {
		e.filters[k] = v
	}
}

// ClearFilters empties the search term and returns every configured key to
// its default. Selections for unconfigured keys are dropped.
func (e *Engine) ClearFilters() {
	e.searchTerm = ""
	e.filters = e.defaults()
}

// Filters returns a copy of the current selections.
func (e *Engine) Filters() map[string]any {
	out := make(map[string]any, len(e.filters))
	for k, v := range e.filters {
		out[k] = v
	}
	return out
}

// Filtered returns the records that pass the search and every filter, in
// source order.
func (e *Engine) Filtered() []types.Record {
	term := e.fold.String(e.searchTerm)
	out := make([]types.Record, 0, len(e.data))
	for _, r := range e.data {
		if e.matchesSearch(r, term) && e.matchesFilters(r) {
			out = append(out, r)
		}
	}
	return out
}

func (e *Engine) matchesSearch(r types.Record, term string) bool {
	if term == "" {
		return true
	}
	for _, field := range e.cfg.SearchFields {
		v, ok := r[field]
		if !ok || v == nil {
			continue
		}
		if strings.Contains(e.fold.String(coerce.String(v)), term) {
			return true
		}
	}
	return false
}

func (e *Engine) matchesFilters(r types.Record) bool {
	for key, value := range e.filters {
		kc, configured := e.cfg.Keys[key]
		if isAll(value) || (configured && equal(value, defaultOf(kc))) {
			continue
		}
		if configured && kc.Match != nil {
			if !kc.Match(r, value) {
				return false
			}
			continue
		}
		if !equal(r[key], value) {
			return false
		}
	}
	return true
}

// HasActiveFilters reports whether a search term is set or any selection
// differs from its default.
func (e *Engine) HasActiveFilters() bool {
	if e.searchTerm != "" {
		return true
	}
	for key, value := range e.filters {
		kc, configured := e.cfg.Keys[key]
		if configured {
			if !equal(value, defaultOf(kc)) {
				return true
			}
			continue
		}
		if !isAll(value) {
			return true
		}
	}
	return false
}

// TotalCount is the number of source records.
func (e *Engine) TotalCount() int {
	return len(e.data)
}

// FilteredCount is the number of records Filtered returns.
func (e *Engine) FilteredCount() int {
	return len(e.Filtered())
}

// ParseSelections turns "key=value" arguments into selections. Values are
// kept as strings.
func ParseSelections(args []string) (map[string]any, error) {
	out := make(map[string]any, len(args))
	for _, arg := range args {
		key, value, ok := strings.Cut(arg, "=")
		if !ok || strings.TrimSpace(key) == "" {
			return nil, fmt.Errorf("invalid filter %q (expected key=value)", arg)
		}
		out[strings.TrimSpace(key)] = value
	}
	return out, nil
}

func isAll(v any) bool {
	s, ok := v.(string)
	return ok && s == All
}

// equal compares two selection values strictly: numbers compare by value
// regardless of their Go type, other comparable values with ==, and
// incomparable values are never equal.
func equal(a, b any) bool {
	if an, ok := coerce.Number(a); ok {
		if bn, ok := coerce.Number(b); ok {
			return an == bn
		}
		return false
	}
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	ta, tb := reflect.TypeOf(a), reflect.TypeOf(b)
	if ta != tb || !ta.Comparable() {
		return false
	}
	return a == b
}
