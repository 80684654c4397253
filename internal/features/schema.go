package features

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// DefaultSeparator joins header names and row values.
const DefaultSeparator = ","

// DefaultLabel is written in the Label column when a profile does not set one.
const DefaultLabel = "label"

// KeySet is the set of enabled output-column keys.
type KeySet map[string]struct{}

// NewKeySet builds a KeySet from keys. The single key "all" enables the whole catalogue.
func NewKeySet(keys ...string) KeySet {
	set := make(KeySet, len(keys))
	for _, k := range keys {
		if k == "all" {
			for _, f := range catalogue {
				set[f.Key] = struct{}{}
			}
			continue
		}
		set[k] = struct{}{}
	}
	return set
}

// Has reports whether key is enabled.
func (s KeySet) Has(key string) bool {
	_, ok := s[key]
	return ok
}

// Unknown returns the enabled keys that are not in the catalogue, sorted.
func (s KeySet) Unknown() []string {
	var unknown []string
	for k := range s {
		if _, ok := byKey[k]; !ok {
			unknown = append(unknown, k)
		}
	}
	sort.Strings(unknown)
	return unknown
}

// SelectedColumns filters the catalogue to the enabled keys, keeping catalogue order.
func SelectedColumns(enabled KeySet) []Feature {
	cols := make([]Feature, 0, len(enabled))
	for _, f := range catalogue {
		if enabled.Has(f.Key) {
			cols = append(cols, f)
		}
	}
	return cols
}

// Header returns the comma-joined display names of the selected columns.
func Header(enabled KeySet) string {
	return joinNames(SelectedColumns(enabled), DefaultSeparator)
}

func joinNames(cols []Feature, sep string) string {
	names := make([]string, len(cols))
	for i, f := range cols {
		names[i] = f.Name
	}
	return strings.Join(names, sep)
}

// Schema is an immutable column selection used to render flows into rows.
// It is safe for concurrent use.
type Schema struct {
	name    string
	columns []Feature
	label   string
}

// NewSchema selects the enabled columns. An empty label falls back to DefaultLabel.
func NewSchema(name string, enabled KeySet, label string) (*Schema, error) {
	if unknown := enabled.Unknown(); len(unknown) > 0 {
		return nil, fmt.Errorf("unknown feature keys: %s", strings.Join(unknown, ", "))
	}
	if label == "" {
		label = DefaultLabel
	}
	return &Schema{name: name, columns: SelectedColumns(enabled), label: label}, nil
}

// Name returns the profile name the schema was built for.
func (s *Schema) Name() string { return s.name }

// Label returns the value written in the Label column.
func (s *Schema) Label() string { return s.label }

// Columns returns the selected columns in catalogue order.
func (s *Schema) Columns() []Feature {
	out := make([]Feature, len(s.columns))
	copy(out, s.columns)
	return out
}

// Len returns the number of selected columns.
func (s *Schema) Len() int { return len(s.columns) }

// Header returns the comma-joined display names.
func (s *Schema) Header() string {
	return joinNames(s.columns, DefaultSeparator)
}

// HeaderWith joins the display names with sep.
func (s *Schema) HeaderWith(sep string) string {
	return joinNames(s.columns, sep)
}

// Names returns the display names.
func (s *Schema) Names() []string {
	names := make([]string, len(s.columns))
	for i, f := range s.columns {
		names[i] = f.Name
	}
	return names
}

// Keys returns the output-column keys.
func (s *Schema) Keys() []string {
	keys := make([]string, len(s.columns))
	for i, f := range s.columns {
		keys[i] = f.Key
	}
	return keys
}

// NumericMask reports, per column, whether rows carry a number.
func (s *Schema) NumericMask() []bool {
	mask := make([]bool, len(s.columns))
	for i, f := range s.columns {
		mask[i] = f.Kind == KindNumeric
	}
	return mask
}

// Value is one rendered cell before formatting.
type Value struct {
	Num  float64
	Text string
	Kind Kind
}

// Number builds a numeric value.
func Number(v float64) Value { return Value{Num: v, Kind: KindNumeric} }

// Text builds a text value.
func Text(s string) Value { return Value{Text: s, Kind: KindText} }

// Code builds a categorical value.
func Code(c int64) Value { return Value{Num: float64(c), Kind: KindCategorical} }

// Format renders v for column f.
func Format(f Feature, v Value) string {
	switch v.Kind {
	case KindText:
		return v.Text
	case KindCategorical:
		if f.Mapping != nil {
			return f.Mapping.Lookup(int64(v.Num))
		}
		return strconv.FormatInt(int64(v.Num), 10)
	default:
		return FormatNumber(v.Num)
	}
}

// FormatNumber renders a number with the shortest exact decimal form.
func FormatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// Typed returns the cell as the Go value stored by typed writers: float64 for numbers, string otherwise.
func Typed(f Feature, v Value) interface{} {
	if v.Kind == KindNumeric {
		return v.Num
	}
	return Format(f, v)
}
