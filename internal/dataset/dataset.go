// Package dataset wraps a loaded tabular dataset and exposes column
// lookup, predicate masking, and filtered column extraction to the
// aggregation engine. A Dataset never mutates its underlying data.
package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/expertsure/expertsure/internal/slidespec"
)

// ErrFieldNotFound is returned when a metric field is absent from the
// dataset. Filter fields are exempt: a predicate on a missing column is
// vacuously true.
var ErrFieldNotFound = errors.New("dataset: field not found")

// Value is one parsed cell. Numeric cells carry Num; everything else
// carries the raw string. Null marks empty cells.
type Value struct {
	Num     float64
	Str     string
	Numeric bool
	Null    bool
}

// Dataset is an immutable in-memory table parsed from CSV.
type Dataset struct {
	fields  []slidespec.Field
	index   map[string]int // column name -> position
	columns [][]Value      // column-major
	numRows int
}

// Load reads and parses a CSV file from disk.
func Load(path string) (*Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("dataset: open %s: %w", path, err)
	}
	defer f.Close()
	return Parse(f)
}

// Parse reads a CSV stream with a header row and builds a Dataset.
func Parse(r io.Reader) (*Dataset, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("dataset: read header: %w", err)
	}
	if len(header) == 0 {
		return nil, fmt.Errorf("dataset: empty header row")
	}

	ds := &Dataset{
		index:   make(map[string]int, len(header)),
		columns: make([][]Value, len(header)),
	}
	names := make([]string, len(header))
	for i, name := range header {
		name = strings.TrimSpace(name)
		if name == "" {
			return nil, fmt.Errorf("dataset: blank column name at position %d", i)
		}
		if _, dup := ds.index[name]; dup {
			return nil, fmt.Errorf("dataset: duplicate column name %q", name)
		}
		ds.index[name] = i
		names[i] = name
	}

	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("dataset: read row %d: %w", ds.numRows+2, err)
		}
		for i := range ds.columns {
			var cell string
			if i < len(record) {
				cell = strings.TrimSpace(record[i])
			}
			ds.columns[i] = append(ds.columns[i], parseCell(cell))
		}
		ds.numRows++
	}

	ds.fields = make([]slidespec.Field, len(names))
	for i, name := range names {
		ds.fields[i] = slidespec.Field{Name: name, Type: inferType(ds.columns[i])}
	}

	return ds, nil
}

// parseCell converts a raw CSV cell into a typed Value.
func parseCell(cell string) Value {
	if cell == "" {
		return Value{Null: true}
	}
	if n, err := strconv.ParseFloat(strings.ReplaceAll(cell, ",", ""), 64); err == nil {
		return Value{Num: n, Numeric: true}
	}
	return Value{Str: cell}
}

var dateLayouts = []string{"2006-01-02", "01/02/2006", "2006-01-02T15:04:05Z07:00", "Jan 2006", "2006-Q1"}

// inferType classifies a column from its parsed cells.
func inferType(col []Value) slidespec.FieldType {
	numeric, dates, strs := 0, 0, 0
	for _, v := range col {
		switch {
		case v.Null:
		case v.Numeric:
			numeric++
		default:
			strs++
			for _, layout := range dateLayouts {
				if _, err := time.Parse(layout, v.Str); err == nil {
					dates++
					break
				}
			}
		}
	}
	switch {
	case numeric > 0 && strs == 0:
		return slidespec.FieldNumeric
	case strs > 0 && dates == strs:
		return slidespec.FieldDate
	case strs > 0:
		return slidespec.FieldCategorical
	default:
		return slidespec.FieldOther
	}
}

// Columns returns the dataset's fields in file order.
func (d *Dataset) Columns() []slidespec.Field {
	out := make([]slidespec.Field, len(d.fields))
	copy(out, d.fields)
	return out
}

// HasField reports whether the named column exists.
func (d *Dataset) HasField(name string) bool {
	_, ok := d.index[name]
	return ok
}

// NumRows returns the row count.
func (d *Dataset) NumRows() int {
	return d.numRows
}

// Mask evaluates the predicates into a boolean mask over rows. All
// predicates are ANDed. A predicate whose field is absent is skipped
// entirely, so the mask is identical to what omitting that predicate
// would produce.
func (d *Dataset) Mask(preds []slidespec.FilterPredicate) []bool {
	mask := make([]bool, d.numRows)
	for i := range mask {
		mask[i] = true
	}
	for _, p := range preds {
		col, ok := d.index[p.Field]
		if !ok {
			continue
		}
		want := coerce(p.Value)
		for row := 0; row < d.numRows; row++ {
			if mask[row] && !matches(d.columns[col][row], p.Operator, want) {
				mask[row] = false
			}
		}
	}
	return mask
}

// ColumnValues returns the cells of a metric column selected by mask.
// A nil mask selects every row. Unlike filter fields, a missing metric
// field is an error the caller degrades to an N/A cell.
func (d *Dataset) ColumnValues(field string, mask []bool) ([]Value, error) {
	col, ok := d.index[field]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrFieldNotFound, field)
	}
	var out []Value
	for row := 0; row < d.numRows; row++ {
		if mask == nil || mask[row] {
			out = append(out, d.columns[col][row])
		}
	}
	return out, nil
}

// Preview returns up to n leading rows as name->value maps, used for
// the data preview attached to analysis events.
func (d *Dataset) Preview(n int) []map[string]interface{} {
	if n > d.numRows {
		n = d.numRows
	}
	out := make([]map[string]interface{}, 0, n)
	for row := 0; row < n; row++ {
		m := make(map[string]interface{}, len(d.fields))
		for i, f := range d.fields {
			v := d.columns[i][row]
			switch {
			case v.Null:
				m[f.Name] = nil
			case v.Numeric:
				m[f.Name] = v.Num
			default:
				m[f.Name] = v.Str
			}
		}
		out = append(out, m)
	}
	return out
}

// DistinctStrings returns the distinct non-null string values of a
// column in first-seen row order. Missing columns yield nil.
func (d *Dataset) DistinctStrings(field string) []string {
	i, ok := d.index[field]
	if !ok {
		return nil
	}
	seen := make(map[string]struct{})
	var out []string
	for _, v := range d.columns[i] {
		if v.Null || v.Numeric {
			continue
		}
		if _, dup := seen[v.Str]; dup {
			continue
		}
		seen[v.Str] = struct{}{}
		out = append(out, v.Str)
	}
	return out
}

// coerce normalizes a filter comparison value from JSON into a Value.
func coerce(v interface{}) Value {
	switch x := v.(type) {
	case nil:
		return Value{Null: true}
	case float64:
		return Value{Num: x, Numeric: true}
	case int:
		return Value{Num: float64(x), Numeric: true}
	case int64:
		return Value{Num: float64(x), Numeric: true}
	case bool:
		if x {
			return Value{Num: 1, Numeric: true}
		}
		return Value{Num: 0, Numeric: true}
	case string:
		return parseCell(x)
	default:
		return Value{Str: fmt.Sprint(x)}
	}
}

// matches applies one comparison between a cell and a filter value.
// Null cells never match; mixed numeric/string comparisons fall back to
// string comparison of the raw representations.
func matches(cell Value, op slidespec.Operator, want Value) bool {
	if cell.Null || want.Null {
		return false
	}

	if cell.Numeric && want.Numeric {
		return cmpOrdered(cell.Num, want.Num, op)
	}
	return cmpOrdered(cellString(cell), cellString(want), op)
}

func cellString(v Value) string {
	if v.Numeric {
		return strconv.FormatFloat(v.Num, 'f', -1, 64)
	}
	return v.Str
}

func cmpOrdered[T float64 | string](a, b T, op slidespec.Operator) bool {
	switch op {
	case slidespec.OpEq:
		return a == b
	case slidespec.OpNeq:
		return a != b
	case slidespec.OpGt:
		return a > b
	case slidespec.OpLt:
		return a < b
	case slidespec.OpGte:
		return a >= b
	case slidespec.OpLte:
		return a <= b
	}
	return false
}
