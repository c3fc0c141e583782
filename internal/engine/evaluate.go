// Package engine evaluates row specifications against a dataset and
// assembles complete slide table structures. It is the only subsystem
// with real invariants: row/column consistency, aggregate-vs-leaf
// consistency, and filter semantics.
package engine

import (
	"errors"
	"fmt"

	"github.com/expertsure/expertsure/internal/dataset"
	reperr "github.com/expertsure/expertsure/internal/errors"
	"github.com/expertsure/expertsure/internal/slidespec"
)

// CellValue is one computed table cell. Raw carries the unformatted
// numeric result so aggregate rows can sum exact component values
// rather than re-parsing formatted strings. Missing marks cells whose
// metric field was absent from the dataset; those render as N/A and are
// reported as data-quality warnings, never as errors.
type CellValue struct {
	Raw     float64
	Text    string
	Missing bool
}

// Warning is a non-fatal data-quality finding raised during evaluation.
type Warning struct {
	RowLabel string
	Field    string
	Message  string
}

func (w Warning) String() string {
	return fmt.Sprintf("row %q, field %q: %s", w.RowLabel, w.Field, w.Message)
}

// Resolved maps row labels to their computed per-field cells. Component
// rows must appear here before any aggregate that references them is
// evaluated.
type Resolved map[string]map[string]CellValue

// EvaluateRow derives the cell values for a single row specification.
//
// Spanning group headers produce no cells. Aggregate rows sum the raw
// numeric values of their already-resolved components per shared metric
// field; the aggregate's own aggregation kind is deliberately not
// reapplied, mirroring line-items-roll-up-to-a-total semantics. Leaf
// rows mask the dataset once and reduce each metric column.
func EvaluateRow(row *slidespec.RowSpecification, ds *dataset.Dataset, resolved Resolved) (map[string]CellValue, []Warning, error) {
	switch row.Mode() {
	case slidespec.ModeGroupHeader:
		return map[string]CellValue{}, nil, nil
	case slidespec.ModeAggregate:
		return evaluateAggregate(row, resolved)
	default:
		return evaluateLeaf(row, ds)
	}
}

// evaluateAggregate sums component raw values per metric field.
func evaluateAggregate(row *slidespec.RowSpecification, resolved Resolved) (map[string]CellValue, []Warning, error) {
	cells := make(map[string]CellValue, len(row.MetricFields))
	var warnings []Warning

	for _, field := range row.MetricFields {
		var total float64
		contributed := false
		for _, ref := range row.ComponentRows {
			comp, ok := resolved[ref]
			if !ok {
				return nil, nil, reperr.NewSpecificationError(reperr.CodeUnknownComponentRow,
					fmt.Sprintf("aggregate row %q references unresolved row %q", row.RowLabel, ref))
			}
			cell, ok := comp[field]
			if !ok {
				// Component does not declare this metric field;
				// it simply contributes nothing.
				continue
			}
			if cell.Missing {
				warnings = append(warnings, Warning{
					RowLabel: row.RowLabel,
					Field:    field,
					Message:  fmt.Sprintf("component %q has no data for this field", ref),
				})
				continue
			}
			total += cell.Raw
			contributed = true
		}

		if !contributed {
			cells[field] = CellValue{Missing: true, Text: TextNA}
			continue
		}
		cells[field] = CellValue{Raw: total, Text: FormatValue(total, field)}
	}

	return cells, warnings, nil
}

// evaluateLeaf masks the dataset and reduces each metric column.
func evaluateLeaf(row *slidespec.RowSpecification, ds *dataset.Dataset) (map[string]CellValue, []Warning, error) {
	mask := ds.Mask(row.Filters)

	agg, ok := slidespec.NormalizeAggregation(row.Aggregation)
	if !ok {
		return nil, nil, reperr.NewValidationError(reperr.CodeInvalidRowSpec,
			fmt.Sprintf("row %q: unknown aggregation %q", row.RowLabel, row.Aggregation))
	}

	cells := make(map[string]CellValue, len(row.MetricFields))
	var warnings []Warning

	for _, field := range row.MetricFields {
		values, err := ds.ColumnValues(field, mask)
		if err != nil {
			if errors.Is(err, dataset.ErrFieldNotFound) {
				cells[field] = CellValue{Missing: true, Text: TextNA}
				warnings = append(warnings, Warning{
					RowLabel: row.RowLabel,
					Field:    field,
					Message:  "metric field not present in dataset",
				})
				continue
			}
			return nil, nil, err
		}

		raw := reduce(agg, values)
		text := FormatValue(raw, field)
		if agg == slidespec.AggCount {
			text = FormatCount(raw)
		}
		cells[field] = CellValue{Raw: raw, Text: text}
	}

	return cells, warnings, nil
}

// reduce applies one aggregation kind over a filtered column. Null
// cells are excluded; count counts every non-null cell regardless of
// type. Reductions over an empty selection yield zero, which formats as
// the "-" placeholder.
func reduce(agg slidespec.Aggregation, values []dataset.Value) float64 {
	var nums []float64
	nonNull := 0
	for _, v := range values {
		if v.Null {
			continue
		}
		nonNull++
		if v.Numeric {
			nums = append(nums, v.Num)
		}
	}

	switch agg {
	case slidespec.AggCount:
		return float64(nonNull)
	case slidespec.AggSum:
		var s float64
		for _, n := range nums {
			s += n
		}
		return s
	case slidespec.AggAverage:
		if len(nums) == 0 {
			return 0
		}
		var s float64
		for _, n := range nums {
			s += n
		}
		return s / float64(len(nums))
	case slidespec.AggMax:
		if len(nums) == 0 {
			return 0
		}
		m := nums[0]
		for _, n := range nums[1:] {
			if n > m {
				m = n
			}
		}
		return m
	case slidespec.AggMin:
		if len(nums) == 0 {
			return 0
		}
		m := nums[0]
		for _, n := range nums[1:] {
			if n < m {
				m = n
			}
		}
		return m
	}
	return 0
}
