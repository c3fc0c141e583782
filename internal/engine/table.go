package engine

import (
	"fmt"

	"github.com/expertsure/expertsure/internal/dataset"
	reperr "github.com/expertsure/expertsure/internal/errors"
	"github.com/expertsure/expertsure/internal/slidespec"
)

// RowStyle tags a rendered row for downstream deck styling.
type RowStyle string

const (
	StyleHeader    RowStyle = "header"
	StyleAggregate RowStyle = "aggregate"
	StyleData      RowStyle = "data"
)

// TableRow is one rendered row. Cells are positionally aligned with
// TableStructure.Columns; spanning group headers carry no cells and are
// merged across the full width by the deck writer.
type TableRow struct {
	Label           string   `json:"label"`
	Cells           []string `json:"cells"`
	Style           RowStyle `json:"style"`
	SpansAllColumns bool     `json:"spans_all_columns,omitempty"`
}

// TableStructure is a fully evaluated slide table ready for rendering.
// Columns holds raw field names in first-seen order; Headers holds
// their display form, preceded by the empty label-column header.
type TableStructure struct {
	Title    string     `json:"title"`
	Columns  []string   `json:"columns"`
	Headers  []string   `json:"headers"`
	Rows     []TableRow `json:"rows"`
	Warnings []Warning  `json:"warnings,omitempty"`
}

// Build validates a slide specification and evaluates it against the
// dataset into a complete table structure.
//
// Structural failures, unknown component references and cyclic
// aggregate chains included, surface as errors before any partial
// table is produced. Data-quality findings (missing metric fields) do
// not fail the build; the affected cells render as N/A and the finding
// is collected as a warning.
func Build(slide *slidespec.SlideSpecification, ds *dataset.Dataset) (*TableStructure, error) {
	if err := slidespec.ValidateSlide(slide); err != nil {
		return nil, err
	}

	order, err := evaluationOrder(slide.Rows)
	if err != nil {
		return nil, err
	}

	resolved := make(Resolved, len(slide.Rows))
	var warnings []Warning
	for _, idx := range order {
		row := &slide.Rows[idx]
		cells, w, err := EvaluateRow(row, ds, resolved)
		if err != nil {
			return nil, err
		}
		resolved[row.RowLabel] = cells
		warnings = append(warnings, w...)
	}

	columns := columnUnion(slide.Rows)

	table := &TableStructure{
		Title:    slide.SlideTitle,
		Columns:  columns,
		Headers:  headerRow(columns),
		Rows:     make([]TableRow, 0, len(slide.Rows)),
		Warnings: warnings,
	}

	for i := range slide.Rows {
		row := &slide.Rows[i]
		if row.Mode() == slidespec.ModeGroupHeader {
			table.Rows = append(table.Rows, TableRow{
				Label:           row.RowLabel,
				Style:           StyleHeader,
				SpansAllColumns: true,
			})
			continue
		}

		cells := make([]string, len(columns))
		for c, field := range columns {
			cv, ok := resolved[row.RowLabel][field]
			if !ok {
				// Row does not declare this column; leave the cell blank
				// rather than faking a zero.
				continue
			}
			cells[c] = cv.Text
		}

		style := StyleData
		switch {
		case row.IsGroupHeader:
			// A non-spanning group header labels a section but still
			// carries its computed cells.
			style = StyleHeader
		case row.Mode() == slidespec.ModeAggregate:
			style = StyleAggregate
		}
		table.Rows = append(table.Rows, TableRow{
			Label: row.RowLabel,
			Cells: cells,
			Style: style,
		})
	}

	return table, nil
}

// columnUnion collects metric fields in first-seen order across all
// rows except spanning group headers, which contribute no columns.
func columnUnion(rows []slidespec.RowSpecification) []string {
	seen := make(map[string]struct{})
	var columns []string
	for i := range rows {
		if rows[i].Mode() == slidespec.ModeGroupHeader {
			continue
		}
		for _, f := range rows[i].MetricFields {
			if _, ok := seen[f]; ok {
				continue
			}
			seen[f] = struct{}{}
			columns = append(columns, f)
		}
	}
	return columns
}

// headerRow prefixes the display headers with the empty label cell.
func headerRow(columns []string) []string {
	headers := make([]string, 0, len(columns)+1)
	headers = append(headers, "")
	for _, c := range columns {
		headers = append(headers, FormatHeader(c))
	}
	return headers
}

// evaluationOrder returns row indexes in dependency order: every
// component row before any aggregate that references it. Unknown
// references and reference cycles are rejected here, before any
// evaluation runs.
func evaluationOrder(rows []slidespec.RowSpecification) ([]int, error) {
	byLabel := make(map[string]int, len(rows))
	for i := range rows {
		byLabel[rows[i].RowLabel] = i
	}

	const (
		unvisited = 0
		visiting  = 1
		done      = 2
	)
	state := make([]int, len(rows))
	order := make([]int, 0, len(rows))

	var visit func(int) error
	visit = func(i int) error {
		switch state[i] {
		case done:
			return nil
		case visiting:
			return reperr.NewSpecificationError(reperr.CodeCyclicAggregateReference,
				fmt.Sprintf("aggregate row %q participates in a reference cycle", rows[i].RowLabel))
		}
		state[i] = visiting

		if rows[i].Mode() == slidespec.ModeAggregate {
			for _, ref := range rows[i].ComponentRows {
				j, ok := byLabel[ref]
				if !ok {
					return reperr.NewSpecificationError(reperr.CodeUnknownComponentRow,
						fmt.Sprintf("aggregate row %q references unknown row %q", rows[i].RowLabel, ref))
				}
				if err := visit(j); err != nil {
					return err
				}
			}
		}

		state[i] = done
		order = append(order, i)
		return nil
	}

	for i := range rows {
		if err := visit(i); err != nil {
			return nil, err
		}
	}
	return order, nil
}
