// Package planner proposes an initial slide layout for a freshly
// uploaded dataset. The heuristic planner is deterministic: the same
// dataset always yields the same proposal, which analysts then refine
// through slide edits.
package planner

import (
	"context"
	"fmt"
	"strings"

	"github.com/expertsure/expertsure/internal/dataset"
	"github.com/expertsure/expertsure/internal/slidespec"
)

// SlidePlanner proposes slide specifications for a dataset. The
// orchestrator treats proposals as drafts; nothing is rendered until
// each slide's rows survive validation and a table build.
type SlidePlanner interface {
	Plan(ctx context.Context, ds *dataset.Dataset, schema dataset.Schema) ([]slidespec.SlideSpecification, error)
}

// Heuristic builds a fixed three-slide reserve review from column-name
// heuristics: a summary slide, a per-line-of-business breakdown, and a
// development slide with grouped sections.
type Heuristic struct{}

// NewHeuristic returns the deterministic heuristic planner.
func NewHeuristic() *Heuristic { return &Heuristic{} }

// lobTokens identify the line-of-business column.
var lobTokens = []string{"lob", "line_of_business", "lineofbusiness", "business_line", "segment"}

// monetaryTokens identify reserve-like numeric columns worth featuring.
var monetaryTokens = []string{
	"reserve", "incurred", "ocl", "claim", "amount", "paid", "ibnr",
}

// Plan implements SlidePlanner. Only columns the uploaded schema
// declares are candidates for planning.
func (h *Heuristic) Plan(_ context.Context, ds *dataset.Dataset, schema dataset.Schema) ([]slidespec.SlideSpecification, error) {
	lobField := h.lineOfBusinessField(ds, schema)
	metrics := h.metricFields(ds, schema)
	if len(metrics) == 0 {
		// Fall back to every declared numeric column so the proposal is
		// never empty.
		for _, f := range ds.Columns() {
			if f.Type == slidespec.FieldNumeric && declared(schema, f.Name) {
				metrics = append(metrics, f.Name)
			}
		}
	}
	if len(metrics) == 0 {
		return nil, fmt.Errorf("schema and dataset share no numeric columns to plan slides from")
	}
	primary := metrics
	if len(primary) > 4 {
		primary = primary[:4]
	}

	slides := []slidespec.SlideSpecification{
		h.summarySlide(primary),
	}
	if lobField != "" {
		slides = append(slides, h.breakdownSlide(ds, lobField, primary))
	}
	slides = append(slides, h.developmentSlide(primary))

	for i := range slides {
		slides[i].SlideNumber = i + 1
	}
	return slides, nil
}

// summarySlide is a single all-data row per featured metric.
func (h *Heuristic) summarySlide(metrics []string) slidespec.SlideSpecification {
	return slidespec.SlideSpecification{
		SlideTitle: "Reserves Summary",
		Rationale:  "Portfolio-level view of the featured reserve metrics.",
		Rows: []slidespec.RowSpecification{
			{
				RowLabel:     "All Lines",
				MetricFields: metrics,
				Aggregation:  slidespec.AggSum,
				Rationale:    "Unfiltered totals across the full dataset.",
			},
			{
				RowLabel:     "Average per Record",
				MetricFields: metrics,
				Aggregation:  slidespec.AggAverage,
				Rationale:    "Mean values to expose scale per record.",
			},
			{
				RowLabel:     "Record Count",
				MetricFields: metrics[:1],
				Aggregation:  slidespec.AggCount,
				Rationale:    "Volume of records behind the totals.",
			},
		},
	}
}

// breakdownSlide emits one leaf row per line of business plus a total
// aggregate over them.
func (h *Heuristic) breakdownSlide(ds *dataset.Dataset, lobField string, metrics []string) slidespec.SlideSpecification {
	lobs := ds.DistinctStrings(lobField)

	rows := make([]slidespec.RowSpecification, 0, len(lobs)+1)
	components := make([]string, 0, len(lobs))
	for _, lob := range lobs {
		rows = append(rows, slidespec.RowSpecification{
			RowLabel:     lob,
			MetricFields: metrics,
			Filters: []slidespec.FilterPredicate{
				{Field: lobField, Operator: slidespec.OpEq, Value: lob},
			},
			Aggregation: slidespec.AggSum,
			Rationale:   fmt.Sprintf("Totals restricted to the %s line.", lob),
		})
		components = append(components, lob)
	}
	rows = append(rows, slidespec.RowSpecification{
		RowLabel:      "Total Loss Component",
		MetricFields:  metrics,
		IsAggregate:   true,
		ComponentRows: components,
		Rationale:     "Sum of the per-line rows above.",
	})

	return slidespec.SlideSpecification{
		SlideTitle: "Line of Business Breakdown",
		Rationale:  "Per-line contribution to the featured metrics.",
		Rows:       rows,
	}
}

// developmentSlide groups the summary numbers under spanning section
// headers the way reserve review decks usually present movement.
func (h *Heuristic) developmentSlide(metrics []string) slidespec.SlideSpecification {
	return slidespec.SlideSpecification{
		SlideTitle: "Reserve Development",
		Rationale:  "Movement view with grouped sections.",
		Rows: []slidespec.RowSpecification{
			{
				RowLabel:        "Total",
				IsGroupHeader:   true,
				SpansAllColumns: true,
			},
			{
				RowLabel:     "Current Position",
				MetricFields: metrics,
				Aggregation:  slidespec.AggSum,
			},
			{
				RowLabel:        "Loss Component Change",
				IsGroupHeader:   true,
				SpansAllColumns: true,
			},
			{
				RowLabel:     "Peak Observation",
				MetricFields: metrics,
				Aggregation:  slidespec.AggMax,
			},
			{
				RowLabel:     "Floor Observation",
				MetricFields: metrics,
				Aggregation:  slidespec.AggMin,
			},
		},
	}
}

// lineOfBusinessField returns the first declared categorical column
// whose name carries a line-of-business token, or "" when none does.
func (h *Heuristic) lineOfBusinessField(ds *dataset.Dataset, schema dataset.Schema) string {
	for _, f := range ds.Columns() {
		if f.Type != slidespec.FieldCategorical || !declared(schema, f.Name) {
			continue
		}
		name := strings.ToLower(f.Name)
		for _, tok := range lobTokens {
			if strings.Contains(name, tok) {
				return f.Name
			}
		}
	}
	return ""
}

// declared reports whether the schema permits planning on the column.
// A nil schema permits everything.
func declared(schema dataset.Schema, field string) bool {
	return schema == nil || schema.Has(field)
}

// metricFields returns declared numeric columns with monetary-looking
// names, preserving dataset column order.
func (h *Heuristic) metricFields(ds *dataset.Dataset, schema dataset.Schema) []string {
	var out []string
	for _, f := range ds.Columns() {
		if f.Type != slidespec.FieldNumeric || !declared(schema, f.Name) {
			continue
		}
		name := strings.ToLower(f.Name)
		for _, tok := range monetaryTokens {
			if strings.Contains(name, tok) {
				out = append(out, f.Name)
				break
			}
		}
	}
	return out
}
