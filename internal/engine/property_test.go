package engine

import (
	"fmt"
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/expertsure/expertsure/internal/dataset"
	"github.com/expertsure/expertsure/internal/slidespec"
)

// buildCSV renders per-line-of-business reserve values into a dataset.
func buildCSV(auto, property []int) string {
	var b strings.Builder
	b.WriteString("LoB_masked,NominalReserves\n")
	for _, v := range auto {
		fmt.Fprintf(&b, "Auto,%d\n", v)
	}
	for _, v := range property {
		fmt.Fprintf(&b, "Property,%d\n", v)
	}
	return b.String()
}

func totalSlide() *slidespec.SlideSpecification {
	return &slidespec.SlideSpecification{
		SlideNumber: 1,
		SlideTitle:  "Totals",
		Rows: []slidespec.RowSpecification{
			leafRow("Auto", "Auto", "NominalReserves"),
			leafRow("Property", "Property", "NominalReserves"),
			{
				RowLabel:      "Total",
				MetricFields:  []string{"NominalReserves"},
				IsAggregate:   true,
				ComponentRows: []string{"Auto", "Property"},
			},
		},
	}
}

func genValues() gopter.Gen {
	return gen.SliceOfN(4, gen.IntRange(1, 1_000_000))
}

func TestAggregateEqualsComponentSum(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200

	properties := gopter.NewProperties(parameters)

	properties.Property("total row equals the sum of its component rows", prop.ForAll(
		func(auto, property []int) bool {
			ds, err := dataset.Parse(strings.NewReader(buildCSV(auto, property)))
			if err != nil {
				return false
			}
			table, err := Build(totalSlide(), ds)
			if err != nil {
				return false
			}

			var want int
			for _, v := range auto {
				want += v
			}
			for _, v := range property {
				want += v
			}

			return table.Rows[2].Cells[0] == FormatValue(float64(want), "NominalReserves")
		},
		genValues(),
		genValues(),
	))

	properties.Property("building the same slide twice yields identical tables", prop.ForAll(
		func(auto, property []int) bool {
			ds, err := dataset.Parse(strings.NewReader(buildCSV(auto, property)))
			if err != nil {
				return false
			}
			first, err := Build(totalSlide(), ds)
			if err != nil {
				return false
			}
			second, err := Build(totalSlide(), ds)
			if err != nil {
				return false
			}
			if len(first.Rows) != len(second.Rows) {
				return false
			}
			for i := range first.Rows {
				if first.Rows[i].Label != second.Rows[i].Label {
					return false
				}
				for c := range first.Rows[i].Cells {
					if first.Rows[i].Cells[c] != second.Rows[i].Cells[c] {
						return false
					}
				}
			}
			return true
		},
		genValues(),
		genValues(),
	))

	properties.Property("filters on unknown fields never change a row's value", prop.ForAll(
		func(auto, property []int) bool {
			ds, err := dataset.Parse(strings.NewReader(buildCSV(auto, property)))
			if err != nil {
				return false
			}

			plain := totalSlide()
			base, err := Build(plain, ds)
			if err != nil {
				return false
			}

			filtered := totalSlide()
			for i := range filtered.Rows {
				filtered.Rows[i].Filters = append(filtered.Rows[i].Filters,
					slidespec.FilterPredicate{Field: "NoSuchColumn", Operator: slidespec.OpEq, Value: "x"})
			}
			got, err := Build(filtered, ds)
			if err != nil {
				return false
			}

			for i := range base.Rows {
				for c := range base.Rows[i].Cells {
					if base.Rows[i].Cells[c] != got.Rows[i].Cells[c] {
						return false
					}
				}
			}
			return true
		},
		genValues(),
		genValues(),
	))

	properties.Property("switching a leaf from sum to count yields the row count", prop.ForAll(
		func(auto []int) bool {
			ds, err := dataset.Parse(strings.NewReader(buildCSV(auto, nil)))
			if err != nil {
				return false
			}

			slide := &slidespec.SlideSpecification{
				SlideNumber: 1,
				SlideTitle:  "Counts",
				Rows: []slidespec.RowSpecification{
					{
						RowLabel:     "Auto",
						MetricFields: []string{"NominalReserves"},
						Filters: []slidespec.FilterPredicate{
							{Field: "LoB_masked", Operator: slidespec.OpEq, Value: "Auto"},
						},
						Aggregation: slidespec.AggCount,
					},
				},
			}
			table, err := Build(slide, ds)
			if err != nil {
				return false
			}
			return table.Rows[0].Cells[0] == FormatCount(float64(len(auto)))
		},
		gen.SliceOfN(6, gen.IntRange(1, 1_000_000)),
	))

	properties.TestingRun(t)
}
