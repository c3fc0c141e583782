package engine

import (
	"strings"
	"testing"

	"github.com/expertsure/expertsure/internal/dataset"
	reperr "github.com/expertsure/expertsure/internal/errors"
	"github.com/expertsure/expertsure/internal/slidespec"
)

const reservesCSV = `LoB_masked,NominalReserves,CaseReserves,ClaimCount,LossRatio
Auto,100,40,10,0.65
Auto,50,20,5,0.70
Property,200,80,20,0.55
Property,100,60,8,0.60
Marine,0,10,2,1.20
`

func loadDataset(t *testing.T, csv string) *dataset.Dataset {
	t.Helper()
	ds, err := dataset.Parse(strings.NewReader(csv))
	if err != nil {
		t.Fatalf("parse dataset: %v", err)
	}
	return ds
}

func leafRow(label, lob string, fields ...string) slidespec.RowSpecification {
	return slidespec.RowSpecification{
		RowLabel:     label,
		MetricFields: fields,
		Filters: []slidespec.FilterPredicate{
			{Field: "LoB_masked", Operator: slidespec.OpEq, Value: lob},
		},
		Aggregation: slidespec.AggSum,
	}
}

func TestBuildReserveTable(t *testing.T) {
	ds := loadDataset(t, reservesCSV)

	slide := &slidespec.SlideSpecification{
		SlideNumber: 1,
		SlideTitle:  "Reserves Summary",
		Rows: []slidespec.RowSpecification{
			{RowLabel: "Reserve Position", IsGroupHeader: true, SpansAllColumns: true},
			leafRow("Auto", "Auto", "NominalReserves", "CaseReserves"),
			leafRow("Property", "Property", "NominalReserves", "CaseReserves"),
			{
				RowLabel:      "Total",
				MetricFields:  []string{"NominalReserves", "CaseReserves"},
				IsAggregate:   true,
				ComponentRows: []string{"Auto", "Property"},
			},
		},
	}

	table, err := Build(slide, ds)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	wantHeaders := []string{"", "Nominalreserves", "Casereserves"}
	if len(table.Headers) != len(wantHeaders) {
		t.Fatalf("headers = %v, want %v", table.Headers, wantHeaders)
	}
	for i, h := range wantHeaders {
		if table.Headers[i] != h {
			t.Errorf("header[%d] = %q, want %q", i, table.Headers[i], h)
		}
	}

	if len(table.Rows) != 4 {
		t.Fatalf("row count = %d, want 4", len(table.Rows))
	}

	hdr := table.Rows[0]
	if hdr.Style != StyleHeader || !hdr.SpansAllColumns || len(hdr.Cells) != 0 {
		t.Errorf("group header row rendered wrong: %+v", hdr)
	}

	auto := table.Rows[1]
	if auto.Style != StyleData {
		t.Errorf("Auto style = %q, want data", auto.Style)
	}
	if auto.Cells[0] != "$150" {
		t.Errorf("Auto NominalReserves = %q, want $150", auto.Cells[0])
	}

	total := table.Rows[3]
	if total.Style != StyleAggregate {
		t.Errorf("Total style = %q, want aggregate", total.Style)
	}
	if total.Cells[0] != "$450" {
		t.Errorf("Total NominalReserves = %q, want $450", total.Cells[0])
	}
	if total.Cells[1] != "$200" {
		t.Errorf("Total CaseReserves = %q, want $200", total.Cells[1])
	}
}

func TestBuildColumnUnionFirstSeen(t *testing.T) {
	ds := loadDataset(t, reservesCSV)

	slide := &slidespec.SlideSpecification{
		SlideNumber: 1,
		SlideTitle:  "Mixed Columns",
		Rows: []slidespec.RowSpecification{
			leafRow("Auto", "Auto", "CaseReserves"),
			leafRow("Property", "Property", "NominalReserves", "CaseReserves"),
			{RowLabel: "Spacer", IsGroupHeader: true, SpansAllColumns: true,
				MetricFields: []string{"ClaimCount"}},
		},
	}

	table, err := Build(slide, ds)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	// First-seen order, spanning headers contribute nothing.
	want := []string{"CaseReserves", "NominalReserves"}
	if len(table.Columns) != len(want) {
		t.Fatalf("columns = %v, want %v", table.Columns, want)
	}
	for i := range want {
		if table.Columns[i] != want[i] {
			t.Errorf("column[%d] = %q, want %q", i, table.Columns[i], want[i])
		}
	}

	// Auto declares no NominalReserves; its cell stays blank.
	if got := table.Rows[0].Cells[1]; got != "" {
		t.Errorf("undeclared column cell = %q, want empty", got)
	}
}

func TestBuildMissingMetricField(t *testing.T) {
	ds := loadDataset(t, reservesCSV)

	slide := &slidespec.SlideSpecification{
		SlideNumber: 1,
		SlideTitle:  "Missing Field",
		Rows: []slidespec.RowSpecification{
			leafRow("Auto", "Auto", "DiscountedReserves"),
		},
	}

	table, err := Build(slide, ds)
	if err != nil {
		t.Fatalf("missing metric field must not fail the build: %v", err)
	}
	if got := table.Rows[0].Cells[0]; got != TextNA {
		t.Errorf("missing field cell = %q, want %q", got, TextNA)
	}
	if len(table.Warnings) != 1 {
		t.Fatalf("warnings = %v, want exactly one", table.Warnings)
	}
}

func TestBuildUnknownComponentRow(t *testing.T) {
	ds := loadDataset(t, reservesCSV)

	slide := &slidespec.SlideSpecification{
		SlideNumber: 1,
		SlideTitle:  "Dangling Reference",
		Rows: []slidespec.RowSpecification{
			leafRow("Auto", "Auto", "NominalReserves"),
			{
				RowLabel:      "Total",
				MetricFields:  []string{"NominalReserves"},
				IsAggregate:   true,
				ComponentRows: []string{"Auto", "Aviation"},
			},
		},
	}

	_, err := Build(slide, ds)
	if err == nil {
		t.Fatal("expected unknown component error")
	}
	if reperr.GetCode(err) != reperr.CodeUnknownComponentRow {
		t.Errorf("error code = %q, want %q", reperr.GetCode(err), reperr.CodeUnknownComponentRow)
	}
}

func TestBuildCyclicAggregateReference(t *testing.T) {
	ds := loadDataset(t, reservesCSV)

	slide := &slidespec.SlideSpecification{
		SlideNumber: 1,
		SlideTitle:  "Cycle",
		Rows: []slidespec.RowSpecification{
			{RowLabel: "A", MetricFields: []string{"NominalReserves"},
				IsAggregate: true, ComponentRows: []string{"B"}},
			{RowLabel: "B", MetricFields: []string{"NominalReserves"},
				IsAggregate: true, ComponentRows: []string{"A"}},
		},
	}

	_, err := Build(slide, ds)
	if err == nil {
		t.Fatal("expected cycle error")
	}
	if reperr.GetCode(err) != reperr.CodeCyclicAggregateReference {
		t.Errorf("error code = %q, want %q", reperr.GetCode(err), reperr.CodeCyclicAggregateReference)
	}
}

func TestBuildAggregateOverAggregate(t *testing.T) {
	ds := loadDataset(t, reservesCSV)

	slide := &slidespec.SlideSpecification{
		SlideNumber: 1,
		SlideTitle:  "Nested Totals",
		Rows: []slidespec.RowSpecification{
			leafRow("Auto", "Auto", "NominalReserves"),
			leafRow("Property", "Property", "NominalReserves"),
			{RowLabel: "Subtotal", MetricFields: []string{"NominalReserves"},
				IsAggregate: true, ComponentRows: []string{"Auto", "Property"}},
			{RowLabel: "Grand Total", MetricFields: []string{"NominalReserves"},
				IsAggregate: true, ComponentRows: []string{"Subtotal"}},
		},
	}

	table, err := Build(slide, ds)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if got := table.Rows[3].Cells[0]; got != "$450" {
		t.Errorf("grand total = %q, want $450", got)
	}
}

func TestBuildAggregateIgnoresOwnAggregation(t *testing.T) {
	ds := loadDataset(t, reservesCSV)

	// The aggregate declares "average" but still sums its components.
	slide := &slidespec.SlideSpecification{
		SlideNumber: 1,
		SlideTitle:  "Aggregate Semantics",
		Rows: []slidespec.RowSpecification{
			leafRow("Auto", "Auto", "NominalReserves"),
			leafRow("Property", "Property", "NominalReserves"),
			{RowLabel: "Total", MetricFields: []string{"NominalReserves"},
				Aggregation: slidespec.AggAverage,
				IsAggregate: true, ComponentRows: []string{"Auto", "Property"}},
		},
	}

	table, err := Build(slide, ds)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if got := table.Rows[2].Cells[0]; got != "$450" {
		t.Errorf("aggregate sum = %q, want $450", got)
	}
}

func TestBuildZeroRendersPlaceholder(t *testing.T) {
	ds := loadDataset(t, reservesCSV)

	slide := &slidespec.SlideSpecification{
		SlideNumber: 1,
		SlideTitle:  "Zero Placeholder",
		Rows: []slidespec.RowSpecification{
			leafRow("Marine", "Marine", "NominalReserves"),
		},
	}

	table, err := Build(slide, ds)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if got := table.Rows[0].Cells[0]; got != TextZero {
		t.Errorf("zero cell = %q, want %q", got, TextZero)
	}
}

func TestBuildNonSpanningGroupHeaderKeepsCells(t *testing.T) {
	ds := loadDataset(t, reservesCSV)

	slide := &slidespec.SlideSpecification{
		SlideNumber: 1,
		SlideTitle:  "Sections",
		Rows: []slidespec.RowSpecification{
			{
				RowLabel:      "Auto Book",
				MetricFields:  []string{"NominalReserves"},
				IsGroupHeader: true,
				Filters: []slidespec.FilterPredicate{
					{Field: "LoB_masked", Operator: slidespec.OpEq, Value: "Auto"},
				},
				Aggregation: slidespec.AggSum,
			},
			leafRow("Property", "Property", "NominalReserves"),
		},
	}

	table, err := Build(slide, ds)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	// A group header without spans_all_columns is still a section
	// label, but its metric cells are computed like a leaf's.
	hdr := table.Rows[0]
	if hdr.Style != StyleHeader {
		t.Errorf("non-spanning group header style = %q, want %q", hdr.Style, StyleHeader)
	}
	if hdr.SpansAllColumns {
		t.Error("non-spanning group header must not span")
	}
	if len(hdr.Cells) != 1 || hdr.Cells[0] != "$150" {
		t.Errorf("group header cells = %v, want the computed Auto total", hdr.Cells)
	}
}

func TestBuildMissingFilterFieldVacuous(t *testing.T) {
	ds := loadDataset(t, reservesCSV)

	slide := &slidespec.SlideSpecification{
		SlideNumber: 1,
		SlideTitle:  "Tolerant Filters",
		Rows: []slidespec.RowSpecification{
			{
				RowLabel:     "All Lines",
				MetricFields: []string{"NominalReserves"},
				Filters: []slidespec.FilterPredicate{
					{Field: "Region", Operator: slidespec.OpEq, Value: "EMEA"},
				},
				Aggregation: slidespec.AggSum,
			},
		},
	}

	table, err := Build(slide, ds)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	// A filter on a missing field matches everything.
	if got := table.Rows[0].Cells[0]; got != "$450" {
		t.Errorf("vacuous filter sum = %q, want $450", got)
	}
}

func TestBuildAggregationKinds(t *testing.T) {
	ds := loadDataset(t, reservesCSV)

	tests := []struct {
		agg  slidespec.Aggregation
		want string
	}{
		{slidespec.AggSum, "$300"},
		{slidespec.AggAverage, "$150"},
		// A count is a row tally even on a monetary column.
		{slidespec.AggCount, "2"},
		{slidespec.AggMax, "$200"},
		{slidespec.AggMin, "$100"},
	}

	for _, tt := range tests {
		t.Run(string(tt.agg), func(t *testing.T) {
			slide := &slidespec.SlideSpecification{
				SlideNumber: 1,
				SlideTitle:  "Kinds",
				Rows: []slidespec.RowSpecification{
					{
						RowLabel:     "Property",
						MetricFields: []string{"NominalReserves"},
						Filters: []slidespec.FilterPredicate{
							{Field: "LoB_masked", Operator: slidespec.OpEq, Value: "Property"},
						},
						Aggregation: tt.agg,
					},
				},
			}
			table, err := Build(slide, ds)
			if err != nil {
				t.Fatalf("Build: %v", err)
			}
			if got := table.Rows[0].Cells[0]; got != tt.want {
				t.Errorf("%s = %q, want %q", tt.agg, got, tt.want)
			}
		})
	}
}

func TestBuildRangeFilter(t *testing.T) {
	ds := loadDataset(t, reservesCSV)

	slide := &slidespec.SlideSpecification{
		SlideNumber: 1,
		SlideTitle:  "Large Reserves",
		Rows: []slidespec.RowSpecification{
			{
				RowLabel:     "Over 75",
				MetricFields: []string{"NominalReserves"},
				Filters: []slidespec.FilterPredicate{
					{Field: "NominalReserves", Operator: slidespec.OpGt, Value: 75.0},
				},
				Aggregation: slidespec.AggSum,
			},
		},
	}

	table, err := Build(slide, ds)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if got := table.Rows[0].Cells[0]; got != "$400" {
		t.Errorf("range filter sum = %q, want $400", got)
	}
}

func TestFormatValue(t *testing.T) {
	tests := []struct {
		field string
		value float64
		want  string
	}{
		{"NominalReserves", 1234567, "$1,234,567"},
		{"NominalReserves", -4500, "$-4,500"},
		{"ActualIncurred", 150, "$150"},
		{"ChangeInOCL", 99.6, "$100"},
		{"LossRatio", 0.65, "65.00%"},
		{"LossRatio", 1.0, "100.00%"},
		{"CombinedRatio", 103.5, "103.50%"},
		{"InterestPercent", 0.025, "2.50%"},
		{"ClaimCount", 10500, "$10,500"}, // "claim" wins over "count"
		{"PolicyCount", 10500, "10,500"},
		{"AccidentYear", 2023, "2,023"},
		{"Exposure", 1234.5, "1,234.50"},
		{"Exposure", 0, "-"},
		{"NominalReserves", 0, "-"},
	}

	for _, tt := range tests {
		if got := FormatValue(tt.value, tt.field); got != tt.want {
			t.Errorf("FormatValue(%v, %q) = %q, want %q", tt.value, tt.field, got, tt.want)
		}
	}
}

func TestFormatCount(t *testing.T) {
	tests := []struct {
		value float64
		want  string
	}{
		{2, "2"},
		{10500, "10,500"},
		{0, "-"},
	}
	for _, tt := range tests {
		if got := FormatCount(tt.value); got != tt.want {
			t.Errorf("FormatCount(%v) = %q, want %q", tt.value, got, tt.want)
		}
	}
}

func TestFormatHeader(t *testing.T) {
	tests := []struct{ in, want string }{
		{"reserve_amount", "Reserve Amount"},
		{"LoB_masked", "Lob Masked"},
		{"NominalReserves", "Nominalreserves"},
		{"claim_count_2023", "Claim Count 2023"},
	}
	for _, tt := range tests {
		if got := FormatHeader(tt.in); got != tt.want {
			t.Errorf("FormatHeader(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
