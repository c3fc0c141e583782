package slidespec

import (
	"encoding/json"
	"testing"

	reperr "github.com/expertsure/expertsure/internal/errors"
)

func TestRowMode(t *testing.T) {
	tests := []struct {
		name string
		row  RowSpecification
		want RowMode
	}{
		{"leaf", RowSpecification{RowLabel: "LOB1"}, ModeLeaf},
		{"spanning header", RowSpecification{RowLabel: "Total", IsGroupHeader: true, SpansAllColumns: true}, ModeGroupHeader},
		{"non-spanning header is a leaf", RowSpecification{RowLabel: "Sub", IsGroupHeader: true}, ModeLeaf},
		{"aggregate", RowSpecification{RowLabel: "Total Loss", IsAggregate: true, ComponentRows: []string{"LOB1"}}, ModeAggregate},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.row.Mode(); got != tt.want {
				t.Errorf("Mode() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNormalizeAggregation(t *testing.T) {
	tests := []struct {
		in   Aggregation
		want Aggregation
		ok   bool
	}{
		{"", AggSum, true},
		{"sum", AggSum, true},
		{"mean", AggAverage, true},
		{"average", AggAverage, true},
		{"count", AggCount, true},
		{"max", AggMax, true},
		{"min", AggMin, true},
		{"median", "median", false},
	}

	for _, tt := range tests {
		got, ok := NormalizeAggregation(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("NormalizeAggregation(%q) = (%q, %v), want (%q, %v)", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

func TestFilterPredicateDefaultOperator(t *testing.T) {
	var p FilterPredicate
	if err := json.Unmarshal([]byte(`{"field":"LoB","value":1}`), &p); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if p.Operator != OpEq {
		t.Errorf("default operator = %q, want %q", p.Operator, OpEq)
	}
	if p.Field != "LoB" {
		t.Errorf("field = %q, want LoB", p.Field)
	}
}

func TestValidateRowConflictingModes(t *testing.T) {
	row := RowSpecification{
		RowLabel:        "Total",
		IsGroupHeader:   true,
		SpansAllColumns: true,
		IsAggregate:     true,
		ComponentRows:   []string{"LOB1"},
	}
	err := ValidateRow(&row)
	if err == nil {
		t.Fatal("expected error for conflicting row modes")
	}
	if reperr.GetCode(err) != reperr.CodeConflictingRowMode {
		t.Errorf("code = %q, want %q", reperr.GetCode(err), reperr.CodeConflictingRowMode)
	}
}

func TestValidateRowNormalizesAggregation(t *testing.T) {
	row := RowSpecification{RowLabel: "LOB1", Aggregation: "mean"}
	if err := ValidateRow(&row); err != nil {
		t.Fatalf("ValidateRow: %v", err)
	}
	if row.Aggregation != AggAverage {
		t.Errorf("aggregation = %q, want %q", row.Aggregation, AggAverage)
	}
}

func TestValidateRowRejectsBadOperator(t *testing.T) {
	row := RowSpecification{
		RowLabel: "LOB1",
		Filters:  []FilterPredicate{{Field: "LoB", Operator: "~=", Value: 1}},
	}
	if err := ValidateRow(&row); err == nil {
		t.Fatal("expected error for unknown operator")
	}
}

func TestValidateRowAggregateWithoutComponents(t *testing.T) {
	row := RowSpecification{RowLabel: "Total", IsAggregate: true}
	err := ValidateRow(&row)
	if err == nil {
		t.Fatal("expected error for aggregate with no components")
	}
	if !reperr.IsSpecification(err) {
		t.Errorf("expected specification error, got %v", err)
	}
}

func TestValidateSlideDuplicateLabels(t *testing.T) {
	slide := SlideSpecification{
		SlideNumber: 1,
		Rows: []RowSpecification{
			{RowLabel: "LOB1"},
			{RowLabel: "LOB1"},
		},
	}
	err := ValidateSlide(&slide)
	if err == nil {
		t.Fatal("expected error for duplicate row labels")
	}
	if reperr.GetCode(err) != reperr.CodeDuplicateRowLabel {
		t.Errorf("code = %q, want %q", reperr.GetCode(err), reperr.CodeDuplicateRowLabel)
	}
}

func TestValidateSlideNumber(t *testing.T) {
	slide := SlideSpecification{SlideNumber: 0}
	if err := ValidateSlide(&slide); err == nil {
		t.Fatal("expected error for slide_number 0")
	}
}

func TestEncodeDecodeRows(t *testing.T) {
	rows := []RowSpecification{
		{
			RowLabel:     "LOB1",
			MetricFields: []string{"ActuarialIBNR", "CaseReserves"},
			Filters:      []FilterPredicate{{Field: "LoB_masked", Operator: OpEq, Value: float64(1)}},
			Aggregation:  AggSum,
		},
		{
			RowLabel:      "Total Loss Component",
			MetricFields:  []string{"ActuarialIBNR"},
			IsAggregate:   true,
			ComponentRows: []string{"LOB1"},
		},
	}

	data, err := EncodeRows(rows)
	if err != nil {
		t.Fatalf("EncodeRows: %v", err)
	}

	got, err := DecodeRows(data)
	if err != nil {
		t.Fatalf("DecodeRows: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("decoded %d rows, want 2", len(got))
	}
	if got[0].RowLabel != "LOB1" || got[1].ComponentRows[0] != "LOB1" {
		t.Errorf("round trip mismatch: %+v", got)
	}
	if got[0].Filters[0].Operator != OpEq {
		t.Errorf("filter operator = %q, want %q", got[0].Filters[0].Operator, OpEq)
	}
}

func TestDecodeRowsEmpty(t *testing.T) {
	rows, err := DecodeRows(nil)
	if err != nil || rows != nil {
		t.Errorf("DecodeRows(nil) = (%v, %v), want (nil, nil)", rows, err)
	}
}

func TestRowByLabel(t *testing.T) {
	slide := SlideSpecification{
		SlideNumber: 1,
		Rows:        []RowSpecification{{RowLabel: "A"}, {RowLabel: "B"}},
	}
	if slide.RowByLabel("B") == nil {
		t.Error("RowByLabel(B) should find the row")
	}
	if slide.RowByLabel("C") != nil {
		t.Error("RowByLabel(C) should return nil")
	}
}
