// Package slidespec defines the declarative row and slide specification
// model: the rules that derive each table row of a report slide from a
// tabular dataset.
package slidespec

import (
	"encoding/json"
	"fmt"
)

// FieldType classifies a dataset column. It is used only for display
// formatting and default-selection heuristics, never by the evaluation
// engine itself.
type FieldType string

const (
	FieldNumeric     FieldType = "numeric"
	FieldCategorical FieldType = "categorical"
	FieldDate        FieldType = "date"
	FieldOther       FieldType = "other"
)

// Field is a named column in the dataset. Immutable once the dataset is
// loaded.
type Field struct {
	Name        string    `json:"name"`
	Type        FieldType `json:"type"`
	Description string    `json:"description,omitempty"`
}

// Operator is a filter comparison operator.
type Operator string

const (
	OpEq  Operator = "=="
	OpNeq Operator = "!="
	OpGt  Operator = ">"
	OpLt  Operator = "<"
	OpGte Operator = ">="
	OpLte Operator = "<="
)

// ValidOperator reports whether op is one of the supported comparison
// operators.
func ValidOperator(op Operator) bool {
	switch op {
	case OpEq, OpNeq, OpGt, OpLt, OpGte, OpLte:
		return true
	}
	return false
}

// FilterPredicate restricts the dataset rows a row specification reads.
// A predicate whose field is absent from the dataset is vacuously true;
// this leniency lets one slide template serve datasets with slightly
// different column sets.
type FilterPredicate struct {
	Field    string      `json:"field"`
	Operator Operator    `json:"operator"`
	Value    interface{} `json:"value"`
}

// UnmarshalJSON fills in the default operator when it is omitted, which
// is how the edit UI historically sent equality filters.
func (p *FilterPredicate) UnmarshalJSON(data []byte) error {
	type alias FilterPredicate
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	if a.Operator == "" {
		a.Operator = OpEq
	}
	*p = FilterPredicate(a)
	return nil
}

// Aggregation is the reduction applied to a filtered metric column.
type Aggregation string

const (
	AggSum     Aggregation = "sum"
	AggAverage Aggregation = "average"
	AggCount   Aggregation = "count"
	AggMax     Aggregation = "max"
	AggMin     Aggregation = "min"
)

// NormalizeAggregation maps aliases and the empty string onto a canonical
// aggregation kind. "mean" is accepted as an alias for "average"; empty
// defaults to "sum".
func NormalizeAggregation(a Aggregation) (Aggregation, bool) {
	switch a {
	case "", AggSum:
		return AggSum, true
	case AggAverage, "mean":
		return AggAverage, true
	case AggCount:
		return AggCount, true
	case AggMax:
		return AggMax, true
	case AggMin:
		return AggMin, true
	}
	return a, false
}

// RowMode identifies the single derivation mode of a row.
type RowMode int

const (
	// ModeLeaf rows compute values directly from filtered dataset columns.
	ModeLeaf RowMode = iota
	// ModeGroupHeader rows are label-only section markers spanning the
	// full table width.
	ModeGroupHeader
	// ModeAggregate rows sum the values of other named rows.
	ModeAggregate
)

func (m RowMode) String() string {
	switch m {
	case ModeGroupHeader:
		return "group_header"
	case ModeAggregate:
		return "aggregate"
	default:
		return "leaf"
	}
}

// RowSpecification is the unit of derivation for one table row.
type RowSpecification struct {
	// RowLabel is unique within a slide's row list and is the join key
	// for aggregate resolution.
	RowLabel string `json:"row_label"`

	// MetricFields are the dataset columns this row reads, in order.
	// Empty for pure group headers.
	MetricFields []string `json:"metric_fields"`

	Filters []FilterPredicate `json:"filters,omitempty"`

	// Aggregation defaults to sum when empty.
	Aggregation Aggregation `json:"aggregation,omitempty"`

	IsGroupHeader   bool `json:"is_group_header"`
	SpansAllColumns bool `json:"spans_all_columns"`

	// IsAggregate rows combine other rows by label instead of reading
	// the dataset directly.
	IsAggregate bool `json:"is_aggregate"`

	// ComponentRows names the rows an aggregate sums over. Only
	// meaningful when IsAggregate is true.
	ComponentRows []string `json:"component_rows,omitempty"`

	// Rationale is provenance metadata only, never consulted by the
	// engine.
	Rationale string `json:"rationale,omitempty"`
}

// Mode returns the row's derivation mode. Call Validate first: Mode
// assumes the flag combination is consistent.
func (r *RowSpecification) Mode() RowMode {
	switch {
	case r.IsGroupHeader && r.SpansAllColumns:
		return ModeGroupHeader
	case r.IsAggregate:
		return ModeAggregate
	default:
		return ModeLeaf
	}
}

// SlideSpecification is an ordered list of row specifications for one
// slide, created by the planner and superseded in place when the user
// submits edits.
type SlideSpecification struct {
	SlideNumber int                `json:"slide_number"`
	SlideTitle  string             `json:"slide_title"`
	Rows        []RowSpecification `json:"rows"`

	// Rationale explains the planner's overall field selection.
	Rationale string `json:"rationale,omitempty"`
}

// RowByLabel returns the row with the given label, or nil.
func (s *SlideSpecification) RowByLabel(label string) *RowSpecification {
	for i := range s.Rows {
		if s.Rows[i].RowLabel == label {
			return &s.Rows[i]
		}
	}
	return nil
}

// EncodeRows serializes a row list for storage.
func EncodeRows(rows []RowSpecification) ([]byte, error) {
	data, err := json.Marshal(rows)
	if err != nil {
		return nil, fmt.Errorf("slidespec: encode rows: %w", err)
	}
	return data, nil
}

// DecodeRows deserializes a stored row list.
func DecodeRows(data []byte) ([]RowSpecification, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var rows []RowSpecification
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("slidespec: decode rows: %w", err)
	}
	return rows, nil
}
