package slidespec

import (
	"fmt"

	"github.com/expertsure/expertsure/internal/errors"
)

// ValidateRow checks a single row specification at the system boundary.
// Conflicting derivation modes are a specification error, not something
// to guess a resolution for: historical slide templates occasionally set
// is_group_header and is_aggregate together, and those templates were
// wrong.
func ValidateRow(r *RowSpecification) error {
	if r.RowLabel == "" {
		return errors.NewValidationError(errors.CodeInvalidRowSpec, "row_label must not be empty")
	}

	if r.IsGroupHeader && r.SpansAllColumns && r.IsAggregate {
		return errors.NewSpecificationError(errors.CodeConflictingRowMode,
			fmt.Sprintf("row %q is both a spanning group header and an aggregate", r.RowLabel))
	}

	norm, ok := NormalizeAggregation(r.Aggregation)
	if !ok {
		return errors.NewValidationError(errors.CodeInvalidRowSpec,
			fmt.Sprintf("row %q: unknown aggregation %q", r.RowLabel, r.Aggregation))
	}
	r.Aggregation = norm

	for _, f := range r.Filters {
		if f.Field == "" {
			return errors.NewValidationError(errors.CodeInvalidRowSpec,
				fmt.Sprintf("row %q: filter with empty field", r.RowLabel))
		}
		if !ValidOperator(f.Operator) {
			return errors.NewValidationError(errors.CodeInvalidRowSpec,
				fmt.Sprintf("row %q: unknown filter operator %q", r.RowLabel, f.Operator))
		}
	}

	if r.IsAggregate {
		if len(r.ComponentRows) == 0 {
			return errors.NewSpecificationError(errors.CodeUnknownComponentRow,
				fmt.Sprintf("aggregate row %q lists no component rows", r.RowLabel))
		}
		for _, ref := range r.ComponentRows {
			if ref == "" {
				return errors.NewSpecificationError(errors.CodeUnknownComponentRow,
					fmt.Sprintf("aggregate row %q has an empty component reference", r.RowLabel))
			}
		}
	}

	return nil
}

// ValidateSlide validates every row of a slide plus cross-row invariants:
// labels must be unique (they are the aggregate join key) and the slide
// number must be positive.
func ValidateSlide(s *SlideSpecification) error {
	if s.SlideNumber < 1 {
		return errors.NewValidationError(errors.CodeInvalidRowSpec,
			fmt.Sprintf("slide_number must be >= 1, got %d", s.SlideNumber))
	}

	seen := make(map[string]bool, len(s.Rows))
	for i := range s.Rows {
		if err := ValidateRow(&s.Rows[i]); err != nil {
			return fmt.Errorf("slide %d: %w", s.SlideNumber, err)
		}
		label := s.Rows[i].RowLabel
		if seen[label] {
			return errors.NewSpecificationError(errors.CodeDuplicateRowLabel,
				fmt.Sprintf("slide %d: row label %q appears more than once", s.SlideNumber, label))
		}
		seen[label] = true
	}

	return nil
}

// ValidateRows validates a user-submitted replacement row list for an
// existing slide.
func ValidateRows(slideNumber int, rows []RowSpecification) error {
	s := SlideSpecification{SlideNumber: slideNumber, Rows: rows}
	return ValidateSlide(&s)
}
