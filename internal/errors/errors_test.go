package errors

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorFormatting(t *testing.T) {
	err := New(ErrCategorySpecification, CodeUnknownComponentRow, "row Total references LOB9")
	want := "[SPECIFICATION:UNKNOWN_COMPONENT_ROW] row Total references LOB9"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}

	cause := errors.New("disk full")
	wrapped := Wrap(ErrCategoryStorage, CodeUploadFailed, "artifact upload", cause)
	if wrapped.Error() != "[STORAGE:UPLOAD_FAILED] artifact upload: disk full" {
		t.Errorf("unexpected wrapped message: %q", wrapped.Error())
	}
}

func TestUnwrap(t *testing.T) {
	cause := errors.New("database is locked")
	err := NewStoreError(CodeWriteConflict, "replace slide rows", cause)

	if !errors.Is(err, cause) {
		t.Error("errors.Is should find the wrapped cause")
	}
	if errors.Unwrap(err) != cause {
		t.Error("Unwrap should return the cause")
	}
}

func TestIsMatchesCategoryAndCode(t *testing.T) {
	err := NewSpecificationError(CodeCyclicAggregateReference, "A -> B -> A")
	target := New(ErrCategorySpecification, CodeCyclicAggregateReference, "")

	if !errors.Is(err, target) {
		t.Error("errors matching category and code should satisfy errors.Is")
	}

	other := New(ErrCategorySpecification, CodeUnknownComponentRow, "")
	if errors.Is(err, other) {
		t.Error("errors with different codes should not match")
	}
}

func TestIsMatchesThroughWrapping(t *testing.T) {
	inner := NewSpecificationError(CodeUnknownComponentRow, "dangling ref")
	outer := fmt.Errorf("building slide 2: %w", inner)

	if !IsSpecification(outer) {
		t.Error("IsSpecification should see through fmt.Errorf wrapping")
	}
	if GetCode(outer) != CodeUnknownComponentRow {
		t.Errorf("GetCode = %q, want %q", GetCode(outer), CodeUnknownComponentRow)
	}
}

func TestRetryableClassification(t *testing.T) {
	tests := []struct {
		name      string
		err       *ReportError
		retryable bool
	}{
		{"write conflict", New(ErrCategoryStore, CodeWriteConflict, ""), true},
		{"upload failed", New(ErrCategoryStorage, CodeUploadFailed, ""), true},
		{"download failed", New(ErrCategoryStorage, CodeDownloadFailed, ""), true},
		{"publish failed", New(ErrCategoryChannel, CodePublishFailed, ""), true},
		{"validation", NewValidationError(CodeInvalidSchema, ""), false},
		{"specification", NewSpecificationError(CodeCyclicAggregateReference, ""), false},
		{"internal", NewInternalError("boom", nil), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryable(tt.err); got != tt.retryable {
				t.Errorf("IsRetryable = %v, want %v", got, tt.retryable)
			}
		})
	}
}

func TestGetCategoryNonReportError(t *testing.T) {
	if got := GetCategory(errors.New("plain")); got != "" {
		t.Errorf("GetCategory on plain error = %q, want empty", got)
	}
	if IsRetryable(errors.New("plain")) {
		t.Error("plain errors are not retryable")
	}
}

func TestWithDetails(t *testing.T) {
	err := NewSpecificationError(CodeDuplicateRowLabel, "LOB1 appears twice")
	detailed := err.WithDetails(map[string]interface{}{"slide_number": 2})

	if detailed.Details["slide_number"] != 2 {
		t.Error("details not attached")
	}
	if err.Details != nil {
		t.Error("WithDetails must not mutate the original error")
	}
}
