package model

import (
	"errors"
	"testing"
)

func TestValidationError_Error(t *testing.T) {
	ve := &ValidationError{
		Errors: []FieldError{
			{Field: "sourceId", Message: "is required"},
			{Field: "postedAtMs", Message: "must not be negative"},
		},
	}
	got := ve.Error()
	want := "validation failed: sourceId: is required; postedAtMs: must not be negative"
	if got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestValidationError_HasErrors(t *testing.T) {
	ve := &ValidationError{}
	if ve.HasErrors() {
		t.Error("HasErrors() should be false for empty Errors slice")
	}
	ve.Errors = append(ve.Errors, FieldError{Field: "key", Message: "is required"})
	if !ve.HasErrors() {
		t.Error("HasErrors() should be true when Errors is non-empty")
	}
}

func TestValidationError_As(t *testing.T) {
	err := Event{Key: "k"}.Validate()
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("Validate() = %v, want *ValidationError", err)
	}
	if len(ve.Errors) != 1 || ve.Errors[0].Field != "sourceId" {
		t.Fatalf("unexpected field errors: %+v", ve.Errors)
	}
}
