package model

import (
	"fmt"
	"math"
	"strings"
)

// ValidationError holds a list of field-level validation errors.
type ValidationError struct {
	Errors []FieldError
}

// FieldError represents a single validation failure on a named field.
type FieldError struct {
	Field   string
	Message string
}

// Error formats the validation error as a semicolon-separated list of field messages.
func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Errors))
	for i, fe := range e.Errors {
		parts[i] = fe.Field + ": " + fe.Message
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// HasErrors reports whether the validation error contains any field errors.
func (e *ValidationError) HasErrors() bool {
	return len(e.Errors) > 0
}

// Add appends a field error.
func (e *ValidationError) Add(field, message string) {
	e.Errors = append(e.Errors, FieldError{Field: field, Message: message})
}

// ValidateSnapshot checks a snapshot for structural problems that would make
// node identity ambiguous. Out-of-range precomputed metrics are not errors;
// the normalizer clamps them.
// It returns a *ValidationError if any rules fail, or nil if the snapshot is valid.
func ValidateSnapshot(contacts []Contact) error {
	var ve ValidationError
	seen := make(map[string]int, len(contacts))

	for i, c := range contacts {
		prefix := fmt.Sprintf("contacts[%d]", i)

		id := strings.TrimSpace(c.ID)
		switch {
		case id == "":
			ve.Errors = append(ve.Errors, FieldError{Field: prefix + ".id", Message: "is required"})
		case id == AnchorID:
			ve.Errors = append(ve.Errors, FieldError{Field: prefix + ".id", Message: fmt.Sprintf("%q is reserved for the anchor", AnchorID)})
		default:
			if first, dup := seen[id]; dup {
				ve.Errors = append(ve.Errors, FieldError{
					Field:   prefix + ".id",
					Message: fmt.Sprintf("duplicate of contacts[%d]", first),
				})
			} else {
				seen[id] = i
			}
		}

		// Raw metrics: negative values have no meaning.
		for _, f := range []struct {
			name string
			v    *float64
		}{
			{"days_since_contact", c.DaysSinceContact},
			{"messages_per_day", c.MessagesPerDay},
			{"intensity", c.Intensity},
		} {
			if f.v != nil && !math.IsNaN(*f.v) && *f.v < 0 {
				ve.Errors = append(ve.Errors, FieldError{
					Field:   prefix + "." + f.name,
					Message: fmt.Sprintf("must not be negative, got %g", *f.v),
				})
			}
		}
	}

	if ve.HasErrors() {
		return &ve
	}
	return nil
}
