package journey

import (
	"fmt"

	"github.com/jwalitptl/careflow-api/internal/model"
)

// ValidationError rejects an intent before anything is written.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// IllegalTransitionError is returned when the transition table does not allow
// intent from the patient's current status.
type IllegalTransitionError struct {
	From   model.PatientStatus
	Intent Intent
}

func (e *IllegalTransitionError) Error() string {
	return fmt.Sprintf("cannot %s a patient in status %q", e.Intent, e.From)
}

func invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}
