package pms

import (
	"errors"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// ValidateCreatePatient checks caller input before any vendor call is made.
func ValidateCreatePatient(input CreatePatientInput) error {
	return toValidationError(validate.Struct(input))
}

// ValidateUpdatePatient checks the set fields of a partial update so a
// malformed email or birth date fails locally instead of as a vendor 422.
func ValidateUpdatePatient(input UpdatePatientInput) error {
	return toValidationError(validate.Struct(input))
}

// ValidateBookAppointment checks a booking payload, including the half-open
// interval invariant (EndTime after StartTime).
func ValidateBookAppointment(input BookAppointmentInput) error {
	return toValidationError(validate.Struct(input))
}

// ValidateSearch rejects empty patient searches.
func ValidateSearch(query PatientSearchQuery) error {
	if query.IsEmpty() {
		return &ValidationError{Reason: "at least one search criterion is required"}
	}
	return nil
}

// ValidateDateRange rejects inverted or zero windows.
func ValidateDateRange(r DateRange) error {
	if r.From.IsZero() || r.To.IsZero() {
		return &ValidationError{Field: "dateRange", Reason: "from and to are required"}
	}
	if !r.From.Before(r.To) {
		return &ValidationError{Field: "dateRange", Reason: "from must be before to"}
	}
	return nil
}

func toValidationError(err error) error {
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		return &ValidationError{Field: verrs[0].Field(), Reason: verrs[0].Tag()}
	}
	return &ValidationError{Reason: err.Error()}
}
