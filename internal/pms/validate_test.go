package pms

import (
	"errors"
	"testing"
	"time"
)

func TestValidateCreatePatient(t *testing.T) {
	valid := CreatePatientInput{FirstName: "John", LastName: "Smith", Phone: "5551234567"}
	if err := ValidateCreatePatient(valid); err != nil {
		t.Fatalf("valid input rejected: %v", err)
	}

	tests := []struct {
		name  string
		input CreatePatientInput
	}{
		{"missing phone", CreatePatientInput{FirstName: "John", LastName: "Smith"}},
		{"missing last name", CreatePatientInput{FirstName: "John", Phone: "5551234567"}},
		{"bad email", CreatePatientInput{FirstName: "John", LastName: "Smith", Phone: "5551234567", Email: "not-an-email"}},
		{"bad birth date", CreatePatientInput{FirstName: "John", LastName: "Smith", Phone: "5551234567", DateOfBirth: "04/12/1985"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateCreatePatient(tt.input)
			var ve *ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("err = %v, want ValidationError", err)
			}
		})
	}
}

func TestValidateUpdatePatient(t *testing.T) {
	str := func(s string) *string { return &s }

	if err := ValidateUpdatePatient(UpdatePatientInput{}); err != nil {
		t.Fatalf("empty update rejected: %v", err)
	}
	if err := ValidateUpdatePatient(UpdatePatientInput{Email: str("jane@example.com"), DateOfBirth: str("1985-04-12")}); err != nil {
		t.Fatalf("valid update rejected: %v", err)
	}

	tests := []struct {
		name  string
		input UpdatePatientInput
	}{
		{"bad email", UpdatePatientInput{Email: str("not-an-email")}},
		{"bad birth date", UpdatePatientInput{DateOfBirth: str("04/12/1985")}},
		{"blank last name", UpdatePatientInput{LastName: str("")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateUpdatePatient(tt.input)
			var ve *ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("err = %v, want ValidationError", err)
			}
		})
	}
}

func TestValidateBookAppointment(t *testing.T) {
	start := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	valid := BookAppointmentInput{
		PatientID:      "pat-1",
		ProviderID:     "prov-1",
		LocationID:     "loc-1",
		StartTime:      start,
		EndTime:        start.Add(time.Hour),
		IdempotencyKey: "idem-1",
	}
	if err := ValidateBookAppointment(valid); err != nil {
		t.Fatalf("valid input rejected: %v", err)
	}

	inverted := valid
	inverted.EndTime = start.Add(-time.Hour)
	var ve *ValidationError
	if err := ValidateBookAppointment(inverted); !errors.As(err, &ve) {
		t.Fatalf("inverted interval: err = %v, want ValidationError", err)
	}

	noKey := valid
	noKey.IdempotencyKey = ""
	if err := ValidateBookAppointment(noKey); !errors.As(err, &ve) {
		t.Fatalf("missing idempotency key: err = %v, want ValidationError", err)
	}
}

func TestValidateSearch(t *testing.T) {
	if err := ValidateSearch(PatientSearchQuery{Phone: "5551234567"}); err != nil {
		t.Fatalf("search by phone rejected: %v", err)
	}
	var ve *ValidationError
	if err := ValidateSearch(PatientSearchQuery{}); !errors.As(err, &ve) {
		t.Fatalf("empty search: err = %v, want ValidationError", err)
	}
}

func TestValidateDateRange(t *testing.T) {
	from := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	if err := ValidateDateRange(DateRange{From: from, To: from.AddDate(0, 0, 1)}); err != nil {
		t.Fatalf("valid range rejected: %v", err)
	}
	var ve *ValidationError
	if err := ValidateDateRange(DateRange{From: from, To: from}); !errors.As(err, &ve) {
		t.Fatalf("zero-width range: err = %v, want ValidationError", err)
	}
	if err := ValidateDateRange(DateRange{}); !errors.As(err, &ve) {
		t.Fatalf("zero range: err = %v, want ValidationError", err)
	}
}

func TestErrorTaxonomyHelpers(t *testing.T) {
	upstream := &UpstreamError{Vendor: "carestack", Endpoint: "patients.get", Status: 503, Cause: errors.New("boom")}
	if !IsUpstream(upstream) || !IsRetryable(upstream) {
		t.Fatal("upstream errors are retryable")
	}
	notFound := &NotFoundError{Entity: "patient", ID: "pat-1"}
	if !IsNotFound(notFound) || IsRetryable(notFound) {
		t.Fatal("not-found is terminal, not retryable")
	}
	for _, err := range []error{
		&ValidationError{Reason: "bad"},
		&AuthenticationError{Vendor: "eaglesoft", Cause: errors.New("denied")},
		&RateLimitError{Vendor: "carestack", RetryAfter: time.Second},
		&CircuitOpenError{Vendor: "carestack", Endpoint: "slots.list"},
	} {
		if IsRetryable(err) {
			t.Fatalf("%T should not be retryable", err)
		}
	}
}
