// Package pms defines the canonical, vendor-neutral model for practice
// management systems and the interface every vendor adapter implements. The
// conversation layer only ever sees these shapes; schema translation happens
// inside the adapters.
package pms

import (
	"context"
	"time"
)

// Adapter is the contract all PMS integrations (CareStack, Eaglesoft, local
// sandbox) implement. Callers never branch on vendor identity; every method
// honors the caller-supplied context deadline.
type Adapter interface {
	// Name returns the adapter identifier (e.g. "carestack", "eaglesoft-sandbox").
	Name() string

	// Vendor returns which PMS this adapter talks to.
	Vendor() Vendor

	// SearchPatients finds patients by phone, email, or name.
	SearchPatients(ctx context.Context, query PatientSearchQuery) ([]Patient, error)

	// GetPatient retrieves a patient by its vendor-stable ID.
	GetPatient(ctx context.Context, patientID string) (*Patient, error)

	// CreatePatient creates a new patient record in the PMS.
	CreatePatient(ctx context.Context, input CreatePatientInput) (*Patient, error)

	// UpdatePatient applies a partial update to an existing patient.
	UpdatePatient(ctx context.Context, patientID string, input UpdatePatientInput) (*Patient, error)

	// GetAvailableSlots returns open slots for a provider within a date range.
	GetAvailableSlots(ctx context.Context, providerID string, dateRange DateRange) ([]Slot, error)

	// BookAppointment books an appointment. Input carries an idempotency key;
	// replaying the same key never creates a duplicate record.
	BookAppointment(ctx context.Context, input BookAppointmentInput) (*Appointment, error)

	// GetAppointment retrieves an appointment by ID.
	GetAppointment(ctx context.Context, appointmentID string) (*Appointment, error)

	// CancelAppointment cancels an existing appointment.
	CancelAppointment(ctx context.Context, appointmentID string) error

	// ListProviders returns the office's providers. Reference data, cacheable.
	ListProviders(ctx context.Context) ([]Provider, error)

	// ListLocations returns the office's locations. Reference data, cacheable.
	ListLocations(ctx context.Context) ([]Location, error)

	// ListOperatories returns operatories, optionally scoped to a location.
	ListOperatories(ctx context.Context, locationID string) ([]Operatory, error)
}

// Patient is the canonical patient record. ID is stable across repeated
// fetches of the same vendor record. Phone is digits-only normalized.
type Patient struct {
	ID          string
	FirstName   string
	LastName    string
	Phone       string
	Email       string
	DateOfBirth string // YYYY-MM-DD, empty if unknown
	Address     *Address
}

// Address is a decomposed postal address.
type Address struct {
	Street string
	City   string
	State  string
	Zip    string
}

// Provider is a clinician who can be booked. Reference data.
type Provider struct {
	ID        string
	FirstName string
	LastName  string
	Specialty string
}

// Location is a physical office. Reference data.
type Location struct {
	ID      string
	Name    string
	Address Address
	Phone   string
}

// Operatory is a treatment room/chair at a location. Reference data.
type Operatory struct {
	ID         string
	Name       string
	LocationID string
}

// Slot is a half-open bookable interval: StartTime <= t < EndTime. Slots for
// one provider never overlap within a single fetch result.
type Slot struct {
	ID         string
	StartTime  time.Time
	EndTime    time.Time
	ProviderID string
	LocationID string
	Available  bool
}

// AppointmentStatus enumerates the canonical appointment lifecycle.
type AppointmentStatus string

const (
	AppointmentScheduled AppointmentStatus = "scheduled"
	AppointmentConfirmed AppointmentStatus = "confirmed"
	AppointmentCancelled AppointmentStatus = "cancelled"
	AppointmentCompleted AppointmentStatus = "completed"
)

// Appointment is a canonical booked appointment.
type Appointment struct {
	ID         string
	PatientID  string
	ProviderID string
	LocationID string
	StartTime  time.Time
	EndTime    time.Time
	Status     AppointmentStatus
	Notes      string
}

// DateRange is a half-open [From, To) window.
type DateRange struct {
	From time.Time
	To   time.Time
}

// PatientSearchQuery holds search criteria; at least one field must be set.
// Phone matching is performed on the digits-only normalized form, so
// "+1 (555) 123-4567" and "5551234567" find the same patient.
type PatientSearchQuery struct {
	Phone     string
	Email     string
	FirstName string
	LastName  string
}

// IsEmpty reports whether no criteria were supplied.
func (q PatientSearchQuery) IsEmpty() bool {
	return q.Phone == "" && q.Email == "" && q.FirstName == "" && q.LastName == ""
}

// CreatePatientInput is the payload for CreatePatient.
type CreatePatientInput struct {
	FirstName   string `validate:"required"`
	LastName    string `validate:"required"`
	Phone       string `validate:"required"`
	Email       string `validate:"omitempty,email"`
	DateOfBirth string `validate:"omitempty,datetime=2006-01-02"`
	Address     *Address
}

// UpdatePatientInput is a partial patient update; nil fields are unchanged.
type UpdatePatientInput struct {
	FirstName   *string `validate:"omitempty,min=1"`
	LastName    *string `validate:"omitempty,min=1"`
	Phone       *string `validate:"omitempty,min=1"`
	Email       *string `validate:"omitempty,email"`
	DateOfBirth *string `validate:"omitempty,datetime=2006-01-02"`
	Address     *Address
}

// BookAppointmentInput is the payload for BookAppointment. IdempotencyKey is
// generated once per logical booking and reused verbatim on retry.
type BookAppointmentInput struct {
	PatientID      string    `validate:"required"`
	ProviderID     string    `validate:"required"`
	LocationID     string    `validate:"required"`
	StartTime      time.Time `validate:"required"`
	EndTime        time.Time `validate:"required,gtfield=StartTime"`
	OperatoryID    string
	Notes          string
	IdempotencyKey string `validate:"required"`
}
