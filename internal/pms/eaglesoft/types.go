package eaglesoft

import (
	"time"

	"github.com/novadent/pms-adapter/internal/pms"
)

// Wire shapes for the Eaglesoft API. Eaglesoft serializes PascalCase JSON
// and identifies patients by a single full-name field in some responses;
// mapping back to the canonical model splits names and normalizes phones.

type sessionRequest struct {
	APIKey       string `json:"ApiKey"`
	PracticeCode string `json:"PracticeCode"`
}

type sessionResponse struct {
	SessionID        string `json:"SessionId"`
	ExpiresInSeconds int    `json:"ExpiresInSeconds"`
}

type apiFault struct {
	Message string `json:"Message"`
	Field   string `json:"Field,omitempty"`
}

type esPatient struct {
	PatientID   string `json:"PatientId"`
	FirstName   string `json:"FirstName"`
	LastName    string `json:"LastName"`
	HomePhone   string `json:"HomePhone,omitempty"`
	Email       string `json:"Email,omitempty"`
	BirthDate   string `json:"BirthDate,omitempty"` // YYYY-MM-DD
	AddressLine string `json:"AddressLine,omitempty"`
	City        string `json:"City,omitempty"`
	State       string `json:"State,omitempty"`
	ZipCode     string `json:"ZipCode,omitempty"`
}

type patientSearchRequest struct {
	Phone     string `json:"Phone,omitempty"`
	Email     string `json:"Email,omitempty"`
	FirstName string `json:"FirstName,omitempty"`
	LastName  string `json:"LastName,omitempty"`
	Page      string `json:"Page,omitempty"` // continuation token
}

type patientPage struct {
	Patients []esPatient `json:"Patients"`
	NextPage string      `json:"NextPage,omitempty"`
}

type createPatientRequest struct {
	FirstName   string `json:"FirstName"`
	LastName    string `json:"LastName"`
	HomePhone   string `json:"HomePhone"`
	Email       string `json:"Email,omitempty"`
	BirthDate   string `json:"BirthDate,omitempty"`
	AddressLine string `json:"AddressLine,omitempty"`
	City        string `json:"City,omitempty"`
	State       string `json:"State,omitempty"`
	ZipCode     string `json:"ZipCode,omitempty"`
}

type updatePatientRequest struct {
	FirstName   *string `json:"FirstName,omitempty"`
	LastName    *string `json:"LastName,omitempty"`
	HomePhone   *string `json:"HomePhone,omitempty"`
	Email       *string `json:"Email,omitempty"`
	BirthDate   *string `json:"BirthDate,omitempty"`
	AddressLine *string `json:"AddressLine,omitempty"`
	City        *string `json:"City,omitempty"`
	State       *string `json:"State,omitempty"`
	ZipCode     *string `json:"ZipCode,omitempty"`
}

type esSlot struct {
	SlotID     string    `json:"SlotId"`
	StartTime  time.Time `json:"StartTime"`
	EndTime    time.Time `json:"EndTime"`
	ProviderID string    `json:"ProviderId"`
	LocationID string    `json:"LocationId"`
	IsOpen     bool      `json:"IsOpen"`
}

type slotPage struct {
	Slots    []esSlot `json:"Slots"`
	NextPage string   `json:"NextPage,omitempty"`
}

// createAppointmentRequest carries the idempotency key as a RequestId body
// field; Eaglesoft replays the original response for a repeated RequestId.
type createAppointmentRequest struct {
	RequestID   string    `json:"RequestId"`
	PatientID   string    `json:"PatientId"`
	ProviderID  string    `json:"ProviderId"`
	LocationID  string    `json:"LocationId"`
	OperatoryID string    `json:"OperatoryId,omitempty"`
	StartTime   time.Time `json:"StartTime"`
	EndTime     time.Time `json:"EndTime"`
	Notes       string    `json:"Notes,omitempty"`
}

type esAppointment struct {
	AppointmentID string    `json:"AppointmentId"`
	PatientID     string    `json:"PatientId"`
	ProviderID    string    `json:"ProviderId"`
	LocationID    string    `json:"LocationId"`
	OperatoryID   string    `json:"OperatoryId,omitempty"`
	StartTime     time.Time `json:"StartTime"`
	EndTime       time.Time `json:"EndTime"`
	Status        string    `json:"Status"`
	Notes         string    `json:"Notes,omitempty"`
}

type bookingConflict struct {
	Message       string `json:"Message"`
	AppointmentID string `json:"AppointmentId"`
}

type esProvider struct {
	ProviderID string `json:"ProviderId"`
	FullName   string `json:"FullName"`
	Specialty  string `json:"Specialty,omitempty"`
}

type providerPage struct {
	Providers []esProvider `json:"Providers"`
	NextPage  string       `json:"NextPage,omitempty"`
}

type esLocation struct {
	LocationID  string `json:"LocationId"`
	Name        string `json:"Name"`
	Phone       string `json:"Phone,omitempty"`
	AddressLine string `json:"AddressLine,omitempty"`
	City        string `json:"City,omitempty"`
	State       string `json:"State,omitempty"`
	ZipCode     string `json:"ZipCode,omitempty"`
}

type locationPage struct {
	Locations []esLocation `json:"Locations"`
	NextPage  string       `json:"NextPage,omitempty"`
}

type esOperatory struct {
	OperatoryID string `json:"OperatoryId"`
	Name        string `json:"Name"`
	LocationID  string `json:"LocationId"`
}

type operatoryPage struct {
	Operatories []esOperatory `json:"Operatories"`
	NextPage    string        `json:"NextPage,omitempty"`
}

func toPatient(p esPatient) pms.Patient {
	out := pms.Patient{
		ID:          p.PatientID,
		FirstName:   p.FirstName,
		LastName:    p.LastName,
		Phone:       pms.NormalizePhone(p.HomePhone),
		Email:       p.Email,
		DateOfBirth: p.BirthDate,
	}
	if p.AddressLine != "" || p.City != "" || p.State != "" || p.ZipCode != "" {
		out.Address = &pms.Address{Street: p.AddressLine, City: p.City, State: p.State, Zip: p.ZipCode}
	}
	return out
}

func toSlot(s esSlot) pms.Slot {
	return pms.Slot{
		ID:         s.SlotID,
		StartTime:  s.StartTime,
		EndTime:    s.EndTime,
		ProviderID: s.ProviderID,
		LocationID: s.LocationID,
		Available:  s.IsOpen,
	}
}

func toAppointment(a esAppointment) pms.Appointment {
	return pms.Appointment{
		ID:         a.AppointmentID,
		PatientID:  a.PatientID,
		ProviderID: a.ProviderID,
		LocationID: a.LocationID,
		StartTime:  a.StartTime,
		EndTime:    a.EndTime,
		Status:     toStatus(a.Status),
		Notes:      a.Notes,
	}
}

func toStatus(s string) pms.AppointmentStatus {
	switch s {
	case "Confirmed":
		return pms.AppointmentConfirmed
	case "Cancelled", "Canceled":
		return pms.AppointmentCancelled
	case "Completed":
		return pms.AppointmentCompleted
	default:
		return pms.AppointmentScheduled
	}
}

func toProvider(p esProvider) pms.Provider {
	first, last := pms.SplitName(p.FullName)
	return pms.Provider{ID: p.ProviderID, FirstName: first, LastName: last, Specialty: p.Specialty}
}
