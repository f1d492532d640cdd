package carestack

import (
	"time"

	"github.com/novadent/pms-adapter/internal/pms"
)

// Wire shapes for the CareStack REST API. Fields are camelCase JSON; these
// types never leave this package.

type tokenResponse struct {
	AccessToken string `json:"accessToken"`
	TokenType   string `json:"tokenType"`
	ExpiresIn   int    `json:"expiresIn"` // seconds
}

type apiError struct {
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

type csAddress struct {
	Street  string `json:"street,omitempty"`
	City    string `json:"city,omitempty"`
	State   string `json:"state,omitempty"`
	ZipCode string `json:"zipCode,omitempty"`
}

type csPatient struct {
	ID           string     `json:"id"`
	FirstName    string     `json:"firstName"`
	LastName     string     `json:"lastName"`
	MobileNumber string     `json:"mobileNumber,omitempty"`
	Email        string     `json:"email,omitempty"`
	DateOfBirth  string     `json:"dateOfBirth,omitempty"` // YYYY-MM-DD
	Address      *csAddress `json:"address,omitempty"`
}

type patientSearchRequest struct {
	Phone     string `json:"phone,omitempty"`
	Email     string `json:"email,omitempty"`
	FirstName string `json:"firstName,omitempty"`
	LastName  string `json:"lastName,omitempty"`
	Page      int    `json:"page"`
	PageSize  int    `json:"pageSize"`
}

type patientPage struct {
	Items      []csPatient `json:"items"`
	Page       int         `json:"page"`
	PageSize   int         `json:"pageSize"`
	TotalCount int         `json:"totalCount"`
}

type createPatientRequest struct {
	FirstName    string     `json:"firstName"`
	LastName     string     `json:"lastName"`
	MobileNumber string     `json:"mobileNumber"`
	Email        string     `json:"email,omitempty"`
	DateOfBirth  string     `json:"dateOfBirth,omitempty"`
	Address      *csAddress `json:"address,omitempty"`
}

type updatePatientRequest struct {
	FirstName    *string    `json:"firstName,omitempty"`
	LastName     *string    `json:"lastName,omitempty"`
	MobileNumber *string    `json:"mobileNumber,omitempty"`
	Email        *string    `json:"email,omitempty"`
	DateOfBirth  *string    `json:"dateOfBirth,omitempty"`
	Address      *csAddress `json:"address,omitempty"`
}

type csSlot struct {
	ID         string    `json:"id"`
	StartTime  time.Time `json:"startTime"`
	EndTime    time.Time `json:"endTime"`
	ProviderID string    `json:"providerId"`
	LocationID string    `json:"locationId"`
	Status     string    `json:"status"` // "available" | "booked"
}

type slotPage struct {
	Items      []csSlot `json:"items"`
	Page       int      `json:"page"`
	PageSize   int      `json:"pageSize"`
	TotalCount int      `json:"totalCount"`
}

type createAppointmentRequest struct {
	PatientID   string    `json:"patientId"`
	ProviderID  string    `json:"providerId"`
	LocationID  string    `json:"locationId"`
	OperatoryID string    `json:"operatoryId,omitempty"`
	StartTime   time.Time `json:"startTime"`
	EndTime     time.Time `json:"endTime"`
	Notes       string    `json:"notes,omitempty"`
}

type csAppointment struct {
	ID          string    `json:"id"`
	PatientID   string    `json:"patientId"`
	ProviderID  string    `json:"providerId"`
	LocationID  string    `json:"locationId"`
	OperatoryID string    `json:"operatoryId,omitempty"`
	StartTime   time.Time `json:"startTime"`
	EndTime     time.Time `json:"endTime"`
	Status      string    `json:"status"`
	Notes       string    `json:"notes,omitempty"`
}

// bookingConflict is the 409 body returned when an Idempotency-Key replays a
// booking that already exists.
type bookingConflict struct {
	Message       string `json:"message"`
	AppointmentID string `json:"appointmentId"`
}

type csProvider struct {
	ID        string `json:"id"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Specialty string `json:"specialty,omitempty"`
}

type providerPage struct {
	Items      []csProvider `json:"items"`
	Page       int          `json:"page"`
	PageSize   int          `json:"pageSize"`
	TotalCount int          `json:"totalCount"`
}

type csLocation struct {
	ID      string     `json:"id"`
	Name    string     `json:"name"`
	Phone   string     `json:"phone,omitempty"`
	Address *csAddress `json:"address,omitempty"`
}

type locationPage struct {
	Items      []csLocation `json:"items"`
	Page       int          `json:"page"`
	PageSize   int          `json:"pageSize"`
	TotalCount int          `json:"totalCount"`
}

type csOperatory struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	LocationID string `json:"locationId"`
}

type operatoryPage struct {
	Items      []csOperatory `json:"items"`
	Page       int           `json:"page"`
	PageSize   int           `json:"pageSize"`
	TotalCount int           `json:"totalCount"`
}

func toAddress(a *csAddress) *pms.Address {
	if a == nil {
		return nil
	}
	return &pms.Address{Street: a.Street, City: a.City, State: a.State, Zip: a.ZipCode}
}

func fromAddress(a *pms.Address) *csAddress {
	if a == nil {
		return nil
	}
	return &csAddress{Street: a.Street, City: a.City, State: a.State, ZipCode: a.Zip}
}

func toPatient(p csPatient) pms.Patient {
	return pms.Patient{
		ID:          p.ID,
		FirstName:   p.FirstName,
		LastName:    p.LastName,
		Phone:       pms.NormalizePhone(p.MobileNumber),
		Email:       p.Email,
		DateOfBirth: p.DateOfBirth,
		Address:     toAddress(p.Address),
	}
}

func toSlot(s csSlot) pms.Slot {
	return pms.Slot{
		ID:         s.ID,
		StartTime:  s.StartTime,
		EndTime:    s.EndTime,
		ProviderID: s.ProviderID,
		LocationID: s.LocationID,
		Available:  s.Status == "available",
	}
}

func toAppointment(a csAppointment) pms.Appointment {
	return pms.Appointment{
		ID:         a.ID,
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
	case "confirmed":
		return pms.AppointmentConfirmed
	case "cancelled", "canceled":
		return pms.AppointmentCancelled
	case "completed":
		return pms.AppointmentCompleted
	default:
		return pms.AppointmentScheduled
	}
}
