// Package handlers exposes the PMS adapter over a thin JSON API for the
// call-orchestration layer. The handlers translate between wire DTOs and the
// canonical model; all vendor behavior lives behind the pms.Adapter.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/novadent/pms-adapter/internal/pms"
	"github.com/novadent/pms-adapter/pkg/logging"
)

// PMSHandler serves the /v1 PMS surface for one office's adapter.
type PMSHandler struct {
	adapter pms.Adapter
	logger  *logging.Logger
}

// NewPMSHandler creates a PMS API handler.
func NewPMSHandler(adapter pms.Adapter, logger *logging.Logger) *PMSHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &PMSHandler{adapter: adapter, logger: logger}
}

// Routes mounts the PMS API.
func (h *PMSHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/patients/search", h.SearchPatients)
	r.Post("/patients", h.CreatePatient)
	r.Get("/patients/{patientID}", h.GetPatient)
	r.Patch("/patients/{patientID}", h.UpdatePatient)
	r.Get("/slots", h.GetAvailableSlots)
	r.Post("/appointments", h.BookAppointment)
	r.Get("/appointments/{appointmentID}", h.GetAppointment)
	r.Delete("/appointments/{appointmentID}", h.CancelAppointment)
	r.Get("/providers", h.ListProviders)
	r.Get("/locations", h.ListLocations)
	r.Get("/operatories", h.ListOperatories)
	return r
}

type addressDTO struct {
	Street string `json:"street,omitempty"`
	City   string `json:"city,omitempty"`
	State  string `json:"state,omitempty"`
	Zip    string `json:"zip,omitempty"`
}

type patientDTO struct {
	ID          string      `json:"id"`
	FirstName   string      `json:"firstName"`
	LastName    string      `json:"lastName"`
	Phone       string      `json:"phone,omitempty"`
	Email       string      `json:"email,omitempty"`
	DateOfBirth string      `json:"dateOfBirth,omitempty"`
	Address     *addressDTO `json:"address,omitempty"`
}

type slotDTO struct {
	ID         string    `json:"id"`
	StartTime  time.Time `json:"startTime"`
	EndTime    time.Time `json:"endTime"`
	ProviderID string    `json:"providerId"`
	LocationID string    `json:"locationId,omitempty"`
	Available  bool      `json:"available"`
}

type appointmentDTO struct {
	ID         string    `json:"id"`
	PatientID  string    `json:"patientId"`
	ProviderID string    `json:"providerId"`
	LocationID string    `json:"locationId,omitempty"`
	StartTime  time.Time `json:"startTime"`
	EndTime    time.Time `json:"endTime"`
	Status     string    `json:"status"`
	Notes      string    `json:"notes,omitempty"`
}

type providerDTO struct {
	ID        string `json:"id"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Specialty string `json:"specialty,omitempty"`
}

type locationDTO struct {
	ID      string     `json:"id"`
	Name    string     `json:"name"`
	Phone   string     `json:"phone,omitempty"`
	Address addressDTO `json:"address"`
}

type operatoryDTO struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	LocationID string `json:"locationId"`
}

type searchRequest struct {
	Phone     string `json:"phone,omitempty"`
	Email     string `json:"email,omitempty"`
	FirstName string `json:"firstName,omitempty"`
	LastName  string `json:"lastName,omitempty"`
}

type createPatientDTO struct {
	FirstName   string      `json:"firstName"`
	LastName    string      `json:"lastName"`
	Phone       string      `json:"phone"`
	Email       string      `json:"email,omitempty"`
	DateOfBirth string      `json:"dateOfBirth,omitempty"`
	Address     *addressDTO `json:"address,omitempty"`
}

type updatePatientDTO struct {
	FirstName   *string     `json:"firstName,omitempty"`
	LastName    *string     `json:"lastName,omitempty"`
	Phone       *string     `json:"phone,omitempty"`
	Email       *string     `json:"email,omitempty"`
	DateOfBirth *string     `json:"dateOfBirth,omitempty"`
	Address     *addressDTO `json:"address,omitempty"`
}

type bookRequest struct {
	PatientID      string    `json:"patientId"`
	ProviderID     string    `json:"providerId"`
	LocationID     string    `json:"locationId"`
	OperatoryID    string    `json:"operatoryId,omitempty"`
	StartTime      time.Time `json:"startTime"`
	EndTime        time.Time `json:"endTime"`
	Notes          string    `json:"notes,omitempty"`
	IdempotencyKey string    `json:"idempotencyKey,omitempty"`
}

func (h *PMSHandler) SearchPatients(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, &pms.ValidationError{Reason: "malformed JSON body"})
		return
	}
	patients, err := h.adapter.SearchPatients(r.Context(), pms.PatientSearchQuery{
		Phone:     req.Phone,
		Email:     req.Email,
		FirstName: req.FirstName,
		LastName:  req.LastName,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	out := make([]patientDTO, 0, len(patients))
	for _, p := range patients {
		out = append(out, toPatientDTO(p))
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"patients": out})
}

func (h *PMSHandler) GetPatient(w http.ResponseWriter, r *http.Request) {
	patient, err := h.adapter.GetPatient(r.Context(), chi.URLParam(r, "patientID"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	if patient == nil {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	h.writeJSON(w, http.StatusOK, toPatientDTO(*patient))
}

func (h *PMSHandler) CreatePatient(w http.ResponseWriter, r *http.Request) {
	var req createPatientDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, &pms.ValidationError{Reason: "malformed JSON body"})
		return
	}
	input := pms.CreatePatientInput{
		FirstName:   req.FirstName,
		LastName:    req.LastName,
		Phone:       req.Phone,
		Email:       req.Email,
		DateOfBirth: req.DateOfBirth,
	}
	if req.Address != nil {
		input.Address = &pms.Address{Street: req.Address.Street, City: req.Address.City, State: req.Address.State, Zip: req.Address.Zip}
	}
	patient, err := h.adapter.CreatePatient(r.Context(), input)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, toPatientDTO(*patient))
}

func (h *PMSHandler) UpdatePatient(w http.ResponseWriter, r *http.Request) {
	var req updatePatientDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, &pms.ValidationError{Reason: "malformed JSON body"})
		return
	}
	input := pms.UpdatePatientInput{
		FirstName:   req.FirstName,
		LastName:    req.LastName,
		Phone:       req.Phone,
		Email:       req.Email,
		DateOfBirth: req.DateOfBirth,
	}
	if req.Address != nil {
		input.Address = &pms.Address{Street: req.Address.Street, City: req.Address.City, State: req.Address.State, Zip: req.Address.Zip}
	}
	patient, err := h.adapter.UpdatePatient(r.Context(), chi.URLParam(r, "patientID"), input)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, toPatientDTO(*patient))
}

func (h *PMSHandler) GetAvailableSlots(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	providerID := q.Get("providerId")
	from, errFrom := time.Parse(time.RFC3339, q.Get("from"))
	to, errTo := time.Parse(time.RFC3339, q.Get("to"))
	if providerID == "" || errFrom != nil || errTo != nil {
		h.writeError(w, &pms.ValidationError{Reason: "providerId, from, and to (RFC3339) are required"})
		return
	}
	slots, err := h.adapter.GetAvailableSlots(r.Context(), providerID, pms.DateRange{From: from, To: to})
	if err != nil {
		h.writeError(w, err)
		return
	}
	out := make([]slotDTO, 0, len(slots))
	for _, s := range slots {
		out = append(out, slotDTO{
			ID:         s.ID,
			StartTime:  s.StartTime,
			EndTime:    s.EndTime,
			ProviderID: s.ProviderID,
			LocationID: s.LocationID,
			Available:  s.Available,
		})
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"slots": out})
}

func (h *PMSHandler) BookAppointment(w http.ResponseWriter, r *http.Request) {
	var req bookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, &pms.ValidationError{Reason: "malformed JSON body"})
		return
	}
	// Callers that retry must reuse their key; one is minted here only for
	// callers that never retry at this layer.
	if req.IdempotencyKey == "" {
		req.IdempotencyKey = uuid.NewString()
	}
	appt, err := h.adapter.BookAppointment(r.Context(), pms.BookAppointmentInput{
		PatientID:      req.PatientID,
		ProviderID:     req.ProviderID,
		LocationID:     req.LocationID,
		OperatoryID:    req.OperatoryID,
		StartTime:      req.StartTime,
		EndTime:        req.EndTime,
		Notes:          req.Notes,
		IdempotencyKey: req.IdempotencyKey,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, toAppointmentDTO(*appt))
}

func (h *PMSHandler) GetAppointment(w http.ResponseWriter, r *http.Request) {
	appt, err := h.adapter.GetAppointment(r.Context(), chi.URLParam(r, "appointmentID"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	if appt == nil {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	h.writeJSON(w, http.StatusOK, toAppointmentDTO(*appt))
}

func (h *PMSHandler) CancelAppointment(w http.ResponseWriter, r *http.Request) {
	if err := h.adapter.CancelAppointment(r.Context(), chi.URLParam(r, "appointmentID")); err != nil {
		if pms.IsNotFound(err) {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *PMSHandler) ListProviders(w http.ResponseWriter, r *http.Request) {
	providers, err := h.adapter.ListProviders(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	out := make([]providerDTO, 0, len(providers))
	for _, p := range providers {
		out = append(out, providerDTO{ID: p.ID, FirstName: p.FirstName, LastName: p.LastName, Specialty: p.Specialty})
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"providers": out})
}

func (h *PMSHandler) ListLocations(w http.ResponseWriter, r *http.Request) {
	locations, err := h.adapter.ListLocations(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	out := make([]locationDTO, 0, len(locations))
	for _, l := range locations {
		out = append(out, locationDTO{
			ID:    l.ID,
			Name:  l.Name,
			Phone: l.Phone,
			Address: addressDTO{
				Street: l.Address.Street,
				City:   l.Address.City,
				State:  l.Address.State,
				Zip:    l.Address.Zip,
			},
		})
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"locations": out})
}

func (h *PMSHandler) ListOperatories(w http.ResponseWriter, r *http.Request) {
	operatories, err := h.adapter.ListOperatories(r.Context(), r.URL.Query().Get("locationId"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	out := make([]operatoryDTO, 0, len(operatories))
	for _, op := range operatories {
		out = append(out, operatoryDTO{ID: op.ID, Name: op.Name, LocationID: op.LocationID})
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"operatories": out})
}

func toPatientDTO(p pms.Patient) patientDTO {
	dto := patientDTO{
		ID:          p.ID,
		FirstName:   p.FirstName,
		LastName:    p.LastName,
		Phone:       p.Phone,
		Email:       p.Email,
		DateOfBirth: p.DateOfBirth,
	}
	if p.Address != nil {
		dto.Address = &addressDTO{Street: p.Address.Street, City: p.Address.City, State: p.Address.State, Zip: p.Address.Zip}
	}
	return dto
}

func toAppointmentDTO(a pms.Appointment) appointmentDTO {
	return appointmentDTO{
		ID:         a.ID,
		PatientID:  a.PatientID,
		ProviderID: a.ProviderID,
		LocationID: a.LocationID,
		StartTime:  a.StartTime,
		EndTime:    a.EndTime,
		Status:     string(a.Status),
		Notes:      a.Notes,
	}
}

func (h *PMSHandler) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Error("encode response", "error", err)
	}
}

// writeError maps the canonical error taxonomy onto HTTP statuses.
func (h *PMSHandler) writeError(w http.ResponseWriter, err error) {
	var (
		ve  *pms.ValidationError
		rle *pms.RateLimitError
		coe *pms.CircuitOpenError
		ae  *pms.AuthenticationError
		nfe *pms.NotFoundError
	)
	status := http.StatusBadGateway
	kind := "upstream_error"
	switch {
	case errors.As(err, &ve):
		status, kind = http.StatusUnprocessableEntity, "validation_error"
	case errors.As(err, &rle):
		status, kind = http.StatusTooManyRequests, "rate_limited"
		if rle.RetryAfter > 0 {
			secs := int(rle.RetryAfter / time.Second)
			if secs < 1 {
				secs = 1
			}
			w.Header().Set("Retry-After", strconv.Itoa(secs))
		}
	case errors.As(err, &coe):
		status, kind = http.StatusServiceUnavailable, "circuit_open"
	case errors.As(err, &ae):
		status, kind = http.StatusBadGateway, "authentication_error"
	case errors.As(err, &nfe):
		w.WriteHeader(http.StatusNotFound)
		return
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		status, kind = http.StatusGatewayTimeout, "timeout"
	}
	h.writeJSON(w, status, map[string]string{"error": kind, "message": err.Error()})
}
