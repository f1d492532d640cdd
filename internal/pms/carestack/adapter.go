// Package carestack integrates the CareStack practice management system:
// OAuth2 client-credentials auth, REST/JSON resources, page/pageSize
// pagination, and Idempotency-Key booking.
package carestack

import (
	"context"
	"errors"
	"time"

	"github.com/novadent/pms-adapter/internal/observability/metrics"
	"github.com/novadent/pms-adapter/internal/pms"
	"github.com/novadent/pms-adapter/internal/pms/pipeline"
	"github.com/novadent/pms-adapter/internal/pms/refcache"
	"github.com/novadent/pms-adapter/pkg/logging"
)

// Config assembles a CareStack adapter for one office.
type Config struct {
	BaseURL     string
	Credentials pms.Credentials
	Pipeline    pipeline.Settings
	CacheTTL    time.Duration
}

// Adapter implements pms.Adapter against CareStack. Each office gets its own
// instance: token manager, breakers, limiter, and cache are never shared
// across offices.
type Adapter struct {
	client  *Client
	pipe    *pipeline.Pipeline
	cache   *refcache.Cache
	metrics *metrics.AdapterMetrics
}

// New creates a CareStack adapter.
func New(cfg Config, logger *logging.Logger, m *metrics.AdapterMetrics) (*Adapter, error) {
	client, err := NewClient(cfg.BaseURL, cfg.Credentials, logger)
	if err != nil {
		return nil, err
	}
	return &Adapter{
		client:  client,
		pipe:    pipeline.New("carestack", cfg.Pipeline, logger, m),
		cache:   refcache.New(cfg.CacheTTL),
		metrics: m,
	}, nil
}

func (a *Adapter) Name() string       { return "carestack" }
func (a *Adapter) Vendor() pms.Vendor { return pms.VendorCareStack }

// BreakerState exposes circuit state for the ops surface.
func (a *Adapter) BreakerState(endpoint string) string {
	return string(a.pipe.BreakerState(endpoint))
}

func (a *Adapter) SearchPatients(ctx context.Context, query pms.PatientSearchQuery) ([]pms.Patient, error) {
	if err := pms.ValidateSearch(query); err != nil {
		return nil, err
	}
	// CareStack matches phone digits exactly; send the normalized form.
	if query.Phone != "" {
		query.Phone = pms.NormalizePhone(query.Phone)
	}
	var rows []csPatient
	err := a.pipe.DoIdempotent(ctx, "patients.search", func(ctx context.Context) error {
		var err error
		rows, err = a.client.SearchPatients(ctx, query)
		return err
	})
	if err != nil {
		if pms.IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	patients := make([]pms.Patient, 0, len(rows))
	for _, row := range rows {
		patients = append(patients, toPatient(row))
	}
	return patients, nil
}

func (a *Adapter) GetPatient(ctx context.Context, patientID string) (*pms.Patient, error) {
	var row csPatient
	err := a.pipe.DoIdempotent(ctx, "patients.get", func(ctx context.Context) error {
		var err error
		row, err = a.client.GetPatient(ctx, patientID)
		return err
	})
	if err != nil {
		if pms.IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	p := toPatient(row)
	return &p, nil
}

func (a *Adapter) CreatePatient(ctx context.Context, input pms.CreatePatientInput) (*pms.Patient, error) {
	if err := pms.ValidateCreatePatient(input); err != nil {
		return nil, err
	}
	req := createPatientRequest{
		FirstName:    input.FirstName,
		LastName:     input.LastName,
		MobileNumber: pms.NormalizePhone(input.Phone),
		Email:        input.Email,
		DateOfBirth:  input.DateOfBirth,
		Address:      fromAddress(input.Address),
	}
	var row csPatient
	err := a.pipe.Do(ctx, "patients.create", func(ctx context.Context) error {
		var err error
		row, err = a.client.CreatePatient(ctx, req)
		return err
	})
	if err != nil {
		return nil, err
	}
	p := toPatient(row)
	return &p, nil
}

func (a *Adapter) UpdatePatient(ctx context.Context, patientID string, input pms.UpdatePatientInput) (*pms.Patient, error) {
	if err := pms.ValidateUpdatePatient(input); err != nil {
		return nil, err
	}
	req := updatePatientRequest{
		FirstName:   input.FirstName,
		LastName:    input.LastName,
		Email:       input.Email,
		DateOfBirth: input.DateOfBirth,
		Address:     fromAddress(input.Address),
	}
	if input.Phone != nil {
		normalized := pms.NormalizePhone(*input.Phone)
		req.MobileNumber = &normalized
	}
	var row csPatient
	err := a.pipe.Do(ctx, "patients.update", func(ctx context.Context) error {
		var err error
		row, err = a.client.UpdatePatient(ctx, patientID, req)
		return err
	})
	if err != nil {
		return nil, err
	}
	p := toPatient(row)
	return &p, nil
}

func (a *Adapter) GetAvailableSlots(ctx context.Context, providerID string, dateRange pms.DateRange) ([]pms.Slot, error) {
	if err := pms.ValidateDateRange(dateRange); err != nil {
		return nil, err
	}
	var rows []csSlot
	err := a.pipe.DoIdempotent(ctx, "slots.list", func(ctx context.Context) error {
		var err error
		rows, err = a.client.ListSlots(ctx, providerID, dateRange.From, dateRange.To)
		return err
	})
	if err != nil {
		return nil, err
	}
	slots := make([]pms.Slot, 0, len(rows))
	for _, row := range rows {
		slots = append(slots, toSlot(row))
	}
	return slots, nil
}

func (a *Adapter) BookAppointment(ctx context.Context, input pms.BookAppointmentInput) (*pms.Appointment, error) {
	if err := pms.ValidateBookAppointment(input); err != nil {
		return nil, err
	}
	req := createAppointmentRequest{
		PatientID:   input.PatientID,
		ProviderID:  input.ProviderID,
		LocationID:  input.LocationID,
		OperatoryID: input.OperatoryID,
		StartTime:   input.StartTime,
		EndTime:     input.EndTime,
		Notes:       input.Notes,
	}
	var row csAppointment
	err := a.pipe.Do(ctx, "appointments.create", func(ctx context.Context) error {
		var err error
		row, err = a.client.CreateAppointment(ctx, req, input.IdempotencyKey)
		return err
	})
	if err != nil {
		// A conflict naming an existing appointment is an idempotency-key
		// replay. The follow-up read runs under its own endpoint, not the
		// create breaker.
		var replay *replayConflict
		if errors.As(err, &replay) {
			return a.GetAppointment(ctx, replay.appointmentID)
		}
		return nil, err
	}
	appt := toAppointment(row)
	return &appt, nil
}

func (a *Adapter) GetAppointment(ctx context.Context, appointmentID string) (*pms.Appointment, error) {
	var row csAppointment
	err := a.pipe.DoIdempotent(ctx, "appointments.get", func(ctx context.Context) error {
		var err error
		row, err = a.client.GetAppointment(ctx, appointmentID)
		return err
	})
	if err != nil {
		if pms.IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	appt := toAppointment(row)
	return &appt, nil
}

func (a *Adapter) CancelAppointment(ctx context.Context, appointmentID string) error {
	return a.pipe.Do(ctx, "appointments.cancel", func(ctx context.Context) error {
		return a.client.CancelAppointment(ctx, appointmentID)
	})
}

func (a *Adapter) ListProviders(ctx context.Context) ([]pms.Provider, error) {
	return a.cache.Providers(ctx, "providers", func(ctx context.Context) ([]pms.Provider, error) {
		a.metrics.ObserveCache("carestack", string(refcache.KindProviders), "miss")
		var rows []csProvider
		err := a.pipe.DoIdempotent(ctx, "providers.list", func(ctx context.Context) error {
			var err error
			rows, err = a.client.ListProviders(ctx)
			return err
		})
		if err != nil {
			return nil, err
		}
		providers := make([]pms.Provider, 0, len(rows))
		for _, row := range rows {
			providers = append(providers, pms.Provider{
				ID:        row.ID,
				FirstName: row.FirstName,
				LastName:  row.LastName,
				Specialty: row.Specialty,
			})
		}
		return providers, nil
	})
}

func (a *Adapter) ListLocations(ctx context.Context) ([]pms.Location, error) {
	return a.cache.Locations(ctx, "locations", func(ctx context.Context) ([]pms.Location, error) {
		a.metrics.ObserveCache("carestack", string(refcache.KindLocations), "miss")
		var rows []csLocation
		err := a.pipe.DoIdempotent(ctx, "locations.list", func(ctx context.Context) error {
			var err error
			rows, err = a.client.ListLocations(ctx)
			return err
		})
		if err != nil {
			return nil, err
		}
		locations := make([]pms.Location, 0, len(rows))
		for _, row := range rows {
			loc := pms.Location{ID: row.ID, Name: row.Name, Phone: row.Phone}
			if addr := toAddress(row.Address); addr != nil {
				loc.Address = *addr
			}
			locations = append(locations, loc)
		}
		return locations, nil
	})
}

func (a *Adapter) ListOperatories(ctx context.Context, locationID string) ([]pms.Operatory, error) {
	all, err := a.cache.Operatories(ctx, "operatories", func(ctx context.Context) ([]pms.Operatory, error) {
		a.metrics.ObserveCache("carestack", string(refcache.KindOperatories), "miss")
		var rows []csOperatory
		err := a.pipe.DoIdempotent(ctx, "operatories.list", func(ctx context.Context) error {
			var err error
			rows, err = a.client.ListOperatories(ctx)
			return err
		})
		if err != nil {
			return nil, err
		}
		operatories := make([]pms.Operatory, 0, len(rows))
		for _, row := range rows {
			operatories = append(operatories, pms.Operatory{ID: row.ID, Name: row.Name, LocationID: row.LocationID})
		}
		return operatories, nil
	})
	if err != nil {
		return nil, err
	}
	if locationID == "" {
		return all, nil
	}
	filtered := make([]pms.Operatory, 0, len(all))
	for _, op := range all {
		if op.LocationID == locationID {
			filtered = append(filtered, op)
		}
	}
	return filtered, nil
}
