// Package eaglesoft integrates the Eaglesoft practice management system:
// session-header auth, PascalCase JSON, NextPage continuation pagination,
// and RequestId-based booking idempotency.
package eaglesoft

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

// Config assembles an Eaglesoft adapter for one office.
type Config struct {
	BaseURL     string
	Credentials pms.Credentials
	Pipeline    pipeline.Settings
	CacheTTL    time.Duration
}

// Adapter implements pms.Adapter against Eaglesoft. One instance per office;
// session, breakers, limiter, and cache are not shared.
type Adapter struct {
	client  *Client
	pipe    *pipeline.Pipeline
	cache   *refcache.Cache
	metrics *metrics.AdapterMetrics
}

// New creates an Eaglesoft adapter.
func New(cfg Config, logger *logging.Logger, m *metrics.AdapterMetrics) (*Adapter, error) {
	client, err := NewClient(cfg.BaseURL, cfg.Credentials, logger)
	if err != nil {
		return nil, err
	}
	return &Adapter{
		client:  client,
		pipe:    pipeline.New("eaglesoft", cfg.Pipeline, logger, m),
		cache:   refcache.New(cfg.CacheTTL),
		metrics: m,
	}, nil
}

func (a *Adapter) Name() string       { return "eaglesoft" }
func (a *Adapter) Vendor() pms.Vendor { return pms.VendorEaglesoft }

// BreakerState exposes circuit state for the ops surface.
func (a *Adapter) BreakerState(endpoint string) string {
	return string(a.pipe.BreakerState(endpoint))
}

func (a *Adapter) SearchPatients(ctx context.Context, query pms.PatientSearchQuery) ([]pms.Patient, error) {
	if err := pms.ValidateSearch(query); err != nil {
		return nil, err
	}
	if query.Phone != "" {
		query.Phone = pms.NormalizePhone(query.Phone)
	}
	var rows []esPatient
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
	var row esPatient
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
		FirstName: input.FirstName,
		LastName:  input.LastName,
		HomePhone: pms.NormalizePhone(input.Phone),
		Email:     input.Email,
		BirthDate: input.DateOfBirth,
	}
	if input.Address != nil {
		req.AddressLine = input.Address.Street
		req.City = input.Address.City
		req.State = input.Address.State
		req.ZipCode = input.Address.Zip
	}
	var row esPatient
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
		FirstName: input.FirstName,
		LastName:  input.LastName,
		Email:     input.Email,
		BirthDate: input.DateOfBirth,
	}
	if input.Phone != nil {
		normalized := pms.NormalizePhone(*input.Phone)
		req.HomePhone = &normalized
	}
	if input.Address != nil {
		req.AddressLine = &input.Address.Street
		req.City = &input.Address.City
		req.State = &input.Address.State
		req.ZipCode = &input.Address.Zip
	}
	var row esPatient
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
	var rows []esSlot
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
		RequestID:   input.IdempotencyKey,
		PatientID:   input.PatientID,
		ProviderID:  input.ProviderID,
		LocationID:  input.LocationID,
		OperatoryID: input.OperatoryID,
		StartTime:   input.StartTime,
		EndTime:     input.EndTime,
		Notes:       input.Notes,
	}
	var row esAppointment
	err := a.pipe.Do(ctx, "appointments.create", func(ctx context.Context) error {
		var err error
		row, err = a.client.CreateAppointment(ctx, req)
		return err
	})
	if err != nil {
		// A conflict naming an existing appointment is a RequestId replay.
		// The follow-up read runs under its own endpoint, not the create
		// breaker.
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
	var row esAppointment
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
		a.metrics.ObserveCache("eaglesoft", string(refcache.KindProviders), "miss")
		var rows []esProvider
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
			providers = append(providers, toProvider(row))
		}
		return providers, nil
	})
}

func (a *Adapter) ListLocations(ctx context.Context) ([]pms.Location, error) {
	return a.cache.Locations(ctx, "locations", func(ctx context.Context) ([]pms.Location, error) {
		a.metrics.ObserveCache("eaglesoft", string(refcache.KindLocations), "miss")
		var rows []esLocation
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
			locations = append(locations, pms.Location{
				ID:    row.LocationID,
				Name:  row.Name,
				Phone: row.Phone,
				Address: pms.Address{
					Street: row.AddressLine,
					City:   row.City,
					State:  row.State,
					Zip:    row.ZipCode,
				},
			})
		}
		return locations, nil
	})
}

func (a *Adapter) ListOperatories(ctx context.Context, locationID string) ([]pms.Operatory, error) {
	all, err := a.cache.Operatories(ctx, "operatories", func(ctx context.Context) ([]pms.Operatory, error) {
		a.metrics.ObserveCache("eaglesoft", string(refcache.KindOperatories), "miss")
		var rows []esOperatory
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
			operatories = append(operatories, pms.Operatory{ID: row.OperatoryID, Name: row.Name, LocationID: row.LocationID})
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
