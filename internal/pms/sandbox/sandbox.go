package sandbox

import (
	"context"
	"time"

	"github.com/novadent/pms-adapter/internal/observability/metrics"
	"github.com/novadent/pms-adapter/internal/pms"
	"github.com/novadent/pms-adapter/internal/pms/pipeline"
	"github.com/novadent/pms-adapter/internal/pms/refcache"
	"github.com/novadent/pms-adapter/pkg/logging"
)

// Config assembles a sandbox adapter for one office.
type Config struct {
	// Vendor is the PMS identity this sandbox stands in for; Local offices
	// use pms.VendorLocal.
	Vendor pms.Vendor
	Engine EngineConfig

	Pipeline pipeline.Settings
	CacheTTL time.Duration
}

// Sandbox is a full pms.Adapter backed by the in-memory engine. Calls route
// through the same breaker/limiter/cache pipeline as live adapters, so
// resilience behavior can be exercised without vendor credentials.
type Sandbox struct {
	name    string
	vendor  pms.Vendor
	engine  *Engine
	pipe    *pipeline.Pipeline
	cache   *refcache.Cache
	metrics *metrics.AdapterMetrics
}

// New creates a sandbox adapter. Offices configured with a real vendor but no
// live credentials get a name like "carestack-sandbox".
func New(cfg Config, logger *logging.Logger, m *metrics.AdapterMetrics) *Sandbox {
	name := string(cfg.Vendor)
	if cfg.Vendor != pms.VendorLocal {
		name += "-sandbox"
	}
	return &Sandbox{
		name:    name,
		vendor:  cfg.Vendor,
		engine:  NewEngine(cfg.Engine),
		pipe:    pipeline.New(name, cfg.Pipeline, logger, m),
		cache:   refcache.New(cfg.CacheTTL),
		metrics: m,
	}
}

func (s *Sandbox) Name() string       { return s.name }
func (s *Sandbox) Vendor() pms.Vendor { return s.vendor }

// BreakerState exposes circuit state for the ops surface and tests.
func (s *Sandbox) BreakerState(endpoint string) string {
	return string(s.pipe.BreakerState(endpoint))
}

func (s *Sandbox) SearchPatients(ctx context.Context, query pms.PatientSearchQuery) ([]pms.Patient, error) {
	if err := pms.ValidateSearch(query); err != nil {
		return nil, err
	}
	var out []pms.Patient
	err := s.pipe.DoIdempotent(ctx, "patients.search", func(ctx context.Context) error {
		var err error
		out, err = s.engine.SearchPatients(ctx, query)
		return err
	})
	return out, err
}

func (s *Sandbox) GetPatient(ctx context.Context, patientID string) (*pms.Patient, error) {
	var out *pms.Patient
	err := s.pipe.DoIdempotent(ctx, "patients.get", func(ctx context.Context) error {
		var err error
		out, err = s.engine.GetPatient(ctx, patientID)
		return err
	})
	if pms.IsNotFound(err) {
		return nil, nil
	}
	return out, err
}

func (s *Sandbox) CreatePatient(ctx context.Context, input pms.CreatePatientInput) (*pms.Patient, error) {
	if err := pms.ValidateCreatePatient(input); err != nil {
		return nil, err
	}
	var out *pms.Patient
	err := s.pipe.Do(ctx, "patients.create", func(ctx context.Context) error {
		var err error
		out, err = s.engine.CreatePatient(ctx, input)
		return err
	})
	return out, err
}

func (s *Sandbox) UpdatePatient(ctx context.Context, patientID string, input pms.UpdatePatientInput) (*pms.Patient, error) {
	if err := pms.ValidateUpdatePatient(input); err != nil {
		return nil, err
	}
	var out *pms.Patient
	err := s.pipe.Do(ctx, "patients.update", func(ctx context.Context) error {
		var err error
		out, err = s.engine.UpdatePatient(ctx, patientID, input)
		return err
	})
	return out, err
}

func (s *Sandbox) GetAvailableSlots(ctx context.Context, providerID string, dateRange pms.DateRange) ([]pms.Slot, error) {
	if err := pms.ValidateDateRange(dateRange); err != nil {
		return nil, err
	}
	var out []pms.Slot
	err := s.pipe.DoIdempotent(ctx, "slots.list", func(ctx context.Context) error {
		var err error
		out, err = s.engine.GetAvailableSlots(ctx, providerID, dateRange)
		return err
	})
	return out, err
}

func (s *Sandbox) BookAppointment(ctx context.Context, input pms.BookAppointmentInput) (*pms.Appointment, error) {
	if err := pms.ValidateBookAppointment(input); err != nil {
		return nil, err
	}
	var out *pms.Appointment
	err := s.pipe.Do(ctx, "appointments.create", func(ctx context.Context) error {
		var err error
		out, err = s.engine.BookAppointment(ctx, input)
		return err
	})
	return out, err
}

func (s *Sandbox) GetAppointment(ctx context.Context, appointmentID string) (*pms.Appointment, error) {
	var out *pms.Appointment
	err := s.pipe.DoIdempotent(ctx, "appointments.get", func(ctx context.Context) error {
		var err error
		out, err = s.engine.GetAppointment(ctx, appointmentID)
		return err
	})
	if pms.IsNotFound(err) {
		return nil, nil
	}
	return out, err
}

func (s *Sandbox) CancelAppointment(ctx context.Context, appointmentID string) error {
	return s.pipe.Do(ctx, "appointments.cancel", func(ctx context.Context) error {
		return s.engine.CancelAppointment(ctx, appointmentID)
	})
}

func (s *Sandbox) ListProviders(ctx context.Context) ([]pms.Provider, error) {
	return s.cache.Providers(ctx, "providers", func(ctx context.Context) ([]pms.Provider, error) {
		s.metrics.ObserveCache(s.name, string(refcache.KindProviders), "miss")
		var out []pms.Provider
		err := s.pipe.DoIdempotent(ctx, "providers.list", func(ctx context.Context) error {
			var err error
			out, err = s.engine.ListProviders(ctx)
			return err
		})
		return out, err
	})
}

func (s *Sandbox) ListLocations(ctx context.Context) ([]pms.Location, error) {
	return s.cache.Locations(ctx, "locations", func(ctx context.Context) ([]pms.Location, error) {
		s.metrics.ObserveCache(s.name, string(refcache.KindLocations), "miss")
		var out []pms.Location
		err := s.pipe.DoIdempotent(ctx, "locations.list", func(ctx context.Context) error {
			var err error
			out, err = s.engine.ListLocations(ctx)
			return err
		})
		return out, err
	})
}

func (s *Sandbox) ListOperatories(ctx context.Context, locationID string) ([]pms.Operatory, error) {
	return s.cache.Operatories(ctx, "operatories:"+locationID, func(ctx context.Context) ([]pms.Operatory, error) {
		s.metrics.ObserveCache(s.name, string(refcache.KindOperatories), "miss")
		var out []pms.Operatory
		err := s.pipe.DoIdempotent(ctx, "operatories.list", func(ctx context.Context) error {
			var err error
			out, err = s.engine.ListOperatories(ctx, locationID)
			return err
		})
		return out, err
	})
}
