// Package sandbox simulates a practice management system for offices without
// live credentials. The engine keeps an in-memory store scoped to one adapter
// instance (constructor-injected, never package-level), generates
// deterministic IDs from a seed, and can inject latency and upstream faults
// for resilience testing.
package sandbox

import (
	"context"
	"fmt"
	"hash/fnv"
	"math/rand"
	"sync"
	"time"

	"github.com/novadent/pms-adapter/internal/pms"
)

const (
	businessOpenHour  = 9
	businessCloseHour = 17
	slotDuration      = time.Hour
)

// EngineConfig tunes one sandbox engine instance.
type EngineConfig struct {
	// Seed drives ID generation and the slot availability pattern. The same
	// seed reproduces the same pattern.
	Seed int64

	// BaseLatency and LatencyJitter shape the artificial delay added to each
	// call: base plus a uniform [0, jitter) component.
	BaseLatency   time.Duration
	LatencyJitter time.Duration

	// FailureRate in [0,1] is the probability a call fails with a simulated
	// upstream fault.
	FailureRate float64

	// Now is the time source; nil means time.Now.
	Now func() time.Time
}

// Engine implements every canonical operation against an in-memory store.
type Engine struct {
	cfg EngineConfig
	now func() time.Time

	mu           sync.Mutex
	rng          *rand.Rand
	patients     map[string]pms.Patient
	appointments map[string]pms.Appointment
	byIdemKey    map[string]string // idempotency key -> appointment ID
	booked       map[string]string // slot ID -> appointment ID
	providers    []pms.Provider
	locations    []pms.Location
	operatories  []pms.Operatory
	patientSeq   int
	apptSeq      int
}

// NewEngine creates an engine with seeded reference data.
func NewEngine(cfg EngineConfig) *Engine {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	e := &Engine{
		cfg:          cfg,
		now:          now,
		rng:          rand.New(rand.NewSource(cfg.Seed)),
		patients:     make(map[string]pms.Patient),
		appointments: make(map[string]pms.Appointment),
		byIdemKey:    make(map[string]string),
		booked:       make(map[string]string),
	}
	e.locations = []pms.Location{
		{ID: "loc-0001", Name: "Main Office", Phone: "5550100000",
			Address: pms.Address{Street: "100 Main St", City: "Springfield", State: "OH", Zip: "45501"}},
	}
	e.providers = []pms.Provider{
		{ID: "prov-0001", FirstName: "Alice", LastName: "Nguyen", Specialty: "General Dentistry"},
		{ID: "prov-0002", FirstName: "Marcus", LastName: "Webb", Specialty: "Orthodontics"},
	}
	e.operatories = []pms.Operatory{
		{ID: "op-0001", Name: "Operatory 1", LocationID: "loc-0001"},
		{ID: "op-0002", Name: "Operatory 2", LocationID: "loc-0001"},
	}
	return e
}

// simulate applies latency and failure injection for one call.
func (e *Engine) simulate(ctx context.Context, endpoint string) error {
	delay := e.cfg.BaseLatency
	if e.cfg.LatencyJitter > 0 {
		e.mu.Lock()
		delay += time.Duration(e.rng.Int63n(int64(e.cfg.LatencyJitter)))
		e.mu.Unlock()
	}
	if delay > 0 {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if e.cfg.FailureRate > 0 {
		e.mu.Lock()
		roll := e.rng.Float64()
		e.mu.Unlock()
		if roll < e.cfg.FailureRate {
			return &pms.UpstreamError{
				Vendor:   "sandbox",
				Endpoint: endpoint,
				Status:   503,
				Cause:    fmt.Errorf("injected fault"),
			}
		}
	}
	return nil
}

func (e *Engine) SearchPatients(ctx context.Context, query pms.PatientSearchQuery) ([]pms.Patient, error) {
	if err := e.simulate(ctx, "patients.search"); err != nil {
		return nil, err
	}
	candidates := pms.PhoneCandidates(query.Phone)

	e.mu.Lock()
	defer e.mu.Unlock()
	var out []pms.Patient
	for _, p := range e.patients {
		if query.Phone != "" && !matchesAny(p.Phone, candidates) {
			continue
		}
		if query.Email != "" && p.Email != query.Email {
			continue
		}
		if query.FirstName != "" && p.FirstName != query.FirstName {
			continue
		}
		if query.LastName != "" && p.LastName != query.LastName {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

func matchesAny(stored string, candidates []string) bool {
	for _, c := range candidates {
		if stored == c {
			return true
		}
	}
	return false
}

func (e *Engine) GetPatient(ctx context.Context, patientID string) (*pms.Patient, error) {
	if err := e.simulate(ctx, "patients.get"); err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	p, ok := e.patients[patientID]
	if !ok {
		return nil, &pms.NotFoundError{Entity: "patient", ID: patientID}
	}
	return &p, nil
}

func (e *Engine) CreatePatient(ctx context.Context, input pms.CreatePatientInput) (*pms.Patient, error) {
	if err := e.simulate(ctx, "patients.create"); err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.patientSeq++
	p := pms.Patient{
		ID:          fmt.Sprintf("pat-%06d", e.patientSeq),
		FirstName:   input.FirstName,
		LastName:    input.LastName,
		Phone:       pms.NormalizePhone(input.Phone),
		Email:       input.Email,
		DateOfBirth: input.DateOfBirth,
		Address:     input.Address,
	}
	e.patients[p.ID] = p
	return &p, nil
}

func (e *Engine) UpdatePatient(ctx context.Context, patientID string, input pms.UpdatePatientInput) (*pms.Patient, error) {
	if err := e.simulate(ctx, "patients.update"); err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	p, ok := e.patients[patientID]
	if !ok {
		return nil, &pms.NotFoundError{Entity: "patient", ID: patientID}
	}
	if input.FirstName != nil {
		p.FirstName = *input.FirstName
	}
	if input.LastName != nil {
		p.LastName = *input.LastName
	}
	if input.Phone != nil {
		p.Phone = pms.NormalizePhone(*input.Phone)
	}
	if input.Email != nil {
		p.Email = *input.Email
	}
	if input.DateOfBirth != nil {
		p.DateOfBirth = *input.DateOfBirth
	}
	if input.Address != nil {
		p.Address = input.Address
	}
	e.patients[patientID] = p
	return &p, nil
}

// GetAvailableSlots generates hour slots within business hours (09:00-17:00),
// weekdays only. The availability pattern is a pure function of the seed,
// provider, and slot start, so a fixed seed reproduces the same calendar.
func (e *Engine) GetAvailableSlots(ctx context.Context, providerID string, dateRange pms.DateRange) ([]pms.Slot, error) {
	if err := e.simulate(ctx, "slots.list"); err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	locationID := e.locations[0].ID
	var slots []pms.Slot
	day := time.Date(dateRange.From.Year(), dateRange.From.Month(), dateRange.From.Day(), 0, 0, 0, 0, dateRange.From.Location())
	for ; day.Before(dateRange.To); day = day.AddDate(0, 0, 1) {
		if wd := day.Weekday(); wd == time.Saturday || wd == time.Sunday {
			continue
		}
		for hour := businessOpenHour; hour < businessCloseHour; hour++ {
			start := time.Date(day.Year(), day.Month(), day.Day(), hour, 0, 0, 0, day.Location())
			end := start.Add(slotDuration)
			if start.Before(dateRange.From) || end.After(dateRange.To) {
				continue
			}
			id := slotID(providerID, start)
			available := e.slotOpen(providerID, start)
			if _, taken := e.booked[id]; taken {
				available = false
			}
			slots = append(slots, pms.Slot{
				ID:         id,
				StartTime:  start,
				EndTime:    end,
				ProviderID: providerID,
				LocationID: locationID,
				Available:  available,
			})
		}
	}
	return slots, nil
}

// slotOpen derives availability from a hash of (seed, provider, start) so the
// pattern is stable regardless of call order.
func (e *Engine) slotOpen(providerID string, start time.Time) bool {
	h := fnv.New64a()
	fmt.Fprintf(h, "%d|%s|%d", e.cfg.Seed, providerID, start.Unix())
	return h.Sum64()%100 < 70
}

func slotID(providerID string, start time.Time) string {
	return fmt.Sprintf("slot-%s-%s", providerID, start.Format("20060102T1504"))
}

func (e *Engine) BookAppointment(ctx context.Context, input pms.BookAppointmentInput) (*pms.Appointment, error) {
	if err := e.simulate(ctx, "appointments.create"); err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	// Idempotency replay: the same key always yields the original record.
	if id, ok := e.byIdemKey[input.IdempotencyKey]; ok {
		appt := e.appointments[id]
		return &appt, nil
	}

	if _, ok := e.patients[input.PatientID]; !ok {
		return nil, &pms.NotFoundError{Entity: "patient", ID: input.PatientID}
	}
	sid := slotID(input.ProviderID, input.StartTime)
	if !e.slotOpen(input.ProviderID, input.StartTime) {
		return nil, &pms.ValidationError{Field: "startTime", Reason: "slot is not available"}
	}
	if _, taken := e.booked[sid]; taken {
		return nil, &pms.ValidationError{Field: "startTime", Reason: "slot already booked"}
	}

	e.apptSeq++
	appt := pms.Appointment{
		ID:         fmt.Sprintf("apt-%06d", e.apptSeq),
		PatientID:  input.PatientID,
		ProviderID: input.ProviderID,
		LocationID: input.LocationID,
		StartTime:  input.StartTime,
		EndTime:    input.EndTime,
		Status:     pms.AppointmentScheduled,
		Notes:      input.Notes,
	}
	e.appointments[appt.ID] = appt
	e.byIdemKey[input.IdempotencyKey] = appt.ID
	e.booked[sid] = appt.ID
	return &appt, nil
}

func (e *Engine) GetAppointment(ctx context.Context, appointmentID string) (*pms.Appointment, error) {
	if err := e.simulate(ctx, "appointments.get"); err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	appt, ok := e.appointments[appointmentID]
	if !ok {
		return nil, &pms.NotFoundError{Entity: "appointment", ID: appointmentID}
	}
	return &appt, nil
}

func (e *Engine) CancelAppointment(ctx context.Context, appointmentID string) error {
	if err := e.simulate(ctx, "appointments.cancel"); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	appt, ok := e.appointments[appointmentID]
	if !ok {
		return &pms.NotFoundError{Entity: "appointment", ID: appointmentID}
	}
	appt.Status = pms.AppointmentCancelled
	e.appointments[appointmentID] = appt
	// Free the slot for subsequent availability fetches.
	delete(e.booked, slotID(appt.ProviderID, appt.StartTime))
	return nil
}

func (e *Engine) ListProviders(ctx context.Context) ([]pms.Provider, error) {
	if err := e.simulate(ctx, "providers.list"); err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]pms.Provider, len(e.providers))
	copy(out, e.providers)
	return out, nil
}

func (e *Engine) ListLocations(ctx context.Context) ([]pms.Location, error) {
	if err := e.simulate(ctx, "locations.list"); err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]pms.Location, len(e.locations))
	copy(out, e.locations)
	return out, nil
}

func (e *Engine) ListOperatories(ctx context.Context, locationID string) ([]pms.Operatory, error) {
	if err := e.simulate(ctx, "operatories.list"); err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []pms.Operatory
	for _, op := range e.operatories {
		if locationID != "" && op.LocationID != locationID {
			continue
		}
		out = append(out, op)
	}
	return out, nil
}
