package sandbox

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/novadent/pms-adapter/internal/observability/metrics"
	"github.com/novadent/pms-adapter/internal/pms"
	"github.com/novadent/pms-adapter/internal/pms/pipeline"
	"github.com/novadent/pms-adapter/pkg/logging"
)

func newTestSandbox(t *testing.T, cfg Config) *Sandbox {
	t.Helper()
	if cfg.Vendor == "" {
		cfg.Vendor = pms.VendorLocal
	}
	if cfg.Pipeline.RequestsPerMinute == 0 {
		cfg.Pipeline.RequestsPerMinute = 6000
	}
	m := metrics.NewAdapterMetrics(prometheus.NewRegistry())
	return New(cfg, logging.Default(), m)
}

func TestSandbox_NameReflectsVendorAndMockMode(t *testing.T) {
	local := newTestSandbox(t, Config{Vendor: pms.VendorLocal})
	require.Equal(t, "local", local.Name())

	cs := newTestSandbox(t, Config{Vendor: pms.VendorCareStack})
	require.Equal(t, "carestack-sandbox", cs.Name())
	require.Equal(t, pms.VendorCareStack, cs.Vendor())
}

func TestSandbox_CreateThenSearchByNormalizedPhone(t *testing.T) {
	s := newTestSandbox(t, Config{})

	created, err := s.CreatePatient(context.Background(), pms.CreatePatientInput{
		FirstName: "John",
		LastName:  "Smith",
		Phone:     "555-123-4567",
	})
	require.NoError(t, err)
	require.NotEmpty(t, created.ID)
	require.Equal(t, "5551234567", created.Phone)

	// Formatted and bare forms must find the same patient.
	for _, q := range []string{"5551234567", "+1 (555) 123-4567"} {
		found, err := s.SearchPatients(context.Background(), pms.PatientSearchQuery{Phone: q})
		require.NoError(t, err, "query %q", q)
		require.Len(t, found, 1, "query %q", q)
		require.Equal(t, created.ID, found[0].ID)
	}
}

func TestSandbox_PatientIDStableAcrossFetches(t *testing.T) {
	s := newTestSandbox(t, Config{})
	created, err := s.CreatePatient(context.Background(), pms.CreatePatientInput{
		FirstName: "Ana", LastName: "Reyes", Phone: "5559876543",
	})
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		got, err := s.GetPatient(context.Background(), created.ID)
		require.NoError(t, err)
		require.Equal(t, created.ID, got.ID)
	}
}

func TestSandbox_SlotsRespectBusinessHoursAndWeekdays(t *testing.T) {
	s := newTestSandbox(t, Config{})

	// Monday through the following Monday: five business days.
	from := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC) // a Monday
	to := from.AddDate(0, 0, 7)
	slots, err := s.GetAvailableSlots(context.Background(), "prov-0001", pms.DateRange{From: from, To: to})
	require.NoError(t, err)
	require.NotEmpty(t, slots)

	require.Len(t, slots, 5*8, "8 one-hour slots per business day")
	for _, slot := range slots {
		wd := slot.StartTime.Weekday()
		require.NotEqual(t, time.Saturday, wd)
		require.NotEqual(t, time.Sunday, wd)
		require.GreaterOrEqual(t, slot.StartTime.Hour(), 9)
		require.LessOrEqual(t, slot.EndTime.Hour(), 17)
		require.Equal(t, time.Hour, slot.EndTime.Sub(slot.StartTime))
		require.True(t, slot.StartTime.Before(slot.EndTime))
	}
}

func TestSandbox_SlotPatternReproducibleForSeed(t *testing.T) {
	from := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 0, 5)
	rng := pms.DateRange{From: from, To: to}

	a := newTestSandbox(t, Config{Engine: EngineConfig{Seed: 42}})
	b := newTestSandbox(t, Config{Engine: EngineConfig{Seed: 42}})

	slotsA, err := a.GetAvailableSlots(context.Background(), "prov-0001", rng)
	require.NoError(t, err)
	slotsB, err := b.GetAvailableSlots(context.Background(), "prov-0001", rng)
	require.NoError(t, err)
	require.Equal(t, slotsA, slotsB)

	// A different seed should disagree somewhere in a 40-slot window.
	c := newTestSandbox(t, Config{Engine: EngineConfig{Seed: 43}})
	slotsC, err := c.GetAvailableSlots(context.Background(), "prov-0001", rng)
	require.NoError(t, err)
	require.NotEqual(t, slotsA, slotsC)
}

func findAvailableSlot(t *testing.T, s *Sandbox, providerID string) pms.Slot {
	t.Helper()
	from := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	slots, err := s.GetAvailableSlots(context.Background(), providerID, pms.DateRange{From: from, To: from.AddDate(0, 0, 5)})
	require.NoError(t, err)
	for _, slot := range slots {
		if slot.Available {
			return slot
		}
	}
	t.Fatal("no available slot in window")
	return pms.Slot{}
}

func TestSandbox_BookingIdempotencyKeyReplay(t *testing.T) {
	s := newTestSandbox(t, Config{})
	patient, err := s.CreatePatient(context.Background(), pms.CreatePatientInput{
		FirstName: "John", LastName: "Smith", Phone: "5551234567",
	})
	require.NoError(t, err)
	slot := findAvailableSlot(t, s, "prov-0001")

	input := pms.BookAppointmentInput{
		PatientID:      patient.ID,
		ProviderID:     slot.ProviderID,
		LocationID:     slot.LocationID,
		StartTime:      slot.StartTime,
		EndTime:        slot.EndTime,
		IdempotencyKey: "idem-123",
	}
	first, err := s.BookAppointment(context.Background(), input)
	require.NoError(t, err)
	second, err := s.BookAppointment(context.Background(), input)
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID, "same key must not create a duplicate")
}

func TestSandbox_BookedSlotBecomesUnavailable(t *testing.T) {
	s := newTestSandbox(t, Config{})
	patient, err := s.CreatePatient(context.Background(), pms.CreatePatientInput{
		FirstName: "Ana", LastName: "Reyes", Phone: "5550001111",
	})
	require.NoError(t, err)
	slot := findAvailableSlot(t, s, "prov-0001")

	_, err = s.BookAppointment(context.Background(), pms.BookAppointmentInput{
		PatientID:      patient.ID,
		ProviderID:     slot.ProviderID,
		LocationID:     slot.LocationID,
		StartTime:      slot.StartTime,
		EndTime:        slot.EndTime,
		IdempotencyKey: "idem-book-1",
	})
	require.NoError(t, err)

	from := slot.StartTime.Add(-time.Hour)
	refreshed, err := s.GetAvailableSlots(context.Background(), slot.ProviderID, pms.DateRange{From: from, To: slot.EndTime.Add(time.Hour)})
	require.NoError(t, err)
	for _, got := range refreshed {
		if got.ID == slot.ID {
			require.False(t, got.Available, "booked slot must flip available=false")
			return
		}
	}
	t.Fatalf("slot %s missing from refetch", slot.ID)
}

func TestSandbox_InjectedFailuresOpenBookingBreaker(t *testing.T) {
	s := newTestSandbox(t, Config{
		Vendor: pms.VendorCareStack,
		Engine: EngineConfig{FailureRate: 1.0},
		Pipeline: pipeline.Settings{
			RequestsPerMinute: 6000,
			FailureThreshold:  5,
			Cooldown:          time.Minute,
		},
	})

	input := pms.BookAppointmentInput{
		PatientID:      "pat-000001",
		ProviderID:     "prov-0001",
		LocationID:     "loc-0001",
		StartTime:      time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC),
		EndTime:        time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC),
		IdempotencyKey: "idem-fail",
	}

	for i := 0; i < 5; i++ {
		_, err := s.BookAppointment(context.Background(), input)
		require.True(t, pms.IsUpstream(err), "attempt %d: %v", i, err)
	}
	require.Equal(t, "open", s.BreakerState("appointments.create"))

	// Sixth call fails fast with CircuitOpenError and no engine call.
	_, err := s.BookAppointment(context.Background(), input)
	var coe *pms.CircuitOpenError
	require.True(t, errors.As(err, &coe), "err = %v", err)

	// Other endpoints remain gated independently.
	require.Equal(t, "closed", s.BreakerState("patients.search"))
}

func TestSandbox_ValidationBeforeAnyCall(t *testing.T) {
	s := newTestSandbox(t, Config{Engine: EngineConfig{FailureRate: 1.0}})

	_, err := s.CreatePatient(context.Background(), pms.CreatePatientInput{FirstName: "NoPhone", LastName: "Smith"})
	var ve *pms.ValidationError
	require.True(t, errors.As(err, &ve), "err = %v", err)

	_, err = s.BookAppointment(context.Background(), pms.BookAppointmentInput{
		PatientID:  "pat-1",
		ProviderID: "prov-0001",
		LocationID: "loc-0001",
		StartTime:  time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC),
		EndTime:    time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC), // inverted
		// IdempotencyKey missing as well
	})
	require.True(t, errors.As(err, &ve), "err = %v", err)
}

func TestSandbox_GetPatientNotFoundIsNil(t *testing.T) {
	s := newTestSandbox(t, Config{})
	got, err := s.GetPatient(context.Background(), "pat-does-not-exist")
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestSandbox_CancelFreesSlot(t *testing.T) {
	s := newTestSandbox(t, Config{})
	patient, err := s.CreatePatient(context.Background(), pms.CreatePatientInput{
		FirstName: "Lee", LastName: "Park", Phone: "5552223333",
	})
	require.NoError(t, err)
	slot := findAvailableSlot(t, s, "prov-0002")

	appt, err := s.BookAppointment(context.Background(), pms.BookAppointmentInput{
		PatientID:      patient.ID,
		ProviderID:     slot.ProviderID,
		LocationID:     slot.LocationID,
		StartTime:      slot.StartTime,
		EndTime:        slot.EndTime,
		IdempotencyKey: "idem-cancel-1",
	})
	require.NoError(t, err)

	require.NoError(t, s.CancelAppointment(context.Background(), appt.ID))

	got, err := s.GetAppointment(context.Background(), appt.ID)
	require.NoError(t, err)
	require.Equal(t, pms.AppointmentCancelled, got.Status)

	refreshed, err := s.GetAvailableSlots(context.Background(), slot.ProviderID,
		pms.DateRange{From: slot.StartTime.Add(-time.Hour), To: slot.EndTime.Add(time.Hour)})
	require.NoError(t, err)
	for _, got := range refreshed {
		if got.ID == slot.ID {
			require.True(t, got.Available, "cancelled slot should be bookable again")
		}
	}
}

func TestSandbox_ReferenceDataCached(t *testing.T) {
	s := newTestSandbox(t, Config{})
	first, err := s.ListProviders(context.Background())
	require.NoError(t, err)
	require.Len(t, first, 2)

	second, err := s.ListProviders(context.Background())
	require.NoError(t, err)
	require.Equal(t, first, second)

	ops, err := s.ListOperatories(context.Background(), "loc-0001")
	require.NoError(t, err)
	require.Len(t, ops, 2)
}
