package factory

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/novadent/pms-adapter/internal/observability/metrics"
	"github.com/novadent/pms-adapter/internal/pms"
)

func testDeps() Deps {
	return Deps{Metrics: metrics.NewAdapterMetrics(prometheus.NewRegistry())}
}

func TestNew_UnknownVendorRejected(t *testing.T) {
	_, err := New(pms.OfficeConfig{OfficeID: "off-1", Vendor: "dentrix"}, testDeps())
	if err == nil {
		t.Fatal("expected error for unknown vendor")
	}
}

func TestNew_LiveCareStack(t *testing.T) {
	adapter, err := New(pms.OfficeConfig{
		OfficeID: "off-1",
		Vendor:   pms.VendorCareStack,
		BaseURL:  "https://api.carestack.example",
		Credentials: pms.Credentials{
			ClientID:     "cid",
			ClientSecret: "secret",
		},
	}, testDeps())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if adapter.Name() != "carestack" {
		t.Fatalf("Name = %q, want carestack", adapter.Name())
	}
	if adapter.Vendor() != pms.VendorCareStack {
		t.Fatalf("Vendor = %q", adapter.Vendor())
	}
}

func TestNew_LiveEaglesoft(t *testing.T) {
	adapter, err := New(pms.OfficeConfig{
		OfficeID: "off-2",
		Vendor:   pms.VendorEaglesoft,
		BaseURL:  "https://api.eaglesoft.example",
		Credentials: pms.Credentials{
			PracticeCode: "PRAC-7",
			APIKey:       "key",
		},
	}, testDeps())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if adapter.Name() != "eaglesoft" {
		t.Fatalf("Name = %q, want eaglesoft", adapter.Name())
	}
}

func TestNew_MissingCredentialsFallsBackToSandbox(t *testing.T) {
	adapter, err := New(pms.OfficeConfig{
		OfficeID: "off-3",
		Vendor:   pms.VendorCareStack,
		BaseURL:  "https://api.carestack.example",
		// no client secret
		Credentials: pms.Credentials{ClientID: "cid"},
	}, testDeps())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if adapter.Name() != "carestack-sandbox" {
		t.Fatalf("Name = %q, want carestack-sandbox", adapter.Name())
	}
	if adapter.Vendor() != pms.VendorCareStack {
		t.Fatalf("Vendor = %q", adapter.Vendor())
	}
}

func TestNew_ExplicitMockModeOverridesCredentials(t *testing.T) {
	adapter, err := New(pms.OfficeConfig{
		OfficeID:    "off-4",
		Vendor:      pms.VendorEaglesoft,
		BaseURL:     "https://api.eaglesoft.example",
		Credentials: pms.Credentials{PracticeCode: "PRAC-7", APIKey: "key"},
		UseMockMode: true,
	}, testDeps())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if adapter.Name() != "eaglesoft-sandbox" {
		t.Fatalf("Name = %q, want eaglesoft-sandbox", adapter.Name())
	}
}

func TestNew_LocalVendorIsPlainSandbox(t *testing.T) {
	adapter, err := New(pms.OfficeConfig{OfficeID: "off-5", Vendor: pms.VendorLocal}, testDeps())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if adapter.Name() != "local" {
		t.Fatalf("Name = %q, want local", adapter.Name())
	}
}
