package pms

import "fmt"

// Vendor is the closed set of supported practice management systems. Adding a
// vendor means extending this enum and the factory switch; unknown strings
// are rejected at config-parse time.
type Vendor string

const (
	VendorCareStack Vendor = "carestack"
	VendorEaglesoft Vendor = "eaglesoft"
	VendorLocal     Vendor = "local"
)

// ParseVendor validates a configured vendor string.
func ParseVendor(s string) (Vendor, error) {
	switch Vendor(s) {
	case VendorCareStack, VendorEaglesoft, VendorLocal:
		return Vendor(s), nil
	default:
		return "", fmt.Errorf("unsupported PMS vendor %q", s)
	}
}

// Credentials holds vendor-specific secrets. Which fields matter depends on
// the vendor: CareStack uses the OAuth2 client pair, Eaglesoft the practice
// code and API key.
type Credentials struct {
	ClientID     string
	ClientSecret string
	PracticeCode string
	APIKey       string
}

// OfficeConfig is the per-office adapter configuration surface.
type OfficeConfig struct {
	OfficeID    string
	Vendor      Vendor
	BaseURL     string
	Credentials Credentials
	UseMockMode bool

	// MockSeed makes sandbox availability patterns reproducible in tests.
	// Zero means derive from the office ID.
	MockSeed int64
}

// HasLiveCredentials reports whether the config carries enough secrets to
// reach the real vendor API.
func (c OfficeConfig) HasLiveCredentials() bool {
	switch c.Vendor {
	case VendorCareStack:
		return c.BaseURL != "" && c.Credentials.ClientID != "" && c.Credentials.ClientSecret != ""
	case VendorEaglesoft:
		return c.BaseURL != "" && c.Credentials.PracticeCode != "" && c.Credentials.APIKey != ""
	default:
		return false
	}
}
