package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration
type Config struct {
	Port          string
	Env           string
	LogLevel      string
	PublicBaseURL string

	// Shared adapter tuning. Each office's adapter gets its own breaker,
	// limiter, and cache instances built from these values.
	BreakerFailureThreshold int
	BreakerCooldown         time.Duration
	RateLimitPerMinute      int
	RateLimitMaxWait        time.Duration
	RetryAttempts           int
	RetryBaseDelay          time.Duration
	ReferenceCacheTTL       time.Duration

	// Office / vendor wiring for the single-office deployment shape. The
	// multi-office path loads per-office rows from the control plane instead.
	OfficeID   string
	PMSVendor  string
	PMSBaseURL string

	CareStackClientID     string
	CareStackClientSecret string

	EaglesoftPracticeCode string
	EaglesoftAPIKey       string

	UseMockPMS  bool
	MockPMSSeed int64
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:          getEnv("PORT", "8080"),
		Env:           getEnv("ENV", "development"),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		PublicBaseURL: getEnv("PUBLIC_BASE_URL", ""),

		BreakerFailureThreshold: getEnvAsInt("PMS_BREAKER_FAILURE_THRESHOLD", 5),
		BreakerCooldown:         getEnvAsDuration("PMS_BREAKER_COOLDOWN", time.Minute),
		RateLimitPerMinute:      getEnvAsInt("PMS_RATE_LIMIT_PER_MINUTE", 60),
		RateLimitMaxWait:        getEnvAsDuration("PMS_RATE_LIMIT_MAX_WAIT", 2*time.Second),
		RetryAttempts:           getEnvAsInt("PMS_RETRY_ATTEMPTS", 3),
		RetryBaseDelay:          getEnvAsDuration("PMS_RETRY_BASE_DELAY", 500*time.Millisecond),
		ReferenceCacheTTL:       getEnvAsDuration("PMS_REFERENCE_CACHE_TTL", 5*time.Minute),

		OfficeID:   getEnv("OFFICE_ID", "office-dev"),
		PMSVendor:  strings.ToLower(strings.TrimSpace(getEnv("PMS_VENDOR", "local"))),
		PMSBaseURL: getEnv("PMS_BASE_URL", ""),

		CareStackClientID:     getEnv("CARESTACK_CLIENT_ID", ""),
		CareStackClientSecret: getEnv("CARESTACK_CLIENT_SECRET", ""),

		EaglesoftPracticeCode: getEnv("EAGLESOFT_PRACTICE_CODE", ""),
		EaglesoftAPIKey:       getEnv("EAGLESOFT_API_KEY", ""),

		UseMockPMS:  getEnvAsBool("USE_MOCK_PMS", false),
		MockPMSSeed: getEnvAsInt64("MOCK_PMS_SEED", 0),
	}
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsInt64(key string, defaultValue int64) int64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseInt(valueStr, 10, 64); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}
