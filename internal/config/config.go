package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

type Config struct {
	ScriptURL     string
	AdminPassword string
	Port          string
	LogLevel      string
	Timezone      string

	HTTPTimeout     time.Duration
	FetchTimeout    time.Duration
	RefreshInterval time.Duration

	EmailJSURL        string
	EmailJSServiceID  string
	EmailJSTemplateID string
	EmailJSPublicKey  string
	EmailJSPrivateKey string
	EmailRatePerMin   int

	GeocoderURL       string
	GeocoderUserAgent string

	TrackCacheSize int
	TrackCacheTTL  time.Duration

	SinkURL    string
	SinkSecret string
}

func Load() *Config {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		logrus.Warn("No .env file found, using environment variables")
	}

	return &Config{
		ScriptURL:     getEnv("SCRIPT_URL", ""),
		AdminPassword: getEnv("ADMIN_PASSWORD", ""),
		Port:          getEnv("PORT", "8080"),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		Timezone:      getEnv("TIMEZONE", "Asia/Kolkata"),

		HTTPTimeout:     getEnvDuration("HTTP_TIMEOUT", 30*time.Second),
		FetchTimeout:    getEnvDuration("FETCH_TIMEOUT", 10*time.Second),
		RefreshInterval: getEnvDuration("REFRESH_INTERVAL", 2*time.Minute),

		EmailJSURL:        getEnv("EMAILJS_URL", "https://api.emailjs.com/api/v1.0/email/send"),
		EmailJSServiceID:  getEnv("EMAILJS_SERVICE_ID", ""),
		EmailJSTemplateID: getEnv("EMAILJS_TEMPLATE_ID", ""),
		EmailJSPublicKey:  getEnv("EMAILJS_PUBLIC_KEY", ""),
		EmailJSPrivateKey: getEnv("EMAILJS_PRIVATE_KEY", ""),
		EmailRatePerMin:   getEnvInt("EMAIL_RATE_PER_MINUTE", 30),

		GeocoderURL:       getEnv("GEOCODER_URL", "https://nominatim.openstreetmap.org/reverse"),
		GeocoderUserAgent: getEnv("GEOCODER_USER_AGENT", "complaint-portal/1.0"),

		TrackCacheSize: getEnvInt("TRACK_CACHE_SIZE", 256),
		TrackCacheTTL:  getEnvDuration("TRACK_CACHE_TTL", 30*time.Second),

		SinkURL:    getEnv("SINK_URL", ""),
		SinkSecret: getEnv("SINK_SECRET", ""),
	}
}

// Validate rejects configurations the service cannot start with.
func (c *Config) Validate() error {
	if c.ScriptURL == "" {
		return fmt.Errorf("SCRIPT_URL environment variable is required")
	}
	if c.AdminPassword == "" {
		return fmt.Errorf("ADMIN_PASSWORD environment variable is required")
	}
	if c.FetchTimeout <= 0 {
		return fmt.Errorf("FETCH_TIMEOUT must be positive, got %v", c.FetchTimeout)
	}
	if c.HTTPTimeout <= 0 {
		return fmt.Errorf("HTTP_TIMEOUT must be positive, got %v", c.HTTPTimeout)
	}
	if c.RefreshInterval <= 0 {
		return fmt.Errorf("REFRESH_INTERVAL must be positive, got %v", c.RefreshInterval)
	}
	if c.SinkURL != "" && c.SinkSecret == "" {
		return fmt.Errorf("SINK_SECRET is required when SINK_URL is set")
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("invalid TIMEZONE %q: %w", c.Timezone, err)
	}
	return nil
}

// Location returns the calendar used for trend buckets and export timestamps.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

// EmailEnabled reports whether enough EmailJS settings are present to send mail.
func (c *Config) EmailEnabled() bool {
	return c.EmailJSServiceID != "" && c.EmailJSTemplateID != "" && c.EmailJSPublicKey != ""
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
