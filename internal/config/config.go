package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	AppEnv             string
	Port               string
	DatabaseURL        string
	RedisURL           string
	JWTSecret          string
	JWTIssuer          string
	CORSAllowedOrigins []string

	SMTPHost     string
	SMTPPort     int
	SMTPUser     string
	SMTPPassword string
	SMTPFrom     string
	SMTPTLSMode  string // "auto" | "starttls" | "ssl" | "none"

	OrgDisplayName     string
	PatientPageBaseURL string
	ListPerPage        int
	MaxPerPage         int

	SendRateWindow time.Duration
	SendRateMax    int
	IdempotencyTTL time.Duration

	BodyLimitBytes  int64
	SecurityHeaders bool

	MigrateOnStart bool
}

// Load reads configuration from environment variables and optional .env files.
func Load() (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", func(s string) string { return s }), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	cfg := &Config{
		AppEnv:             valueOrDefault(k.String("APP_ENV"), "development"),
		Port:               valueOrDefault(k.String("PORT"), "8080"),
		DatabaseURL:        k.String("DATABASE_URL"),
		RedisURL:           k.String("REDIS_URL"),
		JWTSecret:          k.String("JWT_SECRET"),
		JWTIssuer:          strings.TrimSpace(k.String("JWT_ISSUER")),
		CORSAllowedOrigins: splitAndTrim(k.String("CORS_ALLOWED_ORIGINS")),

		SMTPHost:     strings.TrimSpace(k.String("SMTP_HOST")),
		SMTPPort:     intOrDefault(k.Int("SMTP_PORT"), 587),
		SMTPUser:     k.String("SMTP_USER"),
		SMTPPassword: k.String("SMTP_PASSWORD"),
		SMTPFrom:     strings.TrimSpace(k.String("SMTP_FROM")),
		SMTPTLSMode:  valueOrDefault(strings.ToLower(strings.TrimSpace(k.String("SMTP_TLS_MODE"))), "auto"),

		OrgDisplayName:     valueOrDefault(strings.TrimSpace(k.String("ORG_DISPLAY_NAME")), "CareLoop Health"),
		PatientPageBaseURL: valueOrDefault(strings.TrimRight(k.String("PATIENT_PAGE_BASE_URL"), "/"), "/patients"),
		ListPerPage:        intOrDefault(k.Int("LIST_PER_PAGE"), 25),
		MaxPerPage:         intOrDefault(k.Int("LIST_MAX_PER_PAGE"), 100),

		SendRateWindow: parseDuration(k.String("SEND_RATE_WINDOW"), "1m"),
		SendRateMax:    intOrDefault(k.Int("SEND_RATE_MAX"), 30),
		IdempotencyTTL: parseDuration(k.String("IDEMPOTENCY_TTL"), "10m"),

		BodyLimitBytes:  int64(intOrDefault(k.Int("BODY_LIMIT_BYTES"), 1<<20)),
		SecurityHeaders: boolOrDefault(k.String("SECURITY_HEADERS"), true),

		MigrateOnStart: boolOrDefault(k.String("MIGRATE_ON_START"), false),
	}

	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is required")
	}
	if cfg.RedisURL == "" {
		return nil, errors.New("REDIS_URL is required")
	}
	if cfg.JWTSecret == "" {
		return nil, errors.New("JWT_SECRET is required")
	}
	if cfg.SMTPFrom == "" {
		cfg.SMTPFrom = "no-reply@careloop.health"
	}

	return cfg, nil
}

// HTTPAddr returns the address the HTTP server should bind to.
func (c *Config) HTTPAddr() string {
	port := strings.TrimSpace(c.Port)
	if port == "" {
		port = "8080"
	}
	if strings.HasPrefix(port, ":") {
		return port
	}
	return ":" + port
}

// PatientPageURL builds the host-page URL the send flow redirects back to.
func (c *Config) PatientPageURL(patientID string) string {
	return c.PatientPageBaseURL + "/" + patientID
}

func splitAndTrim(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func valueOrDefault(value, fallback string) string {
	if strings.TrimSpace(value) != "" {
		return value
	}
	return fallback
}

func intOrDefault(value, fallback int) int {
	if value <= 0 {
		return fallback
	}
	return value
}

func boolOrDefault(value string, fallback bool) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func parseDuration(value, fallback string) time.Duration {
	base := strings.TrimSpace(value)
	if base == "" {
		base = fallback
	}
	d, err := time.ParseDuration(base)
	if err != nil {
		d, _ = time.ParseDuration(fallback)
	}
	return d
}

// LoadForTests allows tests to override environment variables without leaking
// into the real environment.
func LoadForTests(envOverrides map[string]string) (*Config, error) {
	original := make(map[string]string, len(envOverrides))
	for key := range envOverrides {
		original[key] = os.Getenv(key)
		if err := setEnvVar(key, envOverrides[key]); err != nil {
			return nil, err
		}
	}
	cfg, err := Load()
	restoreErr := restoreEnv(original)
	if err != nil {
		return nil, err
	}
	return cfg, restoreErr
}

func setEnvVar(key, value string) error {
	if value == "" {
		return os.Unsetenv(key)
	}
	return os.Setenv(key, value)
}

func restoreEnv(values map[string]string) error {
	var errs []string
	for key, value := range values {
		if err := setEnvVar(key, value); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", key, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("restore env: %s", strings.Join(errs, "; "))
	}
	return nil
}
