package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	JWT       JWTConfig
	Session   SessionConfig
	Email     EmailConfig
	CORS      CORSConfig
	RateLimit RateLimitConfig
	App       AppConfig
	Log       LogConfig
	Metrics   MetricsConfig
	Scheduler SchedulerConfig
	Vault     VaultConfig
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Host         string
	Port         string
	TimeoutRead  time.Duration
	TimeoutWrite time.Duration
	TimeoutIdle  time.Duration
}

// DatabaseConfig holds database-related configuration
type DatabaseConfig struct {
	Host            string
	Port            string
	User            string
	Password        string
	Name            string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// JWTConfig holds JWT-related configuration
type JWTConfig struct {
	Secret            string
	Expiration        time.Duration
	RefreshExpiration time.Duration
}

// SessionConfig holds session-related configuration
type SessionConfig struct {
	Timeout time.Duration
}

// EmailConfig holds email-related configuration
type EmailConfig struct {
	SMTPHost     string
	SMTPPort     string
	SMTPUsername string
	SMTPPassword string
	SMTPFrom     string
	// Base URL used to build entity links in notification mails
	AppBaseURL string
}

// CORSConfig holds CORS-related configuration
type CORSConfig struct {
	AllowedOrigins   []string
	AllowedMethods   []string
	AllowedHeaders   []string
	ExposedHeaders   []string
	AllowCredentials bool
	MaxAge           int
}

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	Enabled  bool
	Requests int
	Duration time.Duration
}

// AppConfig holds general application configuration
type AppConfig struct {
	Env                string
	Name               string
	Version            string
	LogLevel           string
	EnableRegistration bool
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level string
	// When File is set, logs are written to a rotating file as well
	// as stdout
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// MetricsConfig holds Prometheus metrics configuration
type MetricsConfig struct {
	Enabled bool
	Path    string
}

// SchedulerConfig holds scheduler configuration
type SchedulerConfig struct {
	PendingReminderCron    string // e.g., "0 9 * * 1" (Monday 9 AM)
	ExemptionExpiryCron    string // e.g., "0 8 * * *" (Daily 8 AM)
	ExemptionWarningDays   int    // How many days before expiry to warn
	EnablePendingReminders bool
	EnableExemptionExpiry  bool
}

// VaultConfig holds Vault-related configuration
type VaultConfig struct {
	Address      string
	Token        string
	TransitMount string
	KeyName      string
	Enabled      bool
	// LocalKeyHex is the hex-encoded 32-byte key used for incident
	// encryption when Vault is disabled
	LocalKeyHex string
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not found)
	// godotenv doesn't override already-set variables, so order matters
	_ = godotenv.Load(".env")
	_ = godotenv.Load("../.env")

	cfg := &Config{
		Server: ServerConfig{
			Host:         envStr("SERVER_HOST", "localhost"),
			Port:         envStr("SERVER_PORT", "8080"),
			TimeoutRead:  envDuration("SERVER_TIMEOUT_READ", 15*time.Second),
			TimeoutWrite: envDuration("SERVER_TIMEOUT_WRITE", 15*time.Second),
			TimeoutIdle:  envDuration("SERVER_TIMEOUT_IDLE", 60*time.Second),
		},
		Database: DatabaseConfig{
			Host:            envStr("DB_HOST", "localhost"),
			Port:            envStr("DB_PORT", "5432"),
			User:            envStr("DB_USER", "isms"),
			Password:        envStr("DB_PASSWORD", ""),
			Name:            envStr("DB_NAME", "isms_db"),
			SSLMode:         envStr("DB_SSLMODE", "prefer"),
			MaxOpenConns:    envInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    envInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: envDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		JWT: JWTConfig{
			Secret:            envStr("JWT_SECRET", ""),
			Expiration:        envDuration("JWT_EXPIRATION", 24*time.Hour),
			RefreshExpiration: envDuration("JWT_REFRESH_EXPIRATION", 168*time.Hour),
		},
		Session: SessionConfig{
			Timeout: envDuration("SESSION_TIMEOUT", 30*time.Minute),
		},
		Email: EmailConfig{
			SMTPHost:     envStr("SMTP_HOST", ""),
			SMTPPort:     envStr("SMTP_PORT", "587"),
			SMTPUsername: envStr("SMTP_USERNAME", ""),
			SMTPPassword: envStr("SMTP_PASSWORD", ""),
			SMTPFrom:     envStr("SMTP_FROM", "noreply@example.com"),
			AppBaseURL:   envStr("APP_BASE_URL", "http://localhost:3000"),
		},
		CORS: CORSConfig{
			AllowedOrigins:   envList("CORS_ALLOWED_ORIGINS", []string{"http://localhost:3000"}),
			AllowedMethods:   envList("CORS_ALLOWED_METHODS", []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}),
			AllowedHeaders:   envList("CORS_ALLOWED_HEADERS", []string{"Accept", "Authorization", "Content-Type"}),
			ExposedHeaders:   envList("CORS_EXPOSED_HEADERS", []string{"Link"}),
			AllowCredentials: envBool("CORS_ALLOW_CREDENTIALS", true),
			MaxAge:           envInt("CORS_MAX_AGE", 300),
		},
		RateLimit: RateLimitConfig{
			Enabled:  envBool("RATE_LIMIT_ENABLED", true),
			Requests: envInt("RATE_LIMIT_REQUESTS", 100),
			Duration: envDuration("RATE_LIMIT_DURATION", 1*time.Minute),
		},
		App: AppConfig{
			Env:                envStr("APP_ENV", "development"),
			Name:               envStr("APP_NAME", "ISMS Manager"),
			Version:            envStr("APP_VERSION", "1.0.0"),
			LogLevel:           envStr("LOG_LEVEL", "info"),
			EnableRegistration: envBool("ENABLE_REGISTRATION", false),
		},
		Log: LogConfig{
			Level:      envStr("LOG_LEVEL", "info"),
			File:       envStr("LOG_FILE", ""),
			MaxSizeMB:  envInt("LOG_MAX_SIZE_MB", 100),
			MaxBackups: envInt("LOG_MAX_BACKUPS", 3),
			MaxAgeDays: envInt("LOG_MAX_AGE_DAYS", 28),
		},
		Metrics: MetricsConfig{
			Enabled: envBool("METRICS_ENABLED", true),
			Path:    envStr("METRICS_PATH", "/metrics"),
		},
		Scheduler: SchedulerConfig{
			PendingReminderCron:    envStr("SCHEDULER_PENDING_REMINDER_CRON", "0 9 * * 1"), // Monday 9 AM
			ExemptionExpiryCron:    envStr("SCHEDULER_EXEMPTION_EXPIRY_CRON", "0 8 * * *"), // Daily 8 AM
			ExemptionWarningDays:   envInt("SCHEDULER_EXEMPTION_WARNING_DAYS", 30),
			EnablePendingReminders: envBool("SCHEDULER_ENABLE_PENDING_REMINDERS", true),
			EnableExemptionExpiry:  envBool("SCHEDULER_ENABLE_EXEMPTION_EXPIRY", true),
		},
		Vault: VaultConfig{
			Address:      envStr("VAULT_ADDR", "http://localhost:8200"),
			Token:        envStr("VAULT_TOKEN", ""),
			TransitMount: envStr("VAULT_TRANSIT_MOUNT", "transit"),
			KeyName:      envStr("VAULT_KEY_NAME", "isms-data"),
			Enabled:      envBool("VAULT_ENABLED", false),
			LocalKeyHex:  envStr("DATA_ENCRYPTION_KEY", ""),
		},
	}

	// Validate required configuration
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.JWT.Secret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if c.Database.Password == "" && c.App.Env == "production" {
		return fmt.Errorf("DB_PASSWORD is required in production")
	}
	if c.Vault.Enabled && c.Vault.Token == "" {
		return fmt.Errorf("VAULT_TOKEN is required when VAULT_ENABLED is true")
	}
	if !c.Vault.Enabled && c.Vault.LocalKeyHex == "" && c.App.Env == "production" {
		return fmt.Errorf("DATA_ENCRYPTION_KEY is required in production when Vault is disabled")
	}
	return nil
}

// Helper functions

func envStr(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func envInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func envBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func envDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func envList(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		var result []string
		for _, v := range parts {
			if trimmed := strings.TrimSpace(v); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		if len(result) > 0 {
			return result
		}
	}
	return defaultValue
}
