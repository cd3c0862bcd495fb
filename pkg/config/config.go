package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Auth     AuthConfig
	Mailer   MailerConfig
	LogLevel string
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	// Ops server (separate port for health probes and metrics)
	OpsPort string
}

// DatabaseConfig holds PostgreSQL connection configuration
type DatabaseConfig struct {
	URL         string
	MaxConns    int
	MinConns    int
	Timeout     time.Duration
	MaxLifetime time.Duration
	MaxIdleTime time.Duration
}

// AuthConfig holds authentication settings
type AuthConfig struct {
	// JWTSecret signs session tokens. Required.
	JWTSecret string

	// SignupsDisabled disables the public signup endpoint. Controlled by
	// the DISABLE_SIGNUPS environment variable ("true" disables).
	SignupsDisabled bool
}

// MailerConfig holds outbound email settings
type MailerConfig struct {
	SMTPHost string
	SMTPPort string
	Username string
	Password string
	From     string

	// ExternalOrigin is the public base URL used in invitation and
	// password reset links.
	ExternalOrigin string
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server:   loadServerConfig(),
		Database: loadDatabaseConfig(),
		Auth:     loadAuthConfig(),
		Mailer:   loadMailerConfig(),
		LogLevel: getEnv("HANGAR_LOG_LEVEL", "info"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func loadServerConfig() ServerConfig {
	return ServerConfig{
		Host:            getEnv("HANGAR_HOST", "0.0.0.0"),
		Port:            getEnv("HANGAR_PORT", "8080"),
		ReadTimeout:     getEnvDuration("HANGAR_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:    getEnvDuration("HANGAR_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:     getEnvDuration("HANGAR_IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout: getEnvDuration("HANGAR_SHUTDOWN_TIMEOUT", 30*time.Second),
		OpsPort:         getEnv("HANGAR_OPS_PORT", "9090"),
	}
}

func loadDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		URL:         getEnv("HANGAR_DATABASE_URL", ""),
		MaxConns:    getEnvInt("HANGAR_DATABASE_MAX_CONNS", 25),
		MinConns:    getEnvInt("HANGAR_DATABASE_MIN_CONNS", 5),
		Timeout:     getEnvDuration("HANGAR_DATABASE_TIMEOUT", 10*time.Second),
		MaxLifetime: getEnvDuration("HANGAR_DATABASE_MAX_LIFETIME", 30*time.Minute),
		MaxIdleTime: getEnvDuration("HANGAR_DATABASE_MAX_IDLE_TIME", 5*time.Minute),
	}
}

func loadAuthConfig() AuthConfig {
	return AuthConfig{
		JWTSecret:       getEnv("HANGAR_JWT_SECRET", ""),
		SignupsDisabled: strings.EqualFold(getEnv("DISABLE_SIGNUPS", ""), "true"),
	}
}

func loadMailerConfig() MailerConfig {
	return MailerConfig{
		SMTPHost:       getEnv("HANGAR_SMTP_HOST", ""),
		SMTPPort:       getEnv("HANGAR_SMTP_PORT", "587"),
		Username:       getEnv("HANGAR_SMTP_USERNAME", ""),
		Password:       getEnv("HANGAR_SMTP_PASSWORD", ""),
		From:           getEnv("HANGAR_SMTP_FROM", "hello@hangar.local"),
		ExternalOrigin: getEnv("HANGAR_EXTERNAL_ORIGIN", "http://localhost:8080"),
	}
}

// Validate checks that required configuration is present
func (c *Config) Validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("HANGAR_DATABASE_URL is required")
	}
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("HANGAR_JWT_SECRET is required")
	}
	if c.Database.MaxConns < c.Database.MinConns {
		return fmt.Errorf("HANGAR_DATABASE_MAX_CONNS must be >= HANGAR_DATABASE_MIN_CONNS")
	}
	return nil
}

// getEnv returns the environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt returns the environment variable as an int or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// getEnvDuration returns the environment variable as a duration or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
