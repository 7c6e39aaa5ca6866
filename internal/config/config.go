package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	Port           string
	APIURL         string // REST data API (listings, contact requests)
	AuthURL        string // hosted auth service
	AuthAnonKey    string
	DatabaseURL    string // optional; sessions are kept in memory when empty
	RabbitMQURL    string // optional; auth events stay in-process when empty
	SessionSecret  string
	AllowedOrigins string
	Environment    string // development, staging, production
	LogLevel       string
	LogFormat      string
	BackendTimeout time.Duration
	SessionTTL     time.Duration
	CookieSecure   bool
}

// Load loads configuration from environment variables and validates it.
// Missing backend settings are fatal.
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg := &Config{
		Port:           getEnv("PORT", "8080"),
		APIURL:         getEnv("API_URL", "http://localhost:3000"),
		AuthURL:        getEnv("AUTH_URL", ""),
		AuthAnonKey:    getEnv("AUTH_ANON_KEY", ""),
		DatabaseURL:    getEnv("DATABASE_URL", ""),
		RabbitMQURL:    getEnv("RABBITMQ_URL", ""),
		SessionSecret:  getEnv("SESSION_SECRET", ""),
		AllowedOrigins: getEnv("ALLOWED_ORIGINS", "http://localhost:8080"),
		Environment:    getEnv("ENVIRONMENT", "development"),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		LogFormat:      getEnv("LOG_FORMAT", "json"),
		BackendTimeout: getDuration("BACKEND_TIMEOUT", 10*time.Second),
		SessionTTL:     getDuration("SESSION_TTL", 24*time.Hour),
		CookieSecure:   getBool("COOKIE_SECURE", false),
	}

	if err := cfg.Validate(); err != nil {
		log.Fatalf("Configuration validation failed: %v", err)
	}

	return cfg
}

// Validate checks configuration for security and correctness
func (c *Config) Validate() error {
	if c.AuthURL == "" || c.AuthAnonKey == "" {
		return fmt.Errorf("AUTH_URL and AUTH_ANON_KEY must be set")
	}
	if c.APIURL == "" {
		return fmt.Errorf("API_URL must be set")
	}

	if c.IsProduction() {
		if c.SessionSecret == "" || c.SessionSecret == "change-this-in-production" {
			return fmt.Errorf("SESSION_SECRET must be set to a strong random value in production")
		}

		if len(c.SessionSecret) < 32 {
			return fmt.Errorf("SESSION_SECRET must be at least 32 characters in production (got %d)", len(c.SessionSecret))
		}

		if !c.CookieSecure {
			log.Println("WARNING: COOKIE_SECURE is off in production")
		}
	} else if c.SessionSecret == "" {
		c.SessionSecret = "dev-secret-not-for-production"
		log.Println("Using default SESSION_SECRET for development")
	}

	if c.BackendTimeout <= 0 {
		return fmt.Errorf("BACKEND_TIMEOUT must be positive")
	}

	return nil
}

// IsProduction returns true if running in production environment
func (c *Config) IsProduction() bool {
	return c.Environment == "production" || c.Environment == "prod"
}

// IsDevelopment returns true if running in development environment
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development" || c.Environment == "dev" || c.Environment == ""
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		log.Printf("invalid %s=%q, using %s", key, value, defaultValue)
		return defaultValue
	}
	return d
}

func getBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}
	return b
}
