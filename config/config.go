package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const defaultJWTSecret = "dev-secret-change-me"

// Config holds all application configuration
type Config struct {
	DatabaseURL              string
	Port                     string
	GoEnv                    string
	JWTSecret                string
	JWTIssuer                string
	JWTAudience              string
	SessionTTL               time.Duration
	AWSRegion                string
	AWSS3Bucket              string
	AWSAccessKeyID           string
	AWSSecretAccessKey       string
	UploadDir                string
	NATSURL                  string
	SeedUsersPath            string
	CORSAllowedOrigins       []string
	EnforceStatusTransitions bool
	OTLPEndpoint             string
	LogLevel                 string
	LogFormat                string
}

var current *Config

// Load loads the configuration from environment variables
// It automatically determines which .env file to load based on GO_ENV
func Load() (*Config, error) {
	env := os.Getenv("GO_ENV")
	if env == "" {
		env = "development"
	}

	envFile := fmt.Sprintf(".env.%s", env)
	if err := godotenv.Load(envFile); err != nil {
		if err := godotenv.Load(); err != nil {
			// deployed environments set variables directly
			log.Printf("No .env file found, using system environment variables")
		}
	} else {
		log.Printf("Loaded configuration from %s", envFile)
	}

	ttl, err := time.ParseDuration(getEnv("SESSION_TTL", "24h"))
	if err != nil {
		return nil, fmt.Errorf("SESSION_TTL is not a valid duration: %w", err)
	}

	config := &Config{
		DatabaseURL:              getEnv("DATABASE_URL", ""),
		Port:                     getEnv("PORT", "8080"),
		GoEnv:                    getEnv("GO_ENV", "development"),
		JWTSecret:                getEnv("JWT_SECRET", defaultJWTSecret),
		JWTIssuer:                getEnv("JWT_ISSUER", "repairdesk-api"),
		JWTAudience:              getEnv("JWT_AUDIENCE", "repairdesk"),
		SessionTTL:               ttl,
		AWSRegion:                getEnv("AWS_REGION", "us-east-1"),
		AWSS3Bucket:              getEnv("AWS_S3_BUCKET", ""),
		AWSAccessKeyID:           getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:       getEnv("AWS_SECRET_ACCESS_KEY", ""),
		UploadDir:                getEnv("UPLOAD_DIR", "./uploads"),
		NATSURL:                  getEnv("NATS_URL", ""),
		SeedUsersPath:            getEnv("SEED_USERS_PATH", ""),
		CORSAllowedOrigins:       splitList(getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:3000")),
		EnforceStatusTransitions: getBool("ENFORCE_STATUS_TRANSITIONS", false),
		OTLPEndpoint:             getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		LogLevel:                 getEnv("LOG_LEVEL", "info"),
		LogFormat:                getEnv("LOG_FORMAT", "text"),
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	current = config
	return config, nil
}

// Validate checks that all required configuration values are set
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if c.IsProduction() && c.JWTSecret == defaultJWTSecret {
		return fmt.Errorf("JWT_SECRET must be set in production")
	}
	if c.SessionTTL <= 0 {
		return fmt.Errorf("SESSION_TTL must be positive")
	}
	return nil
}

// IsProduction returns true if the application is running in production mode
func (c *Config) IsProduction() bool {
	return c.GoEnv == "production"
}

// IsTest returns true if the application is running in test mode
func (c *Config) IsTest() bool {
	return c.GoEnv == "test"
}

// IsDevelopment returns true if the application is running in development mode
func (c *Config) IsDevelopment() bool {
	return c.GoEnv == "development"
}

// UsesS3 reports whether attachments go to an S3 bucket rather than local disk
func (c *Config) UsesS3() bool {
	return c.AWSS3Bucket != ""
}

// GetConfig returns the most recently loaded configuration
func GetConfig() *Config {
	return current
}

// SetConfig replaces the active configuration (primarily for testing)
func SetConfig(cfg *Config) {
	current = cfg
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		log.Printf("Ignoring invalid boolean %s=%q", key, value)
		return defaultValue
	}
	return b
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
