package config

import (
	"os"
	"strconv"
	"time"
)

// Config represents the application configuration.
// This is an infrastructure component that loads configuration from environment variables.
type Config struct {
	Port        string
	LogLevel    string
	DatabaseDSN string

	// JWTSecret validates bearer tokens during tenant resolution; empty
	// disables signature verification and falls back to DevTenantID.
	JWTSecret string
	// TenantClaim names the JWT claim carrying the tenant id.
	TenantClaim string
	// DevTenantID is used when no Authorization header is present and
	// JWTSecret is unset, for local development only.
	DevTenantID string

	// MCPRequestTimeout bounds how long the MCP session manager waits for a
	// downstream tool response before failing the call.
	MCPRequestTimeout time.Duration
	// MaxExecutionTime is read from MAX_EXECUTION_TIME but is not passed to
	// the service or driver; the driver enforces only a workflow's own
	// execution.config.maxExecutionTime, and a workflow without one has no
	// wall-clock limit.
	MaxExecutionTime time.Duration
}

// Load creates a new Config instance by reading environment variables.
func Load() *Config {
	return &Config{
		Port:              getEnv("PORT", "8080"),
		LogLevel:          getEnv("LOG_LEVEL", "info"),
		DatabaseDSN:       getEnv("DATABASE_DSN", ""),
		JWTSecret:         getEnv("JWT_SECRET", ""),
		TenantClaim:       getEnv("TENANT_CLAIM", "tenant_id"),
		DevTenantID:       getEnv("DEV_TENANT_ID", "dev"),
		MCPRequestTimeout: getEnvDuration("MCP_REQUEST_TIMEOUT", 30*time.Second),
		MaxExecutionTime:  getEnvDuration("MAX_EXECUTION_TIME", 30*time.Minute),
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}

// GetPortInt returns the port as an integer.
func (c *Config) GetPortInt() int {
	p, _ := strconv.Atoi(c.Port)
	return p
}
