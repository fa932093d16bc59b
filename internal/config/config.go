package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration
type Config struct {
	Port      string
	Env       string
	LogLevel  string
	LogFormat string

	// eClinicalWorks portal
	ECWBaseURL     string
	ECWUserAgent   string
	ECWHTTPTimeout time.Duration
	ECWDryRun      bool
	ECWSessionTTL  time.Duration

	// Redis-backed auth token store (optional)
	RedisAddr     string
	RedisPassword string
	RedisTLS      bool

	// Caller authentication for /ecw routes (disabled when empty)
	APIJWTSecret       string
	CORSAllowedOrigins []string
	// Extra browser request headers allowed on top of the portal headers.
	CORSAllowedHeaders []string
	CORSMaxAge         time.Duration
}

// DefaultUserAgent mirrors a current desktop Chrome build; the portal rejects
// obviously scripted agents.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/134.0.0.0 Safari/537.36"

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:      getEnv("PORT", "8080"),
		Env:       getEnv("ENV", "development"),
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),

		ECWBaseURL:     strings.TrimRight(getEnv("ECW_BASE_URL", "https://nybukaapp.eclinicalweb.com"), "/"),
		ECWUserAgent:   getEnv("ECW_USER_AGENT", DefaultUserAgent),
		ECWHTTPTimeout: getEnvAsDuration("ECW_HTTP_TIMEOUT", 0),
		ECWDryRun:      getEnvAsBool("ECW_DRY_RUN", false),
		ECWSessionTTL:  getEnvAsDuration("ECW_SESSION_TTL", 30*time.Minute),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),

		APIJWTSecret:       getEnv("API_JWT_SECRET", ""),
		CORSAllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS"),
		CORSAllowedHeaders: getEnvAsList("CORS_ALLOWED_HEADERS"),
		CORSMaxAge:         getEnvAsDuration("CORS_MAX_AGE", 10*time.Minute),
	}
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
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

func getEnvAsList(key string) []string {
	raw := getEnv(key, "")
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
