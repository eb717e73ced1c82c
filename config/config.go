// Package config loads the service configuration from the environment
package config

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"
)

// Deployment environments
const (
	EnvDevelopment = "dev"
	EnvStaging     = "staging"
	EnvProduction  = "prod"
	EnvTest        = "test"
)

// Catalog sources
const (
	SourcePostgres = "postgres"
	SourceFile     = "file"
	SourceFallback = "fallback"
)

// Catalog cache backends
const (
	CacheMemory   = "memory"
	CachePostgres = "postgres"
	CacheNone     = "none"
)

// Config holds all application configuration
type Config struct {
	Port              string
	Address           string
	Env               string
	LogLevel          string
	LogDir            string
	LogRetentionWeeks int   // Number of weeks to keep log files
	MaxLogFileSize    int64 // Maximum log file size in bytes
	MaxRequestBody    int64 // Maximum request body size in bytes
	MaxHeaderSize     int64 // Maximum header size in bytes

	DatabaseURL string
	DBMaxConns  int32
	DBMinConns  int32

	CatalogSource          string
	CatalogDir             string
	CatalogURL             string
	CatalogInteractionsURL string
	CatalogCache           string
	CatalogCacheTTL        time.Duration
	CatalogRefreshTimes    []string

	GenerationAPIURL        string
	GenerationAPIKey        string
	GenerationModel         string
	GenerationTemperature   float64
	GenerationMaxTokens     int
	GenerationTimeout       time.Duration
	GenerationRatePerSecond float64
	GenerationBurst         int64

	EnrichWorkers int
}

// Load loads and validates configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Port:              getEnvWithDefault("PORT", "8000"),
		Address:           getEnvWithDefault("ADDRESS", "127.0.0.1"),
		Env:               strings.ToLower(getEnvWithDefault("ENV", EnvDevelopment)),
		LogLevel:          getEnvWithDefault("LOG_LEVEL", "info"),
		LogDir:            getEnvWithDefault("LOG_DIR", "logs"),
		LogRetentionWeeks: getIntEnvWithDefault("LOG_RETENTION_WEEKS", 4),
		MaxLogFileSize:    getInt64EnvWithDefault("MAX_LOG_FILE_SIZE", 104857600), // 100MB
		MaxRequestBody:    getInt64EnvWithDefault("MAX_REQUEST_BODY", 1048576),    // 1MB
		MaxHeaderSize:     getInt64EnvWithDefault("MAX_HEADER_SIZE", 1048576),     // 1MB

		DatabaseURL: os.Getenv("DATABASE_URL"),
		DBMaxConns:  int32(getIntEnvWithDefault("DB_MAX_CONNS", 10)),
		DBMinConns:  int32(getIntEnvWithDefault("DB_MIN_CONNS", 1)),

		CatalogSource:          strings.ToLower(getEnvWithDefault("CATALOG_SOURCE", SourceFallback)),
		CatalogDir:             getEnvWithDefault("CATALOG_DIR", "files"),
		CatalogURL:             os.Getenv("CATALOG_URL"),
		CatalogInteractionsURL: os.Getenv("CATALOG_INTERACTIONS_URL"),
		CatalogCache:           strings.ToLower(getEnvWithDefault("CATALOG_CACHE", CacheMemory)),
		CatalogCacheTTL:        time.Duration(getIntEnvWithDefault("CATALOG_CACHE_TTL_SECONDS", 43200)) * time.Second,
		CatalogRefreshTimes:    splitTimes(getEnvWithDefault("CATALOG_REFRESH_TIMES", "06:00;18:00")),

		GenerationAPIURL:        getEnvWithDefault("GENERATION_API_URL", "https://api.openai.com/v1"),
		GenerationAPIKey:        os.Getenv("GENERATION_API_KEY"),
		GenerationModel:         getEnvWithDefault("GENERATION_MODEL", "gpt-4o-mini"),
		GenerationTemperature:   getFloatEnvWithDefault("GENERATION_TEMPERATURE", 0.3),
		GenerationMaxTokens:     getIntEnvWithDefault("GENERATION_MAX_TOKENS", 1000),
		GenerationTimeout:       time.Duration(getIntEnvWithDefault("GENERATION_TIMEOUT_SECONDS", 30)) * time.Second,
		GenerationRatePerSecond: getFloatEnvWithDefault("GENERATION_RATE_PER_SECOND", 2),
		GenerationBurst:         getInt64EnvWithDefault("GENERATION_BURST", 5),

		EnrichWorkers: getIntEnvWithDefault("ENRICH_WORKERS", 4),
	}

	if err := validateConfig(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// validateConfig validates all configuration values
func validateConfig(cfg *Config) error {
	if err := validatePort(cfg.Port); err != nil {
		return fmt.Errorf("invalid PORT: %w", err)
	}
	if err := validateAddress(cfg.Address); err != nil {
		return fmt.Errorf("invalid ADDRESS: %w", err)
	}
	if err := validateOneOf("ENV", cfg.Env, EnvDevelopment, EnvStaging, EnvProduction, EnvTest); err != nil {
		return fmt.Errorf("invalid ENV: %w", err)
	}
	if err := validateOneOf("LOG_LEVEL", strings.ToLower(cfg.LogLevel), "debug", "info", "warn", "error"); err != nil {
		return fmt.Errorf("invalid LOG_LEVEL: %w", err)
	}
	if err := validateSizeLimit(cfg.MaxRequestBody, "MAX_REQUEST_BODY"); err != nil {
		return fmt.Errorf("invalid MAX_REQUEST_BODY: %w", err)
	}
	if err := validateSizeLimit(cfg.MaxHeaderSize, "MAX_HEADER_SIZE"); err != nil {
		return fmt.Errorf("invalid MAX_HEADER_SIZE: %w", err)
	}
	if err := validateLogRetentionWeeks(cfg.LogRetentionWeeks); err != nil {
		return fmt.Errorf("invalid LOG_RETENTION_WEEKS: %w", err)
	}
	if err := validateMaxLogFileSize(cfg.MaxLogFileSize); err != nil {
		return fmt.Errorf("invalid MAX_LOG_FILE_SIZE: %w", err)
	}
	if err := validateCatalog(cfg); err != nil {
		return err
	}
	if err := validateGeneration(cfg); err != nil {
		return err
	}
	if cfg.EnrichWorkers < 1 || cfg.EnrichWorkers > 64 {
		return fmt.Errorf("invalid ENRICH_WORKERS: must be between 1 and 64, got: %d", cfg.EnrichWorkers)
	}
	return nil
}

// validatePort validates the PORT environment variable
func validatePort(port string) error {
	if port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}

	portNum, err := strconv.Atoi(port)
	if err != nil {
		return fmt.Errorf("PORT must be a valid number: %w", err)
	}
	if portNum < 1 || portNum > 65535 {
		return fmt.Errorf("PORT must be between 1 and 65535")
	}
	if portNum < 1024 {
		return fmt.Errorf("PORT %d is privileged (less than 1024), use ports 1024-65535", portNum)
	}

	return nil
}

// validateAddress validates the ADDRESS environment variable
func validateAddress(address string) error {
	if address == "" {
		return fmt.Errorf("ADDRESS cannot be empty")
	}
	if address == "localhost" {
		return nil
	}

	ip := net.ParseIP(address)
	if ip == nil {
		return fmt.Errorf("ADDRESS must be a valid IP address or 'localhost', got: %s", address)
	}
	if !ip.IsLoopback() && !ip.IsPrivate() && !ip.IsUnspecified() {
		return fmt.Errorf("ADDRESS %s is a public IP, consider using private network ranges for security", address)
	}

	return nil
}

func validateOneOf(name, value string, allowed ...string) error {
	if value == "" {
		return fmt.Errorf("%s cannot be empty", name)
	}
	if !slices.Contains(allowed, value) {
		return fmt.Errorf("%s must be one of: %v, got: %s", name, allowed, value)
	}
	return nil
}

// validateSizeLimit validates size limit configuration values
func validateSizeLimit(size int64, configName string) error {
	if size <= 0 {
		return fmt.Errorf("%s must be positive, got: %d", configName, size)
	}
	if size > 100*1024*1024 {
		return fmt.Errorf("%s is too large (max 100MB), got: %d bytes", configName, size)
	}
	return nil
}

// validateLogRetentionWeeks validates the LOG_RETENTION_WEEKS environment variable
func validateLogRetentionWeeks(weeks int) error {
	if weeks <= 0 {
		return fmt.Errorf("LOG_RETENTION_WEEKS must be positive, got: %d", weeks)
	}
	if weeks > 52 {
		return fmt.Errorf("LOG_RETENTION_WEEKS is too large (max 52 weeks), got: %d", weeks)
	}
	return nil
}

// validateMaxLogFileSize validates the MAX_LOG_FILE_SIZE environment variable
func validateMaxLogFileSize(size int64) error {
	if size < 1024*1024 {
		return fmt.Errorf("MAX_LOG_FILE_SIZE is too small (min 1MB), got: %d bytes", size)
	}
	if size > 1024*1024*1024 {
		return fmt.Errorf("MAX_LOG_FILE_SIZE is too large (max 1GB), got: %d bytes", size)
	}
	return nil
}

func validateCatalog(cfg *Config) error {
	if err := validateOneOf("CATALOG_SOURCE", cfg.CatalogSource, SourcePostgres, SourceFile, SourceFallback); err != nil {
		return fmt.Errorf("invalid CATALOG_SOURCE: %w", err)
	}
	if err := validateOneOf("CATALOG_CACHE", cfg.CatalogCache, CacheMemory, CachePostgres, CacheNone); err != nil {
		return fmt.Errorf("invalid CATALOG_CACHE: %w", err)
	}

	needsDB := cfg.CatalogSource == SourcePostgres || cfg.CatalogCache == CachePostgres
	if needsDB && cfg.DatabaseURL == "" {
		return fmt.Errorf("invalid DATABASE_URL: required when catalog source or cache is postgres")
	}
	if cfg.DBMaxConns < 1 || cfg.DBMinConns < 0 || cfg.DBMinConns > cfg.DBMaxConns {
		return fmt.Errorf("invalid DB_MAX_CONNS/DB_MIN_CONNS: got %d/%d", cfg.DBMaxConns, cfg.DBMinConns)
	}

	if cfg.CatalogSource == SourceFile && cfg.CatalogDir == "" && cfg.CatalogURL == "" {
		return fmt.Errorf("invalid CATALOG_DIR: a directory or CATALOG_URL is required for the file source")
	}
	if cfg.CatalogURL != "" {
		if err := validateURL(cfg.CatalogURL); err != nil {
			return fmt.Errorf("invalid CATALOG_URL: %w", err)
		}
	}
	if cfg.CatalogInteractionsURL != "" {
		if err := validateURL(cfg.CatalogInteractionsURL); err != nil {
			return fmt.Errorf("invalid CATALOG_INTERACTIONS_URL: %w", err)
		}
	}
	if cfg.CatalogCacheTTL <= 0 {
		return fmt.Errorf("invalid CATALOG_CACHE_TTL_SECONDS: must be positive")
	}

	if len(cfg.CatalogRefreshTimes) == 0 {
		return fmt.Errorf("invalid CATALOG_REFRESH_TIMES: at least one time is required")
	}
	for _, t := range cfg.CatalogRefreshTimes {
		if _, err := time.Parse("15:04", t); err != nil {
			return fmt.Errorf("invalid CATALOG_REFRESH_TIMES: %q is not HH:MM", t)
		}
	}
	return nil
}

func validateGeneration(cfg *Config) error {
	if err := validateURL(cfg.GenerationAPIURL); err != nil {
		return fmt.Errorf("invalid GENERATION_API_URL: %w", err)
	}
	if cfg.Env == EnvProduction && cfg.GenerationAPIKey == "" {
		return fmt.Errorf("invalid GENERATION_API_KEY: required in production")
	}
	if cfg.GenerationTemperature < 0 || cfg.GenerationTemperature > 2 {
		return fmt.Errorf("invalid GENERATION_TEMPERATURE: must be between 0 and 2, got: %g", cfg.GenerationTemperature)
	}
	if cfg.GenerationMaxTokens < 1 || cfg.GenerationMaxTokens > 32000 {
		return fmt.Errorf("invalid GENERATION_MAX_TOKENS: must be between 1 and 32000, got: %d", cfg.GenerationMaxTokens)
	}
	if cfg.GenerationTimeout <= 0 || cfg.GenerationTimeout > 5*time.Minute {
		return fmt.Errorf("invalid GENERATION_TIMEOUT_SECONDS: must be between 1 and 300")
	}
	if cfg.GenerationRatePerSecond <= 0 {
		return fmt.Errorf("invalid GENERATION_RATE_PER_SECOND: must be positive, got: %g", cfg.GenerationRatePerSecond)
	}
	if cfg.GenerationBurst < 1 {
		return fmt.Errorf("invalid GENERATION_BURST: must be positive, got: %d", cfg.GenerationBurst)
	}
	return nil
}

func validateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("scheme must be http or https, got: %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("host is missing")
	}
	return nil
}

// splitTimes splits a ";" separated list of HH:MM times
func splitTimes(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ";") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// getEnvWithDefault gets an environment variable with a default value
func getEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getIntEnvWithDefault gets an environment variable as int with a default value
func getIntEnvWithDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getInt64EnvWithDefault gets an environment variable as int64 with a default value
func getInt64EnvWithDefault(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getFloatEnvWithDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// GetEnvVars returns a list of all expected environment variables
func GetEnvVars() []string {
	return []string{
		"PORT", "ADDRESS", "ENV", "LOG_LEVEL", "LOG_DIR", "LOG_RETENTION_WEEKS",
		"MAX_LOG_FILE_SIZE", "MAX_REQUEST_BODY", "MAX_HEADER_SIZE",
		"DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS",
		"CATALOG_SOURCE", "CATALOG_DIR", "CATALOG_URL", "CATALOG_INTERACTIONS_URL", "CATALOG_CACHE",
		"CATALOG_CACHE_TTL_SECONDS", "CATALOG_REFRESH_TIMES",
		"GENERATION_API_URL", "GENERATION_API_KEY", "GENERATION_MODEL",
		"GENERATION_TEMPERATURE", "GENERATION_MAX_TOKENS", "GENERATION_TIMEOUT_SECONDS",
		"GENERATION_RATE_PER_SECOND", "GENERATION_BURST", "ENRICH_WORKERS",
	}
}
