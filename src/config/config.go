package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// AppConfig holds all configuration for the application.
// The values are loaded from environment variables.
type AppConfig struct {
	// Core settings
	Port           string
	DatabasePath   string
	LogLevel       string
	AllowedOrigins []string

	// Upload settings
	MaxUploadSizeBytes int64
	ImportFormat       string
	DefaultBroker      string

	// Pipeline settings
	Workers       int
	StaleBatchAge time.Duration

	// Read cache
	CacheExpiration time.Duration
}

// Cfg is a global instance of the AppConfig.
var Cfg *AppConfig

// LoadConfig loads configuration from environment variables or a .env file.
func LoadConfig() {
	errEnv := godotenv.Load()
	if errEnv != nil {
		errEnv = godotenv.Load("../.env")
	}

	if errEnv != nil {
		if os.IsNotExist(errEnv) {
			log.Println("Info: No .env file found in current or parent directory. Relying on OS environment variables.")
		} else {
			log.Printf("Warning: Error loading .env file: %v. Relying on OS environment variables.", errEnv)
		}
	} else {
		log.Println(".env file loaded successfully.")
	}

	Cfg = fromEnv()

	log.Printf("Configuration loaded: Port=%s, LogLevel=%s, DBPath=%s, Format=%s, Workers=%d",
		Cfg.Port, Cfg.LogLevel, Cfg.DatabasePath, Cfg.ImportFormat, Cfg.Workers)
}

// Default returns the configuration used when no environment is present.
// Tests and the CLI rely on it when LoadConfig has not run.
func Default() *AppConfig {
	return &AppConfig{
		Port:               "8080",
		DatabasePath:       "./tradejournal.db",
		LogLevel:           "info",
		AllowedOrigins:     []string{"http://localhost:3000"},
		MaxUploadSizeBytes: 10 * 1024 * 1024,
		ImportFormat:       "tradovate",
		DefaultBroker:      "tradovate",
		Workers:            4,
		StaleBatchAge:      2 * time.Hour,
		CacheExpiration:    15 * time.Minute,
	}
}

func fromEnv() *AppConfig {
	def := Default()

	maxUploadSizeBytesStr := getEnv("MAX_UPLOAD_SIZE_BYTES", strconv.FormatInt(def.MaxUploadSizeBytes, 10))
	maxUploadSizeBytes, err := strconv.ParseInt(maxUploadSizeBytesStr, 10, 64)
	if err != nil || maxUploadSizeBytes <= 0 {
		log.Printf("WARNING: Invalid MAX_UPLOAD_SIZE_BYTES format '%s'. Using default 10MB. Error: %v", maxUploadSizeBytesStr, err)
		maxUploadSizeBytes = def.MaxUploadSizeBytes
	}

	workers := getEnvAsInt("WORKERS", def.Workers)
	if workers < 1 {
		workers = 1
	}

	return &AppConfig{
		Port:         getEnv("PORT", def.Port),
		DatabasePath: getEnv("DATABASE_PATH", def.DatabasePath),
		LogLevel:     getEnv("LOG_LEVEL", def.LogLevel),

		AllowedOrigins: getEnvAsList("ALLOWED_ORIGINS", def.AllowedOrigins),

		MaxUploadSizeBytes: maxUploadSizeBytes,
		ImportFormat:       strings.ToLower(getEnv("IMPORT_FORMAT", def.ImportFormat)),
		DefaultBroker:      getEnv("DEFAULT_BROKER", def.DefaultBroker),

		Workers:       workers,
		StaleBatchAge: getEnvAsDuration("STALE_BATCH_AGE", def.StaleBatchAge),

		CacheExpiration: getEnvAsDuration("CACHE_EXPIRATION", def.CacheExpiration),
	}
}

// Current returns Cfg, falling back to Default when LoadConfig was never called.
func Current() *AppConfig {
	if Cfg == nil {
		return Default()
	}
	return Cfg
}

// getEnv retrieves an environment variable or returns a fallback value.
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	log.Printf("Environment variable %s not set, using default: %s", key, fallback)
	return fallback
}

// getEnvAsInt retrieves an environment variable as an integer or returns a fallback.
func getEnvAsInt(key string, fallback int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	log.Printf("Invalid integer value for %s ('%s'), using default: %d", key, valueStr, fallback)
	return fallback
}

// getEnvAsList splits a comma-separated variable, dropping empty entries.
func getEnvAsList(key string, fallback []string) []string {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	var values []string
	for _, v := range strings.Split(valueStr, ",") {
		if v = strings.TrimSpace(v); v != "" {
			values = append(values, v)
		}
	}
	if len(values) == 0 {
		return fallback
	}
	return values
}

// getEnvAsDuration retrieves an environment variable as a time.Duration or returns a fallback.
func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	log.Printf("Invalid duration value for %s ('%s'), using default: %s", key, valueStr, fallback.String())
	return fallback
}
