package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/zatekoja/triage-dispatch/backend/internal/domain/entities"
)

// Store drivers
const (
	StoreDriverMemory   = "memory"
	StoreDriverMongo    = "mongo"
	StoreDriverPostgres = "postgres"
)

// Config holds all application configuration
type Config struct {
	App        AppConfig
	Server     ServerConfig
	Store      StoreConfig
	Database   DatabaseConfig
	Mongo      MongoConfig
	Redis      RedisConfig
	Classifier ClassifierConfig
	Dispatch   DispatchConfig
	OTEL       OTELConfig
}

// AppConfig holds process-wide settings
type AppConfig struct {
	Name string
	Env  string
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Host string
	Port int
	// AllowedOrigins lists browser origins admitted by CORS and the
	// WebSocket upgrade. "*" admits any origin.
	AllowedOrigins []string
}

// StoreConfig selects the patient record store backend
type StoreConfig struct {
	Driver string
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

// MongoConfig holds MongoDB configuration
type MongoConfig struct {
	URI      string
	Database string
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
}

// ClassifierConfig holds acuity prediction service configuration
type ClassifierConfig struct {
	URL      string
	Timeout  time.Duration
	CacheTTL time.Duration
}

// DispatchConfig holds queue and booking configuration
type DispatchConfig struct {
	CapacityPerDay  int
	EnforceCapacity bool
	SessionTTL      time.Duration
	SweepInterval   time.Duration
	TimeBuckets     entities.BucketSchedule
}

// OTELConfig holds OpenTelemetry configuration
type OTELConfig struct {
	ServiceName    string
	ServiceVersion string
	Endpoint       string
	Enabled        bool
}

var defaults = map[string]interface{}{
	"APP_NAME":                 "triage-dispatch",
	"APP_ENV":                  "development",
	"SERVER_HOST":              "0.0.0.0",
	"SERVER_PORT":              8080,
	"CORS_ALLOWED_ORIGINS":     "*",
	"STORE_DRIVER":             StoreDriverMemory,
	"DB_HOST":                  "localhost",
	"DB_PORT":                  5432,
	"DB_USER":                  "postgres",
	"DB_PASSWORD":              "",
	"DB_NAME":                  "triage",
	"DB_SSLMODE":               "disable",
	"MONGO_URI":                "mongodb://localhost:27017",
	"MONGO_DATABASE":           "triage",
	"REDIS_ENABLED":            false,
	"REDIS_HOST":               "localhost",
	"REDIS_PORT":               6379,
	"REDIS_PASSWORD":           "",
	"REDIS_DB":                 0,
	"CLASSIFIER_URL":           "",
	"CLASSIFIER_TIMEOUT":       "5s",
	"CLASSIFIER_CACHE_TTL":     "10m",
	"BOOKING_CAPACITY_PER_DAY": 16,
	"BOOKING_ENFORCE_CAPACITY": false,
	"DISPATCH_SESSION_TTL":     "30m",
	"DISPATCH_SWEEP_INTERVAL":  "1m",
	"TIME_BUCKETS":             entities.DefaultBucketSchedule.String(),
	"OTEL_SERVICE_NAME":        "triage-dispatch",
	"OTEL_SERVICE_VERSION":     "1.0.0",
	"OTEL_ENDPOINT":            "",
	"OTEL_ENABLED":             false,
}

// Load loads configuration from the environment and an optional env file,
// .env unless CONFIG_FILE names another
func Load() (*Config, error) {
	path := os.Getenv("CONFIG_FILE")
	if path == "" {
		path = ".env"
	}
	return loadFrom(path)
}

func loadFrom(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("env")
	v.AutomaticEnv()

	for key, value := range defaults {
		v.SetDefault(key, value)
		_ = v.BindEnv(key)
	}

	if err := v.ReadInConfig(); err != nil && !isNotFound(err) {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	buckets, err := entities.ParseBucketSchedule(v.GetString("TIME_BUCKETS"))
	if err != nil {
		return nil, fmt.Errorf("TIME_BUCKETS: %w", err)
	}

	cfg := &Config{
		App: AppConfig{
			Name: v.GetString("APP_NAME"),
			Env:  v.GetString("APP_ENV"),
		},
		Server: ServerConfig{
			Host:           v.GetString("SERVER_HOST"),
			Port:           v.GetInt("SERVER_PORT"),
			AllowedOrigins: splitList(v.GetString("CORS_ALLOWED_ORIGINS")),
		},
		Store: StoreConfig{
			Driver: strings.ToLower(v.GetString("STORE_DRIVER")),
		},
		Database: DatabaseConfig{
			Host:     v.GetString("DB_HOST"),
			Port:     v.GetInt("DB_PORT"),
			User:     v.GetString("DB_USER"),
			Password: v.GetString("DB_PASSWORD"),
			Database: v.GetString("DB_NAME"),
			SSLMode:  v.GetString("DB_SSLMODE"),
		},
		Mongo: MongoConfig{
			URI:      v.GetString("MONGO_URI"),
			Database: v.GetString("MONGO_DATABASE"),
		},
		Redis: RedisConfig{
			Enabled:  v.GetBool("REDIS_ENABLED"),
			Host:     v.GetString("REDIS_HOST"),
			Port:     v.GetInt("REDIS_PORT"),
			Password: v.GetString("REDIS_PASSWORD"),
			DB:       v.GetInt("REDIS_DB"),
		},
		Classifier: ClassifierConfig{
			URL:      v.GetString("CLASSIFIER_URL"),
			Timeout:  v.GetDuration("CLASSIFIER_TIMEOUT"),
			CacheTTL: v.GetDuration("CLASSIFIER_CACHE_TTL"),
		},
		Dispatch: DispatchConfig{
			CapacityPerDay:  v.GetInt("BOOKING_CAPACITY_PER_DAY"),
			EnforceCapacity: v.GetBool("BOOKING_ENFORCE_CAPACITY"),
			SessionTTL:      v.GetDuration("DISPATCH_SESSION_TTL"),
			SweepInterval:   v.GetDuration("DISPATCH_SWEEP_INTERVAL"),
			TimeBuckets:     buckets,
		},
		OTEL: OTELConfig{
			ServiceName:    v.GetString("OTEL_SERVICE_NAME"),
			ServiceVersion: v.GetString("OTEL_SERVICE_VERSION"),
			Endpoint:       v.GetString("OTEL_ENDPOINT"),
			Enabled:        v.GetBool("OTEL_ENABLED"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that the configuration can run
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case StoreDriverMemory, StoreDriverMongo, StoreDriverPostgres:
	default:
		return fmt.Errorf("STORE_DRIVER must be %q, %q or %q, got %q",
			StoreDriverMemory, StoreDriverMongo, StoreDriverPostgres, c.Store.Driver)
	}
	if c.Dispatch.CapacityPerDay <= 0 {
		return fmt.Errorf("BOOKING_CAPACITY_PER_DAY must be positive, got %d", c.Dispatch.CapacityPerDay)
	}
	if c.Dispatch.SessionTTL <= 0 {
		return fmt.Errorf("DISPATCH_SESSION_TTL must be positive")
	}
	if c.Dispatch.SweepInterval <= 0 {
		return fmt.Errorf("DISPATCH_SWEEP_INTERVAL must be positive")
	}
	return nil
}

func isNotFound(err error) bool {
	var notFound viper.ConfigFileNotFoundError
	return errors.As(err, &notFound) || errors.Is(err, fs.ErrNotExist)
}

// splitList parses a comma-separated setting, dropping blank entries
func splitList(raw string) []string {
	var out []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// IsDev reports whether the service runs in development mode
func (c *Config) IsDev() bool {
	return c.App.Env == "development"
}

// DatabaseDSN returns the PostgreSQL connection string
func (c *DatabaseConfig) DatabaseDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// RedisAddr returns the Redis address
func (c *RedisConfig) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
