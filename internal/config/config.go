package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"climacaribe/internal/models"
)

// WindowPresets are the supported trailing-window durations in minutes.
var WindowPresets = []int{5, 15, 30, 60, 180, 360, 1440}

// Config holds the full engine configuration
type Config struct {
	Database DatabaseConfig
	Redis    RedisConfig
	Kafka    KafkaConfig
	Server   ServerConfig
	Engine   EngineConfig
	Logging  LoggingConfig
}

// DatabaseConfig holds PostgreSQL connection settings
type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	Database        string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// RedisConfig holds the optional snapshot mirror settings
type RedisConfig struct {
	Enabled  bool
	Addr     string
	Password string
	DB       int
}

// KafkaConfig holds the optional anomaly event publisher settings
type KafkaConfig struct {
	Enabled        bool
	Brokers        []string
	TopicAnomalies string
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// EngineConfig holds the refresh and analysis parameters
type EngineConfig struct {
	WindowMinutes    int
	ZoneFilter       string // "", "coastal" or "interior"
	CoastalRegions   []string
	AnomalyThreshold float64
	RefreshInterval  time.Duration
	FailureBackoff   time.Duration
	FetchTimeout     time.Duration
	AlertLimit       int
}

// LoggingConfig holds logging settings
type LoggingConfig struct {
	Level string
}

// LoadConfig reads configuration from the environment, loading a .env file
// first if one is present.
func LoadConfig() (*Config, error) {
	// Ignore error if no .env file exists
	_ = godotenv.Load()

	cfg := &Config{
		Database: DatabaseConfig{
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            getEnvAsInt("DB_PORT", 5432),
			User:            getEnv("DB_USER", "climacaribe"),
			Password:        getEnv("DB_PASSWORD", ""),
			Database:        getEnv("DB_NAME", "climacaribe"),
			SSLMode:         getEnv("DB_SSLMODE", "require"),
			MaxOpenConns:    getEnvAsInt("DB_MAX_OPEN_CONNS", 10),
			MaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvAsDuration("DB_CONN_MAX_LIFETIME", 30*time.Minute),
			ConnMaxIdleTime: getEnvAsDuration("DB_CONN_MAX_IDLE_TIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			Enabled:  getEnvAsBool("REDIS_ENABLED", false),
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		Kafka: KafkaConfig{
			Enabled:        getEnvAsBool("KAFKA_ENABLED", false),
			Brokers:        strings.Split(getEnv("KAFKA_BROKERS", "localhost:9092"), ","),
			TopicAnomalies: getEnv("KAFKA_TOPIC_ANOMALIES", "climacaribe.anomalies"),
		},
		Server: ServerConfig{
			Host:         getEnv("SERVER_HOST", "0.0.0.0"),
			Port:         getEnvAsInt("SERVER_PORT", 8080),
			ReadTimeout:  getEnvAsDuration("SERVER_READ_TIMEOUT", 10*time.Second),
			WriteTimeout: getEnvAsDuration("SERVER_WRITE_TIMEOUT", 30*time.Second),
			IdleTimeout:  getEnvAsDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
		},
		Engine: EngineConfig{
			WindowMinutes:    getEnvAsInt("ENGINE_WINDOW_MINUTES", 60),
			ZoneFilter:       getEnv("ENGINE_ZONE_FILTER", ""),
			CoastalRegions:   splitNonEmpty(getEnv("ENGINE_COASTAL_REGIONS", "")),
			AnomalyThreshold: getEnvAsFloat("ENGINE_ANOMALY_THRESHOLD", 2.5),
			RefreshInterval:  getEnvAsDuration("ENGINE_REFRESH_INTERVAL", 30*time.Second),
			FailureBackoff:   getEnvAsDuration("ENGINE_FAILURE_BACKOFF", 5*time.Second),
			FetchTimeout:     getEnvAsDuration("ENGINE_FETCH_TIMEOUT", 10*time.Second),
			AlertLimit:       getEnvAsInt("ENGINE_ALERT_LIMIT", 10),
		},
		Logging: LoggingConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
	}

	return cfg, nil
}

// Validate rejects out-of-range engine parameters. Values are never clamped.
func (c *Config) Validate() error {
	if !isWindowPreset(c.Engine.WindowMinutes) {
		return &models.InvalidParameterError{
			Parameter: "ENGINE_WINDOW_MINUTES",
			Value:     strconv.Itoa(c.Engine.WindowMinutes),
			Message:   fmt.Sprintf("must be one of %v", WindowPresets),
		}
	}

	if c.Engine.AnomalyThreshold < 1.5 || c.Engine.AnomalyThreshold > 4.0 {
		return &models.InvalidParameterError{
			Parameter: "ENGINE_ANOMALY_THRESHOLD",
			Value:     fmt.Sprintf("%g", c.Engine.AnomalyThreshold),
			Message:   "z-score threshold must be between 1.5 and 4.0",
		}
	}

	switch c.Engine.ZoneFilter {
	case "", "coastal", "interior":
	default:
		return &models.InvalidParameterError{
			Parameter: "ENGINE_ZONE_FILTER",
			Value:     c.Engine.ZoneFilter,
			Message:   `must be empty, "coastal" or "interior"`,
		}
	}

	if c.Engine.RefreshInterval <= 0 {
		return &models.InvalidParameterError{
			Parameter: "ENGINE_REFRESH_INTERVAL",
			Value:     c.Engine.RefreshInterval.String(),
			Message:   "refresh interval must be positive",
		}
	}

	if c.Engine.AlertLimit <= 0 {
		return &models.InvalidParameterError{
			Parameter: "ENGINE_ALERT_LIMIT",
			Value:     strconv.Itoa(c.Engine.AlertLimit),
			Message:   "alert limit must be positive",
		}
	}

	if c.Database.Host == "" {
		return &models.InvalidParameterError{
			Parameter: "DB_HOST",
			Value:     "",
			Message:   "database host is required",
		}
	}

	return nil
}

// WindowDuration returns the configured trailing window length.
func (c *Config) WindowDuration() time.Duration {
	return time.Duration(c.Engine.WindowMinutes) * time.Minute
}

func isWindowPreset(minutes int) bool {
	for _, p := range WindowPresets {
		if p == minutes {
			return true
		}
	}
	return false
}

func splitNonEmpty(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value, err := strconv.Atoi(getEnv(key, "")); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value, err := strconv.ParseFloat(getEnv(key, ""), 64); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value, err := strconv.ParseBool(getEnv(key, "")); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value, err := time.ParseDuration(getEnv(key, "")); err == nil {
		return value
	}
	return defaultValue
}
