// Package config loads process configuration from the environment, reading
// a .env file first when one exists.
package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config is loaded once at startup and passed by reference.
type Config struct {
	Server    ServerConfig
	Mongo     MongoConfig
	Auth      AuthConfig
	MQTT      MQTTConfig
	Receipts  ReceiptsConfig
	Log       LogConfig
	Schedule  ScheduleConfig
	Templates string
}

type ServerConfig struct {
	Port               string
	ReadTimeout        time.Duration
	WriteTimeout       time.Duration
	ShutdownTimeout    time.Duration
	RateLimitPerSec    float64
	RateLimitBurst     int
	CORSAllowedOrigins []string
}

type MongoConfig struct {
	URI      string
	Database string
	Timeout  time.Duration
	// Memory runs on the in-process store instead of MongoDB.
	Memory bool
}

type AuthConfig struct {
	JWTSecret string
	TokenTTL  time.Duration
}

type MQTTConfig struct {
	Enabled     bool
	BrokerURL   string
	ClientID    string
	Username    string
	Password    string
	TopicPrefix string
}

type ReceiptsConfig struct {
	Enabled   bool
	Bucket    string
	Region    string
	Endpoint  string
	PublicURL string
	MaxBytes  int64
}

type LogConfig struct {
	Level  string
	Format string
}

type ScheduleConfig struct {
	// DashboardRefresh is how often live dashboards are re-evaluated so
	// time-based statuses advance without a data change.
	DashboardRefresh time.Duration
	CostTopN         int
}

// Load reads .env (if present) and the environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:               getEnv("PORT", "8080"),
			ReadTimeout:        getEnvAsDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:       getEnvAsDuration("SERVER_WRITE_TIMEOUT", 15*time.Second),
			ShutdownTimeout:    getEnvAsDuration("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
			RateLimitPerSec:    getEnvAsFloat64("RATE_LIMIT_PER_SEC", 10),
			RateLimitBurst:     getEnvAsInt("RATE_LIMIT_BURST", 20),
			CORSAllowedOrigins: getEnvAsSlice("CORS_ALLOWED_ORIGINS", []string{"*"}),
		},
		Mongo: MongoConfig{
			URI:      getEnv("MONGO_URI", "mongodb://localhost:27017/?replicaSet=rs0"),
			Database: getEnv("MONGO_DB", "fleet_maintenance"),
			Timeout:  getEnvAsDuration("MONGO_TIMEOUT", 10*time.Second),
			Memory:   getEnvAsBool("STORE_MEMORY", false),
		},
		Auth: AuthConfig{
			JWTSecret: getEnv("JWT_SECRET", ""),
			TokenTTL:  getEnvAsDuration("JWT_EXPIRY", 24*time.Hour),
		},
		MQTT: MQTTConfig{
			Enabled:     getEnvAsBool("MQTT_ENABLED", false),
			BrokerURL:   getEnv("MQTT_BROKER", "tcp://localhost:1883"),
			ClientID:    getEnv("MQTT_CLIENT_ID", "fleet-maintenance"),
			Username:    getEnv("MQTT_USERNAME", ""),
			Password:    getEnv("MQTT_PASSWORD", ""),
			TopicPrefix: getEnv("MQTT_TOPIC_PREFIX", "fleet"),
		},
		Receipts: ReceiptsConfig{
			Enabled:   getEnvAsBool("RECEIPTS_ENABLED", false),
			Bucket:    getEnv("RECEIPTS_BUCKET", ""),
			Region:    getEnv("AWS_REGION", "us-east-1"),
			Endpoint:  getEnv("RECEIPTS_ENDPOINT", ""),
			PublicURL: getEnv("RECEIPTS_PUBLIC_URL", ""),
			MaxBytes:  int64(getEnvAsInt("RECEIPTS_MAX_BYTES", 10<<20)),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		Schedule: ScheduleConfig{
			DashboardRefresh: getEnvAsDuration("DASHBOARD_REFRESH", time.Minute),
			CostTopN:         getEnvAsInt("COST_TOP_CATEGORIES", 5),
		},
		Templates: getEnv("TEMPLATES_FILE", ""),
	}

	if cfg.Auth.JWTSecret == "" {
		return nil, errors.New("JWT_SECRET is required")
	}
	if cfg.Receipts.Enabled && cfg.Receipts.Bucket == "" {
		return nil, errors.New("RECEIPTS_BUCKET is required when receipts are enabled")
	}
	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvAsFloat64(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvAsSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		return parts
	}
	return defaultValue
}
