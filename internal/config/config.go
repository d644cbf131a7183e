package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	LogLevel    string
	HTTPAddr    string

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int

	Billing   BillingConfig
	Alerting  AlertingConfig
	Liveness  LivenessConfig
	RateLimit RateLimitConfig
}

// BillingConfig carries the fixed-point water rate. Amounts are micro
// currency units so cost derivation never touches binary floats.
type BillingConfig struct {
	RatePerLiterMicros int64
}

// AlertingConfig carries the thresholds the alert engine evaluates against.
type AlertingConfig struct {
	LeakThresholdLitersPerHour          float64
	ExcessiveUsageThresholdLitersPerDay float64
	EvalTimeout                         time.Duration
}

// LivenessConfig controls the offline-device sweeper.
type LivenessConfig struct {
	Enabled      bool
	OfflineAfter time.Duration
	PollInterval time.Duration
}

// RateLimitConfig controls the redis-backed ingest limiter.
// The limiter stays disabled unless a redis address is configured.
type RateLimitConfig struct {
	Enabled       bool
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	DeviceRate    float64
	DeviceBurst   int
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		AppName:     getenv("APP_SERVICE", "aquameter"),
		AppVersion:  getenv("APP_VERSION", "0.1.0"),
		Environment: getenv("ENVIRONMENT", "development"),
		LogLevel:    getenv("LOG_LEVEL", "info"),
		HTTPAddr:    getenv("HTTP_ADDR", ":8080"),

		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "aquameter"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", "postgres"),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 10),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 50),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 3600),

		Billing: BillingConfig{
			RatePerLiterMicros: getenvInt64("WATER_RATE_PER_LITER_MICROS", 2000),
		},
		Alerting: AlertingConfig{
			LeakThresholdLitersPerHour:          getenvFloat("LEAK_THRESHOLD_LITERS_PER_HOUR", 10),
			ExcessiveUsageThresholdLitersPerDay: getenvFloat("EXCESSIVE_USAGE_THRESHOLD_LITERS_PER_DAY", 1000),
			EvalTimeout:                         getenvDuration("ALERT_EVAL_TIMEOUT", 2*time.Second),
		},
		Liveness: LivenessConfig{
			Enabled:      getenvBool("LIVENESS_SWEEP_ENABLED", true),
			OfflineAfter: getenvDuration("LIVENESS_OFFLINE_AFTER", time.Hour),
			PollInterval: getenvDuration("LIVENESS_POLL_INTERVAL", 5*time.Minute),
		},
		RateLimit: RateLimitConfig{
			Enabled:       getenvBool("RATE_LIMIT_ENABLED", false),
			RedisAddr:     getenv("RATE_LIMIT_REDIS_ADDR", ""),
			RedisPassword: getenv("RATE_LIMIT_REDIS_PASSWORD", ""),
			RedisDB:       getenvInt("RATE_LIMIT_REDIS_DB", 0),
			DeviceRate:    getenvFloat("RATE_LIMIT_DEVICE_RATE", 2),
			DeviceBurst:   getenvInt("RATE_LIMIT_DEVICE_BURST", 10),
		},
	}
}

func getenv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if value == "" {
		return def
	}
	switch value {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}

func getenvInt(key string, def int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}

func getenvInt64(key string, def int64) int64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return def
	}
	return parsed
}

func getenvFloat(key string, def float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return def
	}
	return parsed
}

func getenvDuration(key string, def time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return def
	}
	return parsed
}
