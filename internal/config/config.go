package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/smallbiznis/matchhub/pkg/db"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	HTTPAddr    string

	OTLPEndpoint string

	DB        db.Config
	Redis     RedisConfig
	Scheduler SchedulerConfig

	PolicyFilePath string

	// AdminExternalIDs always resolve to the admin role.
	AdminExternalIDs []string
}

// RedisConfig is optional; an empty Addr disables the cross-instance sweep lock.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

func (c RedisConfig) Enabled() bool {
	return strings.TrimSpace(c.Addr) != ""
}

type SchedulerConfig struct {
	Enabled    bool
	Interval   time.Duration
	JobTimeout time.Duration
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		AppName:      getenv("APP_SERVICE", "matchhub"),
		AppVersion:   getenv("APP_VERSION", "0.1.0"),
		Environment:  getenv("ENVIRONMENT", "development"),
		HTTPAddr:     getenv("HTTP_ADDR", ":8080"),
		OTLPEndpoint: getenv("OTLP_ENDPOINT", "localhost:4317"),
		DB: db.Config{
			Type:           getenv("DATABASE_TYPE", "sqlite"),
			DSN:            strings.TrimSpace(getenv("DATABASE_URL", "")),
			Path:           getenv("DATABASE_PATH", "matchhub.db"),
			Host:           getenv("DATABASE_HOST", "localhost"),
			Port:           getenv("DATABASE_PORT", "5432"),
			Name:           getenv("DATABASE_NAME", "matchhub"),
			User:           getenv("DATABASE_USER", "postgres"),
			Password:       getenv("DATABASE_PASSWORD", ""),
			SSLMode:        getenv("DATABASE_SSLMODE", "disable"),
			PoolMin:        int32(getenvInt64("DATABASE_POOL_MIN", 5)),
			PoolMax:        int32(getenvInt64("DATABASE_POOL_MAX", 20)),
			AcquireTimeout: time.Duration(getenvInt64("DATABASE_ACQUIRE_TIMEOUT_MS", 3000)) * time.Millisecond,
		},
		Redis: RedisConfig{
			Addr:     strings.TrimSpace(getenv("REDIS_ADDR", "")),
			Password: getenv("REDIS_PASSWORD", ""),
			DB:       int(getenvInt64("REDIS_DB", 0)),
		},
		Scheduler: SchedulerConfig{
			Enabled:    getenvBool("SCHEDULER_ENABLED", true),
			Interval:   getenvDuration("SCHEDULER_INTERVAL", time.Hour),
			JobTimeout: getenvDuration("SCHEDULER_JOB_TIMEOUT", 2*time.Minute),
		},
		PolicyFilePath:   strings.TrimSpace(getenv("POLICY_FILE_PATH", "")),
		AdminExternalIDs: getenvList("ADMIN_EXTERNAL_IDS"),
	}
}

func getenvList(key string) []string {
	raw := strings.Split(os.Getenv(key), ",")
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
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

func getenvDuration(key string, def time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := time.ParseDuration(value)
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}
