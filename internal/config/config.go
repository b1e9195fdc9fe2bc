package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	StoreDriverFile     = "file"
	StoreDriverMySQL    = "mysql"
	StoreDriverPostgres = "postgres"
)

type Config struct {
	StoreDriver string
	DataDir     string

	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string
	DBLogLevel string

	RedisHost     string
	RedisPort     string
	SessionSecret string
	GinMode       string
	HTTPAddr      string

	Sync SyncConfig
	Log  LogConfig
}

// SyncConfig controls the background reconciliation loop.
type SyncConfig struct {
	Enabled         bool
	Interval        time.Duration
	Debounce        time.Duration
	StorageDebounce time.Duration
	Debug           bool
}

// LogConfig controls logrus output and lumberjack rotation.
type LogConfig struct {
	Level      string
	Format     string
	Output     string
	Path       string
	File       string
	MaxSize    int
	MaxBackups int
	MaxAge     int
	Compress   bool
}

// Load reads configuration from the environment. A .env file in the working
// directory is loaded first when present; real environment variables win.
func Load() *Config {
	_ = godotenv.Load()

	env := getEnv("GO_ENV", "development")
	defaultLevel := "info"
	if env == "development" {
		defaultLevel = "debug"
	}

	return &Config{
		StoreDriver: strings.ToLower(getEnv("STORE_DRIVER", StoreDriverFile)),
		DataDir:     getEnv("DATA_DIR", "./data"),

		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnv("DB_PORT", "3306"),
		DBUser:     getEnv("DB_USER", "syncuser"),
		DBPassword: getEnv("DB_PASSWORD", "syncpassword"),
		DBName:     getEnv("DB_NAME", "classroom_sync"),
		DBSSLMode:  getEnv("DB_SSLMODE", "disable"),
		DBLogLevel: getEnv("DB_LOG_LEVEL", "warn"),

		RedisHost:     getEnv("REDIS_HOST", "localhost"),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		SessionSecret: getEnv("SESSION_SECRET", "default-secret-key-change-me"),
		GinMode:       getEnv("GIN_MODE", "debug"),
		HTTPAddr:      getEnv("HTTP_ADDR", ":8080"),

		Sync: SyncConfig{
			Enabled:         getEnvBool("SYNC_ENABLED", true),
			Interval:        getEnvMillis("SYNC_INTERVAL_MS", 60000),
			Debounce:        getEnvMillis("SYNC_DEBOUNCE_MS", 1000),
			StorageDebounce: getEnvMillis("SYNC_STORAGE_DEBOUNCE_MS", 2000),
			Debug:           getEnvBool("SYNC_DEBUG", false),
		},

		Log: LogConfig{
			Level:      strings.ToLower(getEnv("LOG_LEVEL", defaultLevel)),
			Format:     strings.ToLower(getEnv("LOG_FORMAT", "text")),
			Output:     strings.ToLower(getEnv("LOG_OUTPUT", "stdout")),
			Path:       getEnv("LOG_PATH", "./logs"),
			File:       getEnv("LOG_FILE", "sync.log"),
			MaxSize:    getEnvInt("LOG_MAX_SIZE", 100),
			MaxBackups: getEnvInt("LOG_MAX_BACKUPS", 7),
			MaxAge:     getEnvInt("LOG_MAX_AGE", 7),
			Compress:   getEnvBool("LOG_COMPRESS", true),
		},
	}
}

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvInt(key string, defaultValue int) int {
	value, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvBool(key string, defaultValue bool) bool {
	value, err := strconv.ParseBool(os.Getenv(key))
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvMillis reads a positive millisecond count as a duration.
func getEnvMillis(key string, defaultMillis int) time.Duration {
	ms := getEnvInt(key, defaultMillis)
	if ms <= 0 {
		ms = defaultMillis
	}
	return time.Duration(ms) * time.Millisecond
}
