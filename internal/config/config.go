// Package config loads runtime settings from the environment, optionally
// preloaded from .env files.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

const (
	StorageMemory   = "memory"
	StorageSQLite   = "sqlite"
	StoragePostgres = "postgres"
	StorageRedis    = "redis"
	StorageMongo    = "mongo"
)

type Postgres struct {
	Host     string
	Port     int    `validate:"min=0,max=65535"`
	User     string
	Password string
	DBName   string
	SSLMode  string `validate:"omitempty,oneof=disable require verify-ca verify-full"`
}

type Config struct {
	// LogMode accepts the same names logger.New does.
	LogMode        string        `validate:"oneof=dev development prod production"`
	APIBaseURL     string        `validate:"required,url"`
	RequestTimeout time.Duration `validate:"gt=0"`
	MessageTTL     time.Duration `validate:"gt=0"`

	// KeepLateAdditions leaves lines added during a submission in the cart.
	KeepLateAdditions bool

	BreakerMaxFailures int           `validate:"min=1"`
	BreakerOpenTimeout time.Duration `validate:"gt=0"`

	Storage       string `validate:"oneof=memory sqlite postgres redis mongo"`
	Profile       string `validate:"required,max=64"`
	SQLitePath    string `validate:"required_if=Storage sqlite"`
	Postgres      Postgres
	RedisAddr     string `validate:"required_if=Storage redis"`
	RedisPassword string
	RedisDB       int    `validate:"min=0"`
	MongoURI      string `validate:"required_if=Storage mongo"`
	MongoDatabase string `validate:"required_if=Storage mongo"`

	KafkaBrokers []string
	KafkaTopic   string
}

// Load reads .env files (missing files are skipped; variables already set in
// the process win), then the environment, and validates the result.
func Load(files ...string) (*Config, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load %s: %w", f, err)
		}
	}

	var errs []error
	cfg := &Config{
		LogMode:            strings.ToLower(getEnv("LOG_MODE", "development")),
		APIBaseURL:         getEnv("STOREFRONT_API_URL", "http://localhost:8080/api"),
		RequestTimeout:     getDuration("STOREFRONT_REQUEST_TIMEOUT", 10*time.Second, &errs),
		MessageTTL:         getDuration("STOREFRONT_MESSAGE_TTL", 5*time.Second, &errs),
		KeepLateAdditions:  getBool("STOREFRONT_KEEP_LATE_ADDITIONS", false, &errs),
		BreakerMaxFailures: getInt("STOREFRONT_BREAKER_MAX_FAILURES", 5, &errs),
		BreakerOpenTimeout: getDuration("STOREFRONT_BREAKER_OPEN_TIMEOUT", 30*time.Second, &errs),

		Storage:    strings.ToLower(getEnv("STOREFRONT_STORAGE", StorageSQLite)),
		Profile:    getEnv("STOREFRONT_PROFILE", "default"),
		SQLitePath: getEnv("STOREFRONT_SQLITE_PATH", "storefront.db"),
		Postgres: Postgres{
			Host:     getEnv("POSTGRES_HOST", ""),
			Port:     getInt("POSTGRES_PORT", 5432, &errs),
			User:     getEnv("POSTGRES_USER", "postgres"),
			Password: getEnv("POSTGRES_PASSWORD", ""),
			DBName:   getEnv("POSTGRES_DB", "storefront"),
			SSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),
		},
		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getInt("REDIS_DB", 0, &errs),
		MongoURI:      getEnv("MONGO_URI", ""),
		MongoDatabase: getEnv("MONGO_DB", "storefront"),

		KafkaBrokers: getList("KAFKA_BROKERS"),
		KafkaTopic:   getEnv("KAFKA_TOPIC", "storefront-orders"),
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

var validate = validator.New()

func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if c.Storage == StoragePostgres && c.Postgres.Host == "" {
		return errors.New("invalid configuration: POSTGRES_HOST is required for postgres storage")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getInt(key string, defaultValue int, errs *[]error) int {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return defaultValue
	}
	return v
}

func getBool(key string, defaultValue bool, errs *[]error) bool {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return defaultValue
	}
	return v
}

func getDuration(key string, defaultValue time.Duration, errs *[]error) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return defaultValue
	}
	return v
}

func getList(key string) []string {
	raw := os.Getenv(key)
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
