package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Supported STORE_BACKEND values
const (
	BackendBadger   = "badger"
	BackendMySQL    = "mysql"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
)

// Config holds the runtime settings read from the environment
type Config struct {
	Port string

	StoreBackend   string
	BadgerPath     string
	BadgerInMemory bool

	MySQLHost     string
	MySQLUser     string
	MySQLPassword string
	MySQLDatabase string
	MySQLPort     string

	SQLitePath  string
	PostgresURL string

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	PresenceTTL   time.Duration

	AutosaveQuiet   time.Duration
	AutosaveTimeout time.Duration

	LogLevel string
}

// Load reads the configuration from environment variables, applying defaults
func Load() (*Config, error) {
	cfg := &Config{
		Port:          getEnvOrDefault("PORT", "8080"),
		StoreBackend:  strings.ToLower(getEnvOrDefault("STORE_BACKEND", BackendBadger)),
		BadgerPath:    getEnvOrDefault("BADGER_PATH", "./data/badger"),
		MySQLHost:     getEnvOrDefault("MYSQL_HOST", "localhost"),
		MySQLUser:     getEnvOrDefault("MYSQL_USER", "root"),
		MySQLPassword: os.Getenv("MYSQL_PASSWORD"),
		MySQLDatabase: os.Getenv("MYSQL_DATABASE"),
		MySQLPort:     getEnvOrDefault("MYSQL_PORT", "3306"),
		SQLitePath:    getEnvOrDefault("SQLITE_PATH", "./data/schemas.db"),
		PostgresURL:   os.Getenv("POSTGRES_URL"),
		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		LogLevel:      os.Getenv("LOG_LEVEL"),
	}

	var err error
	if cfg.BadgerInMemory, err = getEnvBool("BADGER_IN_MEMORY", false); err != nil {
		return nil, err
	}
	if cfg.RedisDB, err = getEnvInt("REDIS_DB", 0); err != nil {
		return nil, err
	}

	presence, err := getEnvInt("PRESENCE_TTL_SECONDS", 60)
	if err != nil {
		return nil, err
	}
	cfg.PresenceTTL = time.Duration(presence) * time.Second

	quiet, err := getEnvInt("AUTOSAVE_QUIET_MS", 2000)
	if err != nil {
		return nil, err
	}
	cfg.AutosaveQuiet = time.Duration(quiet) * time.Millisecond

	timeout, err := getEnvInt("AUTOSAVE_TIMEOUT_MS", 10000)
	if err != nil {
		return nil, err
	}
	cfg.AutosaveTimeout = time.Duration(timeout) * time.Millisecond

	return cfg, nil
}

// Validate checks that the variables the selected backend needs are present
func (c *Config) Validate() error {
	if _, err := strconv.Atoi(c.Port); err != nil {
		return fmt.Errorf("invalid PORT %q", c.Port)
	}
	if c.AutosaveQuiet <= 0 {
		return fmt.Errorf("AUTOSAVE_QUIET_MS must be positive")
	}
	if c.AutosaveTimeout <= 0 {
		return fmt.Errorf("AUTOSAVE_TIMEOUT_MS must be positive")
	}
	if c.PresenceTTL <= 0 {
		return fmt.Errorf("PRESENCE_TTL_SECONDS must be positive")
	}

	switch c.StoreBackend {
	case BackendBadger:
		if !c.BadgerInMemory && c.BadgerPath == "" {
			return fmt.Errorf("BADGER_PATH is required unless BADGER_IN_MEMORY is set")
		}
	case BackendMySQL:
		if c.MySQLHost == "" || c.MySQLUser == "" || c.MySQLDatabase == "" {
			return fmt.Errorf("MYSQL_HOST, MYSQL_USER and MYSQL_DATABASE are required for the mysql backend")
		}
		if _, err := strconv.Atoi(c.MySQLPort); err != nil {
			return fmt.Errorf("invalid MYSQL_PORT %q", c.MySQLPort)
		}
	case BackendSQLite:
		if c.SQLitePath == "" {
			return fmt.Errorf("SQLITE_PATH is required for the sqlite backend")
		}
	case BackendPostgres:
		if c.PostgresURL == "" {
			return fmt.Errorf("POSTGRES_URL is required for the postgres backend")
		}
	default:
		return fmt.Errorf("unsupported STORE_BACKEND %q", c.StoreBackend)
	}
	return nil
}

// RequiredVariables lists the environment variables the backend cannot run without
func RequiredVariables(backend string) []string {
	switch strings.ToLower(backend) {
	case BackendMySQL:
		return []string{"MYSQL_HOST", "MYSQL_USER", "MYSQL_DATABASE"}
	case BackendPostgres:
		return []string{"POSTGRES_URL"}
	default:
		return nil
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	return n, nil
}

func getEnvBool(key string, defaultValue bool) (bool, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	return b, nil
}
