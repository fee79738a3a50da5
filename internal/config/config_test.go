package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"PORT", "STORE_BACKEND", "BADGER_PATH", "BADGER_IN_MEMORY", "REDIS_ADDR",
		"REDIS_DB", "PRESENCE_TTL_SECONDS", "AUTOSAVE_QUIET_MS", "AUTOSAVE_TIMEOUT_MS", "MYSQL_PORT"} {
		t.Setenv(key, "")
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if cfg.Port != "8080" {
		t.Errorf("Expected port to be '8080', got '%s'", cfg.Port)
	}
	if cfg.StoreBackend != BackendBadger {
		t.Errorf("Expected backend to be '%s', got '%s'", BackendBadger, cfg.StoreBackend)
	}
	if cfg.BadgerPath != "./data/badger" {
		t.Errorf("Expected badger path to be './data/badger', got '%s'", cfg.BadgerPath)
	}
	if cfg.AutosaveQuiet != 2000*time.Millisecond {
		t.Errorf("Expected quiet period to be 2s, got %s", cfg.AutosaveQuiet)
	}
	if cfg.AutosaveTimeout != 10*time.Second {
		t.Errorf("Expected save timeout to be 10s, got %s", cfg.AutosaveTimeout)
	}
	if cfg.PresenceTTL != 60*time.Second {
		t.Errorf("Expected presence TTL to be 60s, got %s", cfg.PresenceTTL)
	}
	if cfg.MySQLPort != "3306" {
		t.Errorf("Expected MySQL port to be '3306', got '%s'", cfg.MySQLPort)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Expected defaults to validate, got %v", err)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("STORE_BACKEND", "SQLite")
	t.Setenv("SQLITE_PATH", "/tmp/designer.db")
	t.Setenv("AUTOSAVE_QUIET_MS", "500")
	t.Setenv("BADGER_IN_MEMORY", "true")
	t.Setenv("REDIS_DB", "3")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if cfg.StoreBackend != BackendSQLite {
		t.Errorf("Expected backend to be '%s', got '%s'", BackendSQLite, cfg.StoreBackend)
	}
	if cfg.SQLitePath != "/tmp/designer.db" {
		t.Errorf("Expected sqlite path to be '/tmp/designer.db', got '%s'", cfg.SQLitePath)
	}
	if cfg.AutosaveQuiet != 500*time.Millisecond {
		t.Errorf("Expected quiet period to be 500ms, got %s", cfg.AutosaveQuiet)
	}
	if !cfg.BadgerInMemory {
		t.Error("Expected badger to be in memory")
	}
	if cfg.RedisDB != 3 {
		t.Errorf("Expected redis db to be 3, got %d", cfg.RedisDB)
	}
}

func TestLoadRejectsInvalidNumbers(t *testing.T) {
	t.Setenv("AUTOSAVE_QUIET_MS", "soon")
	if _, err := Load(); err == nil {
		t.Error("Expected error for a non-numeric AUTOSAVE_QUIET_MS")
	}
}

func TestValidate(t *testing.T) {
	base := Config{
		Port:            "8080",
		StoreBackend:    BackendBadger,
		BadgerPath:      "./data",
		MySQLPort:       "3306",
		PresenceTTL:     time.Minute,
		AutosaveQuiet:   2 * time.Second,
		AutosaveTimeout: 10 * time.Second,
	}

	tests := []struct {
		name    string
		modify  func(c *Config)
		wantErr bool
	}{
		{"badger default", func(c *Config) {}, false},
		{"badger without path", func(c *Config) { c.BadgerPath = "" }, true},
		{"badger in memory without path", func(c *Config) { c.BadgerPath = ""; c.BadgerInMemory = true }, false},
		{"mysql without database", func(c *Config) { c.StoreBackend = BackendMySQL; c.MySQLHost = "h"; c.MySQLUser = "u" }, true},
		{"mysql complete", func(c *Config) {
			c.StoreBackend = BackendMySQL
			c.MySQLHost = "h"
			c.MySQLUser = "u"
			c.MySQLDatabase = "d"
		}, false},
		{"mysql bad port", func(c *Config) {
			c.StoreBackend = BackendMySQL
			c.MySQLHost = "h"
			c.MySQLUser = "u"
			c.MySQLDatabase = "d"
			c.MySQLPort = "x"
		}, true},
		{"postgres without url", func(c *Config) { c.StoreBackend = BackendPostgres }, true},
		{"postgres with url", func(c *Config) { c.StoreBackend = BackendPostgres; c.PostgresURL = "postgres://localhost/db" }, false},
		{"sqlite without path", func(c *Config) { c.StoreBackend = BackendSQLite; c.SQLitePath = "" }, true},
		{"unknown backend", func(c *Config) { c.StoreBackend = "mongo" }, true},
		{"bad port", func(c *Config) { c.Port = "http" }, true},
		{"zero quiet period", func(c *Config) { c.AutosaveQuiet = 0 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base
			tt.modify(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Expected error: %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestRequiredVariables(t *testing.T) {
	if vars := RequiredVariables("mysql"); len(vars) != 3 {
		t.Errorf("Expected 3 required variables for mysql, got %v", vars)
	}
	if vars := RequiredVariables("badger"); len(vars) != 0 {
		t.Errorf("Expected no required variables for badger, got %v", vars)
	}
}
