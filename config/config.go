package config

import (
	"fmt"
	"os"
	"path/filepath"

	"leasedb/internal/errors"
	"leasedb/internal/validation"
)

// Config is the process bootstrap configuration: where the journal lives
// on disk and which port the read-only introspection server listens on.
// Topology, subnets, pools, and classes are never configured here — they
// are built programmatically by a config-language parser external to this
// module.
type Config struct {
	DB    DBConfig
	HTTP  HTTPConfig
	Debug bool
}

type DBConfig struct {
	DBPath string // directory holding the bbolt file
	DBFile string // bbolt file name
}

type HTTPConfig struct {
	Port string // introspection HTTP server port
}

// LoadConfig loads and validates configuration from environment variables.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		DB: DBConfig{
			DBPath: getEnv("DB_PATH", "./"),
			DBFile: getEnv("DB_FILE", "leasedb.db"),
		},
		HTTP: HTTPConfig{
			Port: getEnv("HTTP_PORT", "8080"),
		},
		Debug: getEnv("DEBUG", "") != "",
	}

	if err := cfg.Validate(); err != nil {
		return nil, errors.NewConfigurationError("validate_config", err)
	}

	return cfg, nil
}

// Defaults holds the default configuration values for package-level access.
var Defaults Config

// Validate validates the configuration values.
func (c *Config) Validate() error {
	if err := validation.ValidateRequired("db_path", c.DB.DBPath); err != nil {
		return err
	}
	if err := validation.ValidateRequired("db_file", c.DB.DBFile); err != nil {
		return err
	}
	if err := validation.ValidatePort(c.HTTP.Port); err != nil {
		return err
	}
	return c.validateDirectories()
}

// validateDirectories ensures the database directory exists or can be created.
func (c *Config) validateDirectories() error {
	if _, err := os.Stat(c.DB.DBPath); os.IsNotExist(err) {
		if err := os.MkdirAll(c.DB.DBPath, 0755); err != nil {
			return fmt.Errorf("failed to create database directory (%s): %w", c.DB.DBPath, err)
		}
	}
	return nil
}

// GetDatabasePath returns the full path to the database file.
func (c *Config) GetDatabasePath() string {
	return filepath.Join(c.DB.DBPath, c.DB.DBFile)
}

// getEnv returns the value of the environment variable key if it exists,
// otherwise it returns the fallback value.
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

// init initializes the Defaults configuration for backward compatibility.
func init() {
	cfg, err := LoadConfig()
	if err != nil {
		Defaults = Config{
			DB: DBConfig{
				DBPath: "./",
				DBFile: "leasedb.db",
			},
			HTTP: HTTPConfig{
				Port: "8080",
			},
		}
		return
	}
	Defaults = *cfg
}
