package db

import (
	"os"
	"strconv"
	"time"
)

// Drivers supported by Open.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

type PostgresConfig struct {
	Driver   string        `yaml:"driver"`
	Host     string        `yaml:"host"`
	Port     int           `yaml:"port"`
	User     string        `yaml:"user"`
	Password string        `yaml:"password"`
	DBName   string        `yaml:"name"`
	SSLMode  string        `yaml:"sslmode"`
	Path     string        `yaml:"path"` // sqlite file, ":memory:" allowed
	MaxOpen  int           `yaml:"max_open_conns"`
	MaxIdle  int           `yaml:"max_idle_conns"`
	Lifetime time.Duration `yaml:"-"`
}

// LoadPostgresConfig reads DB_* variables, keeping values from base when a
// variable is unset.
func LoadPostgresConfig(base PostgresConfig) (PostgresConfig, error) {
	cfg := base
	if v := os.Getenv("DB_DRIVER"); v != "" {
		cfg.Driver = v
	}
	if v := os.Getenv("DB_HOST"); v != "" {
		cfg.Host = v
	}
	if v := os.Getenv("DB_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return cfg, err
		}
		cfg.Port = port
	}
	if v := os.Getenv("DB_USER"); v != "" {
		cfg.User = v
	}
	if v := os.Getenv("DB_PASSWORD"); v != "" {
		cfg.Password = v
	}
	if v := os.Getenv("DB_NAME"); v != "" {
		cfg.DBName = v
	}
	if v := os.Getenv("DB_SSLMODE"); v != "" {
		cfg.SSLMode = v
	}
	if v := os.Getenv("DB_PATH"); v != "" {
		cfg.Path = v
	}
	applyDefaults(&cfg)
	return cfg, nil
}

func applyDefaults(cfg *PostgresConfig) {
	if cfg.Driver == "" {
		cfg.Driver = DriverPostgres
	}
	if cfg.Port == 0 {
		cfg.Port = 5432
	}
	if cfg.SSLMode == "" {
		cfg.SSLMode = "disable"
	}
	if cfg.MaxOpen <= 0 {
		cfg.MaxOpen = 20
	}
	if cfg.MaxIdle <= 0 {
		cfg.MaxIdle = 10
	}
	if cfg.Lifetime <= 0 {
		cfg.Lifetime = time.Hour
	}
}
