// Package config loads the BTM service configuration from YAML with
// environment overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
	"gopkg.in/yaml.v3"

	"github.com/Cheertaboi/bartering-trading-manager/internal/cache"
	"github.com/Cheertaboi/bartering-trading-manager/pkg/db"
	"github.com/Cheertaboi/bartering-trading-manager/pkg/logger"
)

// Roles a BTM process can run as.
const (
	RoleCore     = "core"
	RolePlatform = "platform"
)

// Duration wraps time.Duration to support YAML unmarshalling.
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses human readable duration strings.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value == nil {
		return nil
	}
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("duration must be string")
	}
	if value.Value == "" {
		d.Duration = 0
		return nil
	}
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", value.Value, err)
	}
	d.Duration = parsed
	return nil
}

type Config struct {
	Role          string              `yaml:"role"`
	PlatformID    string              `yaml:"platform_id"`
	Listen        string              `yaml:"listen"`
	Database      db.PostgresConfig   `yaml:"database"`
	Redis         cache.RedisConfig   `yaml:"redis"`
	Log           logger.Config       `yaml:"log"`
	Identity      IdentityConfig      `yaml:"identity"`
	Core          CoreConfig          `yaml:"core"`
	Signing       SigningConfig       `yaml:"signing"`
	Coupons       CouponsConfig       `yaml:"coupons"`
	Bartering     BarteringConfig     `yaml:"bartering"`
	Cleanup       CleanupConfig       `yaml:"cleanup"`
	WalletRefresh WalletRefreshConfig `yaml:"wallet_refresh"`
	Admin         AdminConfig         `yaml:"admin"`
	Registry      RegistryConfig      `yaml:"registry"`
}

type IdentityConfig struct {
	BaseURL     string   `yaml:"base_url"`
	APIKey      string   `yaml:"api_key"`
	Timeout     Duration `yaml:"timeout"`
	KeyCacheTTL Duration `yaml:"key_cache_ttl"`
}

// CoreConfig locates the Core registry (platform role only).
type CoreConfig struct {
	BaseURL string   `yaml:"base_url"`
	APIKey  string   `yaml:"api_key"`
	Timeout Duration `yaml:"timeout"`
}

// RegistryConfig lists the bearer keys platforms must present on the
// Core's /registry routes (core role only). Empty leaves them open.
type RegistryConfig struct {
	APIKeys []string `yaml:"api_keys"`
}

type SigningConfig struct {
	PrivateKeyPath string `yaml:"private_key_path"`
}

// CouponsConfig sets the budget of newly issued coupons.
type CouponsConfig struct {
	DiscreteUsages   int64    `yaml:"discrete_usages"`
	PeriodicValidity Duration `yaml:"periodic_validity"`
}

type BarteringConfig struct {
	TrustedPlatforms   []string `yaml:"trusted_platforms"`
	RateLimitPerMinute float64  `yaml:"rate_limit_per_minute"`
	RateLimitBurst     int      `yaml:"rate_limit_burst"`
	ProofTTL           Duration `yaml:"proof_ttl"`
	PeerTimeout        Duration `yaml:"peer_timeout"`
	TrustProxyHeaders  bool     `yaml:"trust_proxy_headers"`
}

// CleanupConfig drives the Core's sweep of consumed coupons.
type CleanupConfig struct {
	Interval  Duration `yaml:"interval"`
	Retention Duration `yaml:"retention"`
}

type WalletRefreshConfig struct {
	Interval Duration `yaml:"interval"`
	Workers  int      `yaml:"workers"`
}

// AdminConfig holds the owner credentials for revocation. PasswordHash is
// a bcrypt hash.
type AdminConfig struct {
	Username     string `yaml:"username"`
	PasswordHash string `yaml:"password_hash"`
}

// Load reads path (when non-empty), applies BTM_* and DB_* environment
// overrides, then the given overrides, defaults and validation.
func Load(path string, overrides ...func(*Config)) (Config, error) {
	cfg := Config{}
	if path != "" {
		file, err := os.Open(path)
		if err != nil {
			return cfg, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()
		if err := yaml.NewDecoder(file).Decode(&cfg); err != nil {
			return cfg, fmt.Errorf("decode config: %w", err)
		}
	}
	if err := applyEnv(&cfg); err != nil {
		return cfg, err
	}
	for _, o := range overrides {
		o(&cfg)
	}
	dbCfg, err := db.LoadPostgresConfig(cfg.Database)
	if err != nil {
		return cfg, fmt.Errorf("database env: %w", err)
	}
	cfg.Database = dbCfg
	applyDefaults(&cfg)
	if err := validateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	cfg.Role = getEnv("BTM_ROLE", cfg.Role)
	cfg.PlatformID = getEnv("BTM_PLATFORM_ID", cfg.PlatformID)
	cfg.Listen = getEnv("BTM_LISTEN", cfg.Listen)
	cfg.Redis.Addr = getEnv("BTM_REDIS_ADDR", cfg.Redis.Addr)
	cfg.Redis.Password = getEnv("BTM_REDIS_PASSWORD", cfg.Redis.Password)
	cfg.Log.Level = getEnv("BTM_LOG_LEVEL", cfg.Log.Level)
	cfg.Log.Format = getEnv("BTM_LOG_FORMAT", cfg.Log.Format)
	cfg.Log.Output = getEnv("BTM_LOG_OUTPUT", cfg.Log.Output)
	cfg.Identity.BaseURL = getEnv("BTM_IDENTITY_URL", cfg.Identity.BaseURL)
	cfg.Identity.APIKey = getEnv("BTM_IDENTITY_API_KEY", cfg.Identity.APIKey)
	cfg.Core.BaseURL = getEnv("BTM_CORE_URL", cfg.Core.BaseURL)
	cfg.Core.APIKey = getEnv("BTM_CORE_API_KEY", cfg.Core.APIKey)
	cfg.Registry.APIKeys = getEnvAsSlice("BTM_REGISTRY_API_KEYS", cfg.Registry.APIKeys)
	cfg.Signing.PrivateKeyPath = getEnv("BTM_SIGNING_KEY", cfg.Signing.PrivateKeyPath)
	cfg.Bartering.TrustedPlatforms = getEnvAsSlice("BTM_TRUSTED_PLATFORMS", cfg.Bartering.TrustedPlatforms)
	cfg.Admin.Username = getEnv("BTM_ADMIN_USERNAME", cfg.Admin.Username)
	cfg.Admin.PasswordHash = getEnv("BTM_ADMIN_PASSWORD_HASH", cfg.Admin.PasswordHash)

	var err error
	if cfg.Coupons.DiscreteUsages, err = getEnvAsInt("BTM_DISCRETE_USAGES", cfg.Coupons.DiscreteUsages); err != nil {
		return err
	}
	durations := []struct {
		key string
		dst *Duration
	}{
		{"BTM_PERIODIC_VALIDITY", &cfg.Coupons.PeriodicValidity},
		{"BTM_CLEANUP_INTERVAL", &cfg.Cleanup.Interval},
		{"BTM_CLEANUP_RETENTION", &cfg.Cleanup.Retention},
		{"BTM_WALLET_REFRESH_INTERVAL", &cfg.WalletRefresh.Interval},
	}
	for _, d := range durations {
		if d.dst.Duration, err = getEnvAsDuration(d.key, d.dst.Duration); err != nil {
			return err
		}
	}
	return nil
}

func applyDefaults(cfg *Config) {
	cfg.Role = strings.ToLower(strings.TrimSpace(cfg.Role))
	if cfg.Listen == "" {
		cfg.Listen = ":8080"
	}
	if cfg.Identity.Timeout.Duration <= 0 {
		cfg.Identity.Timeout.Duration = 10 * time.Second
	}
	if cfg.Identity.KeyCacheTTL.Duration <= 0 {
		cfg.Identity.KeyCacheTTL.Duration = 5 * time.Minute
	}
	if cfg.Core.Timeout.Duration <= 0 {
		cfg.Core.Timeout.Duration = 10 * time.Second
	}
	if cfg.Bartering.ProofTTL.Duration <= 0 {
		cfg.Bartering.ProofTTL.Duration = time.Minute
	}
	if cfg.Bartering.PeerTimeout.Duration <= 0 {
		cfg.Bartering.PeerTimeout.Duration = 15 * time.Second
	}
	if cfg.Bartering.RateLimitPerMinute == 0 {
		cfg.Bartering.RateLimitPerMinute = 120
	}
	if cfg.Bartering.RateLimitBurst <= 0 {
		cfg.Bartering.RateLimitBurst = 20
	}
	if cfg.Cleanup.Interval.Duration == 0 {
		cfg.Cleanup.Interval.Duration = time.Hour
	}
	if cfg.Cleanup.Retention.Duration <= 0 {
		cfg.Cleanup.Retention.Duration = 24 * time.Hour
	}
	if cfg.WalletRefresh.Interval.Duration == 0 {
		cfg.WalletRefresh.Interval.Duration = 10 * time.Minute
	}
	if cfg.WalletRefresh.Workers <= 0 {
		cfg.WalletRefresh.Workers = 4
	}
}

func validateConfig(cfg Config) error {
	switch cfg.Role {
	case RoleCore, RolePlatform:
	default:
		return fmt.Errorf("role must be %q or %q, got %q", RoleCore, RolePlatform, cfg.Role)
	}
	switch cfg.Database.Driver {
	case db.DriverPostgres:
	case db.DriverSQLite:
		if strings.TrimSpace(cfg.Database.Path) == "" {
			return fmt.Errorf("database path must be configured for sqlite")
		}
	default:
		return fmt.Errorf("unsupported database driver %q", cfg.Database.Driver)
	}
	if strings.TrimSpace(cfg.Identity.BaseURL) == "" {
		return fmt.Errorf("identity base_url must be configured")
	}
	if cfg.Admin.Username != "" {
		if _, err := bcrypt.Cost([]byte(cfg.Admin.PasswordHash)); err != nil {
			return fmt.Errorf("admin password_hash must be a bcrypt hash: %w", err)
		}
	}
	if cfg.Role == RoleCore {
		return nil
	}

	if strings.TrimSpace(cfg.PlatformID) == "" {
		return fmt.Errorf("platform_id must be configured")
	}
	if strings.TrimSpace(cfg.Core.BaseURL) == "" {
		return fmt.Errorf("core base_url must be configured")
	}
	if strings.TrimSpace(cfg.Signing.PrivateKeyPath) == "" {
		return fmt.Errorf("signing private_key_path must be configured")
	}
	if cfg.Coupons.DiscreteUsages <= 0 && cfg.Coupons.PeriodicValidity.Duration <= 0 {
		return fmt.Errorf("configure discrete_usages or periodic_validity")
	}
	for _, id := range cfg.Bartering.TrustedPlatforms {
		if id == cfg.PlatformID {
			return fmt.Errorf("trusted_platforms must not include this platform")
		}
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return fallback
}

func getEnvAsInt(key string, fallback int64) (int64, error) {
	v := getEnv(key, "")
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return fallback, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func getEnvAsDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := getEnv(key, "")
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

func getEnvAsSlice(key string, fallback []string) []string {
	v := getEnv(key, "")
	if v == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
