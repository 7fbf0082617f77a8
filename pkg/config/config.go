// Package config loads service configuration (cleanenv: YAML file with
// environment overrides) and the database catalog (a separate YAML document).
// Secrets never live in YAML; catalog passwords resolve from environment
// variables named by the catalog.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config holds all configuration for the comparison service. Environment
// variables override YAML values for fields that support both.
type Config struct {
	// Server configuration
	BindAddr string `yaml:"bind_addr" env:"BIND_ADDR" env-default:"127.0.0.1"`
	Port     string `yaml:"port" env:"PORT" env-default:"8080"`
	Env      string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	Version  string `yaml:"-"` // Set at load time, not from config

	// CatalogPath locates the database catalog YAML document.
	CatalogPath string `yaml:"catalog_path" env:"CATALOG_PATH" env-default:"catalog.yaml"`

	Probe   ProbeConfig   `yaml:"probe"`
	Diff    DiffConfig    `yaml:"diff"`
	Cost    CostConfig    `yaml:"cost"`
	Compare CompareConfig `yaml:"compare"`
	Pool    PoolConfig    `yaml:"pool"`
	Safety  SafetyConfig  `yaml:"safety"`
}

// ProbeConfig bounds availability checks.
type ProbeConfig struct {
	TimeoutSeconds int `yaml:"timeout_seconds" env:"PROBE_TIMEOUT_SECONDS" env-default:"5"`
}

// Timeout returns the probe deadline as a duration.
func (c ProbeConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// DiffConfig bounds comparison execution after the gates pass.
type DiffConfig struct {
	TimeoutSeconds int `yaml:"timeout_seconds" env:"DIFF_TIMEOUT_SECONDS" env-default:"600"`
}

// Timeout returns the diff deadline as a duration.
func (c DiffConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// CostConfig holds the estimate gate: per-family normalization scales plus
// the global acceptance ceiling and cardinality warning level.
type CostConfig struct {
	CeilingSeconds         float64 `yaml:"ceiling_seconds" env:"COST_CEILING_SECONDS" env-default:"300"`
	WarnRows               int64   `yaml:"warn_rows" env:"COST_WARN_ROWS" env-default:"1000000"`
	PostgresUnitsPerSecond float64 `yaml:"postgres_units_per_second" env:"COST_POSTGRES_UNITS_PER_SECOND" env-default:"10000"`
	MySQLRowsPerSecond     float64 `yaml:"mysql_rows_per_second" env:"COST_MYSQL_ROWS_PER_SECOND" env-default:"1000000"`
	SQLServerCostPerSecond float64 `yaml:"sqlserver_cost_per_second" env:"COST_SQLSERVER_COST_PER_SECOND" env-default:"1"`
}

// CompareConfig bounds the diff core.
type CompareConfig struct {
	// SampleCap limits the mismatch example records returned per comparison.
	SampleCap int `yaml:"sample_cap" env:"COMPARE_SAMPLE_CAP" env-default:"10000"`
	// MaxInProcessRows caps each side of a cross-engine in-process join.
	MaxInProcessRows int `yaml:"max_inprocess_rows" env:"COMPARE_MAX_INPROCESS_ROWS" env-default:"100000"`
}

// PoolConfig bounds connection checkouts per logical database.
type PoolConfig struct {
	MaxCheckoutsPerDatabase int `yaml:"max_checkouts_per_database" env:"POOL_MAX_CHECKOUTS_PER_DATABASE" env-default:"4"`
	AcquireTimeoutSeconds   int `yaml:"acquire_timeout_seconds" env:"POOL_ACQUIRE_TIMEOUT_SECONDS" env-default:"10"`
}

// AcquireTimeout returns the checkout wait bound as a duration.
func (c PoolConfig) AcquireTimeout() time.Duration {
	return time.Duration(c.AcquireTimeoutSeconds) * time.Second
}

// SafetyConfig holds the override policy.
type SafetyConfig struct {
	// PrivilegedRolesStr is a comma-separated role list; only these roles may
	// override a cost rejection.
	PrivilegedRolesStr string `yaml:"privileged_roles" env:"SAFETY_PRIVILEGED_ROLES" env-default:"admin"`

	// PrivilegedRoles is the parsed list (not from config file).
	PrivilegedRoles []string `yaml:"-"`
}

// Load reads configuration from config.yaml with environment variable
// overrides. A missing file is not an error: configuration then comes from
// the environment alone.
func Load(version string) (*Config, error) {
	return LoadFrom("config.yaml", version)
}

// LoadFrom reads configuration from the given YAML path.
func LoadFrom(path, version string) (*Config, error) {
	cfg := &Config{Version: version}

	if _, err := os.Stat(path); err == nil {
		if err := cleanenv.ReadConfig(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
	} else {
		if err := cleanenv.ReadEnv(cfg); err != nil {
			return nil, fmt.Errorf("failed to read config from environment: %w", err)
		}
	}

	cfg.Safety.PrivilegedRoles = parseRoles(cfg.Safety.PrivilegedRolesStr)

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Probe.TimeoutSeconds <= 0 {
		return fmt.Errorf("probe.timeout_seconds must be positive")
	}
	if c.Diff.TimeoutSeconds <= 0 {
		return fmt.Errorf("diff.timeout_seconds must be positive")
	}
	if c.Cost.CeilingSeconds <= 0 {
		return fmt.Errorf("cost.ceiling_seconds must be positive")
	}
	if c.Compare.SampleCap <= 0 {
		return fmt.Errorf("compare.sample_cap must be positive")
	}
	if c.Compare.MaxInProcessRows <= 0 {
		return fmt.Errorf("compare.max_inprocess_rows must be positive")
	}
	if c.Pool.MaxCheckoutsPerDatabase <= 0 {
		return fmt.Errorf("pool.max_checkouts_per_database must be positive")
	}
	return nil
}

// parseRoles splits the comma-separated role list, dropping empties.
func parseRoles(value string) []string {
	var roles []string
	for _, role := range strings.Split(value, ",") {
		role = strings.TrimSpace(role)
		if role != "" {
			roles = append(roles, role)
		}
	}
	return roles
}
