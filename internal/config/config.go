// Package config loads ciphervault's TOML configuration file, with
// environment-variable overrides for the values too sensitive to leave in
// a checked-in file (wrap-key passphrase, KMS resource name).
package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// Dialect selects the SQL backend.
type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite"
)

// WrapScheme selects how the process-level wrap key is resolved.
type WrapScheme string

const (
	WrapRaw        WrapScheme = "raw"
	WrapPassphrase WrapScheme = "passphrase"
	WrapKMS        WrapScheme = "kms"
)

// PoolConfig bounds the database connection pool.
type PoolConfig struct {
	MaxConns        int32 `toml:"max_conns"`
	MinConns        int32 `toml:"min_conns"`
	AcquireRatePerS int   `toml:"acquire_rate_per_s"`
}

// WrapKeyConfig selects and parameterizes the WrapKeyMethod.
type WrapKeyConfig struct {
	Scheme WrapScheme `toml:"scheme" env:"CIPHERVAULT_WRAP_SCHEME"`

	// Passphrase is read from the environment only; never persisted in the
	// TOML file.
	Passphrase string `toml:"-" env:"CIPHERVAULT_WRAP_PASSPHRASE"`
	SaltHex    string `toml:"salt_hex"`

	// RawKeyHex is the raw wrap-key material, hex-encoded. Only used when
	// Scheme == WrapRaw; as with Passphrase this is meant to come from the
	// environment in production deployments.
	RawKeyHex string `toml:"-" env:"CIPHERVAULT_WRAP_RAW_KEY_HEX"`

	// KMSKeyName is a fully qualified Cloud KMS key resource name
	// (projects/P/locations/L/keyRings/R/cryptoKeys/K).
	KMSKeyName string `toml:"kms_key_name" env:"CIPHERVAULT_KMS_KEY_NAME"`
}

// ReaperConfig controls the optional background expired-row reaper.
type ReaperConfig struct {
	Enabled      bool `toml:"enabled"`
	IntervalSecs int  `toml:"interval_secs"`
}

// Config is the top-level ciphervault configuration.
type Config struct {
	Dialect  Dialect       `toml:"dialect"`
	DSN      string        `toml:"dsn" env:"CIPHERVAULT_DSN"`
	Pool     PoolConfig    `toml:"pool"`
	WrapKey  WrapKeyConfig `toml:"wrap_key"`
	Reaper   ReaperConfig  `toml:"reaper"`
	// OffloadWorkers sizes the CPU-offload pool; 0 means
	// runtime.GOMAXPROCS(0).
	OffloadWorkers int `toml:"offload_workers"`
}

// Load reads path as TOML and applies the env var overrides declared above
// via struct tags on the sensitive fields.
func Load(path string) (*Config, error) {
	var cfg Config
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, fmt.Errorf("config: decode %s: %w", path, err)
	}
	applyEnvOverrides(&cfg)
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("CIPHERVAULT_DSN"); v != "" {
		cfg.DSN = v
	}
	if v := os.Getenv("CIPHERVAULT_WRAP_SCHEME"); v != "" {
		cfg.WrapKey.Scheme = WrapScheme(v)
	}
	if v := os.Getenv("CIPHERVAULT_WRAP_PASSPHRASE"); v != "" {
		cfg.WrapKey.Passphrase = v
	}
	if v := os.Getenv("CIPHERVAULT_WRAP_RAW_KEY_HEX"); v != "" {
		cfg.WrapKey.RawKeyHex = v
	}
	if v := os.Getenv("CIPHERVAULT_KMS_KEY_NAME"); v != "" {
		cfg.WrapKey.KMSKeyName = v
	}
}

func (c *Config) validate() error {
	switch c.Dialect {
	case DialectPostgres, DialectSQLite:
	default:
		return fmt.Errorf("config: unknown dialect %q", c.Dialect)
	}
	if c.DSN == "" {
		return fmt.Errorf("config: dsn is required")
	}
	switch c.WrapKey.Scheme {
	case WrapRaw, WrapPassphrase, WrapKMS:
	default:
		return fmt.Errorf("config: unknown wrap_key scheme %q", c.WrapKey.Scheme)
	}
	if c.Pool.MaxConns <= 0 {
		c.Pool.MaxConns = 10
	}
	if c.Pool.AcquireRatePerS <= 0 {
		c.Pool.AcquireRatePerS = 50
	}
	if c.Reaper.IntervalSecs <= 0 {
		c.Reaper.IntervalSecs = 300
	}
	return nil
}
