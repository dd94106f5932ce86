// Package config manages the GAP core daemon configuration using koanf/v2.
//
// Supports YAML files, environment variables, and CLI flags.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/dantte-lp/gapcore/internal/gap/security"
)

// -------------------------------------------------------------------------
// Configuration Structures
// -------------------------------------------------------------------------

// Config holds the complete gapd configuration.
type Config struct {
	Log     LogConfig     `koanf:"log"`
	Metrics MetricsConfig `koanf:"metrics"`
	HTTP    HTTPConfig    `koanf:"http"`
	GAP     GAPConfig     `koanf:"gap"`
	Bonds   BondsConfig   `koanf:"bonds"`
}

// LogConfig holds the logging configuration.
type LogConfig struct {
	// Level is the log level: "debug", "info", "warn", "error".
	Level string `koanf:"level"`
	// Format is the log output format: "json" or "text".
	Format string `koanf:"format"`
}

// MetricsConfig holds the Prometheus metrics endpoint configuration.
type MetricsConfig struct {
	// Addr is the HTTP listen address for the metrics endpoint (e.g., ":9100").
	Addr string `koanf:"addr"`
	// Path is the URL path for the metrics endpoint (e.g., "/metrics").
	Path string `koanf:"path"`
}

// HTTPConfig holds the admin API's HTTP listen configuration.
type HTTPConfig struct {
	// Addr is the admin API listen address (e.g., ":8420").
	Addr string `koanf:"addr"`
}

// GAPConfig holds the GAP core's own runtime policy: the adapter-wide
// security mode, PeerCache expiry, and LeConnectionManager timing.
type GAPConfig struct {
	// SecurityMode is "mode1" or "secure_connections_only"
	// (security.Mode, spec.md §4.3 SetSecurityMode).
	SecurityMode string `koanf:"security_mode"`

	// CacheTimeout is how long a temporary (unbonded) peer survives in
	// PeerCache without a tickle (spec.md §4.1 CacheTimeout).
	CacheTimeout time.Duration `koanf:"cache_timeout"`

	// ScanTimeout bounds a non-auto-connect LE scan (spec.md §4.3
	// kLEGeneralCepScanTimeout).
	ScanTimeout time.Duration `koanf:"scan_timeout"`

	// ConnectionPauseCentral and ConnectionPausePeripheral are the
	// post-connection quiescent windows before a parameter update may be
	// issued (spec.md §4.3 kLEConnectionPauseCentral/Peripheral).
	ConnectionPauseCentral    time.Duration `koanf:"connection_pause_central"`
	ConnectionPausePeripheral time.Duration `koanf:"connection_pause_peripheral"`

	// MaxConnectionAttempts bounds the 0x3E retry policy (spec.md §4.3).
	MaxConnectionAttempts int `koanf:"max_connection_attempts"`

	// AutoConnectPeers lists the bonded peer ids (as strings) that should
	// auto-connect; reconciled against PeerCache on startup and on
	// SIGHUP reload via LeConnectionManager.ReconcileAutoConnect.
	AutoConnectPeers []string `koanf:"auto_connect_peers"`
}

// Mode parses SecurityMode into a security.Mode.
func (g GAPConfig) Mode() (security.Mode, error) {
	switch strings.ToLower(g.SecurityMode) {
	case "", "mode1":
		return security.ModeMode1, nil
	case "secure_connections_only":
		return security.ModeSecureConnectionsOnly, nil
	default:
		return 0, fmt.Errorf("gap.security_mode %q: %w", g.SecurityMode, ErrInvalidSecurityMode)
	}
}

// BondsConfig holds the persisted bonding store location.
type BondsConfig struct {
	// Path is the file the bonding store is loaded from and saved to.
	Path string `koanf:"path"`
}

// -------------------------------------------------------------------------
// Defaults
// -------------------------------------------------------------------------

// DefaultConfig returns a Config populated with sensible defaults, matching
// the GAP core's own package-level defaults (peercache.DefaultCacheTimeout,
// lecm.DefaultMaxConnectionAttempts, etc.) so that an empty YAML file and no
// environment overrides reproduces the library's zero-value behavior.
func DefaultConfig() *Config {
	return &Config{
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Addr: ":9100",
			Path: "/metrics",
		},
		HTTP: HTTPConfig{
			Addr: ":8420",
		},
		GAP: GAPConfig{
			SecurityMode:              "mode1",
			CacheTimeout:              60 * time.Second,
			ScanTimeout:               30 * time.Second,
			ConnectionPauseCentral:    1 * time.Second,
			ConnectionPausePeripheral: 5 * time.Second,
			MaxConnectionAttempts:     3,
		},
		Bonds: BondsConfig{
			Path: "/var/lib/gapd/bonds.json",
		},
	}
}

// -------------------------------------------------------------------------
// Loader
// -------------------------------------------------------------------------

// envPrefix is the environment variable prefix for gapd configuration.
// Variables are named GAPCORE_<section>_<key>, e.g., GAPCORE_GAP_SECURITY_MODE.
const envPrefix = "GAPCORE_"

// Load reads configuration from a YAML file at path, overlays environment
// variable overrides (GAPCORE_ prefix), and merges on top of DefaultConfig().
// Missing fields inherit defaults.
//
// Environment variable mapping:
//
//	GAPCORE_LOG_LEVEL             -> log.level
//	GAPCORE_LOG_FORMAT            -> log.format
//	GAPCORE_METRICS_ADDR          -> metrics.addr
//	GAPCORE_HTTP_ADDR             -> http.addr
//	GAPCORE_GAP_SECURITY_MODE     -> gap.security_mode
//	GAPCORE_BONDS_PATH            -> bonds.path
//
// Uses koanf/v2 with file + env providers and YAML parser.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	defaults := DefaultConfig()
	if err := loadDefaults(k, defaults); err != nil {
		return nil, fmt.Errorf("load config defaults: %w", err)
	}

	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("load config from %s: %w", path, err)
	}

	if err := k.Load(env.Provider(envPrefix, ".", envKeyMapper), nil); err != nil {
		return nil, fmt.Errorf("load env overrides: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("validate config from %s: %w", path, err)
	}

	return cfg, nil
}

// envKeyMapper transforms GAPCORE_GAP_SECURITY_MODE -> gap.security_mode.
// Strips the GAPCORE_ prefix, lowercases, and replaces the first _ (the
// section separator) with .
func envKeyMapper(s string) string {
	s = strings.TrimPrefix(s, envPrefix)
	s = strings.ToLower(s)
	return strings.Replace(s, "_", ".", 1)
}

// loadDefaults marshals the default config into koanf as the base layer.
func loadDefaults(k *koanf.Koanf, defaults *Config) error {
	defaultMap := map[string]any{
		"log.level":                       defaults.Log.Level,
		"log.format":                      defaults.Log.Format,
		"metrics.addr":                    defaults.Metrics.Addr,
		"metrics.path":                    defaults.Metrics.Path,
		"http.addr":                       defaults.HTTP.Addr,
		"gap.security_mode":               defaults.GAP.SecurityMode,
		"gap.cache_timeout":               defaults.GAP.CacheTimeout.String(),
		"gap.scan_timeout":                defaults.GAP.ScanTimeout.String(),
		"gap.connection_pause_central":    defaults.GAP.ConnectionPauseCentral.String(),
		"gap.connection_pause_peripheral": defaults.GAP.ConnectionPausePeripheral.String(),
		"gap.max_connection_attempts":     defaults.GAP.MaxConnectionAttempts,
		"bonds.path":                      defaults.Bonds.Path,
	}

	for key, val := range defaultMap {
		if err := k.Set(key, val); err != nil {
			return fmt.Errorf("set default %s: %w", key, err)
		}
	}

	return nil
}

// -------------------------------------------------------------------------
// Validation
// -------------------------------------------------------------------------

// Validation errors.
var (
	// ErrEmptyMetricsAddr indicates the metrics listen address is empty.
	ErrEmptyMetricsAddr = errors.New("metrics.addr must not be empty")

	// ErrEmptyHTTPAddr indicates the admin API listen address is empty.
	ErrEmptyHTTPAddr = errors.New("http.addr must not be empty")

	// ErrInvalidSecurityMode indicates gap.security_mode is not recognized.
	ErrInvalidSecurityMode = errors.New("gap.security_mode must be mode1 or secure_connections_only")

	// ErrInvalidCacheTimeout indicates gap.cache_timeout is not positive.
	ErrInvalidCacheTimeout = errors.New("gap.cache_timeout must be > 0")

	// ErrInvalidScanTimeout indicates gap.scan_timeout is not positive.
	ErrInvalidScanTimeout = errors.New("gap.scan_timeout must be > 0")

	// ErrInvalidMaxConnectionAttempts indicates gap.max_connection_attempts
	// is less than one.
	ErrInvalidMaxConnectionAttempts = errors.New("gap.max_connection_attempts must be >= 1")

	// ErrEmptyBondsPath indicates bonds.path is empty.
	ErrEmptyBondsPath = errors.New("bonds.path must not be empty")
)

// Validate checks the configuration for logical errors.
// Returns the first validation error encountered.
func Validate(cfg *Config) error {
	if cfg.Metrics.Addr == "" {
		return ErrEmptyMetricsAddr
	}

	if cfg.HTTP.Addr == "" {
		return ErrEmptyHTTPAddr
	}

	if _, err := cfg.GAP.Mode(); err != nil {
		return err
	}

	if cfg.GAP.CacheTimeout <= 0 {
		return ErrInvalidCacheTimeout
	}

	if cfg.GAP.ScanTimeout <= 0 {
		return ErrInvalidScanTimeout
	}

	if cfg.GAP.MaxConnectionAttempts < 1 {
		return ErrInvalidMaxConnectionAttempts
	}

	if cfg.Bonds.Path == "" {
		return ErrEmptyBondsPath
	}

	return nil
}

// -------------------------------------------------------------------------
// Log Level Parsing
// -------------------------------------------------------------------------

// ParseLogLevel maps a configuration log level string to the corresponding
// slog.Level. Unknown values default to slog.LevelInfo.
//
// Recognized values: "debug", "info", "warn", "error" (case-insensitive).
func ParseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
