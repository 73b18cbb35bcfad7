// Package config provides configuration management functionality.
//
// Configuration is layered: built-in defaults, then an optional TOML file named by
// LEDGER_CONFIG_FILE, then environment variables (a .env file is loaded first if present).
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/aristath/ledger/internal/domain"
	"github.com/joho/godotenv"
	toml "github.com/pelletier/go-toml/v2"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Config holds application configuration
type Config struct {
	DataDir         string `toml:"data_dir"` // Base directory for the ledger and cache databases (always absolute after Load)
	LogLevel        string `toml:"log_level"`
	DevMode         bool   `toml:"dev_mode"`
	DefaultCurrency string `toml:"default_currency"`

	Refresh    RefreshConfig    `toml:"refresh"`
	MarketData MarketDataConfig `toml:"market_data"`
	Allocation AllocationConfig `toml:"allocation"`
	Ledger     LedgerConfig     `toml:"ledger"`
}

// RefreshConfig controls the scheduled price sweep
type RefreshConfig struct {
	Schedule    string `toml:"schedule"` // cron spec with seconds, e.g. "0 */15 * * * *"
	Concurrency int    `toml:"concurrency"`
	Timeout     string `toml:"timeout"`
}

// MarketDataConfig controls provider rate limiting and quote caching
type MarketDataConfig struct {
	RatePerSecond float64 `toml:"rate_per_second"`
	Burst         int     `toml:"burst"`
	QuoteTTL      string  `toml:"quote_ttl"`
}

// AllocationConfig holds concentration limits, in percent
type AllocationConfig struct {
	HoldingLimitPct         float64 `toml:"holding_limit_pct"`
	SectorLimitPct          float64 `toml:"sector_limit_pct"`
	DiversifiedMaxSectorPct float64 `toml:"diversified_max_sector_pct"`
}

// LedgerConfig controls transaction processing
type LedgerConfig struct {
	ConflictRetries     int  `toml:"conflict_retries"`
	ScaleTargetsOnSplit bool `toml:"scale_targets_on_split"`
}

// NewDefaultConfig returns the configuration used when nothing is overridden
func NewDefaultConfig() *Config {
	return &Config{
		DataDir:         "./data",
		LogLevel:        "info",
		DefaultCurrency: "EUR",
		Refresh: RefreshConfig{
			Schedule:    "0 */15 * * * *",
			Concurrency: 4,
			Timeout:     "2m",
		},
		MarketData: MarketDataConfig{
			RatePerSecond: 5,
			Burst:         5,
			QuoteTTL:      "10m",
		},
		Allocation: AllocationConfig{
			HoldingLimitPct:         20,
			SectorLimitPct:          40,
			DiversifiedMaxSectorPct: 40,
		},
		Ledger: LedgerConfig{
			ConflictRetries:     3,
			ScaleTargetsOnSplit: true,
		},
	}
}

// Load reads configuration from defaults, the optional TOML file and environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	cfg := NewDefaultConfig()

	if path := getEnv("LEDGER_CONFIG_FILE", ""); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	applyEnvOverrides(cfg)

	// Always resolve to absolute path
	absDataDir, err := filepath.Abs(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}
	cfg.DataDir = absDataDir

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	// Ensure directory exists
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := toml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(c *Config) {
	c.DataDir = getEnv("LEDGER_DATA_DIR", c.DataDir)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
	c.DevMode = getEnvAsBool("DEV_MODE", c.DevMode)
	c.DefaultCurrency = getEnv("LEDGER_DEFAULT_CURRENCY", c.DefaultCurrency)

	c.Refresh.Schedule = getEnv("LEDGER_REFRESH_SCHEDULE", c.Refresh.Schedule)
	c.Refresh.Concurrency = getEnvAsInt("LEDGER_REFRESH_CONCURRENCY", c.Refresh.Concurrency)
	c.Refresh.Timeout = getEnv("LEDGER_REFRESH_TIMEOUT", c.Refresh.Timeout)

	c.MarketData.RatePerSecond = getEnvAsFloat("LEDGER_MARKET_DATA_RATE", c.MarketData.RatePerSecond)
	c.MarketData.Burst = getEnvAsInt("LEDGER_MARKET_DATA_BURST", c.MarketData.Burst)
	c.MarketData.QuoteTTL = getEnv("LEDGER_QUOTE_TTL", c.MarketData.QuoteTTL)

	c.Allocation.HoldingLimitPct = getEnvAsFloat("LEDGER_HOLDING_LIMIT_PCT", c.Allocation.HoldingLimitPct)
	c.Allocation.SectorLimitPct = getEnvAsFloat("LEDGER_SECTOR_LIMIT_PCT", c.Allocation.SectorLimitPct)
	c.Allocation.DiversifiedMaxSectorPct = getEnvAsFloat("LEDGER_DIVERSIFIED_MAX_SECTOR_PCT", c.Allocation.DiversifiedMaxSectorPct)

	c.Ledger.ConflictRetries = getEnvAsInt("LEDGER_CONFLICT_RETRIES", c.Ledger.ConflictRetries)
	c.Ledger.ScaleTargetsOnSplit = getEnvAsBool("LEDGER_SCALE_TARGETS_ON_SPLIT", c.Ledger.ScaleTargetsOnSplit)
}

// Validate rejects values the ledger cannot run with
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("data directory is required")
	}
	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("invalid log level %q: %w", c.LogLevel, err)
	}
	if _, err := domain.ParseCurrency(c.DefaultCurrency); err != nil {
		return fmt.Errorf("invalid default currency: %w", err)
	}

	parser := cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	if _, err := parser.Parse(c.Refresh.Schedule); err != nil {
		return fmt.Errorf("invalid refresh schedule %q: %w", c.Refresh.Schedule, err)
	}
	if c.Refresh.Concurrency < 1 {
		return fmt.Errorf("refresh concurrency must be at least 1, got %d", c.Refresh.Concurrency)
	}
	if _, err := parsePositiveDuration("refresh timeout", c.Refresh.Timeout); err != nil {
		return err
	}

	if c.MarketData.RatePerSecond <= 0 {
		return fmt.Errorf("market data rate must be positive, got %v", c.MarketData.RatePerSecond)
	}
	if c.MarketData.Burst < 1 {
		return fmt.Errorf("market data burst must be at least 1, got %d", c.MarketData.Burst)
	}
	if _, err := parsePositiveDuration("quote TTL", c.MarketData.QuoteTTL); err != nil {
		return err
	}

	limits := map[string]float64{
		"holding limit":              c.Allocation.HoldingLimitPct,
		"sector limit":               c.Allocation.SectorLimitPct,
		"diversified max sector pct": c.Allocation.DiversifiedMaxSectorPct,
	}
	for name, pct := range limits {
		if pct <= 0 || pct > 100 {
			return fmt.Errorf("%s must be in (0, 100], got %v", name, pct)
		}
	}

	if c.Ledger.ConflictRetries < 0 {
		return fmt.Errorf("conflict retries must not be negative, got %d", c.Ledger.ConflictRetries)
	}
	return nil
}

// RefreshTimeout returns the price sweep timeout
func (c *Config) RefreshTimeout() time.Duration {
	d, _ := parsePositiveDuration("refresh timeout", c.Refresh.Timeout)
	return d
}

// QuoteTTL returns how long a cached price stays fresh
func (c *Config) QuoteTTL() time.Duration {
	d, _ := parsePositiveDuration("quote TTL", c.MarketData.QuoteTTL)
	return d
}

func parsePositiveDuration(name, value string) (time.Duration, error) {
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", name, value, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be positive, got %s", name, value)
	}
	return d, nil
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}
