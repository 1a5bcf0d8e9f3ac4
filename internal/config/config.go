// Package config handles configuration management with validation
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the complete configuration for one connector process. A process
// runs exactly one venue connection against one credential set; running
// several venues means running several processes (spec.md design note:
// no cross-exchange routing in this runtime).
type Config struct {
	App       AppConfig       `yaml:"app"`
	Venue     VenueConfig     `yaml:"venue"`
	Trading   TradingConfig   `yaml:"trading"`
	Timing    TimingConfig    `yaml:"timing"`
	System    SystemConfig    `yaml:"system"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// AppConfig contains process-level settings.
type AppConfig struct {
	Venue       string `yaml:"venue" validate:"required,oneof=bittrex hitbtc mock"`
	StateDBPath string `yaml:"state_db_path"`
}

// VenueConfig holds credentials and connection overrides for the single
// venue this process connects to. HitBTC requires Passphrase; Bittrex does
// not (spec.md §4.9, venue auth is out of scope here, only the config shape
// that a venue adapter consumes).
type VenueConfig struct {
	APIKey     Secret `yaml:"api_key" validate:"required"`
	SecretKey  Secret `yaml:"secret_key" validate:"required"`
	Passphrase Secret `yaml:"passphrase"`
	BaseURL    string `yaml:"base_url"`
	StreamURL  string `yaml:"stream_url"`
}

// TradingConfig lists the symbols this connector tracks.
type TradingConfig struct {
	Symbols []string `yaml:"symbols" validate:"required,min=1"`
}

// TimingConfig holds cadence and TTL tunables for the tick driver,
// reconciliation loops, and cancellation orchestrator (spec.md §4.3, §4.5).
type TimingConfig struct {
	TickIntervalMS          int `yaml:"tick_interval_ms" validate:"required,min=50"`
	BalanceReconcileSec      int `yaml:"balance_reconcile_sec" validate:"required,min=1"`
	OpenOrdersReconcileSec   int `yaml:"open_orders_reconcile_sec" validate:"required,min=1"`
	TradingRuleReconcileSec  int `yaml:"trading_rule_reconcile_sec" validate:"required,min=1"`
	CancelDedupTTLSec        int `yaml:"cancel_dedup_ttl_sec" validate:"required,min=1"`
	StreamReconnectDelaySec  int `yaml:"stream_reconnect_delay_sec" validate:"min=1,max=300"`
	RestRateLimitPerSec      int `yaml:"rest_rate_limit_per_sec" validate:"required,min=1"`
	RestRateLimitBurst       int `yaml:"rest_rate_limit_burst" validate:"required,min=1"`

	// OrderNotExistGraceSec bounds how long an order stays Pending/
	// Indeterminate before the open-orders reconciliation pass is allowed to
	// treat its absence from the venue's order list as meaningful. Below the
	// grace, a brand-new order not yet visible to the venue's own open-orders
	// endpoint produces no event at all (spec.md §4.3, §4.6, §8).
	OrderNotExistGraceSec int `yaml:"order_not_exist_grace_sec" validate:"required,min=1"`
	// OrderExpirySec bounds how long an order can sit non-terminal with no
	// resolution from either REST or the stream before the straggler pass
	// gives up waiting and cancels it locally (spec.md §4.6).
	OrderExpirySec int `yaml:"order_expiry_sec" validate:"required,min=1"`
}

// TickInterval is the parsed poll cadence for the rate-controlled tick driver.
func (t TimingConfig) TickInterval() time.Duration {
	return time.Duration(t.TickIntervalMS) * time.Millisecond
}

// BalanceReconcileInterval is the parsed cadence of the balance reconciliation loop.
func (t TimingConfig) BalanceReconcileInterval() time.Duration {
	return time.Duration(t.BalanceReconcileSec) * time.Second
}

// OpenOrdersReconcileInterval is the parsed cadence of the open-orders reconciliation loop.
func (t TimingConfig) OpenOrdersReconcileInterval() time.Duration {
	return time.Duration(t.OpenOrdersReconcileSec) * time.Second
}

// TradingRuleReconcileInterval is the parsed cadence of the trading-rule reconciliation loop.
func (t TimingConfig) TradingRuleReconcileInterval() time.Duration {
	return time.Duration(t.TradingRuleReconcileSec) * time.Second
}

// CancelDedupTTL is the parsed TTL window within which a repeated cancel
// request for the same client ID is treated as a duplicate, not resent.
func (t TimingConfig) CancelDedupTTL() time.Duration {
	return time.Duration(t.CancelDedupTTLSec) * time.Second
}

// OrderNotExistGrace is the parsed grace window before a missing order is
// reconciled as cancelled or failed.
func (t TimingConfig) OrderNotExistGrace() time.Duration {
	return time.Duration(t.OrderNotExistGraceSec) * time.Second
}

// OrderExpiry is the parsed straggler-cancellation threshold.
func (t TimingConfig) OrderExpiry() time.Duration {
	return time.Duration(t.OrderExpirySec) * time.Second
}

// SystemConfig contains process-wide operational settings.
type SystemConfig struct {
	LogLevel     string `yaml:"log_level" validate:"required,oneof=DEBUG INFO WARN ERROR FATAL"`
	CancelOnExit bool   `yaml:"cancel_on_exit"`
	GRPCHealthPort int  `yaml:"grpc_health_port"`
}

// TelemetryConfig contains telemetry settings.
type TelemetryConfig struct {
	MetricsPort   int  `yaml:"metrics_port"`
	EnableMetrics bool `yaml:"enable_metrics"`
}

// ValidationError represents a configuration validation error
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s' (value: %v): %s", e.Field, e.Value, e.Message)
}

// LoadConfig loads configuration from a YAML file with environment variable expansion
func LoadConfig(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	expandedData := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// Validate performs comprehensive validation of the configuration
func (c *Config) Validate() error {
	var errs []string

	if err := c.validateAppConfig(); err != nil {
		errs = append(errs, err.Error())
	}
	if err := c.validateVenueConfig(); err != nil {
		errs = append(errs, err.Error())
	}
	if err := c.validateTradingConfig(); err != nil {
		errs = append(errs, err.Error())
	}
	if err := c.validateSystemConfig(); err != nil {
		errs = append(errs, err.Error())
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed:\n%s", strings.Join(errs, "\n"))
	}
	return nil
}

func (c *Config) validateAppConfig() error {
	validVenues := []string{"bittrex", "hitbtc", "mock"}
	if !contains(validVenues, c.App.Venue) {
		return ValidationError{
			Field:   "app.venue",
			Value:   c.App.Venue,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(validVenues, ", ")),
		}
	}
	return nil
}

func (c *Config) validateVenueConfig() error {
	if c.App.Venue == "mock" {
		return nil
	}
	if c.Venue.APIKey == "" {
		return ValidationError{Field: "venue.api_key", Message: "API key is required"}
	}
	if c.Venue.SecretKey == "" {
		return ValidationError{Field: "venue.secret_key", Message: "secret key is required"}
	}
	if c.App.Venue == "hitbtc" && c.Venue.Passphrase == "" {
		return ValidationError{Field: "venue.passphrase", Message: "hitbtc requires a passphrase"}
	}
	return nil
}

func (c *Config) validateTradingConfig() error {
	if len(c.Trading.Symbols) == 0 {
		return ValidationError{Field: "trading.symbols", Message: "at least one symbol is required"}
	}
	return nil
}

func (c *Config) validateSystemConfig() error {
	validLevels := []string{"DEBUG", "INFO", "WARN", "ERROR", "FATAL"}
	if !contains(validLevels, strings.ToUpper(c.System.LogLevel)) {
		return ValidationError{
			Field:   "system.log_level",
			Value:   c.System.LogLevel,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(validLevels, ", ")),
		}
	}
	return nil
}

// String returns a string representation of the configuration (with sensitive data masked)
func (c *Config) String() string {
	data, _ := yaml.Marshal(c)
	return string(data)
}

func expandEnvVars(s string) string {
	return os.Expand(s, func(key string) string {
		return os.Getenv(key)
	})
}

func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}

// DefaultConfig returns a default configuration for testing
func DefaultConfig() *Config {
	return &Config{
		App: AppConfig{
			Venue:       "mock",
			StateDBPath: "connector_state.db",
		},
		Venue: VenueConfig{
			APIKey:    "test_api_key",
			SecretKey: "test_secret_key",
		},
		Trading: TradingConfig{
			Symbols: []string{"BTC-USDT"},
		},
		Timing: TimingConfig{
			TickIntervalMS:          250,
			BalanceReconcileSec:     30,
			OpenOrdersReconcileSec:  15,
			TradingRuleReconcileSec: 300,
			CancelDedupTTLSec:       10,
			StreamReconnectDelaySec: 5,
			RestRateLimitPerSec:     10,
			RestRateLimitBurst:      20,
			OrderNotExistGraceSec:   10,
			OrderExpirySec:          900,
		},
		System: SystemConfig{
			LogLevel:       "INFO",
			CancelOnExit:   true,
			GRPCHealthPort: 50051,
		},
		Telemetry: TelemetryConfig{
			MetricsPort:   9090,
			EnableMetrics: true,
		},
	}
}
