// Package config provides configuration management for the trading engine.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	yaml "gopkg.in/yaml.v3"
)

// Provider type constants for engine.provider.type.
const (
	// ProviderSimulated routes orders to the ledger-backed simulator.
	ProviderSimulated = "SIMULATED"
	// ProviderMetaTrader routes orders to the MetaTrader HTTP bridge.
	ProviderMetaTrader = "METATRADER"
)

// Default timeouts for outbound calls.
const (
	defaultMarketDataTimeout = 15 * time.Second
	defaultBridgeTimeout     = 10 * time.Second
	defaultEmailTimeout      = 5 * time.Second
	defaultCycleInterval     = "15m"
)

// Config represents the complete engine configuration.
type Config struct {
	Engine     EngineConfig     `yaml:"engine"`
	Store      StoreConfig      `yaml:"store"`
	MarketData MarketDataConfig `yaml:"market_data"`
	Provider   ProviderConfig   `yaml:"provider"`
	Email      EmailConfig      `yaml:"email"`
	Server     ServerConfig     `yaml:"server"`
}

// EngineConfig defines process-level settings.
type EngineConfig struct {
	LogLevel      string `yaml:"log_level"`      // debug | info | warn | error
	CycleInterval string `yaml:"cycle_interval"` // bot cycle period, e.g. "15m"
}

// StoreConfig defines the persistent store connection.
type StoreConfig struct {
	DSN string `yaml:"dsn"` // sqlite path or ":memory:"
}

// MarketDataConfig defines the upstream market-data API settings.
type MarketDataConfig struct {
	APIKey     string `yaml:"api_key"`
	BaseURL    string `yaml:"base_url"` // override for tests; empty = default
	TimeoutSec int    `yaml:"timeout_sec"`
}

// ProviderConfig selects and configures the execution provider.
type ProviderConfig struct {
	Type         string `yaml:"type"` // SIMULATED | METATRADER
	BridgeURL    string `yaml:"bridge_url"`
	BridgeAPIKey string `yaml:"bridge_api_key"`
	TimeoutSec   int    `yaml:"timeout_sec"`
}

// EmailConfig defines the optional SendGrid notification settings.
// Email is silently skipped when the key or recipient is unset.
type EmailConfig struct {
	SendGridAPIKey string `yaml:"sendgrid_api_key"`
	FromEmail      string `yaml:"from_email"`
	Recipient      string `yaml:"recipient"`
	TimeoutSec     int    `yaml:"timeout_sec"`
}

// ServerConfig defines the HTTP action-router settings.
type ServerConfig struct {
	Port      int    `yaml:"port"`
	AuthToken string `yaml:"auth_token"` // optional shared secret
}

// Load reads and parses the configuration file from the specified path.
// ${VAR} references in the file are expanded from the environment before
// decoding, so secrets stay out of the file itself.
func Load(configPath string) (*Config, error) {
	if configPath == "" {
		configPath = "config.yaml"
	}

	data, err := os.ReadFile(configPath) // #nosec G304 -- configPath is a user-provided config file path
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	var config Config
	dec := yaml.NewDecoder(strings.NewReader(expanded))
	dec.KnownFields(true)
	if err := dec.Decode(&config); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &config, nil
}

// Validate checks that all configuration values are valid and consistent.
// Required values missing here are fatal at startup; email settings are not
// required.
func (c *Config) Validate() error {
	switch c.Engine.LogLevel {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("engine.log_level must be one of debug/info/warn/error")
	}
	if c.Engine.CycleInterval != "" {
		if _, err := time.ParseDuration(c.Engine.CycleInterval); err != nil {
			return fmt.Errorf("engine.cycle_interval invalid: %w", err)
		}
	}

	if c.Store.DSN == "" {
		return fmt.Errorf("store.dsn is required")
	}
	if c.MarketData.APIKey == "" {
		return fmt.Errorf("market_data.api_key is required")
	}

	switch strings.ToUpper(c.Provider.Type) {
	case "", ProviderSimulated, ProviderMetaTrader:
	default:
		return fmt.Errorf("provider.type must be %s or %s", ProviderSimulated, ProviderMetaTrader)
	}

	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be a valid port number")
	}

	return nil
}

// ProviderType returns the normalized provider type, defaulting to SIMULATED.
func (c *Config) ProviderType() string {
	t := strings.ToUpper(strings.TrimSpace(c.Provider.Type))
	if t == "" {
		return ProviderSimulated
	}
	return t
}

// BridgeConfigured reports whether both bridge settings needed for the
// MetaTrader provider are present.
func (c *Config) BridgeConfigured() bool {
	return c.Provider.BridgeURL != "" && c.Provider.BridgeAPIKey != ""
}

// EmailEnabled reports whether outbound email is configured.
func (c *Config) EmailEnabled() bool {
	return c.Email.SendGridAPIKey != "" && c.Email.Recipient != ""
}

// CycleInterval returns the configured bot cycle period.
func (c *Config) CycleInterval() time.Duration {
	d, err := time.ParseDuration(c.Engine.CycleInterval)
	if err != nil || d <= 0 {
		d, _ = time.ParseDuration(defaultCycleInterval)
	}
	return d
}

// MarketDataTimeout returns the market-data HTTP timeout.
func (c *Config) MarketDataTimeout() time.Duration {
	if c.MarketData.TimeoutSec > 0 {
		return time.Duration(c.MarketData.TimeoutSec) * time.Second
	}
	return defaultMarketDataTimeout
}

// BridgeTimeout returns the bridge HTTP timeout.
func (c *Config) BridgeTimeout() time.Duration {
	if c.Provider.TimeoutSec > 0 {
		return time.Duration(c.Provider.TimeoutSec) * time.Second
	}
	return defaultBridgeTimeout
}

// EmailTimeout returns the email HTTP timeout.
func (c *Config) EmailTimeout() time.Duration {
	if c.Email.TimeoutSec > 0 {
		return time.Duration(c.Email.TimeoutSec) * time.Second
	}
	return defaultEmailTimeout
}

// SettingStatus reports which configuration values are set, by name only.
// Secrets are never echoed.
func (c *Config) SettingStatus() map[string]bool {
	return map[string]bool{
		"STORE_DSN":                    c.Store.DSN != "",
		"MARKET_DATA_API_KEY":          c.MarketData.APIKey != "",
		"TRADE_PROVIDER_TYPE":          c.Provider.Type != "",
		"MT_BRIDGE_URL":                c.Provider.BridgeURL != "",
		"MT_BRIDGE_API_KEY":            c.Provider.BridgeAPIKey != "",
		"SENDGRID_API_KEY":             c.Email.SendGridAPIKey != "",
		"FROM_EMAIL":                   c.Email.FromEmail != "",
		"NOTIFICATION_EMAIL_RECIPIENT": c.Email.Recipient != "",
	}
}
