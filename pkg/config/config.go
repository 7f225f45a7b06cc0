// Copyright 2025 Smart Transaction
//
// Configuration for the blockclock backend service.
// Values come from an optional YAML file and environment variables;
// the environment always wins.

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration so "2s"-style strings decode from YAML.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var text string
	if err := node.Decode(&text); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(text)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", text, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std converts back to the standard library type.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// ChainConfig holds the endpoint and contract addresses for one target chain.
type ChainConfig struct {
	ChainID            int64  `yaml:"chain_id"`
	HTTPChainURL       string `yaml:"http_chain_url"`
	BlockTimeAddress   string `yaml:"block_time_address"`
	CallBreakerAddress string `yaml:"call_breaker_address"`
}

// Config holds all configuration for the blockclock backend.
type Config struct {
	// Server configuration
	Port int `yaml:"port"`

	// Database configuration
	MySQLUser     string `yaml:"mysql_user"`
	MySQLPassword string `yaml:"mysql_password"`
	MySQLHost     string `yaml:"mysql_host"`
	MySQLPort     int    `yaml:"mysql_port"`
	MySQLDatabase string `yaml:"mysql_database"`

	// Aggregation configuration
	TimeWindow Duration `yaml:"time_window"`
	TickPeriod Duration `yaml:"tick_period"`

	// Signing keys (hex-encoded secp256k1)
	SolverPrivateKey    string `yaml:"solver_private_key"`
	ValidatorPrivateKey string `yaml:"validator_private_key"`

	// Target chains
	Primary   ChainConfig `yaml:"primary"`
	Secondary ChainConfig `yaml:"secondary"`

	// CallBreaker application id embedded in every user objective
	AppID string `yaml:"app_id"`

	// When true, envelopes are built and logged but never sent
	DryRun bool `yaml:"dry_run"`
}

// Load reads configuration from the given YAML file (if path is non-empty)
// and then applies environment variable overrides.
func Load(path string) (*Config, error) {
	cfg := &Config{
		Port:       8000,
		MySQLPort:  3306,
		TimeWindow: Duration(2 * time.Second),
		TickPeriod: Duration(2 * time.Second),
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	cfg.applyEnv()

	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Port = getEnvInt("PORT", c.Port)

	c.MySQLUser = getEnv("MYSQL_USER", c.MySQLUser)
	c.MySQLPassword = getEnv("MYSQL_PASSWORD", c.MySQLPassword)
	c.MySQLHost = getEnv("MYSQL_HOST", c.MySQLHost)
	c.MySQLPort = getEnvInt("MYSQL_PORT", c.MySQLPort)
	c.MySQLDatabase = getEnv("MYSQL_DATABASE", c.MySQLDatabase)

	c.TimeWindow = Duration(getEnvDuration("TIME_WINDOW", c.TimeWindow.Std()))
	c.TickPeriod = Duration(getEnvDuration("TICK_PERIOD", c.TickPeriod.Std()))

	c.SolverPrivateKey = getEnv("SOLVER_PRIVATE_KEY", c.SolverPrivateKey)
	c.ValidatorPrivateKey = getEnv("VALIDATOR_PRIVATE_KEY", c.ValidatorPrivateKey)

	c.Primary.ChainID = getEnvInt64("PRIMARY_CHAIN_ID", c.Primary.ChainID)
	c.Primary.HTTPChainURL = getEnv("PRIMARY_HTTP_CHAIN_URL", c.Primary.HTTPChainURL)
	c.Primary.BlockTimeAddress = getEnv("PRIMARY_BLOCK_TIME_ADDRESS", c.Primary.BlockTimeAddress)
	c.Primary.CallBreakerAddress = getEnv("PRIMARY_CALL_BREAKER_ADDRESS", c.Primary.CallBreakerAddress)

	c.Secondary.ChainID = getEnvInt64("SECONDARY_CHAIN_ID", c.Secondary.ChainID)
	c.Secondary.HTTPChainURL = getEnv("SECONDARY_HTTP_CHAIN_URL", c.Secondary.HTTPChainURL)
	c.Secondary.BlockTimeAddress = getEnv("SECONDARY_BLOCK_TIME_ADDRESS", c.Secondary.BlockTimeAddress)
	c.Secondary.CallBreakerAddress = getEnv("SECONDARY_CALL_BREAKER_ADDRESS", c.Secondary.CallBreakerAddress)

	c.AppID = getEnv("APP_ID", c.AppID)
	c.DryRun = getEnvBool("DRY_RUN", c.DryRun)
}

// Validate checks that all required configuration is present.
// Must be called after Load() before starting the service.
func (c *Config) Validate() error {
	var errs []string

	if c.MySQLUser == "" {
		errs = append(errs, "MYSQL_USER is required but not set")
	}
	if c.MySQLHost == "" {
		errs = append(errs, "MYSQL_HOST is required but not set")
	}
	if c.MySQLDatabase == "" {
		errs = append(errs, "MYSQL_DATABASE is required but not set")
	}
	if c.TimeWindow <= 0 {
		errs = append(errs, "TIME_WINDOW must be a positive duration")
	}
	if c.TickPeriod <= 0 {
		errs = append(errs, "TICK_PERIOD must be a positive duration")
	}
	if c.SolverPrivateKey == "" {
		errs = append(errs, "SOLVER_PRIVATE_KEY is required but not set")
	}
	if c.ValidatorPrivateKey == "" {
		errs = append(errs, "VALIDATOR_PRIVATE_KEY is required but not set")
	}

	for _, chain := range []struct {
		name string
		cfg  ChainConfig
	}{
		{"PRIMARY", c.Primary},
		{"SECONDARY", c.Secondary},
	} {
		if chain.cfg.HTTPChainURL == "" {
			errs = append(errs, chain.name+"_HTTP_CHAIN_URL is required but not set")
		}
		if chain.cfg.ChainID == 0 {
			errs = append(errs, chain.name+"_CHAIN_ID is required but not set")
		}
		if chain.cfg.BlockTimeAddress == "" {
			errs = append(errs, chain.name+"_BLOCK_TIME_ADDRESS is required but not set")
		}
		if chain.cfg.CallBreakerAddress == "" {
			errs = append(errs, chain.name+"_CALL_BREAKER_ADDRESS is required but not set")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// MySQLDSN builds the go-sql-driver DSN from the individual fields.
func (c *Config) MySQLDSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true",
		c.MySQLUser, c.MySQLPassword, c.MySQLHost, c.MySQLPort, c.MySQLDatabase)
}

// RedactedMySQLDSN is the DSN with the password masked, for logging.
func (c *Config) RedactedMySQLDSN() string {
	return fmt.Sprintf("%s:********@tcp(%s:%d)/%s?parseTime=true",
		c.MySQLUser, c.MySQLHost, c.MySQLPort, c.MySQLDatabase)
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
