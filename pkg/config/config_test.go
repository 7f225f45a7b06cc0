// Copyright 2025 Smart Transaction
//
// Unit tests for configuration loading and validation.

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	for key, value := range map[string]string{
		"MYSQL_USER":                    "blockclock",
		"MYSQL_HOST":                    "127.0.0.1",
		"MYSQL_DATABASE":                "blockclock",
		"SOLVER_PRIVATE_KEY":            "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80",
		"VALIDATOR_PRIVATE_KEY":         "59c6995e998f97a5a0044966f0945389dc9e86dae88c7a8412f4603b6b78690d",
		"PRIMARY_CHAIN_ID":              "21363",
		"PRIMARY_HTTP_CHAIN_URL":        "http://127.0.0.1:8545",
		"PRIMARY_BLOCK_TIME_ADDRESS":    "0x8ab3c48c839376d2b79ab98f23f5b2406a06a029",
		"PRIMARY_CALL_BREAKER_ADDRESS":  "0x25ee756f5d93e26f5011b7ed4866afb192ce483e",
		"SECONDARY_CHAIN_ID":            "11155111",
		"SECONDARY_HTTP_CHAIN_URL":      "http://127.0.0.1:8546",
		"SECONDARY_BLOCK_TIME_ADDRESS":  "0x8ab3c48c839376d2b79ab98f23f5b2406a06a029",
		"SECONDARY_CALL_BREAKER_ADDRESS": "0x25ee756f5d93e26f5011b7ed4866afb192ce483e",
	} {
		t.Setenv(key, value)
	}
}

func TestLoad_Defaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != 8000 {
		t.Errorf("port = %d, want 8000", cfg.Port)
	}
	if cfg.MySQLPort != 3306 {
		t.Errorf("mysql port = %d, want 3306", cfg.MySQLPort)
	}
	if cfg.TimeWindow.Std() != 2*time.Second {
		t.Errorf("time window = %s, want 2s", cfg.TimeWindow.Std())
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("TIME_WINDOW", "5s")
	t.Setenv("DRY_RUN", "true")

	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("port: 9000\ntime_window: 1s\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != 9000 {
		t.Errorf("port = %d, want 9000 from the file", cfg.Port)
	}
	if cfg.TimeWindow.Std() != 5*time.Second {
		t.Errorf("time window = %s, the environment must win", cfg.TimeWindow.Std())
	}
	if !cfg.DryRun {
		t.Error("dry_run = false, want true from the environment")
	}
}

func TestValidate_MissingRequired(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := cfg.Validate(); err == nil {
		t.Error("expected validation to fail with no credentials or chains")
	}
}

func TestMySQLDSN(t *testing.T) {
	cfg := &Config{
		MySQLUser:     "clock",
		MySQLPassword: "s3cret",
		MySQLHost:     "db.internal",
		MySQLPort:     3306,
		MySQLDatabase: "blockclock",
	}
	want := "clock:s3cret@tcp(db.internal:3306)/blockclock?parseTime=true"
	if got := cfg.MySQLDSN(); got != want {
		t.Errorf("DSN = %q, want %q", got, want)
	}
	if redacted := cfg.RedactedMySQLDSN(); redacted == cfg.MySQLDSN() {
		t.Error("redacted DSN still contains the password")
	}
}
