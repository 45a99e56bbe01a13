package config

import (
	"os"
	"testing"
	"time"

	"github.com/rewired-gh/pizzaindex/internal/models"
)

const validConfig = `
poll_interval: 5m

sensors:
  - id: dominos
    label: "Domino's Pizza"
    query: "Domino's Pizza Crystal City Arlington VA"
    polarity: primary
  - id: sports-pub
    label: "Crystal City Sports Pub"
    query: "Crystal City Sports Pub Arlington VA"
    polarity: inverse
    weight: 2.0

places:
  base_url: "https://www.google.com"
  timeout: 20s
  max_retries: 3
  retry_delay_base: 1s
  fetch_delay: 4s

market:
  base_url: "https://query1.finance.yahoo.com"
  volatility_symbol: "^VIX"
  commodity_symbol: "GC=F"
  timeout: 15s
  cache_ttl: 5m

storage:
  db_path: "./data/test.db"

server:
  listen_addr: "127.0.0.1:0"

logging:
  level: "info"
  format: "json"
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	tmpfile, err := os.CreateTemp(t.TempDir(), "config-*.yaml")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := tmpfile.Write([]byte(content)); err != nil {
		t.Fatal(err)
	}
	if err := tmpfile.Close(); err != nil {
		t.Fatal(err)
	}
	return tmpfile.Name()
}

func TestLoadAndValidate(t *testing.T) {
	cfg, err := Load(writeConfig(t, validConfig))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate failed: %v", err)
	}

	if cfg.PollInterval != 5*time.Minute {
		t.Errorf("PollInterval = %v, want 5m", cfg.PollInterval)
	}
	if len(cfg.Sensors) != 2 {
		t.Fatalf("expected 2 sensors, got %d", len(cfg.Sensors))
	}
	// Omitted weight defaults to 1.0, explicit weight is preserved.
	if cfg.Sensors[0].Weight != 1.0 {
		t.Errorf("default weight = %v, want 1.0", cfg.Sensors[0].Weight)
	}
	if cfg.Sensors[1].Weight != 2.0 {
		t.Errorf("explicit weight = %v, want 2.0", cfg.Sensors[1].Weight)
	}
	if cfg.Market.VolatilitySymbol != "^VIX" {
		t.Errorf("volatility symbol = %q, want ^VIX", cfg.Market.VolatilitySymbol)
	}
}

func TestLoadDefaults(t *testing.T) {
	minimal := `
sensors:
  - id: dominos
    label: "Domino's Pizza"
    query: "Domino's Pizza Crystal City Arlington VA"
    polarity: primary
`
	cfg, err := Load(writeConfig(t, minimal))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate failed with defaults: %v", err)
	}
	if cfg.Places.MaxRetries != 3 {
		t.Errorf("default max_retries = %d, want 3", cfg.Places.MaxRetries)
	}
	if cfg.Market.CacheTTL != 5*time.Minute {
		t.Errorf("default cache_ttl = %v, want 5m", cfg.Market.CacheTTL)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("default logging level = %q, want info", cfg.Logging.Level)
	}
}

func TestValidateRejectsMalformedSensors(t *testing.T) {
	base := func() *Config {
		cfg, err := Load(writeConfig(t, validConfig))
		if err != nil {
			t.Fatalf("Load failed: %v", err)
		}
		return cfg
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"no sensors", func(c *Config) { c.Sensors = nil }},
		{"duplicate sensor id", func(c *Config) { c.Sensors[1].ID = c.Sensors[0].ID }},
		{"empty sensor id", func(c *Config) { c.Sensors[0].ID = "" }},
		{"empty label", func(c *Config) { c.Sensors[0].Label = "" }},
		{"empty query", func(c *Config) { c.Sensors[0].Query = "" }},
		{"unknown polarity", func(c *Config) { c.Sensors[0].Polarity = "both" }},
		{"negative weight", func(c *Config) { c.Sensors[0].Weight = -0.5 }},
		{"short poll interval", func(c *Config) { c.PollInterval = time.Second }},
		{"missing db path", func(c *Config) { c.Storage.DBPath = "" }},
		{"bad log level", func(c *Config) { c.Logging.Level = "verbose" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Validate() should have failed")
			}
		})
	}
}

func TestSensorDefinitions(t *testing.T) {
	cfg, err := Load(writeConfig(t, validConfig))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	defs, err := cfg.SensorDefinitions()
	if err != nil {
		t.Fatalf("SensorDefinitions failed: %v", err)
	}
	if len(defs) != 2 {
		t.Fatalf("expected 2 definitions, got %d", len(defs))
	}
	if defs[0].Polarity != models.PolarityPrimary {
		t.Errorf("defs[0].Polarity = %v, want primary", defs[0].Polarity)
	}
	if defs[1].Polarity != models.PolarityInverse {
		t.Errorf("defs[1].Polarity = %v, want inverse", defs[1].Polarity)
	}
	// Configuration order is preserved; the engine relies on it for
	// deterministic aggregation.
	if defs[0].ID != "dominos" || defs[1].ID != "sports-pub" {
		t.Errorf("definitions out of order: %s, %s", defs[0].ID, defs[1].ID)
	}
}
