package config

import (
	"fmt"
	"time"

	"github.com/rewired-gh/pizzaindex/internal/models"
	"github.com/spf13/viper"
)

// Config represents the complete application configuration
type Config struct {
	Sensors      []SensorConfig `mapstructure:"sensors"`
	Places       PlacesConfig   `mapstructure:"places"`
	Market       MarketConfig   `mapstructure:"market"`
	Storage      StorageConfig  `mapstructure:"storage"`
	Server       ServerConfig   `mapstructure:"server"`
	Logging      LoggingConfig  `mapstructure:"logging"`
	PollInterval time.Duration  `mapstructure:"poll_interval"`
}

// SensorConfig describes one monitored venue.
type SensorConfig struct {
	ID       string  `mapstructure:"id"`
	Label    string  `mapstructure:"label"`
	Query    string  `mapstructure:"query"`
	Polarity string  `mapstructure:"polarity"`
	Weight   float64 `mapstructure:"weight"`
}

// PlacesConfig holds popularity provider configuration
type PlacesConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	Timeout        time.Duration `mapstructure:"timeout"`
	MaxRetries     int           `mapstructure:"max_retries"`
	RetryDelayBase time.Duration `mapstructure:"retry_delay_base"`
	FetchDelay     time.Duration `mapstructure:"fetch_delay"`
}

// MarketConfig holds market data provider configuration
type MarketConfig struct {
	BaseURL          string        `mapstructure:"base_url"`
	VolatilitySymbol string        `mapstructure:"volatility_symbol"`
	CommoditySymbol  string        `mapstructure:"commodity_symbol"`
	Timeout          time.Duration `mapstructure:"timeout"`
	CacheTTL         time.Duration `mapstructure:"cache_ttl"`
}

// StorageConfig holds persistence configuration
type StorageConfig struct {
	DBPath string `mapstructure:"db_path"`
}

// ServerConfig holds dashboard HTTP server configuration
type ServerConfig struct {
	ListenAddr   string        `mapstructure:"listen_addr"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration from file and environment variables
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetConfigFile(path)
	setDefaults(v)

	v.SetEnvPrefix("PIZZA_INDEX")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// A sensor without an explicit weight participates with weight 1.
	for i := range cfg.Sensors {
		if cfg.Sensors[i].Weight == 0 {
			cfg.Sensors[i].Weight = 1.0
		}
	}

	return &cfg, nil
}

// setDefaults configures default values for all configuration options
func setDefaults(v *viper.Viper) {
	v.SetDefault("poll_interval", "5m")

	// Places provider defaults
	v.SetDefault("places.base_url", "https://www.google.com")
	v.SetDefault("places.timeout", "20s")
	v.SetDefault("places.max_retries", 3)
	v.SetDefault("places.retry_delay_base", "1s")
	v.SetDefault("places.fetch_delay", "4s")

	// Market defaults
	v.SetDefault("market.base_url", "https://query1.finance.yahoo.com")
	v.SetDefault("market.volatility_symbol", "^VIX")
	v.SetDefault("market.commodity_symbol", "GC=F")
	v.SetDefault("market.timeout", "15s")
	v.SetDefault("market.cache_ttl", "5m")

	// Storage defaults
	v.SetDefault("storage.db_path", "./data/pizza-index.db")

	// Server defaults
	v.SetDefault("server.listen_addr", "127.0.0.1:8080")
	v.SetDefault("server.read_timeout", "10s")
	v.SetDefault("server.write_timeout", "30s")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// Validate checks that all configuration values are valid. Malformed sensor
// entries are fatal here, before any reading is processed: a duplicate ID or
// a non-positive weight would corrupt the weighted mean.
func (c *Config) Validate() error {
	if len(c.Sensors) == 0 {
		return fmt.Errorf("sensors must contain at least one entry")
	}
	seen := make(map[string]bool, len(c.Sensors))
	for i, s := range c.Sensors {
		if s.ID == "" {
			return fmt.Errorf("sensors[%d].id is required", i)
		}
		if seen[s.ID] {
			return fmt.Errorf("sensors[%d].id %q is duplicated", i, s.ID)
		}
		seen[s.ID] = true
		if s.Label == "" {
			return fmt.Errorf("sensor %q: label is required", s.ID)
		}
		if s.Query == "" {
			return fmt.Errorf("sensor %q: query is required", s.ID)
		}
		if _, err := models.ParsePolarity(s.Polarity); err != nil {
			return fmt.Errorf("sensor %q: %w", s.ID, err)
		}
		if s.Weight <= 0 {
			return fmt.Errorf("sensor %q: weight must be positive", s.ID)
		}
	}

	if c.PollInterval < 1*time.Minute {
		return fmt.Errorf("poll_interval must be at least 1 minute")
	}

	// Validate Places config
	if c.Places.BaseURL == "" {
		return fmt.Errorf("places.base_url is required")
	}
	if c.Places.Timeout < 1*time.Second {
		return fmt.Errorf("places.timeout must be at least 1 second")
	}
	if c.Places.MaxRetries < 1 {
		return fmt.Errorf("places.max_retries must be at least 1")
	}
	if c.Places.FetchDelay < 0 {
		return fmt.Errorf("places.fetch_delay must not be negative")
	}

	// Validate Market config
	if c.Market.BaseURL == "" {
		return fmt.Errorf("market.base_url is required")
	}
	if c.Market.VolatilitySymbol == "" {
		return fmt.Errorf("market.volatility_symbol is required")
	}
	if c.Market.CommoditySymbol == "" {
		return fmt.Errorf("market.commodity_symbol is required")
	}
	if c.Market.CacheTTL < 1*time.Minute {
		return fmt.Errorf("market.cache_ttl must be at least 1 minute")
	}

	// Validate Storage config
	if c.Storage.DBPath == "" {
		return fmt.Errorf("storage.db_path is required")
	}

	// Validate Server config
	if c.Server.ListenAddr == "" {
		return fmt.Errorf("server.listen_addr is required")
	}

	// Validate Logging config
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: json, text")
	}

	return nil
}

// SensorDefinitions converts the configured sensors into validated domain
// definitions, in configuration order.
func (c *Config) SensorDefinitions() ([]models.SensorDefinition, error) {
	defs := make([]models.SensorDefinition, 0, len(c.Sensors))
	for _, s := range c.Sensors {
		polarity, err := models.ParsePolarity(s.Polarity)
		if err != nil {
			return nil, fmt.Errorf("sensor %q: %w", s.ID, err)
		}
		def := models.SensorDefinition{
			ID:       s.ID,
			Label:    s.Label,
			Query:    s.Query,
			Polarity: polarity,
			Weight:   s.Weight,
		}
		if err := def.Validate(); err != nil {
			return nil, fmt.Errorf("sensor %q: %w", s.ID, err)
		}
		defs = append(defs, def)
	}
	return defs, nil
}
