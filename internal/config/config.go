// Package config loads and validates the pipeline configuration from a YAML
// file, a local .env file, and MARKETSNAP_* environment variables, in that
// order of increasing precedence. Components receive their configuration
// explicitly at construction; nothing reads the environment at runtime.
package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config represents the complete application configuration
type Config struct {
	Reader  ReaderConfig  `mapstructure:"reader"`
	Parser  ParserConfig  `mapstructure:"parser"`
	Storage StorageConfig `mapstructure:"storage"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// ReaderConfig holds raw-content source (reader API) configuration
type ReaderConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	TargetURL      string        `mapstructure:"target_url"`
	APIKey         string        `mapstructure:"api_key"`
	Timeout        time.Duration `mapstructure:"timeout"`
	MaxRetries     int           `mapstructure:"max_retries"`
	RetryDelayBase time.Duration `mapstructure:"retry_delay_base"`
	TokenBudget    int           `mapstructure:"token_budget"`
}

// ParserConfig holds text-understanding service configuration
type ParserConfig struct {
	APIKey         string        `mapstructure:"api_key"`
	APIBaseURL     string        `mapstructure:"api_base_url"`
	Model          string        `mapstructure:"model"`
	Timeout        time.Duration `mapstructure:"timeout"`
	MaxRetries     int           `mapstructure:"max_retries"`
	RetryDelayBase time.Duration `mapstructure:"retry_delay_base"`
}

// StorageConfig holds artifact and snapshot layout configuration
type StorageConfig struct {
	DataDir     string `mapstructure:"data_dir"`
	RawFile     string `mapstructure:"raw_file"`
	CatalogFile string `mapstructure:"catalog_file"`
	HistoryDir  string `mapstructure:"history_dir"`
	ReportFile  string `mapstructure:"report_file"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration from file, .env, and environment variables
func Load(path string) (*Config, error) {
	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(path)

	setDefaults(v)

	// Enable environment variable override
	v.SetEnvPrefix("MARKETSNAP")
	v.AutomaticEnv()

	// Credential and endpoint-override bindings. GEMINI_API_KEY is kept as a
	// compatibility alias for the bare credential name.
	_ = v.BindEnv("parser.api_key", "MARKETSNAP_PARSER_API_KEY", "GEMINI_API_KEY")
	_ = v.BindEnv("reader.api_key", "MARKETSNAP_READER_API_KEY")
	_ = v.BindEnv("reader.base_url", "MARKETSNAP_READER_BASE_URL")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// setDefaults configures default values for all configuration options
func setDefaults(v *viper.Viper) {
	// Reader defaults
	v.SetDefault("reader.base_url", "https://r.jina.ai")
	v.SetDefault("reader.target_url", "https://polymarket.com/")
	v.SetDefault("reader.timeout", "60s")
	v.SetDefault("reader.max_retries", 2)
	v.SetDefault("reader.retry_delay_base", "2s")
	v.SetDefault("reader.token_budget", 200000)

	// Parser defaults
	v.SetDefault("parser.api_base_url", "https://generativelanguage.googleapis.com")
	v.SetDefault("parser.model", "gemini-1.5-flash")
	v.SetDefault("parser.timeout", "90s")
	v.SetDefault("parser.max_retries", 2)
	v.SetDefault("parser.retry_delay_base", "1s")

	// Storage defaults
	v.SetDefault("storage.data_dir", "./data")
	v.SetDefault("storage.raw_file", "raw_document.json")
	v.SetDefault("storage.catalog_file", "structured_catalog.json")
	v.SetDefault("storage.history_dir", "history")
	v.SetDefault("storage.report_file", "run_report.json")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// Validate checks that all configuration values are valid
func (c *Config) Validate() error {
	// Validate Reader config
	if c.Reader.BaseURL == "" {
		return fmt.Errorf("reader.base_url is required")
	}
	if c.Reader.TargetURL == "" {
		return fmt.Errorf("reader.target_url is required")
	}
	if c.Reader.Timeout < time.Second {
		return fmt.Errorf("reader.timeout must be at least 1 second")
	}
	if c.Reader.MaxRetries < 0 {
		return fmt.Errorf("reader.max_retries must not be negative")
	}
	if c.Reader.TokenBudget < 1000 {
		return fmt.Errorf("reader.token_budget must be at least 1000")
	}

	// Validate Parser config
	if c.Parser.APIBaseURL == "" {
		return fmt.Errorf("parser.api_base_url is required")
	}
	if c.Parser.Model == "" {
		return fmt.Errorf("parser.model is required")
	}
	if c.Parser.Timeout < time.Second {
		return fmt.Errorf("parser.timeout must be at least 1 second")
	}
	if c.Parser.MaxRetries < 0 || c.Parser.MaxRetries > 5 {
		return fmt.Errorf("parser.max_retries must be between 0 and 5")
	}
	if c.Parser.RetryDelayBase < 100*time.Millisecond {
		return fmt.Errorf("parser.retry_delay_base must be at least 100ms")
	}

	// Validate Storage config
	if c.Storage.DataDir == "" {
		return fmt.Errorf("storage.data_dir is required")
	}
	if c.Storage.RawFile == "" {
		return fmt.Errorf("storage.raw_file is required")
	}
	if c.Storage.CatalogFile == "" {
		return fmt.Errorf("storage.catalog_file is required")
	}
	if c.Storage.HistoryDir == "" {
		return fmt.Errorf("storage.history_dir is required")
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

// Redacted returns a copy of the configuration with credentials masked,
// safe for logging.
func (c *Config) Redacted() Config {
	out := *c
	if out.Parser.APIKey != "" {
		out.Parser.APIKey = "***"
	}
	if out.Reader.APIKey != "" {
		out.Reader.APIKey = "***"
	}
	return out
}
