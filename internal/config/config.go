// Package config loads application configuration and initializes logging.
package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	FMP       FMPConfig       `yaml:"fmp" mapstructure:"fmp"`
	Serp      SerpConfig      `yaml:"serp" mapstructure:"serp"`
	CSE       CSEConfig       `yaml:"cse" mapstructure:"cse"`
	Anthropic AnthropicConfig `yaml:"anthropic" mapstructure:"anthropic"`
	Notion    NotionConfig    `yaml:"notion" mapstructure:"notion"`
	Recon     ReconConfig     `yaml:"recon" mapstructure:"recon"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// FMPConfig holds Financial Modeling Prep API settings.
type FMPConfig struct {
	Key         string `yaml:"key" mapstructure:"key"`
	BaseURL     string `yaml:"base_url" mapstructure:"base_url"`
	ScreenLimit int    `yaml:"screen_limit" mapstructure:"screen_limit"`
	Years       int    `yaml:"years" mapstructure:"years"`
}

// SerpConfig holds SerpAPI settings.
type SerpConfig struct {
	Key         string `yaml:"key" mapstructure:"key"`
	BaseURL     string `yaml:"base_url" mapstructure:"base_url"`
	ScreenLimit int    `yaml:"screen_limit" mapstructure:"screen_limit"`
}

// CSEConfig holds Google Custom Search settings for market-size scraping.
type CSEConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	ID      string `yaml:"id" mapstructure:"id"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// AnthropicConfig holds Anthropic API settings for insight generation.
type AnthropicConfig struct {
	Key       string `yaml:"key" mapstructure:"key"`
	Model     string `yaml:"model" mapstructure:"model"`
	MaxTokens int64  `yaml:"max_tokens" mapstructure:"max_tokens"`
}

// NotionConfig holds the optional Notion review-queue mirror settings.
type NotionConfig struct {
	Token    string `yaml:"token" mapstructure:"token"`
	ReviewDB string `yaml:"review_db" mapstructure:"review_db"`
}

// ReconConfig configures the reconciliation run.
type ReconConfig struct {
	Provenance      string `yaml:"provenance" mapstructure:"provenance"`
	MetricAliasFile string `yaml:"metric_alias_file" mapstructure:"metric_alias_file"`
}

// ServerConfig configures the review HTTP server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("MARKET")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "market-explorer.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("fmp.base_url", "https://financialmodelingprep.com")
	v.SetDefault("fmp.screen_limit", 30)
	v.SetDefault("fmp.years", 10)
	v.SetDefault("serp.base_url", "https://serpapi.com")
	v.SetDefault("serp.screen_limit", 20)
	v.SetDefault("cse.base_url", "https://customsearch.googleapis.com")
	v.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.max_tokens", 1024)
	v.SetDefault("recon.provenance", "FMP-API")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
