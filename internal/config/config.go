// Package config loads the service configuration from file and environment
// and initializes the global logger.
package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/pricepatrol/community-low/internal/server"
	"github.com/pricepatrol/community-low/internal/store"
)

// Config holds the full application configuration.
type Config struct {
	Store  store.Config  `yaml:"store" mapstructure:"store"`
	Server server.Config `yaml:"server" mapstructure:"server"`
	Trust  TrustConfig   `yaml:"trust" mapstructure:"trust"`
	Ingest IngestConfig  `yaml:"ingest" mapstructure:"ingest"`
	Cache  CacheConfig   `yaml:"cache" mapstructure:"cache"`
	Client ClientConfig  `yaml:"client" mapstructure:"client"`
	Log    LogConfig     `yaml:"log" mapstructure:"log"`
}

// TrustConfig configures trust classification.
type TrustConfig struct {
	WindowHours int `yaml:"window_hours" mapstructure:"window_hours"`
	Quorum      int `yaml:"quorum" mapstructure:"quorum"`
}

// IngestConfig configures report ingestion.
type IngestConfig struct {
	Salt     string  `yaml:"salt" mapstructure:"salt"`
	MinPrice float64 `yaml:"min_price" mapstructure:"min_price"`
}

// CacheConfig configures the read-through cache TTLs.
type CacheConfig struct {
	LowestTTLMinutes   int `yaml:"lowest_ttl_minutes" mapstructure:"lowest_ttl_minutes"`
	SnapshotTTLMinutes int `yaml:"snapshot_ttl_minutes" mapstructure:"snapshot_ttl_minutes"`
}

// ClientConfig configures the CLI's use of the client SDK.
type ClientConfig struct {
	BaseURL         string `yaml:"base_url" mapstructure:"base_url"`
	FlushIntervalMS int    `yaml:"flush_interval_ms" mapstructure:"flush_interval_ms"`
	MaxBatch        int    `yaml:"max_batch" mapstructure:"max_batch"`
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
	v.SetEnvPrefix("COMMUNITYLOW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "community-low.db")
	v.SetDefault("server.port", 8787)
	v.SetDefault("server.rate_limit_rps", 0)
	v.SetDefault("server.rate_limit_burst", 20)
	v.SetDefault("trust.window_hours", 24)
	v.SetDefault("trust.quorum", 2)
	v.SetDefault("ingest.salt", "SALT")
	v.SetDefault("ingest.min_price", 10)
	v.SetDefault("cache.lowest_ttl_minutes", 30)
	v.SetDefault("cache.snapshot_ttl_minutes", 60)
	v.SetDefault("client.base_url", "http://localhost:8787")
	v.SetDefault("client.flush_interval_ms", 1000)
	v.SetDefault("client.max_batch", 100)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

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
