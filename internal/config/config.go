// Package config loads application configuration from file and environment
// and owns global logger setup.
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
	Store StoreConfig `yaml:"store" mapstructure:"store"`
	Match MatchConfig `yaml:"match" mapstructure:"match"`
	Log   LogConfig   `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// MatchConfig configures the matching cascade and write-back.
type MatchConfig struct {
	FuzzyZipThreshold      float64 `yaml:"fuzzy_zip_threshold" mapstructure:"fuzzy_zip_threshold"`
	FuzzyCityThreshold     float64 `yaml:"fuzzy_city_threshold" mapstructure:"fuzzy_city_threshold"`
	FuzzyZipLooseThreshold float64 `yaml:"fuzzy_zip_loose_threshold" mapstructure:"fuzzy_zip_loose_threshold"`
	BatchSize              int     `yaml:"batch_size" mapstructure:"batch_size"`
	WritesPerSec           float64 `yaml:"writes_per_sec" mapstructure:"writes_per_sec"`
	UnmatchedSample        int     `yaml:"unmatched_sample" mapstructure:"unmatched_sample"`
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
	v.SetEnvPrefix("ENTITYLINK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults. Every key needs one registered or AutomaticEnv will not
	// surface its environment override through Unmarshal.
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("store.database_url", "")
	v.SetDefault("store.max_conns", 0)
	v.SetDefault("store.min_conns", 0)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("match.fuzzy_zip_threshold", 0.5)
	v.SetDefault("match.fuzzy_city_threshold", 0.4)
	v.SetDefault("match.fuzzy_zip_loose_threshold", 0.3)
	v.SetDefault("match.batch_size", 500)
	v.SetDefault("match.writes_per_sec", 0)
	v.SetDefault("match.unmatched_sample", 10)

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
