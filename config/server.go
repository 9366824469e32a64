package config

import (
	"fmt"
	"time"

	"go.uber.org/zap"
)

var DefaultServerConfig = ServerConfig{
	Debug:               false,
	BindAddr:            "0.0.0.0:8080",
	CacheLoadTimeout:    10 * time.Second,
	CacheUpdateInterval: 5 * time.Second,
	JournalWriteTimeout: 5 * time.Second,
	Vault:               DefaultVaultConfig,
	Asset:               DefaultAssetConfig,
	MongoDB:             DefaultMongoDBConfig,
	Redis:               DefaultRedisConfig,
	Log:                 zap.NewProductionConfig(),
}

type ServerConfig struct {
	Debug               bool          `yaml:"debug"`
	BindAddr            string        `yaml:"bind_addr"`
	CacheLoadTimeout    time.Duration `yaml:"cache_load_timeout"`
	CacheUpdateInterval time.Duration `yaml:"cache_update_interval"`
	JournalWriteTimeout time.Duration `yaml:"journal_write_timeout"`
	Vault               VaultConfig   `yaml:"vault"`
	Asset               AssetConfig   `yaml:"asset"`
	MongoDB             MongoDBConfig `yaml:"mongodb"`
	Redis               RedisConfig   `yaml:"redis"`
	Log                 zap.Config    `yaml:"log"`
}

func (cfg ServerConfig) Validate() error {
	if cfg.BindAddr == "" {
		return fmt.Errorf("'bind_addr' is required")
	}
	if cfg.CacheUpdateInterval <= 0 {
		return fmt.Errorf("'cache_update_interval' must be positive")
	}
	if cfg.JournalWriteTimeout <= 0 {
		return fmt.Errorf("'journal_write_timeout' must be positive")
	}
	if err := cfg.Vault.Validate(); err != nil {
		return fmt.Errorf("validate 'vault' field: %w", err)
	}
	if err := cfg.Asset.Validate(); err != nil {
		return fmt.Errorf("validate 'asset' field: %w", err)
	}
	if cfg.Vault.Address == cfg.Asset.Address {
		return fmt.Errorf("'vault.address' and 'asset.address' must differ")
	}
	if err := cfg.MongoDB.Validate(); err != nil {
		return fmt.Errorf("validate 'mongodb' field: %w", err)
	}
	if err := cfg.Redis.Validate(); err != nil {
		return fmt.Errorf("validate 'redis' field: %w", err)
	}
	return nil
}
