package config

import "fmt"

var DefaultRedisConfig = RedisConfig{
	URL:                 "redis://localhost",
	LeaderboardCacheKey: "gvault:leaderboard",
}

type RedisConfig struct {
	URL                 string `yaml:"url"`
	LeaderboardCacheKey string `yaml:"leaderboard_cache_key"`
}

func (cfg RedisConfig) Validate() error {
	if cfg.URL == "" {
		return fmt.Errorf("'url' is required")
	}
	if cfg.LeaderboardCacheKey == "" {
		return fmt.Errorf("'leaderboard_cache_key' is required")
	}
	return nil
}
