package server

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gomodule/redigo/redis"
	jsoniter "github.com/json-iterator/go"

	"github.com/b-harvest/gravity-vault/schema"
	"github.com/b-harvest/gravity-vault/util"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Cache is a byte store keyed by string. Load returns redis.ErrNil for a
// missing key.
type Cache interface {
	Save(ctx context.Context, key string, b []byte) error
	Load(ctx context.Context, key string) ([]byte, error)
}

type RedisCache struct {
	rp *redis.Pool
}

func NewRedisCache(rp *redis.Pool) *RedisCache {
	return &RedisCache{rp}
}

func (rc *RedisCache) Save(ctx context.Context, key string, b []byte) error {
	c, err := rc.rp.GetContext(ctx)
	if err != nil {
		return fmt.Errorf("get redis conn: %w", err)
	}
	defer c.Close()
	_, err = c.Do("SET", key, b)
	return err
}

func (rc *RedisCache) Load(ctx context.Context, key string) ([]byte, error) {
	c, err := rc.rp.GetContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("get redis conn: %w", err)
	}
	defer c.Close()
	return redis.Bytes(c.Do("GET", key))
}

// UpdateLeaderboardCache saves the current leaderboard. Concurrent updates
// are saved in the order their state was read, so an older state never
// overwrites a newer one.
func (s *Server) UpdateLeaderboardCache(ctx context.Context) error {
	s.cacheMux.Lock()
	defer s.cacheMux.Unlock()
	s.mux.Lock()
	seq := s.seq
	st := s.v.State()
	s.mux.Unlock()
	cache := schema.LeaderboardCache{
		JournalSequence:      seq,
		TotalAssets:          st.TotalAssets.Dec(),
		TotalAssetsFormatted: util.FormatUnits(st.TotalAssets, s.cfg.Asset.Decimals),
		TotalDepositors:      st.TotalDepositors,
		Top:                  []schema.LeaderboardCacheEntry{},
		UpdatedAt:            time.Now(),
	}
	for i, e := range st.Top {
		e := e
		cache.Top = append(cache.Top, schema.LeaderboardCacheEntry{
			Rank:             i + 1,
			Address:          e.Address.Hex(),
			Balance:          e.Balance.Dec(),
			BalanceFormatted: util.FormatUnits(&e.Balance, s.cfg.Asset.Decimals),
		})
	}
	if err := s.SaveLeaderboardCache(ctx, cache); err != nil {
		return fmt.Errorf("save cache: %w", err)
	}
	return nil
}

func (s *Server) SaveLeaderboardCache(ctx context.Context, cache schema.LeaderboardCache) error {
	b, err := json.Marshal(cache)
	if err != nil {
		return fmt.Errorf("marshal cache: %w", err)
	}
	return s.cache.Save(ctx, s.cfg.Redis.LeaderboardCacheKey, b)
}

func (s *Server) LoadLeaderboardCache(ctx context.Context) (cache schema.LeaderboardCache, err error) {
	b, err := s.cache.Load(ctx, s.cfg.Redis.LeaderboardCacheKey)
	if err != nil {
		return cache, err
	}
	err = json.Unmarshal(b, &cache)
	if err != nil {
		return cache, fmt.Errorf("unmarshal cache: %w", err)
	}
	return
}

func RetryLoadingCache(ctx context.Context, fn func(context.Context) error, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	ticker := util.NewImmediateTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := fn(ctx); err != nil {
				if !errors.Is(err, redis.ErrNil) {
					return err
				}
			} else {
				return nil
			}
		}
	}
}
