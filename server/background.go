package server

import (
	"context"

	"go.uber.org/zap"

	"github.com/b-harvest/gravity-vault/util"
)

// RunBackgroundUpdater refreshes the caches until ctx is done.
func (s *Server) RunBackgroundUpdater(ctx context.Context) error {
	ticker := util.NewImmediateTicker(s.cfg.CacheUpdateInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.logger.Debug("updating caches")
			if err := s.UpdateLeaderboardCache(ctx); err != nil {
				s.logger.Error("failed to update caches", zap.Error(err))
			}
		}
	}
}
