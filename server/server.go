package server

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/b-harvest/gravity-vault/config"
	"github.com/b-harvest/gravity-vault/schema"
	"github.com/b-harvest/gravity-vault/service/store"
	"github.com/b-harvest/gravity-vault/service/vault"
)

// Journal is the durable record of committed operations.
type Journal interface {
	store.EntryIterator
	AppendEntry(ctx context.Context, e schema.JournalEntry) error
}

type Server struct {
	*echo.Echo
	cfg    config.ServerConfig
	v      *vault.Vault
	js     Journal
	cache  Cache
	logger *zap.Logger

	// mux keeps journal order equal to commit order.
	mux sync.Mutex
	seq int64
	// cacheMux orders leaderboard cache writes by the state they were built from.
	cacheMux sync.Mutex
}

func New(cfg config.ServerConfig, v *vault.Vault, js Journal, cache Cache, logger *zap.Logger) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Debug = cfg.Debug
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())
	s := &Server{Echo: e, cfg: cfg, v: v, js: js, cache: cache, logger: logger}
	s.registerRoutes()
	return s
}

// Restore rebuilds the vault from the journal. It must be called before the
// server starts accepting requests.
func (s *Server) Restore(ctx context.Context) error {
	s.mux.Lock()
	defer s.mux.Unlock()
	seq, err := store.Replay(ctx, s.js, s.v)
	if err != nil {
		return fmt.Errorf("replay journal: %w", err)
	}
	s.seq = seq
	s.logger.Info("restored vault from journal",
		zap.Int64("sequence", seq),
		zap.String("total_assets", s.v.TotalAssets().Dec()),
		zap.Uint64("total_depositors", s.v.TotalDepositors()))
	return nil
}

func (s *Server) Sequence() int64 {
	s.mux.Lock()
	defer s.mux.Unlock()
	return s.seq
}

// commit runs op and appends its receipt to the journal. When the entry
// cannot be written the operation is reverted, so a failed request leaves the
// vault, the asset and the sequence as they were.
func (s *Server) commit(ctx context.Context, op func() (*vault.Receipt, error)) (*vault.Receipt, int64, error) {
	s.mux.Lock()
	defer s.mux.Unlock()
	r, err := op()
	if err != nil {
		return nil, 0, err
	}
	// the outcome no longer depends on the client staying connected
	ctx = context.WithoutCancel(ctx)
	seq := s.seq + 1
	wctx, cancel := context.WithTimeout(ctx, s.cfg.JournalWriteTimeout)
	defer cancel()
	if err := s.js.AppendEntry(wctx, store.EntryFromReceipt(seq, r)); err != nil {
		if rerr := s.v.Revert(ctx, r); rerr != nil {
			s.logger.Error("vault state diverged from journal",
				zap.Int64("sequence", seq),
				zap.String("receipt", r.ID.String()),
				zap.NamedError("append_error", err),
				zap.NamedError("revert_error", rerr))
			return nil, 0, fmt.Errorf("append journal entry: %w (revert: %v)", err, rerr)
		}
		s.logger.Error("reverted operation that could not be journaled",
			zap.Int64("sequence", seq),
			zap.String("receipt", r.ID.String()),
			zap.Error(err))
		return nil, 0, fmt.Errorf("append journal entry: %w", err)
	}
	s.seq = seq
	return r, seq, nil
}

func (s *Server) ShutdownWithTimeout(timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return s.Shutdown(ctx)
}
