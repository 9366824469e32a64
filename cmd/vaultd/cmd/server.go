package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gomodule/redigo/redis"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/b-harvest/gravity-vault/server"
	"github.com/b-harvest/gravity-vault/service/store"
)

func ServerCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "server",
		Short: "run web server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true

			cfg, err := loadServerConfig(*configPath)
			if err != nil {
				return err
			}

			logger, err := cfg.Log.Build()
			if err != nil {
				return fmt.Errorf("build logger: %w", err)
			}
			defer logger.Sync()

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			mc, err := connectMongo(ctx, cfg.MongoDB)
			if err != nil {
				return err
			}
			defer mc.Disconnect(context.Background())

			ss := store.NewService(cfg.MongoDB, mc)
			names, err := ss.EnsureDBIndexes(ctx)
			if err != nil {
				return fmt.Errorf("ensure db indexes: %w", err)
			}
			logger.Debug("ensured db indexes", zap.Strings("names", names))

			rp := &redis.Pool{
				Dial: func() (redis.Conn, error) {
					return redis.DialURL(cfg.Redis.URL)
				},
			}
			defer rp.Close()

			v, err := newVault(cfg, logger)
			if err != nil {
				return fmt.Errorf("new vault: %w", err)
			}
			s := server.New(cfg, v, ss, server.NewRedisCache(rp), logger)
			if err := s.Restore(ctx); err != nil {
				return err
			}

			eg, ctx := errgroup.WithContext(ctx)
			eg.Go(func() error {
				logger.Info("starting server", zap.String("addr", cfg.BindAddr))
				if err := s.Start(cfg.BindAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return fmt.Errorf("start server: %w", err)
				}
				return nil
			})
			eg.Go(func() error {
				if err := s.RunBackgroundUpdater(ctx); err != nil && !errors.Is(err, context.Canceled) {
					return err
				}
				return nil
			})
			eg.Go(func() error {
				quit := make(chan os.Signal, 1)
				signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
				defer signal.Stop(quit)
				select {
				case <-quit:
					logger.Info("gracefully shutting down")
				case <-ctx.Done():
				}
				cancel()
				if err := s.ShutdownWithTimeout(10 * time.Second); err != nil {
					return fmt.Errorf("shutdown server: %w", err)
				}
				return nil
			})
			return eg.Wait()
		},
	}
	return cmd
}
