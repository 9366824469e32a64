package cmd

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/b-harvest/gravity-vault/config"
	"github.com/b-harvest/gravity-vault/service/asset"
	"github.com/b-harvest/gravity-vault/service/vault"
	"github.com/b-harvest/gravity-vault/util"
)

func loadServerConfig(path string) (config.ServerConfig, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return config.ServerConfig{}, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Server.Validate(); err != nil {
		return config.ServerConfig{}, fmt.Errorf("validate server config: %w", err)
	}
	return cfg.Server, nil
}

func connectMongo(ctx context.Context, cfg config.MongoDBConfig) (*mongo.Client, error) {
	mc, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("connect mongodb: %w", err)
	}
	return mc, nil
}

// newToken creates the in-process asset with its genesis balances minted.
func newToken(cfg config.AssetConfig) (*asset.MemToken, error) {
	tok := asset.NewMemToken(common.HexToAddress(cfg.Address))
	for _, g := range cfg.Genesis {
		amount, err := util.ParseUnits(g.Amount, cfg.Decimals)
		if err != nil {
			return nil, fmt.Errorf("parse genesis amount of %s: %w", g.Address, err)
		}
		if err := tok.Mint(common.HexToAddress(g.Address), amount); err != nil {
			return nil, fmt.Errorf("mint genesis balance: %w", err)
		}
	}
	return tok, nil
}

func newVault(cfg config.ServerConfig, logger *zap.Logger) (*vault.Vault, error) {
	tok, err := newToken(cfg.Asset)
	if err != nil {
		return nil, err
	}
	return vault.New(vault.Metadata{
		Name:    cfg.Vault.Name,
		Symbol:  cfg.Vault.Symbol,
		Address: common.HexToAddress(cfg.Vault.Address),
	}, tok, logger)
}
