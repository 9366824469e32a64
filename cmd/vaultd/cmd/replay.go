package cmd

import (
	"bytes"
	"context"
	"fmt"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/b-harvest/gravity-vault/config"
	"github.com/b-harvest/gravity-vault/service/store"
	"github.com/b-harvest/gravity-vault/service/vault"
	"github.com/b-harvest/gravity-vault/util"
)

type ReplayReport struct {
	Sequence        int64                `json:"sequence"`
	TotalAssets     string               `json:"totalAssets"`
	TotalDepositors uint64               `json:"totalDepositors"`
	Top             [2]string            `json:"top"`
	Depositors      []ReplayReportHolder `json:"depositors,omitempty"`
}

type ReplayReportHolder struct {
	Address string `json:"address"`
	Balance string `json:"balance"`
}

func NewReplayReport(cfg config.AssetConfig, seq int64, v *vault.Vault, withDepositors bool) ReplayReport {
	st := v.State()
	r := ReplayReport{
		Sequence:        seq,
		TotalAssets:     util.FormatUnits(st.TotalAssets, cfg.Decimals),
		TotalDepositors: st.TotalDepositors,
	}
	for i, e := range st.Top {
		r.Top[i] = e.Address.Hex()
	}
	if withDepositors {
		var addrs []common.Address
		balances := make(map[common.Address]string)
		v.IterateDepositors(func(addr common.Address, balance *uint256.Int) bool {
			addrs = append(addrs, addr)
			balances[addr] = util.FormatUnits(balance, cfg.Decimals)
			return false
		})
		sort.Slice(addrs, func(i, j int) bool {
			return bytes.Compare(addrs[i].Bytes(), addrs[j].Bytes()) < 0
		})
		for _, addr := range addrs {
			r.Depositors = append(r.Depositors, ReplayReportHolder{Address: addr.Hex(), Balance: balances[addr]})
		}
	}
	return r
}

func ReplayCmd(configPath *string) *cobra.Command {
	var withDepositors bool
	cmd := &cobra.Command{
		Use:   "replay",
		Short: "rebuild the vault from the journal and print its state",
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

			ctx := context.Background()
			mc, err := connectMongo(ctx, cfg.MongoDB)
			if err != nil {
				return err
			}
			defer mc.Disconnect(context.Background())

			v, err := newVault(cfg, logger)
			if err != nil {
				return fmt.Errorf("new vault: %w", err)
			}
			seq, err := store.Replay(ctx, store.NewService(cfg.MongoDB, mc), v)
			if err != nil {
				return err
			}
			logger.Info("replayed journal", zap.Int64("sequence", seq))

			b, err := jsoniter.MarshalIndent(NewReplayReport(cfg.Asset, seq, v, withDepositors), "", "  ")
			if err != nil {
				return fmt.Errorf("marshal report: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(b))
			return nil
		},
	}
	cmd.Flags().BoolVarP(&withDepositors, "depositors", "d", false, "include every depositor's balance")
	return cmd
}
