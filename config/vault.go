package config

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/b-harvest/gravity-vault/util"
)

var DefaultVaultConfig = VaultConfig{
	Name:    "CMDEV Vault",
	Symbol:  "vCMDEV",
	Address: "0x000000000000000000000000000000000000a017",
}

type VaultConfig struct {
	Name    string `yaml:"name"`
	Symbol  string `yaml:"symbol"`
	Address string `yaml:"address"`
}

func (cfg VaultConfig) Validate() error {
	if cfg.Name == "" {
		return fmt.Errorf("'name' is required")
	}
	if !isNonZeroAddress(cfg.Address) {
		return fmt.Errorf("'address' %q is not a valid non-zero address", cfg.Address)
	}
	return nil
}

var DefaultAssetConfig = AssetConfig{
	Symbol:   "TEST",
	Decimals: 18,
	Address:  "0x0000000000000000000000000000000000a55e75",
}

// AssetConfig describes the in-process token the vault holds in custody.
// Genesis balances are given in whole units.
type AssetConfig struct {
	Symbol   string           `yaml:"symbol"`
	Decimals int32            `yaml:"decimals"`
	Address  string           `yaml:"address"`
	Genesis  []GenesisBalance `yaml:"genesis"`
}

type GenesisBalance struct {
	Address string `yaml:"address"`
	Amount  string `yaml:"amount"`
}

func (cfg AssetConfig) Validate() error {
	if cfg.Decimals < 0 || cfg.Decimals > 77 {
		return fmt.Errorf("'decimals' must be within [0, 77]")
	}
	if !isNonZeroAddress(cfg.Address) {
		return fmt.Errorf("'address' %q is not a valid non-zero address", cfg.Address)
	}
	for i, g := range cfg.Genesis {
		if !isNonZeroAddress(g.Address) {
			return fmt.Errorf("'genesis[%d].address' %q is not a valid non-zero address", i, g.Address)
		}
		if _, err := util.ParseUnits(g.Amount, cfg.Decimals); err != nil {
			return fmt.Errorf("'genesis[%d].amount': %w", i, err)
		}
	}
	return nil
}

func isNonZeroAddress(s string) bool {
	return common.IsHexAddress(s) && common.HexToAddress(s) != (common.Address{})
}
