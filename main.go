package main

import (
	"os"

	"github.com/b-harvest/gravity-vault/cmd/vaultd/cmd"
)

func main() {
	if err := cmd.RootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
