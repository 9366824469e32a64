package cmd

import "github.com/spf13/cobra"

func RootCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "vaultd",
		Short: "custodial asset vault with a top depositors leaderboard",
	}
	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yml", "config file path")
	cmd.AddCommand(ServerCmd(&configPath))
	cmd.AddCommand(ReplayCmd(&configPath))
	cmd.AddCommand(ExportCmd(&configPath))
	return cmd
}
