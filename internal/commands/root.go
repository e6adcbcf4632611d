package commands

import (
	"github.com/spf13/cobra"
)

// NewRootCommand creates the root CLI command with all subcommands registered.
func NewRootCommand() *cobra.Command {
	var configPath string

	rootCmd := &cobra.Command{
		Use:   "ledgerctl",
		Short: "Ledger engine and bank reconciliation toolkit",
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to ledger.yaml (defaults apply when omitted)")

	rootCmd.AddCommand(newServeCommand(&configPath))
	rootCmd.AddCommand(newRunCommand(&configPath))
	rootCmd.AddCommand(newProcessCommand(&configPath))
	rootCmd.AddCommand(newHealthCommand(&configPath))
	rootCmd.AddCommand(newVerifyAuditCommand(&configPath))

	return rootCmd
}
