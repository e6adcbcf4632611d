package commands

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func newHealthCommand(configPath *string) *cobra.Command {
	var tenantID string

	cmd := &cobra.Command{
		Use:   "health",
		Short: "Run ledger integrity checks for a tenant",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			deps, err := buildServices(ctx, *configPath)
			if err != nil {
				return err
			}
			defer deps.Close()

			report, err := deps.svc.LedgerHealth(ctx, tenantID)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			if err := enc.Encode(report); err != nil {
				return err
			}
			if !report.Healthy {
				return fmt.Errorf("ledger integrity checks failed for tenant %s", tenantID)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&tenantID, "tenant", "", "tenant to check (required)")
	_ = cmd.MarkFlagRequired("tenant")

	return cmd
}
