package commands

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func newRunCommand(configPath *string) *cobra.Command {
	var tenantID string
	var limit int

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Reconcile a tenant's full pending backlog",
		RunE: func(cmd *cobra.Command, args []string) error {
			if tenantID == "" {
				return fmt.Errorf("--tenant is required")
			}

			ctx := cmd.Context()
			deps, err := buildServices(ctx, *configPath)
			if err != nil {
				return err
			}
			defer deps.Close()

			if limit <= 0 {
				limit = deps.cfg.Reconciliation.BatchLimit
			}
			stats, err := deps.svc.ProcessAllPending(ctx, tenantID, limit)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(stats)
		},
	}

	cmd.Flags().StringVar(&tenantID, "tenant", "", "tenant to reconcile")
	cmd.Flags().IntVar(&limit, "limit", 0, "batch size cap (defaults to config)")

	return cmd
}
