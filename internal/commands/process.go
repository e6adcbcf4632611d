package commands

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func newProcessCommand(configPath *string) *cobra.Command {
	var transactionID int64

	cmd := &cobra.Command{
		Use:   "process",
		Short: "Run the reconciliation pipeline for one transaction",
		RunE: func(cmd *cobra.Command, args []string) error {
			if transactionID <= 0 {
				return fmt.Errorf("--transaction is required")
			}

			ctx := cmd.Context()
			deps, err := buildServices(ctx, *configPath)
			if err != nil {
				return err
			}
			defer deps.Close()

			result, err := deps.svc.ProcessTransaction(ctx, transactionID)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(result)
		},
	}

	cmd.Flags().Int64Var(&transactionID, "transaction", 0, "transaction id to process")

	return cmd
}
