package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check that the server is up",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(cmdContext(cmd), timeout)
		defer cancel()

		h, err := newClient().Health(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s (%s)\n", h.Status, h.Timestamp)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(healthCmd)
}
