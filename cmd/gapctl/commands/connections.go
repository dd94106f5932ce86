package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func connectionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "connections",
		Short: "List actively connected peers",
	}

	cmd.AddCommand(connectionsListCmd())

	return cmd
}

func connectionsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List peer ids with an active LE connection",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			ids, err := client.ListConnections(context.Background())
			if err != nil {
				return fmt.Errorf("list connections: %w", err)
			}

			out, err := formatConnections(ids, outputFormat)
			if err != nil {
				return fmt.Errorf("format connections: %w", err)
			}

			fmt.Print(out)
			return nil
		},
	}
}
