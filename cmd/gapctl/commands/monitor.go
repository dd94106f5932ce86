package commands

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

func monitorCmd() *cobra.Command {
	var interval time.Duration

	cmd := &cobra.Command{
		Use:   "monitor",
		Short: "Poll and print peer state changes",
		Long:  "Polls the gapd daemon's peer list on an interval and prints it until interrupted (Ctrl+C).",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			ticker := time.NewTicker(interval)
			defer ticker.Stop()

			if err := printPeerSnapshot(ctx); err != nil {
				return err
			}

			for {
				select {
				case <-ctx.Done():
					if errors.Is(ctx.Err(), context.Canceled) {
						return nil
					}
					return ctx.Err()
				case <-ticker.C:
					if err := printPeerSnapshot(ctx); err != nil {
						return err
					}
				}
			}
		},
	}

	cmd.Flags().DurationVar(&interval, "interval", 2*time.Second, "polling interval")

	return cmd
}

func printPeerSnapshot(ctx context.Context) error {
	peers, err := client.ListPeers(ctx)
	if err != nil {
		return fmt.Errorf("list peers: %w", err)
	}

	out, err := formatPeers(peers, outputFormat)
	if err != nil {
		return fmt.Errorf("format peers: %w", err)
	}

	fmt.Printf("--- %s ---\n%s\n", time.Now().Format(time.RFC3339), out)
	return nil
}
