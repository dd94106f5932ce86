package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func peerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "peer",
		Short: "Inspect and manage GAP peers",
	}

	cmd.AddCommand(peerListCmd())
	cmd.AddCommand(peerShowCmd())
	cmd.AddCommand(peerConnectCmd())
	cmd.AddCommand(peerDisconnectCmd())
	cmd.AddCommand(peerPairCmd())

	return cmd
}

// --- peer list ---

func peerListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all known peers",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			peers, err := client.ListPeers(context.Background())
			if err != nil {
				return fmt.Errorf("list peers: %w", err)
			}

			out, err := formatPeers(peers, outputFormat)
			if err != nil {
				return fmt.Errorf("format peers: %w", err)
			}

			fmt.Print(out)
			return nil
		},
	}
}

// --- peer show ---

func peerShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <peer-id>",
		Short: "Show details of a single peer",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			p, err := client.GetPeer(context.Background(), args[0])
			if err != nil {
				return fmt.Errorf("get peer: %w", err)
			}

			out, err := formatPeer(p, outputFormat)
			if err != nil {
				return fmt.Errorf("format peer: %w", err)
			}

			fmt.Print(out)
			return nil
		},
	}
}

// --- peer connect ---

func peerConnectCmd() *cobra.Command {
	var autoConnect bool

	cmd := &cobra.Command{
		Use:   "connect <peer-id>",
		Short: "Connect to a peer",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			if err := client.Connect(context.Background(), args[0], autoConnect); err != nil {
				return fmt.Errorf("connect: %w", err)
			}

			fmt.Printf("Connected to %s.\n", args[0])
			return nil
		},
	}

	cmd.Flags().BoolVar(&autoConnect, "auto-connect", false,
		"connect directly without scanning and, on success, set the peer's should_auto_connect flag")

	return cmd
}

// --- peer disconnect ---

func peerDisconnectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "disconnect <peer-id>",
		Short: "Disconnect from a peer",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			if err := client.Disconnect(context.Background(), args[0]); err != nil {
				return fmt.Errorf("disconnect: %w", err)
			}

			fmt.Printf("Disconnected from %s.\n", args[0])
			return nil
		},
	}
}

// --- peer pair ---

func peerPairCmd() *cobra.Command {
	var (
		level    string
		bondable bool
	)

	cmd := &cobra.Command{
		Use:   "pair <peer-id>",
		Short: "Pair with a connected peer",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			if err := client.Pair(context.Background(), args[0], level, bondable); err != nil {
				return fmt.Errorf("pair: %w", err)
			}

			fmt.Printf("Paired with %s.\n", args[0])
			return nil
		},
	}

	cmd.Flags().StringVar(&level, "level", "encrypted",
		"required security level: encrypted, authenticated, secure_authenticated")
	cmd.Flags().BoolVar(&bondable, "bondable", true, "allow persistent bonding")

	return cmd
}
