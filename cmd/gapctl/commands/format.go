package commands

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"
)

const (
	formatJSON  = "json"
	formatTable = "table"
)

// errUnsupportedFormat is returned when the requested output format is not supported.
var errUnsupportedFormat = errors.New("unsupported output format")

// formatPeers renders a slice of peers in the requested format.
func formatPeers(peers []peerView, format string) (string, error) {
	switch format {
	case formatJSON:
		return formatJSONValue(peers)
	case formatTable:
		return formatPeersTable(peers), nil
	default:
		return "", fmt.Errorf("%w: %q", errUnsupportedFormat, format)
	}
}

// formatPeer renders a single peer in the requested format.
func formatPeer(p peerView, format string) (string, error) {
	switch format {
	case formatJSON:
		return formatJSONValue(p)
	case formatTable:
		return formatPeerDetail(p), nil
	default:
		return "", fmt.Errorf("%w: %q", errUnsupportedFormat, format)
	}
}

// formatConnections renders a slice of connected peer ids in the requested format.
func formatConnections(ids []string, format string) (string, error) {
	switch format {
	case formatJSON:
		return formatJSONValue(ids)
	case formatTable:
		var buf strings.Builder
		for _, id := range ids {
			fmt.Fprintln(&buf, id)
		}
		return buf.String(), nil
	default:
		return "", fmt.Errorf("%w: %q", errUnsupportedFormat, format)
	}
}

func formatJSONValue(v any) (string, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal to JSON: %w", err)
	}
	return string(data) + "\n", nil
}

func formatPeersTable(peers []peerView) string {
	var buf strings.Builder
	w := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tADDRESS\tNAME\tTECH\tBONDED\tCONNECTED\tTEMPORARY")

	for _, p := range peers {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%t\t%t\t%t\n",
			p.ID, p.Address, nonEmpty(p.Name), p.Technology, p.Bonded, p.Connected, p.Temporary)
	}

	_ = w.Flush()
	return buf.String()
}

func formatPeerDetail(p peerView) string {
	var buf strings.Builder
	w := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)

	fmt.Fprintf(w, "ID:\t%s\n", p.ID)
	fmt.Fprintf(w, "Address:\t%s\n", p.Address)
	fmt.Fprintf(w, "Name:\t%s\n", nonEmpty(p.Name))
	fmt.Fprintf(w, "Technology:\t%s\n", p.Technology)
	fmt.Fprintf(w, "Bonded:\t%t\n", p.Bonded)
	fmt.Fprintf(w, "Connected:\t%t\n", p.Connected)
	fmt.Fprintf(w, "Temporary:\t%t\n", p.Temporary)
	fmt.Fprintf(w, "Auto-connect:\t%t\n", p.ShouldAutoConnect)

	_ = w.Flush()
	return buf.String()
}

func nonEmpty(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
