package bonds_test

import (
	"path/filepath"
	"testing"

	"github.com/dantte-lp/gapcore/internal/bonds"
	"github.com/dantte-lp/gapcore/internal/gap"
)

func TestLoadMissingFileReturnsEmpty(t *testing.T) {
	t.Parallel()

	out, err := bonds.Load(filepath.Join(t.TempDir(), "does-not-exist.json"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(out) != 0 {
		t.Errorf("out = %v, want empty", out)
	}
}

func TestSaveThenLoadRoundTrips(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "nested", "bonds.json")
	irk := [16]byte{1, 2, 3}
	name := "Test Peer"

	peers := []gap.Peer{
		{
			ID:      gap.PeerId(42),
			Address: gap.DeviceAddress{Type: gap.AddressTypeLERandom, Value: [6]byte{1, 2, 3, 4, 5, 6}},
			Name:    name,
			LE: &gap.LowEnergyData{
				Bond: &gap.LEBondData{
					PeerLTK: &gap.LongTermKey{Value: [16]byte{7}},
					IRK:     &irk,
				},
			},
		},
		{
			// Not bonded: must be skipped on save.
			ID:      gap.PeerId(99),
			Address: gap.DeviceAddress{Type: gap.AddressTypeLEPublic, Value: [6]byte{8, 8, 8, 8, 8, 8}},
			LE:      &gap.LowEnergyData{},
		},
	}

	if err := bonds.Save(path, peers); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := bonds.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(loaded) != 1 {
		t.Fatalf("loaded = %d records, want 1 (unbonded peer must be skipped)", len(loaded))
	}

	got := loaded[0]
	if got.Identifier != gap.PeerId(42) {
		t.Errorf("Identifier = %v, want 42", got.Identifier)
	}
	if got.Name == nil || *got.Name != name {
		t.Errorf("Name = %v, want %q", got.Name, name)
	}
	if got.LEPairingData == nil || got.LEPairingData.PeerLTK == nil {
		t.Fatalf("LEPairingData.PeerLTK missing after round trip")
	}
}
