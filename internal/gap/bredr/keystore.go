package bredr

import "github.com/dantte-lp/gapcore/internal/gap"

// LinkKeyStore is the PeerCache-backed capability PairingState uses to
// fetch and persist BR/EDR link keys, so this package never imports
// peercache directly (spec.md §9: "model these... as messages sent to the
// cache — never as raw back-pointers").
type LinkKeyStore interface {
	GetLinkKey(addr gap.DeviceAddress) (gap.LinkKey, bool)
	StoreLinkKey(addr gap.DeviceAddress, key gap.LinkKey)
}
