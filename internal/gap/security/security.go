// Package security defines the SecurityManager and PairingDelegate
// capabilities LeConnectionManager drives per-link security through
// (spec.md §4.3 Pair/SetSecurityMode, §6, §9 "Dynamic dispatch").
// SMP (the LE wire protocol) itself is out of scope (spec.md §1
// Non-goals); only the interface this core programs against is modeled.
package security

import (
	"context"

	"github.com/dantte-lp/gapcore/internal/gap"
)

// Mode is the adapter-wide security policy (spec.md §4.3 SetSecurityMode).
type Mode uint8

const (
	ModeMode1 Mode = iota
	ModeSecureConnectionsOnly
)

func (m Mode) String() string {
	if m == ModeSecureConnectionsOnly {
		return "SecureConnectionsOnly"
	}
	return "Mode1"
}

// BondableMode controls whether a successful pairing is persisted.
type BondableMode uint8

const (
	Bondable BondableMode = iota
	NonBondable
)

// UpgradeCallback resolves an UpgradeSecurity call exactly once.
type UpgradeCallback func(level gap.SecurityLevel, err error)

// Manager drives SMP pairing/encryption for one LE link. LeConnection
// holds one Manager for its lifetime (spec.md §3 "a SecurityManager").
type Manager interface {
	// CurrentLevel returns the link's currently achieved security level.
	CurrentLevel() gap.SecurityLevel

	// UpgradeSecurity requests at least level, pairing if the current level
	// is insufficient. cb fires exactly once.
	UpgradeSecurity(ctx context.Context, level gap.SecurityLevel, bondable BondableMode, cb UpgradeCallback)

	// SetMode applies the adapter-wide security mode to this link; in
	// SecureConnectionsOnly, a link not already SecureAuthenticated and
	// not NoSecurity must be disconnected by the caller (spec.md §4.3).
	SetMode(mode Mode)
}

// PairingDelegate is the LE analog of bredr.Delegate (spec.md §6): the
// same plug-in shape consulted during SMP pairing. Kept as a distinct type
// because the two wire protocols (SSP vs SMP) drive it from different
// event sources even though the user-facing contract is identical.
type PairingDelegate interface {
	IOCapability() IOCapability
	ConfirmPairing(peer gap.PeerId, cb func(accept bool))
	DisplayPasskey(peer gap.PeerId, value uint32, cb func(accept bool))
	RequestPasskey(peer gap.PeerId, cb func(passkey uint32, ok bool))
	CompletePairing(peer gap.PeerId, status error)
}

// IOCapability mirrors bredr.IOCapability for SMP's IO capability exchange
// (Core Spec Vol 3 Part H §2.3.2); kept distinct to avoid a security->bredr
// import for what is, at the wire level, a different TLV encoding.
type IOCapability uint8

const (
	IOCapabilityDisplayOnly IOCapability = iota
	IOCapabilityDisplayYesNo
	IOCapabilityKeyboardOnly
	IOCapabilityNoInputNoOutput
	IOCapabilityKeyboardDisplay
)
