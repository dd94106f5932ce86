package bredr

import "github.com/dantte-lp/gapcore/internal/gap"

// DisplayPasskeyMethod distinguishes whether a displayed passkey must be
// compared against the peer's (numeric comparison) or simply shown while
// the peer enters it (passkey entry).
type DisplayPasskeyMethod uint8

const (
	DisplayPasskeyMethodComparison DisplayPasskeyMethod = iota
	DisplayPasskeyMethodEntry
)

// Delegate is the host-supplied capability consulted for user interaction
// during pairing (spec.md §6 "Pairing delegate plug-in interface"). A link
// with no registered delegate can still accept passively-authenticated
// reconnection via a stored link key (OnLinkKeyRequest from Idle), but any
// fresh Simple Pairing sequence fails with ErrNotReady.
type Delegate interface {
	// IOCapability reports the local device's IO capability.
	IOCapability() IOCapability

	// ConfirmPairing asks the user to accept or reject pairing with peer
	// (Action GetConsent or ComparePasskey). cb is invoked with the user's
	// decision.
	ConfirmPairing(peer gap.PeerId, cb func(accept bool))

	// DisplayPasskey shows value to the user, either for numeric comparison
	// against the peer's displayed value or for passkey entry on the peer.
	// cb is invoked with the user's accept/reject decision.
	DisplayPasskey(peer gap.PeerId, value uint32, method DisplayPasskeyMethod, cb func(accept bool))

	// RequestPasskey asks the user to type in a passkey displayed by the
	// peer. cb is invoked with the entered value, or ok=false on
	// cancellation.
	RequestPasskey(peer gap.PeerId, cb func(passkey uint32, ok bool))

	// CompletePairing reports the final pairing outcome for peer; status is
	// nil on success.
	CompletePairing(peer gap.PeerId, status error)
}
