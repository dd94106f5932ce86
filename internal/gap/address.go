// Package gap holds the data model shared by the peer cache, the LE
// connection manager, and the BR/EDR pairing state machine: device
// addresses, the canonical Peer record, bonding data, and the error
// taxonomy every core component returns.
package gap

import (
	"fmt"
	"strings"
)

// AddressType distinguishes the four Bluetooth address flavors a Peer may
// be known by. BREDR and LEPublic addresses with identical bytes refer to
// the same physical radio on a dual-mode controller (aliases); the cache
// reconciles them to a single Peer.
type AddressType uint8

const (
	// AddressTypeBREDR is a classic Basic Rate/Enhanced Data Rate address.
	AddressTypeBREDR AddressType = iota
	// AddressTypeLEPublic is a public LE address (IEEE-assigned).
	AddressTypeLEPublic
	// AddressTypeLERandom is a private or static LE random address.
	AddressTypeLERandom
	// AddressTypeLEAnonymous marks an anonymous LE advertiser (no address
	// is meaningfully associated with the peer).
	AddressTypeLEAnonymous
)

// String returns the human-readable name of the address type.
func (t AddressType) String() string {
	switch t {
	case AddressTypeBREDR:
		return "BREDR"
	case AddressTypeLEPublic:
		return "LEPublic"
	case AddressTypeLERandom:
		return "LERandom"
	case AddressTypeLEAnonymous:
		return "LEAnonymous"
	default:
		return "Unknown"
	}
}

// IsLE reports whether this address type belongs to the LE transport.
func (t AddressType) IsLE() bool {
	return t == AddressTypeLEPublic || t == AddressTypeLERandom || t == AddressTypeLEAnonymous
}

// DeviceAddress is a (type, 48-bit value) pair identifying a remote radio.
// The zero value is not a valid address.
type DeviceAddress struct {
	Type  AddressType
	Value [6]byte
}

// String renders the address as "TYPE AA:BB:CC:DD:EE:FF", matching the
// notation used throughout spec scenarios.
func (a DeviceAddress) String() string {
	b := a.Value
	return fmt.Sprintf("%s %02X:%02X:%02X:%02X:%02X:%02X", a.Type, b[0], b[1], b[2], b[3], b[4], b[5])
}

// IsValid reports whether the address has a nonzero value. The all-zero
// address is used as a sentinel for "no address" and is never valid.
func (a DeviceAddress) IsValid() bool {
	return a.Value != [6]byte{}
}

// aliasKey is the identity used to detect BREDR/LEPublic aliasing: same
// 48-bit value, technology-insensitive. Only BREDR and LEPublic addresses
// participate in aliasing (LERandom addresses are not stable identifiers).
func (a DeviceAddress) aliasKey() (key [6]byte, aliasable bool) {
	if a.Type == AddressTypeBREDR || a.Type == AddressTypeLEPublic {
		return a.Value, true
	}
	return [6]byte{}, false
}

// IsAliasOf reports whether a and other refer to the same physical device
// under the BREDR/LEPublic dual-mode aliasing rule (spec.md §3).
func (a DeviceAddress) IsAliasOf(other DeviceAddress) bool {
	ak, aOK := a.aliasKey()
	bk, bOK := other.aliasKey()
	return aOK && bOK && ak == bk
}

// ParseAddressValue parses a colon-separated hex string ("AA:BB:CC:DD:EE:FF")
// into a 6-byte address value.
func ParseAddressValue(s string) ([6]byte, error) {
	var out [6]byte
	parts := strings.Split(s, ":")
	if len(parts) != 6 {
		return out, fmt.Errorf("parse address %q: want 6 colon-separated octets", s)
	}
	for i, p := range parts {
		var b uint8
		if _, err := fmt.Sscanf(p, "%02X", &b); err != nil {
			return out, fmt.Errorf("parse address %q: octet %d: %w", s, i, err)
		}
		out[i] = b
	}
	return out, nil
}

// Technology describes which transports a Peer has been observed on.
type Technology uint8

const (
	// TechnologyUnknown is the zero value before any sub-record exists.
	TechnologyUnknown Technology = iota
	// TechnologyClassic means only bredr_data is populated.
	TechnologyClassic
	// TechnologyLowEnergy means only le_data is populated.
	TechnologyLowEnergy
	// TechnologyDualMode means both sub-records are populated.
	TechnologyDualMode
)

// String returns the human-readable name of the technology.
func (t Technology) String() string {
	switch t {
	case TechnologyClassic:
		return "Classic"
	case TechnologyLowEnergy:
		return "LowEnergy"
	case TechnologyDualMode:
		return "DualMode"
	default:
		return "Unknown"
	}
}

// ConnState is the per-technology connection state (spec.md §3).
type ConnState uint8

const (
	// ConnStateNotConnected is the initial/idle state.
	ConnStateNotConnected ConnState = iota
	// ConnStateInitializing covers scanning/connecting/interrogating.
	ConnStateInitializing
	// ConnStateConnected means interrogation completed and the link is up.
	ConnStateConnected
)

// String returns the human-readable name of the connection state.
func (s ConnState) String() string {
	switch s {
	case ConnStateNotConnected:
		return "NotConnected"
	case ConnStateInitializing:
		return "Initializing"
	case ConnStateConnected:
		return "Connected"
	default:
		return "Unknown"
	}
}
