// Package hci models the HCI transport boundary consumed by the LE
// connection manager and the BR/EDR pairing state machine (spec.md §1,
// §6): typed commands out, typed events in. The wire-level packet layout
// is out of scope (spec.md §1 Non-goals); this package only defines the
// Go-level shapes the core depends on.
//
// Grounded on the HCI opcode/event constant tables surfaced by the
// Bluetooth-adjacent examples in the retrieval pack (tinygo bluetooth HCI,
// currantlabs/ble's linux HCI binding) and on internal/netio/listener.go's
// channel-based receive-loop shape, generalized here to a typed command/
// event interface instead of raw sockets.
package hci

import (
	"context"
	"net"
	"time"
)

// StatusCode mirrors the Bluetooth HCI command-complete / event status
// byte (Core Spec Vol 2 Part D). Only the values this core's policy
// branches on are named; all others pass through as opaque nonzero values.
type StatusCode uint8

const (
	StatusSuccess StatusCode = 0x00

	// StatusConnectionFailedToBeEstablished is the special 0x3E status that
	// triggers retry semantics (spec.md §4.3).
	StatusConnectionFailedToBeEstablished StatusCode = 0x3E

	StatusUnsupportedRemoteFeature   StatusCode = 0x1A
	StatusConnectionTimeout          StatusCode = 0x08
	StatusConnectionRejectedSecurity StatusCode = 0x0E
	StatusAcceptTimeoutExceeded      StatusCode = 0x10
	StatusTerminatedByLocalHost      StatusCode = 0x16
)

// OK reports whether the status is success.
func (s StatusCode) OK() bool { return s == StatusSuccess }

// ConnHandle is the controller-assigned connection handle (12 bits on the
// wire; widened to uint16 here).
type ConnHandle uint16

// Role is the link-layer role of the local host on a given connection.
type Role uint8

const (
	RoleCentral Role = iota
	RolePeripheral
)

// ConnectParams are the parameters of an HCI LE Create Connection command
// relevant to this core's policy (spec.md §4.3): scan parameters for the
// implicit scan window and the initial connection interval range.
type ConnectParams struct {
	ScanInterval   time.Duration
	ScanWindow     time.Duration
	MinInterval    time.Duration
	MaxInterval    time.Duration
	Latency        uint16
	SupervisionTimeout time.Duration
	OwnAddressType OwnAddressType
}

// OwnAddressType selects which local address type the controller uses for
// an outbound connection (spec.md §9 Open Question: central connections
// currently always use Public).
type OwnAddressType uint8

const (
	OwnAddressTypePublic OwnAddressType = iota
	OwnAddressTypeRandom
)

// ConnectResult is delivered by Connector.CreateConnection's callback
// (LE Connection Complete event, spec.md §6).
type ConnectResult struct {
	Status StatusCode
	Handle ConnHandle
	Role   Role
	PeerAddrType int // gap.AddressType, kept as int to avoid import cycle
	PeerAddr     [6]byte
}

// DisconnectEvent is delivered by Connector.OnDisconnect (HCI Disconnection
// Complete event).
type DisconnectEvent struct {
	Handle ConnHandle
	Reason StatusCode
}

// Connector is the capability this core uses to drive LE connection
// establishment. A real implementation issues `LE Create Connection` /
// `LE Create Connection Cancel` over the HCI command channel and reports
// `LE Connection Complete`/`Disconnection Complete` events; spec.md §5
// calls out that "the connector's outstanding request bit is the only
// piece of shared mutable state the manager reads externally" — callers
// must never invoke CreateConnection while HasOutstandingRequest is true.
type Connector interface {
	// HasOutstandingRequest reports whether an LE Create Connection command
	// is already in flight (spec.md §5 "at most one outstanding HCI LE
	// Create Connection command at a time").
	HasOutstandingRequest() bool

	// CreateConnection issues LE Create Connection for addr with the given
	// parameters. onComplete is invoked exactly once, on the manager's
	// executor, with the LE Connection Complete result.
	CreateConnection(ctx context.Context, addrType int, addr [6]byte, params ConnectParams, onComplete func(ConnectResult)) error

	// CancelConnection issues LE Create Connection Cancel for the
	// outstanding attempt, if any.
	CancelConnection(ctx context.Context) error

	// Disconnect issues HCI Disconnect for handle.
	Disconnect(ctx context.Context, handle ConnHandle) error

	// OnDisconnect registers the callback invoked for every Disconnection
	// Complete event, regardless of which component initiated it.
	OnDisconnect(func(DisconnectEvent))
}

// RemoteVersion is the result of Read Remote Version Information.
type RemoteVersion struct {
	Status       StatusCode
	HCIVersion   uint8
	Manufacturer uint16
}

// RemoteFeatures is the result of LE Read Remote Features.
type RemoteFeatures struct {
	Status StatusCode
	Mask   uint64
}

// Interrogator is the capability used to read the two mandatory
// interrogation values (spec.md §4.3 step 3).
type Interrogator interface {
	ReadRemoteVersion(ctx context.Context, handle ConnHandle) (RemoteVersion, error)
	ReadRemoteLEFeatures(ctx context.Context, handle ConnHandle) (RemoteFeatures, error)
}

// ConnUpdateParams are the parameters of LE Connection Update.
type ConnUpdateParams struct {
	MinInterval        time.Duration
	MaxInterval        time.Duration
	Latency            uint16
	SupervisionTimeout time.Duration
}

// ParamUpdater issues LE Connection Update (spec.md §4.3 parameter-update
// protocol).
type ParamUpdater interface {
	UpdateConnectionParams(ctx context.Context, handle ConnHandle, params ConnUpdateParams) (StatusCode, error)
}

// AddrOf is a convenience for tests/fakes that need a net.HardwareAddr view
// of a raw address value.
func AddrOf(b [6]byte) net.HardwareAddr {
	return net.HardwareAddr(b[:])
}
