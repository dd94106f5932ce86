// Package gatt defines the narrow GATT client capability the LE connection
// manager uses to read the remote GAP service during interrogation
// (spec.md §4.3 step 4, §6). Full ATT/GATT semantics are out of scope
// (spec.md §1 Non-goals); only the three GAP-service characteristics this
// core consumes are modeled.
package gatt

import (
	"context"
	"time"
)

// UUID16 is a Bluetooth SIG-assigned 16-bit UUID, as used by every
// characteristic this core reads.
type UUID16 uint16

const (
	// CharacteristicDeviceName is the GAP service's Device Name
	// characteristic (0x2A00). Values may exceed the inquiry/EIR maximum
	// and are stored un-truncated (spec.md §6).
	CharacteristicDeviceName UUID16 = 0x2A00

	// CharacteristicAppearance is the GAP service's Appearance
	// characteristic (0x2A01).
	CharacteristicAppearance UUID16 = 0x2A01

	// CharacteristicPeripheralPreferredConnectionParameters is 0x2A04.
	CharacteristicPeripheralPreferredConnectionParameters UUID16 = 0x2A04

	// ServiceGenericAccess is the GAP service's UUID, read in addition to
	// any caller-supplied service_uuid (spec.md §4.3 step 5).
	ServiceGenericAccess UUID16 = 0x1800
)

// PreferredConnectionParams is the decoded form of 0x2A04.
type PreferredConnectionParams struct {
	MinInterval        time.Duration
	MaxInterval        time.Duration
	Latency            uint16
	SupervisionTimeout time.Duration
}

// ConnHandle identifies the link a Client operates on (mirrors
// hci.ConnHandle without importing the hci package, to keep gatt usable
// without pulling in the whole HCI command surface).
type ConnHandle uint16

// Client is the capability used to read the remote GAP service. Missing
// characteristics or read errors are non-fatal to interrogation (spec.md
// §4.3 step 4: "non-fatal").
type Client interface {
	ReadDeviceName(ctx context.Context, handle ConnHandle) (string, error)
	ReadAppearance(ctx context.Context, handle ConnHandle) (uint16, error)
	ReadPreferredConnectionParams(ctx context.Context, handle ConnHandle) (PreferredConnectionParams, error)

	// DiscoverServices triggers discovery of the given service UUIDs
	// (spec.md §4.3 step 5: "{service_uuid, GenericAccessService}").
	DiscoverServices(ctx context.Context, handle ConnHandle, uuids []UUID16) error
}
