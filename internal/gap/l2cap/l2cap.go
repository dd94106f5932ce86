// Package l2cap defines the narrow L2CAP capability this core consumes:
// fixed-channel identification and the Connection Parameter Update Request
// fallback used when a peer doesn't support the HCI LE Connection Update
// command (spec.md §4.3 parameter-update protocol, §6).
package l2cap

import (
	"context"
	"time"
)

// Fixed channel identifiers this core cares about (spec.md §6).
const (
	CIDAttributeProtocol ChannelID = 0x0004
	CIDSignaling         ChannelID = 0x0005
	CIDSecurityManager   ChannelID = 0x0006
)

// ChannelID is an L2CAP channel identifier.
type ChannelID uint16

// ConnParamsUpdateRequest mirrors the Signaling channel's Connection
// Parameter Update Request payload.
type ConnParamsUpdateRequest struct {
	MinInterval        time.Duration
	MaxInterval        time.Duration
	Latency            uint16
	SupervisionTimeout time.Duration
}

// ConnHandle identifies the link (mirrors hci.ConnHandle; kept separate so
// this package has no dependency on the HCI command surface).
type ConnHandle uint16

// Signaling is the fallback parameter-update path used when the peer's LE
// feature bitmask lacks ConnectionParametersRequestProcedure, or when the
// HCI LE Connection Update command/event reports UnsupportedRemoteFeature
// (spec.md §4.3).
type Signaling interface {
	RequestConnectionParamsUpdate(ctx context.Context, handle ConnHandle, req ConnParamsUpdateRequest) error
}

// LinkErrorNotifier delivers L2CAP link-error notifications that drive an
// immediate disconnect (spec.md §6 "Link-error notification driving
// immediate disconnect").
type LinkErrorNotifier interface {
	OnLinkError(func(handle ConnHandle, err error))
}
