package lecm

import (
	"sync/atomic"
	"time"

	"github.com/dantte-lp/gapcore/internal/gap"
	"github.com/dantte-lp/gapcore/internal/gap/hci"
	"github.com/dantte-lp/gapcore/internal/gap/security"
)

// InterrogationResult holds the two mandatory interrogation reads (spec.md
// §4.3 step 3) plus whatever the GAP service over GATT yielded (step 4).
type InterrogationResult struct {
	HCIVersion   uint8
	Manufacturer uint16
	Features     uint64

	Name                string
	Appearance          uint16
	PreferredConnParams *gap.ConnParams
}

// LeConnection owns one active LE link (spec.md §3). All mutation happens
// on the Manager's single executor goroutine; LeConnection itself has no
// lock.
type LeConnection struct {
	peerID gap.PeerId
	handle hci.ConnHandle
	role   hci.Role

	bondable security.BondableMode
	security security.Manager

	interrogated bool
	result       InterrogationResult

	// request is retained until interrogation completes so a disconnect
	// during interrogation can drive retry (spec.md §3 "LeConnection").
	request *connectionRequest

	pauseTimer *time.Timer

	refcount   atomic.Int32
	closeGrace *time.Timer
}

func newLeConnection(peerID gap.PeerId, handle hci.ConnHandle, role hci.Role, bondable security.BondableMode) *LeConnection {
	return &LeConnection{peerID: peerID, handle: handle, role: role, bondable: bondable}
}

// ConnectionHandle is a reference-counted handle to an LeConnection (spec.md
// §6 "Exposed upward"). A handle's Close callback fires at most once
// (spec.md §8 invariant).
type ConnectionHandle struct {
	conn   *LeConnection
	closed atomic.Bool
	onClose func()
}

// newHandle mints a new reference, incrementing the connection's refcount.
func (c *LeConnection) newHandle() *ConnectionHandle {
	c.refcount.Add(1)
	return &ConnectionHandle{conn: c}
}

// PeerId returns the handle's peer identity.
func (h *ConnectionHandle) PeerId() gap.PeerId { return h.conn.peerID }

// SecurityLevel returns the link's currently achieved security level.
func (h *ConnectionHandle) SecurityLevel() gap.SecurityLevel {
	if h.conn.security == nil {
		return gap.SecurityLevelNone
	}
	return h.conn.security.CurrentLevel()
}

// BondableMode returns the bondable mode this connection was established
// with.
func (h *ConnectionHandle) BondableMode() security.BondableMode { return h.conn.bondable }

// OnClose registers a callback invoked once, when Close is called on this
// specific handle. Tearing the link down (Disconnect, a Disconnection
// Complete event, or closing the Manager) does not invoke it.
func (h *ConnectionHandle) OnClose(f func()) { h.onClose = f }

// Close drops this reference. When the connection's refcount reaches zero,
// the manager starts a grace-period timer before actually disconnecting
// (spec.md §9 "Reference counting").
func (h *ConnectionHandle) Close(m *Manager) {
	if h.closed.Swap(true) {
		return
	}
	if h.onClose != nil {
		h.onClose()
	}
	if h.conn.refcount.Add(-1) == 0 {
		m.scheduleGraceDisconnect(h.conn)
	}
}
