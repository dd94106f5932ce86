package lecm

import (
	"github.com/dantte-lp/gapcore/internal/gap"
	"github.com/dantte-lp/gapcore/internal/gap/gatt"
	"github.com/dantte-lp/gapcore/internal/gap/security"
)

// ConnectOptions parameterizes a Connect call (spec.md §4.3).
type ConnectOptions struct {
	BondableMode security.BondableMode
	ServiceUUID  *gatt.UUID16
	// AutoConnect skips scanning and issues CreateConnection directly
	// (spec.md §4.3 "On auto_connect, skip steps 1-2").
	AutoConnect bool
}

// ConnectCallback resolves a Connect call exactly once (spec.md §7).
type ConnectCallback func(*ConnectionHandle, error)

// connectionRequest is a pending Connect intent for one peer (spec.md §3
// "LeConnectionRequest"). Multiple Connect calls for the same peer merge
// into the same request; callbacks fan out FIFO on resolution (spec.md §5).
type connectionRequest struct {
	peerID  gap.PeerId
	address gap.DeviceAddress
	options ConnectOptions

	callbacks []ConnectCallback
	attempt   int

	// scanning is true while this request owns the manager's single scan
	// session.
	scanning bool

	// resolved guards against a second resolveSuccess/resolveFailure call.
	// A Disconnect can resolve a request (e.g. canceling an in-flight
	// CreateConnection) while a stale controller callback for the same
	// request is still in the executor's queue; spec.md §8 requires
	// "exactly one callback invocation" per Connect call regardless of
	// which path gets there first.
	resolved bool
}

func (r *connectionRequest) addCallback(cb ConnectCallback) {
	r.callbacks = append(r.callbacks, cb)
}

// resolveSuccess fans out a successful handle to every queued callback,
// each call minting its own reference (spec.md §4.3 step 7).
func (r *connectionRequest) resolveSuccess(conn *LeConnection) {
	if r.resolved {
		return
	}
	r.resolved = true
	for _, cb := range r.callbacks {
		cb(conn.newHandle(), nil)
	}
}

func (r *connectionRequest) resolveFailure(err error) {
	if r.resolved {
		return
	}
	r.resolved = true
	for _, cb := range r.callbacks {
		cb(nil, err)
	}
}
