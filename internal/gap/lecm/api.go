package lecm

import (
	"context"
	"log/slog"

	"github.com/dantte-lp/gapcore/internal/gap"
	"github.com/dantte-lp/gapcore/internal/gap/security"
)

// Pair requests a security upgrade on an already-connected peer, delegating
// to that link's SecurityManager (spec.md §4.3 "Pair"). Fails immediately
// with ErrNotFound if the peer has no active connection.
func (m *Manager) Pair(ctx context.Context, id gap.PeerId, level gap.SecurityLevel, bondable security.BondableMode, cb security.UpgradeCallback) {
	m.execute(func() {
		conn, ok := m.connections[id]
		if !ok || conn.security == nil {
			cb(gap.SecurityLevelNone, gap.NewConnError(gap.ErrNotFound, "peer has no active connection"))
			return
		}
		conn.security.UpgradeSecurity(ctx, level, bondable, cb)
	})
}

// ReconcileAutoConnect diffs desired — the bonded LE peers a config reload
// wants auto-connectable — against every bonded LE peer's current
// should_auto_connect flag. Peers in desired are enabled; bonded LE peers
// outside desired are disabled. Peers newly enabled that are not already
// connected or mid-request are handed to Connect with AutoConnect set, so
// the scan/connect pipeline picks them up on its own schedule rather than
// reconciliation trying to drive HCI directly.
//
// Grounded on bfd.Manager.ReconcileSessions's desired-vs-current diff shape
// (internal/bfd/manager.go), adapted from session create/destroy to a
// boolean-flag flip plus an opportunistic Connect.
func (m *Manager) ReconcileAutoConnect(ctx context.Context, desired []gap.PeerId) {
	want := make(map[gap.PeerId]struct{}, len(desired))
	for _, id := range desired {
		want[id] = struct{}{}
	}

	var toConnect []gap.PeerId
	m.cache.ForEach(func(p gap.Peer) {
		if p.LE == nil || !p.Bonded() {
			return
		}
		_, wanted := want[p.ID]
		if wanted == p.LE.ShouldAutoConnect {
			return
		}
		if wanted {
			m.cache.SetAutoConnectBehaviorForSuccessfulConnection(p.ID)
			toConnect = append(toConnect, p.ID)
		} else {
			m.cache.SetAutoConnectBehaviorForIntentionalDisconnect(p.ID)
		}
	})

	m.execute(func() {
		for _, id := range toConnect {
			if _, connected := m.connections[id]; connected {
				continue
			}
			if _, pending := m.requests[id]; pending {
				continue
			}
			m.logger.Info("reconcile: auto-connecting bonded peer", slog.String("peer_id", id.String()))
			m.handleConnect(ctx, id, ConnectOptions{AutoConnect: true}, func(*ConnectionHandle, error) {})
		}
	})
}
