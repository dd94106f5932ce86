package lecm

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dantte-lp/gapcore/internal/gap"
	"github.com/dantte-lp/gapcore/internal/gap/gatt"
	"github.com/dantte-lp/gapcore/internal/gap/hci"
	"github.com/dantte-lp/gapcore/internal/gap/l2cap"
)

// Connect resolves to a ConnectionHandle or a host error (spec.md §4.3).
// Multiple calls for the same peer merge into one request; callbacks fan
// out once it resolves.
func (m *Manager) Connect(ctx context.Context, id gap.PeerId, opts ConnectOptions, cb ConnectCallback) {
	m.execute(func() { m.handleConnect(ctx, id, opts, cb) })
}

func (m *Manager) handleConnect(ctx context.Context, id gap.PeerId, opts ConnectOptions, cb ConnectCallback) {
	peer := m.cache.FindById(id)
	if peer == nil || peer.LE == nil {
		cb(nil, gap.NewConnError(gap.ErrNotFound, "peer unknown or not LE-capable"))
		return
	}

	if conn, ok := m.connections[id]; ok && conn.interrogated {
		cb(conn.newHandle(), nil)
		return
	}

	if req, ok := m.requests[id]; ok {
		req.addCallback(cb)
		return
	}

	req := &connectionRequest{peerID: id, address: peer.Address, options: opts}
	req.addCallback(cb)
	m.requests[id] = req

	if opts.AutoConnect {
		m.beginCreateConnection(ctx, req)
		return
	}
	m.beginScan(ctx, req)
}

// RegisterRemoteInitiatedLink accepts a link already established by the
// controller in the peripheral role (spec.md §4.3).
func (m *Manager) RegisterRemoteInitiatedLink(ctx context.Context, result hci.ConnectResult, opts ConnectOptions, cb ConnectCallback) {
	m.execute(func() {
		addr := gap.DeviceAddress{Type: gap.AddressType(result.PeerAddrType), Value: result.PeerAddr}
		peer := m.cache.FindByAddress(addr)
		if peer == nil {
			peer = m.cache.NewPeer(addr, true)
		}
		if peer == nil {
			cb(nil, gap.NewConnError(gap.ErrFailed, "failed to create peer for remote-initiated link"))
			return
		}
		m.cache.SetConnectionState(peer.ID, true, gap.ConnStateInitializing)

		conn := newLeConnection(peer.ID, result.Handle, hci.RolePeripheral, opts.BondableMode)
		if m.securityFactory != nil {
			conn.security = m.securityFactory(peer.ID, addr)
		}
		m.connections[peer.ID] = conn
		m.byHandle[result.Handle] = peer.ID

		req := &connectionRequest{peerID: peer.ID, address: addr, options: opts}
		req.addCallback(cb)
		conn.request = req

		m.beginInterrogation(ctx, conn)
	})
}

// beginScan starts passive discovery for a non-auto_connect request
// (spec.md §4.3 steps 1-2).
func (m *Manager) beginScan(ctx context.Context, req *connectionRequest) {
	if m.discovery == nil {
		req.resolveFailure(gap.NewConnError(gap.ErrFailed, "no discovery collaborator configured"))
		delete(m.requests, req.peerID)
		return
	}
	if m.scanningPeer != nil {
		// A different request already owns the single scan session; this
		// request waits (it will be promoted once that scan concludes via
		// the normal request-merge path on a later Connect, or the caller
		// may retry). Matches the "at most one active scanning session"
		// invariant (spec.md §4.3).
		return
	}

	req.scanning = true
	peerID := req.peerID
	m.scanningPeer = &peerID

	scanCtx, cancel := context.WithTimeout(ctx, m.scanTimeout)
	filter := ScanFilter{Connectable: true, Target: &req.address}

	err := m.discovery.StartScan(scanCtx, filter, func(addr gap.DeviceAddress) {
		m.execute(func() {
			cancel()
			m.onPeerDiscovered(ctx, req.peerID, addr)
		})
	})
	if err != nil {
		cancel()
		m.scanningPeer = nil
		req.resolveFailure(gap.NewConnError(gap.ErrFailed, err.Error()))
		delete(m.requests, req.peerID)
		return
	}

	go func() {
		<-scanCtx.Done()
		m.execute(func() { m.onScanTimeout(ctx, req.peerID) })
	}()
}

func (m *Manager) onScanTimeout(ctx context.Context, peerID gap.PeerId) {
	req, ok := m.requests[peerID]
	if !ok || !req.scanning {
		return
	}
	if m.scanningPeer != nil && *m.scanningPeer == peerID {
		_ = m.discovery.StopScan(ctx)
		m.scanningPeer = nil
	}
	req.resolveFailure(gap.NewConnError(gap.ErrTimedOut, "scan timed out"))
	delete(m.requests, peerID)
}

func (m *Manager) onPeerDiscovered(ctx context.Context, peerID gap.PeerId, addr gap.DeviceAddress) {
	req, ok := m.requests[peerID]
	if !ok || !req.scanning {
		return
	}
	_ = m.discovery.StopScan(ctx)
	m.scanningPeer = nil
	req.scanning = false
	m.beginCreateConnection(ctx, req)
}

// beginCreateConnection issues HCI LE Create Connection for req (spec.md
// §4.3 step 3, and the retry entry point for §4.3's 0x3E policy).
func (m *Manager) beginCreateConnection(ctx context.Context, req *connectionRequest) {
	if m.outstandingConnectPeer != nil {
		// Another CreateConnection is in flight; this request waits its
		// turn (spec.md §4.3 "at most one outstanding... command at a
		// time"). A production executor would queue explicitly; here the
		// request simply remains in m.requests and is retried the next
		// time the executor is idle between commands.
		return
	}
	peerID := req.peerID
	m.outstandingConnectPeer = &peerID
	m.metrics.IncConnectAttempt()

	params := hci.ConnectParams{
		ScanInterval:       0,
		ScanWindow:         0,
		MinInterval:        15 * time.Millisecond,
		MaxInterval:        30 * time.Millisecond,
		SupervisionTimeout: 4 * time.Second,
		OwnAddressType:     m.ownAddrPolicy(),
	}

	err := m.connector.CreateConnection(ctx, int(req.address.Type), req.address.Value, params, func(result hci.ConnectResult) {
		m.execute(func() { m.onConnectResult(ctx, req, result) })
	})
	if err != nil {
		m.outstandingConnectPeer = nil
		req.resolveFailure(gap.NewConnError(gap.ErrFailed, err.Error()))
		delete(m.requests, req.peerID)
	}
}

// onConnectResult handles the LE Connection Complete event (spec.md §4.3
// "Connection attempt -> connected link").
func (m *Manager) onConnectResult(ctx context.Context, req *connectionRequest, result hci.ConnectResult) {
	m.outstandingConnectPeer = nil

	if req.resolved {
		// A Disconnect already canceled and resolved this request; this is
		// the stale CreateConnection callback racing in afterward (spec.md
		// §8 "exactly one callback invocation"). Any resulting link is
		// unwanted, so tear it straight back down.
		if result.Status.OK() {
			_ = m.connector.Disconnect(ctx, result.Handle)
		}
		return
	}

	if !result.Status.OK() {
		if result.Status == hci.StatusConnectionFailedToBeEstablished && result.Handle != 0 {
			// Some controllers report a valid handle alongside 0x3E and then
			// immediately deliver Disconnection Complete for it; the retry
			// must wait for that event rather than firing here.
			m.pendingConnectFailures[result.Handle] = req
			return
		}
		m.handleFailedAttempt(ctx, req, result.Status)
		return
	}

	m.metrics.IncConnectSuccess()
	m.cache.SetConnectionState(req.peerID, true, gap.ConnStateInitializing)

	conn := newLeConnection(req.peerID, result.Handle, result.Role, req.options.BondableMode)
	conn.request = req
	if m.securityFactory != nil {
		conn.security = m.securityFactory(req.peerID, req.address)
	}
	m.connections[req.peerID] = conn
	m.byHandle[result.Handle] = req.peerID

	m.beginInterrogation(ctx, conn)
}

// handleFailedAttempt applies the 0x3E retry policy and the auto-connect
// flag-clearing rule (spec.md §4.3).
func (m *Manager) handleFailedAttempt(ctx context.Context, req *connectionRequest, status hci.StatusCode) {
	if status == hci.StatusConnectionFailedToBeEstablished && req.attempt < m.maxAttempts-1 {
		attempt := req.attempt
		req.attempt++
		m.metrics.IncConnectRetry()
		delay := time.Duration(0)
		if attempt < len(retryBackoff) {
			delay = retryBackoff[attempt]
		}
		m.logger.Info("retrying LE connection", slog.String("peer_id", req.peerID.String()), slog.Int("attempt", req.attempt), slog.Duration("delay", delay))
		time.AfterFunc(delay, func() {
			m.execute(func() {
				if _, ok := m.requests[req.peerID]; ok {
					m.beginCreateConnection(ctx, req)
				}
			})
		})
		return
	}

	m.applyAutoConnectClearing(req, status)
	req.resolveFailure(gap.NewConnError(gap.ErrFailed, "connection failed: "+req.peerID.String()))
	delete(m.requests, req.peerID)
}

// applyAutoConnectClearing implements spec.md §4.3 "Auto-connect flag":
// clear should_auto_connect after a successful auto-connect attempt that
// ultimately fails with one of the listed statuses.
func (m *Manager) applyAutoConnectClearing(req *connectionRequest, status hci.StatusCode) {
	if !req.options.AutoConnect {
		return
	}
	switch status {
	case hci.StatusConnectionTimeout, hci.StatusConnectionRejectedSecurity,
		hci.StatusAcceptTimeoutExceeded, hci.StatusTerminatedByLocalHost,
		hci.StatusConnectionFailedToBeEstablished:
		m.cache.SetAutoConnectBehaviorForIntentionalDisconnect(req.peerID)
	}
}

// beginInterrogation issues Read Remote Version Information and LE Read
// Remote Features (spec.md §4.3 step 3).
func (m *Manager) beginInterrogation(ctx context.Context, conn *LeConnection) {
	if m.interrogator == nil {
		m.finishInterrogation(ctx, conn, gap.NewConnError(gap.ErrFailed, "no interrogator configured"))
		return
	}

	go func() {
		version, verErr := m.interrogator.ReadRemoteVersion(ctx, conn.handle)
		features, featErr := m.interrogator.ReadRemoteLEFeatures(ctx, conn.handle)
		m.execute(func() {
			if !m.isLive(conn) {
				// A Disconnect already tore this link down mid-interrogation
				// (spec.md §4.3); the request it would have resolved is gone.
				return
			}
			if verErr != nil || !version.Status.OK() {
				m.finishInterrogation(ctx, conn, gap.NewConnError(gap.ErrFailed, "read remote version failed"))
				return
			}
			if featErr != nil || !features.Status.OK() {
				m.finishInterrogation(ctx, conn, gap.NewConnError(gap.ErrFailed, "read remote le features failed"))
				return
			}
			conn.result.HCIVersion = version.HCIVersion
			conn.result.Manufacturer = version.Manufacturer
			conn.result.Features = features.Mask
			m.continueAfterInterrogation(ctx, conn)
		})
	}()
}

func (m *Manager) finishInterrogation(ctx context.Context, conn *LeConnection, err error) {
	delete(m.connections, conn.peerID)
	delete(m.byHandle, conn.handle)
	m.cache.SetConnectionState(conn.peerID, true, gap.ConnStateNotConnected)
	if conn.request != nil {
		conn.request.resolveFailure(err)
		delete(m.requests, conn.peerID)
	}
	_ = m.connector.Disconnect(ctx, conn.handle)
}

// continueAfterInterrogation performs the optional GAP-service read (role
// central) and optional caller-requested service discovery (spec.md §4.3
// steps 4-5), both non-fatal, then completes the pipeline.
func (m *Manager) continueAfterInterrogation(ctx context.Context, conn *LeConnection) {
	if conn.role == hci.RoleCentral && m.gattClient != nil {
		m.readGAPService(ctx, conn)
		return
	}
	m.completeConnection(ctx, conn)
}

func (m *Manager) readGAPService(ctx context.Context, conn *LeConnection) {
	handle := gatt.ConnHandle(conn.handle)
	go func() {
		name, _ := m.gattClient.ReadDeviceName(ctx, handle)
		appearance, _ := m.gattClient.ReadAppearance(ctx, handle)
		prefs, prefErr := m.gattClient.ReadPreferredConnectionParams(ctx, handle)
		m.execute(func() {
			if !m.isLive(conn) {
				return
			}
			conn.result.Name = name
			conn.result.Appearance = appearance
			if prefErr == nil {
				conn.result.PreferredConnParams = &gap.ConnParams{
					MinInterval:        prefs.MinInterval,
					MaxInterval:        prefs.MaxInterval,
					Latency:            prefs.Latency,
					SupervisionTimeout: prefs.SupervisionTimeout,
				}
			}
			if conn.request != nil && conn.request.options.ServiceUUID != nil && m.gattClient != nil {
				_ = m.gattClient.DiscoverServices(ctx, handle, []gatt.UUID16{*conn.request.options.ServiceUUID, gatt.ServiceGenericAccess})
			}
			m.completeConnection(ctx, conn)
		})
	}()
}

// completeConnection finishes the pipeline: records the interrogated peer
// data, starts the pause timer, and fans out success (spec.md §4.3 steps
// 6-7).
func (m *Manager) completeConnection(ctx context.Context, conn *LeConnection) {
	conn.interrogated = true
	m.cache.SetConnectionState(conn.peerID, true, gap.ConnStateConnected)
	if conn.result.Name != "" {
		m.cache.SetName(conn.peerID, conn.result.Name)
	}
	if conn.request != nil && conn.request.options.AutoConnect {
		m.cache.SetAutoConnectBehaviorForSuccessfulConnection(conn.peerID)
	}

	m.startPauseTimer(ctx, conn)

	if conn.request != nil {
		conn.request.resolveSuccess(conn)
		delete(m.requests, conn.peerID)
		conn.request = nil
	}
}

// startPauseTimer arms the central/peripheral pause timer; on expiry it
// issues a parameter update (spec.md §4.3 step 6).
func (m *Manager) startPauseTimer(ctx context.Context, conn *LeConnection) {
	pause := m.peripheralPause
	if conn.role == hci.RoleCentral {
		pause = m.centralPause
	}
	conn.pauseTimer = time.AfterFunc(pause, func() {
		m.execute(func() { m.issueParamUpdate(ctx, conn) })
	})
}

// issueParamUpdate implements the HCI-first, L2CAP-fallback
// parameter-update protocol (spec.md §4.3 "Parameter-update protocol
// (peripheral)", generalized here to whichever role started the pause
// timer).
func (m *Manager) issueParamUpdate(ctx context.Context, conn *LeConnection) {
	if _, stillConnected := m.connections[conn.peerID]; !stillConnected {
		return
	}

	params := hci.ConnUpdateParams{
		MinInterval:        30 * time.Millisecond,
		MaxInterval:        50 * time.Millisecond,
		SupervisionTimeout: 4 * time.Second,
	}

	supportsHCIProcedure := gap.LEFeatureConnectionParametersRequestProcedure.Has(conn.result.Features)
	if supportsHCIProcedure && m.paramUpdater != nil {
		status, err := m.paramUpdater.UpdateConnectionParams(ctx, conn.handle, params)
		if err == nil && status != hci.StatusUnsupportedRemoteFeature {
			if status != hci.StatusSuccess {
				// Any other non-success status is logged and the link is
				// left at its current parameters (spec.md §9 decision: log
				// and continue rather than notify the caller).
				m.logger.Warn("connection update rejected", slog.String("peer_id", conn.peerID.String()), slog.Any("status", status))
			}
			return
		}
	}

	if m.signaling == nil {
		return
	}
	_ = m.signaling.RequestConnectionParamsUpdate(ctx, l2cap.ConnHandle(conn.handle), l2cap.ConnParamsUpdateRequest{
		MinInterval:        params.MinInterval,
		MaxInterval:        params.MaxInterval,
		Latency:            params.Latency,
		SupervisionTimeout: params.SupervisionTimeout,
	})
}

// isLive reports whether conn is still the connection this manager has on
// file for its peer. An interrogation goroutine captures conn before
// suspending on I/O; if a Disconnect tears the link down in the meantime,
// the goroutine's continuation must recognize that and stop touching conn
// instead of resurrecting a dead request (spec.md §8 "exactly one callback
// invocation").
func (m *Manager) isLive(conn *LeConnection) bool {
	cur, ok := m.connections[conn.peerID]
	return ok && cur == conn
}

// Disconnect tears down a connection or pending request for id, or no-ops
// on an unknown peer (spec.md §4.3).
func (m *Manager) Disconnect(id gap.PeerId, cb func(ok bool)) {
	m.execute(func() {
		ctx := context.Background()
		ok := m.handleDisconnect(ctx, id)
		if cb != nil {
			cb(ok)
		}
	})
}

// handleDisconnect implements spec.md §4.3's three distinct cancellation
// cases for id, checked in this order since a connection record and its
// originating request can coexist (the request stays in m.requests until
// interrogation finishes, spec.md §3 "LeConnection"):
//
//   - mid-interrogation (a connection exists but hasn't finished
//     interrogating): tear the LeConnection down immediately rather than
//     waiting for the in-flight interrogation goroutine to notice.
//   - connected (interrogation already completed): the original
//     teardown path.
//   - pending (no connection yet, only a request): cancel whatever is
//     actually in flight for it — StopScan for a scanning request,
//     CancelConnection for an outstanding CreateConnection — then resolve
//     it as canceled.
func (m *Manager) handleDisconnect(ctx context.Context, id gap.PeerId) bool {
	if conn, ok := m.connections[id]; ok {
		if !conn.interrogated {
			delete(m.connections, id)
			delete(m.byHandle, conn.handle)
			m.cache.SetConnectionState(id, true, gap.ConnStateNotConnected)
			m.metrics.IncDisconnect("local")
			if conn.request != nil {
				conn.request.resolveFailure(gap.NewConnError(gap.ErrCanceled, "disconnected"))
				delete(m.requests, id)
			}
			_ = m.connector.Disconnect(ctx, conn.handle)
			return true
		}

		if conn.pauseTimer != nil {
			conn.pauseTimer.Stop()
		}
		delete(m.connections, id)
		delete(m.byHandle, conn.handle)
		m.cache.SetAutoConnectBehaviorForIntentionalDisconnect(id)
		m.cache.SetConnectionState(id, true, gap.ConnStateNotConnected)
		m.metrics.IncDisconnect("local")
		_ = m.connector.Disconnect(ctx, conn.handle)
		return true
	}

	if req, ok := m.requests[id]; ok {
		if req.scanning && m.scanningPeer != nil && *m.scanningPeer == id {
			_ = m.discovery.StopScan(ctx)
			m.scanningPeer = nil
		}
		if m.outstandingConnectPeer != nil && *m.outstandingConnectPeer == id {
			_ = m.connector.CancelConnection(ctx)
			m.outstandingConnectPeer = nil
		}
		req.resolveFailure(gap.NewConnError(gap.ErrCanceled, "disconnected"))
		delete(m.requests, id)
		return true
	}

	return true
}

// handleDisconnectEvent processes an HCI Disconnection Complete event for
// any handle, regardless of which component initiated it (spec.md §4.3
// retry policy: "must wait for the subsequent... Disconnection Complete
// before retry").
func (m *Manager) handleDisconnectEvent(ctx context.Context, ev hci.DisconnectEvent) {
	if req, ok := m.pendingConnectFailures[ev.Handle]; ok {
		delete(m.pendingConnectFailures, ev.Handle)
		m.handleFailedAttempt(ctx, req, ev.Reason)
		return
	}

	peerID, ok := m.byHandle[ev.Handle]
	if !ok {
		return
	}
	conn, ok := m.connections[peerID]
	if !ok {
		return
	}

	delete(m.connections, peerID)
	delete(m.byHandle, ev.Handle)
	if conn.pauseTimer != nil {
		conn.pauseTimer.Stop()
	}
	m.cache.SetConnectionState(peerID, true, gap.ConnStateNotConnected)
	m.metrics.IncDisconnect(fmt.Sprintf("0x%02x", uint8(ev.Reason)))

	if !conn.interrogated && conn.request != nil && ev.Reason == hci.StatusConnectionFailedToBeEstablished {
		m.handleFailedAttempt(ctx, conn.request, ev.Reason)
		return
	}
	if conn.request != nil {
		conn.request.resolveFailure(gap.NewConnError(gap.ErrLinkDisconnected, "disconnected before interrogation completed"))
		delete(m.requests, peerID)
	}
}

// scheduleGraceDisconnect arms the zero-refcount grace timer (spec.md §9).
func (m *Manager) scheduleGraceDisconnect(conn *LeConnection) {
	conn.closeGrace = time.AfterFunc(handleCloseGracePeriod, func() {
		m.execute(func() {
			if conn.refcount.Load() != 0 {
				return
			}
			m.handleDisconnect(context.Background(), conn.peerID)
		})
	})
}
