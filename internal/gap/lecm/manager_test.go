package lecm_test

import (
	"context"
	"sync"
	"testing"
	"testing/synctest"
	"time"

	"github.com/dantte-lp/gapcore/internal/gap"
	"github.com/dantte-lp/gapcore/internal/gap/gatt"
	"github.com/dantte-lp/gapcore/internal/gap/hci"
	"github.com/dantte-lp/gapcore/internal/gap/lecm"
	"github.com/dantte-lp/gapcore/internal/gap/peercache"
)

// -------------------------------------------------------------------------
// Fakes
// -------------------------------------------------------------------------

// fakeConnector implements hci.Connector. nextResults is consumed in order,
// one per CreateConnection call; onDisconnect fires when the test calls
// deliverDisconnect.
type fakeConnector struct {
	mu          sync.Mutex
	nextResults []hci.ConnectResult
	calls       int
	outstanding bool
	disconnects []hci.ConnHandle
	cancels     int
	onDisconnect func(hci.DisconnectEvent)

	// hold, when set, makes CreateConnection withhold its callback until the
	// test calls releasePending, simulating a CreateConnection still in
	// flight when a Disconnect arrives.
	hold            bool
	pendingComplete func()
}

func (f *fakeConnector) HasOutstandingRequest() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.outstanding
}

func (f *fakeConnector) CreateConnection(ctx context.Context, addrType int, addr [6]byte, params hci.ConnectParams, onComplete func(hci.ConnectResult)) error {
	f.mu.Lock()
	if f.calls >= len(f.nextResults) {
		f.mu.Unlock()
		return nil
	}
	result := f.nextResults[f.calls]
	f.calls++
	f.outstanding = true
	hold := f.hold
	if hold {
		f.pendingComplete = func() {
			f.mu.Lock()
			f.outstanding = false
			f.mu.Unlock()
			onComplete(result)
		}
	}
	f.mu.Unlock()
	if hold {
		return nil
	}

	go func() {
		f.mu.Lock()
		f.outstanding = false
		f.mu.Unlock()
		onComplete(result)
	}()
	return nil
}

// releasePending fires a CreateConnection callback withheld by hold,
// simulating a controller result that arrives after the manager has already
// moved on (e.g. a Disconnect-driven cancellation).
func (f *fakeConnector) releasePending() {
	f.mu.Lock()
	cb := f.pendingComplete
	f.pendingComplete = nil
	f.mu.Unlock()
	if cb != nil {
		cb()
	}
}

func (f *fakeConnector) CancelConnection(ctx context.Context) error {
	f.mu.Lock()
	f.cancels++
	f.mu.Unlock()
	return nil
}

func (f *fakeConnector) Disconnect(ctx context.Context, handle hci.ConnHandle) error {
	f.mu.Lock()
	f.disconnects = append(f.disconnects, handle)
	f.mu.Unlock()
	return nil
}

func (f *fakeConnector) OnDisconnect(cb func(hci.DisconnectEvent)) {
	f.mu.Lock()
	f.onDisconnect = cb
	f.mu.Unlock()
}

func (f *fakeConnector) deliverDisconnect(ev hci.DisconnectEvent) {
	f.mu.Lock()
	cb := f.onDisconnect
	f.mu.Unlock()
	if cb != nil {
		cb(ev)
	}
}

// fakeInterrogator always succeeds with fixed values.
type fakeInterrogator struct{}

func (fakeInterrogator) ReadRemoteVersion(ctx context.Context, handle hci.ConnHandle) (hci.RemoteVersion, error) {
	return hci.RemoteVersion{Status: hci.StatusSuccess, HCIVersion: 9, Manufacturer: 0x004C}, nil
}

func (fakeInterrogator) ReadRemoteLEFeatures(ctx context.Context, handle hci.ConnHandle) (hci.RemoteFeatures, error) {
	return hci.RemoteFeatures{Status: hci.StatusSuccess, Mask: 0}, nil
}

// blockingInterrogator blocks ReadRemoteVersion until release is closed, so
// a test can observe a connection parked mid-interrogation.
type blockingInterrogator struct {
	release chan struct{}
}

func (b *blockingInterrogator) ReadRemoteVersion(ctx context.Context, handle hci.ConnHandle) (hci.RemoteVersion, error) {
	<-b.release
	return hci.RemoteVersion{Status: hci.StatusSuccess, HCIVersion: 9, Manufacturer: 0x004C}, nil
}

func (b *blockingInterrogator) ReadRemoteLEFeatures(ctx context.Context, handle hci.ConnHandle) (hci.RemoteFeatures, error) {
	return hci.RemoteFeatures{Status: hci.StatusSuccess, Mask: 0}, nil
}

// fakeGattClient returns a fixed device name, no discovery errors.
type fakeGattClient struct{}

func (fakeGattClient) ReadDeviceName(ctx context.Context, handle gatt.ConnHandle) (string, error) {
	return "Test Peripheral", nil
}

func (fakeGattClient) ReadAppearance(ctx context.Context, handle gatt.ConnHandle) (uint16, error) {
	return 0, nil
}

func (fakeGattClient) ReadPreferredConnectionParams(ctx context.Context, handle gatt.ConnHandle) (gatt.PreferredConnectionParams, error) {
	return gatt.PreferredConnectionParams{}, nil
}

func (fakeGattClient) DiscoverServices(ctx context.Context, handle gatt.ConnHandle, uuids []gatt.UUID16) error {
	return nil
}

func leAddr(b byte) gap.DeviceAddress {
	return gap.DeviceAddress{Type: gap.AddressTypeLEPublic, Value: [6]byte{b, 1, 2, 3, 4, 5}}
}

func newTestManager(t *testing.T, connector *fakeConnector, opts ...lecm.Option) (*lecm.Manager, *peercache.Cache) {
	t.Helper()
	cache := peercache.New()
	allOpts := append([]lecm.Option{
		lecm.WithInterrogator(fakeInterrogator{}),
		lecm.WithScanTimeout(2 * time.Second),
	}, opts...)
	m := lecm.New(cache, connector, fakeGattClient{}, nil, allOpts...)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	m.Start(ctx)
	t.Cleanup(m.Close)
	return m, cache
}

// -------------------------------------------------------------------------
// S1: auto-connect of a known peer connects without scanning.
// -------------------------------------------------------------------------

func TestConnectAutoConnectSkipsScan(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		addr := leAddr(0xA1)
		connector := &fakeConnector{nextResults: []hci.ConnectResult{
			{Status: hci.StatusSuccess, Handle: 1, Role: hci.RoleCentral, PeerAddrType: int(gap.AddressTypeLEPublic), PeerAddr: addr.Value},
		}}
		m, cache := newTestManager(t, connector)

		peer := cache.NewPeer(addr, true)
		if peer == nil {
			t.Fatal("NewPeer returned nil")
		}

		var gotHandle *lecm.ConnectionHandle
		var gotErr error
		done := make(chan struct{})
		m.Connect(context.Background(), peer.ID, lecm.ConnectOptions{AutoConnect: true}, func(h *lecm.ConnectionHandle, err error) {
			gotHandle, gotErr = h, err
			close(done)
		})

		synctest.Wait()
		<-done

		if gotErr != nil {
			t.Fatalf("connect failed: %v", gotErr)
		}
		if gotHandle == nil {
			t.Fatal("expected a connection handle")
		}
		if gotHandle.PeerId() != peer.ID {
			t.Errorf("handle peer id = %v, want %v", gotHandle.PeerId(), peer.ID)
		}

		updated := cache.FindById(peer.ID)
		if updated.Name != "Test Peripheral" {
			t.Errorf("peer name = %q, want %q", updated.Name, "Test Peripheral")
		}
		if updated.LE.ConnState != gap.ConnStateConnected {
			t.Errorf("conn state = %v, want Connected", updated.LE.ConnState)
		}
	})
}

// -------------------------------------------------------------------------
// S2: explicit Disconnect clears should_auto_connect.
// -------------------------------------------------------------------------

func TestDisconnectClearsAutoConnect(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		addr := leAddr(0xA2)
		connector := &fakeConnector{nextResults: []hci.ConnectResult{
			{Status: hci.StatusSuccess, Handle: 2, Role: hci.RoleCentral, PeerAddrType: int(gap.AddressTypeLEPublic), PeerAddr: addr.Value},
		}}
		m, cache := newTestManager(t, connector)
		peer := cache.NewPeer(addr, true)

		done := make(chan struct{})
		m.Connect(context.Background(), peer.ID, lecm.ConnectOptions{AutoConnect: true}, func(h *lecm.ConnectionHandle, err error) {
			close(done)
		})
		synctest.Wait()
		<-done

		if !cache.FindById(peer.ID).LE.ShouldAutoConnect {
			t.Fatal("expected should_auto_connect to be set after a successful auto-connect")
		}

		disconnected := make(chan bool, 1)
		m.Disconnect(peer.ID, func(ok bool) { disconnected <- ok })
		synctest.Wait()

		if ok := <-disconnected; !ok {
			t.Fatal("disconnect returned false")
		}
		if cache.FindById(peer.ID).LE.ShouldAutoConnect {
			t.Fatal("expected should_auto_connect to be cleared after explicit disconnect")
		}
	})
}

// -------------------------------------------------------------------------
// S3: a 0x3E LE Connection Complete status retries with back-off before
// eventually succeeding.
// -------------------------------------------------------------------------

func TestConnectRetriesOnConnectionFailedToBeEstablished(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		addr := leAddr(0xA3)
		connector := &fakeConnector{nextResults: []hci.ConnectResult{
			{Status: hci.StatusConnectionFailedToBeEstablished, Handle: 0},
			{Status: hci.StatusSuccess, Handle: 3, Role: hci.RoleCentral, PeerAddrType: int(gap.AddressTypeLEPublic), PeerAddr: addr.Value},
		}}
		m, cache := newTestManager(t, connector)
		peer := cache.NewPeer(addr, true)

		var gotErr error
		done := make(chan struct{})
		m.Connect(context.Background(), peer.ID, lecm.ConnectOptions{AutoConnect: true}, func(h *lecm.ConnectionHandle, err error) {
			gotErr = err
			close(done)
		})

		synctest.Wait()
		<-done

		if gotErr != nil {
			t.Fatalf("connect failed after retry: %v", gotErr)
		}

		connector.mu.Lock()
		calls := connector.calls
		connector.mu.Unlock()
		if calls != 2 {
			t.Errorf("CreateConnection called %d times, want 2", calls)
		}
	})
}

// -------------------------------------------------------------------------
// S3b: a 0x3E status that also carries a handle waits for Disconnection
// Complete before retrying.
// -------------------------------------------------------------------------

func TestConnectWaitsForDisconnectBeforeRetryOn3E(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		addr := leAddr(0xA4)
		connector := &fakeConnector{nextResults: []hci.ConnectResult{
			{Status: hci.StatusConnectionFailedToBeEstablished, Handle: 77},
			{Status: hci.StatusSuccess, Handle: 4, Role: hci.RoleCentral, PeerAddrType: int(gap.AddressTypeLEPublic), PeerAddr: addr.Value},
		}}
		m, cache := newTestManager(t, connector)
		peer := cache.NewPeer(addr, true)

		done := make(chan struct{})
		m.Connect(context.Background(), peer.ID, lecm.ConnectOptions{AutoConnect: true}, func(h *lecm.ConnectionHandle, err error) {
			close(done)
		})

		synctest.Wait()

		select {
		case <-done:
			t.Fatal("connect resolved before the pending Disconnection Complete was delivered")
		default:
		}

		connector.deliverDisconnect(hci.DisconnectEvent{Handle: 77, Reason: hci.StatusConnectionFailedToBeEstablished})
		synctest.Wait()
		<-done
	})
}

// -------------------------------------------------------------------------
// Duplicate Connect calls for the same peer merge into one request.
// -------------------------------------------------------------------------

func TestConnectMergesDuplicateRequests(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		addr := leAddr(0xA5)
		connector := &fakeConnector{nextResults: []hci.ConnectResult{
			{Status: hci.StatusSuccess, Handle: 5, Role: hci.RoleCentral, PeerAddrType: int(gap.AddressTypeLEPublic), PeerAddr: addr.Value},
		}}
		m, cache := newTestManager(t, connector)
		peer := cache.NewPeer(addr, true)

		var count int
		var mu sync.Mutex
		done := make(chan struct{}, 2)
		cb := func(h *lecm.ConnectionHandle, err error) {
			mu.Lock()
			count++
			mu.Unlock()
			done <- struct{}{}
		}

		m.Connect(context.Background(), peer.ID, lecm.ConnectOptions{AutoConnect: true}, cb)
		m.Connect(context.Background(), peer.ID, lecm.ConnectOptions{AutoConnect: true}, cb)

		synctest.Wait()
		<-done
		<-done

		if connector.calls != 1 {
			t.Errorf("CreateConnection called %d times, want 1 (requests should merge)", connector.calls)
		}
		mu.Lock()
		defer mu.Unlock()
		if count != 2 {
			t.Errorf("callbacks invoked %d times, want 2", count)
		}
	})
}

// -------------------------------------------------------------------------
// Disconnect on a peer with a pending CreateConnection cancels the
// connector's outstanding attempt instead of letting it run forever, and a
// stale callback that fires afterward must not resolve the request twice.
// -------------------------------------------------------------------------

func TestDisconnectCancelsPendingCreateConnection(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		addr := leAddr(0xA6)
		connector := &fakeConnector{hold: true, nextResults: []hci.ConnectResult{
			{Status: hci.StatusSuccess, Handle: 6, Role: hci.RoleCentral, PeerAddrType: int(gap.AddressTypeLEPublic), PeerAddr: addr.Value},
		}}
		m, cache := newTestManager(t, connector)
		peer := cache.NewPeer(addr, true)

		var calls int
		var gotErr error
		var gotHandle *lecm.ConnectionHandle
		connectDone := make(chan struct{}, 2)
		m.Connect(context.Background(), peer.ID, lecm.ConnectOptions{AutoConnect: true}, func(h *lecm.ConnectionHandle, err error) {
			calls++
			gotHandle, gotErr = h, err
			connectDone <- struct{}{}
		})
		synctest.Wait()

		disconnected := make(chan bool, 1)
		m.Disconnect(peer.ID, func(ok bool) { disconnected <- ok })
		synctest.Wait()

		if ok := <-disconnected; !ok {
			t.Fatal("disconnect returned false")
		}
		<-connectDone
		if gotErr == nil {
			t.Fatal("expected the canceled connect to resolve with an error")
		}
		if gotHandle != nil {
			t.Fatal("expected no handle for a canceled connect")
		}

		connector.mu.Lock()
		cancels := connector.cancels
		connector.mu.Unlock()
		if cancels != 1 {
			t.Errorf("CancelConnection called %d times, want 1", cancels)
		}

		connector.releasePending()
		synctest.Wait()

		select {
		case <-connectDone:
			t.Fatal("the stale CreateConnection callback invoked the connect callback a second time")
		default:
		}
		if calls != 1 {
			t.Errorf("connect callback invoked %d times, want exactly 1", calls)
		}

		connector.mu.Lock()
		disc := len(connector.disconnects)
		connector.mu.Unlock()
		if disc == 0 {
			t.Error("expected the stale successful connection result to be disconnected")
		}
	})
}

// -------------------------------------------------------------------------
// Disconnect mid-interrogation tears the LeConnection down immediately
// rather than waiting for the interrogation goroutine to finish.
// -------------------------------------------------------------------------

func TestDisconnectMidInterrogationTearsDownImmediately(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		addr := leAddr(0xA7)
		connector := &fakeConnector{nextResults: []hci.ConnectResult{
			{Status: hci.StatusSuccess, Handle: 7, Role: hci.RoleCentral, PeerAddrType: int(gap.AddressTypeLEPublic), PeerAddr: addr.Value},
		}}
		interrogator := &blockingInterrogator{release: make(chan struct{})}
		cache := peercache.New()
		m := lecm.New(cache, connector, fakeGattClient{}, nil, lecm.WithInterrogator(interrogator), lecm.WithScanTimeout(2*time.Second))
		ctx, cancel := context.WithCancel(context.Background())
		t.Cleanup(cancel)
		m.Start(ctx)
		t.Cleanup(m.Close)

		peer := cache.NewPeer(addr, true)

		var calls int
		var gotErr error
		done := make(chan struct{}, 1)
		m.Connect(context.Background(), peer.ID, lecm.ConnectOptions{AutoConnect: true}, func(h *lecm.ConnectionHandle, err error) {
			calls++
			gotErr = err
			done <- struct{}{}
		})
		synctest.Wait()

		select {
		case <-done:
			t.Fatal("connect resolved before interrogation completed")
		default:
		}

		disconnected := make(chan bool, 1)
		m.Disconnect(peer.ID, func(ok bool) { disconnected <- ok })
		synctest.Wait()

		if ok := <-disconnected; !ok {
			t.Fatal("disconnect returned false")
		}
		<-done
		if gotErr == nil {
			t.Fatal("expected the mid-interrogation disconnect to resolve the connect callback with an error")
		}

		close(interrogator.release)
		synctest.Wait()

		if calls != 1 {
			t.Errorf("connect callback invoked %d times, want exactly 1 (the stale interrogation must not resolve again)", calls)
		}
		if got := cache.FindById(peer.ID).LE.ConnState; got != gap.ConnStateNotConnected {
			t.Errorf("conn state = %v, want NotConnected after mid-interrogation disconnect", got)
		}
	})
}

// -------------------------------------------------------------------------
// Disconnect on an unknown peer is a harmless no-op.
// -------------------------------------------------------------------------

func TestDisconnectUnknownPeerNoOps(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		connector := &fakeConnector{}
		m, _ := newTestManager(t, connector)

		done := make(chan bool, 1)
		m.Disconnect(gap.PeerId(0xDEAD), func(ok bool) { done <- ok })
		synctest.Wait()

		if ok := <-done; !ok {
			t.Fatal("expected Disconnect on an unknown peer to report ok")
		}
	})
}
