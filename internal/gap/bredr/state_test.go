package bredr_test

import (
	"context"
	"testing"

	"github.com/dantte-lp/gapcore/internal/gap"
	"github.com/dantte-lp/gapcore/internal/gap/bredr"
)

type fakeKeyStore struct {
	keys map[gap.DeviceAddress]gap.LinkKey
}

func newFakeKeyStore() *fakeKeyStore {
	return &fakeKeyStore{keys: make(map[gap.DeviceAddress]gap.LinkKey)}
}

func (f *fakeKeyStore) GetLinkKey(addr gap.DeviceAddress) (gap.LinkKey, bool) {
	k, ok := f.keys[addr]
	return k, ok
}

func (f *fakeKeyStore) StoreLinkKey(addr gap.DeviceAddress, key gap.LinkKey) {
	f.keys[addr] = key
}

type fakeController struct {
	encryptionEnabled bool
	iocapReplied      *bredr.IOCapability
}

func (f *fakeController) ReplyIoCapability(ctx context.Context, iocap bredr.IOCapability, authenticated bool) error {
	f.iocapReplied = &iocap
	return nil
}
func (f *fakeController) RejectIoCapability(ctx context.Context, reason error) error { return nil }
func (f *fakeController) ReplyLinkKey(ctx context.Context, key [16]byte) error       { return nil }
func (f *fakeController) RejectLinkKeyRequest(ctx context.Context) error             { return nil }
func (f *fakeController) ReplyUserConfirmation(ctx context.Context, accept bool) error {
	return nil
}
func (f *fakeController) ReplyUserPasskey(ctx context.Context, passkey uint32, ok bool) error {
	return nil
}
func (f *fakeController) NotifyUserPasskeyDisplayed(ctx context.Context, value uint32) error {
	return nil
}
func (f *fakeController) AuthenticationRequested(ctx context.Context) error { return nil }
func (f *fakeController) SetConnectionEncryption(ctx context.Context, enable bool) error {
	f.encryptionEnabled = enable
	return nil
}

type fakeDelegate struct {
	iocap        bredr.IOCapability
	confirmed    int
	completeErrs []error
}

func (d *fakeDelegate) IOCapability() bredr.IOCapability { return d.iocap }
func (d *fakeDelegate) ConfirmPairing(peer gap.PeerId, cb func(accept bool)) {
	d.confirmed++
	cb(true)
}
func (d *fakeDelegate) DisplayPasskey(peer gap.PeerId, value uint32, method bredr.DisplayPasskeyMethod, cb func(accept bool)) {
	cb(true)
}
func (d *fakeDelegate) RequestPasskey(peer gap.PeerId, cb func(passkey uint32, ok bool)) {
	cb(123456, true)
}
func (d *fakeDelegate) CompletePairing(peer gap.PeerId, status error) {
	d.completeErrs = append(d.completeErrs, status)
}

func addr() gap.DeviceAddress {
	return gap.DeviceAddress{Type: gap.AddressTypeBREDR, Value: [6]byte{1, 2, 3, 4, 5, 6}}
}

// TestDisplayYesNoBothSidesComparePasskey covers scenario S5: initiator and
// responder both DisplayYesNo selects numeric comparison, and the resulting
// link is authenticated.
func TestDisplayYesNoBothSidesComparePasskey(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	keys := newFakeKeyStore()
	ctrl := &fakeController{}
	delegate := &fakeDelegate{iocap: bredr.IOCapabilityDisplayYesNo}
	s := bredr.New(gap.PeerId(1), addr(), keys, ctrl, bredr.WithDelegate(delegate))

	var pairErr error
	s.InitiatePairing(ctx, bredr.Requirements{Level: gap.SecurityLevelAuthenticated}, func(err error) { pairErr = err })

	if err := s.OnLinkKeyRequest(ctx); err != nil {
		t.Fatalf("OnLinkKeyRequest: %v", err)
	}
	if s.State() != bredr.StateInitiatorWaitIoCapRequest {
		t.Fatalf("state = %v, want InitiatorWaitIoCapRequest", s.State())
	}

	if err := s.OnIoCapabilityRequest(ctx); err != nil {
		t.Fatalf("OnIoCapabilityRequest: %v", err)
	}
	if err := s.OnIoCapabilityResponse(ctx, bredr.IOCapabilityDisplayYesNo); err != nil {
		t.Fatalf("OnIoCapabilityResponse: %v", err)
	}
	if s.State() != bredr.StateWaitUserConfirmationRequest {
		t.Fatalf("state = %v, want WaitUserConfirmationRequest", s.State())
	}

	if err := s.OnUserConfirmationRequest(ctx); err != nil {
		t.Fatalf("OnUserConfirmationRequest: %v", err)
	}
	if delegate.confirmed != 1 {
		t.Errorf("expected ComparePasskey to prompt the delegate exactly once, got %d", delegate.confirmed)
	}

	if err := s.OnSimplePairingComplete(ctx, nil); err != nil {
		t.Fatalf("OnSimplePairingComplete: %v", err)
	}

	key := gap.LinkKey{Value: [16]byte{7}, Type: gap.LinkKeyTypeAuthenticatedP256}
	if err := s.OnLinkKeyNotification(ctx, key); err != nil {
		t.Fatalf("OnLinkKeyNotification: %v", err)
	}
	if err := s.OnAuthenticationComplete(ctx, nil); err != nil {
		t.Fatalf("OnAuthenticationComplete: %v", err)
	}
	if err := s.OnEncryptionChange(ctx, nil, true); err != nil {
		t.Fatalf("OnEncryptionChange: %v", err)
	}

	if pairErr != nil {
		t.Errorf("pairing callback error = %v, want nil", pairErr)
	}
	if s.State() != bredr.StateIdle {
		t.Errorf("state after success = %v, want Idle", s.State())
	}
	if !ctrl.encryptionEnabled {
		t.Errorf("expected encryption to be enabled")
	}
	if storedKey, ok := keys.GetLinkKey(addr()); !ok || storedKey.Value != key.Value {
		t.Errorf("link key not stored correctly: %+v ok=%v", storedKey, ok)
	}
}

func TestDebugCombinationKeyRejected(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	keys := newFakeKeyStore()
	ctrl := &fakeController{}
	delegate := &fakeDelegate{iocap: bredr.IOCapabilityDisplayYesNo}
	s := bredr.New(gap.PeerId(1), addr(), keys, ctrl, bredr.WithDelegate(delegate))

	var pairErr error
	s.InitiatePairing(ctx, bredr.Requirements{Level: gap.SecurityLevelAuthenticated}, func(err error) { pairErr = err })
	_ = s.OnLinkKeyRequest(ctx)
	_ = s.OnIoCapabilityRequest(ctx)
	_ = s.OnIoCapabilityResponse(ctx, bredr.IOCapabilityDisplayYesNo)
	_ = s.OnUserConfirmationRequest(ctx)
	_ = s.OnSimplePairingComplete(ctx, nil)

	err := s.OnLinkKeyNotification(ctx, gap.LinkKey{Type: gap.LinkKeyTypeDebugCombination})
	if err == nil {
		t.Fatalf("expected debug combination key to be rejected")
	}
	if s.State() != bredr.StateFailed {
		t.Errorf("state = %v, want Failed", s.State())
	}
	if pairErr == nil {
		t.Errorf("expected queued requester to be resolved with an error")
	}
}

func TestOnIoCapabilityRequestWithoutDelegateParksIdle(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	keys := newFakeKeyStore()
	ctrl := &fakeController{}
	s := bredr.New(gap.PeerId(1), addr(), keys, ctrl)

	var pairErr error
	s.InitiatePairing(ctx, bredr.Requirements{Level: gap.SecurityLevelAuthenticated}, func(err error) { pairErr = err })
	_ = s.OnLinkKeyRequest(ctx)

	err := s.OnIoCapabilityRequest(ctx)
	if err == nil {
		t.Fatalf("expected NotReady error with no delegate registered")
	}
	if s.State() != bredr.StateIdle {
		t.Errorf("state = %v, want Idle (so a later delegate registration can retry)", s.State())
	}
	if pairErr == nil {
		t.Errorf("expected queued requester to be resolved with NotReady")
	}
}

// TestResponderFlowEnteredOnUnsolicitedIoCapabilityRequest covers a
// peer-initiated pairing: the first event this device sees is an
// IO Capability Request with no prior InitiatePairing call, so it must
// select the responder role and drive the sequence through to completion.
func TestResponderFlowEnteredOnUnsolicitedIoCapabilityRequest(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	keys := newFakeKeyStore()
	ctrl := &fakeController{}
	delegate := &fakeDelegate{iocap: bredr.IOCapabilityDisplayYesNo}
	s := bredr.New(gap.PeerId(1), addr(), keys, ctrl, bredr.WithDelegate(delegate))

	if s.State() != bredr.StateIdle {
		t.Fatalf("state = %v, want Idle before any event", s.State())
	}

	if err := s.OnIoCapabilityRequest(ctx); err != nil {
		t.Fatalf("OnIoCapabilityRequest: %v", err)
	}
	if s.Role() != bredr.RoleResponder {
		t.Fatalf("role = %v, want Responder after an unsolicited IoCapabilityRequest", s.Role())
	}

	if err := s.OnIoCapabilityResponse(ctx, bredr.IOCapabilityDisplayYesNo); err != nil {
		t.Fatalf("OnIoCapabilityResponse: %v", err)
	}
	if s.State() != bredr.StateWaitUserConfirmationRequest {
		t.Fatalf("state = %v, want WaitUserConfirmationRequest", s.State())
	}

	if err := s.OnUserConfirmationRequest(ctx); err != nil {
		t.Fatalf("OnUserConfirmationRequest: %v", err)
	}
	if err := s.OnSimplePairingComplete(ctx, nil); err != nil {
		t.Fatalf("OnSimplePairingComplete: %v", err)
	}

	key := gap.LinkKey{Value: [16]byte{9}, Type: gap.LinkKeyTypeAuthenticatedP256}
	if err := s.OnLinkKeyNotification(ctx, key); err != nil {
		t.Fatalf("OnLinkKeyNotification: %v", err)
	}
	if s.State() != bredr.StateWaitEncryption {
		t.Fatalf("state = %v, want WaitEncryption (responder skips AuthenticationComplete)", s.State())
	}
	if err := s.OnEncryptionChange(ctx, nil, true); err != nil {
		t.Fatalf("OnEncryptionChange: %v", err)
	}

	if s.State() != bredr.StateIdle {
		t.Errorf("state after success = %v, want Idle", s.State())
	}
	if len(delegate.completeErrs) != 1 || delegate.completeErrs[0] != nil {
		t.Errorf("completeErrs = %v, want a single nil completion", delegate.completeErrs)
	}
	if storedKey, ok := keys.GetLinkKey(addr()); !ok || storedKey.Value != key.Value {
		t.Errorf("link key not stored correctly: %+v ok=%v", storedKey, ok)
	}
}

func TestUnexpectedEventFailsPairing(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	keys := newFakeKeyStore()
	ctrl := &fakeController{}
	s := bredr.New(gap.PeerId(1), addr(), keys, ctrl)

	// Idle does not expect a Simple Pairing Complete event.
	if err := s.OnSimplePairingComplete(ctx, nil); err == nil {
		t.Fatalf("expected unexpected-event failure")
	}
	if s.State() != bredr.StateFailed {
		t.Errorf("state = %v, want Failed", s.State())
	}
}

func TestInitiatePairingSynchronousSuccessWithExistingKey(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	keys := newFakeKeyStore()
	keys.StoreLinkKey(addr(), gap.LinkKey{Value: [16]byte{1}, Type: gap.LinkKeyTypeAuthenticatedP256})
	ctrl := &fakeController{}
	s := bredr.New(gap.PeerId(1), addr(), keys, ctrl)

	var called bool
	s.InitiatePairing(ctx, bredr.Requirements{Level: gap.SecurityLevelAuthenticated}, func(err error) {
		called = true
		if err != nil {
			t.Errorf("expected synchronous success, got %v", err)
		}
	})
	if !called {
		t.Errorf("expected callback to fire synchronously")
	}
	if s.State() != bredr.StateIdle {
		t.Errorf("state = %v, want Idle", s.State())
	}
}
