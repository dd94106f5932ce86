package bredr

import (
	"context"
	"log/slog"

	"github.com/dantte-lp/gapcore/internal/gap"
)

// Option configures a PairingState at construction.
type Option func(*PairingState)

// WithDelegate registers the pairing delegate. May also be called after
// construction via SetDelegate, which is how a pairing parked in Idle after
// a delegate-less IoCapabilityRequest (spec.md §4.2) gets retried.
func WithDelegate(d Delegate) Option {
	return func(s *PairingState) { s.delegate = d }
}

// WithLogger sets the structured logger; defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *PairingState) {
		if l != nil {
			s.logger = l.With(slog.String("component", "gap.bredr"))
		}
	}
}

// WithAuthenticationRequiredHook registers the side-effect callback fired
// when InitiatePairing must kick off a fresh Simple Pairing sequence
// (spec.md §4.2: "emitting an authentication required side-effect through a
// host-supplied callback"), typically "issue HCI Authentication Requested".
func WithAuthenticationRequiredHook(f func(ctx context.Context) error) Option {
	return func(s *PairingState) { s.onAuthenticationRequired = f }
}

// Metrics receives pairing state transitions. Left unset, PairingState uses
// noopMetrics.
//
// Grounded on bfd.MetricsReporter's StateTransitions counter
// (internal/bfd/manager.go), narrowed to the one event this state machine
// emits.
type Metrics interface {
	RecordPairingTransition(from, to string)
}

type noopMetrics struct{}

func (noopMetrics) RecordPairingTransition(string, string) {}

// WithMetrics registers the Metrics reporter used for pairing-transition
// counters.
func WithMetrics(m Metrics) Option {
	return func(s *PairingState) {
		if m != nil {
			s.metrics = m
		}
	}
}

// PairingState drives Secure Simple Pairing for one BR/EDR link (spec.md
// §4.2). It has no internal lock and is not safe for concurrent callers;
// it does not run on the LE connection manager's executor.
type PairingState struct {
	id   gap.PeerId
	addr gap.DeviceAddress

	keyStore   LinkKeyStore
	controller Controller
	delegate   Delegate
	logger     *slog.Logger
	metrics    Metrics

	onAuthenticationRequired func(ctx context.Context) error

	state State
	role  Role

	localIOCap, peerIOCap IOCapability
	action                Action
	expected              ExpectedEvent
	wantAuthenticated     bool

	achievedLevel gap.SecurityLevel
	queue         requestQueue
}

// New creates a PairingState for the BR/EDR link at addr, starting in Idle.
func New(id gap.PeerId, addr gap.DeviceAddress, keyStore LinkKeyStore, controller Controller, opts ...Option) *PairingState {
	s := &PairingState{
		id:         id,
		addr:       addr,
		keyStore:   keyStore,
		controller: controller,
		state:      StateIdle,
		logger:     slog.Default().With(slog.String("component", "gap.bredr")),
		metrics:    noopMetrics{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetDelegate registers (or replaces) the pairing delegate.
func (s *PairingState) SetDelegate(d Delegate) {
	s.delegate = d
}

// State returns the current state, for introspection and tests.
func (s *PairingState) State() State {
	return s.state
}

// Role returns the role (initiator or responder) the pairing selected for
// its current or most recent sequence, for introspection and tests.
func (s *PairingState) Role() Role {
	return s.role
}

func (s *PairingState) setState(next State) {
	if next != s.state {
		s.logger.Debug("state transition", slog.String("peer_id", s.id.String()), slog.String("from", s.state.String()), slog.String("to", next.String()))
		s.metrics.RecordPairingTransition(s.state.String(), next.String())
	}
	s.state = next
}

// fail drives the pairing to Failed and resolves every pending requester
// with err (spec.md §4.2 "Unexpected events").
func (s *PairingState) fail(ctx context.Context, err error) error {
	s.setState(StateFailed)
	s.queue.resolveAll(err)
	if s.delegate != nil {
		s.delegate.CompletePairing(s.id, err)
	}
	return err
}

// InitiatePairing enqueues a security upgrade request. If the existing link
// key already meets requirements, cb fires synchronously and the state
// remains Idle; otherwise a fresh Simple Pairing sequence begins (spec.md
// §4.2).
func (s *PairingState) InitiatePairing(ctx context.Context, req Requirements, cb StatusCallback) {
	if s.state == StateIdle {
		if key, ok := s.keyStore.GetLinkKey(s.addr); ok && req.met(key.Type.Level()) {
			cb(nil)
			return
		}
	}

	s.queue.push(pendingRequest{requirements: req, cb: cb})

	if s.state != StateIdle {
		// A sequence is already underway; this request rides along and
		// resolves with it.
		return
	}

	s.role = RoleInitiator
	s.setState(StateInitiatorWaitLinkKeyRequest)
	if s.onAuthenticationRequired != nil {
		if err := s.onAuthenticationRequired(ctx); err != nil {
			s.fail(ctx, gap.NewConnError(gap.ErrFailed, err.Error()))
		}
	}
}

// OnLinkKeyRequest handles the HCI Link Key Request event.
func (s *PairingState) OnLinkKeyRequest(ctx context.Context) error {
	key, haveKey := s.keyStore.GetLinkKey(s.addr)

	if s.state == StateIdle {
		// Passive authentication: Idle always offers whatever key exists.
		if haveKey {
			return s.controller.ReplyLinkKey(ctx, key.Value)
		}
		return s.controller.RejectLinkKeyRequest(ctx)
	}

	if !isLegal(s.state, EventLinkKeyRequest) {
		return s.fail(ctx, ErrNotSupported)
	}

	if haveKey && s.queue.len() > 0 && s.strictestRequirement().met(key.Type.Level()) {
		s.setState(StateIdle)
		s.queue.resolveAgainst(key.Type.Level())
		return s.controller.ReplyLinkKey(ctx, key.Value)
	}

	s.setState(StateInitiatorWaitIoCapRequest)
	return s.controller.RejectLinkKeyRequest(ctx)
}

// strictestRequirement returns the highest SecurityLevel demanded by any
// queued request, used to judge whether an existing key already suffices.
func (s *PairingState) strictestRequirement() Requirements {
	best := Requirements{Level: gap.SecurityLevelNone}
	for _, it := range s.queue.items {
		if it.requirements.Level > best.Level {
			best = it.requirements
		}
	}
	return best
}

// OnIoCapabilityRequest handles the HCI IO Capability Request event. If no
// delegate is registered, the pairing parks in Idle (not Failed) so a later
// SetDelegate call can be followed by a fresh InitiatePairing (spec.md
// §4.2).
//
// Arriving while Idle means the peer is the one driving pairing: this
// device takes the responder role (spec.md §1 "role selection") and enters
// ResponderWaitIoCapRequest before continuing below.
func (s *PairingState) OnIoCapabilityRequest(ctx context.Context) error {
	if !isLegal(s.state, EventIoCapabilityRequest) {
		return s.fail(ctx, ErrNotSupported)
	}

	if s.state == StateIdle {
		s.role = RoleResponder
		s.setState(StateResponderWaitIoCapRequest)
	}

	if s.delegate == nil {
		s.setState(StateIdle)
		err := gap.NewConnError(gap.ErrNotReady, "no pairing delegate registered")
		s.queue.resolveAll(err)
		_ = s.controller.RejectIoCapability(ctx, gap.ErrNotReady)
		return err
	}

	s.localIOCap = s.delegate.IOCapability()
	if s.role == RoleResponder {
		s.setState(StateWaitUserConfirmationRequest) // provisional; refined once peer IO cap is known via OnIoCapabilityResponse
	} else {
		s.setState(StateInitiatorWaitIoCapResponse)
	}
	return s.controller.ReplyIoCapability(ctx, s.localIOCap, false)
}

// OnIoCapabilityResponse handles the HCI IO Capability Response event
// carrying the peer's IO capability, computing the action/expected-event
// pair from the IO-cap matrix (spec.md §4.2).
func (s *PairingState) OnIoCapabilityResponse(ctx context.Context, peerIOCap IOCapability) error {
	if !isLegal(s.state, EventIoCapabilityResponse) {
		return s.fail(ctx, ErrNotSupported)
	}

	s.peerIOCap = peerIOCap

	var initiatorCap, responderCap IOCapability
	if s.role == RoleInitiator {
		initiatorCap, responderCap = s.localIOCap, peerIOCap
		s.action, s.expected = initiatorAction(initiatorCap, responderCap)
	} else {
		initiatorCap, responderCap = peerIOCap, s.localIOCap
		s.action, s.expected = responderAction(initiatorCap, responderCap)
	}
	s.wantAuthenticated = isAuthenticated(initiatorCap, responderCap)

	switch s.expected {
	case ExpectedUserPasskeyRequest:
		s.setState(StateWaitUserPasskeyRequest)
	case ExpectedUserPasskeyNotification:
		s.setState(StateWaitUserPasskeyNotification)
	default:
		s.setState(StateWaitUserConfirmationRequest)
	}
	return nil
}

// OnUserConfirmationRequest dispatches to the delegate per the computed
// Action (Automatic/GetConsent/ComparePasskey all surface as a confirmation
// prompt at the HCI layer).
func (s *PairingState) OnUserConfirmationRequest(ctx context.Context) error {
	if !isLegal(s.state, EventUserConfirmationRequest) {
		return s.fail(ctx, ErrNotSupported)
	}
	s.setState(StateWaitPairingComplete)

	respond := func(accept bool) {
		_ = s.controller.ReplyUserConfirmation(ctx, accept)
	}
	switch s.action {
	case ActionAutomatic:
		respond(true)
	case ActionGetConsent, ActionComparePasskey:
		s.delegate.ConfirmPairing(s.id, respond)
	default:
		respond(false)
	}
	return nil
}

// OnUserPasskeyRequest handles the HCI User Passkey Request event (Action
// RequestPasskey): the local device must type in the peer's displayed
// passkey.
func (s *PairingState) OnUserPasskeyRequest(ctx context.Context) error {
	if !isLegal(s.state, EventUserPasskeyRequest) {
		return s.fail(ctx, ErrNotSupported)
	}
	s.setState(StateWaitPairingComplete)
	s.delegate.RequestPasskey(s.id, func(passkey uint32, ok bool) {
		_ = s.controller.ReplyUserPasskey(ctx, passkey, ok)
	})
	return nil
}

// OnUserPasskeyNotification handles the HCI User Passkey Notification event
// (Action DisplayPasskey): the local device shows value while the peer
// enters it.
func (s *PairingState) OnUserPasskeyNotification(ctx context.Context, value uint32) error {
	if !isLegal(s.state, EventUserPasskeyNotification) {
		return s.fail(ctx, ErrNotSupported)
	}
	s.setState(StateWaitPairingComplete)
	s.delegate.DisplayPasskey(s.id, value, DisplayPasskeyMethodEntry, func(bool) {})
	_ = s.controller.NotifyUserPasskeyDisplayed(ctx, value)
	return nil
}

// OnSimplePairingComplete handles the HCI Simple Pairing Complete event.
func (s *PairingState) OnSimplePairingComplete(ctx context.Context, status error) error {
	if !isLegal(s.state, EventSimplePairingComplete) {
		return s.fail(ctx, ErrNotSupported)
	}
	if status != nil {
		return s.fail(ctx, gap.NewConnError(gap.ErrFailed, status.Error()))
	}
	s.setState(StateWaitLinkKey)
	return nil
}

// OnLinkKeyNotification handles the HCI Link Key Notification event,
// validating the derived key against the IO-cap matrix's expectation before
// storing it (spec.md §4.2).
func (s *PairingState) OnLinkKeyNotification(ctx context.Context, key gap.LinkKey) error {
	if !isLegal(s.state, EventLinkKeyNotification) {
		return s.fail(ctx, ErrNotSupported)
	}
	if key.Type == gap.LinkKeyTypeDebugCombination {
		return s.fail(ctx, gap.NewConnError(gap.ErrInsufficientSecurity, "debug combination key rejected"))
	}
	if key.Type.Level() == gap.SecurityLevelNone {
		return s.fail(ctx, gap.NewConnError(gap.ErrInsufficientSecurity, "link key carries no security"))
	}
	if key.Type.IsAuthenticated() != s.wantAuthenticated {
		return s.fail(ctx, gap.NewConnError(gap.ErrInsufficientSecurity, "link key authenticated property mismatch"))
	}

	s.keyStore.StoreLinkKey(s.addr, key)
	s.achievedLevel = key.Type.Level()

	if s.role == RoleInitiator {
		s.setState(StateInitiatorWaitAuthComplete)
		return nil
	}
	s.setState(StateWaitEncryption)
	return s.controller.SetConnectionEncryption(ctx, true)
}

// OnAuthenticationComplete handles the HCI Authentication Complete event
// (initiator role only).
func (s *PairingState) OnAuthenticationComplete(ctx context.Context, status error) error {
	if !isLegal(s.state, EventAuthenticationComplete) {
		return s.fail(ctx, ErrNotSupported)
	}
	if status != nil {
		return s.fail(ctx, gap.NewConnError(gap.ErrFailed, status.Error()))
	}
	s.setState(StateWaitEncryption)
	return s.controller.SetConnectionEncryption(ctx, true)
}

// OnEncryptionChange handles the HCI Encryption Change event, fanning out
// pending request statuses based on whether the achieved level satisfies
// each requester (spec.md §4.2).
func (s *PairingState) OnEncryptionChange(ctx context.Context, status error, enabled bool) error {
	if s.state != StateWaitEncryption {
		// Ignored outside WaitEncryption, per spec.md §4.2 ("ignored unless
		// in WaitEncryption") rather than treated as an unexpected-event
		// failure — this event also fires for unrelated encryption refreshes.
		return nil
	}
	if status != nil || !enabled {
		return s.fail(ctx, gap.NewConnError(gap.ErrFailed, "encryption enable failed"))
	}

	s.setState(StateIdle)
	s.queue.resolveAgainst(s.achievedLevel)
	if s.delegate != nil {
		s.delegate.CompletePairing(s.id, nil)
	}
	return nil
}
