// Package bredr drives the BR/EDR Secure Simple Pairing sequence for a
// single link (spec.md §4.2): IO-capability exchange, link-key derivation,
// and encryption, consulting an external PairingDelegate for user input.
//
// The state machine itself is a pure transition table, generalizing the
// same pattern as the BFD session FSM (internal/bfd/fsm.go:
// stateEvent -> transition, ApplyEvent as a pure function, side effects
// executed by the caller). Unlike BFD's table, most transitions here carry
// state-dependent computation (the IO-cap action matrix, key validation)
// that cannot live in a static map entry, so ApplyEvent here only answers
// "is this event legal in this state, and what follow-on state does a bare
// acceptance imply" — PairingState layers the real decision logic on top,
// exactly as Session.executeFSMActions layers diagnostics/notifications on
// top of the BFD table's bare state transitions.
package bredr

// State enumerates BrEdrPairingState's states (spec.md §4.2).
type State uint8

const (
	StateIdle State = iota
	StateInitiatorWaitLinkKeyRequest
	StateInitiatorWaitIoCapRequest
	StateInitiatorWaitIoCapResponse
	StateResponderWaitIoCapRequest
	StateWaitUserConfirmationRequest
	StateWaitUserPasskeyRequest
	StateWaitUserPasskeyNotification
	StateWaitPairingComplete
	StateWaitLinkKey
	StateInitiatorWaitAuthComplete
	StateWaitEncryption
	// StateFailed is terminal: no handler moves the state machine out of
	// it, and InitiatePairing while Failed only queues the request.
	StateFailed
)

// String returns the human-readable name of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateInitiatorWaitLinkKeyRequest:
		return "InitiatorWaitLinkKeyRequest"
	case StateInitiatorWaitIoCapRequest:
		return "InitiatorWaitIoCapRequest"
	case StateInitiatorWaitIoCapResponse:
		return "InitiatorWaitIoCapResponse"
	case StateResponderWaitIoCapRequest:
		return "ResponderWaitIoCapRequest"
	case StateWaitUserConfirmationRequest:
		return "WaitUserConfirmationRequest"
	case StateWaitUserPasskeyRequest:
		return "WaitUserPasskeyRequest"
	case StateWaitUserPasskeyNotification:
		return "WaitUserPasskeyNotification"
	case StateWaitPairingComplete:
		return "WaitPairingComplete"
	case StateWaitLinkKey:
		return "WaitLinkKey"
	case StateInitiatorWaitAuthComplete:
		return "InitiatorWaitAuthComplete"
	case StateWaitEncryption:
		return "WaitEncryption"
	case StateFailed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// Event enumerates the controller/user events BrEdrPairingState reacts to.
type Event uint8

const (
	EventInitiatePairing Event = iota
	EventLinkKeyRequest
	EventIoCapabilityRequest
	EventIoCapabilityResponse
	EventUserConfirmationRequest
	EventUserPasskeyRequest
	EventUserPasskeyNotification
	EventSimplePairingComplete
	EventLinkKeyNotification
	EventAuthenticationComplete
	EventEncryptionChange
)

// String returns the human-readable name of the event.
func (e Event) String() string {
	switch e {
	case EventInitiatePairing:
		return "InitiatePairing"
	case EventLinkKeyRequest:
		return "LinkKeyRequest"
	case EventIoCapabilityRequest:
		return "IoCapabilityRequest"
	case EventIoCapabilityResponse:
		return "IoCapabilityResponse"
	case EventUserConfirmationRequest:
		return "UserConfirmationRequest"
	case EventUserPasskeyRequest:
		return "UserPasskeyRequest"
	case EventUserPasskeyNotification:
		return "UserPasskeyNotification"
	case EventSimplePairingComplete:
		return "SimplePairingComplete"
	case EventLinkKeyNotification:
		return "LinkKeyNotification"
	case EventAuthenticationComplete:
		return "AuthenticationComplete"
	case EventEncryptionChange:
		return "EncryptionChange"
	default:
		return "Unknown"
	}
}

// stateEvent is the legality-table key.
type stateEvent struct {
	state State
	event Event
}

// legalTable lists every (state, event) pair BrEdrPairingState accepts
// (spec.md §4.2 "Key transitions"). Any event arriving outside its legal
// state is an "unexpected event": per spec.md §4.2, the pairing transitions
// to Failed and every pending requester is signaled NotSupported.
//
//nolint:gochecknoglobals // transition legality table is intentionally package-level.
var legalTable = map[stateEvent]struct{}{
	{StateIdle, EventInitiatePairing}:                           {},
	{StateIdle, EventLinkKeyRequest}:                            {}, // passive authentication, spec.md §4.2
	{StateIdle, EventIoCapabilityRequest}:                       {}, // unsolicited: peer-initiated pairing, responder role
	{StateInitiatorWaitLinkKeyRequest, EventLinkKeyRequest}:     {},
	{StateInitiatorWaitIoCapRequest, EventIoCapabilityRequest}:  {},
	{StateResponderWaitIoCapRequest, EventIoCapabilityRequest}:  {},
	{StateInitiatorWaitIoCapResponse, EventIoCapabilityResponse}: {},
	{StateWaitUserConfirmationRequest, EventIoCapabilityResponse}: {}, // responder: provisional state set by OnIoCapabilityRequest
	{StateWaitUserConfirmationRequest, EventUserConfirmationRequest}: {},
	{StateWaitUserPasskeyRequest, EventUserPasskeyRequest}:           {},
	{StateWaitUserPasskeyNotification, EventUserPasskeyNotification}: {},
	{StateWaitPairingComplete, EventSimplePairingComplete}:           {},
	{StateWaitLinkKey, EventLinkKeyNotification}:                     {},
	{StateInitiatorWaitAuthComplete, EventAuthenticationComplete}:    {},
	{StateWaitEncryption, EventEncryptionChange}:                     {},
}

// isLegal reports whether event may be handled while in state. PairingState
// consults this before running an event's real logic; an illegal event
// drives the pairing to Failed instead.
func isLegal(state State, event Event) bool {
	_, ok := legalTable[stateEvent{state: state, event: event}]
	return ok
}
