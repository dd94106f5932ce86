package bredr

// IOCapability is a device's input/output capability as exchanged during
// IO Capability Request/Response (Bluetooth Core Spec Vol 3, Part C §5.2).
type IOCapability uint8

const (
	IOCapabilityDisplayOnly IOCapability = iota
	IOCapabilityDisplayYesNo
	IOCapabilityKeyboardOnly
	IOCapabilityNoInputNoOutput
)

// String returns the human-readable name of the capability.
func (c IOCapability) String() string {
	switch c {
	case IOCapabilityDisplayOnly:
		return "DisplayOnly"
	case IOCapabilityDisplayYesNo:
		return "DisplayYesNo"
	case IOCapabilityKeyboardOnly:
		return "KeyboardOnly"
	case IOCapabilityNoInputNoOutput:
		return "NoInputNoOutput"
	default:
		return "Unknown"
	}
}

// Action is the user-interaction method a pairing must perform, derived
// from the local/peer IO-capability pair (spec.md §4.2).
type Action uint8

const (
	ActionAutomatic Action = iota
	ActionGetConsent
	ActionDisplayPasskey
	ActionComparePasskey
	ActionRequestPasskey
)

// String returns the human-readable name of the action.
func (a Action) String() string {
	switch a {
	case ActionAutomatic:
		return "Automatic"
	case ActionGetConsent:
		return "GetConsent"
	case ActionDisplayPasskey:
		return "DisplayPasskey"
	case ActionComparePasskey:
		return "ComparePasskey"
	case ActionRequestPasskey:
		return "RequestPasskey"
	default:
		return "Unknown"
	}
}

// ExpectedEvent is the controller event an Action implies (spec.md §4.2:
// "expected event ∈ {UserConfirmationRequest, UserPasskeyRequest,
// UserPasskeyNotification}"). A PairingState that receives any other event
// while waiting is handled as unexpected per spec.md §4.2.
type ExpectedEvent uint8

const (
	ExpectedUserConfirmationRequest ExpectedEvent = iota
	ExpectedUserPasskeyRequest
	ExpectedUserPasskeyNotification
)

func (e ExpectedEvent) toEvent() Event {
	switch e {
	case ExpectedUserPasskeyRequest:
		return EventUserPasskeyRequest
	case ExpectedUserPasskeyNotification:
		return EventUserPasskeyNotification
	default:
		return EventUserConfirmationRequest
	}
}

// initiatorAction computes the initiator-side action and expected event for
// an (initiator, responder) IO-capability pair (spec.md §4.2 "IO-cap matrix
// (initiator action)").
func initiatorAction(initiator, responder IOCapability) (Action, ExpectedEvent) {
	switch {
	case initiator == IOCapabilityNoInputNoOutput || responder == IOCapabilityNoInputNoOutput:
		if initiator == IOCapabilityDisplayYesNo && responder == IOCapabilityNoInputNoOutput {
			return ActionGetConsent, ExpectedUserConfirmationRequest
		}
		return ActionAutomatic, ExpectedUserConfirmationRequest

	case initiator == IOCapabilityKeyboardOnly:
		return ActionRequestPasskey, ExpectedUserPasskeyRequest

	case responder == IOCapabilityDisplayOnly:
		if initiator == IOCapabilityDisplayYesNo {
			return ActionComparePasskey, ExpectedUserConfirmationRequest
		}
		return ActionAutomatic, ExpectedUserConfirmationRequest

	case initiator == IOCapabilityDisplayYesNo && responder == IOCapabilityDisplayYesNo:
		// Core Spec Vol 3 Part C Table 5.7: both DisplayYesNo selects Numeric
		// Comparison. The enumerated rule list above this case does not reach
		// this pairing on its own.
		return ActionComparePasskey, ExpectedUserConfirmationRequest

	default:
		return ActionDisplayPasskey, ExpectedUserPasskeyNotification
	}
}

// responderAction computes the responder-side action and expected event,
// derived by swapping roles into initiatorAction with one special case
// override (spec.md §4.2: "initiator=NoInputNoOutput & responder=KeyboardOnly
// → GetConsent").
func responderAction(initiator, responder IOCapability) (Action, ExpectedEvent) {
	if initiator == IOCapabilityNoInputNoOutput && responder == IOCapabilityKeyboardOnly {
		return ActionGetConsent, ExpectedUserConfirmationRequest
	}
	return initiatorAction(responder, initiator)
}

// isAuthenticated reports whether the IO-cap pairing yields an authenticated
// key (spec.md §4.2: "Authenticated iff neither side is NoInputNoOutput and
// at least one is DisplayYesNo or KeyboardOnly").
func isAuthenticated(initiator, responder IOCapability) bool {
	if initiator == IOCapabilityNoInputNoOutput || responder == IOCapabilityNoInputNoOutput {
		return false
	}
	return initiator == IOCapabilityDisplayYesNo || initiator == IOCapabilityKeyboardOnly ||
		responder == IOCapabilityDisplayYesNo || responder == IOCapabilityKeyboardOnly
}
