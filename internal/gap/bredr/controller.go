package bredr

import "context"

// Controller is the HCI capability BrEdrPairingState drives replies through
// (spec.md §6 "Consumed from HCI transport", the Simple Pairing command
// suite). It is the bredr-scoped counterpart of hci.Connector: a narrow,
// typed slice of the transport rather than the whole command set.
type Controller interface {
	ReplyIoCapability(ctx context.Context, iocap IOCapability, authenticated bool) error
	RejectIoCapability(ctx context.Context, reason error) error

	ReplyLinkKey(ctx context.Context, key [16]byte) error
	RejectLinkKeyRequest(ctx context.Context) error

	ReplyUserConfirmation(ctx context.Context, accept bool) error
	ReplyUserPasskey(ctx context.Context, passkey uint32, ok bool) error
	NotifyUserPasskeyDisplayed(ctx context.Context, value uint32) error

	AuthenticationRequested(ctx context.Context) error
	SetConnectionEncryption(ctx context.Context, enable bool) error
}
