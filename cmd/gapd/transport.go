package main

import (
	"context"
	"errors"
	"log/slog"

	"github.com/dantte-lp/gapcore/internal/gap"
	"github.com/dantte-lp/gapcore/internal/gap/gatt"
	"github.com/dantte-lp/gapcore/internal/gap/hci"
	"github.com/dantte-lp/gapcore/internal/gap/l2cap"
	"github.com/dantte-lp/gapcore/internal/gap/lecm"
)

// errNoTransport is returned by every unimplementedTransport method. It
// exists so a deployment running gapd without a linked-in controller driver
// fails loudly and uniformly instead of silently doing nothing.
var errNoTransport = errors.New("gapd: no HCI/GATT/L2CAP transport is linked into this build")

// unimplementedTransport satisfies hci.Connector, hci.Interrogator,
// hci.ParamUpdater, lecm.Discovery, gatt.Client, and l2cap.Signaling by
// logging and failing every call. Driving an actual Bluetooth controller is
// explicitly out of this core's scope; a real deployment replaces this
// with its own driver linked in at this exact seam. Kept out of
// internal/gap so the core packages depend only on their collaborator
// interfaces, never on a concrete transport.
type unimplementedTransport struct {
	logger *slog.Logger
}

func newUnimplementedTransport(logger *slog.Logger) *unimplementedTransport {
	return &unimplementedTransport{logger: logger.With(slog.String("component", "transport"))}
}

var (
	_ hci.Connector    = (*unimplementedTransport)(nil)
	_ hci.Interrogator = (*unimplementedTransport)(nil)
	_ hci.ParamUpdater = (*unimplementedTransport)(nil)
	_ lecm.Discovery   = (*unimplementedTransport)(nil)
	_ gatt.Client      = (*unimplementedTransport)(nil)
	_ l2cap.Signaling  = (*unimplementedTransport)(nil)
)

func (t *unimplementedTransport) warn(op string) {
	t.logger.Warn("no transport linked in, call ignored", slog.String("op", op))
}

// hci.Connector

func (t *unimplementedTransport) HasOutstandingRequest() bool { return false }

func (t *unimplementedTransport) CreateConnection(ctx context.Context, addrType int, addr [6]byte, params hci.ConnectParams, onComplete func(hci.ConnectResult)) error {
	t.warn("CreateConnection")
	return errNoTransport
}

func (t *unimplementedTransport) CancelConnection(ctx context.Context) error {
	t.warn("CancelConnection")
	return errNoTransport
}

func (t *unimplementedTransport) Disconnect(ctx context.Context, handle hci.ConnHandle) error {
	t.warn("Disconnect")
	return errNoTransport
}

func (t *unimplementedTransport) OnDisconnect(func(hci.DisconnectEvent)) {}

// hci.Interrogator

func (t *unimplementedTransport) ReadRemoteVersion(ctx context.Context, handle hci.ConnHandle) (hci.RemoteVersion, error) {
	t.warn("ReadRemoteVersion")
	return hci.RemoteVersion{}, errNoTransport
}

func (t *unimplementedTransport) ReadRemoteLEFeatures(ctx context.Context, handle hci.ConnHandle) (hci.RemoteFeatures, error) {
	t.warn("ReadRemoteLEFeatures")
	return hci.RemoteFeatures{}, errNoTransport
}

// hci.ParamUpdater

func (t *unimplementedTransport) UpdateConnectionParams(ctx context.Context, handle hci.ConnHandle, params hci.ConnUpdateParams) (hci.StatusCode, error) {
	t.warn("UpdateConnectionParams")
	return hci.StatusCode(0xFF), errNoTransport
}

// lecm.Discovery

func (t *unimplementedTransport) StartScan(ctx context.Context, filter lecm.ScanFilter, onDiscovered func(gap.DeviceAddress)) error {
	t.warn("StartScan")
	return errNoTransport
}

func (t *unimplementedTransport) StopScan(ctx context.Context) error {
	t.warn("StopScan")
	return nil
}

// gatt.Client

func (t *unimplementedTransport) ReadDeviceName(ctx context.Context, handle gatt.ConnHandle) (string, error) {
	t.warn("ReadDeviceName")
	return "", errNoTransport
}

func (t *unimplementedTransport) ReadAppearance(ctx context.Context, handle gatt.ConnHandle) (uint16, error) {
	t.warn("ReadAppearance")
	return 0, errNoTransport
}

func (t *unimplementedTransport) ReadPreferredConnectionParams(ctx context.Context, handle gatt.ConnHandle) (gatt.PreferredConnectionParams, error) {
	t.warn("ReadPreferredConnectionParams")
	return gatt.PreferredConnectionParams{}, errNoTransport
}

func (t *unimplementedTransport) DiscoverServices(ctx context.Context, handle gatt.ConnHandle, uuids []gatt.UUID16) error {
	t.warn("DiscoverServices")
	return errNoTransport
}

// l2cap.Signaling

func (t *unimplementedTransport) RequestConnectionParamsUpdate(ctx context.Context, handle l2cap.ConnHandle, req l2cap.ConnParamsUpdateRequest) error {
	t.warn("RequestConnectionParamsUpdate")
	return errNoTransport
}
