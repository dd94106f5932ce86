package lecm

import (
	"log/slog"
	"time"

	"github.com/dantte-lp/gapcore/internal/gap"
	"github.com/dantte-lp/gapcore/internal/gap/hci"
	"github.com/dantte-lp/gapcore/internal/gap/security"
)

// SecurityManagerFactory mints the per-link security.Manager a new
// LeConnection uses for Pair/SetSecurityMode (spec.md §3 "a
// SecurityManager" is constructed per-connection, not shared). Left unset,
// Pair always fails with ErrNotFound — SMP itself is out of scope (spec.md
// §1 Non-goals), so a host wires in its own SMP-backed implementation here.
type SecurityManagerFactory func(id gap.PeerId, addr gap.DeviceAddress) security.Manager

// Default timing constants named directly after spec.md §4.3/§5's HCI-level
// timer names.
const (
	// DefaultMaxConnectionAttempts bounds the 0x3E retry loop (spec.md §4.3).
	DefaultMaxConnectionAttempts = 3

	// DefaultLEGeneralCepScanTimeout bounds a per-request scan (spec.md §4.3
	// step 2).
	DefaultLEGeneralCepScanTimeout = 30 * time.Second

	// DefaultLECreateConnectionTimeout is the HCI LE Create Connection
	// timeout value. The Manager does not arm a timer with it: an
	// outstanding Create Connection command is not timed out by this
	// package.
	DefaultLECreateConnectionTimeout = 20 * time.Second

	// DefaultLEConnectionPauseCentral is how long a central-role link waits
	// after connecting before issuing a parameter update (spec.md §4.3 step
	// 6).
	DefaultLEConnectionPauseCentral = 1 * time.Second

	// DefaultLEConnectionPausePeripheral is the peripheral-role analog.
	DefaultLEConnectionPausePeripheral = 5 * time.Second

	// handleCloseGracePeriod is how long a LeConnection with a zero refcount
	// waits for a new reference before disconnecting (spec.md §9
	// "Reference counting": "disconnect after a grace period if no new refs
	// arrive").
	handleCloseGracePeriod = 2 * time.Second
)

// retryBackoff is indexed by (attempt number - 1): the delay before the
// Nth retry after a ConnectionFailedToBeEstablished failure (spec.md §4.3
// "back-off of {0s, 2s, 4s} indexed by attempt number"). Shaped after the
// general idea of internal/gobgp/dampening.go's per-peer penalty/backoff
// tracking, simplified to the spec's fixed schedule rather than dampening's
// continuous exponential decay — this core's retry policy has a hard cap of
// three attempts, not an open-ended suppress/reuse threshold.
var retryBackoff = []time.Duration{0, 2 * time.Second, 4 * time.Second}

// OwnAddressTypePolicy decides which local address type an outbound
// connection uses (spec.md §9 Open Question: "preserve the observable
// behavior... and expose a policy hook"). Defaults to always-Public,
// matching the original's undocumented central-role behavior.
type OwnAddressTypePolicy func() hci.OwnAddressType

func alwaysPublic() hci.OwnAddressType { return hci.OwnAddressTypePublic }

// Option configures a Manager at construction.
type Option func(*Manager)

// WithDiscovery registers the passive-scan collaborator. Required for any
// non-auto_connect Connect call.
func WithDiscovery(d Discovery) Option {
	return func(m *Manager) { m.discovery = d }
}

// WithInterrogator registers the HCI interrogation capability.
func WithInterrogator(i hci.Interrogator) Option {
	return func(m *Manager) { m.interrogator = i }
}

// WithParamUpdater registers the HCI LE Connection Update capability.
func WithParamUpdater(p hci.ParamUpdater) Option {
	return func(m *Manager) { m.paramUpdater = p }
}

// WithMaxConnectionAttempts overrides DefaultMaxConnectionAttempts.
func WithMaxConnectionAttempts(n int) Option {
	return func(m *Manager) { m.maxAttempts = n }
}

// WithScanTimeout overrides DefaultLEGeneralCepScanTimeout.
func WithScanTimeout(d time.Duration) Option {
	return func(m *Manager) { m.scanTimeout = d }
}

// WithCentralPause overrides DefaultLEConnectionPauseCentral.
func WithCentralPause(d time.Duration) Option {
	return func(m *Manager) { m.centralPause = d }
}

// WithPeripheralPause overrides DefaultLEConnectionPausePeripheral.
func WithPeripheralPause(d time.Duration) Option {
	return func(m *Manager) { m.peripheralPause = d }
}

// WithOwnAddressTypePolicy overrides the default always-Public policy.
func WithOwnAddressTypePolicy(p OwnAddressTypePolicy) Option {
	return func(m *Manager) { m.ownAddrPolicy = p }
}

// WithLogger sets the structured logger; defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l.With(slog.String("component", "gap.lecm"))
		}
	}
}

// WithSecurityManagerFactory registers the per-link security.Manager
// constructor used at connection establishment.
func WithSecurityManagerFactory(f SecurityManagerFactory) Option {
	return func(m *Manager) { m.securityFactory = f }
}
