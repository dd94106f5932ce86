// Package peercache implements the canonical in-memory registry of every
// remote device the host has seen (spec.md §4.1): lifecycle, dual-mode
// identity reconciliation, privacy-resolving lookup, and expiry.
//
// Grounded on bfd.Manager's dual-keyed session maps (internal/bfd/manager.go):
// the same two-tier lookup-by-primary-key / lookup-by-secondary-key shape,
// generalized to three keys (PeerId, canonical DeviceAddress, IRK-resolving
// list) plus a per-entry expiry timer that bfd.Manager has no analog for.
package peercache

import (
	"log/slog"
	"sync"
	"time"

	"github.com/dantte-lp/gapcore/internal/gap"
)

// DefaultCacheTimeout is the default "temporary entry" expiry (spec.md §4.1:
// CacheTimeout = 60s). It is injectable via WithCacheTimeout so callers can
// make the relationship to connection-request timeouts explicit rather than
// incidental (spec.md §9 Open Questions).
const DefaultCacheTimeout = 60 * time.Second

// UpdatedListener is invoked after any peer mutation ("tickle"). Emission is
// crash-safe: the cache snapshots its listener list and the peer value
// before calling out, outside any internal lock, so a listener that tears
// down the cache (e.g. calls RemoveDisconnectedPeer) from within the
// callback cannot deadlock or corrupt cache state.
type UpdatedListener func(p gap.Peer)

// BondedListener is invoked exactly once per bond-storing transition
// (spec.md §5: "peer_bonded fires at most once per bond-storing transition").
type BondedListener func(p gap.Peer)

// entry is the cache's internal wrapper around a Peer: the live record plus
// its expiry timer.
type entry struct {
	peer  gap.Peer
	timer *time.Timer // nil while not temporary or while connected
}

// Option configures a Cache at construction.
type Option func(*Cache)

// WithCacheTimeout overrides DefaultCacheTimeout.
func WithCacheTimeout(d time.Duration) Option {
	return func(c *Cache) { c.cacheTimeout = d }
}

// WithLogger sets the structured logger; defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *Cache) {
		if l != nil {
			c.logger = l.With(slog.String("component", "gap.peercache"))
		}
	}
}

// Cache is the canonical peer registry.
type Cache struct {
	mu sync.Mutex

	byID      map[gap.PeerId]*entry
	byAddress map[gap.DeviceAddress]*entry // canonical + every alias address
	irks      *resolvingList

	ids *gap.PeerIDAllocator

	cacheTimeout time.Duration
	logger       *slog.Logger

	updatedListeners []UpdatedListener
	bondedListeners  []BondedListener
}

// New creates an empty Cache.
func New(opts ...Option) *Cache {
	c := &Cache{
		byID:         make(map[gap.PeerId]*entry),
		byAddress:    make(map[gap.DeviceAddress]*entry),
		irks:         newResolvingList(),
		ids:          gap.NewPeerIDAllocator(),
		cacheTimeout: DefaultCacheTimeout,
		logger:       slog.Default().With(slog.String("component", "gap.peercache")),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// OnPeerUpdated registers a listener invoked after any peer tickle.
func (c *Cache) OnPeerUpdated(l UpdatedListener) {
	c.mu.Lock()
	c.updatedListeners = append(c.updatedListeners, l)
	c.mu.Unlock()
}

// OnPeerBonded registers a listener invoked on bond-storing transitions.
func (c *Cache) OnPeerBonded(l BondedListener) {
	c.mu.Lock()
	c.bondedListeners = append(c.bondedListeners, l)
	c.mu.Unlock()
}

// emitUpdated snapshots the peer and listener list under lock, then invokes
// listeners after releasing it (crash-safety: spec.md §4.1).
func (c *Cache) emitUpdated(p gap.Peer, listeners []UpdatedListener) {
	for _, l := range listeners {
		l(p)
	}
}

func (c *Cache) emitBonded(p gap.Peer, listeners []BondedListener) {
	for _, l := range listeners {
		l(p)
	}
}

// tickleLocked resets e's expiry timer (or starts one) unless the peer is bonded
// or connected on some transport, per spec.md §4.1 expiry rules. Must be
// called with c.mu held.
func (c *Cache) tickleLocked(e *entry) {
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
	if !e.peer.Temporary {
		return
	}
	id := e.peer.ID
	e.timer = time.AfterFunc(c.cacheTimeout, func() {
		c.expire(id)
	})
}

// expire removes a temporary peer whose CacheTimeout has elapsed without a
// tickle. A no-op if the peer no longer exists or is no longer temporary
// (e.g. it was bonded or connected between the timer firing and this call).
func (c *Cache) expire(id gap.PeerId) {
	c.mu.Lock()
	e, ok := c.byID[id]
	if !ok || !e.peer.Temporary {
		c.mu.Unlock()
		return
	}
	c.removeLocked(e)
	c.mu.Unlock()

	c.logger.Info("peer expired", slog.String("peer_id", id.String()))
}

// removeLocked deletes e from every index and de-registers its IRK.
// Must be called with c.mu held.
func (c *Cache) removeLocked(e *entry) {
	delete(c.byID, e.peer.ID)
	delete(c.byAddress, e.peer.Address)
	if e.peer.LE != nil && e.peer.LE.Bond != nil && e.peer.LE.Bond.IRK != nil {
		c.irks.remove(e.peer.ID)
	}
	if e.timer != nil {
		e.timer.Stop()
	}
}

// NewPeer returns a fresh, temporary peer for address. Fails (returns nil)
// if an alias address already exists with an incompatible technology
// constraint: a BREDR/LEPublic alias may only be created once, as whichever
// transport observed it first.
func (c *Cache) NewPeer(address gap.DeviceAddress, connectable bool) *gap.Peer {
	c.mu.Lock()

	if c.findAliasLocked(address) != nil {
		c.mu.Unlock()
		return nil
	}

	id, err := c.ids.Allocate()
	if err != nil {
		c.mu.Unlock()
		c.logger.Error("allocate peer id", slog.String("error", err.Error()))
		return nil
	}

	p := gap.Peer{
		ID:            id,
		Address:       address,
		IdentityKnown: !address.Type.IsLE() || address.Type == gap.AddressTypeLEPublic,
		Temporary:     true,
	}
	switch {
	case address.Type == gap.AddressTypeBREDR:
		p.BREDR = &gap.BREDRData{}
	default:
		p.LE = &gap.LowEnergyData{}
		_ = connectable // connectable is informational at creation time
	}

	e := &entry{peer: p}
	c.byID[id] = e
	c.byAddress[address] = e
	c.tickleLocked(e)

	listeners := append([]UpdatedListener(nil), c.updatedListeners...)
	out := e.peer
	c.mu.Unlock()

	c.emitUpdated(out, listeners)
	return &out
}

// FindById returns a copy of the peer with the given id, or nil.
func (c *Cache) FindById(id gap.PeerId) *gap.Peer {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.byID[id]
	if !ok {
		return nil
	}
	out := e.peer
	return &out
}

// FindByAddress resolves addr to a peer. For LERandom addresses that may be
// Resolvable Private Addresses, the IRK resolving list is consulted before
// falling back to a direct lookup.
func (c *Cache) FindByAddress(addr gap.DeviceAddress) *gap.Peer {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.byAddress[addr]; ok {
		out := e.peer
		return &out
	}

	if addr.Type == gap.AddressTypeLERandom && isResolvablePrivateAddress(addr.Value) {
		if id, ok := c.irks.resolve(addr.Value); ok {
			if e, ok := c.byID[id]; ok {
				out := e.peer
				return &out
			}
		}
	}
	return nil
}

// ForEach visits every peer currently in the cache. The visitor receives
// copies; mutating the cache from within visitor is safe but changes made
// during the same ForEach call are not guaranteed to be observed.
func (c *Cache) ForEach(visitor func(gap.Peer)) {
	c.mu.Lock()
	peers := make([]gap.Peer, 0, len(c.byID))
	for _, e := range c.byID {
		peers = append(peers, e.peer)
	}
	c.mu.Unlock()

	for _, p := range peers {
		visitor(p)
	}
}

// Snapshot returns a copy of every peer currently cached, for introspection
// (admin HTTP API, tests) — grounded on bfd.Manager.Sessions().
func (c *Cache) Snapshot() []gap.Peer {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]gap.Peer, 0, len(c.byID))
	for _, e := range c.byID {
		out = append(out, e.peer)
	}
	return out
}

// Count returns the number of cached peers.
func (c *Cache) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.byID)
}
