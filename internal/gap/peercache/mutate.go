package peercache

import (
	"log/slog"

	"github.com/dantte-lp/gapcore/internal/gap"
)

// notifyLocked runs tickleLocked, captures a listener/peer snapshot, and returns a
// closure the caller invokes after unlocking c.mu (crash-safety: spec.md §4.1).
func (c *Cache) notifyLocked(e *entry) func() {
	c.tickleLocked(e)
	out := e.peer
	listeners := append([]UpdatedListener(nil), c.updatedListeners...)
	return func() { c.emitUpdated(out, listeners) }
}

// findAliasLocked finds the entry keyed by addr itself, or by any existing
// alias of addr (spec.md §3/§8 "Addresses of type BREDR and LEPublic with
// equal bytes must resolve to the same Peer"), without registering addr as
// a new key. Returns nil if no matching peer exists. Must be called with
// c.mu held.
func (c *Cache) findAliasLocked(addr gap.DeviceAddress) *entry {
	if e, ok := c.byAddress[addr]; ok {
		return e
	}
	for alias, e := range c.byAddress {
		if alias.IsAliasOf(addr) {
			return e
		}
	}
	return nil
}

// ensurePeerLocked finds the entry for addr, or any alias of addr, and
// registers addr as an additional key for that entry if it is not one
// already (spec.md §4.1 "Dual-mode identity reconciliation"). It does not
// add a transport sub-record; the callers do, which is what makes an
// aliased peer DualMode. Returns nil if no matching peer exists.
func (c *Cache) ensurePeerLocked(addr gap.DeviceAddress) *entry {
	e := c.findAliasLocked(addr)
	if e == nil {
		return nil
	}
	if _, ok := c.byAddress[addr]; !ok {
		// Register the new address as an additional key for this peer
		// without disturbing its canonical Address field.
		c.byAddress[addr] = e
	}
	return e
}

// UpdateLEAdvertisingData ingests an advertising report for addr, creating
// the peer if necessary and upgrading an existing BR/EDR alias to DualMode.
func (c *Cache) UpdateLEAdvertisingData(addr gap.DeviceAddress, data []byte, rssi int8) *gap.Peer {
	c.mu.Lock()

	e := c.ensurePeerLocked(addr)
	if e == nil {
		c.mu.Unlock()
		p := c.NewPeer(addr, true)
		if p == nil {
			return nil
		}
		return c.UpdateLEAdvertisingData(addr, data, rssi)
	}

	if e.peer.LE == nil {
		e.peer.LE = &gap.LowEnergyData{}
	}
	e.peer.LE.LastAdvertisingData = data
	e.peer.LE.LastRSSI = rssi

	done := c.notifyLocked(e)
	c.mu.Unlock()
	done()

	out := e.peer
	return &out
}

// UpdateBREDRInquiryData ingests inquiry/EIR data for addr, creating the
// peer if necessary and upgrading an existing LE alias to DualMode.
func (c *Cache) UpdateBREDRInquiryData(addr gap.DeviceAddress, deviceClass uint32, eir []byte) *gap.Peer {
	c.mu.Lock()

	e := c.ensurePeerLocked(addr)
	if e == nil {
		c.mu.Unlock()
		p := c.NewPeer(addr, true)
		if p == nil {
			return nil
		}
		return c.UpdateBREDRInquiryData(addr, deviceClass, eir)
	}

	if e.peer.BREDR == nil {
		e.peer.BREDR = &gap.BREDRData{}
	}
	e.peer.BREDR.DeviceClass = deviceClass
	e.peer.BREDR.EIRData = eir

	done := c.notifyLocked(e)
	c.mu.Unlock()
	done()

	out := e.peer
	return &out
}

// SetName records the peer's device name (EIR/AD or GAP service read).
func (c *Cache) SetName(id gap.PeerId, name string) bool {
	c.mu.Lock()
	e, ok := c.byID[id]
	if !ok {
		c.mu.Unlock()
		return false
	}
	e.peer.Name = name
	done := c.notifyLocked(e)
	c.mu.Unlock()
	done()
	return true
}

// SetConnectionState transitions the connection state of id on the given
// technology. Transitioning to Initializing or Connected is a tickle and
// clears Temporary while active; transitioning back to NotConnected resumes
// the expiry countdown, and — if the peer is backed by an LERandom address
// and is not bonded — makes it temporary again (spec.md §4.1).
func (c *Cache) SetConnectionState(id gap.PeerId, le bool, state gap.ConnState) bool {
	c.mu.Lock()
	e, ok := c.byID[id]
	if !ok {
		c.mu.Unlock()
		return false
	}

	if le {
		if e.peer.LE == nil {
			e.peer.LE = &gap.LowEnergyData{}
		}
		e.peer.LE.ConnState = state
	} else {
		if e.peer.BREDR == nil {
			e.peer.BREDR = &gap.BREDRData{}
		}
		e.peer.BREDR.ConnState = state
	}

	if state == gap.ConnStateNotConnected {
		if e.peer.Address.Type == gap.AddressTypeLERandom && !e.peer.Bonded() {
			e.peer.Temporary = true
		}
	} else {
		e.peer.Temporary = false
	}
	e.peer.RefreshTemporary()

	done := c.notifyLocked(e)
	c.mu.Unlock()
	done()
	return true
}

// AddBondedPeer restores a bonded peer from persistent storage (spec.md
// §4.1). Fails if id or address collides with an existing peer, if both
// sub-records would be absent, or if an IRK is supplied without an identity
// address. Does not emit peer_bonded (spec.md: "Does not emit peer_bonded").
func (c *Cache) AddBondedPeer(data gap.BondingData) bool {
	if data.LEPairingData == nil && data.BREDRLinkKey == nil {
		c.logger.Warn("add bonded peer: missing both sub-records", slog.String("peer_id", data.Identifier.String()))
		return false
	}
	if data.LEPairingData != nil {
		if err := data.LEPairingData.Validate(); err != nil {
			c.logger.Warn("add bonded peer: invalid le pairing data", slog.String("error", err.Error()))
			return false
		}
	}

	c.mu.Lock()
	if _, exists := c.byID[data.Identifier]; exists {
		c.mu.Unlock()
		return false
	}
	if _, exists := c.byAddress[data.Address]; exists {
		c.mu.Unlock()
		return false
	}

	p := gap.Peer{
		ID:            data.Identifier,
		Address:       data.Address,
		IdentityKnown: true,
		Temporary:     false,
	}
	if data.Name != nil {
		p.Name = *data.Name
	}
	if data.LEPairingData != nil {
		p.LE = &gap.LowEnergyData{
			Bond: &gap.LEBondData{
				PeerLTK:           data.LEPairingData.PeerLTK,
				LocalLTK:          data.LEPairingData.LocalLTK,
				IRK:               data.LEPairingData.IRK,
				CSRK:              data.LEPairingData.CSRK,
				CrossTransportKey: data.LEPairingData.CrossTransportKey,
			},
		}
	}
	if data.BREDRLinkKey != nil {
		services := make(map[[16]byte]struct{}, len(data.BREDRServices))
		for _, u := range data.BREDRServices {
			services[u] = struct{}{}
		}
		p.BREDR = &gap.BREDRData{LinkKey: data.BREDRLinkKey, BondedServices: services}
	}

	e := &entry{peer: p}
	c.byID[p.ID] = e
	c.byAddress[p.Address] = e

	if data.LEPairingData != nil && data.LEPairingData.IRK != nil {
		identity := p.Address
		if data.LEPairingData.IdentityAddress != nil {
			identity = *data.LEPairingData.IdentityAddress
		}
		c.irks.add(p.ID, *data.LEPairingData.IRK, identity)
	}

	c.mu.Unlock()

	c.logger.Info("bonded peer restored", slog.String("peer_id", p.ID.String()), slog.String("address", p.Address.String()))
	return true
}

// StoreLowEnergyBond promotes a connected peer to bonded on the LE
// transport, registers its IRK (if any) in the resolving list, and emits
// peer_bonded.
func (c *Cache) StoreLowEnergyBond(id gap.PeerId, data gap.LEPairingData) bool {
	if err := data.Validate(); err != nil {
		c.logger.Warn("store le bond: invalid pairing data", slog.String("error", err.Error()))
		return false
	}

	c.mu.Lock()
	e, ok := c.byID[id]
	if !ok {
		c.mu.Unlock()
		return false
	}
	if e.peer.LE == nil {
		e.peer.LE = &gap.LowEnergyData{}
	}
	e.peer.LE.Bond = &gap.LEBondData{
		PeerLTK:           data.PeerLTK,
		LocalLTK:          data.LocalLTK,
		IRK:               data.IRK,
		CSRK:              data.CSRK,
		CrossTransportKey: data.CrossTransportKey,
	}
	e.peer.RefreshTemporary()

	if data.IRK != nil {
		identity := e.peer.Address
		if data.IdentityAddress != nil {
			identity = *data.IdentityAddress
		}
		c.irks.add(id, *data.IRK, identity)
	}

	doneUpdate := c.notifyLocked(e)
	out := e.peer
	bondedListeners := append([]BondedListener(nil), c.bondedListeners...)
	c.mu.Unlock()

	doneUpdate()
	c.emitBonded(out, bondedListeners)
	return true
}

// StoreBrEdrBond promotes a connected peer to bonded on the BR/EDR
// transport and emits peer_bonded.
func (c *Cache) StoreBrEdrBond(addr gap.DeviceAddress, key gap.LinkKey) bool {
	c.mu.Lock()
	e, ok := c.byAddress[addr]
	if !ok {
		c.mu.Unlock()
		return false
	}
	if e.peer.BREDR == nil {
		e.peer.BREDR = &gap.BREDRData{}
	}
	e.peer.BREDR.LinkKey = &key
	e.peer.RefreshTemporary()

	doneUpdate := c.notifyLocked(e)
	out := e.peer
	bondedListeners := append([]BondedListener(nil), c.bondedListeners...)
	c.mu.Unlock()

	doneUpdate()
	c.emitBonded(out, bondedListeners)
	return true
}

// SetAutoConnectBehaviorForIntentionalDisconnect clears should_auto_connect
// after an explicit user-initiated Disconnect (spec.md §4.1, §4.3 S2).
func (c *Cache) SetAutoConnectBehaviorForIntentionalDisconnect(id gap.PeerId) bool {
	return c.setAutoConnect(id, false)
}

// SetAutoConnectBehaviorForSuccessfulConnection re-enables should_auto_connect
// after a successful connection (spec.md §4.1, §4.3 S2).
func (c *Cache) SetAutoConnectBehaviorForSuccessfulConnection(id gap.PeerId) bool {
	return c.setAutoConnect(id, true)
}

func (c *Cache) setAutoConnect(id gap.PeerId, v bool) bool {
	c.mu.Lock()
	e, ok := c.byID[id]
	if !ok || e.peer.LE == nil {
		c.mu.Unlock()
		return false
	}
	e.peer.LE.ShouldAutoConnect = v
	done := c.notifyLocked(e)
	c.mu.Unlock()
	done()
	return true
}

// RemoveDisconnectedPeer removes id from the cache. Succeeds iff the peer
// exists and is not connected on either transport.
func (c *Cache) RemoveDisconnectedPeer(id gap.PeerId) bool {
	c.mu.Lock()
	e, ok := c.byID[id]
	if !ok || e.peer.Connected() {
		c.mu.Unlock()
		return false
	}
	c.removeLocked(e)
	c.ids.Release(id)
	c.mu.Unlock()

	c.logger.Info("peer removed", slog.String("peer_id", id.String()))
	return true
}
