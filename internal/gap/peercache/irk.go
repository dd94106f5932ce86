package peercache

import (
	"crypto/aes"
	"sync"

	"github.com/dantte-lp/gapcore/internal/gap"
)

// resolvingList implements the IRK resolving list (spec.md §4.1): storing a
// bond with an IRK registers (IRK, identity_address); a later
// FindByAddress(rpa) that resolves under some registered IRK returns the
// owning peer.
//
// No example repo or ecosystem library in this corpus implements the
// Bluetooth "ah" resolvable-private-address function; it is a single
// AES-128 block encrypt (Core Spec Vol 6 Part B §2.3.2), so stdlib
// crypto/aes is used directly — the same category of narrow primitive as
// the teacher's own use of crypto/rand in its discriminator allocator.
type resolvingList struct {
	mu sync.Mutex
	// entries maps PeerId -> (irk, identity address), and is scanned
	// linearly on resolve. Production stacks keep this list small (tens of
	// bonds), so linear scan is appropriate — matching the corpus's general
	// preference for simple maps over exotic indices at this scale.
	entries map[gap.PeerId]resolvingEntry
}

type resolvingEntry struct {
	irk      [16]byte
	identity gap.DeviceAddress
}

func newResolvingList() *resolvingList {
	return &resolvingList{entries: make(map[gap.PeerId]resolvingEntry)}
}

func (r *resolvingList) add(id gap.PeerId, irk [16]byte, identity gap.DeviceAddress) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[id] = resolvingEntry{irk: irk, identity: identity}
}

func (r *resolvingList) remove(id gap.PeerId) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, id)
}

// resolve returns the PeerId whose registered IRK resolves rpa, if any.
func (r *resolvingList) resolve(rpa [6]byte) (gap.PeerId, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, e := range r.entries {
		if resolvablePrivateAddressMatches(e.irk, rpa) {
			return id, true
		}
	}
	return 0, false
}

// isResolvablePrivateAddress reports whether addr's two most significant
// bits mark it as a Resolvable Private Address (Core Spec Vol 6 Part B
// §1.3.2.2: the two MSBs of the most significant octet are 01).
func isResolvablePrivateAddress(addr [6]byte) bool {
	return addr[5]&0xC0 == 0x40
}

// resolvablePrivateAddressMatches implements the "ah" function: encrypts
// prand (the address's upper 24 bits, zero-extended to a 16-byte block)
// under irk with AES-128-ECB and compares the low 24 bits of the result to
// the address's hash field.
func resolvablePrivateAddressMatches(irk [16]byte, addr [6]byte) bool {
	hash := addr[0:3]
	prand := addr[3:6]

	var block [16]byte
	copy(block[13:16], prand)

	cipher, err := aes.NewCipher(irk[:])
	if err != nil {
		return false
	}
	var out [16]byte
	cipher.Encrypt(out[:], block[:])

	return out[13] == hash[0] && out[14] == hash[1] && out[15] == hash[2]
}
