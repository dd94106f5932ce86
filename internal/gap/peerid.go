package gap

import (
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
	"sync"
)

// PeerId is an opaque stable identifier assigned by the cache, independent
// of address. It survives address privacy refresh (spec.md §3).
type PeerId uint64

// String renders the id in hex, e.g. "peer:1a2b3c4d5e6f7890".
func (id PeerId) String() string {
	return fmt.Sprintf("peer:%016x", uint64(id))
}

// ParsePeerId parses the String form back into a PeerId, accepting both the
// "peer:" prefixed form and a bare hex value (the admin HTTP API and
// gapctl accept either).
func ParsePeerId(s string) (PeerId, error) {
	s = strings.TrimPrefix(s, "peer:")
	var v uint64
	if _, err := fmt.Sscanf(s, "%016x", &v); err != nil {
		return 0, fmt.Errorf("parse peer id %q: %w", s, err)
	}
	return PeerId(v), nil
}

// maxPeerIDAllocAttempts bounds the retry loop the same way
// bfd.DiscriminatorAllocator bounds its random-generation retries: the
// 64-bit random space makes exhaustion astronomically unlikely, so this
// exists only as a safety net against a degenerate allocator state.
const maxPeerIDAllocAttempts = 100

// ErrPeerIDExhausted indicates the allocator could not generate a unique
// nonzero PeerId after the maximum number of attempts.
var ErrPeerIDExhausted = errors.New("peer id allocator exhausted")

// PeerIDAllocator generates unique, nonzero, random PeerId values.
//
// Grounded on bfd.DiscriminatorAllocator: crypto/rand generation with a
// bounded collision-retry loop, guarded by a mutex so it is safe to call
// from any goroutine (unlike the single-threaded LE executor, PeerCache
// and its allocator are shared across the whole process).
type PeerIDAllocator struct {
	mu        sync.Mutex
	allocated map[PeerId]struct{}
}

// NewPeerIDAllocator creates an allocator with an empty allocation set.
func NewPeerIDAllocator() *PeerIDAllocator {
	return &PeerIDAllocator{allocated: make(map[PeerId]struct{})}
}

// Allocate generates a unique, nonzero PeerId.
func (a *PeerIDAllocator) Allocate() (PeerId, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	var buf [8]byte
	for range maxPeerIDAllocAttempts {
		if _, err := rand.Read(buf[:]); err != nil {
			return 0, fmt.Errorf("generate random peer id: %w", err)
		}
		id := PeerId(binary.BigEndian.Uint64(buf[:]))
		if id == 0 {
			continue
		}
		if _, exists := a.allocated[id]; exists {
			continue
		}
		a.allocated[id] = struct{}{}
		return id, nil
	}
	return 0, fmt.Errorf("allocate peer id after %d attempts: %w", maxPeerIDAllocAttempts, ErrPeerIDExhausted)
}

// Release removes a previously allocated PeerId, making it reusable.
// Releasing an id that was not allocated is a no-op.
func (a *PeerIDAllocator) Release(id PeerId) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.allocated, id)
}
