package bredr

import "github.com/dantte-lp/gapcore/internal/gap"

// Requirements is what a queued security-upgrade request demands of the
// eventual link key (spec.md §4.2 "request queue of pending security
// upgrades with requirements and status callbacks").
type Requirements struct {
	Level gap.SecurityLevel
}

// met reports whether a link secured to level satisfies r.
func (r Requirements) met(level gap.SecurityLevel) bool {
	return level >= r.Level
}

// StatusCallback is invoked exactly once to resolve a queued pairing
// request, nil error on success.
type StatusCallback func(err error)

// pendingRequest is one queued InitiatePairing call.
type pendingRequest struct {
	requirements Requirements
	cb           StatusCallback
}

// requestQueue holds every pendingRequest still awaiting resolution for one
// link, in FIFO arrival order (spec.md §5 "Callback dispatch on completion
// of a Connect is FIFO in the order callbacks were registered" — the same
// discipline applies to pairing requesters).
type requestQueue struct {
	items []pendingRequest
}

func (q *requestQueue) push(r pendingRequest) {
	q.items = append(q.items, r)
}

func (q *requestQueue) len() int {
	return len(q.items)
}

// resolveAll resolves every queued request with err and empties the queue.
func (q *requestQueue) resolveAll(err error) {
	items := q.items
	q.items = nil
	for _, it := range items {
		it.cb(err)
	}
}

// resolveAgainst resolves every queued request according to whether level
// satisfies its own requirements, and empties the queue (spec.md §4.2
// OnEncryptionChange: "fan out pending request statuses based on whether
// each requester's requirements are met").
func (q *requestQueue) resolveAgainst(level gap.SecurityLevel) {
	items := q.items
	q.items = nil
	for _, it := range items {
		if it.requirements.met(level) {
			it.cb(nil)
		} else {
			it.cb(gap.NewConnError(gap.ErrInsufficientSecurity, ""))
		}
	}
}
