package bredr

import "errors"

// ErrNotSupported is delivered to every pending requester when an event
// arrives outside its legal state (spec.md §4.2 "Unexpected events":
// "transitions Failed, emits HostError::NotSupported to all requesters").
var ErrNotSupported = errors.New("unsupported pairing event for current state")
