package lecm

import (
	"context"

	"github.com/dantte-lp/gapcore/internal/gap"
)

// ScanFilter narrows a discovery session to connectable advertisers, and
// optionally to one target address (spec.md §4.3 step 1).
type ScanFilter struct {
	Connectable bool
	Target      *gap.DeviceAddress
}

// Discovery is the passive-scanning collaborator LeConnectionManager drives
// during the scan-then-connect pipeline (spec.md §4.3, §9 "Global mutable
// state": "the discovery manager's scan state are external to the core;
// treat them as capability objects passed in at construction"). At most one
// scanning session driven by this manager exists at a time (spec.md §4.3
// pipeline invariants).
type Discovery interface {
	StartScan(ctx context.Context, filter ScanFilter, onDiscovered func(gap.DeviceAddress)) error
	StopScan(ctx context.Context) error
}
